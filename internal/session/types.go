package session

import (
	"context"

	"github.com/chadiek/support-trainer/internal/gateway"
	"github.com/chadiek/support-trainer/internal/voice"
)

// Gateway issues model requests through the Model Gateway.
type Gateway interface {
	Chat(ctx context.Context, req gateway.ChatRequest) (string, error)
	Suggest(ctx context.Context, prompt string) (string, error)
}

// Voice is the capture and playback capability. *voice.Adapter implements it.
type Voice interface {
	OnResult(fn func(text string))
	OnError(fn func(err *voice.Error))
	OnEnd(fn func())
	StartListening() error
	StopListening()
	FeedPCM(pcm []byte)
	Speak(text string)
	ReplayLast()
}

type nopVoice struct{}

func (nopVoice) OnResult(func(string))      {}
func (nopVoice) OnError(func(*voice.Error)) {}
func (nopVoice) OnEnd(func())               {}
func (nopVoice) StartListening() error      { return &voice.Error{Code: voice.CodeNotSupported} }
func (nopVoice) StopListening()             {}
func (nopVoice) FeedPCM([]byte)             {}
func (nopVoice) Speak(string)               {}
func (nopVoice) ReplayLast()                {}
