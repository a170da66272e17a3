// Package tts holds the speech engines that voice the simulated customer.
package tts

import (
	"fmt"

	"github.com/chadiek/support-trainer/internal/voice"
)

// SampleRate of the PCM every engine produces.
const SampleRate = 48000

const (
	ProviderDeepgram   = "deepgram"
	ProviderElevenLabs = "elevenlabs"
)

// Settings select and configure an engine.
type Settings struct {
	Provider          string
	DeepgramAPIKey    string
	DeepgramModel     string
	ElevenLabsAPIKey  string
	ElevenLabsVoiceID string
}

// New returns the configured engine, or nil when its credentials are absent.
func New(s Settings) (voice.TTS, error) {
	switch s.Provider {
	case "", ProviderDeepgram:
		if s.DeepgramAPIKey == "" {
			return nil, nil
		}
		return NewDeepgram(s.DeepgramAPIKey, s.DeepgramModel), nil
	case ProviderElevenLabs:
		if s.ElevenLabsAPIKey == "" || s.ElevenLabsVoiceID == "" {
			return nil, nil
		}
		return NewElevenLabs(s.ElevenLabsAPIKey, s.ElevenLabsVoiceID), nil
	default:
		return nil, fmt.Errorf("tts: unknown provider %q", s.Provider)
	}
}
