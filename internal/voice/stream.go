package voice

import (
	"context"
	"log/slog"
	"strings"
	"sync"
)

// TTS streams 48kHz PCM mono audio for the given text.
type TTS interface {
	StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error)
}

// PCMSink consumes 48kHz PCM bytes and delivers them to the listener.
type PCMSink interface {
	WritePCM(pcm []byte)
	FlushTail()
	// Reset drops any queued audio immediately.
	Reset()
}

// StreamSynthesizer is a Synthesizer that renders text through a streaming
// TTS engine into a sink, one sentence at a time so the first words play
// before the whole reply is rendered.
type StreamSynthesizer struct {
	TTS  TTS
	Sink PCMSink
}

// Speak implements Synthesizer.
func (s StreamSynthesizer) Speak(ctx context.Context, text string) error {
	var firstErr error
	for _, chunk := range chunkReply(text) {
		if ctx.Err() != nil {
			break
		}
		pcmCh, errCh := s.TTS.StreamPCM48k(ctx, chunk)
		openPCM, openErr := true, true
		for openPCM || openErr {
			select {
			case b, ok := <-pcmCh:
				if !ok {
					openPCM = false
					continue
				}
				if len(b) > 0 && ctx.Err() == nil {
					s.Sink.WritePCM(b)
				}
			case e, ok := <-errCh:
				if !ok {
					openErr = false
					continue
				}
				if e != nil {
					slog.Warn("tts stream error", "error", e)
					if firstErr == nil {
						firstErr = e
					}
				}
			case <-ctx.Done():
				openPCM, openErr = false, false
			}
		}
	}
	if err := ctx.Err(); err != nil {
		s.Sink.Reset()
		return err
	}
	s.Sink.FlushTail()
	return firstErr
}

// chunkReply splits a reply into sentence-like chunks on '.', '?', '!' and
// newlines, keeping the punctuation.
func chunkReply(reply string) []string {
	txt := strings.TrimSpace(reply)
	if txt == "" {
		return nil
	}
	var chunks []string
	var b strings.Builder
	flush := func() {
		if c := strings.TrimSpace(b.String()); c != "" {
			chunks = append(chunks, c)
		}
		b.Reset()
	}
	for _, r := range txt {
		switch r {
		case '.', '!', '?':
			b.WriteRune(r)
			flush()
		case '\n', '\r':
			flush()
		default:
			b.WriteRune(r)
		}
	}
	flush()
	return chunks
}

// SinkSwitch forwards audio to whichever sink is attached, dropping it when
// none is. The browser connection attaches on connect and detaches on close.
type SinkSwitch struct {
	mu   sync.RWMutex
	sink PCMSink
}

// Attach makes p the current sink and returns a func that detaches it.
func (s *SinkSwitch) Attach(p PCMSink) (detach func()) {
	s.mu.Lock()
	s.sink = p
	s.mu.Unlock()
	return func() {
		s.mu.Lock()
		if s.sink == p {
			s.sink = nil
		}
		s.mu.Unlock()
	}
}

func (s *SinkSwitch) current() PCMSink {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sink
}

// WritePCM implements PCMSink.
func (s *SinkSwitch) WritePCM(pcm []byte) {
	if p := s.current(); p != nil {
		p.WritePCM(pcm)
	}
}

// FlushTail implements PCMSink.
func (s *SinkSwitch) FlushTail() {
	if p := s.current(); p != nil {
		p.FlushTail()
	}
}

// Reset drops audio queued on the attached sink.
func (s *SinkSwitch) Reset() {
	if p := s.current(); p != nil {
		p.Reset()
	}
}
