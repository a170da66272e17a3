package tts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
)

// DefaultElevenLabsBaseURL is the public ElevenLabs API.
const DefaultElevenLabsBaseURL = "https://api.elevenlabs.io"

const elevenLabsModel = "eleven_flash_v2_5"

// ElevenLabs renders speech through the ElevenLabs HTTP streaming endpoint.
type ElevenLabs struct {
	APIKey     string
	VoiceID    string
	BaseURL    string
	HTTPClient *http.Client
}

// NewElevenLabs builds an ElevenLabs engine against the public API.
func NewElevenLabs(apiKey, voiceID string) *ElevenLabs {
	return &ElevenLabs{APIKey: apiKey, VoiceID: voiceID, BaseURL: DefaultElevenLabsBaseURL, HTTPClient: &http.Client{}}
}

// StreamPCM48k implements voice.TTS.
func (e *ElevenLabs) StreamPCM48k(ctx context.Context, text string) (<-chan []byte, <-chan error) {
	pcmCh := make(chan []byte, 4096)
	errCh := make(chan error, 1)
	go func() {
		defer close(pcmCh)
		defer close(errCh)
		if e.APIKey == "" || e.VoiceID == "" {
			errCh <- errors.New("elevenlabs: api key or voice id missing")
			return
		}
		if err := e.stream(ctx, text, pcmCh); err != nil && ctx.Err() == nil {
			errCh <- err
		}
	}()
	return pcmCh, errCh
}

func (e *ElevenLabs) stream(ctx context.Context, text string, pcmCh chan<- []byte) error {
	base := e.BaseURL
	if base == "" {
		base = DefaultElevenLabsBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return fmt.Errorf("elevenlabs: base url: %w", err)
	}
	u = u.JoinPath("v1", "text-to-speech", e.VoiceID, "stream")
	q := u.Query()
	q.Set("model_id", elevenLabsModel)
	q.Set("output_format", "pcm_48000")
	// 0..4, lower trades quality for latency
	q.Set("optimize_streaming_latency", "2")
	u.RawQuery = q.Encode()

	body := map[string]any{
		"model_id": elevenLabsModel,
		"text":     text,
		"voice_settings": map[string]any{
			"stability":         0.4,
			"similarity_boost":  0.7,
			"style":             0.0,
			"use_speaker_boost": true,
		},
		"generation_config": map[string]any{
			"chunk_length_schedule": []int{80, 120, 160, 200},
		},
	}
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u.String(), bytes.NewReader(buf))
	if err != nil {
		return err
	}
	req.Header.Set("xi-api-key", e.APIKey)
	req.Header.Set("Content-Type", "application/json")

	client := e.HTTPClient
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("elevenlabs: request: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("elevenlabs: status=%d body=%s", resp.StatusCode, string(b))
	}

	chunk := make([]byte, 4096)
	logged := false
	for {
		n, rerr := resp.Body.Read(chunk)
		if n > 0 {
			if !logged {
				slog.Debug("elevenlabs: receiving audio stream", "first_chunk_bytes", n)
				logged = true
			}
			out := make([]byte, n)
			copy(out, chunk[:n])
			select {
			case pcmCh <- out:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		if rerr != nil {
			if errors.Is(rerr, io.EOF) {
				return nil
			}
			return fmt.Errorf("elevenlabs: read: %w", rerr)
		}
	}
}
