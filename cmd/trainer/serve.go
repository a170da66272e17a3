package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/chadiek/support-trainer/internal/config"
	"github.com/chadiek/support-trainer/internal/conversation"
	"github.com/chadiek/support-trainer/internal/export"
	"github.com/chadiek/support-trainer/internal/gateway"
	"github.com/chadiek/support-trainer/internal/httpserver"
	"github.com/chadiek/support-trainer/internal/llm"
	"github.com/chadiek/support-trainer/internal/scenario"
	"github.com/chadiek/support-trainer/internal/session"
	"github.com/chadiek/support-trainer/internal/stt"
	"github.com/chadiek/support-trainer/internal/tts"
	"github.com/chadiek/support-trainer/internal/voice"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the trainer HTTP server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()
			if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
				cfg.HTTPAddress = addr
			}
			setupLogging(cfg.LogLevel)
			return serve(cfg)
		},
	}
	cmd.Flags().String("addr", "", "listen address (overrides HTTP_ADDRESS)")
	return cmd
}

func serve(cfg config.Config) error {
	catalog, err := scenario.Builtin()
	if err != nil {
		return fmt.Errorf("load scenarios: %w", err)
	}

	speech := &voice.SinkSwitch{}
	adapter, err := newVoice(cfg, speech)
	if err != nil {
		return err
	}
	defer adapter.Close()

	trainer := session.New(session.Options{
		Catalog:  catalog,
		Machine:  conversation.NewMachine(conversation.Options{AgentName: cfg.DefaultAgentName}),
		Gateway:  gateway.NewClient(cfg.GatewayURL, cfg.GatewayTimeout),
		Voice:    adapter,
		Exporter: newExporter(cfg),
	})
	stopTrainer := trainer.Start(context.Background())
	defer stopTrainer()

	e := httpserver.New(httpserver.Handlers{
		Trainer: trainer,
		Catalog: catalog,
		Model:   llm.NewProvider(cfg.LLMKey, cfg.LLMBaseURL, cfg.LLMModelID, nil),
		Speech:  speech,
	})

	server := &http.Server{
		Addr:              cfg.HTTPAddress,
		Handler:           e,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", cfg.HTTPAddress, "public_url", cfg.PublicBaseURL)
		serverErrors <- server.ListenAndServe()
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
	case sig := <-sigChan:
		slog.Info("shutdown signal received", "signal", sig.String())
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		slog.Warn("graceful shutdown failed", "error", err)
		_ = server.Close()
	}
	return nil
}

// newVoice wires the recognizer and synthesizer that are configured. A
// missing engine leaves the adapter without that capability.
func newVoice(cfg config.Config, speech *voice.SinkSwitch) (*voice.Adapter, error) {
	opts := voice.Options{SecureContext: cfg.SecureContext()}
	if cfg.AssemblyAIKey != "" {
		opts.Recognizer = stt.NewAssemblyAI(cfg.AssemblyAIKey, "")
	}
	engine, err := tts.New(tts.Settings{
		Provider:          cfg.TTSProvider,
		DeepgramAPIKey:    cfg.DeepgramKey,
		DeepgramModel:     cfg.DeepgramModel,
		ElevenLabsAPIKey:  cfg.ElevenLabsKey,
		ElevenLabsVoiceID: cfg.ElevenLabsVoiceID,
	})
	if err != nil {
		return nil, err
	}
	if engine != nil {
		opts.Synthesizer = voice.StreamSynthesizer{TTS: engine, Sink: speech}
	}
	a := voice.New(opts)
	if !a.Supported() {
		slog.Warn("voice input unavailable", "reason", a.CapabilityError().Code)
	}
	return a, nil
}

// newExporter combines every configured export target. It returns nil when
// none is configured.
func newExporter(cfg config.Config) export.Exporter {
	var targets export.Multi
	if cfg.ExportDir != "" {
		targets = append(targets, export.Dir{Path: cfg.ExportDir})
	}
	if cfg.SupabaseURL != "" {
		sb, err := export.NewSupabase(export.SupabaseConfig{
			URL:            cfg.SupabaseURL,
			ServiceRoleKey: cfg.SupabaseServiceRoleKey,
			Bucket:         cfg.SupabaseBucket,
		})
		if err != nil {
			slog.Warn("supabase export disabled", "error", err)
		} else {
			targets = append(targets, sb)
		}
	}
	if len(targets) == 0 {
		return nil
	}
	return targets
}
