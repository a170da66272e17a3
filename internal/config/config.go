package config

import (
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration.
type Config struct {
	HTTPAddress    string
	PublicBaseURL  string
	GatewayURL     string
	GatewayTimeout time.Duration
	LogLevel       string

	LLMKey     string
	LLMBaseURL string
	LLMModelID string

	AssemblyAIKey string

	TTSProvider       string
	DeepgramKey       string
	DeepgramModel     string
	ElevenLabsKey     string
	ElevenLabsVoiceID string

	DefaultAgentName string

	ExportDir              string
	SupabaseURL            string
	SupabaseServiceRoleKey string
	SupabaseBucket         string
}

// Load reads a .env file when present, then environment variables, and
// returns Config with sane defaults.
func Load() Config {
	if err := godotenv.Load(); err != nil {
		slog.Debug("config: no .env file loaded", "error", err)
	}

	addr := getenv("HTTP_ADDRESS", ":8080")
	cfg := Config{
		HTTPAddress:   addr,
		PublicBaseURL: getenv("PUBLIC_BASE_URL", "http://localhost"+portOf(addr)),
		GatewayURL:    getenv("GATEWAY_URL", "http://127.0.0.1"+portOf(addr)+"/api/model"),
		LogLevel:      os.Getenv("LOG_LEVEL"),

		LLMKey:     os.Getenv("LLM_API_KEY"),
		LLMBaseURL: getenv("LLM_BASE_URL", "https://api.cerebras.ai/v1"),
		LLMModelID: getenv("LLM_MODEL_ID", "gpt-oss-120b"),

		AssemblyAIKey: os.Getenv("ASSEMBLYAI_API_KEY"),

		TTSProvider:       strings.ToLower(getenv("TTS_PROVIDER", "deepgram")),
		DeepgramKey:       os.Getenv("DEEPGRAM_API_KEY"),
		DeepgramModel:     os.Getenv("DEEPGRAM_MODEL"),
		ElevenLabsKey:     os.Getenv("ELEVENLABS_API_KEY"),
		ElevenLabsVoiceID: os.Getenv("ELEVENLABS_VOICE_ID"),

		DefaultAgentName: getenv("DEFAULT_AGENT_NAME", "Alex"),

		ExportDir:              os.Getenv("EXPORT_DIR"),
		SupabaseURL:            os.Getenv("SUPABASE_URL"),
		SupabaseServiceRoleKey: os.Getenv("SUPABASE_SERVICE_ROLE_KEY"),
		SupabaseBucket:         getenv("SUPABASE_BUCKET", "call-exports"),
	}

	cfg.GatewayTimeout = 30 * time.Second
	if raw := os.Getenv("GATEWAY_TIMEOUT_MS"); raw != "" {
		ms, err := strconv.Atoi(raw)
		if err != nil || ms <= 0 {
			slog.Warn("config: invalid GATEWAY_TIMEOUT_MS, using default", "value", raw)
		} else {
			cfg.GatewayTimeout = time.Duration(ms) * time.Millisecond
		}
	}

	if cfg.LLMKey == "" {
		slog.Warn("config: LLM_API_KEY not set - the customer will not reply")
	}
	if cfg.AssemblyAIKey == "" {
		slog.Warn("config: ASSEMBLYAI_API_KEY not set - voice input will not work")
	}
	switch cfg.TTSProvider {
	case "deepgram":
		if cfg.DeepgramKey == "" {
			slog.Warn("config: DEEPGRAM_API_KEY not set - TTS disabled")
		}
	case "elevenlabs":
		if cfg.ElevenLabsKey == "" || cfg.ElevenLabsVoiceID == "" {
			slog.Warn("config: ELEVENLABS_API_KEY or ELEVENLABS_VOICE_ID not set - TTS disabled")
		}
	}

	slog.Info("config loaded", "http_address", cfg.HTTPAddress, "gateway_url", cfg.GatewayURL, "tts_provider", cfg.TTSProvider)
	return cfg
}

// SecureContext reports whether the page is served from an origin where
// browsers grant microphone access: https, or plain http on a loopback host.
func (c Config) SecureContext() bool {
	u, err := url.Parse(c.PublicBaseURL)
	if err != nil {
		return false
	}
	if u.Scheme == "https" {
		return true
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

// portOf returns ":port" from a listen address, or ":8080" when it has none.
func portOf(addr string) string {
	_, port, err := net.SplitHostPort(addr)
	if err != nil || port == "" {
		return ":8080"
	}
	return ":" + port
}
