package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the LectureLab server.
type Config struct {
	Server    ServerConfig
	Artifacts ArtifactConfig
	Pipeline  PipelineConfig
	Registry  RegistryConfig
	Redis     RedisConfig
	AI        AIConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	MaxUploadMB        int
	RateLimitPerMinute int
	ShutdownTimeout    time.Duration
}

type ArtifactConfig struct {
	Root string
}

type PipelineConfig struct {
	ChunkLength         time.Duration
	FFmpegPath          string
	MarkerPattern       string
	MarkerReplacement   string
	DefaultLanguage     string
	DefaultEssayMaximum float64
}

type RegistryConfig struct {
	Backend string // memory | redis
	JobTTL  time.Duration
}

type RedisConfig struct {
	URL string
}

// Candidate is one "backend:model" entry of a candidate list.
type Candidate struct {
	Backend string
	Model   string
}

func (c Candidate) String() string { return c.Backend + ":" + c.Model }

type AIConfig struct {
	GenerationCandidates    []Candidate
	TranscriptionCandidates []Candidate
	InferenceTimeout        time.Duration
	ProbeTimeout            time.Duration
	Pacing                  time.Duration
	MaxRetries              int
	Ollama                  OllamaConfig
	VLLM                    VLLMConfig
	OpenAI                  OpenAIConfig
	Anthropic               AnthropicConfig
	GCPSpeech               GCPSpeechConfig
}

type OllamaConfig struct {
	BaseURL string
}

type VLLMConfig struct {
	BaseURL string
	APIKey  string
}

type OpenAIConfig struct {
	APIKey  string
	BaseURL string
}

type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

type GCPSpeechConfig struct {
	CredentialsFile string
	LanguageCode    string
}

var generationBackends = map[string]bool{
	"ollama":    true,
	"vllm":      true,
	"openai":    true,
	"anthropic": true,
	"mock":      true,
}

var transcriptionBackends = map[string]bool{
	"openai":    true,
	"vllm":      true,
	"gcpspeech": true,
	"mock":      true,
}

// Load reads configuration from environment variables and returns a validated Config.
// A .env file in the working directory is applied first; real environment values win.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	gen, err := parseCandidates(os.Getenv("AI_GENERATION_CANDIDATES"))
	if err != nil {
		return nil, fmt.Errorf("AI_GENERATION_CANDIDATES: %w", err)
	}
	tr, err := parseCandidates(os.Getenv("AI_TRANSCRIPTION_CANDIDATES"))
	if err != nil {
		return nil, fmt.Errorf("AI_TRANSCRIPTION_CANDIDATES: %w", err)
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("LECTURELAB_PORT", 8080),
			Env:                envString("LECTURELAB_ENV", "development"),
			MaxUploadMB:        envInt("MAX_UPLOAD_MB", 200),
			RateLimitPerMinute: envInt("RATE_LIMIT_PER_MINUTE", 30),
			ShutdownTimeout:    envDuration("SHUTDOWN_TIMEOUT", 30*time.Second),
		},
		Artifacts: ArtifactConfig{
			Root: envString("ARTIFACT_ROOT", "./data"),
		},
		Pipeline: PipelineConfig{
			ChunkLength:         envDurationSecs("CHUNK_SECONDS", 60*time.Second),
			FFmpegPath:          envString("FFMPEG_PATH", "ffmpeg"),
			MarkerPattern:       os.Getenv("QUESTION_MARKER_PATTERN"),
			MarkerReplacement:   os.Getenv("QUESTION_MARKER_REPLACEMENT"),
			DefaultLanguage:     envString("DEFAULT_LANGUAGE", "en"),
			DefaultEssayMaximum: envFloat("ESSAY_DEFAULT_MAX_SCORE", 10),
		},
		Registry: RegistryConfig{
			Backend: envString("REGISTRY_BACKEND", "memory"),
			JobTTL:  envDuration("JOB_TTL", 24*time.Hour),
		},
		Redis: RedisConfig{
			URL: os.Getenv("REDIS_URL"),
		},
		AI: AIConfig{
			GenerationCandidates:    gen,
			TranscriptionCandidates: tr,
			InferenceTimeout:        envDurationSecs("AI_INFERENCE_TIMEOUT_SECS", 120*time.Second),
			ProbeTimeout:            envDurationSecs("AI_PROBE_TIMEOUT_SECS", 10*time.Second),
			Pacing:                  envDuration("PROVIDER_PACING", 2*time.Second),
			MaxRetries:              envInt("PROVIDER_MAX_RETRIES", 2),
			Ollama: OllamaConfig{
				BaseURL: envString("OLLAMA_BASE_URL", "http://localhost:11434"),
			},
			VLLM: VLLMConfig{
				BaseURL: envString("VLLM_BASE_URL", "http://localhost:8000"),
				APIKey:  os.Getenv("VLLM_API_KEY"),
			},
			OpenAI: OpenAIConfig{
				APIKey:  os.Getenv("OPENAI_API_KEY"),
				BaseURL: envString("OPENAI_BASE_URL", "https://api.openai.com"),
			},
			Anthropic: AnthropicConfig{
				APIKey:  os.Getenv("ANTHROPIC_API_KEY"),
				BaseURL: envString("ANTHROPIC_BASE_URL", "https://api.anthropic.com"),
			},
			GCPSpeech: GCPSpeechConfig{
				CredentialsFile: os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"),
				LanguageCode:    envString("GCP_SPEECH_LANGUAGE", "en-US"),
			},
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Uses reports whether any candidate of either capability names backend.
func (c AIConfig) Uses(backend string) bool {
	for _, list := range [][]Candidate{c.GenerationCandidates, c.TranscriptionCandidates} {
		for _, cand := range list {
			if cand.Backend == backend {
				return true
			}
		}
	}
	return false
}

func (c *Config) validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("LECTURELAB_PORT must be between 1 and 65535, got %d", c.Server.Port)
	}
	if c.Server.MaxUploadMB <= 0 {
		return fmt.Errorf("MAX_UPLOAD_MB must be positive, got %d", c.Server.MaxUploadMB)
	}

	if secs := c.Pipeline.ChunkLength.Seconds(); secs < 10 || secs > 600 {
		return fmt.Errorf("CHUNK_SECONDS must be between 10 and 600, got %.0f", secs)
	}
	if c.Pipeline.DefaultEssayMaximum <= 0 {
		return fmt.Errorf("ESSAY_DEFAULT_MAX_SCORE must be positive")
	}

	switch c.Registry.Backend {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return fmt.Errorf("REDIS_URL is required when REGISTRY_BACKEND is redis")
		}
	default:
		return fmt.Errorf("REGISTRY_BACKEND must be one of memory, redis; got %q", c.Registry.Backend)
	}

	if len(c.AI.GenerationCandidates) == 0 {
		return fmt.Errorf("AI_GENERATION_CANDIDATES is required")
	}
	if len(c.AI.TranscriptionCandidates) == 0 {
		return fmt.Errorf("AI_TRANSCRIPTION_CANDIDATES is required")
	}
	for _, cand := range c.AI.GenerationCandidates {
		if !generationBackends[cand.Backend] {
			return fmt.Errorf("AI_GENERATION_CANDIDATES: backend %q must be one of ollama, vllm, openai, anthropic, mock", cand.Backend)
		}
	}
	for _, cand := range c.AI.TranscriptionCandidates {
		if !transcriptionBackends[cand.Backend] {
			return fmt.Errorf("AI_TRANSCRIPTION_CANDIDATES: backend %q must be one of openai, vllm, gcpspeech, mock", cand.Backend)
		}
	}

	if c.AI.Uses("openai") && c.AI.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when an openai candidate is configured")
	}
	if c.AI.Uses("anthropic") && c.AI.Anthropic.APIKey == "" {
		return fmt.Errorf("ANTHROPIC_API_KEY is required when an anthropic candidate is configured")
	}
	if c.AI.Pacing < 0 {
		return fmt.Errorf("PROVIDER_PACING must not be negative")
	}
	if c.AI.MaxRetries < 0 {
		return fmt.Errorf("PROVIDER_MAX_RETRIES must not be negative")
	}

	return nil
}

func parseCandidates(raw string) ([]Candidate, error) {
	var out []Candidate
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		backend, model, ok := strings.Cut(part, ":")
		backend = strings.ToLower(strings.TrimSpace(backend))
		model = strings.TrimSpace(model)
		if !ok || backend == "" || model == "" {
			return nil, fmt.Errorf("candidate %q must have the form backend:model", part)
		}
		out = append(out, Candidate{Backend: backend, Model: model})
	}
	return out, nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envFloat(key string, defaultVal float64) float64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return defaultVal
	}
	return f
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
