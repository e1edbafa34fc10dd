// Package config reads process settings from the environment, after loading
// an optional .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/subosito/gotenv"
)

const (
	ProviderGemini = "gemini"
	ProviderEcho   = "echo"
)

type Config struct {
	// Model provider
	LLMProvider      string `env:"LLM_PROVIDER" envDefault:"gemini"`
	GeminiAPIKey     string `env:"GEMINI_API_KEY"`
	GeminiModel      string `env:"GEMINI_MODEL" envDefault:"gemini-2.0-flash-exp"`
	GeminiBaseURL    string `env:"GEMINI_BASE_URL"`
	GeminiAPIVersion string `env:"GEMINI_API_VERSION" envDefault:"v1beta"`
	PromptsPath      string `env:"PROMPTS_PATH"`

	// Server
	HTTPAddr       string        `env:"HTTP_ADDR" envDefault:":8080"`
	JWTSecret      string        `env:"JWT_SECRET"`
	JWTExpiry      time.Duration `env:"JWT_EXPIRY" envDefault:"24h"`
	MaxUploadBytes int64         `env:"MAX_UPLOAD_BYTES" envDefault:"20971520"`
	MaxConcurrent  int           `env:"MAX_CONCURRENT" envDefault:"10"`
	MaxImagePixels int64         `env:"MAX_IMAGE_PIXELS" envDefault:"100000000"`

	// Voice
	SpeechEnabled    bool   `env:"SPEECH_ENABLED" envDefault:"false"`
	SpeechLanguage   string `env:"SPEECH_LANGUAGE" envDefault:"en-US"`
	SpeechSampleRate int32  `env:"SPEECH_SAMPLE_RATE" envDefault:"16000"`
	TTSEnabled       bool   `env:"TTS_ENABLED" envDefault:"false"`
	TTSLanguage      string `env:"TTS_LANGUAGE" envDefault:"en-US"`

	Debug bool `env:"DEBUG" envDefault:"false"`
}

// Load reads envFiles (".env" when none are given) into the environment,
// without overriding variables already set, then parses Config. Missing env
// files are ignored.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, file := range envFiles {
		if err := gotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	switch c.LLMProvider {
	case ProviderGemini, ProviderEcho:
	default:
		return fmt.Errorf("unknown LLM_PROVIDER %q", c.LLMProvider)
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.MaxConcurrent <= 0 {
		return errors.New("MAX_CONCURRENT must be positive")
	}
	if c.MaxImagePixels <= 0 {
		return errors.New("MAX_IMAGE_PIXELS must be positive")
	}
	if c.JWTExpiry <= 0 {
		return errors.New("JWT_EXPIRY must be positive")
	}
	return nil
}
