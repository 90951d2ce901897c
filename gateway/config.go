package gateway

import (
	"time"

	"github.com/jonwraymond/llmgate/admission"
	"github.com/jonwraymond/llmgate/resilience"
)

// ClassConfig holds the limiter settings for one operation class.
type ClassConfig struct {
	// RequestsPerMinute is the maximum dispatch rate for the class.
	RequestsPerMinute int

	// MaxConcurrent caps simultaneously in-flight downstream calls.
	MaxConcurrent int

	// Timeout bounds each individual downstream attempt.
	Timeout time.Duration

	// Retry configures the backoff policy for the class.
	Retry resilience.RetryConfig

	// Identifier is the circuit-breaker identifier for the class's
	// downstream endpoint, e.g. "chat.completions".
	Identifier string

	// Service is the degradation-manager service name for the class.
	// Defaults to the class name.
	Service string
}

// Config configures an Executor.
type Config struct {
	// Classes holds per-class limiter settings. Missing classes get
	// DefaultConfig values.
	Classes map[admission.OperationClass]ClassConfig

	// Breaker is the shared circuit-breaker configuration applied to
	// every identifier.
	Breaker resilience.CircuitBreakerConfig
}

// DefaultConfig returns the production limiter settings: chat is the
// high-volume class; image and audio calls are slower and scarcer.
func DefaultConfig() Config {
	return Config{
		Classes: map[admission.OperationClass]ClassConfig{
			admission.ClassChat: {
				RequestsPerMinute: 60,
				MaxConcurrent:     5,
				Timeout:           60 * time.Second,
				Retry:             resilience.DefaultRetryConfig(),
				Identifier:        "chat.completions",
				Service:           "chat",
			},
			admission.ClassImage: {
				RequestsPerMinute: 15,
				MaxConcurrent:     3,
				Timeout:           90 * time.Second,
				Retry:             resilience.DefaultRetryConfig(),
				Identifier:        "images.generate",
				Service:           "image",
			},
			admission.ClassSpeech: {
				RequestsPerMinute: 30,
				MaxConcurrent:     3,
				Timeout:           60 * time.Second,
				Retry:             resilience.DefaultRetryConfig(),
				Identifier:        "audio.speech",
				Service:           "speech",
			},
			admission.ClassTranscription: {
				RequestsPerMinute: 30,
				MaxConcurrent:     3,
				Timeout:           90 * time.Second,
				Retry:             resilience.DefaultRetryConfig(),
				Identifier:        "audio.transcriptions",
				Service:           "transcription",
			},
		},
	}
}

// classConfig resolves the settings for a class, falling back to defaults.
func (c Config) classConfig(class admission.OperationClass) ClassConfig {
	if cfg, ok := c.Classes[class]; ok {
		return withClassDefaults(class, cfg)
	}
	if cfg, ok := DefaultConfig().Classes[class]; ok {
		return cfg
	}
	return withClassDefaults(class, ClassConfig{})
}

func withClassDefaults(class admission.OperationClass, cfg ClassConfig) ClassConfig {
	if cfg.RequestsPerMinute <= 0 {
		cfg.RequestsPerMinute = resilience.DefaultRequestsPerMinute
	}
	if cfg.MaxConcurrent <= 0 {
		cfg.MaxConcurrent = 3
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.Identifier == "" {
		cfg.Identifier = string(class)
	}
	if cfg.Service == "" {
		cfg.Service = string(class)
	}
	return cfg
}
