package config

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"llm": {"openai", "gemini", "anthropic", "ollama", "deepseek", "mistral", "groq"},
	"stt": {"google", "openai"},
	"tts": {"google", "openai"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config]. It is a convenience wrapper around [LoadFromReader] and [Validate].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r and validates the result.
// Useful in tests where configs are constructed from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.TLS != nil {
		if cfg.Server.TLS.CertFile == "" || cfg.Server.TLS.KeyFile == "" {
			errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
		}
	}

	// Provider name validation warns for unknown names instead of failing.
	validateProviderName("llm", cfg.Providers.LLM.Name)
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)

	if cfg.Providers.LLM.Name == "" {
		errs = append(errs, errors.New("providers.llm.name is required"))
	}
	if cfg.Providers.TTS.Name == "" {
		errs = append(errs, errors.New("providers.tts.name is required"))
	}
	if cfg.Providers.STT.Name == "" {
		slog.Warn("providers.stt is not configured; audio input and streaming endpoints will be unavailable")
	}

	// Relay
	if cfg.Relay.UnknownLanguage != "" && !cfg.Relay.UnknownLanguage.IsValid() {
		errs = append(errs, fmt.Errorf("relay.unknown_language %q is invalid; valid values: reject, fallback", cfg.Relay.UnknownLanguage))
	}
	if cfg.Relay.HistoryLimit < 0 {
		errs = append(errs, fmt.Errorf("relay.history_limit %d is negative", cfg.Relay.HistoryLimit))
	}
	if cfg.Relay.Temperature < 0 || cfg.Relay.Temperature > 2 {
		errs = append(errs, fmt.Errorf("relay.temperature %.2f is out of range [0, 2]", cfg.Relay.Temperature))
	}

	// Voice overrides
	for i, v := range cfg.Voices {
		prefix := fmt.Sprintf("voices[%d]", i)
		if v.Language == "" {
			errs = append(errs, fmt.Errorf("%s.language is required", prefix))
		}
		if v.Locale == "" {
			errs = append(errs, fmt.Errorf("%s.locale is required", prefix))
		}
		if v.VoiceID == "" {
			errs = append(errs, fmt.Errorf("%s.voice_id is required", prefix))
		}
		switch v.Gender {
		case "", "female", "male", "neutral":
		default:
			errs = append(errs, fmt.Errorf("%s.gender %q is invalid; valid values: female, male, neutral", prefix, v.Gender))
		}
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}
