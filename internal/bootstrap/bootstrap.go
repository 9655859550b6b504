// Package bootstrap wires configuration into live providers and the voice
// table. It is shared by the server and chat commands.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"

	anyllmlib "github.com/mozilla-ai/any-llm-go"

	"github.com/AnshuAditya03/Anshu-backend/internal/config"
	"github.com/AnshuAditya03/Anshu-backend/internal/voice"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm/anyllm"
	oaillm "github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm/openai"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt"
	gstt "github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt/google"
	oaistt "github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt/openai"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts"
	gtts "github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts/google"
	oaitts "github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts/openai"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// Providers bundles the instantiated provider set. STT is nil when no STT
// provider is configured.
type Providers struct {
	LLM llm.Provider
	STT stt.Provider
	TTS tts.Provider
}

// RegisterBuiltins wires all built-in provider factories into reg. Factories
// needing a context (the Google clients open gRPC connections at construction
// time) capture ctx.
func RegisterBuiltins(ctx context.Context, reg *config.Registry) {
	// The any-llm backends all share the same pattern: optional APIKey +
	// optional BaseURL.
	for _, providerName := range []string{
		"gemini", "anthropic", "deepseek", "mistral", "groq",
	} {
		reg.RegisterLLM(providerName, func(entry config.ProviderEntry) (llm.Provider, error) {
			var opts []anyllmlib.Option
			if entry.APIKey != "" {
				opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
			}
			if entry.BaseURL != "" {
				opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
			}
			return anyllm.New(providerName, entry.Model, opts...)
		})
	}

	// ollama is a local server; it uses BaseURL for the address, not an API key.
	reg.RegisterLLM("ollama", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []anyllmlib.Option
		if entry.BaseURL != "" {
			opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
		}
		return anyllm.NewOllama(entry.Model, opts...)
	})

	// openai goes through the native SDK for organization support.
	reg.RegisterLLM("openai", func(entry config.ProviderEntry) (llm.Provider, error) {
		var opts []oaillm.Option
		if entry.BaseURL != "" {
			opts = append(opts, oaillm.WithBaseURL(entry.BaseURL))
		}
		if org := optString(entry.Options, "organization"); org != "" {
			opts = append(opts, oaillm.WithOrganization(org))
		}
		return oaillm.New(entry.APIKey, entry.Model, opts...)
	})

	reg.RegisterSTT("google", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []gstt.Option
		if creds := optString(entry.Options, "credentials_file"); creds != "" {
			opts = append(opts, gstt.WithCredentialsFile(creds))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, gstt.WithLanguage(lang))
		}
		return gstt.New(ctx, opts...)
	})

	reg.RegisterSTT("openai", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []oaistt.Option
		if entry.Model != "" {
			opts = append(opts, oaistt.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaistt.WithBaseURL(entry.BaseURL))
		}
		return oaistt.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("google", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []gtts.Option
		if creds := optString(entry.Options, "credentials_file"); creds != "" {
			opts = append(opts, gtts.WithCredentialsFile(creds))
		}
		if enc := optString(entry.Options, "encoding"); enc != "" {
			opts = append(opts, gtts.WithEncoding(enc))
		}
		return gtts.New(ctx, opts...)
	})

	reg.RegisterTTS("openai", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []oaitts.Option
		if entry.Model != "" {
			opts = append(opts, oaitts.WithModel(entry.Model))
		}
		if entry.BaseURL != "" {
			opts = append(opts, oaitts.WithBaseURL(entry.BaseURL))
		}
		return oaitts.New(entry.APIKey, opts...)
	})
}

// BuildProviders instantiates all providers named in cfg using the registry.
// LLM and TTS are required; STT is optional.
func BuildProviders(cfg *config.Config, reg *config.Registry) (*Providers, error) {
	ps := &Providers{}

	p, err := reg.CreateLLM(cfg.Providers.LLM)
	if err != nil {
		return nil, fmt.Errorf("create llm provider %q: %w", cfg.Providers.LLM.Name, err)
	}
	ps.LLM = p
	slog.Info("provider created", "kind", "llm", "name", cfg.Providers.LLM.Name)

	t, err := reg.CreateTTS(cfg.Providers.TTS)
	if err != nil {
		return nil, fmt.Errorf("create tts provider %q: %w", cfg.Providers.TTS.Name, err)
	}
	ps.TTS = t
	slog.Info("provider created", "kind", "tts", "name", cfg.Providers.TTS.Name)

	if name := cfg.Providers.STT.Name; name != "" {
		s, err := reg.CreateSTT(cfg.Providers.STT)
		if err != nil {
			return nil, fmt.Errorf("create stt provider %q: %w", name, err)
		}
		ps.STT = s
		slog.Info("provider created", "kind", "stt", "name", name)
	}

	return ps, nil
}

// BuildVoiceTable combines the built-in voice catalogue with the configured
// overrides and miss behaviour.
func BuildVoiceTable(cfg *config.Config) (*voice.Table, error) {
	policy := voice.MissReject
	if cfg.Relay.UnknownLanguage == config.MissFallback {
		policy = voice.MissFallback
	}

	overrides := make([]types.VoiceProfile, 0, len(cfg.Voices))
	for _, v := range cfg.Voices {
		overrides = append(overrides, types.VoiceProfile{
			Language: v.Language,
			Locale:   v.Locale,
			VoiceID:  v.VoiceID,
			Gender:   types.Gender(v.Gender),
		})
	}

	return voice.NewTable(cfg.Relay.DefaultLanguage, policy, overrides)
}

// optString extracts a string value from a provider Options map. Returns ""
// if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	if opts == nil {
		return ""
	}
	v, ok := opts[key]
	if !ok {
		return ""
	}
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return s
}
