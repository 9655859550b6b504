// Package openai provides a TTS provider backed by the OpenAI speech API.
package openai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// Compile-time assertion that Provider satisfies the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

const defaultModel = "gpt-4o-mini-tts"

// openaiVoices is the fixed voice catalogue of the OpenAI speech API.
// OpenAI voices are language-agnostic; the Locale field is therefore empty.
var openaiVoices = []string{
	"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer",
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "tts-1", "gpt-4o-mini-tts").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the default OpenAI API base URL.
func WithBaseURL(url string) Option {
	return func(p *Provider) {
		p.baseURL = url
	}
}

// Provider implements tts.Provider backed by the OpenAI speech endpoint.
// Output is always MP3.
type Provider struct {
	client  oai.Client
	model   string
	baseURL string
}

// New creates a new OpenAI TTS Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{model: defaultModel}
	for _, o := range opts {
		o(p)
	}

	reqOpts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if p.baseURL != "" {
		reqOpts = append(reqOpts, option.WithBaseURL(p.baseURL))
	}
	p.client = oai.NewClient(reqOpts...)
	return p, nil
}

// Synthesize implements tts.Provider. The voice profile's VoiceID selects one
// of the fixed OpenAI voices; anything else, including voice names from other
// vendors' catalogues, falls back to "alloy".
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	if text == "" {
		return nil, errors.New("openai tts: text must not be empty")
	}
	voiceID := resolveVoice(voice.VoiceID)

	resp, err := p.client.Audio.Speech.New(ctx, oai.AudioSpeechNewParams{
		Model:          oai.SpeechModel(p.model),
		Input:          text,
		Voice:          oai.AudioSpeechNewParamsVoice(voiceID),
		ResponseFormat: oai.AudioSpeechNewParamsResponseFormatMP3,
	})
	if err != nil {
		return nil, fmt.Errorf("openai tts: synthesize: %w", err)
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: read audio: %w", err)
	}
	if len(audio) == 0 {
		return nil, errors.New("openai tts: empty audio in response")
	}
	return audio, nil
}

// resolveVoice maps a profile VoiceID onto the fixed catalogue. The table may
// carry another vendor's voice names; those map to "alloy" rather than failing
// every synthesis call upstream.
func resolveVoice(voiceID string) string {
	if slices.Contains(openaiVoices, strings.ToLower(voiceID)) {
		return strings.ToLower(voiceID)
	}
	return "alloy"
}

// ListVoices implements tts.Provider. The OpenAI catalogue is fixed, so this
// never touches the network.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	profiles := make([]types.VoiceProfile, 0, len(openaiVoices))
	for _, v := range openaiVoices {
		profiles = append(profiles, types.VoiceProfile{VoiceID: v})
	}
	return profiles, nil
}

// Encoding implements tts.Provider.
func (p *Provider) Encoding() string { return "audio/mpeg" }
