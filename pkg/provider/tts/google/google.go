// Package google provides a TTS provider backed by the Google Cloud
// Text-to-Speech API. It implements the tts.Provider interface.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"google.golang.org/api/option"

	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// Compile-time assertion that Provider satisfies the tts.Provider interface.
var _ tts.Provider = (*Provider)(nil)

const (
	defaultSampleRate = 24000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithCredentialsFile sets the path to a Google service account JSON key.
// Without it the client uses Application Default Credentials.
func WithCredentialsFile(path string) Option {
	return func(p *Provider) {
		p.credentialsFile = path
	}
}

// WithEncoding sets the output audio encoding: "mp3" or "linear16".
// Default is "mp3".
func WithEncoding(enc string) Option {
	return func(p *Provider) {
		p.encoding = enc
	}
}

// WithSampleRate sets the output sample rate in Hz. Default is 24000.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements tts.Provider backed by Google Cloud Text-to-Speech.
type Provider struct {
	client          *texttospeech.Client
	credentialsFile string
	encoding        string
	sampleRate      int
}

// New creates a new Google TTS Provider and establishes the underlying client.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{
		encoding:   "mp3",
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}

	var clientOpts []option.ClientOption
	if p.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(p.credentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google tts: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	if text == "" {
		return nil, errors.New("google tts: text must not be empty")
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: voice.Locale,
			Name:         voice.VoiceID,
			SsmlGender:   toSsmlGender(voice.Gender),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding:   p.audioEncoding(),
			SampleRateHertz: int32(p.sampleRate),
		},
	}

	resp, err := p.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google tts: synthesize: %w", err)
	}
	if len(resp.AudioContent) == 0 {
		return nil, errors.New("google tts: empty audio content in response")
	}
	return resp.AudioContent, nil
}

// ListVoices implements tts.Provider. It returns the full upstream catalogue.
func (p *Provider) ListVoices(ctx context.Context) ([]types.VoiceProfile, error) {
	resp, err := p.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{})
	if err != nil {
		return nil, fmt.Errorf("google tts: list voices: %w", err)
	}

	profiles := make([]types.VoiceProfile, 0, len(resp.Voices))
	for _, v := range resp.Voices {
		locale := ""
		if len(v.LanguageCodes) > 0 {
			locale = v.LanguageCodes[0]
		}
		profiles = append(profiles, types.VoiceProfile{
			Language: shortCode(locale),
			Locale:   locale,
			VoiceID:  v.Name,
			Gender:   fromSsmlGender(v.SsmlGender),
		})
	}
	return profiles, nil
}

// Encoding implements tts.Provider.
func (p *Provider) Encoding() string {
	if p.audioEncoding() == texttospeechpb.AudioEncoding_LINEAR16 {
		return "audio/L16"
	}
	return "audio/mpeg"
}

// Close releases the underlying gRPC client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// ---- helpers ----

func (p *Provider) audioEncoding() texttospeechpb.AudioEncoding {
	if strings.EqualFold(p.encoding, "linear16") {
		return texttospeechpb.AudioEncoding_LINEAR16
	}
	return texttospeechpb.AudioEncoding_MP3
}

func toSsmlGender(g types.Gender) texttospeechpb.SsmlVoiceGender {
	switch g {
	case types.GenderFemale:
		return texttospeechpb.SsmlVoiceGender_FEMALE
	case types.GenderMale:
		return texttospeechpb.SsmlVoiceGender_MALE
	case types.GenderNeutral:
		return texttospeechpb.SsmlVoiceGender_NEUTRAL
	default:
		return texttospeechpb.SsmlVoiceGender_SSML_VOICE_GENDER_UNSPECIFIED
	}
}

func fromSsmlGender(g texttospeechpb.SsmlVoiceGender) types.Gender {
	switch g {
	case texttospeechpb.SsmlVoiceGender_FEMALE:
		return types.GenderFemale
	case texttospeechpb.SsmlVoiceGender_MALE:
		return types.GenderMale
	case texttospeechpb.SsmlVoiceGender_NEUTRAL:
		return types.GenderNeutral
	default:
		return types.GenderUnspecified
	}
}

// shortCode reduces a BCP-47 tag to its primary language subtag ("hi-IN" → "hi").
func shortCode(locale string) string {
	if i := strings.IndexByte(locale, '-'); i > 0 {
		return locale[:i]
	}
	return locale
}
