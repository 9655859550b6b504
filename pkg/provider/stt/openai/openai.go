// Package openai provides a batch-only STT provider backed by the OpenAI
// audio transcription API. Streaming sessions are not supported; StartStream
// returns stt.ErrStreamingNotSupported.
package openai

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"strings"

	oai "github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// Compile-time assertion that Provider satisfies the stt.Provider interface.
var _ stt.Provider = (*Provider)(nil)

const defaultModel = "whisper-1"

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the transcription model (e.g., "whisper-1",
// "gpt-4o-mini-transcribe").
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

// Provider implements the batch half of stt.Provider using OpenAI.
type Provider struct {
	client  oai.Client
	model   string
	baseURL string
}

// New creates a new OpenAI STT Provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai stt: apiKey must not be empty")
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

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.RecognizeConfig) (*types.Transcript, error) {
	if len(audio) == 0 {
		return nil, errors.New("openai stt: audio must not be empty")
	}

	filename, contentType := uploadNames(cfg.Encoding)
	params := oai.AudioTranscriptionNewParams{
		Model: oai.AudioModel(p.model),
		File:  oai.File(bytes.NewReader(audio), filename, contentType),
	}
	if cfg.Language != "" {
		// Whisper expects the bare ISO-639-1 subtag ("hi"), not a full locale.
		params.Language = oai.String(primarySubtag(cfg.Language))
	}

	resp, err := p.client.Audio.Transcriptions.New(ctx, params)
	if err != nil {
		return nil, fmt.Errorf("openai stt: transcribe: %w", err)
	}
	if strings.TrimSpace(resp.Text) == "" {
		return nil, errors.New("openai stt: no speech recognized")
	}

	return &types.Transcript{
		Text:    strings.TrimSpace(resp.Text),
		IsFinal: true,
	}, nil
}

// StartStream implements stt.Provider. OpenAI has no public streaming
// transcription endpoint, so this always fails.
func (p *Provider) StartStream(context.Context, stt.StreamConfig) (stt.SessionHandle, error) {
	return nil, stt.ErrStreamingNotSupported
}

// uploadNames maps our symbolic encoding onto a filename/content-type pair for
// the multipart upload. The filename extension is what OpenAI sniffs.
func uploadNames(encoding string) (filename, contentType string) {
	switch strings.ToLower(encoding) {
	case "mp3":
		return "audio.mp3", "audio/mpeg"
	case "webm":
		return "audio.webm", "audio/webm"
	case "ogg", "opus":
		return "audio.ogg", "audio/ogg"
	case "flac":
		return "audio.flac", "audio/flac"
	default:
		return "audio.wav", "audio/wav"
	}
}

// primarySubtag reduces a BCP-47 tag to its primary language subtag.
func primarySubtag(lang string) string {
	if i := strings.IndexByte(lang, '-'); i > 0 {
		return lang[:i]
	}
	return lang
}
