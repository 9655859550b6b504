// Package relay implements the turn relay: one unit of user input is turned
// into generated reply text plus synthesized audio.
//
// A turn moves through a fixed pipeline: validate, resolve the voice profile,
// generate under the bounded retry policy, post-process, and synthesize, with
// strict ordering: synthesis only ever consumes the validated post-processed
// text of the same turn, and only after generation succeeded. Generation
// failures are retried per [resilience.RetryPolicy]; synthesis failures pass
// through immediately.
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AnshuAditya03/Anshu-backend/internal/observe"
	"github.com/AnshuAditya03/Anshu-backend/internal/resilience"
	"github.com/AnshuAditya03/Anshu-backend/internal/voice"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// ErrEmptyInput is returned when the input text is empty after trimming.
var ErrEmptyInput = errors.New("relay: input text is empty")

// ErrEmptyCompletion is returned when the model's reply is empty after
// post-processing. The upstream gave a non-answer, so no audio is produced.
var ErrEmptyCompletion = errors.New("relay: model returned empty text")

// defaultSystemPrompt is the instruction wrapped around every generation call.
// The two verbs embed the spoken and target locales resolved for this turn.
const defaultSystemPrompt = "You are a friendly voice assistant. " +
	"The user speaks the language with code %s; always reply in the language with code %s. " +
	"Keep replies short and conversational, as they will be spoken aloud. " +
	"Reply with plain text only, without markdown or code fences."

// Request is one unit of user input entering the relay.
type Request struct {
	// Text is the user's utterance (typed or transcribed).
	Text string

	// SpokenLanguage is the code of the language the input is in. Optional;
	// empty means the table's default.
	SpokenLanguage string

	// TargetLanguage is the code of the language to reply and speak in.
	// Optional; empty means the table's default. Unknown codes are handled per
	// the voice table's miss policy.
	TargetLanguage string
}

// Result is the complete outcome of a successful turn. Callers always receive
// either a full Result or an error, never a partial mix.
type Result struct {
	// InputText is the normalized (trimmed) input that drove the turn.
	InputText string

	// GeneratedText is the post-processed model reply the audio was
	// synthesized from.
	GeneratedText string

	// Audio is the raw synthesized audio payload.
	Audio []byte

	// AudioEncoding is the MIME type of Audio.
	AudioEncoding string

	// Voice is the profile the audio was synthesized with.
	Voice types.VoiceProfile
}

// Option is a functional option for configuring a Relay.
type Option func(*Relay)

// WithRetryPolicy overrides the generation retry policy. Mostly used by tests
// to inject a recording sleep.
func WithRetryPolicy(p resilience.RetryPolicy) Option {
	return func(r *Relay) { r.retry = p }
}

// WithSystemPrompt replaces the default system instruction. A template with
// two %s verbs receives the spoken and target locale tags, in that order;
// a plain string without verbs is sent verbatim.
func WithSystemPrompt(tmpl string) Option {
	return func(r *Relay) { r.systemPrompt = tmpl }
}

// WithTemperature sets the sampling temperature for generation calls.
func WithTemperature(t float64) Option {
	return func(r *Relay) { r.temperature = t }
}

// WithMetrics attaches metric instruments. When nil (the default), no metrics
// are recorded.
func WithMetrics(m *observe.Metrics) Option {
	return func(r *Relay) { r.metrics = m }
}

// Relay executes turns against a generation and a synthesis provider.
// Safe for concurrent use; per-session history serialization is the session's
// own concern.
type Relay struct {
	llmP   llm.Provider
	ttsP   tts.Provider
	voices *voice.Table

	retry        resilience.RetryPolicy
	systemPrompt string
	temperature  float64
	metrics      *observe.Metrics
}

// New constructs a Relay with the standard retry policy (3 attempts, 1s/2s
// backoff). Options are applied after defaults.
func New(llmP llm.Provider, ttsP tts.Provider, voices *voice.Table, opts ...Option) *Relay {
	r := &Relay{
		llmP:         llmP,
		ttsP:         ttsP,
		voices:       voices,
		systemPrompt: defaultSystemPrompt,
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Process executes one turn. sess may be nil for one-shot callers (no history
// context); when non-nil, its snapshot is passed in full to the generation
// call and the exchange is appended only after the whole turn succeeded.
func (r *Relay) Process(ctx context.Context, sess *Session, req Request) (*Result, error) {
	input := strings.TrimSpace(req.Text)
	if input == "" {
		return nil, ErrEmptyInput
	}

	voiceProfile, err := r.voices.Resolve(req.TargetLanguage)
	if err != nil {
		return nil, err
	}
	spoken, err := r.voices.Resolve(req.SpokenLanguage)
	if err != nil {
		// The spoken language only flavours the prompt; an unknown code here is
		// not worth failing the turn under the fallback policy, but under the
		// strict policy it is an input error like any other.
		return nil, err
	}

	genReq := r.buildRequest(sess, input, spoken, voiceProfile)

	var completion *llm.CompletionResponse
	start := time.Now()
	err = r.retry.Do(ctx, "generate", func(ctx context.Context) error {
		resp, cErr := r.llmP.Complete(ctx, genReq)
		if cErr != nil {
			r.countRetryableFailure(ctx)
			return cErr
		}
		completion = resp
		return nil
	})
	r.recordStage(ctx, r.metricLLM(), time.Since(start), err)
	if err != nil {
		return nil, err
	}

	generated := Postprocess(completion.Content)
	if generated == "" {
		return nil, ErrEmptyCompletion
	}

	start = time.Now()
	audio, err := r.ttsP.Synthesize(ctx, generated, voiceProfile)
	r.recordStage(ctx, r.metricTTS(), time.Since(start), err)
	if err != nil {
		return nil, fmt.Errorf("relay: synthesize: %w", err)
	}

	if sess != nil {
		sess.Append(input, generated)
	}
	r.countTurn(ctx)

	slog.Debug("turn completed",
		"input_chars", len(input),
		"generated_chars", len(generated),
		"audio_bytes", len(audio),
		"language", voiceProfile.Language,
	)

	return &Result{
		InputText:     input,
		GeneratedText: generated,
		Audio:         audio,
		AudioEncoding: r.ttsP.Encoding(),
		Voice:         voiceProfile,
	}, nil
}

// IsInputError reports whether err stems from the caller's input rather than
// an upstream service. The boundary maps these to 4xx responses.
func IsInputError(err error) bool {
	return errors.Is(err, ErrEmptyInput) || errors.Is(err, voice.ErrUnknownLanguage)
}

// buildRequest assembles the generation request: system instruction, full
// session history, then the new user message.
func (r *Relay) buildRequest(sess *Session, input string, spoken, target types.VoiceProfile) llm.CompletionRequest {
	var history []types.Message
	if sess != nil {
		history = sess.Snapshot()
	}

	messages := make([]types.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, types.Message{Role: "user", Content: input})

	return llm.CompletionRequest{
		SystemPrompt: r.systemInstruction(spoken, target),
		Messages:     messages,
		Temperature:  r.temperature,
	}
}

// systemInstruction renders the system prompt. Templates without locale verbs
// pass through untouched so plain instructions are not mangled by Sprintf.
func (r *Relay) systemInstruction(spoken, target types.VoiceProfile) string {
	if strings.Count(r.systemPrompt, "%s") == 0 {
		return r.systemPrompt
	}
	return fmt.Sprintf(r.systemPrompt, spoken.Locale, target.Locale)
}

// ---- metrics plumbing (nil-safe) ----

func (r *Relay) metricLLM() metric.Float64Histogram {
	if r.metrics == nil {
		return nil
	}
	return r.metrics.LLMDuration
}

func (r *Relay) metricTTS() metric.Float64Histogram {
	if r.metrics == nil {
		return nil
	}
	return r.metrics.TTSDuration
}

func (r *Relay) recordStage(ctx context.Context, h metric.Float64Histogram, d time.Duration, err error) {
	if h == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	h.Record(ctx, d.Seconds(), metric.WithAttributes(attribute.String("status", status)))
}

func (r *Relay) countRetryableFailure(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	r.metrics.GenerationFailures.Add(ctx, 1)
}

func (r *Relay) countTurn(ctx context.Context) {
	if r.metrics == nil {
		return
	}
	r.metrics.TurnsTotal.Add(ctx, 1)
}
