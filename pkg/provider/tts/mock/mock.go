// Package mock provides a test double for the tts.Provider interface.
//
// Use Provider in unit tests to verify that the relay synthesizes exactly the
// validated post-processed text and to detect synthesis calls that must not
// happen (e.g., after generation failed).
package mock

import (
	"context"
	"sync"

	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// SynthesizeCall records a single invocation of Synthesize.
type SynthesizeCall struct {
	// Text is the text passed to Synthesize.
	Text string
	// Voice is the voice profile passed to Synthesize.
	Voice types.VoiceProfile
}

// Provider is a mock implementation of tts.Provider.
// Zero values cause methods to return Audio (nil by default) and nil errors.
type Provider struct {
	mu sync.Mutex

	// Audio is returned by Synthesize when Err is nil.
	Audio []byte

	// Err, if non-nil, is returned as the error from Synthesize.
	Err error

	// Voices is returned by ListVoices.
	Voices []types.VoiceProfile

	// ContentType is returned by Encoding. Defaults to "audio/mpeg".
	ContentType string

	// Calls records every invocation of Synthesize in order.
	Calls []SynthesizeCall
}

var _ tts.Provider = (*Provider)(nil)

// Synthesize implements tts.Provider.
func (p *Provider) Synthesize(_ context.Context, text string, voice types.VoiceProfile) ([]byte, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Calls = append(p.Calls, SynthesizeCall{Text: text, Voice: voice})
	if p.Err != nil {
		return nil, p.Err
	}
	return p.Audio, nil
}

// ListVoices implements tts.Provider.
func (p *Provider) ListVoices(_ context.Context) ([]types.VoiceProfile, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.Voices, nil
}

// Encoding implements tts.Provider.
func (p *Provider) Encoding() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ContentType == "" {
		return "audio/mpeg"
	}
	return p.ContentType
}

// CallCount returns the number of Synthesize invocations so far.
func (p *Provider) CallCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.Calls)
}
