// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g., Google Cloud TTS or
// the OpenAI speech API) and presents a uniform one-shot interface: given the
// final reply text and a voice profile, return the complete audio payload.
//
// Implementations must be safe for concurrent use.
package tts

import (
	"context"

	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// Provider is the abstraction over any TTS backend.
//
// Implementations must be safe for concurrent use; multiple synthesis requests
// may run in parallel (one per concurrent turn).
type Provider interface {
	// Synthesize converts text into one complete audio payload using the given
	// voice profile. The returned bytes are in the provider's configured output
	// encoding (see Encoding).
	//
	// The relay calls Synthesize exactly once per turn, only after generation has
	// produced validated non-empty text, and never retries it: errors are passed
	// through to the caller unmodified apart from wrapping.
	Synthesize(ctx context.Context, text string, voice types.VoiceProfile) ([]byte, error)

	// ListVoices returns the voice profiles available from this provider. The
	// list reflects the provider's current catalogue and may change between
	// calls. Providers without a catalogue API return a fixed list.
	ListVoices(ctx context.Context) ([]types.VoiceProfile, error)

	// Encoding reports the MIME type of the audio produced by Synthesize
	// (e.g., "audio/mpeg", "audio/L16"). Constant for the provider's lifetime.
	Encoding() string
}
