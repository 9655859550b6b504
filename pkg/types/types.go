// Package types defines the shared types used across all Anshu backend packages.
//
// These types form the lingua franca between the provider interfaces, the turn
// relay, and the server boundary. They are intentionally minimal; each package
// defines its own domain types, but cross-cutting data structures live here to
// avoid circular imports.
package types

import "time"

// Message represents a single message in an LLM conversation history.
type Message struct {
	// Role is one of "system", "user", or "assistant".
	Role string

	// Content is the text content of the message.
	Content string
}

// Transcript represents a speech-to-text result from an STT provider.
// Both partial (interim) and final transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal indicates whether this is a final (authoritative) or partial
	// (interim) transcript. Only final transcripts may start a turn.
	IsFinal bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if the
	// provider does not report confidence.
	Confidence float64

	// Language is the BCP-47 language code detected by the provider, when the
	// provider annotates results with one. Empty otherwise.
	Language string

	// Words contains per-word detail when available (Google STT reports word
	// timings). May be nil for providers that don't support word-level output.
	Words []WordDetail
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// Gender is the synthesis voice gender requested from a TTS provider.
type Gender string

const (
	GenderUnspecified Gender = ""
	GenderFemale      Gender = "female"
	GenderMale        Gender = "male"
	GenderNeutral     Gender = "neutral"
)

// VoiceProfile is the fixed set of synthesis parameters for one language.
// Profiles are immutable after process start and safely shared across turns.
type VoiceProfile struct {
	// Language is the short code the profile is keyed by (e.g., "en", "hi").
	Language string

	// Locale is the full BCP-47 tag sent to the synthesis service (e.g., "hi-IN").
	Locale string

	// VoiceID is the provider-specific voice name (e.g., "hi-IN-Wavenet-A").
	VoiceID string

	// Gender selects the voice gender where the provider distinguishes one.
	Gender Gender
}
