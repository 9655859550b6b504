// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a transcription service (e.g., Google Cloud
// Speech-to-Text or the OpenAI audio API) and exposes two entry points: a
// batch Transcribe call for complete audio files, and StartStream for live
// transcription. The central streaming abstraction is SessionHandle: once
// opened, a session accepts raw audio chunks and emits two streams of
// Transcript values: low-latency partials and authoritative finals.
//
// Implementations must be safe for concurrent use. Audio input and transcript
// output channels are goroutine-safe by construction.
package stt

import (
	"context"
	"errors"

	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// ErrStreamingNotSupported is returned by StartStream for providers that only
// implement batch transcription.
var ErrStreamingNotSupported = errors.New("stt: streaming transcription not supported")

// RecognizeConfig describes the audio format and recognition hints for a batch
// Transcribe call.
type RecognizeConfig struct {
	// SampleRate is the audio sample rate in Hz. Zero lets the provider infer it
	// from the container format where possible.
	SampleRate int

	// Language is the BCP-47 language tag for recognition (e.g., "en-US",
	// "hi-IN"). An empty string lets the provider auto-detect, if supported.
	Language string

	// Encoding names the audio container/codec ("linear16", "webm", "mp3", …).
	// Providers map it onto their own encoding enums; empty means provider default.
	Encoding string
}

// StreamConfig describes the audio format for a new streaming STT session.
// All fields must be compatible with what the underlying provider supports.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz (e.g., 16000).
	SampleRate int

	// Channels is the number of audio channels. 1 = mono (required by most
	// providers).
	Channels int

	// Language is the BCP-47 language tag for recognition.
	Language string

	// InterimResults requests low-latency partial transcripts in addition to
	// finals.
	InterimResults bool
}

// SessionHandle represents an open STT streaming session. It is an interface
// so that test code can provide mock implementations without a live provider
// connection.
//
// Callers must call Close when the session is no longer needed, in particular
// when the client connection that feeds it goes away. Failing to do so leaks
// goroutines and network streams inside the provider implementation.
// All methods must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw audio bytes to the provider for
	// transcription. Chunks are forwarded in arrival order without buffering or
	// reordering. Calling SendAudio after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials returns a read-only channel that emits low-latency interim
	// Transcript values. Suitable for UI indicators only; partials never start
	// a turn. The channel is closed when the session ends.
	Partials() <-chan types.Transcript

	// Finals returns a read-only channel that emits authoritative Transcript
	// values once the provider has committed to an utterance. These are the
	// values handed to the turn relay. The channel is closed when the session
	// ends.
	Finals() <-chan types.Transcript

	// Close terminates the session, flushes pending audio, and releases all
	// associated resources. After Close returns, the Partials and Finals
	// channels will be closed. Calling Close more than once is safe and
	// returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
//
// Implementations must be safe for concurrent use. Multiple sessions may be
// open simultaneously (one per streaming client connection).
type Provider interface {
	// Transcribe recognizes a complete audio payload in one call and returns the
	// final transcript. Failures are surfaced immediately; the relay never
	// retries transcription.
	Transcribe(ctx context.Context, audio []byte, cfg RecognizeConfig) (*types.Transcript, error)

	// StartStream opens a new streaming transcription session with the given
	// audio format. The returned SessionHandle is ready to accept audio
	// immediately. Providers without a streaming API return
	// [ErrStreamingNotSupported].
	//
	// The caller owns the SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
