// Package mock provides test doubles for the stt.Provider and
// stt.SessionHandle interfaces.
//
// Session is built for the streaming relay tests: the test feeds transcripts
// through EmitFinal/EmitPartial and asserts on the recorded SendAudio chunks
// and Close calls.
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// TranscribeResult is returned by Transcribe when TranscribeErr is nil.
	TranscribeResult *types.Transcript

	// TranscribeErr, if non-nil, is returned as the error from Transcribe.
	TranscribeErr error

	// Session is returned by StartStream when StartStreamErr is nil. When nil,
	// StartStream creates and returns a fresh Session.
	Session *Session

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// TranscribeCalls records the audio payload length of each Transcribe call.
	TranscribeCalls []int

	// StartStreamCalls records the config of each StartStream call.
	StartStreamCalls []stt.StreamConfig
}

var _ stt.Provider = (*Provider)(nil)

// Transcribe implements stt.Provider.
func (p *Provider) Transcribe(_ context.Context, audio []byte, _ stt.RecognizeConfig) (*types.Transcript, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.TranscribeCalls = append(p.TranscribeCalls, len(audio))
	if p.TranscribeErr != nil {
		return nil, p.TranscribeErr
	}
	return p.TranscribeResult, nil
}

// StartStream implements stt.Provider.
func (p *Provider) StartStream(_ context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.StartStreamCalls = append(p.StartStreamCalls, cfg)
	if p.StartStreamErr != nil {
		return nil, p.StartStreamErr
	}
	if p.Session == nil {
		p.Session = NewSession()
	}
	return p.Session, nil
}

// Session is a mock implementation of stt.SessionHandle.
type Session struct {
	mu sync.Mutex

	partials chan types.Transcript
	finals   chan types.Transcript

	// SendAudioErr, if non-nil, is returned by SendAudio.
	SendAudioErr error

	// Chunks records every chunk passed to SendAudio.
	Chunks [][]byte

	// CloseCalls counts Close invocations.
	CloseCalls int

	closed bool
}

var _ stt.SessionHandle = (*Session)(nil)

// NewSession creates a Session with buffered transcript channels.
func NewSession() *Session {
	return &Session{
		partials: make(chan types.Transcript, 16),
		finals:   make(chan types.Transcript, 16),
	}
}

// SendAudio implements stt.SessionHandle.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errors.New("mock stt: session is closed")
	}
	if s.SendAudioErr != nil {
		return s.SendAudioErr
	}
	cp := make([]byte, len(chunk))
	copy(cp, chunk)
	s.Chunks = append(s.Chunks, cp)
	return nil
}

// Partials implements stt.SessionHandle.
func (s *Session) Partials() <-chan types.Transcript { return s.partials }

// Finals implements stt.SessionHandle.
func (s *Session) Finals() <-chan types.Transcript { return s.finals }

// Close implements stt.SessionHandle. The first call closes both channels.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.CloseCalls++
	if !s.closed {
		s.closed = true
		close(s.partials)
		close(s.finals)
	}
	return nil
}

// EmitFinal delivers a final transcript to the Finals channel.
func (s *Session) EmitFinal(text string) {
	s.finals <- types.Transcript{Text: text, IsFinal: true}
}

// EmitPartial delivers an interim transcript to the Partials channel.
func (s *Session) EmitPartial(text string) {
	s.partials <- types.Transcript{Text: text, IsFinal: false}
}

// ChunkCount returns the number of chunks recorded so far.
func (s *Session) ChunkCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.Chunks)
}

// Closed reports whether Close has been called at least once.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}
