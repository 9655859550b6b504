package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/coder/websocket"

	"github.com/AnshuAditya03/Anshu-backend/internal/relay"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// startFrame is the first (JSON) frame a streaming client must send.
type startFrame struct {
	SessionID      string `json:"session_id,omitempty"`
	SpokenLanguage string `json:"spoken_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
	SampleRate     int    `json:"sample_rate"`
	InterimResults bool   `json:"interim_results,omitempty"`
}

// turnFrame is the JSON frame emitted for each completed turn. The synthesized
// audio follows as one binary frame immediately after.
type turnFrame struct {
	Type          string `json:"type"`
	InputText     string `json:"input_text"`
	GeneratedText string `json:"generated_text"`
	AudioEncoding string `json:"audio_encoding"`
	Language      string `json:"language"`
}

// partialFrame is the JSON frame emitted for interim transcripts.
type partialFrame struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// errorFrame is the JSON frame emitted when a turn fails. The stream stays
// open; the client may keep talking.
type errorFrame struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// streamEmitter abstracts the client side of a streaming session so the turn
// loop can be exercised without a live websocket.
type streamEmitter interface {
	EmitPartial(ctx context.Context, text string) error
	EmitTurn(ctx context.Context, res *relay.Result) error
	EmitError(ctx context.Context, code, msg string) error
}

// handleStream upgrades to a websocket and relays a live conversation: the
// client streams audio frames up, the server streams transcript, turn, and
// audio frames back.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	if s.deps.STT == nil {
		writeError(w, http.StatusNotImplemented, "stt_unavailable", "no speech-to-text provider is configured")
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "err", err)
		return
	}
	defer conn.CloseNow()

	ctx := r.Context()

	start, err := readStartFrame(ctx, conn)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, err.Error())
		return
	}

	target, err := s.deps.Voices.Resolve(start.TargetLanguage)
	if err != nil {
		_ = conn.Close(websocket.StatusPolicyViolation, "unknown target language")
		return
	}
	spokenLocale := target.Locale
	if spoken, err := s.deps.Voices.Resolve(start.SpokenLanguage); err == nil {
		spokenLocale = spoken.Locale
	}

	handle, err := s.deps.STT.StartStream(ctx, stt.StreamConfig{
		SampleRate:     start.SampleRate,
		Channels:       1,
		Language:       spokenLocale,
		InterimResults: start.InterimResults,
	})
	if errors.Is(err, stt.ErrStreamingNotSupported) {
		_ = conn.Close(websocket.StatusUnsupportedData, "provider does not support streaming transcription")
		return
	}
	if err != nil {
		slog.Warn("stt stream open failed", "err", err)
		_ = conn.Close(websocket.StatusInternalError, "could not open transcription stream")
		return
	}

	if s.deps.Metrics != nil {
		s.deps.Metrics.ActiveStreams.Add(ctx, 1)
		defer s.deps.Metrics.ActiveStreams.Add(ctx, -1)
	}

	sess := s.deps.Sessions.Get(start.SessionID)
	runner := &streamRunner{
		relay:   s.deps.Relay,
		session: sess,
		handle:  handle,
		emitter: &wsEmitter{conn: conn},
		request: relay.Request{
			SpokenLanguage: start.SpokenLanguage,
			TargetLanguage: start.TargetLanguage,
		},
		onTurn: func(ctx context.Context, res *relay.Result) {
			s.saveTurn(ctx, start.SessionID, res)
		},
		onDuplicate: func(ctx context.Context) {
			if s.deps.Metrics != nil {
				s.deps.Metrics.DuplicateFinals.Add(ctx, 1)
			}
		},
	}

	// The audio pump ends when the client disconnects, which cancels ctx via
	// CloseRead below; the runner then observes the closed transcript channels
	// after the handle shuts down.
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	go func() {
		defer cancel()
		pumpAudio(ctx, conn, handle)
	}()

	if err := runner.run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Warn("stream runner error", "err", err)
	}

	_ = conn.Close(websocket.StatusNormalClosure, "")
}

// readStartFrame reads and validates the initial JSON frame.
func readStartFrame(ctx context.Context, conn *websocket.Conn) (startFrame, error) {
	var start startFrame
	typ, data, err := conn.Read(ctx)
	if err != nil {
		return start, fmt.Errorf("read start frame: %w", err)
	}
	if typ != websocket.MessageText {
		return start, errors.New("first frame must be a JSON start frame")
	}
	if err := json.Unmarshal(data, &start); err != nil {
		return start, fmt.Errorf("decode start frame: %w", err)
	}
	if start.SampleRate <= 0 {
		return start, errors.New("start frame requires a positive sample_rate")
	}
	return start, nil
}

// pumpAudio forwards binary frames from the websocket into the STT session
// until the connection or the session ends. The session handle is closed on
// the way out, which ends its transcript channels and thus the runner.
func pumpAudio(ctx context.Context, conn *websocket.Conn, handle stt.SessionHandle) {
	defer func() {
		if err := handle.Close(); err != nil {
			slog.Warn("stt session close failed", "err", err)
		}
	}()

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			return
		}
		if typ != websocket.MessageBinary {
			// Ignore stray text frames after the handshake.
			continue
		}
		if err := handle.SendAudio(data); err != nil {
			slog.Warn("audio forward failed", "err", err)
			return
		}
	}
}

// streamRunner consumes one STT session's transcripts and drives the relay.
//
// The runner is a two-state loop: it is either waiting for a final transcript
// or processing a turn. Finals that arrive while a turn is in flight are
// dropped (and counted), never queued, so one utterance can never trigger two
// generations.
type streamRunner struct {
	relay   *relay.Relay
	session *relay.Session
	handle  stt.SessionHandle
	emitter streamEmitter
	request relay.Request

	// onTurn runs after each successful turn (persistence hook). Optional.
	onTurn func(ctx context.Context, res *relay.Result)

	// onDuplicate runs for each dropped final. Optional.
	onDuplicate func(ctx context.Context)

	inFlight atomic.Bool
	wg       sync.WaitGroup
}

// run loops until ctx is cancelled or the transcript channels close. It waits
// for any in-flight turn before returning.
func (r *streamRunner) run(ctx context.Context) error {
	defer r.wg.Wait()

	partials := r.handle.Partials()
	finals := r.handle.Finals()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case tr, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if err := r.emitter.EmitPartial(ctx, tr.Text); err != nil {
				return fmt.Errorf("emit partial: %w", err)
			}

		case tr, ok := <-finals:
			if !ok {
				return nil
			}
			r.handleFinal(ctx, tr)
		}
	}
}

// handleFinal starts a turn for a final transcript unless one is already in
// flight.
func (r *streamRunner) handleFinal(ctx context.Context, tr types.Transcript) {
	if strings.TrimSpace(tr.Text) == "" {
		return
	}
	if !r.inFlight.CompareAndSwap(false, true) {
		slog.Debug("final transcript dropped, turn in flight", "chars", len(tr.Text))
		if r.onDuplicate != nil {
			r.onDuplicate(ctx)
		}
		return
	}

	req := r.request
	req.Text = tr.Text

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer r.inFlight.Store(false)

		res, err := r.relay.Process(ctx, r.session, req)
		if err != nil {
			code := "upstream_error"
			if relay.IsInputError(err) {
				code = "invalid_input"
			}
			if emitErr := r.emitter.EmitError(ctx, code, err.Error()); emitErr != nil {
				slog.Warn("emit error frame failed", "err", emitErr)
			}
			return
		}

		if r.onTurn != nil {
			r.onTurn(ctx, res)
		}
		if err := r.emitter.EmitTurn(ctx, res); err != nil {
			slog.Warn("emit turn failed", "err", err)
		}
	}()
}

// wsEmitter writes frames to the websocket. Writes are serialized; the turn
// JSON frame and its audio frame form one atomic pair.
type wsEmitter struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

var _ streamEmitter = (*wsEmitter)(nil)

func (e *wsEmitter) EmitPartial(ctx context.Context, text string) error {
	return e.writeJSON(ctx, partialFrame{Type: "partial", Text: text})
}

func (e *wsEmitter) EmitTurn(ctx context.Context, res *relay.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	frame, err := json.Marshal(turnFrame{
		Type:          "turn",
		InputText:     res.InputText,
		GeneratedText: res.GeneratedText,
		AudioEncoding: res.AudioEncoding,
		Language:      res.Voice.Language,
	})
	if err != nil {
		return err
	}
	if err := e.conn.Write(ctx, websocket.MessageText, frame); err != nil {
		return err
	}
	return e.conn.Write(ctx, websocket.MessageBinary, res.Audio)
}

func (e *wsEmitter) EmitError(ctx context.Context, code, msg string) error {
	return e.writeJSON(ctx, errorFrame{Type: "error", Code: code, Message: msg})
}

func (e *wsEmitter) writeJSON(ctx context.Context, v any) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return e.conn.Write(ctx, websocket.MessageText, data)
}
