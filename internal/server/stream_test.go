package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/AnshuAditya03/Anshu-backend/internal/relay"
	"github.com/AnshuAditya03/Anshu-backend/internal/voice"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm"
	llmmock "github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm/mock"
	sttmock "github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt/mock"
	ttsmock "github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts/mock"
)

// recordingEmitter collects emitted frames for assertions.
type recordingEmitter struct {
	mu       sync.Mutex
	partials []string
	turns    []*relay.Result
	errors   []string
}

func (e *recordingEmitter) EmitPartial(_ context.Context, text string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.partials = append(e.partials, text)
	return nil
}

func (e *recordingEmitter) EmitTurn(_ context.Context, res *relay.Result) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.turns = append(e.turns, res)
	return nil
}

func (e *recordingEmitter) EmitError(_ context.Context, code, _ string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.errors = append(e.errors, code)
	return nil
}

func (e *recordingEmitter) snapshot() (partials []string, turns []*relay.Result, errs []string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]string(nil), e.partials...),
		append([]*relay.Result(nil), e.turns...),
		append([]string(nil), e.errors...)
}

func newStreamRelay(t *testing.T, llmP *llmmock.Provider, ttsP *ttsmock.Provider) *relay.Relay {
	t.Helper()
	table, err := voice.NewTable("en", voice.MissReject, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}
	return relay.New(llmP, ttsP, table, noSleep()...)
}

func TestStreamRunner_FinalTriggersTurn(t *testing.T) {
	llmP := &llmmock.Provider{
		Results: []llmmock.CompleteResult{
			{Resp: &llm.CompletionResponse{Content: "reply"}},
		},
	}
	ttsP := &ttsmock.Provider{Audio: []byte("mp3")}
	session := sttmock.NewSession()
	em := &recordingEmitter{}

	runner := &streamRunner{
		relay:   newStreamRelay(t, llmP, ttsP),
		handle:  session,
		emitter: em,
	}

	done := make(chan error, 1)
	go func() { done <- runner.run(context.Background()) }()

	session.EmitPartial("hel")
	session.EmitFinal("hello world")
	_ = session.Close()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	partials, turns, errs := em.snapshot()
	if len(partials) != 1 || partials[0] != "hel" {
		t.Errorf("partials = %v", partials)
	}
	if len(turns) != 1 {
		t.Fatalf("turns = %d, want 1", len(turns))
	}
	if turns[0].InputText != "hello world" || turns[0].GeneratedText != "reply" {
		t.Errorf("turn = %+v", turns[0])
	}
	if len(errs) != 0 {
		t.Errorf("error frames = %v", errs)
	}
}

func TestStreamRunner_DuplicateFinalDroppedWhileInFlight(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	llmP := &llmmock.Provider{
		CompleteFunc: func(ctx context.Context, _ llm.CompletionRequest) (*llm.CompletionResponse, error) {
			close(started)
			select {
			case <-release:
			case <-ctx.Done():
				return nil, ctx.Err()
			}
			return &llm.CompletionResponse{Content: "reply"}, nil
		},
	}
	ttsP := &ttsmock.Provider{Audio: []byte("mp3")}
	session := sttmock.NewSession()
	em := &recordingEmitter{}

	var duplicates int
	var dupMu sync.Mutex
	runner := &streamRunner{
		relay:   newStreamRelay(t, llmP, ttsP),
		handle:  session,
		emitter: em,
		onDuplicate: func(context.Context) {
			dupMu.Lock()
			duplicates++
			dupMu.Unlock()
		},
	}

	done := make(chan error, 1)
	go func() { done <- runner.run(context.Background()) }()

	session.EmitFinal("first utterance")
	<-started

	// Arrives while the first turn is still generating; must be dropped.
	session.EmitFinal("duplicate final")

	// Give the runner time to drain the finals channel before releasing.
	deadline := time.After(2 * time.Second)
	for {
		dupMu.Lock()
		n := duplicates
		dupMu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("duplicate final was not dropped")
		case <-time.After(5 * time.Millisecond):
		}
	}

	close(release)
	_ = session.Close()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	if got := llmP.CallCount(); got != 1 {
		t.Errorf("llm calls = %d, want exactly 1", got)
	}
	_, turns, _ := em.snapshot()
	if len(turns) != 1 {
		t.Errorf("turns = %d, want 1", len(turns))
	}
	if turns[0].InputText != "first utterance" {
		t.Errorf("turn input = %q", turns[0].InputText)
	}
}

func TestStreamRunner_TurnFailureEmitsErrorAndStreamContinues(t *testing.T) {
	llmP := &llmmock.Provider{
		Results: []llmmock.CompleteResult{
			{Err: errors.New("model offline")},
			{Err: errors.New("model offline")},
			{Err: errors.New("model offline")},
			{Resp: &llm.CompletionResponse{Content: "recovered"}},
		},
	}
	ttsP := &ttsmock.Provider{Audio: []byte("mp3")}
	session := sttmock.NewSession()
	em := &recordingEmitter{}

	runner := &streamRunner{
		relay:   newStreamRelay(t, llmP, ttsP),
		handle:  session,
		emitter: em,
	}

	done := make(chan error, 1)
	go func() { done <- runner.run(context.Background()) }()

	session.EmitFinal("first")

	// Wait until the failed turn has emitted its error frame so the second
	// final is not dropped as a duplicate.
	deadline := time.After(2 * time.Second)
	for {
		_, _, errs := em.snapshot()
		if len(errs) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("error frame was not emitted")
		case <-time.After(5 * time.Millisecond):
		}
	}

	session.EmitFinal("second")
	for {
		_, turns, _ := em.snapshot()
		if len(turns) == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("second turn did not complete")
		case <-time.After(5 * time.Millisecond):
		}
	}

	_ = session.Close()
	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}

	_, turns, errs := em.snapshot()
	if len(errs) != 1 || errs[0] != "upstream_error" {
		t.Errorf("error frames = %v", errs)
	}
	if len(turns) != 1 || turns[0].GeneratedText != "recovered" {
		t.Errorf("turns = %+v", turns)
	}
}

func TestStreamRunner_EmptyFinalIgnored(t *testing.T) {
	llmP := &llmmock.Provider{}
	ttsP := &ttsmock.Provider{Audio: []byte("mp3")}
	session := sttmock.NewSession()
	em := &recordingEmitter{}

	runner := &streamRunner{
		relay:   newStreamRelay(t, llmP, ttsP),
		handle:  session,
		emitter: em,
	}

	done := make(chan error, 1)
	go func() { done <- runner.run(context.Background()) }()

	session.EmitFinal("   ")
	_ = session.Close()

	if err := <-done; err != nil {
		t.Fatalf("run: %v", err)
	}
	if llmP.CallCount() != 0 {
		t.Errorf("llm calls = %d, want 0", llmP.CallCount())
	}
}

func TestStreamRunner_CancelStopsLoop(t *testing.T) {
	llmP := &llmmock.Provider{}
	ttsP := &ttsmock.Provider{}
	session := sttmock.NewSession()

	runner := &streamRunner{
		relay:   newStreamRelay(t, llmP, ttsP),
		handle:  session,
		emitter: &recordingEmitter{},
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- runner.run(ctx) }()

	cancel()
	if err := <-done; !errors.Is(err, context.Canceled) {
		t.Fatalf("run returned %v, want context.Canceled", err)
	}
}

func TestHandleStream_EndToEnd(t *testing.T) {
	env := newTestEnv(t)
	session := sttmock.NewSession()
	env.stt.Session = session

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	start, _ := json.Marshal(startFrame{SampleRate: 16000})
	if err := conn.Write(ctx, websocket.MessageText, start); err != nil {
		t.Fatalf("write start frame: %v", err)
	}

	if err := conn.Write(ctx, websocket.MessageBinary, []byte("pcm-chunk")); err != nil {
		t.Fatalf("write audio: %v", err)
	}

	// Wait for the audio to reach the STT session, then emit a final.
	waitFor(t, func() bool { return session.ChunkCount() == 1 })
	session.EmitFinal("hello")

	typ, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read turn frame: %v", err)
	}
	if typ != websocket.MessageText {
		t.Fatalf("first reply frame type = %v, want text", typ)
	}
	var frame turnFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		t.Fatalf("decode turn frame: %v", err)
	}
	if frame.Type != "turn" || frame.InputText != "hello" || frame.GeneratedText != "Hello!" {
		t.Errorf("turn frame = %+v", frame)
	}

	typ, data, err = conn.Read(ctx)
	if err != nil {
		t.Fatalf("read audio frame: %v", err)
	}
	if typ != websocket.MessageBinary || string(data) != "fake-mp3" {
		t.Errorf("audio frame = (%v, %q)", typ, data)
	}

	// Dropping the client connection must close the STT session.
	conn.CloseNow()
	waitFor(t, session.Closed)
}

func TestHandleStream_RejectsMissingStartFrame(t *testing.T) {
	env := newTestEnv(t)

	ts := httptest.NewServer(env.server.Handler())
	defer ts.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/stream"
	conn, _, err := websocket.Dial(ctx, wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	// A binary frame instead of the JSON start frame is a protocol violation.
	if err := conn.Write(ctx, websocket.MessageBinary, []byte("audio-too-early")); err != nil {
		t.Fatalf("write: %v", err)
	}

	_, _, err = conn.Read(ctx)
	if err == nil {
		t.Fatal("expected the server to close the connection")
	}
	if got := websocket.CloseStatus(err); got != websocket.StatusPolicyViolation {
		t.Errorf("close status = %v, want policy violation", got)
	}
}

// waitFor polls cond until it is true or the test deadline expires.
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for {
		if cond() {
			return
		}
		select {
		case <-deadline:
			t.Fatal("condition not met in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
}
