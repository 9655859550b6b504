package server

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"github.com/AnshuAditya03/Anshu-backend/internal/config"
	"github.com/AnshuAditya03/Anshu-backend/internal/observe"
	"github.com/AnshuAditya03/Anshu-backend/internal/relay"
	"github.com/AnshuAditya03/Anshu-backend/internal/resilience"
	"github.com/AnshuAditya03/Anshu-backend/internal/store"
	"github.com/AnshuAditya03/Anshu-backend/internal/voice"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm"
	llmmock "github.com/AnshuAditya03/Anshu-backend/pkg/provider/llm/mock"
	sttmock "github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt/mock"
	ttsmock "github.com/AnshuAditya03/Anshu-backend/pkg/provider/tts/mock"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// noSleep replaces the retry backoff so failure tests run instantly.
func noSleep(opts ...relay.Option) []relay.Option {
	policy := resilience.RetryPolicy{
		Sleep: func(ctx context.Context, d time.Duration) error { return nil },
	}
	return append([]relay.Option{relay.WithRetryPolicy(policy)}, opts...)
}

type testEnv struct {
	llm    *llmmock.Provider
	tts    *ttsmock.Provider
	stt    *sttmock.Provider
	server *Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	llmP := &llmmock.Provider{
		Results: []llmmock.CompleteResult{
			{Resp: &llm.CompletionResponse{Content: "Hello!"}},
		},
	}
	ttsP := &ttsmock.Provider{Audio: []byte("fake-mp3")}
	sttP := &sttmock.Provider{
		TranscribeResult: &types.Transcript{Text: "spoken words", IsFinal: true},
	}

	table, err := voice.NewTable("en", voice.MissReject, nil)
	if err != nil {
		t.Fatalf("NewTable: %v", err)
	}

	rel := relay.New(llmP, ttsP, table, noSleep()...)

	srv := New(config.ServerConfig{ListenAddr: ":0"}, Deps{
		Relay:    rel,
		Sessions: relay.NewSessionManager(0),
		Voices:   table,
		STT:      sttP,
	})

	return &testEnv{llm: llmP, tts: ttsP, stt: sttP, server: srv}
}

func (e *testEnv) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	e.server.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHandleTurn_JSONEnvelope(t *testing.T) {
	env := newTestEnv(t)

	body := `{"text": "hi there", "target_language": "fr"}`
	req := httptest.NewRequest("POST", "/v1/turn", strings.NewReader(body))
	rec := env.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var res turnResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.InputText != "hi there" {
		t.Errorf("InputText = %q", res.InputText)
	}
	if res.GeneratedText != "Hello!" {
		t.Errorf("GeneratedText = %q", res.GeneratedText)
	}
	audio, err := base64.StdEncoding.DecodeString(res.Audio)
	if err != nil {
		t.Fatalf("audio is not base64: %v", err)
	}
	if string(audio) != "fake-mp3" {
		t.Errorf("audio = %q", audio)
	}
	if res.Language != "fr" {
		t.Errorf("Language = %q", res.Language)
	}
}

func TestHandleTurn_RawAudioOnAccept(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/v1/turn", strings.NewReader(`{"text":"hi"}`))
	req.Header.Set("Accept", "audio/*")
	rec := env.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "audio/mpeg" {
		t.Errorf("Content-Type = %q", ct)
	}
	if rec.Body.String() != "fake-mp3" {
		t.Errorf("body = %q, want raw audio", rec.Body.String())
	}
	if got := rec.Header().Get("X-Generated-Text"); got != "Hello!" {
		t.Errorf("X-Generated-Text = %q", got)
	}
}

func TestHandleTurn_InvalidJSON(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/v1/turn", strings.NewReader("{nope"))
	rec := env.do(t, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleTurn_EmptyTextIs400(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/v1/turn", strings.NewReader(`{"text":"   "}`))
	rec := env.do(t, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
	if env.llm.CallCount() != 0 {
		t.Errorf("llm calls = %d, want 0", env.llm.CallCount())
	}
}

func TestHandleTurn_UnknownLanguageIs400(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("POST", "/v1/turn", strings.NewReader(`{"text":"hi","target_language":"xx"}`))
	rec := env.do(t, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}

	var res errorResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.Error.Code != "invalid_input" {
		t.Errorf("error code = %q", res.Error.Code)
	}
}

func TestHandleTurn_UpstreamFailureIs502(t *testing.T) {
	env := newTestEnv(t)
	env.llm.Results = []llmmock.CompleteResult{{Err: errors.New("model offline")}}

	req := httptest.NewRequest("POST", "/v1/turn", strings.NewReader(`{"text":"hi"}`))
	rec := env.do(t, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	if env.llm.CallCount() != 3 {
		t.Errorf("llm calls = %d, want 3", env.llm.CallCount())
	}
	if env.tts.CallCount() != 0 {
		t.Errorf("tts calls = %d, want 0", env.tts.CallCount())
	}
}

func TestHandleTurn_SessionHistory(t *testing.T) {
	env := newTestEnv(t)
	env.llm.Results = []llmmock.CompleteResult{
		{Resp: &llm.CompletionResponse{Content: "first"}},
		{Resp: &llm.CompletionResponse{Content: "second"}},
	}

	for range 2 {
		req := httptest.NewRequest("POST", "/v1/turn",
			strings.NewReader(`{"text":"hi","session_id":"abc"}`))
		if rec := env.do(t, req); rec.Code != http.StatusOK {
			t.Fatalf("status = %d", rec.Code)
		}
	}

	// The second call must carry the first exchange as history.
	if len(env.llm.Calls) != 2 {
		t.Fatalf("llm calls = %d", len(env.llm.Calls))
	}
	if got := len(env.llm.Calls[1].Req.Messages); got != 3 {
		t.Errorf("second request messages = %d, want 3", got)
	}
}

func multipartAudioRequest(t *testing.T, fields map[string]string, audio []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			t.Fatalf("write field: %v", err)
		}
	}
	if audio != nil {
		part, err := mw.CreateFormFile("audio", "input.wav")
		if err != nil {
			t.Fatalf("create form file: %v", err)
		}
		if _, err := part.Write(audio); err != nil {
			t.Fatalf("write audio: %v", err)
		}
	}
	if err := mw.Close(); err != nil {
		t.Fatalf("close writer: %v", err)
	}

	req := httptest.NewRequest("POST", "/v1/turn/audio", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestHandleTurnAudio_TranscribesThenRelays(t *testing.T) {
	env := newTestEnv(t)

	req := multipartAudioRequest(t, map[string]string{"sample_rate": "16000"}, []byte("pcm-data"))
	rec := env.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var res turnResponse
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if res.InputText != "spoken words" {
		t.Errorf("InputText = %q, want the transcript", res.InputText)
	}
	if len(env.stt.TranscribeCalls) != 1 {
		t.Errorf("transcribe calls = %d, want 1", len(env.stt.TranscribeCalls))
	}
}

func TestHandleTurnAudio_MissingAudioPart(t *testing.T) {
	env := newTestEnv(t)

	req := multipartAudioRequest(t, map[string]string{"sample_rate": "16000"}, nil)
	rec := env.do(t, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", rec.Code)
	}
}

func TestHandleTurnAudio_TranscriptionErrorIs502(t *testing.T) {
	env := newTestEnv(t)
	env.stt.TranscribeErr = errors.New("stt down")

	req := multipartAudioRequest(t, nil, []byte("pcm"))
	rec := env.do(t, req)

	if rec.Code != http.StatusBadGateway {
		t.Errorf("status = %d, want 502", rec.Code)
	}
	// Transcription is never retried.
	if len(env.stt.TranscribeCalls) != 1 {
		t.Errorf("transcribe calls = %d, want 1", len(env.stt.TranscribeCalls))
	}
	if env.llm.CallCount() != 0 {
		t.Errorf("llm calls = %d, want 0", env.llm.CallCount())
	}
}

func TestHandleTurnAudio_NoSTTConfigured(t *testing.T) {
	env := newTestEnv(t)
	env.server.deps.STT = nil

	req := multipartAudioRequest(t, nil, []byte("pcm"))
	rec := env.do(t, req)

	if rec.Code != http.StatusNotImplemented {
		t.Errorf("status = %d, want 501", rec.Code)
	}
}

func TestHandleVoices(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/v1/voices", nil)
	rec := env.do(t, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var res struct {
		Voices []voiceEntry `json:"voices"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Voices) == 0 {
		t.Fatal("no voices returned")
	}

	var sawDefault bool
	for _, v := range res.Voices {
		if v.Language == "" || v.Locale == "" || v.VoiceID == "" {
			t.Errorf("incomplete entry: %+v", v)
		}
		if v.Default {
			if v.Language != "en" {
				t.Errorf("default voice language = %q, want %q", v.Language, "en")
			}
			sawDefault = true
		}
	}
	if !sawDefault {
		t.Error("no entry marked as default")
	}
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t)

	for _, path := range []string{"/healthz", "/readyz"} {
		req := httptest.NewRequest("GET", path, nil)
		rec := env.do(t, req)
		if rec.Code != http.StatusOK {
			t.Errorf("GET %s = %d, want 200", path, rec.Code)
		}
	}
}

func TestHandleTurnAudio_RecordsTranscriptionDuration(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader)))
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	env := newTestEnv(t)
	env.server.deps.Metrics = m

	req := multipartAudioRequest(t, map[string]string{"sample_rate": "16000"}, []byte("pcm-data"))
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}

	for _, sm := range rm.ScopeMetrics {
		for _, met := range sm.Metrics {
			if met.Name != "anshu.stt.duration" {
				continue
			}
			hist, ok := met.Data.(metricdata.Histogram[float64])
			if !ok {
				t.Fatalf("anshu.stt.duration is %T, want Histogram[float64]", met.Data)
			}
			if len(hist.DataPoints) != 1 {
				t.Fatalf("expected 1 data point, got %d", len(hist.DataPoints))
			}
			if hist.DataPoints[0].Count != 1 {
				t.Errorf("count = %d, want 1", hist.DataPoints[0].Count)
			}
			return
		}
	}
	t.Fatal("anshu.stt.duration was not recorded")
}

// fakeTurnStore scripts RecentTurns and records the query it received.
type fakeTurnStore struct {
	store.Noop
	recs       []store.TurnRecord
	err        error
	gotSession string
	gotLimit   int
}

func (f *fakeTurnStore) RecentTurns(_ context.Context, sessionID string, limit int) ([]store.TurnRecord, error) {
	f.gotSession = sessionID
	f.gotLimit = limit
	return f.recs, f.err
}

func TestHandleTurns_ListsRecentRecords(t *testing.T) {
	env := newTestEnv(t)
	fake := &fakeTurnStore{
		recs: []store.TurnRecord{
			{SessionID: "s1", InputText: "hi", GeneratedText: "Hello!", Language: "en", AudioBytes: 8},
			{SessionID: "s1", InputText: "bye", GeneratedText: "Goodbye!", Language: "en", AudioBytes: 9},
		},
	}
	env.server.deps.Turns = fake

	req := httptest.NewRequest("GET", "/v1/turns?session_id=s1&limit=2", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	if fake.gotSession != "s1" || fake.gotLimit != 2 {
		t.Errorf("store queried with (%q, %d), want (s1, 2)", fake.gotSession, fake.gotLimit)
	}

	var res struct {
		Turns []struct {
			SessionID     string `json:"session_id"`
			InputText     string `json:"input_text"`
			GeneratedText string `json:"generated_text"`
		} `json:"turns"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Turns) != 2 {
		t.Fatalf("turns = %d, want 2", len(res.Turns))
	}
	if res.Turns[0].InputText != "hi" || res.Turns[1].GeneratedText != "Goodbye!" {
		t.Errorf("unexpected rows: %+v", res.Turns)
	}
}

func TestHandleTurns_InvalidLimit(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/v1/turns?limit=zero", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleTurns_EmptyWithNoopStore(t *testing.T) {
	env := newTestEnv(t)

	req := httptest.NewRequest("GET", "/v1/turns", nil)
	rec := env.do(t, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}

	var res struct {
		Turns []any `json:"turns"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&res); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(res.Turns) != 0 {
		t.Errorf("turns = %d, want 0", len(res.Turns))
	}
}
