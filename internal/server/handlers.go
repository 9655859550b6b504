package server

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/AnshuAditya03/Anshu-backend/internal/observe"
	"github.com/AnshuAditya03/Anshu-backend/internal/relay"
	"github.com/AnshuAditya03/Anshu-backend/internal/store"
	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt"
)

// maxAudioUpload caps the multipart audio payload at 25 MiB.
const maxAudioUpload = 25 << 20

// turnRequest is the JSON body of POST /v1/turn.
type turnRequest struct {
	Text           string `json:"text"`
	SessionID      string `json:"session_id,omitempty"`
	SpokenLanguage string `json:"spoken_language,omitempty"`
	TargetLanguage string `json:"target_language,omitempty"`
}

// turnResponse is the JSON envelope returned for a completed turn.
type turnResponse struct {
	InputText     string `json:"input_text"`
	GeneratedText string `json:"generated_text"`
	Audio         string `json:"audio"`
	AudioEncoding string `json:"audio_encoding"`
	Language      string `json:"language"`
	VoiceID       string `json:"voice_id"`
}

// errorResponse is the JSON body of every error reply.
type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// handleTurn runs one text turn. The reply is a JSON envelope with the audio
// base64-encoded; clients that send "Accept: audio/*" get the raw audio bytes
// instead, with the text in response headers.
func (s *Server) handleTurn(w http.ResponseWriter, r *http.Request) {
	var req turnRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request body is not valid JSON")
		return
	}

	s.completeTurn(w, r, req)
}

// handleTurnAudio accepts a multipart form with an "audio" file part plus the
// optional text-turn fields, transcribes the audio, and runs the same turn
// pipeline on the transcript.
func (s *Server) handleTurnAudio(w http.ResponseWriter, r *http.Request) {
	if s.deps.STT == nil {
		writeError(w, http.StatusNotImplemented, "stt_unavailable", "no speech-to-text provider is configured")
		return
	}

	if err := r.ParseMultipartForm(maxAudioUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_body", "request is not a valid multipart form")
		return
	}
	defer func() {
		if err := r.MultipartForm.RemoveAll(); err != nil {
			slog.Warn("multipart cleanup failed", "err", err)
		}
	}()

	file, _, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, "missing_audio", `multipart part "audio" is required`)
		return
	}
	defer file.Close()

	audio, err := io.ReadAll(io.LimitReader(file, maxAudioUpload))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_audio", "could not read audio part")
		return
	}
	if len(audio) == 0 {
		writeError(w, http.StatusBadRequest, "invalid_audio", "audio part is empty")
		return
	}

	req := turnRequest{
		SessionID:      r.FormValue("session_id"),
		SpokenLanguage: r.FormValue("spoken_language"),
		TargetLanguage: r.FormValue("target_language"),
	}

	cfg := stt.RecognizeConfig{Encoding: r.FormValue("encoding")}
	if v := r.FormValue("sample_rate"); v != "" {
		rate, err := strconv.Atoi(v)
		if err != nil || rate <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_sample_rate", "sample_rate must be a positive integer")
			return
		}
		cfg.SampleRate = rate
	}
	if spoken, err := s.deps.Voices.Resolve(req.SpokenLanguage); err == nil {
		cfg.Language = spoken.Locale
	}

	start := time.Now()
	transcript, err := s.deps.STT.Transcribe(r.Context(), audio, cfg)
	s.recordSTT(r.Context(), time.Since(start), err)
	if err != nil {
		slog.Warn("transcription failed", "err", err)
		writeError(w, http.StatusBadGateway, "transcription_failed", "speech-to-text provider error")
		return
	}
	if strings.TrimSpace(transcript.Text) == "" {
		writeError(w, http.StatusBadRequest, "empty_transcript", "no speech was recognized in the audio")
		return
	}

	req.Text = transcript.Text
	s.completeTurn(w, r, req)
}

// completeTurn is the shared tail of both turn endpoints: run the relay,
// persist the record, and shape the response.
func (s *Server) completeTurn(w http.ResponseWriter, r *http.Request, req turnRequest) {
	sess := s.deps.Sessions.Get(req.SessionID)

	res, err := s.deps.Relay.Process(r.Context(), sess, relay.Request{
		Text:           req.Text,
		SpokenLanguage: req.SpokenLanguage,
		TargetLanguage: req.TargetLanguage,
	})
	if err != nil {
		writeTurnError(r.Context(), w, err)
		return
	}

	s.saveTurn(r.Context(), req.SessionID, res)

	if wantsRawAudio(r) {
		w.Header().Set("Content-Type", res.AudioEncoding)
		w.Header().Set("X-Input-Text", sanitizeHeader(res.InputText))
		w.Header().Set("X-Generated-Text", sanitizeHeader(res.GeneratedText))
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(res.Audio)
		return
	}

	writeJSON(w, http.StatusOK, turnResponse{
		InputText:     res.InputText,
		GeneratedText: res.GeneratedText,
		Audio:         base64.StdEncoding.EncodeToString(res.Audio),
		AudioEncoding: res.AudioEncoding,
		Language:      res.Voice.Language,
		VoiceID:       res.Voice.VoiceID,
	})
}

// voiceEntry is one row of the GET /v1/voices response.
type voiceEntry struct {
	Language string `json:"language"`
	Locale   string `json:"locale"`
	VoiceID  string `json:"voice_id"`
	Gender   string `json:"gender,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// handleVoices lists the configured voice table. This is the table the server
// resolves against, not the provider's full catalogue.
func (s *Server) handleVoices(w http.ResponseWriter, _ *http.Request) {
	def := s.deps.Voices.Default()
	profiles := s.deps.Voices.Profiles()

	out := make([]voiceEntry, 0, len(profiles))
	for _, p := range profiles {
		out = append(out, voiceEntry{
			Language: p.Language,
			Locale:   p.Locale,
			VoiceID:  p.VoiceID,
			Gender:   string(p.Gender),
			Default:  p.Language == def.Language,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"voices": out})
}

// turnLogEntry is one row of the GET /v1/turns response.
type turnLogEntry struct {
	SessionID     string    `json:"session_id,omitempty"`
	InputText     string    `json:"input_text"`
	GeneratedText string    `json:"generated_text"`
	Language      string    `json:"language"`
	AudioBytes    int       `json:"audio_bytes"`
	CreatedAt     time.Time `json:"created_at"`
}

// handleTurns lists recent records from the turn log, newest first. With the
// no-op store the list is always empty.
func (s *Server) handleTurns(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session_id")

	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be a positive integer")
			return
		}
		limit = n
	}

	recs, err := s.deps.Turns.RecentTurns(r.Context(), sessionID, limit)
	if err != nil {
		observe.Logger(r.Context()).Warn("turn log read failed", "err", err)
		writeError(w, http.StatusInternalServerError, "store_error", "turn log is unavailable")
		return
	}

	out := make([]turnLogEntry, 0, len(recs))
	for _, rec := range recs {
		out = append(out, turnLogEntry{
			SessionID:     rec.SessionID,
			InputText:     rec.InputText,
			GeneratedText: rec.GeneratedText,
			Language:      rec.Language,
			AudioBytes:    rec.AudioBytes,
			CreatedAt:     rec.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"turns": out})
}

// recordSTT records batch transcription latency. Nil-safe on missing metrics.
func (s *Server) recordSTT(ctx context.Context, d time.Duration, err error) {
	if s.deps.Metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
	}
	s.deps.Metrics.STTDuration.Record(ctx, d.Seconds(),
		metric.WithAttributes(attribute.String("status", status)))
}

// saveTurn writes the turn record; persistence failures are logged and never
// fail the request.
func (s *Server) saveTurn(ctx context.Context, sessionID string, res *relay.Result) {
	rec := store.TurnRecord{
		SessionID:     sessionID,
		InputText:     res.InputText,
		GeneratedText: res.GeneratedText,
		Language:      res.Voice.Language,
		AudioBytes:    len(res.Audio),
	}
	if err := s.deps.Turns.SaveTurn(ctx, rec); err != nil {
		observe.Logger(ctx).Warn("turn log write failed", "err", err)
	}
}

// wantsRawAudio reports whether the client asked for the audio bytes directly.
func wantsRawAudio(r *http.Request) bool {
	for _, accept := range r.Header.Values("Accept") {
		for _, part := range strings.Split(accept, ",") {
			mt := strings.TrimSpace(strings.SplitN(part, ";", 2)[0])
			if mt == "audio/*" || strings.HasPrefix(mt, "audio/") {
				return true
			}
		}
	}
	return false
}

// sanitizeHeader strips characters that are not valid in an HTTP header value.
func sanitizeHeader(s string) string {
	return strings.Map(func(r rune) rune {
		if r == '\n' || r == '\r' {
			return ' '
		}
		return r
	}, s)
}

// writeTurnError maps a relay error onto the HTTP error taxonomy: caller
// mistakes are 400, upstream failures 502, everything else 500.
func writeTurnError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case relay.IsInputError(err):
		writeError(w, http.StatusBadRequest, "invalid_input", err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		writeError(w, http.StatusInternalServerError, "cancelled", "request was cancelled")
	default:
		observe.Logger(ctx).Warn("turn failed", "err", err)
		writeError(w, http.StatusBadGateway, "upstream_error", "an upstream provider failed")
	}
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorResponse{Error: errorDetail{Code: code, Message: msg}})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Warn("response encode failed", "err", err)
	}
}
