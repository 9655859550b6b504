// Package google provides an STT provider backed by the Google Cloud
// Speech-to-Text API. It implements the stt.Provider interface for both batch
// recognition and live streaming recognition over gRPC.
package google

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	speech "cloud.google.com/go/speech/apiv1"
	"cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"

	"github.com/AnshuAditya03/Anshu-backend/pkg/provider/stt"
	"github.com/AnshuAditya03/Anshu-backend/pkg/types"
)

// Compile-time assertions that Provider and session satisfy the stt interfaces.
var (
	_ stt.Provider      = (*Provider)(nil)
	_ stt.SessionHandle = (*session)(nil)
)

const (
	defaultLanguage   = "en-US"
	defaultSampleRate = 16000
)

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithCredentialsFile sets the path to a Google service account JSON key.
// Without it the client uses Application Default Credentials.
func WithCredentialsFile(path string) Option {
	return func(p *Provider) {
		p.credentialsFile = path
	}
}

// WithLanguage sets the default BCP-47 language code for recognition.
func WithLanguage(language string) Option {
	return func(p *Provider) {
		p.language = language
	}
}

// WithSampleRate sets the provider-level default sample rate in Hz.
func WithSampleRate(rate int) Option {
	return func(p *Provider) {
		p.sampleRate = rate
	}
}

// Provider implements stt.Provider backed by Google Cloud Speech-to-Text.
type Provider struct {
	client          *speech.Client
	credentialsFile string
	language        string
	sampleRate      int
}

// New creates a new Google STT Provider and establishes the underlying client.
func New(ctx context.Context, opts ...Option) (*Provider, error) {
	p := &Provider{
		language:   defaultLanguage,
		sampleRate: defaultSampleRate,
	}
	for _, o := range opts {
		o(p)
	}

	var clientOpts []option.ClientOption
	if p.credentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(p.credentialsFile))
	}

	client, err := speech.NewClient(ctx, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("google stt: create client: %w", err)
	}
	p.client = client
	return p, nil
}

// Close releases the underlying gRPC client.
func (p *Provider) Close() error {
	return p.client.Close()
}

// Transcribe implements stt.Provider using the synchronous Recognize call.
func (p *Provider) Transcribe(ctx context.Context, audio []byte, cfg stt.RecognizeConfig) (*types.Transcript, error) {
	if len(audio) == 0 {
		return nil, errors.New("google stt: audio must not be empty")
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}

	req := &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:              mapEncoding(cfg.Encoding),
			SampleRateHertz:       int32(cfg.SampleRate),
			LanguageCode:          lang,
			EnableWordTimeOffsets: true,
		},
		Audio: &speechpb.RecognitionAudio{
			AudioSource: &speechpb.RecognitionAudio_Content{Content: audio},
		},
	}

	resp, err := p.client.Recognize(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("google stt: recognize: %w", err)
	}

	// Concatenate the top alternative of each result: long audio is split into
	// multiple sequential results by the service.
	var (
		sb         strings.Builder
		confidence float64
		words      []types.WordDetail
		language   string
	)
	for _, res := range resp.Results {
		if len(res.Alternatives) == 0 {
			continue
		}
		alt := res.Alternatives[0]
		if sb.Len() > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(strings.TrimSpace(alt.Transcript))
		if float64(alt.Confidence) > confidence {
			confidence = float64(alt.Confidence)
		}
		words = append(words, convertWords(alt.Words)...)
		if res.LanguageCode != "" {
			language = res.LanguageCode
		}
	}

	if sb.Len() == 0 {
		return nil, errors.New("google stt: no speech recognized")
	}
	return &types.Transcript{
		Text:       sb.String(),
		IsFinal:    true,
		Confidence: confidence,
		Language:   language,
		Words:      words,
	}, nil
}

// StartStream implements stt.Provider using the bidirectional
// StreamingRecognize RPC. The first message carries the recognition config;
// all subsequent messages carry raw audio content forwarded verbatim.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	stream, err := p.client.StreamingRecognize(ctx)
	if err != nil {
		return nil, fmt.Errorf("google stt: open stream: %w", err)
	}

	lang := cfg.Language
	if lang == "" {
		lang = p.language
	}
	sr := cfg.SampleRate
	if sr == 0 {
		sr = p.sampleRate
	}
	channels := cfg.Channels
	if channels == 0 {
		channels = 1
	}

	cfgReq := &speechpb.StreamingRecognizeRequest{
		StreamingRequest: &speechpb.StreamingRecognizeRequest_StreamingConfig{
			StreamingConfig: &speechpb.StreamingRecognitionConfig{
				Config: &speechpb.RecognitionConfig{
					Encoding:          speechpb.RecognitionConfig_LINEAR16,
					SampleRateHertz:   int32(sr),
					AudioChannelCount: int32(channels),
					LanguageCode:      lang,
				},
				InterimResults: cfg.InterimResults,
			},
		},
	}
	if err := stream.Send(cfgReq); err != nil {
		return nil, fmt.Errorf("google stt: send streaming config: %w", err)
	}

	sess := &session{
		stream:   stream,
		partials: make(chan types.Transcript, 64),
		finals:   make(chan types.Transcript, 64),
		audio:    make(chan []byte, 256),
		done:     make(chan struct{}),
	}

	sess.wg.Add(2)
	go sess.readLoop(ctx)
	go sess.writeLoop()

	return sess, nil
}

// mapEncoding maps our symbolic encoding names onto the Google enum. Unknown
// or empty names fall back to ENCODING_UNSPECIFIED, which lets the service
// sniff self-describing containers (WAV, FLAC).
func mapEncoding(name string) speechpb.RecognitionConfig_AudioEncoding {
	switch strings.ToLower(name) {
	case "linear16", "pcm", "wav":
		return speechpb.RecognitionConfig_LINEAR16
	case "flac":
		return speechpb.RecognitionConfig_FLAC
	case "webm":
		return speechpb.RecognitionConfig_WEBM_OPUS
	case "ogg", "opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	case "mulaw":
		return speechpb.RecognitionConfig_MULAW
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// ---- session ----

// session wraps one StreamingRecognize RPC. The write loop owns the send side
// of the stream; the read loop owns the receive side. Close signals the write
// loop to half-close the stream, which makes the server finish and the read
// loop drain to EOF.
type session struct {
	stream speechpb.Speech_StreamingRecognizeClient

	partials chan types.Transcript
	finals   chan types.Transcript
	audio    chan []byte
	done     chan struct{}

	wg        sync.WaitGroup
	closeOnce sync.Once
}

// SendAudio implements stt.SessionHandle.
func (s *session) SendAudio(chunk []byte) error {
	select {
	case <-s.done:
		return errors.New("google stt: session is closed")
	default:
	}
	select {
	case s.audio <- chunk:
		return nil
	case <-s.done:
		return errors.New("google stt: session is closed")
	}
}

// Partials implements stt.SessionHandle.
func (s *session) Partials() <-chan types.Transcript { return s.partials }

// Finals implements stt.SessionHandle.
func (s *session) Finals() <-chan types.Transcript { return s.finals }

// Close implements stt.SessionHandle. It half-closes the upstream gRPC stream,
// waits for both loops to finish, and closes the transcript channels.
func (s *session) Close() error {
	s.closeOnce.Do(func() {
		close(s.done)
		s.wg.Wait()
		close(s.partials)
		close(s.finals)
	})
	return nil
}

// writeLoop forwards audio chunks to the gRPC stream until the session is
// closed, then half-closes the stream so the server emits its last results.
func (s *session) writeLoop() {
	defer s.wg.Done()
	for {
		select {
		case chunk := <-s.audio:
			req := &speechpb.StreamingRecognizeRequest{
				StreamingRequest: &speechpb.StreamingRecognizeRequest_AudioContent{
					AudioContent: chunk,
				},
			}
			if err := s.stream.Send(req); err != nil {
				// The read loop will observe the terminal stream error.
				return
			}
		case <-s.done:
			_ = s.stream.CloseSend()
			return
		}
	}
}

// readLoop receives streaming results and routes them to the partials and
// finals channels until the stream ends.
func (s *session) readLoop(ctx context.Context) {
	defer s.wg.Done()
	for {
		resp, err := s.stream.Recv()
		if err != nil {
			// io.EOF after CloseSend, or a terminal stream error.
			return
		}
		for _, res := range resp.Results {
			if len(res.Alternatives) == 0 {
				continue
			}
			alt := res.Alternatives[0]
			t := types.Transcript{
				Text:       alt.Transcript,
				IsFinal:    res.IsFinal,
				Confidence: float64(alt.Confidence),
				Language:   res.LanguageCode,
				Words:      convertWords(alt.Words),
			}

			out := s.partials
			if t.IsFinal {
				out = s.finals
			}
			select {
			case out <- t:
			case <-ctx.Done():
				return
			case <-s.done:
				// Closing: stop delivering, the channels are about to close.
				return
			}
		}
	}
}

// convertWords converts Google word info into our WordDetail slice.
func convertWords(words []*speechpb.WordInfo) []types.WordDetail {
	if len(words) == 0 {
		return nil
	}
	out := make([]types.WordDetail, 0, len(words))
	for _, w := range words {
		d := types.WordDetail{
			Word:       w.Word,
			Confidence: float64(w.Confidence),
		}
		if w.StartTime != nil {
			d.Start = w.StartTime.AsDuration()
		}
		if w.EndTime != nil {
			d.End = w.EndTime.AsDuration()
		}
		out = append(out, d)
	}
	return out
}
