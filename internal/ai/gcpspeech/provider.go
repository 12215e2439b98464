// Package gcpspeech transcribes audio chunks with Google Cloud Speech-to-Text.
package gcpspeech

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	speech "cloud.google.com/go/speech/apiv1"
	speechpb "cloud.google.com/go/speech/apiv1/speechpb"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/kiranshivaraju/lecturelab/internal/config"
	"github.com/kiranshivaraju/lecturelab/pkg/models"
)

// 100 ms of 16 kHz mono LINEAR16 silence.
var silence = make([]byte, 3200)

type recognizeFunc func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error)

// Provider implements models.Transcriber with the synchronous Recognize RPC.
// Chunks are at most a minute long, which is the synchronous API limit.
type Provider struct {
	model     string
	language  string
	recognize recognizeFunc
	close     func() error
}

// NewProvider dials the Speech API using GOOGLE_APPLICATION_CREDENTIALS (a
// file path or an inline JSON document) or ambient credentials.
func NewProvider(ctx context.Context, cfg config.GCPSpeechConfig, model string) (*Provider, error) {
	c, err := speech.NewClient(ctx, clientOptions(cfg.CredentialsFile)...)
	if err != nil {
		return nil, fmt.Errorf("speech client: %w", err)
	}
	return &Provider{
		model:    model,
		language: cfg.LanguageCode,
		recognize: func(ctx context.Context, req *speechpb.RecognizeRequest) (*speechpb.RecognizeResponse, error) {
			return c.Recognize(ctx, req)
		},
		close: c.Close,
	}, nil
}

func clientOptions(creds string) []option.ClientOption {
	creds = strings.TrimSpace(creds)
	switch {
	case creds == "":
		return nil
	case strings.HasPrefix(creds, "{"):
		return []option.ClientOption{option.WithCredentialsJSON([]byte(creds))}
	default:
		return []option.ClientOption{option.WithCredentialsFile(creds)}
	}
}

func (p *Provider) Name() string { return "gcpspeech:" + p.model }

func (p *Provider) Close() error {
	if p == nil || p.close == nil {
		return nil
	}
	return p.close()
}

// Probe recognizes a short burst of silence.
func (p *Provider) Probe(ctx context.Context) error {
	_, err := p.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:        speechpb.RecognitionConfig_LINEAR16,
			SampleRateHertz: 16000,
			LanguageCode:    p.language,
			Model:           p.model,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: silence}},
	})
	return wrapStatus(err)
}

func (p *Provider) Transcribe(ctx context.Context, req models.TranscribeRequest) (string, error) {
	if len(req.Audio) == 0 {
		return "", nil
	}
	lang := req.Language
	if lang == "" {
		lang = p.language
	}

	resp, err := p.recognize(ctx, &speechpb.RecognizeRequest{
		Config: &speechpb.RecognitionConfig{
			Encoding:                   inferEncoding(req.MIMEType, req.FileName),
			LanguageCode:               lang,
			Model:                      p.model,
			EnableAutomaticPunctuation: true,
		},
		Audio: &speechpb.RecognitionAudio{AudioSource: &speechpb.RecognitionAudio_Content{Content: req.Audio}},
	})
	if err != nil {
		return "", wrapStatus(err)
	}

	var sb strings.Builder
	for _, r := range resp.GetResults() {
		alts := r.GetAlternatives()
		if len(alts) == 0 {
			continue
		}
		text := strings.TrimSpace(alts[0].GetTranscript())
		if text == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteString(" ")
		}
		sb.WriteString(text)
	}
	return sb.String(), nil
}

func inferEncoding(mimeType, name string) speechpb.RecognitionConfig_AudioEncoding {
	m := strings.ToLower(strings.TrimSpace(mimeType))
	ext := strings.ToLower(filepath.Ext(name))

	switch {
	case strings.Contains(m, "flac") || ext == ".flac":
		return speechpb.RecognitionConfig_FLAC
	case strings.Contains(m, "wav") || ext == ".wav":
		return speechpb.RecognitionConfig_LINEAR16
	case strings.Contains(m, "mpeg") || strings.Contains(m, "mp3") || ext == ".mp3":
		return speechpb.RecognitionConfig_MP3
	case strings.Contains(m, "ogg") || ext == ".ogg" || ext == ".opus":
		return speechpb.RecognitionConfig_OGG_OPUS
	default:
		return speechpb.RecognitionConfig_ENCODING_UNSPECIFIED
	}
}

// statusError exposes a gRPC status as the equivalent HTTP status so the
// facade classifies it like every other backend.
type statusError struct {
	code codes.Code
	err  error
}

func (e *statusError) Error() string { return e.err.Error() }
func (e *statusError) Unwrap() error { return e.err }

func (e *statusError) HTTPStatusCode() int {
	switch e.code {
	case codes.InvalidArgument, codes.FailedPrecondition, codes.OutOfRange:
		return http.StatusBadRequest
	case codes.Unauthenticated:
		return http.StatusUnauthorized
	case codes.PermissionDenied:
		return http.StatusForbidden
	case codes.NotFound:
		return http.StatusNotFound
	case codes.ResourceExhausted:
		return http.StatusTooManyRequests
	case codes.DeadlineExceeded:
		return http.StatusGatewayTimeout
	case codes.Unavailable:
		return http.StatusServiceUnavailable
	case codes.Unimplemented:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

func wrapStatus(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return err
	}
	if st, ok := status.FromError(err); ok {
		return &statusError{code: st.Code(), err: err}
	}
	return err
}

var _ models.Transcriber = (*Provider)(nil)
