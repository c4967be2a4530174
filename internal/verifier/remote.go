package verifier

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"voice_verification/entity"
	"voice_verification/pkg/pcm"
)

const (
	traceName       = "verifier"
	maxErrorBodyLen = 4 << 10
)

// Remote calls a model service that exposes POST {base}/verify taking two
// mono WAV parts and answering {"score": float, "is_same": bool}.
type Remote struct {
	endpoint string
	client   *http.Client
}

func NewRemote(baseURL string, timeout time.Duration) *Remote {
	return &Remote{
		endpoint: strings.TrimRight(baseURL, "/") + "/verify",
		client:   &http.Client{Timeout: timeout},
	}
}

type remoteResponse struct {
	Score  *float64 `json:"score"`
	IsSame *bool    `json:"is_same"`
	Error  string   `json:"error"`
}

func (r *Remote) Verify(ctx context.Context, a, b entity.MonoBuffer) (entity.VerificationResult, error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Remote.Verify")
	defer span.End()

	body, contentType, err := encodePair(a, b)
	if err != nil {
		return entity.VerificationResult{}, err
	}
	span.SetAttributes(attribute.Int("request.bytes", body.Len()))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.endpoint, body)
	if err != nil {
		return entity.VerificationResult{}, errors.Wrap(err, "build request")
	}
	req.Header.Set("Content-Type", contentType)

	resp, err := r.client.Do(req)
	if err != nil {
		return entity.VerificationResult{}, errors.Wrap(err, "call model service")
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return entity.VerificationResult{}, errors.Wrap(err, "read model response")
	}

	var out remoteResponse
	decodeErr := json.Unmarshal(raw, &out)

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := out.Error
		if decodeErr != nil || msg == "" {
			msg = strings.TrimSpace(string(truncate(raw, maxErrorBodyLen)))
		}
		return entity.VerificationResult{}, errors.Errorf("model service returned %d: %s", resp.StatusCode, msg)
	}
	if decodeErr != nil {
		return entity.VerificationResult{}, errors.Wrap(decodeErr, "decode model response")
	}
	if out.Score == nil || out.IsSame == nil {
		return entity.VerificationResult{}, errors.New("model response missing score or is_same")
	}
	if math.IsNaN(*out.Score) || math.IsInf(*out.Score, 0) {
		return entity.VerificationResult{}, errors.New("model returned a non-finite score")
	}

	return entity.VerificationResult{Score: *out.Score, IsSame: *out.IsSame}, nil
}

func encodePair(a, b entity.MonoBuffer) (*bytes.Buffer, string, error) {
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)

	parts := []struct {
		name string
		buf  entity.MonoBuffer
	}{{"audio_a", a}, {"audio_b", b}}

	for _, p := range parts {
		data, err := pcm.EncodeMono(p.buf)
		if err != nil {
			return nil, "", errors.Wrapf(err, "encode %s", p.name)
		}
		fw, err := mw.CreateFormFile(p.name, p.name+".wav")
		if err != nil {
			return nil, "", errors.Wrap(err, "create form file")
		}
		if _, err := fw.Write(data); err != nil {
			return nil, "", errors.Wrap(err, "write form file")
		}
		if err := mw.WriteField("sample_rate_"+strings.TrimPrefix(p.name, "audio_"), strconv.Itoa(p.buf.SampleRate)); err != nil {
			return nil, "", errors.Wrap(err, "write form field")
		}
	}
	if err := mw.Close(); err != nil {
		return nil, "", errors.Wrap(err, "close multipart")
	}
	return body, mw.FormDataContentType(), nil
}

func truncate(b []byte, n int) []byte {
	if len(b) > n {
		return b[:n]
	}
	return b
}
