package v1

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice_verification/entity"
	"voice_verification/pkg/logger"
)

type stubUsecase struct {
	got      entity.AnalyzeRequest
	bodies   map[string]string
	analysis entity.Analysis
	err      error
	panic    bool

	archiveBody string
	archiveErr  error
	partial     bool
}

func (s *stubUsecase) Analyze(_ context.Context, req entity.AnalyzeRequest) (entity.Analysis, error) {
	if s.panic {
		panic("boom")
	}
	s.got = req
	s.bodies = map[string]string{}
	for _, up := range []*entity.UploadedAudio{req.File1, req.File2} {
		if up == nil {
			continue
		}
		b, _ := io.ReadAll(up.Body)
		s.bodies[up.Field] = string(b)
	}
	return s.analysis, s.err
}

func (s *stubUsecase) Archive(_ context.Context, _ string, _ bool, w io.Writer) error {
	if s.partial {
		io.WriteString(w, "partial")
	}
	if s.archiveErr != nil {
		return s.archiveErr
	}
	_, err := io.WriteString(w, s.archiveBody)
	return err
}

func (s *stubUsecase) ArchiveFormat(compressed bool) (string, string) {
	if compressed {
		return ".tar.gz", "application/gzip"
	}
	return ".tar", "application/x-tar"
}

func newTestRouter(uc entity.VerificationUsecase, maxUpload int64) *gin.Engine {
	gin.SetMode(gin.TestMode)
	handler := gin.New()
	NewRouter(handler, logger.NewWithWriter("error", io.Discard), uc, maxUpload)
	return handler
}

func multipartRequest(t *testing.T, fields map[string]string, files map[string][]byte) *http.Request {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	for k, v := range fields {
		require.NoError(t, mw.WriteField(k, v))
	}
	for field, content := range files {
		fw, err := mw.CreateFormFile(field, field+".wav")
		require.NoError(t, err)
		_, err = fw.Write(content)
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/analyze-similarity", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var r response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &r))
	return r.Error
}

func TestAnalyzeSimilarityOK(t *testing.T) {
	uc := &stubUsecase{analysis: entity.Analysis{
		RequestID: "req-1",
		Result:    entity.VerificationResult{Score: 0.87, IsSame: true},
	}}
	router := newTestRouter(uc, 1<<20)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t,
		map[string]string{"user_id": "u1", "sound_id": "s1"},
		map[string][]byte{"file1": []byte("one"), "file2": []byte("two")},
	))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"similarity_score":0.87,"is_same":true}`, w.Body.String())
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	assert.Equal(t, "u1", uc.got.UserID)
	assert.Equal(t, "s1", uc.got.SoundID)
	require.NotNil(t, uc.got.File1)
	assert.Equal(t, "file1.wav", uc.got.File1.Filename)
	assert.Equal(t, map[string]string{"file1": "one", "file2": "two"}, uc.bodies)
}

func TestAnalyzeSimilarityPassesMissingPartsThrough(t *testing.T) {
	uc := &stubUsecase{err: entity.NewError(entity.KindMissingField, "file2, sound_id", nil)}
	router := newTestRouter(uc, 1<<20)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t,
		map[string]string{"user_id": "u1"},
		map[string][]byte{"file1": []byte("one")},
	))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "file2, sound_id: missing required field", decodeError(t, w))
	assert.NotNil(t, uc.got.File1)
	assert.Nil(t, uc.got.File2)
}

func TestAnalyzeSimilarityNonMultipartBody(t *testing.T) {
	uc := &stubUsecase{err: entity.NewError(entity.KindMissingField, "file1, file2, user_id, sound_id", nil)}
	router := newTestRouter(uc, 1<<20)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/analyze-similarity", nil))

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Nil(t, uc.got.File1)
}

func TestAnalyzeSimilarityErrorStatuses(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{entity.NewError(entity.KindUnsupportedFormat, "file1", nil), http.StatusBadRequest},
		{entity.NewError(entity.KindEmptySignal, "file2", nil), http.StatusBadRequest},
		{entity.NewError(entity.KindConversionFailure, "file1", errors.New("<upload>/upload-file1.m4a: bad")), http.StatusInternalServerError},
		{entity.NewError(entity.KindTimeout, "file1", nil), http.StatusInternalServerError},
		{errors.New("unclassified"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := newTestRouter(&stubUsecase{err: tc.err}, 1<<20)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, multipartRequest(t,
			map[string]string{"user_id": "u1", "sound_id": "s1"},
			map[string][]byte{"file1": []byte("a"), "file2": []byte("b")},
		))
		assert.Equal(t, tc.status, w.Code, tc.err.Error())
		assert.Equal(t, tc.err.Error(), decodeError(t, w))
	}
}

func TestAnalyzeSimilarityUploadTooLarge(t *testing.T) {
	uc := &stubUsecase{}
	router := newTestRouter(uc, 1024)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t,
		map[string]string{"user_id": "u1", "sound_id": "s1"},
		map[string][]byte{"file1": bytes.Repeat([]byte{1}, 4096), "file2": []byte("b")},
	))

	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Empty(t, uc.got.UserID, "usecase must not run")
}

func TestAnalyzeSimilarityPanicIsJSON(t *testing.T) {
	router := newTestRouter(&stubUsecase{panic: true}, 1<<20)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, multipartRequest(t,
		map[string]string{"user_id": "u1", "sound_id": "s1"},
		map[string][]byte{"file1": []byte("a"), "file2": []byte("b")},
	))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal error", decodeError(t, w))
}

func TestArchiveEndpoint(t *testing.T) {
	router := newTestRouter(&stubUsecase{archiveBody: "TARBYTES"}, 1<<20)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sounds/u1/archive?format=tar", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "application/x-tar", w.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename=u1.tar`, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "TARBYTES", w.Body.String())

	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sounds/u1/archive", nil))
	assert.Equal(t, "application/gzip", w.Header().Get("Content-Type"))
}

func TestArchiveEndpointErrors(t *testing.T) {
	router := newTestRouter(&stubUsecase{}, 1<<20)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sounds/u1/archive?format=zip", nil))
	assert.Equal(t, http.StatusBadRequest, w.Code)

	router = newTestRouter(&stubUsecase{archiveErr: entity.NewError(entity.KindNotFound, "user_id", nil)}, 1<<20)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sounds/nobody/archive", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, w.Header().Get("Content-Type"), "application/json")
	assert.Empty(t, w.Header().Get("Content-Disposition"))
	assert.Equal(t, "user_id: not found", decodeError(t, w))

	router = newTestRouter(&stubUsecase{partial: true, archiveErr: errors.New("read failed")}, 1<<20)
	w = httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/sounds/u1/archive", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "partial", w.Body.String())
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&stubUsecase{}, 0)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}
