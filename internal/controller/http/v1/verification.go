package v1

import (
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"voice_verification/entity"
	"voice_verification/pkg/logger"
)

const multipartMemory = 8 << 20

type verificationRoutes struct {
	uc        entity.VerificationUsecase
	l         logger.Interface
	maxUpload int64
}

func newVerificationRoutes(handler *gin.RouterGroup, uc entity.VerificationUsecase, l logger.Interface, maxUpload int64) {
	r := &verificationRoutes{uc, l, maxUpload}

	handler.POST("/analyze-similarity", r.analyzeSimilarity)
	handler.GET("/sounds/:user_id/archive", r.archive)
}

// @Summary     Compare two recordings
// @Description Scores whether file1 and file2 come from the same speaker and stores file2 under {sound_id}_{user_id}.wav
// @ID          analyze-similarity
// @Tags        verification
// @Accept      multipart/form-data
// @Produce     json
// @Param       file1    formData file   true "reference recording"
// @Param       file2    formData file   true "recording to verify and store"
// @Param       user_id  formData string true "user identifier, no underscores"
// @Param       sound_id formData string true "sound identifier"
// @Success     200 {object} entity.VerificationResult
// @Failure     400 {object} response
// @Failure     413 {object} response
// @Failure     500 {object} response
// @Router      /analyze-similarity [post]
func (r *verificationRoutes) analyzeSimilarity(c *gin.Context) {
	ctx, span := otel.Tracer(traceName).Start(c.Request.Context(), "analyze-similarity-api")
	defer span.End()
	if sc := trace.SpanContextFromContext(ctx); sc.HasTraceID() {
		c.Header("X-Trace-ID", sc.TraceID().String())
	}

	if r.maxUpload > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, r.maxUpload)
	}
	if err := c.Request.ParseMultipartForm(multipartMemory); err != nil && !errors.Is(err, http.ErrNotMultipart) {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			errorResponse(c, http.StatusRequestEntityTooLarge, "upload exceeds limit")
			return
		}
		r.l.Warn("http - v1 - analyzeSimilarity - parse form: %v", err)
		errorResponse(c, http.StatusBadRequest, "malformed multipart body")
		return
	}
	if form := c.Request.MultipartForm; form != nil {
		defer form.RemoveAll()
	}

	req := entity.AnalyzeRequest{
		UserID:  c.Request.FormValue("user_id"),
		SoundID: c.Request.FormValue("sound_id"),
	}

	var err error
	var closers []io.Closer
	defer func() {
		for _, cl := range closers {
			cl.Close()
		}
	}()
	for _, field := range []string{"file1", "file2"} {
		up, f, ferr := formFile(c.Request.MultipartForm, field)
		if ferr != nil {
			err = ferr
			break
		}
		if f != nil {
			closers = append(closers, f)
		}
		if field == "file1" {
			req.File1 = up
		} else {
			req.File2 = up
		}
	}
	if err != nil {
		r.l.Error("http - v1 - analyzeSimilarity: %v", err)
		errorResponse(c, http.StatusInternalServerError, "failed to read upload")
		return
	}

	analysis, err := r.uc.Analyze(ctx, req)
	if err != nil {
		r.fail(c, err, "http - v1 - analyzeSimilarity")
		return
	}
	span.SetAttributes(attribute.String("request_id", analysis.RequestID))

	c.Header("X-Request-ID", analysis.RequestID)
	c.JSON(http.StatusOK, analysis.Result)
}

// @Summary     Download stored sounds
// @Description Streams every stored sound of a user as a tar or tar.gz archive
// @ID          sound-archive
// @Tags        storage
// @Produce     application/gzip
// @Param       user_id path  string true  "user identifier"
// @Param       format  query string false "tar or tgz" Enums(tar, tgz) default(tgz)
// @Success     200 {file} file
// @Failure     400 {object} response
// @Failure     404 {object} response
// @Failure     500 {object} response
// @Router      /sounds/{user_id}/archive [get]
func (r *verificationRoutes) archive(c *gin.Context) {
	ctx, span := otel.Tracer(traceName).Start(c.Request.Context(), "archive-api")
	defer span.End()

	userID := c.Param("user_id")

	var compressed bool
	switch format := c.DefaultQuery("format", "tgz"); format {
	case "tgz", "tar.gz":
		compressed = true
	case "tar":
	default:
		errorResponse(c, http.StatusBadRequest, "format: must be tar or tgz")
		return
	}

	ext, contentType := r.uc.ArchiveFormat(compressed)
	c.Header("Content-Type", contentType)
	c.Header("Content-Disposition", mime.FormatMediaType("attachment", map[string]string{"filename": userID + ext}))

	err := r.uc.Archive(ctx, userID, compressed, c.Writer)
	if err == nil {
		return
	}
	if c.Writer.Written() {
		// The status line is gone; all that is left is to cut the stream.
		r.l.Error("http - v1 - archive - mid-stream: %v", err)
		c.Abort()
		return
	}
	c.Writer.Header().Del("Content-Disposition")
	c.Writer.Header().Del("Content-Type")
	r.fail(c, err, "http - v1 - archive")
}

func (r *verificationRoutes) fail(c *gin.Context, err error, where string) {
	status := entity.KindOf(err).Status()
	if status >= http.StatusInternalServerError {
		r.l.Error("%s: %v", where, err)
	} else {
		r.l.Warn("%s: %v", where, err)
	}
	errorResponse(c, status, err.Error())
}

// formFile opens the first part named field. A missing part is not an
// error here; the usecase reports it with the other missing fields.
func formFile(form *multipart.Form, field string) (*entity.UploadedAudio, multipart.File, error) {
	if form == nil || len(form.File[field]) == 0 {
		return nil, nil, nil
	}
	fh := form.File[field][0]
	f, err := fh.Open()
	if err != nil {
		return nil, nil, errors.Wrapf(err, "open %s", field)
	}
	return &entity.UploadedAudio{Field: field, Filename: fh.Filename, Body: f}, f, nil
}
