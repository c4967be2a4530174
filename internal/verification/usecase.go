package verification

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"voice_verification/entity"
	"voice_verification/pkg/archive"
	"voice_verification/pkg/audioformat"
	"voice_verification/pkg/logger"
	"voice_verification/pkg/pcm"
)

const (
	traceName           = "verification-usecase"
	defaultStageTimeout = 30 * time.Second
)

// Converter turns any supported container into a PCM WAV at dst.
type Converter interface {
	ConvertToWav(ctx context.Context, src, dst string) error
}

// Loader decodes a canonical WAV file.
type Loader func(path string) (entity.SampleBuffer, error)

type VerificationUsecase struct {
	converter Converter
	load      Loader
	verifier  entity.Verifier
	storage   entity.StorageRepository
	events    entity.EventPublisher

	uncompressedArchiever archive.Archiver
	compressedArchiever   archive.Archiver

	metrics      *Metrics
	l            logger.Interface
	workDir      string
	stageTimeout time.Duration
}

type Option func(*VerificationUsecase)

// WorkDir sets the parent directory of per-request workspaces.
func WorkDir(dir string) Option {
	return func(uc *VerificationUsecase) { uc.workDir = dir }
}

// StageTimeout bounds each conversion, load, persist and verify stage.
// Zero or negative disables the bound.
func StageTimeout(d time.Duration) Option {
	return func(uc *VerificationUsecase) { uc.stageTimeout = d }
}

func WithMetrics(m *Metrics) Option {
	return func(uc *VerificationUsecase) { uc.metrics = m }
}

func WithEvents(p entity.EventPublisher) Option {
	return func(uc *VerificationUsecase) { uc.events = p }
}

func WithLoader(fn Loader) Option {
	return func(uc *VerificationUsecase) { uc.load = fn }
}

func NewVerificationUsecase(
	l logger.Interface,
	converter Converter,
	verifier entity.Verifier,
	storage entity.StorageRepository,
	opts ...Option,
) *VerificationUsecase {
	uc := &VerificationUsecase{
		converter:             converter,
		load:                  pcm.Load,
		verifier:              verifier,
		storage:               storage,
		uncompressedArchiever: archive.NewTarArchiever(),
		compressedArchiever:   archive.NewTarGzArchiever(),
		l:                     l,
		stageTimeout:          defaultStageTimeout,
	}
	for _, opt := range opts {
		opt(uc)
	}
	if uc.metrics == nil {
		uc.metrics = NewMetrics(nil)
	}
	return uc
}

// input tracks one uploaded file through the pipeline.
type input struct {
	field string
	path  string
	mono  entity.MonoBuffer
}

// Analyze runs the full pipeline for one request. file2 is persisted
// before verification, so a verification failure leaves it stored.
func (uc *VerificationUsecase) Analyze(ctx context.Context, req entity.AnalyzeRequest) (analysis entity.Analysis, err error) {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Analyze")
	defer span.End()

	started := time.Now()
	requestID := uuid.NewString()
	span.SetAttributes(attribute.String("request_id", requestID))

	defer func() {
		if r := recover(); r != nil {
			uc.l.Error("verification - Analyze - panic: %v\n%s", r, debug.Stack())
			analysis = entity.Analysis{}
			err = entity.NewError(entity.KindInternal, "", errors.Errorf("unexpected fault: %v", r))
		}
		uc.metrics.observeRequest(err, time.Since(started))
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
	}()

	key, err := validate(req)
	if err != nil {
		return entity.Analysis{}, err
	}
	span.SetAttributes(
		attribute.String("user_id", key.UserID),
		attribute.String("sound_id", key.SoundID),
	)

	ws, err := newWorkspace(uc.workDir)
	if err != nil {
		return entity.Analysis{}, entity.NewError(entity.KindInternal, "", err)
	}
	defer func() {
		if cerr := ws.Close(); cerr != nil {
			uc.l.Warn("verification - Analyze - workspace cleanup: %v", cerr)
		}
	}()

	analysis, err = uc.run(ctx, ws, req, key)
	if err != nil {
		return entity.Analysis{}, ws.redact(err)
	}
	analysis.RequestID = requestID

	uc.publish(ctx, analysis)
	return analysis, nil
}

func (uc *VerificationUsecase) run(ctx context.Context, ws *workspace, req entity.AnalyzeRequest, key entity.IdentityKey) (entity.Analysis, error) {
	inputs := []*input{{field: "file1"}, {field: "file2"}}
	uploads := []*entity.UploadedAudio{req.File1, req.File2}

	for i, in := range inputs {
		if err := uc.normalize(ctx, ws, in, uploads[i]); err != nil {
			return entity.Analysis{}, err
		}
	}

	buffers := make([]entity.SampleBuffer, len(inputs))
	for i, in := range inputs {
		in := in
		err := uc.stage(ctx, "load", in.field, entity.KindLoadFailure, func(context.Context) error {
			buf, err := uc.load(in.path)
			buffers[i] = buf
			return err
		})
		if err != nil {
			return entity.Analysis{}, err
		}
	}

	for i, in := range inputs {
		mono, err := pcm.ToMono(buffers[i])
		if errors.Is(err, pcm.ErrEmptySignal) {
			return entity.Analysis{}, entity.NewError(entity.KindEmptySignal, in.field, nil)
		}
		if err != nil {
			return entity.Analysis{}, entity.NewError(entity.KindLoadFailure, in.field, err)
		}
		in.mono = mono
	}

	var stored entity.StoredAudioFile
	err := uc.stage(ctx, "persist", inputs[1].field, entity.KindPersistFailure, func(ctx context.Context) error {
		var err error
		stored, err = uc.storage.Persist(ctx, inputs[1].path, key)
		return err
	})
	if err != nil {
		return entity.Analysis{}, err
	}
	uc.l.Info("verification - stored %s for user %s", stored.Name, key.UserID)

	var result entity.VerificationResult
	err = uc.stage(ctx, "verify", "", entity.KindVerificationFailure, func(ctx context.Context) error {
		var err error
		result, err = uc.verifier.Verify(ctx, inputs[0].mono, inputs[1].mono)
		if err == nil && (math.IsNaN(result.Score) || math.IsInf(result.Score, 0)) {
			err = errors.Errorf("non-finite score %v", result.Score)
		}
		return err
	})
	if err != nil {
		return entity.Analysis{}, err
	}
	uc.metrics.observeResult(result)

	return entity.Analysis{Result: result, Stored: stored}, nil
}

// normalize saves the upload, identifies its container and leaves in.path
// pointing at a canonical WAV file.
func (uc *VerificationUsecase) normalize(ctx context.Context, ws *workspace, in *input, up *entity.UploadedAudio) error {
	src, err := ws.save(in.field, up)
	if err != nil {
		return entity.NewError(entity.KindInternal, in.field, err)
	}

	header, err := readHeader(src)
	if err != nil {
		return entity.NewError(entity.KindInternal, in.field, err)
	}

	format, err := audioformat.Detect(header, up.Filename)
	if err != nil {
		return entity.NewError(entity.KindUnsupportedFormat, in.field, errors.Errorf("unrecognised content in %q", up.Filename))
	}

	in.path = ws.path(in.field + entity.DefaultExtension)
	if format.Canonical {
		if err := os.Rename(src, in.path); err != nil {
			return entity.NewError(entity.KindInternal, in.field, err)
		}
		return nil
	}

	return uc.stage(ctx, "normalize", in.field, entity.KindConversionFailure, func(ctx context.Context) error {
		return uc.converter.ConvertToWav(ctx, src, in.path)
	})
}

// stage runs fn under the per-stage deadline and classifies its failure.
func (uc *VerificationUsecase) stage(ctx context.Context, name, subject string, kind entity.ErrorKind, fn func(context.Context) error) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, name)
	defer span.End()
	if subject != "" {
		span.SetAttributes(attribute.String("input", subject))
	}

	if uc.stageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, uc.stageTimeout)
		defer cancel()
	}

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				uc.l.Error("verification - %s - panic: %v\n%s", name, r, debug.Stack())
				done <- &panicError{value: r}
			}
		}()
		done <- fn(ctx)
	}()

	var err error
	select {
	case err = <-done:
	case <-ctx.Done():
		err = ctx.Err()
	}
	uc.metrics.observeStage(name, time.Since(start))

	if err == nil {
		return nil
	}
	span.RecordError(err)

	var pe *panicError
	switch {
	case errors.As(err, &pe):
		return entity.NewError(entity.KindInternal, subject, err)
	case errors.Is(err, context.DeadlineExceeded):
		return entity.NewError(entity.KindTimeout, subject, errors.Errorf("%s exceeded %s", name, uc.stageTimeout))
	case errors.Is(err, context.Canceled):
		return entity.NewError(entity.KindInternal, subject, errors.Wrap(err, name))
	}
	return entity.NewError(kind, subject, err)
}

func (uc *VerificationUsecase) publish(ctx context.Context, a entity.Analysis) {
	if uc.events == nil {
		return
	}
	ev := entity.VerificationEvent{
		RequestID:  a.RequestID,
		UserID:     a.Stored.Key.UserID,
		SoundID:    a.Stored.Key.SoundID,
		Score:      a.Result.Score,
		IsSame:     a.Result.IsSame,
		StoredName: a.Stored.Name,
		Location:   a.Stored.Location,
		CreatedAt:  time.Now().UTC(),
	}
	if err := uc.events.PublishVerification(ctx, ev); err != nil {
		uc.l.Warn("verification - publish %s: %v", a.RequestID, err)
	}
}

// Archive streams every sound stored for userID as a tar (or tar.gz)
// into w. Nothing is written when the user has no sounds.
func (uc *VerificationUsecase) Archive(ctx context.Context, userID string, compressed bool, w io.Writer) error {
	ctx, span := otel.Tracer(traceName).Start(ctx, "Archive")
	defer span.End()
	span.SetAttributes(attribute.String("user_id", userID))

	if strings.TrimSpace(userID) == "" {
		return entity.NewError(entity.KindMissingField, "user_id", nil)
	}
	if err := checkUserID(userID); err != nil {
		return entity.NewError(entity.KindInvalidField, "user_id", err)
	}

	files, err := uc.storage.List(ctx, userID)
	if err != nil {
		return entity.NewError(entity.KindInternal, "", errors.Wrap(err, "list stored sounds"))
	}
	if len(files) == 0 {
		return entity.NewError(entity.KindNotFound, "user_id", errors.Errorf("no stored sounds for %s", userID))
	}

	members := make([]archive.Member, 0, len(files))
	for _, f := range files {
		name := f.Name
		members = append(members, archive.Member{
			Name:    name,
			Size:    f.Size,
			ModTime: f.ModTime,
			Open: func() (io.ReadCloser, error) {
				return uc.storage.Open(ctx, name)
			},
		})
	}

	archiver := uc.uncompressedArchiever
	if compressed {
		archiver = uc.compressedArchiever
	}
	if err := archiver.Compress(ctx, members, w); err != nil {
		return errors.Wrap(err, "write archive")
	}
	return nil
}

// ArchiveFormat reports the extension and content type Archive will emit.
func (uc *VerificationUsecase) ArchiveFormat(compressed bool) (ext, contentType string) {
	a := uc.uncompressedArchiever
	if compressed {
		a = uc.compressedArchiever
	}
	return a.Ext(), a.ContentType()
}

func validate(req entity.AnalyzeRequest) (entity.IdentityKey, error) {
	var missing []string
	if req.File1 == nil || req.File1.Body == nil {
		missing = append(missing, "file1")
	}
	if req.File2 == nil || req.File2.Body == nil {
		missing = append(missing, "file2")
	}
	if strings.TrimSpace(req.UserID) == "" {
		missing = append(missing, "user_id")
	}
	if strings.TrimSpace(req.SoundID) == "" {
		missing = append(missing, "sound_id")
	}
	if len(missing) > 0 {
		return entity.IdentityKey{}, entity.NewError(entity.KindMissingField, strings.Join(missing, ", "), nil)
	}

	if err := checkUserID(req.UserID); err != nil {
		return entity.IdentityKey{}, entity.NewError(entity.KindInvalidField, "user_id", err)
	}
	if err := checkIdentifier(req.SoundID); err != nil {
		return entity.IdentityKey{}, entity.NewError(entity.KindInvalidField, "sound_id", err)
	}
	if strings.HasPrefix(req.SoundID, ".") {
		return entity.IdentityKey{}, entity.NewError(entity.KindInvalidField, "sound_id", errors.New("must not start with '.'"))
	}

	return entity.IdentityKey{UserID: req.UserID, SoundID: req.SoundID}, nil
}

// checkIdentifier rejects values that could escape the storage root.
func checkIdentifier(id string) error {
	if id == "." || id == ".." {
		return errors.Errorf("%q is not allowed", id)
	}
	if strings.ContainsAny(id, "/\\\x00") {
		return errors.New("must not contain path separators")
	}
	return nil
}

// checkUserID also rejects the separator so a stored name has one owner.
func checkUserID(id string) error {
	if err := checkIdentifier(id); err != nil {
		return err
	}
	if strings.Contains(id, entity.UserIDSeparator) {
		return errors.Errorf("must not contain %q", entity.UserIDSeparator)
	}
	return nil
}

func readHeader(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "open upload")
	}
	defer f.Close()

	buf := make([]byte, audioformat.SniffLen)
	n, err := io.ReadFull(f, buf)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "read upload header")
	}
	return buf[:n], nil
}

type panicError struct {
	value interface{}
}

func (e *panicError) Error() string {
	return fmt.Sprintf("unexpected fault: %v", e.value)
}

var _ entity.VerificationUsecase = (*VerificationUsecase)(nil)
