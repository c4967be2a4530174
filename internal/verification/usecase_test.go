package verification

import (
	"archive/tar"
	"bytes"
	"context"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice_verification/entity"
	"voice_verification/internal/storage/fsrepo"
	"voice_verification/pkg/logger"
	"voice_verification/pkg/pcm"
)

func tone(freq float64, rate int, seconds float64) entity.MonoBuffer {
	n := int(float64(rate) * seconds)
	s := make([]float64, n)
	for i := range s {
		s[i] = 0.4 * math.Sin(2*math.Pi*freq*float64(i)/float64(rate))
	}
	return entity.MonoBuffer{Samples: s, SampleRate: rate}
}

func wavBytes(t *testing.T, m entity.MonoBuffer) []byte {
	t.Helper()
	b, err := pcm.EncodeMono(m)
	require.NoError(t, err)
	return b
}

func upload(field, name string, body []byte) *entity.UploadedAudio {
	return &entity.UploadedAudio{Field: field, Filename: name, Body: bytes.NewReader(body)}
}

// m4aHeader is enough of an ISO-BMFF box for content sniffing.
var m4aHeader = []byte("\x00\x00\x00\x18ftypM4A \x00\x00\x02\x00isomiso2")

type fakeConverter struct {
	mu    sync.Mutex
	calls []string
	out   entity.MonoBuffer
	err   error
	block bool
}

func (c *fakeConverter) ConvertToWav(ctx context.Context, src, dst string) error {
	c.mu.Lock()
	c.calls = append(c.calls, filepath.Base(src))
	c.mu.Unlock()

	if c.block {
		<-ctx.Done()
		return ctx.Err()
	}
	if c.err != nil {
		return errors.Wrap(c.err, src)
	}
	return pcm.WriteFile(dst, entity.SampleBuffer{Channels: [][]float64{c.out.Samples}, SampleRate: c.out.SampleRate}, 16)
}

type fakeVerifier struct {
	mu     sync.Mutex
	inputs [][2]entity.MonoBuffer
	result entity.VerificationResult
	err    error
	panic  bool
}

func (v *fakeVerifier) Verify(_ context.Context, a, b entity.MonoBuffer) (entity.VerificationResult, error) {
	v.mu.Lock()
	v.inputs = append(v.inputs, [2]entity.MonoBuffer{a, b})
	v.mu.Unlock()
	if v.panic {
		panic("model exploded")
	}
	if v.err != nil {
		return entity.VerificationResult{}, v.err
	}
	return v.result, nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []entity.VerificationEvent
}

func (p *recordingPublisher) PublishVerification(_ context.Context, ev entity.VerificationEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	return nil
}

type failingStorage struct {
	entity.StorageRepository
}

func (failingStorage) Persist(context.Context, string, entity.IdentityKey) (entity.StoredAudioFile, error) {
	return entity.StoredAudioFile{}, errors.New("disk full")
}

type fixture struct {
	uc        *VerificationUsecase
	conv      *fakeConverter
	verifier  *fakeVerifier
	events    *recordingPublisher
	storeRoot string
	workDir   string
	registry  *prometheus.Registry
}

func newFixture(t *testing.T, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		conv:      &fakeConverter{out: tone(180, 16000, 1)},
		verifier:  &fakeVerifier{result: entity.VerificationResult{Score: 0.93, IsSame: true}},
		events:    &recordingPublisher{},
		storeRoot: t.TempDir(),
		workDir:   t.TempDir(),
		registry:  prometheus.NewRegistry(),
	}
	all := append([]Option{
		WorkDir(f.workDir),
		WithEvents(f.events),
		WithMetrics(NewMetrics(f.registry)),
	}, opts...)
	f.uc = NewVerificationUsecase(
		logger.NewWithWriter("error", io.Discard),
		f.conv,
		f.verifier,
		fsrepo.NewFSRepository(f.storeRoot),
		all...,
	)
	return f
}

func (f *fixture) assertWorkspaceGone(t *testing.T) {
	t.Helper()
	entries, err := os.ReadDir(f.workDir)
	require.NoError(t, err)
	assert.Empty(t, entries, "workspace left behind")
}

func (f *fixture) stored(t *testing.T) []string {
	t.Helper()
	entries, err := os.ReadDir(f.storeRoot)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func wavRequest(t *testing.T) entity.AnalyzeRequest {
	return entity.AnalyzeRequest{
		File1:   upload("file1", "enroll.wav", wavBytes(t, tone(150, 16000, 1))),
		File2:   upload("file2", "probe.wav", wavBytes(t, tone(150, 8000, 0.5))),
		UserID:  "u42",
		SoundID: "s7",
	}
}

func TestAnalyzeWavPair(t *testing.T) {
	f := newFixture(t)

	analysis, err := f.uc.Analyze(context.Background(), wavRequest(t))
	require.NoError(t, err)

	assert.Equal(t, entity.VerificationResult{Score: 0.93, IsSame: true}, analysis.Result)
	assert.NotEmpty(t, analysis.RequestID)
	assert.Equal(t, "s7_u42.wav", analysis.Stored.Name)
	assert.Empty(t, f.conv.calls, "canonical input must not be converted")

	require.Len(t, f.verifier.inputs, 1)
	assert.Equal(t, 16000, f.verifier.inputs[0][0].SampleRate)
	assert.Len(t, f.verifier.inputs[0][0].Samples, 16000)
	assert.Equal(t, 8000, f.verifier.inputs[0][1].SampleRate)
	assert.Len(t, f.verifier.inputs[0][1].Samples, 4000)

	assert.Equal(t, []string{"s7_u42.wav"}, f.stored(t))
	stored, err := pcm.Load(filepath.Join(f.storeRoot, "s7_u42.wav"))
	require.NoError(t, err)
	assert.Equal(t, 8000, stored.SampleRate)

	require.Len(t, f.events.events, 1)
	ev := f.events.events[0]
	assert.Equal(t, analysis.RequestID, ev.RequestID)
	assert.Equal(t, "u42", ev.UserID)
	assert.Equal(t, "s7", ev.SoundID)
	assert.Equal(t, 0.93, ev.Score)

	assert.Equal(t, 1.0, testutil.ToFloat64(f.uc.metrics.requests.WithLabelValues("ok")))
	f.assertWorkspaceGone(t)
}

func TestAnalyzeNormalizesNonCanonicalInput(t *testing.T) {
	f := newFixture(t)
	req := wavRequest(t)
	req.File2 = upload("file2", "probe.m4a", m4aHeader)

	analysis, err := f.uc.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"upload-file2.m4a"}, f.conv.calls)
	assert.Equal(t, "s7_u42.wav", analysis.Stored.Name)

	stored, err := pcm.Load(filepath.Join(f.storeRoot, "s7_u42.wav"))
	require.NoError(t, err)
	assert.Equal(t, 16000, stored.SampleRate)
	f.assertWorkspaceGone(t)
}

func TestAnalyzeSniffsContentOverExtension(t *testing.T) {
	f := newFixture(t)
	req := wavRequest(t)
	// WAV bytes behind a misleading name are taken as canonical.
	req.File1.Filename = "enroll.webm"
	// M4A bytes behind a .wav name still go through conversion.
	req.File2 = upload("file2", "probe.wav", m4aHeader)

	_, err := f.uc.Analyze(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"upload-file2.wav"}, f.conv.calls)
}

func TestAnalyzeMissingFields(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Analyze(context.Background(), entity.AnalyzeRequest{
		File1:  upload("file1", "a.wav", wavBytes(t, tone(100, 8000, 0.1))),
		UserID: "u1",
	})
	require.Error(t, err)
	assert.Equal(t, entity.KindMissingField, entity.KindOf(err))
	assert.Contains(t, err.Error(), "file2")
	assert.Contains(t, err.Error(), "sound_id")
	assert.NotContains(t, err.Error(), "user_id")

	assert.Empty(t, f.verifier.inputs)
	assert.Empty(t, f.stored(t))
	assert.Empty(t, f.events.events)
}

func TestAnalyzeRejectsUnsafeIdentifiers(t *testing.T) {
	for _, tc := range []struct{ user, sound, subject string }{
		{"../etc", "s1", "user_id"},
		{"u1", "a/b", "sound_id"},
		{"..", "s1", "user_id"},
		{"u1", `c:\x`, "sound_id"},
		{"u1", ".hidden", "sound_id"},
		{"x_b", "a", "user_id"},
	} {
		f := newFixture(t)
		req := wavRequest(t)
		req.UserID, req.SoundID = tc.user, tc.sound

		_, err := f.uc.Analyze(context.Background(), req)
		require.Error(t, err, tc)
		assert.Equal(t, entity.KindInvalidField, entity.KindOf(err), tc)
		assert.True(t, strings.HasPrefix(err.Error(), tc.subject), err.Error())
		assert.Empty(t, f.stored(t))
	}
}

func TestAnalyzeUnsupportedFormat(t *testing.T) {
	f := newFixture(t)
	req := wavRequest(t)
	req.File1 = upload("file1", "notes.txt", []byte("definitely not audio"))

	_, err := f.uc.Analyze(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, entity.KindUnsupportedFormat, entity.KindOf(err))
	assert.Equal(t, 400, entity.KindOf(err).Status())
	assert.Empty(t, f.conv.calls)
	assert.Empty(t, f.stored(t))
	f.assertWorkspaceGone(t)
}

func TestAnalyzeConversionFailureIsRedacted(t *testing.T) {
	f := newFixture(t)
	f.conv.err = errors.New("moov atom not found")
	req := wavRequest(t)
	req.File1 = upload("file1", "a.m4a", m4aHeader)

	_, err := f.uc.Analyze(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, entity.KindConversionFailure, entity.KindOf(err))
	assert.Contains(t, err.Error(), "file1")
	assert.Contains(t, err.Error(), "moov atom not found")
	assert.Contains(t, err.Error(), "<upload>")
	assert.NotContains(t, err.Error(), f.workDir)

	assert.Empty(t, f.verifier.inputs)
	assert.Empty(t, f.stored(t), "nothing persists before both inputs load")
	f.assertWorkspaceGone(t)
}

func TestAnalyzeLoadFailure(t *testing.T) {
	corrupt := []byte("RIFF\x24\x00\x00\x00WAVEjunk")
	for _, field := range []string{"file1", "file2"} {
		t.Run(field, func(t *testing.T) {
			f := newFixture(t)
			req := wavRequest(t)
			if field == "file1" {
				req.File1 = upload(field, "a.wav", corrupt)
			} else {
				req.File2 = upload(field, "b.wav", corrupt)
			}

			_, err := f.uc.Analyze(context.Background(), req)
			require.Error(t, err)
			assert.Equal(t, entity.KindLoadFailure, entity.KindOf(err))
			assert.True(t, strings.HasPrefix(err.Error(), field), err.Error())
			assert.Empty(t, f.stored(t))
			assert.Empty(t, f.verifier.inputs)
			f.assertWorkspaceGone(t)
		})
	}
}

func TestAnalyzeEmptySignal(t *testing.T) {
	f := newFixture(t, WithLoader(func(path string) (entity.SampleBuffer, error) {
		if strings.HasSuffix(path, "file1.wav") {
			return entity.SampleBuffer{Channels: [][]float64{{}}, SampleRate: 16000}, nil
		}
		return pcm.Load(path)
	}))

	_, err := f.uc.Analyze(context.Background(), wavRequest(t))
	require.Error(t, err)
	assert.Equal(t, entity.KindEmptySignal, entity.KindOf(err))
	assert.Equal(t, 400, entity.KindOf(err).Status())
	assert.Empty(t, f.verifier.inputs)
}

func TestAnalyzePersistFailure(t *testing.T) {
	f := newFixture(t)
	f.uc.storage = failingStorage{}

	_, err := f.uc.Analyze(context.Background(), wavRequest(t))
	require.Error(t, err)
	assert.Equal(t, entity.KindPersistFailure, entity.KindOf(err))
	assert.Empty(t, f.verifier.inputs, "verification runs after persistence")
}

func TestAnalyzeVerificationFailureKeepsStoredFile(t *testing.T) {
	f := newFixture(t)
	f.verifier.err = errors.New("model unavailable")

	_, err := f.uc.Analyze(context.Background(), wavRequest(t))
	require.Error(t, err)
	assert.Equal(t, entity.KindVerificationFailure, entity.KindOf(err))
	assert.Equal(t, []string{"s7_u42.wav"}, f.stored(t))
	assert.Empty(t, f.events.events)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.uc.metrics.requests.WithLabelValues(string(entity.KindVerificationFailure))))
}

func TestAnalyzeRejectsNonFiniteScore(t *testing.T) {
	f := newFixture(t)
	f.verifier.result = entity.VerificationResult{Score: math.NaN()}

	_, err := f.uc.Analyze(context.Background(), wavRequest(t))
	assert.Equal(t, entity.KindVerificationFailure, entity.KindOf(err))
}

func TestAnalyzeStageTimeout(t *testing.T) {
	f := newFixture(t, StageTimeout(20*time.Millisecond))
	f.conv.block = true
	req := wavRequest(t)
	req.File1 = upload("file1", "a.webm", []byte("\x1a\x45\xdf\xa3\x9f\x42\x86\x81\x01"))

	start := time.Now()
	_, err := f.uc.Analyze(context.Background(), req)
	require.Error(t, err)
	assert.Equal(t, entity.KindTimeout, entity.KindOf(err))
	assert.Less(t, time.Since(start), 5*time.Second)
	f.assertWorkspaceGone(t)
}

func TestAnalyzeRecoversFromPanic(t *testing.T) {
	f := newFixture(t)
	f.verifier.panic = true

	analysis, err := f.uc.Analyze(context.Background(), wavRequest(t))
	require.Error(t, err)
	assert.Equal(t, entity.KindInternal, entity.KindOf(err))
	assert.Equal(t, entity.Analysis{}, analysis)
	f.assertWorkspaceGone(t)
}

func TestAnalyzeSameKeyReplacesStoredFile(t *testing.T) {
	f := newFixture(t)

	_, err := f.uc.Analyze(context.Background(), wavRequest(t))
	require.NoError(t, err)

	req := wavRequest(t)
	req.File2 = upload("file2", "probe.wav", wavBytes(t, tone(300, 22050, 0.25)))
	_, err = f.uc.Analyze(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, []string{"s7_u42.wav"}, f.stored(t))
	stored, err := pcm.Load(filepath.Join(f.storeRoot, "s7_u42.wav"))
	require.NoError(t, err)
	assert.Equal(t, 22050, stored.SampleRate)
}

func TestAnalyzeConcurrentRequestsUseSeparateWorkspaces(t *testing.T) {
	f := newFixture(t)

	reqs := make([]entity.AnalyzeRequest, 8)
	for i := range reqs {
		reqs[i] = wavRequest(t)
		reqs[i].SoundID = "s" + string(rune('a'+i))
	}

	var wg sync.WaitGroup
	errs := make([]error, len(reqs))
	for i := range reqs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.uc.Analyze(context.Background(), reqs[i])
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.NoError(t, err)
	}
	assert.Len(t, f.stored(t), 8)
	f.assertWorkspaceGone(t)
}

func TestArchive(t *testing.T) {
	f := newFixture(t)
	_, err := f.uc.Analyze(context.Background(), wavRequest(t))
	require.NoError(t, err)

	var out bytes.Buffer
	require.NoError(t, f.uc.Archive(context.Background(), "u42", false, &out))

	tr := tar.NewReader(&out)
	hdr, err := tr.Next()
	require.NoError(t, err)
	assert.Equal(t, "s7_u42.wav", hdr.Name)
	_, err = tr.Next()
	assert.Equal(t, io.EOF, err)

	ext, ct := f.uc.ArchiveFormat(true)
	assert.Equal(t, ".tar.gz", ext)
	assert.Equal(t, "application/gzip", ct)
}

func TestArchiveErrors(t *testing.T) {
	f := newFixture(t)
	var out bytes.Buffer

	err := f.uc.Archive(context.Background(), "nobody", true, &out)
	assert.Equal(t, entity.KindNotFound, entity.KindOf(err))
	assert.Zero(t, out.Len())

	err = f.uc.Archive(context.Background(), "../x", true, &out)
	assert.Equal(t, entity.KindInvalidField, entity.KindOf(err))

	err = f.uc.Archive(context.Background(), "x_b", true, &out)
	assert.Equal(t, entity.KindInvalidField, entity.KindOf(err))

	err = f.uc.Archive(context.Background(), "", true, &out)
	assert.Equal(t, entity.KindMissingField, entity.KindOf(err))
}
