package main

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"voice_verification/entity"
	"voice_verification/pkg/pcm"
)

func writeVoice(t *testing.T, path string, rate int) {
	t.Helper()
	n := rate
	s := make([]float64, n)
	for i := range s {
		x := float64(i) / float64(rate)
		s[i] = 0.3*math.Sin(2*math.Pi*140*x) + 0.2*math.Sin(2*math.Pi*280*x) + 0.1*math.Sin(2*math.Pi*1130*x)
	}
	require.NoError(t, pcm.WriteFile(path, entity.SampleBuffer{Channels: [][]float64{s}, SampleRate: rate}, 16))
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCompareAndArchive(t *testing.T) {
	dir := t.TempDir()
	store := filepath.Join(dir, "store")
	a := filepath.Join(dir, "a.wav")
	b := filepath.Join(dir, "b.wav")
	writeVoice(t, a, 16000)
	writeVoice(t, b, 16000)

	out, err := run(t, "compare", "--store", store, "--work-dir", dir, "--user", "u42", "--sound", "s7", a, b)
	require.NoError(t, err)

	var got compareOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.InDelta(t, 1.0, got.Score, 1e-6)
	assert.True(t, got.IsSame)
	assert.Equal(t, "s7_u42.wav", got.StoredName)
	assert.FileExists(t, filepath.Join(store, "s7_u42.wav"))

	archivePath := filepath.Join(dir, "u42.tar.gz")
	_, err = run(t, "archive", "--store", store, "--user", "u42", "-o", archivePath)
	require.NoError(t, err)

	f, err := os.Open(archivePath)
	require.NoError(t, err)
	defer f.Close()
	gz, err := gzip.NewReader(f)
	require.NoError(t, err)
	hdr, err := tar.NewReader(gz).Next()
	require.NoError(t, err)
	assert.Equal(t, "s7_u42.wav", hdr.Name)
}

func TestCompareReportsPipelineErrors(t *testing.T) {
	dir := t.TempDir()
	a := filepath.Join(dir, "a.wav")
	writeVoice(t, a, 8000)
	junk := filepath.Join(dir, "notes.txt")
	require.NoError(t, os.WriteFile(junk, []byte("not audio"), 0o644))

	_, err := run(t, "compare", "--store", filepath.Join(dir, "store"), "--user", "u", "--sound", "s", a, junk)
	require.Error(t, err)
	assert.Equal(t, entity.KindUnsupportedFormat, entity.KindOf(err))
	assert.NoDirExists(t, filepath.Join(dir, "store"))
}

func TestCompareRequiresIdentity(t *testing.T) {
	_, err := run(t, "compare", "a.wav", "b.wav")
	assert.Error(t, err)

	_, err = run(t, "compare", "--user", "u", "--sound", "s", "only-one.wav")
	assert.Error(t, err)
}

func TestArchiveUnknownUser(t *testing.T) {
	dir := t.TempDir()
	out := filepath.Join(dir, "x.tar.gz")
	_, err := run(t, "archive", "--store", dir, "--user", "ghost", "-o", out)
	assert.Equal(t, entity.KindNotFound, entity.KindOf(err))
	assert.NoFileExists(t, out)
}
