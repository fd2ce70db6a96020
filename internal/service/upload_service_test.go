package service

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
	"github.com/noah-isme/assignment-tracker-api/pkg/storage"
)

var pdfBytes = []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog >>\nendobj\ntrailer\n<< /Root 1 0 R >>\n%%EOF\n")

func memFile(name string, body []byte) UploadInput {
	return UploadInput{
		Filename: name,
		Size:     int64(len(body)),
		Open: func() (io.ReadCloser, error) {
			return io.NopCloser(bytes.NewReader(body)), nil
		},
	}
}

func newUploadFixture(t *testing.T, cfg UploadConfig) (*UploadService, string) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewLocalStorage(dir)
	require.NoError(t, err)
	if cfg.AllowedExtensions == nil {
		cfg.AllowedExtensions = []string{"pdf", "png", "zip"}
	}
	cfg.PublicBaseURL = "http://files.test/"
	cfg.APIPrefix = "/api/v1"
	return NewUploadService(store, storage.NewSignedURLSigner("secret", time.Hour), cfg, nil), dir
}

func TestUploadServiceStoresAndServesFile(t *testing.T) {
	svc, _ := newUploadFixture(t, UploadConfig{})

	files, err := svc.Upload(context.Background(), applicantActor("A1"), []UploadInput{memFile("My Report.pdf", pdfBytes)})
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "My_Report.pdf", files[0].Name)
	assert.Equal(t, "application/pdf", files[0].ContentType)
	assert.Equal(t, int64(len(pdfBytes)), files[0].SizeBytes)
	require.True(t, strings.HasPrefix(files[0].URL, "http://files.test/api/v1/files/"))

	token := strings.TrimPrefix(files[0].URL, "http://files.test/api/v1/files/")
	f, name, err := svc.Open(token)
	require.NoError(t, err)
	defer f.Close()
	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, pdfBytes, body)
	assert.Equal(t, "My_Report.pdf", name)

	_, _, err = svc.Open(token + "x")
	assert.True(t, errors.Is(err, appErrors.ErrNotFound))
}

func TestUploadServiceRejectsDisallowedExtension(t *testing.T) {
	svc, dir := newUploadFixture(t, UploadConfig{})

	_, err := svc.Upload(context.Background(), applicantActor("A1"), []UploadInput{
		memFile("ok.pdf", pdfBytes),
		memFile("run.exe", []byte("MZ")),
	})
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assertEmptyDir(t, dir)
}

func TestUploadServiceRejectsMismatchedContent(t *testing.T) {
	svc, dir := newUploadFixture(t, UploadConfig{})

	_, err := svc.Upload(context.Background(), applicantActor("A1"), []UploadInput{
		memFile("first.pdf", pdfBytes),
		memFile("fake.pdf", []byte("just some plain text pretending to be a pdf")),
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	assertEmptyDir(t, dir)
}

func TestUploadServiceEnforcesSizeLimits(t *testing.T) {
	svc, _ := newUploadFixture(t, UploadConfig{MaxFileSize: 64, MaxTotalSize: 100})
	big := append(append([]byte{}, pdfBytes...), bytes.Repeat([]byte("0"), 64)...)

	_, err := svc.Upload(context.Background(), applicantActor("A1"), []UploadInput{memFile("big.pdf", big)})
	assert.True(t, errors.Is(err, appErrors.ErrPayloadTooBig))

	small := pdfBytes[:60]
	_, err = svc.Upload(context.Background(), applicantActor("A1"), []UploadInput{memFile("a.pdf", small), memFile("b.pdf", small)})
	assert.True(t, errors.Is(err, appErrors.ErrPayloadTooBig))

	lying := memFile("liar.pdf", big)
	lying.Size = 10
	_, err = svc.Upload(context.Background(), applicantActor("A1"), []UploadInput{lying})
	assert.True(t, errors.Is(err, appErrors.ErrPayloadTooBig))
}

func TestUploadServiceRequiresFilesAndActor(t *testing.T) {
	svc, _ := newUploadFixture(t, UploadConfig{})
	_, err := svc.Upload(context.Background(), applicantActor("A1"), nil)
	assert.True(t, errors.Is(err, appErrors.ErrValidation))
	_, err = svc.Upload(context.Background(), nil, []UploadInput{memFile("a.pdf", pdfBytes)})
	assert.True(t, errors.Is(err, appErrors.ErrUnauthorized))
}

func assertEmptyDir(t *testing.T, dir string) {
	t.Helper()
	var files []string
	require.NoError(t, filepath.Walk(dir, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, p)
		}
		return nil
	}))
	assert.Empty(t, files)
}
