package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
	"github.com/noah-isme/assignment-tracker-api/pkg/storage"
)

const sniffLength = 3072

type blobStorage interface {
	SaveStream(name string, r io.Reader) (int64, error)
	Open(name string) (*os.File, error)
	Delete(name string) error
}

type urlSigner interface {
	Generate(fileID, relPath string) (string, time.Time, error)
	Parse(token string) (fileID, relPath string, err error)
}

// UploadConfig bounds what the upload side-channel accepts.
type UploadConfig struct {
	MaxFileSize       int64
	MaxTotalSize      int64
	AllowedExtensions []string
	PublicBaseURL     string
	APIPrefix         string
}

// UploadInput is one file offered for upload.
type UploadInput struct {
	Filename string
	Size     int64
	Open     func() (io.ReadCloser, error)
}

// UploadService stores submission blobs and hands back signed download URLs.
type UploadService struct {
	storage blobStorage
	signer  urlSigner
	cfg     UploadConfig
	allowed map[string]struct{}
	logger  *zap.Logger
	clock   func() time.Time
}

// NewUploadService constructs the service.
func NewUploadService(store blobStorage, signer urlSigner, cfg UploadConfig, logger *zap.Logger) *UploadService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxFileSize <= 0 {
		cfg.MaxFileSize = 10 << 20
	}
	if cfg.MaxTotalSize <= 0 {
		cfg.MaxTotalSize = 50 << 20
	}
	allowed := make(map[string]struct{}, len(cfg.AllowedExtensions))
	for _, ext := range cfg.AllowedExtensions {
		allowed[normalizeExt(ext)] = struct{}{}
	}
	return &UploadService{
		storage: store,
		signer:  signer,
		cfg:     cfg,
		allowed: allowed,
		logger:  logger,
		clock:   func() time.Time { return time.Now().UTC() },
	}
}

func normalizeExt(ext string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(ext)), ".")
}

// Upload validates every file before storing any of them. Either all files are stored or none.
func (s *UploadService) Upload(ctx context.Context, actor *models.JWTClaims, files []UploadInput) ([]dto.UploadedFile, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one file is required")
	}

	var total int64
	for _, f := range files {
		if !s.extensionAllowed(f.Filename) {
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("file type not allowed: %s", f.Filename))
		}
		if f.Size > s.cfg.MaxFileSize {
			return nil, appErrors.Clone(appErrors.ErrPayloadTooBig, fmt.Sprintf("%s exceeds the %d MB per-file limit", f.Filename, s.cfg.MaxFileSize>>20))
		}
		total += f.Size
	}
	if total > s.cfg.MaxTotalSize {
		return nil, appErrors.Clone(appErrors.ErrPayloadTooBig, fmt.Sprintf("combined upload exceeds %d MB", s.cfg.MaxTotalSize>>20))
	}

	stored := make([]string, 0, len(files))
	out := make([]dto.UploadedFile, 0, len(files))
	for _, f := range files {
		if err := ctx.Err(); err != nil {
			s.rollback(stored)
			return nil, storeFailure(err, "upload cancelled")
		}
		uploaded, relPath, err := s.store(f)
		if err != nil {
			s.rollback(stored)
			return nil, err
		}
		stored = append(stored, relPath)
		out = append(out, *uploaded)
	}

	s.logger.Info("files uploaded", zap.String("user_id", actor.UserID), zap.Int("count", len(out)), zap.Int64("bytes", total))
	return out, nil
}

func (s *UploadService) store(f UploadInput) (*dto.UploadedFile, string, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot read %s", f.Filename))
	}
	defer rc.Close() //nolint:errcheck

	head := make([]byte, sniffLength)
	n, err := io.ReadFull(rc, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("cannot read %s", f.Filename))
	}
	head = head[:n]

	mtype := mimetype.Detect(head)
	if !s.contentAllowed(mtype) {
		return nil, "", appErrors.Clone(appErrors.ErrValidation,
			fmt.Sprintf("content of %s (%s) is not an allowed file type", f.Filename, mtype.String()))
	}

	fileID := uuid.NewString()
	now := s.clock()
	name := sanitizeFilename(f.Filename)
	relPath := path.Join(now.Format("2006/01"), fileID, name)

	body := io.LimitReader(io.MultiReader(bytes.NewReader(head), rc), s.cfg.MaxFileSize+1)
	written, err := s.storage.SaveStream(relPath, body)
	if err != nil {
		return nil, "", storeFailure(err, "failed to store upload")
	}
	if written > s.cfg.MaxFileSize {
		_ = s.storage.Delete(relPath)
		return nil, "", appErrors.Clone(appErrors.ErrPayloadTooBig, fmt.Sprintf("%s exceeds the %d MB per-file limit", f.Filename, s.cfg.MaxFileSize>>20))
	}

	token, expiresAt, err := s.signer.Generate(fileID, relPath)
	if err != nil {
		_ = s.storage.Delete(relPath)
		return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download url")
	}

	return &dto.UploadedFile{
		URL:         s.downloadURL(token),
		Name:        name,
		SizeBytes:   written,
		ContentType: mtype.String(),
		ExpiresAt:   expiresAt,
	}, relPath, nil
}

// Open resolves a signed token to the stored blob and its download name.
func (s *UploadService) Open(token string) (*os.File, string, error) {
	_, relPath, err := s.signer.Parse(token)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, "", appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	file, err := s.storage.Open(relPath)
	if err != nil {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	return file, path.Base(relPath), nil
}

func (s *UploadService) extensionAllowed(filename string) bool {
	ext := normalizeExt(filepath.Ext(filename))
	if ext == "" {
		return false
	}
	_, ok := s.allowed[ext]
	return ok
}

// contentAllowed accepts sniffed content whose type, or any ancestor type, maps to an allowed extension.
func (s *UploadService) contentAllowed(mtype *mimetype.MIME) bool {
	for m := mtype; m != nil; m = m.Parent() {
		if _, ok := s.allowed[normalizeExt(m.Extension())]; ok {
			return true
		}
	}
	return false
}

func (s *UploadService) rollback(paths []string) {
	for _, p := range paths {
		if err := s.storage.Delete(p); err != nil {
			s.logger.Warn("failed to remove partial upload", zap.String("path", p), zap.Error(err))
		}
	}
}

func (s *UploadService) downloadURL(token string) string {
	return strings.TrimRight(s.cfg.PublicBaseURL, "/") + s.cfg.APIPrefix + "/files/" + token
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	name = strings.Map(func(r rune) rune {
		switch {
		case r == '/' || r == '\\' || r < 0x20:
			return -1
		case r == ' ':
			return '_'
		}
		return r
	}, name)
	if name == "" || name == "." || name == ".." {
		return "file"
	}
	return name
}
