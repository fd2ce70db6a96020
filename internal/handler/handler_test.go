package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/assignment-tracker-api/internal/dto"
	"github.com/noah-isme/assignment-tracker-api/internal/middleware"
	"github.com/noah-isme/assignment-tracker-api/internal/models"
	"github.com/noah-isme/assignment-tracker-api/internal/service"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
)

var (
	staffClaims     = &models.JWTClaims{UserID: "I1", Role: models.RoleInstructor}
	applicantClaims = &models.JWTClaims{UserID: "A1", Role: models.RoleApplicant}
)

type assignmentServiceStub struct {
	result *dto.CreateAssignmentResult
	err    error
	got    dto.CreateAssignmentRequest
}

func (s *assignmentServiceStub) CreateAssignment(ctx context.Context, actor *models.JWTClaims, req dto.CreateAssignmentRequest) (*dto.CreateAssignmentResult, error) {
	s.got = req
	return s.result, s.err
}

func (s *assignmentServiceStub) ListAssignments(ctx context.Context, actor *models.JWTClaims, query dto.AssignmentQuery) ([]models.Assignment, *models.Pagination, error) {
	return []models.Assignment{{ID: "asg-1"}}, &models.Pagination{Page: query.Page, PageSize: query.PageSize, TotalCount: 1}, nil
}

func (s *assignmentServiceStub) GetAssignment(ctx context.Context, actor *models.JWTClaims, id string) (*models.Assignment, error) {
	if id != "asg-1" {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
	}
	return &models.Assignment{ID: id}, nil
}

type rosterServiceStub struct{}

func (rosterServiceStub) AssignmentRoster(ctx context.Context, actor *models.JWTClaims, assignmentID string) (*models.Assignment, []dto.RosterItem, error) {
	return &models.Assignment{ID: assignmentID}, []dto.RosterItem{{ApplicantID: "A1"}}, nil
}

type exporterStub struct{}

func (exporterStub) ExportGradebook(ctx context.Context, actor *models.JWTClaims, assignmentID string, format service.ExportFormat) (*service.ExportResult, error) {
	if format == "xlsx" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "format must be csv or pdf")
	}
	return &service.ExportResult{Filename: "gradebook-" + assignmentID + ".csv", ContentType: "text/csv", Payload: []byte("a,b\n")}, nil
}

type trackServiceStub struct {
	err       error
	submitted dto.SubmitAssignmentRequest
}

func (s *trackServiceStub) progress(applicantID, assignmentID string, stage models.Stage) (*dto.AssignmentProgress, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &dto.AssignmentProgress{
		Entry:  models.TrackEntry{ApplicantID: applicantID, AssignmentID: assignmentID, Stage: stage},
		Status: dto.TrackStatus{Stage: stage},
	}, nil
}

func (s *trackServiceStub) Accept(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string) (*dto.AssignmentProgress, error) {
	return s.progress(applicantID, assignmentID, models.StageInProgress)
}

func (s *trackServiceStub) Submit(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string, req dto.SubmitAssignmentRequest) (*dto.AssignmentProgress, error) {
	s.submitted = req
	return s.progress(applicantID, assignmentID, models.StageSubmitted)
}

func (s *trackServiceStub) Evaluate(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string, req dto.EvaluateAssignmentRequest) (*dto.AssignmentProgress, error) {
	return s.progress(applicantID, assignmentID, models.StageGraded)
}

func (s *trackServiceStub) ApplicantDashboard(ctx context.Context, actor *models.JWTClaims, applicantID string) ([]dto.AssignmentProgress, error) {
	p, err := s.progress(applicantID, "asg-1", models.StageNotStarted)
	if err != nil {
		return nil, err
	}
	return []dto.AssignmentProgress{*p}, nil
}

func (s *trackServiceStub) EntryDetail(ctx context.Context, actor *models.JWTClaims, applicantID, assignmentID string) (*dto.AssignmentProgress, error) {
	return s.progress(applicantID, assignmentID, models.StageNotStarted)
}

type uploadServiceStub struct {
	names []string
	path  string
}

func (s *uploadServiceStub) Upload(ctx context.Context, actor *models.JWTClaims, files []service.UploadInput) ([]dto.UploadedFile, error) {
	if len(files) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "at least one file is required")
	}
	out := make([]dto.UploadedFile, 0, len(files))
	for _, f := range files {
		rc, err := f.Open()
		if err != nil {
			return nil, err
		}
		body, _ := io.ReadAll(rc)
		rc.Close()
		s.names = append(s.names, f.Filename)
		out = append(out, dto.UploadedFile{Name: f.Filename, SizeBytes: int64(len(body))})
	}
	return out, nil
}

func (s *uploadServiceStub) Open(token string) (*os.File, string, error) {
	if token != "good" {
		return nil, "", appErrors.Clone(appErrors.ErrNotFound, "file not found")
	}
	f, err := os.Open(s.path)
	return f, "report.pdf", err
}

type tokenStub map[string]*models.JWTClaims

func (v tokenStub) ValidateToken(token string) (*models.JWTClaims, error) {
	if claims, ok := v[token]; ok {
		return claims, nil
	}
	return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token")
}

type envelope struct {
	Data  json.RawMessage        `json:"data"`
	Error *appErrors.Error       `json:"error"`
	Meta  map[string]interface{} `json:"meta"`
}

func decode(t *testing.T, w *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	return env
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestAssignmentHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &assignmentServiceStub{result: &dto.CreateAssignmentResult{
		Assignment:         &models.Assignment{ID: "asg-1"},
		AssignedApplicants: []string{"A1", "A2"},
	}}
	h := NewAssignmentHandler(svc, rosterServiceStub{}, exporterStub{})

	payload, _ := json.Marshal(dto.CreateAssignmentRequest{Title: "Regression", Subject: "Cybersecurity", ApplicantIDs: []string{"A1", "A2"}})
	c, w := newGinContext(http.MethodPost, "/assignments", payload)
	c.Set(middleware.ContextUserKey, staffClaims)

	h.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"A1", "A2"}, svc.got.ApplicantIDs)
}

func TestAssignmentHandlerCreatePartialFanout(t *testing.T) {
	gin.SetMode(gin.TestMode)
	result := &dto.CreateAssignmentResult{
		Assignment:         &models.Assignment{ID: "asg-1"},
		AssignedApplicants: []string{"A1", "A3"},
		FailedApplicants:   []string{"A2"},
	}
	svc := &assignmentServiceStub{result: result, err: &service.PartialFanoutError{Result: result}}
	h := NewAssignmentHandler(svc, rosterServiceStub{}, exporterStub{})

	c, w := newGinContext(http.MethodPost, "/assignments", []byte(`{"title":"x"}`))
	c.Set(middleware.ContextUserKey, staffClaims)

	h.Create(c)
	require.Equal(t, http.StatusMultiStatus, w.Code)
	env := decode(t, w)
	assert.Equal(t, "PARTIAL_FANOUT", env.Meta["code"])
	assert.Equal(t, []interface{}{"A2"}, env.Meta["failedApplicantIds"])
	assert.NotEmpty(t, env.Data)
}

func TestAssignmentHandlerCreateErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &assignmentServiceStub{err: appErrors.Clone(appErrors.ErrValidation, "title is required")}
	h := NewAssignmentHandler(svc, rosterServiceStub{}, exporterStub{})

	c, w := newGinContext(http.MethodPost, "/assignments", []byte(`{"title":""}`))
	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "VALIDATION_ERROR", decode(t, w).Error.Code)

	c, w = newGinContext(http.MethodPost, "/assignments", []byte(`{not json`))
	h.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTrackHandlerTransitions(t *testing.T) {
	gin.SetMode(gin.TestMode)
	svc := &trackServiceStub{}
	h := NewTrackHandler(svc)

	c, w := newGinContext(http.MethodPost, "/applicants/A1/assignments/asg-1/submit", []byte(`{"link":"https://example.com/repo","note":"done"}`))
	c.Params = gin.Params{{Key: "applicantId", Value: "A1"}, {Key: "assignmentId", Value: "asg-1"}}
	c.Set(middleware.ContextUserKey, applicantClaims)
	h.Submit(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "https://example.com/repo", svc.submitted.Link)

	svc.err = appErrors.Clone(appErrors.ErrInvalidState, "assignment must be accepted before submission")
	c, w = newGinContext(http.MethodPost, "/applicants/A1/assignments/asg-1/accept", nil)
	c.Params = gin.Params{{Key: "applicantId", Value: "A1"}, {Key: "assignmentId", Value: "asg-1"}}
	h.Accept(c)
	require.Equal(t, http.StatusConflict, w.Code)
	assert.Equal(t, "INVALID_STATE", decode(t, w).Error.Code)
}

func newTestRouter(t *testing.T) (*gin.Engine, *uploadServiceStub) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	path := filepath.Join(t.TempDir(), "report.pdf")
	require.NoError(t, os.WriteFile(path, []byte("%PDF-1.4 test"), 0o600))
	uploads := &uploadServiceStub{path: path}

	r := gin.New()
	RegisterRoutes(r, "/api/v1", tokenStub{"staff": staffClaims, "applicant": applicantClaims}, Handlers{
		Assignments: NewAssignmentHandler(&assignmentServiceStub{}, rosterServiceStub{}, exporterStub{}),
		Tracks:      NewTrackHandler(&trackServiceStub{}),
		Uploads:     NewUploadHandler(uploads),
		Metrics: NewMetricsHandler(nil, map[string]ReadinessCheck{
			"store": func(ctx context.Context) error { return nil },
		}),
	})
	return r, uploads
}

func do(r *gin.Engine, method, path, token string, body io.Reader, contentType string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, body)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouterAuthorization(t *testing.T) {
	r, _ := newTestRouter(t)

	assert.Equal(t, http.StatusUnauthorized, do(r, http.MethodGet, "/api/v1/assignments", "", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/assignments", "applicant", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/assignments?page=2", "staff", nil, "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/assignments/other", "staff", nil, "").Code)

	assert.Equal(t, http.StatusOK, do(r, http.MethodGet, "/api/v1/applicants/A1/assignments", "applicant", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodGet, "/api/v1/applicants/A2/assignments", "applicant", nil, "").Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/api/v1/applicants/A1/assignments/asg-1/accept", "applicant", nil, "").Code)
	assert.Equal(t, http.StatusForbidden, do(r, http.MethodPost, "/api/v1/applicants/A1/assignments/asg-1/accept", "staff", nil, "").Code)
	assert.Equal(t, http.StatusForbidden,
		do(r, http.MethodPost, "/api/v1/applicants/A1/assignments/asg-1/evaluate", "applicant", bytes.NewReader([]byte(`{"score":90}`)), "application/json").Code)
	assert.Equal(t, http.StatusOK,
		do(r, http.MethodPost, "/api/v1/applicants/A1/assignments/asg-1/evaluate", "staff", bytes.NewReader([]byte(`{"score":90}`)), "application/json").Code)
}

func TestRouterGradebookAndFiles(t *testing.T) {
	r, _ := newTestRouter(t)

	w := do(r, http.MethodGet, "/api/v1/assignments/asg-1/gradebook?format=csv", "staff", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "gradebook-asg-1.csv")
	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodGet, "/api/v1/assignments/asg-1/gradebook?format=xlsx", "staff", nil, "").Code)

	w = do(r, http.MethodGet, "/api/v1/files/good", "", nil, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "%PDF-1.4 test", w.Body.String())
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodGet, "/api/v1/files/bad", "", nil, "").Code)
}

func TestRouterUpload(t *testing.T) {
	r, uploads := newTestRouter(t)

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for _, name := range []string{"a.pdf", "b.png"} {
		part, err := mw.CreateFormFile("files", name)
		require.NoError(t, err)
		_, err = part.Write([]byte("content of " + name))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	w := do(r, http.MethodPost, "/api/v1/uploads", "applicant", body, mw.FormDataContentType())
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, []string{"a.pdf", "b.png"}, uploads.names)

	var files []dto.UploadedFile
	require.NoError(t, json.Unmarshal(decode(t, w).Data, &files))
	require.Len(t, files, 2)
	assert.Equal(t, int64(len("content of a.pdf")), files[0].SizeBytes)

	w = do(r, http.MethodPost, "/api/v1/uploads", "applicant", bytes.NewReader([]byte("{}")), "application/json")
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMetricsHandlerReady(t *testing.T) {
	gin.SetMode(gin.TestMode)
	h := NewMetricsHandler(nil, map[string]ReadinessCheck{
		"store": func(ctx context.Context) error { return errors.New("connection refused") },
	})
	c, w := newGinContext(http.MethodGet, "/ready", nil)
	h.Ready(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)

	metrics := service.NewMetricsService()
	h = NewMetricsHandler(metrics, nil)
	c, w = newGinContext(http.MethodGet, "/metrics", nil)
	h.Prometheus(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/metrics/summary", nil)
	h.Summary(c)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "goroutines")
}
