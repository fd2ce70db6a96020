package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
	"github.com/noah-isme/assignment-tracker-api/internal/repository"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
)

var (
	staffActor     = &models.JWTClaims{UserID: "instructor-1", Role: models.RoleInstructor}
	adminActor     = &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin}
	applicantActor = func(id string) *models.JWTClaims {
		return &models.JWTClaims{UserID: id, Role: models.RoleApplicant}
	}
)

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

type trackStoreStub struct {
	mu          sync.Mutex
	entries     map[string]*models.TrackEntry
	appendErrs  map[string]error
	getErr      error
	updateErr   error
	staleWrites int
	updates     int
}

func newTrackStoreStub() *trackStoreStub {
	return &trackStoreStub{entries: map[string]*models.TrackEntry{}, appendErrs: map[string]error{}}
}

func trackKeyOf(applicantID, assignmentID string) string {
	return applicantID + "/" + assignmentID
}

func (s *trackStoreStub) Append(ctx context.Context, entry *models.TrackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.appendErrs[entry.ApplicantID]; err != nil {
		return err
	}
	key := trackKeyOf(entry.ApplicantID, entry.AssignmentID)
	if _, exists := s.entries[key]; exists {
		return nil
	}
	if entry.Version == 0 {
		entry.Version = 1
	}
	s.entries[key] = entry.Clone()
	return nil
}

func (s *trackStoreStub) Get(ctx context.Context, applicantID, assignmentID string) (*models.TrackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	e, ok := s.entries[trackKeyOf(applicantID, assignmentID)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return e.Clone(), nil
}

func (s *trackStoreStub) ListByApplicant(ctx context.Context, applicantID string) ([]models.TrackEntry, error) {
	return s.filter(func(e *models.TrackEntry) bool { return e.ApplicantID == applicantID })
}

func (s *trackStoreStub) ListByAssignment(ctx context.Context, assignmentID string) ([]models.TrackEntry, error) {
	return s.filter(func(e *models.TrackEntry) bool { return e.AssignmentID == assignmentID })
}

func (s *trackStoreStub) filter(keep func(*models.TrackEntry) bool) ([]models.TrackEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return nil, s.getErr
	}
	out := []models.TrackEntry{}
	for _, e := range s.entries {
		if keep(e) {
			out = append(out, *e.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return trackKeyOf(out[i].ApplicantID, out[i].AssignmentID) < trackKeyOf(out[j].ApplicantID, out[j].AssignmentID)
	})
	return out, nil
}

func (s *trackStoreStub) Update(ctx context.Context, entry *models.TrackEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	if s.updateErr != nil {
		return s.updateErr
	}
	key := trackKeyOf(entry.ApplicantID, entry.AssignmentID)
	stored, ok := s.entries[key]
	if s.staleWrites > 0 && ok {
		// Simulates a concurrent writer bumping the version underneath us.
		s.staleWrites--
		stored.Version++
		return repository.ErrStaleVersion
	}
	if !ok || stored.Version != entry.Version {
		return repository.ErrStaleVersion
	}
	next := entry.Clone()
	next.Version++
	s.entries[key] = next
	entry.Version++
	return nil
}

func (s *trackStoreStub) entry(applicantID, assignmentID string) *models.TrackEntry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entries[trackKeyOf(applicantID, assignmentID)].Clone()
}

func (s *trackStoreStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

type assignmentStoreStub struct {
	mu        sync.Mutex
	items     map[string]*models.Assignment
	createErr error
	gets      int
}

func newAssignmentStoreStub(items ...models.Assignment) *assignmentStoreStub {
	s := &assignmentStoreStub{items: map[string]*models.Assignment{}}
	for i := range items {
		item := items[i]
		s.items[item.ID] = &item
	}
	return s
}

func (s *assignmentStoreStub) Create(ctx context.Context, a *models.Assignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	copy := *a
	s.items[a.ID] = &copy
	return nil
}

func (s *assignmentStoreStub) GetByID(ctx context.Context, id string) (*models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gets++
	a, ok := s.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	copy := *a
	return &copy, nil
}

func (s *assignmentStoreStub) ListByIDs(ctx context.Context, ids []string) ([]models.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Assignment{}
	for _, id := range ids {
		if a, ok := s.items[id]; ok {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (s *assignmentStoreStub) List(ctx context.Context, filter models.AssignmentFilter) ([]models.Assignment, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []models.Assignment{}
	for _, a := range s.items {
		if filter.Subject != "" && a.Subject != filter.Subject {
			continue
		}
		out = append(out, *a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, len(out), nil
}

func (s *assignmentStoreStub) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

type applicantDirectoryStub struct {
	applicants []models.Applicant
	err        error
}

func (d *applicantDirectoryStub) GetByID(ctx context.Context, id string) (*models.Applicant, error) {
	for i := range d.applicants {
		if d.applicants[i].ID == id {
			a := d.applicants[i]
			return &a, nil
		}
	}
	return nil, sql.ErrNoRows
}

func (d *applicantDirectoryStub) ListByGroupTag(ctx context.Context, tag string) ([]models.Applicant, error) {
	if d.err != nil {
		return nil, d.err
	}
	out := []models.Applicant{}
	for _, a := range d.applicants {
		if a.HasGroupTag(tag) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (d *applicantDirectoryStub) ListByIDs(ctx context.Context, ids []string) ([]models.Applicant, error) {
	if d.err != nil {
		return nil, d.err
	}
	want := map[string]bool{}
	for _, id := range ids {
		want[id] = true
	}
	out := []models.Applicant{}
	for _, a := range d.applicants {
		if want[a.ID] {
			out = append(out, a)
		}
	}
	return out, nil
}

type notifierStub struct {
	mu   sync.Mutex
	sent []Notification
}

func (n *notifierStub) Notify(ctx context.Context, note Notification) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, note)
}

func (n *notifierStub) kinds() []NotificationKind {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]NotificationKind, 0, len(n.sent))
	for _, s := range n.sent {
		out = append(out, s.Kind)
	}
	return out
}

type cacheRepoStub struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newCacheRepoStub() *cacheRepoStub {
	return &cacheRepoStub{data: map[string][]byte{}}
}

func (c *cacheRepoStub) Get(ctx context.Context, key string, dest interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	raw, ok := c.data[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *cacheRepoStub) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data[key] = raw
	return nil
}
