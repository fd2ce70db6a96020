package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/noah-isme/assignment-tracker-api/internal/models"
	appErrors "github.com/noah-isme/assignment-tracker-api/pkg/errors"
)

type assignmentReader interface {
	GetByID(ctx context.Context, id string) (*models.Assignment, error)
	ListByIDs(ctx context.Context, ids []string) ([]models.Assignment, error)
}

func definitionCacheKey(id string) string {
	return fmt.Sprintf("assignment:definition:%s", id)
}

// definitionLoader reads immutable definitions, consulting the cache first.
type definitionLoader struct {
	store assignmentReader
	cache *CacheService
	guard storeGuard
}

func (l definitionLoader) get(ctx context.Context, id string) (*models.Assignment, error) {
	var cached models.Assignment
	if l.cache.Get(ctx, definitionCacheKey(id), &cached) {
		return &cached, nil
	}

	var assignment *models.Assignment
	err := l.guard.call(ctx, "assignment.get", func(ctx context.Context) error {
		var err error
		assignment, err = l.store.GetByID(ctx, id)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "assignment not found")
		}
		return nil, storeFailure(err, "failed to load assignment")
	}
	l.cache.Set(ctx, definitionCacheKey(id), assignment, 0)
	return assignment, nil
}

func (l definitionLoader) many(ctx context.Context, ids []string) (map[string]models.Assignment, error) {
	out := make(map[string]models.Assignment, len(ids))
	missing := make([]string, 0, len(ids))
	for _, id := range ids {
		var cached models.Assignment
		if l.cache.Get(ctx, definitionCacheKey(id), &cached) {
			out[id] = cached
			continue
		}
		missing = append(missing, id)
	}
	if len(missing) == 0 {
		return out, nil
	}

	var loaded []models.Assignment
	err := l.guard.call(ctx, "assignment.list_by_ids", func(ctx context.Context) error {
		var err error
		loaded, err = l.store.ListByIDs(ctx, missing)
		return err
	})
	if err != nil {
		return nil, storeFailure(err, "failed to load assignments")
	}
	for i := range loaded {
		out[loaded[i].ID] = loaded[i]
		l.cache.Set(ctx, definitionCacheKey(loaded[i].ID), loaded[i], 0)
	}
	return out, nil
}
