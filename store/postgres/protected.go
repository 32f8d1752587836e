package postgres

import (
	"context"

	"github.com/entativa/id/domain/model"
)

const (
	selectReservedHandleQuery = `SELECT 1 FROM reserved_handles WHERE handle = $1`

	insertReservedHandleQuery = `
		INSERT INTO reserved_handles (handle, releasable, created_at) VALUES (:handle, :releasable, :created_at)`

	selectProtectedByHandleQuery = `
		SELECT id, canonical_handle, aliases, category, created_at
		FROM protected_entities WHERE canonical_handle = $1`

	listProtectedEntitiesQuery = `
		SELECT id, canonical_handle, aliases, category, created_at FROM protected_entities`

	insertProtectedEntityQuery = `
		INSERT INTO protected_entities (id, canonical_handle, aliases, category, created_at)
		VALUES (:id, :canonical_handle, :aliases, :category, :created_at)`
)

// ProtectedEntityRepository is HandleGovernor's view of the registry:
// reserved_handles plus every categorized protected-entity table, unioned
// per spec.md §4.1's lookup order. A single protected_entities table with a
// category column stands in for "each categorized protected-entity table"
// — it is queried as one union, honoring the same fixed category tie-break
// (model.CategoryOrder) regardless of physical table layout.
type ProtectedEntityRepository interface {
	IsReservedHandle(ctx context.Context, handle string) (bool, error)
	ReserveSystemHandle(ctx context.Context, handle string, releasable bool) error
	GetProtectedByCanonicalHandle(ctx context.Context, handle string) (*model.ProtectedEntity, error)
	ListProtectedEntities(ctx context.Context) ([]model.ProtectedEntity, error)
	CreateProtectedEntity(ctx context.Context, entity *model.ProtectedEntity) error
}

func (s *Store) IsReservedHandle(ctx context.Context, handle string) (bool, error) {
	var found int
	err := s.get(ctx, &found, selectReservedHandleQuery, handle)
	if err != nil {
		if isNotFound(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (s *Store) ReserveSystemHandle(ctx context.Context, handle string, releasable bool) error {
	return s.exec(ctx, insertReservedHandleQuery, map[string]interface{}{
		"handle":     handle,
		"releasable": releasable,
		"created_at": nowFunc(),
	})
}

func (s *Store) GetProtectedByCanonicalHandle(ctx context.Context, handle string) (*model.ProtectedEntity, error) {
	var out model.ProtectedEntity
	if err := s.get(ctx, &out, selectProtectedByHandleQuery, handle); err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return &out, nil
}

func (s *Store) ListProtectedEntities(ctx context.Context) ([]model.ProtectedEntity, error) {
	var out []model.ProtectedEntity
	if err := s.list(ctx, &out, listProtectedEntitiesQuery); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Store) CreateProtectedEntity(ctx context.Context, entity *model.ProtectedEntity) error {
	return s.exec(ctx, insertProtectedEntityQuery, entity)
}
