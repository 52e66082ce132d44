// Package store covers the owner-facing store catalogue operations.
package store

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tablebook/internal/reservation/domain"
)

// Service manages store registration and lifecycle. Every mutation is scoped
// to the owning principal.
type Service struct {
	stores domain.StoreRepository
	logger *zap.Logger
}

// New constructs the store service.
func New(stores domain.StoreRepository, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{stores: stores, logger: logger}
}

// EnrollRequest carries a new store's registration data.
type EnrollRequest struct {
	Name        string
	Location    string
	Latitude    float64
	Longitude   float64
	Description string
}

// Enroll registers a store under the owner. Store names are globally unique.
func (s *Service) Enroll(ctx context.Context, ownerID string, req EnrollRequest) (domain.Store, error) {
	if req.Name == "" {
		return domain.Store{}, fmt.Errorf("%w: store name is required", domain.ErrValidation)
	}
	store := domain.Store{
		ID:          uuid.New(),
		Name:        req.Name,
		OwnerID:     ownerID,
		Location:    req.Location,
		Latitude:    req.Latitude,
		Longitude:   req.Longitude,
		Description: req.Description,
		Rating:      0,
	}
	created, err := s.stores.CreateStore(ctx, store)
	if err != nil {
		return domain.Store{}, fmt.Errorf("enroll store: %w", err)
	}
	s.logger.Info("store enrolled", zap.String("name", created.Name), zap.String("owner", ownerID))
	return created, nil
}

// EditRequest updates a store partially; nil fields are left untouched. The
// name is the lookup key and cannot change.
type EditRequest struct {
	Name        string
	Location    *string
	Latitude    *float64
	Longitude   *float64
	Description *string
}

// Edit applies a partial update to an owned store.
func (s *Service) Edit(ctx context.Context, ownerID string, req EditRequest) (domain.Store, error) {
	store, err := s.stores.GetStoreByName(ctx, req.Name)
	if err != nil {
		return domain.Store{}, fmt.Errorf("lookup store: %w", err)
	}
	if store.OwnerID != ownerID {
		return domain.Store{}, domain.ErrNotStoreOwner
	}
	if req.Location != nil {
		store.Location = *req.Location
	}
	if req.Latitude != nil {
		store.Latitude = *req.Latitude
	}
	if req.Longitude != nil {
		store.Longitude = *req.Longitude
	}
	if req.Description != nil {
		store.Description = *req.Description
	}
	updated, err := s.stores.UpdateStore(ctx, store)
	if err != nil {
		return domain.Store{}, fmt.Errorf("edit store: %w", err)
	}
	return updated, nil
}

// Delete removes an owned store; its reservations and reviews cascade away
// with it.
func (s *Service) Delete(ctx context.Context, ownerID, name string) error {
	store, err := s.stores.GetStoreByName(ctx, name)
	if err != nil {
		return fmt.Errorf("lookup store: %w", err)
	}
	if store.OwnerID != ownerID {
		return domain.ErrNotStoreOwner
	}
	if err := s.stores.DeleteStore(ctx, store.ID); err != nil {
		return fmt.Errorf("delete store: %w", err)
	}
	s.logger.Info("store deleted", zap.String("name", name), zap.String("owner", ownerID))
	return nil
}

// Search returns a store's details by its unique name.
func (s *Service) Search(ctx context.Context, name string) (domain.Store, error) {
	return s.stores.GetStoreByName(ctx, name)
}
