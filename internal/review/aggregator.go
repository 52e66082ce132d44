// Package review maintains the store-rating invariant: a store's rating is
// always the arithmetic mean of its current reviews' rates, 0 when none
// exist.
package review

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tablebook/internal/reservation/domain"
)

// Aggregator recomputes a store's rating synchronously on every review
// mutation. Operations on the same store are serialized with a per-store
// lock held for the whole read-compute-write sequence, so concurrent
// mutations cannot drop each other's updates.
type Aggregator struct {
	accounts     domain.AccountRepository
	stores       domain.StoreRepository
	reservations domain.ReservationRepository
	reviews      domain.ReviewRepository
	events       domain.EventPublisher
	clock        domain.Clock
	logger       *zap.Logger
	locks        storeLocks
}

// NewAggregator constructs the aggregator with the required collaborators.
func NewAggregator(accounts domain.AccountRepository, stores domain.StoreRepository, reservations domain.ReservationRepository, reviews domain.ReviewRepository, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger) *Aggregator {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{
		accounts:     accounts,
		stores:       stores,
		reservations: reservations,
		reviews:      reviews,
		events:       events,
		clock:        clock,
		logger:       logger,
		locks:        storeLocks{locks: make(map[uuid.UUID]*sync.Mutex)},
	}
}

// Request identifies a review by its visit key. Rate and Comment are
// pointers so updates can change one without the other; both are required on
// create.
type Request struct {
	ReviewerID  string
	StoreName   string
	VisitedDate domain.Date
	VisitedTime domain.ClockTime
	Rate        *float64
	Comment     *string
}

func (r Request) validate(create bool) error {
	if r.ReviewerID == "" || r.StoreName == "" || r.VisitedDate.IsZero() {
		return fmt.Errorf("%w: reviewer id, store name, visited date and time are required", domain.ErrValidation)
	}
	if create {
		if r.Rate == nil || r.Comment == nil {
			return fmt.Errorf("%w: rate and comment are required on create", domain.ErrValidation)
		}
	}
	if r.Rate != nil && (*r.Rate < 0 || *r.Rate > 5) {
		return fmt.Errorf("%w: rate must be between 0 and 5", domain.ErrValidation)
	}
	return nil
}

// Create records a review for a visit the reviewer actually reserved and
// folds its rate into the store's average. The visited date and time are
// copied from the reservation, not from the request.
func (a *Aggregator) Create(ctx context.Context, req Request) (domain.Review, error) {
	if err := req.validate(true); err != nil {
		return domain.Review{}, err
	}

	reviewer, err := a.accounts.GetAccount(ctx, req.ReviewerID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("lookup reviewer: %w", err)
	}
	store, err := a.stores.GetStoreByName(ctx, req.StoreName)
	if err != nil {
		return domain.Review{}, fmt.Errorf("lookup store: %w", err)
	}
	reservation, err := a.reservations.GetSlot(ctx, store.ID, req.VisitedDate, req.VisitedTime)
	if err != nil {
		return domain.Review{}, fmt.Errorf("lookup reservation: %w", err)
	}
	if reviewer.PhoneNumber != reservation.HolderContact {
		return domain.Review{}, domain.ErrReviewerMismatch
	}

	unlock := a.locks.lock(store.ID)
	defer unlock()

	existing, err := a.reviews.ListReviewsForStore(ctx, store.ID)
	if err != nil {
		return domain.Review{}, fmt.Errorf("list reviews: %w", err)
	}
	rating := (sumRates(existing) + *req.Rate) / float64(len(existing)+1)

	review := domain.Review{
		ID:          uuid.New(),
		ReviewerID:  reviewer.UserID,
		StoreID:     store.ID,
		VisitedDate: reservation.Date,
		VisitedTime: reservation.Time,
		Rate:        *req.Rate,
		Comment:     *req.Comment,
	}
	created, err := a.reviews.CreateReview(ctx, review)
	if err != nil {
		return domain.Review{}, fmt.Errorf("create review: %w", err)
	}

	if err := a.persistRating(ctx, store, rating, "create"); err != nil {
		return domain.Review{}, err
	}

	a.publish(ctx, domain.Event{
		Type:      domain.EventReviewCreated,
		StoreID:   store.ID,
		Payload:   map[string]any{"review_id": created.ID.String(), "rate": created.Rate},
		CreatedAt: a.clock.Now(),
	})

	return created, nil
}

// Update mutates an existing review. A rate change recomputes the mean over
// all current reviews; a comment change leaves the rating alone.
func (a *Aggregator) Update(ctx context.Context, req Request) (domain.Review, error) {
	if err := req.validate(false); err != nil {
		return domain.Review{}, err
	}

	store, err := a.stores.GetStoreByName(ctx, req.StoreName)
	if err != nil {
		return domain.Review{}, fmt.Errorf("lookup store: %w", err)
	}

	unlock := a.locks.lock(store.ID)
	defer unlock()

	review, err := a.reviews.GetReview(ctx, req.ReviewerID, store.ID, req.VisitedDate, req.VisitedTime)
	if err != nil {
		return domain.Review{}, fmt.Errorf("lookup review: %w", err)
	}

	if req.Rate != nil {
		review.Rate = *req.Rate
	}
	if req.Comment != nil {
		review.Comment = *req.Comment
	}
	updated, err := a.reviews.UpdateReview(ctx, review)
	if err != nil {
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}

	if req.Rate != nil {
		all, err := a.reviews.ListReviewsForStore(ctx, store.ID)
		if err != nil {
			return domain.Review{}, fmt.Errorf("list reviews: %w", err)
		}
		if err := a.persistRating(ctx, store, sumRates(all)/float64(len(all)), "update"); err != nil {
			return domain.Review{}, err
		}
	}

	return updated, nil
}

// Delete removes the reviewer's own review and recomputes the mean over the
// remaining set.
func (a *Aggregator) Delete(ctx context.Context, req Request) error {
	if err := req.validate(false); err != nil {
		return err
	}
	store, err := a.stores.GetStoreByName(ctx, req.StoreName)
	if err != nil {
		return fmt.Errorf("lookup store: %w", err)
	}
	return a.deleteLocked(ctx, store, req.ReviewerID, req.VisitedDate, req.VisitedTime)
}

// DeleteByOwner lets the store's owner remove any review on the store.
func (a *Aggregator) DeleteByOwner(ctx context.Context, ownerID, storeName, reviewerID string, date domain.Date, tm domain.ClockTime) error {
	store, err := a.stores.GetStoreByName(ctx, storeName)
	if err != nil {
		return fmt.Errorf("lookup store: %w", err)
	}
	if store.OwnerID != ownerID {
		return domain.ErrNotStoreOwner
	}
	return a.deleteLocked(ctx, store, reviewerID, date, tm)
}

func (a *Aggregator) deleteLocked(ctx context.Context, store domain.Store, reviewerID string, date domain.Date, tm domain.ClockTime) error {
	unlock := a.locks.lock(store.ID)
	defer unlock()

	review, err := a.reviews.GetReview(ctx, reviewerID, store.ID, date, tm)
	if err != nil {
		return fmt.Errorf("lookup review: %w", err)
	}

	all, err := a.reviews.ListReviewsForStore(ctx, store.ID)
	if err != nil {
		return fmt.Errorf("list reviews: %w", err)
	}
	var sum float64
	remaining := 0
	for _, other := range all {
		if other.ID == review.ID {
			continue
		}
		sum += other.Rate
		remaining++
	}
	rating := 0.0
	if remaining > 0 {
		rating = sum / float64(remaining)
	}
	if err := a.persistRating(ctx, store, rating, "delete"); err != nil {
		return err
	}

	if err := a.reviews.DeleteReview(ctx, review.ID); err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	return nil
}

// persistRating writes the rating column only; a full-row write here would
// revert store edits that landed after the store snapshot was taken.
func (a *Aggregator) persistRating(ctx context.Context, store domain.Store, rating float64, op string) error {
	if err := a.stores.UpdateStoreRating(ctx, store.ID, rating); err != nil {
		return fmt.Errorf("update store rating: %w", err)
	}
	ratingRecomputes.WithLabelValues(op).Inc()
	a.logger.Debug("store rating recomputed",
		zap.String("store", store.Name), zap.Float64("rating", rating), zap.String("op", op))

	a.publish(ctx, domain.Event{
		Type:      domain.EventRatingUpdated,
		StoreID:   store.ID,
		Payload:   map[string]any{"rating": rating},
		CreatedAt: a.clock.Now(),
	})
	return nil
}

// publish delivers an event and logs delivery failures; review mutations are
// already committed by the time an event goes out, so a broker or staging
// failure must not roll them back silently.
func (a *Aggregator) publish(ctx context.Context, event domain.Event) {
	if err := a.events.Publish(ctx, event); err != nil {
		a.logger.Error("event publish failed",
			zap.String("type", string(event.Type)), zap.Error(err))
	}
}

func sumRates(reviews []domain.Review) float64 {
	var sum float64
	for _, review := range reviews {
		sum += review.Rate
	}
	return sum
}

// storeLocks hands out one mutex per store id. Locks are never removed; the
// store population is small relative to request volume.
type storeLocks struct {
	mu    sync.Mutex
	locks map[uuid.UUID]*sync.Mutex
}

func (l *storeLocks) lock(id uuid.UUID) func() {
	l.mu.Lock()
	m, ok := l.locks[id]
	if !ok {
		m = &sync.Mutex{}
		l.locks[id] = m
	}
	l.mu.Unlock()
	m.Lock()
	return m.Unlock
}
