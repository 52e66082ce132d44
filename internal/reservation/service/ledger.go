package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/tablebook/internal/reservation/domain"
	"github.com/example/tablebook/internal/reservation/slotlock"
)

// Ledger owns slot uniqueness and status transitions for store reservations.
// Booking is defended twice: a short-lived hold keeps concurrent replicas off
// the slot while the repository's unique key is the check of record.
type Ledger struct {
	stores       domain.StoreRepository
	reservations domain.ReservationRepository
	holds        slotlock.HoldStore
	events       domain.EventPublisher
	clock        domain.Clock
	logger       *zap.Logger
	holdTTL      time.Duration
}

// NewLedger constructs a Ledger with the required collaborators.
func NewLedger(stores domain.StoreRepository, reservations domain.ReservationRepository, holds slotlock.HoldStore, events domain.EventPublisher, clock domain.Clock, logger *zap.Logger) *Ledger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Ledger{
		stores:       stores,
		reservations: reservations,
		holds:        holds,
		events:       events,
		clock:        clock,
		logger:       logger,
		holdTTL:      10 * time.Second,
	}
}

// BookRequest carries a customer's slot request. HolderContact is the
// already-authenticated principal's registered phone contact.
type BookRequest struct {
	StoreName     string
	Date          domain.Date
	Time          domain.ClockTime
	HolderContact string
}

// Book reserves the (store, date, time) slot for the holder. It fails with
// ErrSlotTaken when any reservation, active or refused, occupies the slot.
func (l *Ledger) Book(ctx context.Context, req BookRequest) (domain.Reservation, error) {
	if req.StoreName == "" || req.HolderContact == "" || req.Date.IsZero() {
		return domain.Reservation{}, fmt.Errorf("%w: store name, date and holder contact are required", domain.ErrValidation)
	}

	store, err := l.stores.GetStoreByName(ctx, req.StoreName)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("lookup store: %w", err)
	}

	key := slotlock.SlotKey{StoreID: store.ID, Date: req.Date, Time: req.Time}
	held, err := l.holds.TryHold(ctx, key, l.holdTTL)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("hold slot: %w", err)
	}
	if !held {
		bookingsTotal.WithLabelValues("conflict").Inc()
		return domain.Reservation{}, domain.ErrSlotTaken
	}

	reservation := domain.Reservation{
		ID:            uuid.New(),
		StoreID:       store.ID,
		Date:          req.Date,
		Time:          req.Time,
		HolderContact: req.HolderContact,
		Status:        domain.ReservationActive,
		CreatedAt:     l.clock.Now(),
	}

	created, err := l.reservations.CreateReservation(ctx, reservation)
	if err != nil {
		_ = l.holds.Release(ctx, key)
		if errors.Is(err, domain.ErrSlotTaken) {
			bookingsTotal.WithLabelValues("conflict").Inc()
		} else {
			bookingsTotal.WithLabelValues("error").Inc()
		}
		return domain.Reservation{}, fmt.Errorf("create reservation: %w", err)
	}
	// The hold is left to TTL-expire; the persisted row now guards the slot.

	bookingsTotal.WithLabelValues("booked").Inc()
	l.logger.Info("slot booked",
		zap.String("store", store.Name),
		zap.String("date", req.Date.String()),
		zap.String("time", req.Time.String()))

	l.publish(ctx, domain.Event{
		Type:      domain.EventReservationBooked,
		StoreID:   store.ID,
		Payload:   map[string]any{"reservation_id": created.ID.String(), "date": req.Date.String(), "time": req.Time.String()},
		CreatedAt: created.CreatedAt,
	})

	return created, nil
}

// Refuse flips an active reservation to refused. Only the store's owner may
// refuse, and refusal is terminal.
func (l *Ledger) Refuse(ctx context.Context, ownerID, storeName string, date domain.Date, tm domain.ClockTime) (domain.Reservation, error) {
	store, err := l.stores.GetStoreByName(ctx, storeName)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("lookup store: %w", err)
	}
	if store.OwnerID != ownerID {
		return domain.Reservation{}, domain.ErrNotStoreOwner
	}

	reservation, err := l.reservations.GetSlot(ctx, store.ID, date, tm)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("lookup slot: %w", err)
	}
	if reservation.Status == domain.ReservationRefused {
		return domain.Reservation{}, domain.ErrAlreadyRefused
	}

	reservation.Status = domain.ReservationRefused
	updated, err := l.reservations.UpdateReservation(ctx, reservation)
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("refuse reservation: %w", err)
	}

	l.publish(ctx, domain.Event{
		Type:      domain.EventReservationRefused,
		StoreID:   store.ID,
		Payload:   map[string]any{"reservation_id": updated.ID.String()},
		CreatedAt: l.clock.Now(),
	})

	return updated, nil
}

// publish delivers an event and logs delivery failures. The reservation is
// already persisted at this point, so a failed staging insert or broker
// outage is surfaced in the logs rather than rolling back the booking.
func (l *Ledger) publish(ctx context.Context, event domain.Event) {
	if err := l.events.Publish(ctx, event); err != nil {
		l.logger.Error("event publish failed",
			zap.String("type", string(event.Type)), zap.Error(err))
	}
}

// Schedule returns the owner's reservations for one store and day, ascending
// by slot time.
func (l *Ledger) Schedule(ctx context.Context, ownerID, storeName string, date domain.Date) ([]domain.Reservation, error) {
	store, err := l.stores.GetStoreByName(ctx, storeName)
	if err != nil {
		return nil, fmt.Errorf("lookup store: %w", err)
	}
	if store.OwnerID != ownerID {
		return nil, domain.ErrNotStoreOwner
	}
	return l.reservations.ListForDate(ctx, store.ID, date)
}
