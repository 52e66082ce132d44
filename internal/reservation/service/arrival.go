package service

import (
	"context"
	"fmt"
	"time"

	"github.com/example/tablebook/internal/reservation/domain"
)

// arrivalLead is how long before the reserved time a customer must confirm
// arrival. Confirmations inside the final lead window, or after the slot, are
// rejected.
const arrivalLead = 10 * time.Minute

// ArrivalGate validates a physical-arrival claim against a ledger entry and
// the wall clock. It is a read-only gate: confirming persists nothing.
type ArrivalGate struct {
	stores       domain.StoreRepository
	reservations domain.ReservationRepository
	clock        domain.Clock
}

// NewArrivalGate constructs the gate.
func NewArrivalGate(stores domain.StoreRepository, reservations domain.ReservationRepository, clock domain.Clock) *ArrivalGate {
	return &ArrivalGate{stores: stores, reservations: reservations, clock: clock}
}

// ConfirmRequest identifies the reservation being confirmed.
type ConfirmRequest struct {
	StoreName     string
	Date          domain.Date
	Time          domain.ClockTime
	HolderContact string
}

// Confirm checks that the reservation exists for the holder and that the
// claim lands inside the valid window: same-day, and no later than the
// arrival lead before the reserved time, against an active reservation. All
// conditions are evaluated as one terminal check.
func (g *ArrivalGate) Confirm(ctx context.Context, req ConfirmRequest) error {
	if req.StoreName == "" || req.HolderContact == "" || req.Date.IsZero() {
		return fmt.Errorf("%w: store name, date, time and contact are required", domain.ErrValidation)
	}

	store, err := g.stores.GetStoreByName(ctx, req.StoreName)
	if err != nil {
		return fmt.Errorf("lookup store: %w", err)
	}
	reservation, err := g.reservations.GetSlotForHolder(ctx, store.ID, req.Date, req.Time, req.HolderContact)
	if err != nil {
		arrivalConfirmations.WithLabelValues("not_found").Inc()
		return fmt.Errorf("lookup reservation: %w", err)
	}

	now := g.clock.Now()
	nowSec := domain.ClockTimeOf(now).SecondOfDay()
	slotSec := req.Time.SecondOfDay()
	leadSec := int(arrivalLead / time.Second)

	valid := domain.DateOf(now) == req.Date &&
		nowSec <= slotSec &&
		nowSec+leadSec <= slotSec &&
		reservation.Status == domain.ReservationActive
	if !valid {
		arrivalConfirmations.WithLabelValues("rejected").Inc()
		return domain.ErrInvalidConfirmation
	}

	arrivalConfirmations.WithLabelValues("confirmed").Inc()
	return nil
}
