package repository

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/example/tablebook/internal/reservation/domain"
)

// MemoryRepository implements every domain repository over mutex-guarded
// maps, suitable for tests and local demos. Unique-key invariants are
// enforced inside the critical section, so check-then-insert is atomic here.
type MemoryRepository struct {
	mu           sync.RWMutex
	accounts     map[string]domain.Account
	stores       map[uuid.UUID]domain.Store
	storeByName  map[string]uuid.UUID
	reservations map[uuid.UUID]domain.Reservation
	slots        map[string]uuid.UUID
	reviews      map[uuid.UUID]domain.Review
	reviewKeys   map[string]uuid.UUID
}

// NewMemoryRepository constructs an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{
		accounts:     make(map[string]domain.Account),
		stores:       make(map[uuid.UUID]domain.Store),
		storeByName:  make(map[string]uuid.UUID),
		reservations: make(map[uuid.UUID]domain.Reservation),
		slots:        make(map[string]uuid.UUID),
		reviews:      make(map[uuid.UUID]domain.Review),
		reviewKeys:   make(map[string]uuid.UUID),
	}
}

func slotKey(storeID uuid.UUID, date domain.Date, tm domain.ClockTime) string {
	return storeID.String() + "|" + date.String() + "|" + tm.String()
}

func reviewKey(reviewerID string, storeID uuid.UUID, date domain.Date, tm domain.ClockTime) string {
	return reviewerID + "|" + slotKey(storeID, date, tm)
}

// CreateAccount stores a new principal, rejecting duplicate user ids.
func (m *MemoryRepository) CreateAccount(_ context.Context, account domain.Account) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.UserID]; ok {
		return domain.Account{}, domain.ErrUserExists
	}
	m.accounts[account.UserID] = account
	return account, nil
}

func (m *MemoryRepository) GetAccount(_ context.Context, userID string) (domain.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	account, ok := m.accounts[userID]
	if !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	return account, nil
}

func (m *MemoryRepository) UpdateAccount(_ context.Context, account domain.Account) (domain.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[account.UserID]; !ok {
		return domain.Account{}, domain.ErrNotFound
	}
	m.accounts[account.UserID] = account
	return account, nil
}

// DeleteAccount removes the principal and, for owners, cascades through
// every store they registered.
func (m *MemoryRepository) DeleteAccount(_ context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.accounts[userID]; !ok {
		return domain.ErrNotFound
	}
	delete(m.accounts, userID)
	for id, store := range m.stores {
		if store.OwnerID == userID {
			m.deleteStoreLocked(id)
		}
	}
	return nil
}

// CreateStore stores a new store, rejecting duplicate names.
func (m *MemoryRepository) CreateStore(_ context.Context, store domain.Store) (domain.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.storeByName[store.Name]; ok {
		return domain.Store{}, domain.ErrStoreExists
	}
	m.stores[store.ID] = store
	m.storeByName[store.Name] = store.ID
	return store, nil
}

func (m *MemoryRepository) GetStoreByName(_ context.Context, name string) (domain.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.storeByName[name]
	if !ok {
		return domain.Store{}, domain.ErrNotFound
	}
	return m.stores[id], nil
}

func (m *MemoryRepository) GetStoreByID(_ context.Context, id uuid.UUID) (domain.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	store, ok := m.stores[id]
	if !ok {
		return domain.Store{}, domain.ErrNotFound
	}
	return store, nil
}

func (m *MemoryRepository) UpdateStore(_ context.Context, store domain.Store) (domain.Store, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.stores[store.ID]
	if !ok {
		return domain.Store{}, domain.ErrNotFound
	}
	if existing.Name != store.Name {
		if _, taken := m.storeByName[store.Name]; taken {
			return domain.Store{}, domain.ErrStoreExists
		}
		delete(m.storeByName, existing.Name)
		m.storeByName[store.Name] = store.ID
	}
	m.stores[store.ID] = store
	return store, nil
}

// UpdateStoreRating writes the rating column only, leaving concurrent edits
// of the other store fields intact.
func (m *MemoryRepository) UpdateStoreRating(_ context.Context, id uuid.UUID, rating float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	store, ok := m.stores[id]
	if !ok {
		return domain.ErrNotFound
	}
	store.Rating = rating
	m.stores[id] = store
	return nil
}

func (m *MemoryRepository) DeleteStore(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.stores[id]; !ok {
		return domain.ErrNotFound
	}
	m.deleteStoreLocked(id)
	return nil
}

func (m *MemoryRepository) deleteStoreLocked(id uuid.UUID) {
	store := m.stores[id]
	delete(m.stores, id)
	delete(m.storeByName, store.Name)
	for rid, reservation := range m.reservations {
		if reservation.StoreID == id {
			delete(m.reservations, rid)
			delete(m.slots, slotKey(id, reservation.Date, reservation.Time))
		}
	}
	for rid, review := range m.reviews {
		if review.StoreID == id {
			delete(m.reviews, rid)
			delete(m.reviewKeys, reviewKey(review.ReviewerID, id, review.VisitedDate, review.VisitedTime))
		}
	}
}

func (m *MemoryRepository) ListStores(_ context.Context) ([]domain.Store, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	stores := make([]domain.Store, 0, len(m.stores))
	for _, store := range m.stores {
		stores = append(stores, store)
	}
	return stores, nil
}

// CreateReservation inserts a reservation unless its slot is taken. The
// check and the insert share one critical section.
func (m *MemoryRepository) CreateReservation(_ context.Context, reservation domain.Reservation) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := slotKey(reservation.StoreID, reservation.Date, reservation.Time)
	if _, ok := m.slots[key]; ok {
		return domain.Reservation{}, domain.ErrSlotTaken
	}
	m.reservations[reservation.ID] = reservation
	m.slots[key] = reservation.ID
	return reservation, nil
}

func (m *MemoryRepository) GetSlot(_ context.Context, storeID uuid.UUID, date domain.Date, tm domain.ClockTime) (domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.slots[slotKey(storeID, date, tm)]
	if !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return m.reservations[id], nil
}

func (m *MemoryRepository) GetSlotForHolder(ctx context.Context, storeID uuid.UUID, date domain.Date, tm domain.ClockTime, contact string) (domain.Reservation, error) {
	reservation, err := m.GetSlot(ctx, storeID, date, tm)
	if err != nil {
		return domain.Reservation{}, err
	}
	if reservation.HolderContact != contact {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return reservation, nil
}

func (m *MemoryRepository) UpdateReservation(_ context.Context, reservation domain.Reservation) (domain.Reservation, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reservations[reservation.ID]; !ok {
		return domain.Reservation{}, domain.ErrNotFound
	}
	m.reservations[reservation.ID] = reservation
	return reservation, nil
}

// ListForDate returns one store's reservations for a day, ascending by slot
// time.
func (m *MemoryRepository) ListForDate(_ context.Context, storeID uuid.UUID, date domain.Date) ([]domain.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Reservation
	for _, reservation := range m.reservations {
		if reservation.StoreID == storeID && reservation.Date == date {
			result = append(result, reservation)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Time.Before(result[j].Time)
	})
	return result, nil
}

// CreateReview inserts a review unless one already exists for the visit.
func (m *MemoryRepository) CreateReview(_ context.Context, review domain.Review) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := reviewKey(review.ReviewerID, review.StoreID, review.VisitedDate, review.VisitedTime)
	if _, ok := m.reviewKeys[key]; ok {
		return domain.Review{}, domain.ErrReviewExists
	}
	m.reviews[review.ID] = review
	m.reviewKeys[key] = review.ID
	return review, nil
}

func (m *MemoryRepository) GetReview(_ context.Context, reviewerID string, storeID uuid.UUID, date domain.Date, tm domain.ClockTime) (domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.reviewKeys[reviewKey(reviewerID, storeID, date, tm)]
	if !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	return m.reviews[id], nil
}

func (m *MemoryRepository) UpdateReview(_ context.Context, review domain.Review) (domain.Review, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.reviews[review.ID]; !ok {
		return domain.Review{}, domain.ErrNotFound
	}
	m.reviews[review.ID] = review
	return review, nil
}

func (m *MemoryRepository) DeleteReview(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	review, ok := m.reviews[id]
	if !ok {
		return domain.ErrNotFound
	}
	delete(m.reviews, id)
	delete(m.reviewKeys, reviewKey(review.ReviewerID, review.StoreID, review.VisitedDate, review.VisitedTime))
	return nil
}

func (m *MemoryRepository) ListReviewsForStore(_ context.Context, storeID uuid.UUID) ([]domain.Review, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []domain.Review
	for _, review := range m.reviews {
		if review.StoreID == storeID {
			result = append(result, review)
		}
	}
	return result, nil
}
