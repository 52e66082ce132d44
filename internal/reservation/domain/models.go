package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Role tags a principal as a store owner or a booking customer. Capability
// checks happen once at the HTTP boundary; services receive the resolved
// principal explicitly.
type Role string

const (
	RoleOwner    Role = "OWNER"
	RoleCustomer Role = "CUSTOMER"
)

type ReservationStatus string

const (
	ReservationActive  ReservationStatus = "ACTIVE"
	ReservationRefused ReservationStatus = "REFUSED"
)

// Account is a registered principal. Owners and customers share one record
// shape distinguished by Role.
type Account struct {
	UserID       string
	PasswordHash []byte
	PhoneNumber  string
	Role         Role
	CreatedAt    time.Time
}

// Store is the bookable unit. Name is the globally unique human key and
// Rating is always the arithmetic mean of the store's current review rates
// (0 when no reviews exist).
type Store struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	OwnerID     string    `json:"owner_id"`
	Location    string    `json:"location"`
	Latitude    float64   `json:"latitude"`
	Longitude   float64   `json:"longitude"`
	Description string    `json:"description"`
	Rating      float64   `json:"rating"`
}

// Reservation occupies a (store, date, time) slot. At most one reservation
// may exist per slot regardless of status; refusal is terminal.
type Reservation struct {
	ID            uuid.UUID         `json:"id"`
	StoreID       uuid.UUID         `json:"store_id"`
	Date          Date              `json:"date"`
	Time          ClockTime         `json:"time"`
	HolderContact string            `json:"holder_contact"`
	Status        ReservationStatus `json:"status"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Review records a rated visit. VisitedDate and VisitedTime are copied from
// the reservation being reviewed, never re-entered by the reviewer.
type Review struct {
	ID          uuid.UUID `json:"id"`
	ReviewerID  string    `json:"reviewer_id"`
	StoreID     uuid.UUID `json:"store_id"`
	VisitedDate Date      `json:"visited_date"`
	VisitedTime ClockTime `json:"visited_time"`
	Rate        float64   `json:"rate"`
	Comment     string    `json:"comment"`
}

type EventType string

const (
	EventReservationBooked  EventType = "ReservationBooked"
	EventReservationRefused EventType = "ReservationRefused"
	EventReviewCreated      EventType = "ReviewCreated"
	EventRatingUpdated      EventType = "RatingUpdated"
)

type Event struct {
	Type      EventType      `json:"type"`
	StoreID   uuid.UUID      `json:"store_id"`
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AccountRepository persists principals. DeleteAccount cascades: an owner's
// stores go with the account, and each store takes its reservations and
// reviews along.
type AccountRepository interface {
	CreateAccount(ctx context.Context, account Account) (Account, error)
	GetAccount(ctx context.Context, userID string) (Account, error)
	UpdateAccount(ctx context.Context, account Account) (Account, error)
	DeleteAccount(ctx context.Context, userID string) error
}

// StoreRepository persists stores. CreateStore enforces name uniqueness and
// DeleteStore cascades reservations and reviews. UpdateStoreRating touches
// the rating column only, so a recompute never overwrites a concurrent edit
// of the store's other fields.
type StoreRepository interface {
	CreateStore(ctx context.Context, store Store) (Store, error)
	GetStoreByName(ctx context.Context, name string) (Store, error)
	GetStoreByID(ctx context.Context, id uuid.UUID) (Store, error)
	UpdateStore(ctx context.Context, store Store) (Store, error)
	UpdateStoreRating(ctx context.Context, id uuid.UUID, rating float64) error
	DeleteStore(ctx context.Context, id uuid.UUID) error
	ListStores(ctx context.Context) ([]Store, error)
}

// ReservationRepository persists slots. CreateReservation must be atomic with
// the slot-uniqueness check: two concurrent inserts for one (store, date,
// time) triple must not both succeed.
type ReservationRepository interface {
	CreateReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	GetSlot(ctx context.Context, storeID uuid.UUID, date Date, tm ClockTime) (Reservation, error)
	GetSlotForHolder(ctx context.Context, storeID uuid.UUID, date Date, tm ClockTime, contact string) (Reservation, error)
	UpdateReservation(ctx context.Context, reservation Reservation) (Reservation, error)
	ListForDate(ctx context.Context, storeID uuid.UUID, date Date) ([]Reservation, error)
}

// ReviewRepository persists reviews, unique per (reviewer, store, visited
// date, visited time).
type ReviewRepository interface {
	CreateReview(ctx context.Context, review Review) (Review, error)
	GetReview(ctx context.Context, reviewerID string, storeID uuid.UUID, date Date, tm ClockTime) (Review, error)
	UpdateReview(ctx context.Context, review Review) (Review, error)
	DeleteReview(ctx context.Context, id uuid.UUID) error
	ListReviewsForStore(ctx context.Context, storeID uuid.UUID) ([]Review, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, event Event) error
}

type Clock interface {
	Now() time.Time
}

type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }
