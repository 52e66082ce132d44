package review_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/example/tablebook/internal/reservation/domain"
	"github.com/example/tablebook/internal/reservation/repository"
	"github.com/example/tablebook/internal/review"
)

type stubPublisher struct {
	mu     sync.Mutex
	events []domain.Event
}

func (s *stubPublisher) Publish(_ context.Context, event domain.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

type stubClock struct{ t time.Time }

func (s stubClock) Now() time.Time { return s.t }

type fixture struct {
	repo  *repository.MemoryRepository
	agg   *review.Aggregator
	store domain.Store
}

// newFixture seeds one store and a reviewer account whose phone matches the
// seeded reservations, one per slot time.
func newFixture(t *testing.T, slotTimes ...string) fixture {
	t.Helper()
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.CreateAccount(ctx, domain.Account{
		UserID:      "diner-1",
		PhoneNumber: "010-1111-2222",
		Role:        domain.RoleCustomer,
	})
	require.NoError(t, err)

	store, err := repo.CreateStore(ctx, domain.Store{
		ID:      uuid.New(),
		Name:    "bistro",
		OwnerID: "owner-1",
	})
	require.NoError(t, err)

	date, _ := domain.ParseDate("2026-09-01")
	for _, hhmm := range slotTimes {
		tm, parseErr := domain.ParseClockTime(hhmm)
		require.NoError(t, parseErr)
		_, err = repo.CreateReservation(ctx, domain.Reservation{
			ID:            uuid.New(),
			StoreID:       store.ID,
			Date:          date,
			Time:          tm,
			HolderContact: "010-1111-2222",
			Status:        domain.ReservationActive,
		})
		require.NoError(t, err)
	}

	agg := review.NewAggregator(repo, repo, repo, repo, &stubPublisher{}, stubClock{t: time.Unix(0, 0).UTC()}, nil)
	return fixture{repo: repo, agg: agg, store: store}
}

func slot(hhmm string) (domain.Date, domain.ClockTime) {
	date, _ := domain.ParseDate("2026-09-01")
	tm, _ := domain.ParseClockTime(hhmm)
	return date, tm
}

func reviewRequest(hhmm string, rate float64, comment string) review.Request {
	date, tm := slot(hhmm)
	return review.Request{
		ReviewerID:  "diner-1",
		StoreName:   "bistro",
		VisitedDate: date,
		VisitedTime: tm,
		Rate:        &rate,
		Comment:     &comment,
	}
}

func storeRating(t *testing.T, repo *repository.MemoryRepository) float64 {
	t.Helper()
	store, err := repo.GetStoreByName(context.Background(), "bistro")
	require.NoError(t, err)
	return store.Rating
}

func TestRatingTracksReviewLifecycle(t *testing.T) {
	f := newFixture(t, "12:00", "13:00", "14:00")
	ctx := context.Background()

	_, err := f.agg.Create(ctx, reviewRequest("12:00", 4, "good"))
	require.NoError(t, err)
	require.InDelta(t, 4.0, storeRating(t, f.repo), 1e-9)

	_, err = f.agg.Create(ctx, reviewRequest("13:00", 5, "great"))
	require.NoError(t, err)
	require.InDelta(t, 4.5, storeRating(t, f.repo), 1e-9)

	_, err = f.agg.Create(ctx, reviewRequest("14:00", 3, "fine"))
	require.NoError(t, err)
	require.InDelta(t, 4.0, storeRating(t, f.repo), 1e-9)

	// dropping the first review to rate 1 pulls the mean to (1+5+3)/3
	updated, err := f.agg.Update(ctx, reviewRequest("12:00", 1, "cold food"))
	require.NoError(t, err)
	require.InDelta(t, 1.0, updated.Rate, 1e-9)
	require.InDelta(t, 3.0, storeRating(t, f.repo), 1e-9)

	require.NoError(t, f.agg.Delete(ctx, reviewRequest("12:00", 1, "")))
	require.InDelta(t, 4.0, storeRating(t, f.repo), 1e-9)

	require.NoError(t, f.agg.Delete(ctx, reviewRequest("13:00", 5, "")))
	require.NoError(t, f.agg.Delete(ctx, reviewRequest("14:00", 3, "")))
	require.InDelta(t, 0.0, storeRating(t, f.repo), 1e-9)
}

func TestUpdateCommentOnlyKeepsRating(t *testing.T) {
	f := newFixture(t, "12:00")
	ctx := context.Background()

	_, err := f.agg.Create(ctx, reviewRequest("12:00", 4, "good"))
	require.NoError(t, err)

	date, tm := slot("12:00")
	comment := "actually great"
	updated, err := f.agg.Update(ctx, review.Request{
		ReviewerID:  "diner-1",
		StoreName:   "bistro",
		VisitedDate: date,
		VisitedTime: tm,
		Comment:     &comment,
	})
	require.NoError(t, err)
	require.Equal(t, "actually great", updated.Comment)
	require.InDelta(t, 4.0, storeRating(t, f.repo), 1e-9)
}

func TestCreateRejectsWrongReviewer(t *testing.T) {
	f := newFixture(t, "12:00")
	ctx := context.Background()

	_, err := f.repo.CreateAccount(ctx, domain.Account{
		UserID:      "stranger",
		PhoneNumber: "010-9999-9999",
		Role:        domain.RoleCustomer,
	})
	require.NoError(t, err)

	req := reviewRequest("12:00", 5, "never visited")
	req.ReviewerID = "stranger"
	_, err = f.agg.Create(ctx, req)
	require.ErrorIs(t, err, domain.ErrReviewerMismatch)
}

func TestCreateRejectsDuplicateVisit(t *testing.T) {
	f := newFixture(t, "12:00")
	ctx := context.Background()

	_, err := f.agg.Create(ctx, reviewRequest("12:00", 4, "good"))
	require.NoError(t, err)
	_, err = f.agg.Create(ctx, reviewRequest("12:00", 2, "second thoughts"))
	require.ErrorIs(t, err, domain.ErrReviewExists)
}

func TestCreateValidatesRate(t *testing.T) {
	f := newFixture(t, "12:00")
	_, err := f.agg.Create(context.Background(), reviewRequest("12:00", 5.5, "too high"))
	require.ErrorIs(t, err, domain.ErrValidation)
}

func TestDeleteByOwnerRequiresOwnership(t *testing.T) {
	f := newFixture(t, "12:00")
	ctx := context.Background()

	_, err := f.agg.Create(ctx, reviewRequest("12:00", 4, "good"))
	require.NoError(t, err)

	date, tm := slot("12:00")
	err = f.agg.DeleteByOwner(ctx, "owner-2", "bistro", "diner-1", date, tm)
	require.ErrorIs(t, err, domain.ErrNotStoreOwner)

	require.NoError(t, f.agg.DeleteByOwner(ctx, "owner-1", "bistro", "diner-1", date, tm))
	require.InDelta(t, 0.0, storeRating(t, f.repo), 1e-9)
}

// editDuringList fires a one-shot callback when the review set is read,
// simulating a store edit landing while a rating recompute is in flight.
type editDuringList struct {
	*repository.MemoryRepository
	once sync.Once
	edit func()
}

func (r *editDuringList) ListReviewsForStore(ctx context.Context, storeID uuid.UUID) ([]domain.Review, error) {
	r.once.Do(r.edit)
	return r.MemoryRepository.ListReviewsForStore(ctx, storeID)
}

func TestCreateKeepsConcurrentStoreEdit(t *testing.T) {
	repo := repository.NewMemoryRepository()
	ctx := context.Background()

	_, err := repo.CreateAccount(ctx, domain.Account{
		UserID:      "diner-1",
		PhoneNumber: "010-1111-2222",
		Role:        domain.RoleCustomer,
	})
	require.NoError(t, err)
	created, err := repo.CreateStore(ctx, domain.Store{
		ID:          uuid.New(),
		Name:        "bistro",
		OwnerID:     "owner-1",
		Description: "old",
	})
	require.NoError(t, err)
	date, _ := domain.ParseDate("2026-09-01")
	tm, _ := domain.ParseClockTime("12:00")
	_, err = repo.CreateReservation(ctx, domain.Reservation{
		ID:            uuid.New(),
		StoreID:       created.ID,
		Date:          date,
		Time:          tm,
		HolderContact: "010-1111-2222",
		Status:        domain.ReservationActive,
	})
	require.NoError(t, err)

	reviews := &editDuringList{MemoryRepository: repo}
	reviews.edit = func() {
		store, getErr := repo.GetStoreByName(ctx, "bistro")
		require.NoError(t, getErr)
		store.Description = "updated by owner"
		_, getErr = repo.UpdateStore(ctx, store)
		require.NoError(t, getErr)
	}

	agg := review.NewAggregator(repo, repo, repo, reviews, &stubPublisher{}, stubClock{t: time.Unix(0, 0).UTC()}, nil)
	_, err = agg.Create(ctx, reviewRequest("12:00", 4, "good"))
	require.NoError(t, err)

	after, err := repo.GetStoreByName(ctx, "bistro")
	require.NoError(t, err)
	require.InDelta(t, 4.0, after.Rating, 1e-9)
	require.Equal(t, "updated by owner", after.Description)
}

func TestConcurrentCreatesKeepMeanConsistent(t *testing.T) {
	const writers = 8
	times := make([]string, writers)
	for i := range times {
		times[i] = fmt.Sprintf("%02d:00", 10+i)
	}
	f := newFixture(t, times...)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, writers)
	for i, hhmm := range times {
		wg.Add(1)
		go func(rate float64, hhmm string) {
			defer wg.Done()
			_, err := f.agg.Create(ctx, reviewRequest(hhmm, rate, "visit"))
			errs <- err
		}(float64(i%5)+1, hhmm)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	var want float64
	for i := 0; i < writers; i++ {
		want += float64(i%5) + 1
	}
	want /= writers
	require.InDelta(t, want, storeRating(t, f.repo), 1e-9)
}
