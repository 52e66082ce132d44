package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/example/tablebook/internal/reservation/domain"
)

// PostgresRepository persists every aggregate in Postgres. Each Conflict
// invariant is a unique index; commit-time violations map back to the
// matching domain sentinel, so concurrent inserts cannot both succeed.
// Dates and slot times are stored in their zero-padded ISO text forms, which
// sort correctly and round-trip through the calendar types.
type PostgresRepository struct {
	db *sql.DB
}

// NewPostgresRepository wraps an open connection pool.
func NewPostgresRepository(db *sql.DB) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func (p *PostgresRepository) CreateAccount(ctx context.Context, account domain.Account) (domain.Account, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO accounts (user_id, password_hash, phone_number, role, created_at) VALUES ($1, $2, $3, $4, $5)`,
		account.UserID, account.PasswordHash, account.PhoneNumber, string(account.Role), account.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Account{}, domain.ErrUserExists
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("insert account: %w", err)
	}
	return account, nil
}

func (p *PostgresRepository) GetAccount(ctx context.Context, userID string) (domain.Account, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT user_id, password_hash, phone_number, role, created_at FROM accounts WHERE user_id = $1`, userID)
	var account domain.Account
	var role string
	err := row.Scan(&account.UserID, &account.PasswordHash, &account.PhoneNumber, &role, &account.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("select account: %w", err)
	}
	account.Role = domain.Role(role)
	return account, nil
}

func (p *PostgresRepository) UpdateAccount(ctx context.Context, account domain.Account) (domain.Account, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE accounts SET password_hash = $2, phone_number = $3 WHERE user_id = $1`,
		account.UserID, account.PasswordHash, account.PhoneNumber)
	if err != nil {
		return domain.Account{}, fmt.Errorf("update account: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.Account{}, domain.ErrNotFound
	}
	return account, nil
}

// DeleteAccount relies on ON DELETE CASCADE to take an owner's stores,
// reservations and reviews along.
func (p *PostgresRepository) DeleteAccount(ctx context.Context, userID string) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM accounts WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) CreateStore(ctx context.Context, store domain.Store) (domain.Store, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO stores (id, name, owner_id, location, latitude, longitude, description, rating)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		store.ID, store.Name, store.OwnerID, store.Location, store.Latitude, store.Longitude, store.Description, store.Rating)
	if isUniqueViolation(err) {
		return domain.Store{}, domain.ErrStoreExists
	}
	if err != nil {
		return domain.Store{}, fmt.Errorf("insert store: %w", err)
	}
	return store, nil
}

const storeColumns = `id, name, owner_id, location, latitude, longitude, description, rating`

func scanStore(row *sql.Row) (domain.Store, error) {
	var store domain.Store
	err := row.Scan(&store.ID, &store.Name, &store.OwnerID, &store.Location,
		&store.Latitude, &store.Longitude, &store.Description, &store.Rating)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Store{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Store{}, fmt.Errorf("select store: %w", err)
	}
	return store, nil
}

func (p *PostgresRepository) GetStoreByName(ctx context.Context, name string) (domain.Store, error) {
	return scanStore(p.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE name = $1`, name))
}

func (p *PostgresRepository) GetStoreByID(ctx context.Context, id uuid.UUID) (domain.Store, error) {
	return scanStore(p.db.QueryRowContext(ctx,
		`SELECT `+storeColumns+` FROM stores WHERE id = $1`, id))
}

func (p *PostgresRepository) UpdateStore(ctx context.Context, store domain.Store) (domain.Store, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE stores SET name = $2, location = $3, latitude = $4, longitude = $5, description = $6, rating = $7
		 WHERE id = $1`,
		store.ID, store.Name, store.Location, store.Latitude, store.Longitude, store.Description, store.Rating)
	if isUniqueViolation(err) {
		return domain.Store{}, domain.ErrStoreExists
	}
	if err != nil {
		return domain.Store{}, fmt.Errorf("update store: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.Store{}, domain.ErrNotFound
	}
	return store, nil
}

func (p *PostgresRepository) UpdateStoreRating(ctx context.Context, id uuid.UUID, rating float64) error {
	res, err := p.db.ExecContext(ctx, `UPDATE stores SET rating = $2 WHERE id = $1`, id, rating)
	if err != nil {
		return fmt.Errorf("update store rating: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) DeleteStore(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM stores WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete store: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) ListStores(ctx context.Context) ([]domain.Store, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+storeColumns+` FROM stores`)
	if err != nil {
		return nil, fmt.Errorf("select stores: %w", err)
	}
	defer rows.Close()
	var stores []domain.Store
	for rows.Next() {
		var store domain.Store
		if err := rows.Scan(&store.ID, &store.Name, &store.OwnerID, &store.Location,
			&store.Latitude, &store.Longitude, &store.Description, &store.Rating); err != nil {
			return nil, fmt.Errorf("scan store: %w", err)
		}
		stores = append(stores, store)
	}
	return stores, rows.Err()
}

func (p *PostgresRepository) CreateReservation(ctx context.Context, reservation domain.Reservation) (domain.Reservation, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO reservations (id, store_id, slot_date, slot_time, holder_contact, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		reservation.ID, reservation.StoreID, reservation.Date.String(), reservation.Time.String(),
		reservation.HolderContact, string(reservation.Status), reservation.CreatedAt)
	if isUniqueViolation(err) {
		return domain.Reservation{}, domain.ErrSlotTaken
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("insert reservation: %w", err)
	}
	return reservation, nil
}

const reservationColumns = `id, store_id, slot_date, slot_time, holder_contact, status, created_at`

func scanReservation(scan func(dest ...any) error) (domain.Reservation, error) {
	var reservation domain.Reservation
	var date, tm, status string
	err := scan(&reservation.ID, &reservation.StoreID, &date, &tm,
		&reservation.HolderContact, &status, &reservation.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Reservation{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("select reservation: %w", err)
	}
	if reservation.Date, err = domain.ParseDate(date); err != nil {
		return domain.Reservation{}, err
	}
	if reservation.Time, err = domain.ParseClockTime(tm); err != nil {
		return domain.Reservation{}, err
	}
	reservation.Status = domain.ReservationStatus(status)
	return reservation, nil
}

func (p *PostgresRepository) GetSlot(ctx context.Context, storeID uuid.UUID, date domain.Date, tm domain.ClockTime) (domain.Reservation, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations WHERE store_id = $1 AND slot_date = $2 AND slot_time = $3`,
		storeID, date.String(), tm.String())
	return scanReservation(row.Scan)
}

func (p *PostgresRepository) GetSlotForHolder(ctx context.Context, storeID uuid.UUID, date domain.Date, tm domain.ClockTime, contact string) (domain.Reservation, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE store_id = $1 AND slot_date = $2 AND slot_time = $3 AND holder_contact = $4`,
		storeID, date.String(), tm.String(), contact)
	return scanReservation(row.Scan)
}

func (p *PostgresRepository) UpdateReservation(ctx context.Context, reservation domain.Reservation) (domain.Reservation, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE reservations SET status = $2 WHERE id = $1`,
		reservation.ID, string(reservation.Status))
	if err != nil {
		return domain.Reservation{}, fmt.Errorf("update reservation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.Reservation{}, domain.ErrNotFound
	}
	return reservation, nil
}

func (p *PostgresRepository) ListForDate(ctx context.Context, storeID uuid.UUID, date domain.Date) ([]domain.Reservation, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE store_id = $1 AND slot_date = $2 ORDER BY slot_time ASC`,
		storeID, date.String())
	if err != nil {
		return nil, fmt.Errorf("select reservations: %w", err)
	}
	defer rows.Close()
	var result []domain.Reservation
	for rows.Next() {
		reservation, err := scanReservation(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, reservation)
	}
	return result, rows.Err()
}

func (p *PostgresRepository) CreateReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO reviews (id, reviewer_id, store_id, visited_date, visited_time, rate, comment)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		review.ID, review.ReviewerID, review.StoreID, review.VisitedDate.String(), review.VisitedTime.String(),
		review.Rate, review.Comment)
	if isUniqueViolation(err) {
		return domain.Review{}, domain.ErrReviewExists
	}
	if err != nil {
		return domain.Review{}, fmt.Errorf("insert review: %w", err)
	}
	return review, nil
}

const reviewColumns = `id, reviewer_id, store_id, visited_date, visited_time, rate, comment`

func scanReview(scan func(dest ...any) error) (domain.Review, error) {
	var review domain.Review
	var date, tm string
	err := scan(&review.ID, &review.ReviewerID, &review.StoreID, &date, &tm, &review.Rate, &review.Comment)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Review{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Review{}, fmt.Errorf("select review: %w", err)
	}
	if review.VisitedDate, err = domain.ParseDate(date); err != nil {
		return domain.Review{}, err
	}
	if review.VisitedTime, err = domain.ParseClockTime(tm); err != nil {
		return domain.Review{}, err
	}
	return review, nil
}

func (p *PostgresRepository) GetReview(ctx context.Context, reviewerID string, storeID uuid.UUID, date domain.Date, tm domain.ClockTime) (domain.Review, error) {
	row := p.db.QueryRowContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews
		 WHERE reviewer_id = $1 AND store_id = $2 AND visited_date = $3 AND visited_time = $4`,
		reviewerID, storeID, date.String(), tm.String())
	return scanReview(row.Scan)
}

func (p *PostgresRepository) UpdateReview(ctx context.Context, review domain.Review) (domain.Review, error) {
	res, err := p.db.ExecContext(ctx,
		`UPDATE reviews SET rate = $2, comment = $3 WHERE id = $1`,
		review.ID, review.Rate, review.Comment)
	if err != nil {
		return domain.Review{}, fmt.Errorf("update review: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.Review{}, domain.ErrNotFound
	}
	return review, nil
}

func (p *PostgresRepository) DeleteReview(ctx context.Context, id uuid.UUID) error {
	res, err := p.db.ExecContext(ctx, `DELETE FROM reviews WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete review: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (p *PostgresRepository) ListReviewsForStore(ctx context.Context, storeID uuid.UUID) ([]domain.Review, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT `+reviewColumns+` FROM reviews WHERE store_id = $1`, storeID)
	if err != nil {
		return nil, fmt.Errorf("select reviews: %w", err)
	}
	defer rows.Close()
	var result []domain.Review
	for rows.Next() {
		review, err := scanReview(rows.Scan)
		if err != nil {
			return nil, err
		}
		result = append(result, review)
	}
	return result, rows.Err()
}
