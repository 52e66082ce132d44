package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/example/tablebook/internal/account"
	"github.com/example/tablebook/internal/auth"
	"github.com/example/tablebook/internal/ranking"
	"github.com/example/tablebook/internal/reservation/domain"
	"github.com/example/tablebook/internal/reservation/service"
	"github.com/example/tablebook/internal/review"
	"github.com/example/tablebook/internal/store"
)

// HTTP exposes the reservation platform's endpoints. Authentication happens
// here; services receive resolved principals only.
type HTTP struct {
	accounts *account.Service
	stores   *store.Service
	ranker   *ranking.Service
	ledger   *service.Ledger
	gate     *service.ArrivalGate
	reviews  *review.Aggregator
	secret   string
}

// NewHTTP constructs the handler.
func NewHTTP(accounts *account.Service, stores *store.Service, ranker *ranking.Service, ledger *service.Ledger, gate *service.ArrivalGate, reviews *review.Aggregator, secret string) *HTTP {
	return &HTTP{
		accounts: accounts,
		stores:   stores,
		ranker:   ranker,
		ledger:   ledger,
		gate:     gate,
		reviews:  reviews,
		secret:   secret,
	}
}

// Router builds the chi router with all endpoints and middlewares.
func (h *HTTP) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, middleware.Logger, middleware.Recoverer)

	r.Post("/v1/accounts/signup", h.signup)
	r.Post("/v1/accounts/signin", h.signin)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.secret))
		r.Put("/v1/accounts/me", h.editAccount)
		r.Delete("/v1/accounts/me", h.deleteAccount)
	})

	r.Get("/v1/stores", h.rankStores)
	r.Get("/v1/stores/{name}", h.searchStore)
	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.secret, domain.RoleOwner))
		r.Post("/v1/stores", h.enrollStore)
		r.Put("/v1/stores/{name}", h.editStore)
		r.Delete("/v1/stores/{name}", h.deleteStore)
		r.Get("/v1/stores/{name}/schedule", h.schedule)
		r.Post("/v1/reservations/refuse", h.refuse)
		r.Delete("/v1/reviews/owner", h.deleteReviewByOwner)
	})

	r.Group(func(r chi.Router) {
		r.Use(auth.Middleware(h.secret, domain.RoleCustomer))
		r.Post("/v1/reservations", h.book)
		r.Post("/v1/reviews", h.createReview)
		r.Put("/v1/reviews", h.updateReview)
		r.Delete("/v1/reviews", h.deleteReview)
	})

	// Arrival kiosks authenticate by reservation detail, not by token.
	r.Post("/v1/arrivals", h.confirmArrival)

	return r
}

type signupRequest struct {
	UserID      string `json:"user_id"`
	Password    string `json:"password"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}

type accountResponse struct {
	UserID      string `json:"user_id"`
	PhoneNumber string `json:"phone_number"`
	Role        string `json:"role"`
}

func (h *HTTP) signup(w http.ResponseWriter, r *http.Request) {
	var payload signupRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.accounts.Register(r.Context(), account.RegisterRequest{
		UserID:      payload.UserID,
		Password:    payload.Password,
		PhoneNumber: payload.PhoneNumber,
		Role:        domain.Role(payload.Role),
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, accountResponse{
		UserID:      created.UserID,
		PhoneNumber: created.PhoneNumber,
		Role:        string(created.Role),
	})
}

func (h *HTTP) signin(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		UserID   string `json:"user_id"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	token, err := h.accounts.Authenticate(r.Context(), payload.UserID, payload.Password)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (h *HTTP) editAccount(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload struct {
		Password    *string `json:"password"`
		PhoneNumber *string `json:"phone_number"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.accounts.Edit(r.Context(), principal.UserID, account.EditRequest{
		Password:    payload.Password,
		PhoneNumber: payload.PhoneNumber,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, accountResponse{
		UserID:      updated.UserID,
		PhoneNumber: updated.PhoneNumber,
		Role:        string(updated.Role),
	})
}

func (h *HTTP) deleteAccount(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.accounts.Delete(r.Context(), principal.UserID); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type enrollStoreRequest struct {
	Name        string  `json:"name"`
	Location    string  `json:"location"`
	Latitude    float64 `json:"latitude"`
	Longitude   float64 `json:"longitude"`
	Description string  `json:"description"`
}

func (h *HTTP) enrollStore(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload enrollStoreRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.stores.Enroll(r.Context(), principal.UserID, store.EnrollRequest{
		Name:        payload.Name,
		Location:    payload.Location,
		Latitude:    payload.Latitude,
		Longitude:   payload.Longitude,
		Description: payload.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HTTP) editStore(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload struct {
		Location    *string  `json:"location"`
		Latitude    *float64 `json:"latitude"`
		Longitude   *float64 `json:"longitude"`
		Description *string  `json:"description"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.stores.Edit(r.Context(), principal.UserID, store.EditRequest{
		Name:        chi.URLParam(r, "name"),
		Location:    payload.Location,
		Latitude:    payload.Latitude,
		Longitude:   payload.Longitude,
		Description: payload.Description,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *HTTP) deleteStore(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	if err := h.stores.Delete(r.Context(), principal.UserID, chi.URLParam(r, "name")); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) searchStore(w http.ResponseWriter, r *http.Request) {
	found, err := h.stores.Search(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, found)
}

func (h *HTTP) rankStores(w http.ResponseWriter, r *http.Request) {
	q := ranking.Query{
		Criterion: r.URL.Query().Get("criterion"),
		Page:      queryInt(r, "page", 0),
		Size:      queryInt(r, "size", 20),
		Lat:       queryFloat(r, "lat"),
		Lng:       queryFloat(r, "lng"),
		RadiusKM:  queryFloat(r, "radius_km"),
	}
	page, err := h.ranker.Rank(r.Context(), q)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func (h *HTTP) schedule(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	date, err := domain.ParseDate(r.URL.Query().Get("date"))
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	reservations, err := h.ledger.Schedule(r.Context(), principal.UserID, chi.URLParam(r, "name"), date)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, reservations)
}

type slotRequest struct {
	StoreName string `json:"store_name"`
	Date      string `json:"date"`
	Time      string `json:"time"`
}

func (h *HTTP) book(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload slotRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, tm, err := parseSlot(payload.Date, payload.Time)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.ledger.Book(r.Context(), service.BookRequest{
		StoreName:     payload.StoreName,
		Date:          date,
		Time:          tm,
		HolderContact: principal.Contact,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HTTP) refuse(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload slotRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, tm, err := parseSlot(payload.Date, payload.Time)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	refused, err := h.ledger.Refuse(r.Context(), principal.UserID, payload.StoreName, date, tm)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, refused)
}

func (h *HTTP) confirmArrival(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		slotRequest
		HolderContact string `json:"holder_contact"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, tm, err := parseSlot(payload.Date, payload.Time)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.gate.Confirm(r.Context(), service.ConfirmRequest{
		StoreName:     payload.StoreName,
		Date:          date,
		Time:          tm,
		HolderContact: payload.HolderContact,
	}); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "confirmed"})
}

type reviewRequest struct {
	StoreName   string   `json:"store_name"`
	VisitedDate string   `json:"visited_date"`
	VisitedTime string   `json:"visited_time"`
	Rate        *float64 `json:"rate"`
	Comment     *string  `json:"comment"`
}

func (h *HTTP) reviewFromRequest(r *http.Request, payload reviewRequest, reviewerID string) (review.Request, error) {
	date, tm, err := parseSlot(payload.VisitedDate, payload.VisitedTime)
	if err != nil {
		return review.Request{}, err
	}
	return review.Request{
		ReviewerID:  reviewerID,
		StoreName:   payload.StoreName,
		VisitedDate: date,
		VisitedTime: tm,
		Rate:        payload.Rate,
		Comment:     payload.Comment,
	}, nil
}

func (h *HTTP) createReview(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.reviewFromRequest(r, payload, principal.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	created, err := h.reviews.Create(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (h *HTTP) updateReview(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.reviewFromRequest(r, payload, principal.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	updated, err := h.reviews.Update(r.Context(), req)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (h *HTTP) deleteReview(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload reviewRequest
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req, err := h.reviewFromRequest(r, payload, principal.UserID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.reviews.Delete(r.Context(), req); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *HTTP) deleteReviewByOwner(w http.ResponseWriter, r *http.Request) {
	principal, _ := auth.PrincipalFromContext(r.Context())
	var payload struct {
		reviewRequest
		ReviewerID string `json:"reviewer_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	date, tm, err := parseSlot(payload.VisitedDate, payload.VisitedTime)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if err := h.reviews.DeleteByOwner(r.Context(), principal.UserID, payload.StoreName, payload.ReviewerID, date, tm); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func parseSlot(date, tm string) (domain.Date, domain.ClockTime, error) {
	d, err := domain.ParseDate(date)
	if err != nil {
		return domain.Date{}, domain.ClockTime{}, err
	}
	t, err := domain.ParseClockTime(tm)
	if err != nil {
		return domain.Date{}, domain.ClockTime{}, err
	}
	return d, t, nil
}

func queryInt(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func queryFloat(r *http.Request, key string) *float64 {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil
	}
	return &f
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, err error) {
	writeJSON(w, statusFor(err), map[string]string{"error": err.Error()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrInvalidCriterion),
		errors.Is(err, domain.ErrMissingCoordinates):
		return http.StatusBadRequest
	case errors.Is(err, domain.ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNotStoreOwner),
		errors.Is(err, domain.ErrReviewerMismatch):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrStoreExists),
		errors.Is(err, domain.ErrSlotTaken),
		errors.Is(err, domain.ErrReviewExists),
		errors.Is(err, domain.ErrAlreadyRefused):
		return http.StatusConflict
	case errors.Is(err, domain.ErrInvalidConfirmation):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}
