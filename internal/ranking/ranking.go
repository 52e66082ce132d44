// Package ranking orders and paginates the store catalogue for customers.
package ranking

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/example/tablebook/internal/geo"
	"github.com/example/tablebook/internal/reservation/domain"
)

// Supported ranking criteria.
const (
	ByName     = "name"
	ByRating   = "rating"
	ByDistance = "distance"
)

// Query selects a criterion and a zero-based page. Lat, Lng and RadiusKM are
// required for distance ranking only.
type Query struct {
	Criterion string
	Page      int
	Size      int
	Lat       *float64
	Lng       *float64
	RadiusKM  *float64
}

// Page is one page of ranked stores. Total counts the full filtered set, not
// the page, because distance filtering changes the total independently of
// the page size.
type Page struct {
	Items []domain.Store `json:"items"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Size  int            `json:"size"`
}

// Service ranks stores over a snapshot of the catalogue. It is read-only and
// tolerates staleness.
type Service struct {
	stores domain.StoreRepository
}

// New constructs the ranking service.
func New(stores domain.StoreRepository) *Service {
	return &Service{stores: stores}
}

// Rank filters and sorts the store set by the chosen criterion, then
// paginates. Pagination always applies after filtering and sorting.
func (s *Service) Rank(ctx context.Context, q Query) (Page, error) {
	if q.Page < 0 || q.Size <= 0 {
		return Page{}, fmt.Errorf("%w: page must be >= 0 and size > 0", domain.ErrValidation)
	}

	stores, err := s.stores.ListStores(ctx)
	if err != nil {
		return Page{}, fmt.Errorf("list stores: %w", err)
	}

	switch strings.ToLower(q.Criterion) {
	case ByName:
		sort.Slice(stores, func(i, j int) bool { return stores[i].Name < stores[j].Name })
	case ByRating:
		sort.Slice(stores, func(i, j int) bool {
			if stores[i].Rating != stores[j].Rating {
				return stores[i].Rating > stores[j].Rating
			}
			return stores[i].Name < stores[j].Name
		})
	case ByDistance:
		if q.Lat == nil || q.Lng == nil || q.RadiusKM == nil {
			return Page{}, domain.ErrMissingCoordinates
		}
		stores = rankByDistance(stores, *q.Lat, *q.Lng, *q.RadiusKM)
	default:
		return Page{}, fmt.Errorf("%w: %q", domain.ErrInvalidCriterion, q.Criterion)
	}

	return paginate(stores, q.Page, q.Size), nil
}

func rankByDistance(stores []domain.Store, lat, lng, radiusKM float64) []domain.Store {
	type ranked struct {
		store    domain.Store
		distance float64
	}
	within := make([]ranked, 0, len(stores))
	for _, store := range stores {
		d := geo.DistanceKM(lat, lng, store.Latitude, store.Longitude)
		if d <= radiusKM {
			within = append(within, ranked{store: store, distance: d})
		}
	}
	sort.Slice(within, func(i, j int) bool {
		if within[i].distance != within[j].distance {
			return within[i].distance < within[j].distance
		}
		return within[i].store.Name < within[j].store.Name
	})
	result := make([]domain.Store, len(within))
	for i, r := range within {
		result[i] = r.store
	}
	return result
}

func paginate(stores []domain.Store, page, size int) Page {
	total := len(stores)
	start := page * size
	if start > total {
		start = total
	}
	end := start + size
	if end > total {
		end = total
	}
	return Page{Items: stores[start:end], Total: total, Page: page, Size: size}
}
