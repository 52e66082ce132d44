package auth_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/example/tablebook/internal/auth"
	"github.com/example/tablebook/internal/reservation/domain"
)

func issueToken(t *testing.T, role domain.Role) string {
	t.Helper()
	issuer := auth.NewIssuer("test-secret", time.Hour, domain.SystemClock{})
	token, err := issuer.Token(domain.Account{
		UserID:      "user-1",
		PhoneNumber: "010-1111-2222",
		Role:        role,
	})
	require.NoError(t, err)
	return token
}

func protectedHandler(t *testing.T, roles ...domain.Role) (http.Handler, *auth.Principal) {
	t.Helper()
	var seen auth.Principal
	inner := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		principal, ok := auth.PrincipalFromContext(r.Context())
		require.True(t, ok)
		seen = principal
		w.WriteHeader(http.StatusNoContent)
	})
	return auth.Middleware("test-secret", roles...)(inner), &seen
}

func TestMiddlewareInjectsPrincipal(t *testing.T) {
	handler, seen := protectedHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, domain.RoleCustomer))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Equal(t, "user-1", seen.UserID)
	require.Equal(t, domain.RoleCustomer, seen.Role)
	require.Equal(t, "010-1111-2222", seen.Contact)
}

func TestMiddlewareRejectsMissingOrBadToken(t *testing.T) {
	handler, _ := protectedHandler(t)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareRejectsWrongSecret(t *testing.T) {
	issuer := auth.NewIssuer("other-secret", time.Hour, domain.SystemClock{})
	token, err := issuer.Token(domain.Account{UserID: "user-1", Role: domain.RoleCustomer})
	require.NoError(t, err)

	handler, _ := protectedHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestMiddlewareEnforcesRole(t *testing.T) {
	handler, _ := protectedHandler(t, domain.RoleOwner)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, domain.RoleCustomer))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusForbidden, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+issueToken(t, domain.RoleOwner))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
}

func TestExpiredTokenRejected(t *testing.T) {
	past := domain.SystemClock{}.Now().Add(-2 * time.Hour)
	issuer := auth.NewIssuer("test-secret", time.Hour, frozenClock{t: past})
	token, err := issuer.Token(domain.Account{UserID: "user-1", Role: domain.RoleCustomer})
	require.NoError(t, err)

	handler, _ := protectedHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

type frozenClock struct{ t time.Time }

func (f frozenClock) Now() time.Time { return f.t }
