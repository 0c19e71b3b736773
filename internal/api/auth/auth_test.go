package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, claims StaffClaims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func doRequest(t *testing.T, authHeader string) (*httptest.ResponseRecorder, string) {
	t.Helper()
	e := echo.New()
	var gotStaff string
	e.GET("/protected", func(c echo.Context) error {
		gotStaff = StaffID(c)
		return c.NoContent(http.StatusOK)
	}, RequireAuth(testSecret))

	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec, gotStaff
}

func TestRequireAuthAcceptsValidToken(t *testing.T) {
	token := signToken(t, StaffClaims{
		StaffID: "staff_1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	rec, staff := doRequest(t, "Bearer "+token)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "staff_1", staff)
}

func TestRequireAuthRejectsMissingHeader(t *testing.T) {
	rec, _ := doRequest(t, "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsWrongSecret(t *testing.T) {
	token := signToken(t, StaffClaims{StaffID: "staff_1"}, "other-secret")
	rec, _ := doRequest(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsExpiredToken(t *testing.T) {
	token := signToken(t, StaffClaims{
		StaffID: "staff_1",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
		},
	}, testSecret)

	rec, _ := doRequest(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsMissingStaffID(t *testing.T) {
	token := signToken(t, StaffClaims{}, testSecret)
	rec, _ := doRequest(t, "Bearer "+token)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRequireAuthRejectsMalformedHeader(t *testing.T) {
	rec, _ := doRequest(t, "Basic abc123")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}
