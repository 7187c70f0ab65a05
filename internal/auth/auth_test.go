package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spec-kit/ticket-tracker/internal/domain"
	apperrors "github.com/spec-kit/ticket-tracker/pkg/util/errorutil"
)

func testApp(tm *TokenManager, required domain.PermissionLevel) *fiber.App {
	app := fiber.New(fiber.Config{
		ErrorHandler: func(c *fiber.Ctx, err error) error {
			return c.SendStatus(apperrors.ToDomainError(err).HTTPStatus)
		},
	})
	mw := NewAuthMiddleware(tm)
	app.Get("/protected", mw.Handle, RequireLevel(required), func(c *fiber.Ctx) error {
		p, ok := PrincipalFromContext(c)
		if !ok {
			return apperrors.NewUnauthorized("missing principal")
		}
		return c.SendString(p.SubjectID)
	})
	return app
}

func get(t *testing.T, app *fiber.App, header string) int {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/protected", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	return resp.StatusCode
}

func TestTokenRoundTrip(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, expires, err := tm.GenerateToken("agent-1", domain.PermissionAdmin)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expires, time.Minute)

	claims, err := tm.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, "agent-1", claims.Subject)
	assert.Equal(t, tokenIssuer, claims.Issuer)
	assert.NotEmpty(t, claims.ID)
	assert.Equal(t, "admin", claims.Level)
}

func TestParseTokenRejectsOtherSecretAndExpiry(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	token, _, err := tm.GenerateToken("agent-1", domain.PermissionSupport)
	require.NoError(t, err)

	_, err = NewTokenManager("other", 5).ParseToken(token)
	assert.Error(t, err)

	later := NewTokenManager("secret", 5)
	later.now = func() time.Time { return time.Now().Add(time.Hour) }
	_, err = later.ParseToken(token)
	assert.Error(t, err)
}

func TestMiddleware(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	support, _, err := tm.GenerateToken("agent-1", domain.PermissionSupport)
	require.NoError(t, err)
	admin, _, err := tm.GenerateToken("boss", domain.PermissionAdmin)
	require.NoError(t, err)
	none, _, err := tm.GenerateToken("guest", domain.PermissionNone)
	require.NoError(t, err)

	app := testApp(tm, domain.PermissionAdmin)
	assert.Equal(t, http.StatusUnauthorized, get(t, app, ""))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "Basic abc"))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "Bearer garbage"))
	assert.Equal(t, http.StatusUnauthorized, get(t, app, "Bearer "+none))
	assert.Equal(t, http.StatusForbidden, get(t, app, "Bearer "+support))
	assert.Equal(t, http.StatusOK, get(t, app, "Bearer "+admin))
}

func TestParseLevel(t *testing.T) {
	level, ok := ParseLevel(" Admin ")
	assert.True(t, ok)
	assert.Equal(t, domain.PermissionAdmin, level)

	_, ok = ParseLevel("root")
	assert.False(t, ok)
}

func TestParseTokenRejectsForeignAudience(t *testing.T) {
	tm := NewTokenManager("secret", 5)
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Level: "admin",
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    tokenIssuer,
			Audience:  jwt.ClaimStrings{"dashboard"},
			Subject:   "agent-1",
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
		},
	}).SignedString([]byte("secret"))
	require.NoError(t, err)

	_, err = tm.ParseToken(foreign)
	assert.Error(t, err)

	_, _, err = tm.GenerateToken("", domain.PermissionAdmin)
	assert.Error(t, err)
}

func TestBearerToken(t *testing.T) {
	token, err := bearerToken("bearer  abc.def ")
	require.NoError(t, err)
	assert.Equal(t, "abc.def", token)

	for _, header := range []string{"", "Bearer", "Bearer   ", "Token abc"} {
		_, err := bearerToken(header)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeUnauthorized), header)
	}
}
