package middleware_test

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sportrecord/database"
	"sportrecord/middleware"
	"sportrecord/models"
	"sportrecord/testutil"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenRoundTrip(t *testing.T) {
	middleware.SetJWTSecret("test-secret")

	user := &models.User{
		ID:       7,
		Email:    "coach@example.com",
		Country:  "ca",
		UserType: models.UserTypeCoach,
	}
	token, err := middleware.GenerateToken(user, time.Hour)
	require.NoError(t, err)

	claims, err := middleware.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, uint(7), claims.UserID)
	assert.Equal(t, "ca", claims.Country)
	assert.Equal(t, models.UserTypeCoach, claims.UserType)

	_, err = middleware.ValidateToken(token + "x")
	assert.Error(t, err)
}

func TestMiddlewareResolvesShardFromClaims(t *testing.T) {
	middleware.SetJWTSecret("test-secret")
	reg := testutil.NewRegistry(t, "ca", "us")
	db, err := reg.Resolve("us")
	require.NoError(t, err)
	user := testutil.CreateUser(t, db, "athlete@example.com", "us", models.UserTypeAthlete)

	auth := middleware.NewAuth(reg)
	var gotUser *models.User
	var gotShard database.ShardKey
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser = middleware.GetUserFromContext(r.Context())
		gotShard = middleware.GetShardFromContext(r.Context())
	}))

	token, err := middleware.GenerateToken(user, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/api/assessments/tree", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, gotUser)
	assert.Equal(t, user.ID, gotUser.ID)
	assert.Equal(t, database.ShardKey("us"), gotShard)
}

func TestMiddlewareRejectsMissingOrBadToken(t *testing.T) {
	middleware.SetJWTSecret("test-secret")
	reg := testutil.NewRegistry(t, "ca")
	auth := middleware.NewAuth(reg)
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run without valid auth")
	}))

	req := httptest.NewRequest("GET", "/", nil)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestMiddlewareRejectsUnknownShardClaim(t *testing.T) {
	middleware.SetJWTSecret("test-secret")
	reg := testutil.NewRegistry(t, "ca")
	auth := middleware.NewAuth(reg)
	handler := auth.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("handler must not run for an unknown shard")
	}))

	token, err := middleware.GenerateToken(&models.User{ID: 1, Country: "de"}, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireUserType(t *testing.T) {
	middleware.SetJWTSecret("test-secret")
	reg := testutil.NewRegistry(t, "ca")
	db, err := reg.Resolve("ca")
	require.NoError(t, err)
	athlete := testutil.CreateUser(t, db, "athlete@example.com", "ca", models.UserTypeAthlete)

	auth := middleware.NewAuth(reg)
	protected := auth.Middleware(
		middleware.RequireUserType(models.UserTypeCoach)(
			http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {})))

	token, err := middleware.GenerateToken(athlete, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	protected.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
