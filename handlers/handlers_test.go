package handlers_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"sportrecord/assessment"
	"sportrecord/catalog"
	"sportrecord/config"
	"sportrecord/connect"
	"sportrecord/database"
	"sportrecord/handlers"
	"sportrecord/middleware"
	"sportrecord/models"
	"sportrecord/testutil"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

type apiFixture struct {
	cfg    *config.Config
	reg    *database.Registry
	db     *gorm.DB
	cache  *assessment.TreeCache
	router *chi.Mux
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()

	cfg := &config.Config{
		JWTSecret:                "test-secret",
		JWTExpiration:            time.Hour,
		AdminToken:               "admin-secret",
		InviteExpiration:         7 * 24 * time.Hour,
		AssessmentCooldown:       30 * 24 * time.Hour,
		DefaultOpenTopCategoryID: 10001,
	}
	middleware.SetJWTSecret(cfg.JWTSecret)

	reg := testutil.NewRegistry(t, "ca", "us")
	db, err := reg.Resolve("ca")
	require.NoError(t, err)

	log := testutil.Logger()
	cache := assessment.NewTreeCache(reg)
	writer := database.NewSyncWriter(reg, log)
	notifier := connect.NewLogNotifier(log)

	svc := assessment.NewService(reg, cache, cfg.AssessmentCooldown, log)
	resolver := assessment.NewVisibilityResolver(reg, cache)
	orchestrator := connect.NewOrchestrator(reg, cache, notifier,
		cfg.DefaultOpenTopCategoryID, cfg.InviteExpiration, log)
	catalogSvc := catalog.NewService(reg, writer, cache, log)

	auth := middleware.NewAuth(reg)
	authHandler := handlers.NewAuthHandler(cfg, reg, log)
	assessmentHandler := handlers.NewAssessmentHandler(reg, svc, resolver, log)
	inviteHandler := handlers.NewInviteHandler(cfg, reg, orchestrator, notifier, log)
	catalogHandler := handlers.NewCatalogHandler(catalogSvc, log)

	router := chi.NewRouter()
	router.Post("/api/register", authHandler.Register)
	router.Post("/api/login", authHandler.Login)
	router.Group(func(r chi.Router) {
		r.Use(auth.Middleware)
		r.Get("/api/assessments/tree", assessmentHandler.GetTree)
		r.Post("/api/assessments/records", assessmentHandler.PostRecords)
		r.Put("/api/assessments/records/{recordID}", assessmentHandler.UpdateRecord)
		r.Get("/api/assessments/history/{assessedID}", assessmentHandler.GetHistory)
		r.Get("/api/permissions", assessmentHandler.GetPermissions)
		r.Put("/api/permissions", assessmentHandler.PutPermission)
		r.Get("/api/promocodes/{code}", catalogHandler.ValidatePromocode)
		r.Post("/api/invites", inviteHandler.CreateInvite)
		r.Post("/api/invites/{token}/confirm", inviteHandler.ConfirmInvite)
		r.Post("/api/invites/{inviteID}/cancel", inviteHandler.CancelInvite)
		r.Post("/api/connections/unlink", inviteHandler.Unlink)
	})
	router.Group(func(r chi.Router) {
		r.Use(handlers.RequireAdminToken(cfg.AdminToken))
		r.Post("/api/admin/sports", catalogHandler.CreateSport)
	})

	return &apiFixture{cfg: cfg, reg: reg, db: db, cache: cache, router: router}
}

func (f *apiFixture) request(t *testing.T, method, path string, body interface{}, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		req = httptest.NewRequest(method, path, bytes.NewReader(payload))
		req.Header.Set("Content-Type", "application/json")
	} else {
		req = httptest.NewRequest(method, path, nil)
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func (f *apiFixture) token(t *testing.T, user *models.User) string {
	t.Helper()
	token, err := middleware.GenerateToken(user, f.cfg.JWTExpiration)
	require.NoError(t, err)
	return token
}

func (f *apiFixture) seedCatalog(t *testing.T) *models.Assessment {
	t.Helper()
	rts := testutil.SeedRelationshipTypes(t, f.db)
	format := testutil.CreateFormat(t, f.db, "cm", "")
	top := testutil.CreateTopCategory(t, f.db, 10001, "General")
	sub := testutil.CreateSubCategory(t, f.db, "Speed", top.ID)
	a := testutil.CreateAssessment(t, f.db, "Vertical Jump", sub.ID, format.ID, testutil.AssessmentOpts{
		RelationshipTypes: []models.AssessmentRelationshipType{
			rts[models.RelationshipSelf],
			rts[models.RelationshipAthleteCoach],
			rts[models.RelationshipCoachAthlete],
		},
	})
	f.cache.Invalidate("ca")
	return a
}

func TestRegisterAndLogin(t *testing.T) {
	f := newAPIFixture(t)

	w := f.request(t, "POST", "/api/register", map[string]interface{}{
		"email": "athlete@example.com", "password": "secret1", "country": "ca", "user_type": "athlete",
	}, "")
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var created struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&created))
	assert.NotEmpty(t, created.Token)

	// Duplicate emails are rejected across all shards.
	w = f.request(t, "POST", "/api/register", map[string]interface{}{
		"email": "athlete@example.com", "password": "secret1", "country": "us", "user_type": "athlete",
	}, "")
	assert.Equal(t, http.StatusConflict, w.Code)

	// Unknown countries have no shard to live on.
	w = f.request(t, "POST", "/api/register", map[string]interface{}{
		"email": "other@example.com", "password": "secret1", "country": "de", "user_type": "athlete",
	}, "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.request(t, "POST", "/api/login", map[string]interface{}{
		"email": "athlete@example.com", "password": "secret1",
	}, "")
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, "POST", "/api/login", map[string]interface{}{
		"email": "athlete@example.com", "password": "wrong",
	}, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestInviteConfirmAndRecordFlow(t *testing.T) {
	f := newAPIFixture(t)
	a := f.seedCatalog(t)

	athlete := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	coach := testutil.CreateUser(t, f.db, "coach@example.com", "ca", models.UserTypeCoach)
	athleteToken := f.token(t, athlete)
	coachToken := f.token(t, coach)

	// Coach invites the athlete.
	w := f.request(t, "POST", "/api/invites", map[string]interface{}{
		"recipient": "athlete@example.com",
	}, coachToken)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inviteResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&inviteResp))

	// Only the addressed recipient may confirm.
	w = f.request(t, "POST", "/api/invites/"+inviteResp.Token+"/confirm", nil, coachToken)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.request(t, "POST", "/api/invites/"+inviteResp.Token+"/confirm", nil, athleteToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	// Confirming twice fails: the invite is no longer pending.
	w = f.request(t, "POST", "/api/invites/"+inviteResp.Token+"/confirm", nil, athleteToken)
	assert.Equal(t, http.StatusGone, w.Code)

	// The athlete's grants now list the coach.
	w = f.request(t, "GET", "/api/permissions", nil, athleteToken)
	require.Equal(t, http.StatusOK, w.Code)
	var perms []models.AssessmentTopCategoryPermission
	require.NoError(t, json.NewDecoder(w.Body).Decode(&perms))
	require.Len(t, perms, 1)
	assert.True(t, perms[0].AssessorHasAccess)

	// The coach records a value for the athlete.
	athleteAssessed, err := models.AssessedOf(f.db, athlete)
	require.NoError(t, err)
	w = f.request(t, "POST", "/api/assessments/records", map[string]interface{}{
		"records": []map[string]interface{}{
			{"assessed_id": athleteAssessed.ID, "assessment_id": a.ID, "value": 42.5},
		},
	}, coachToken)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var batch struct {
		Valid    []models.ChosenAssessment `json:"valid"`
		Rejected []json.RawMessage         `json:"rejected"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&batch))
	require.Len(t, batch.Valid, 1)
	assert.Empty(t, batch.Rejected)

	// History is visible to the connected coach.
	w = f.request(t, "GET", fmt.Sprintf("/api/assessments/history/%d", athleteAssessed.ID), nil, coachToken)
	assert.Equal(t, http.StatusOK, w.Code)

	// The athlete closes the coach's grant, which blocks further records.
	coachAssessor, err := models.AssessorOf(f.db, coach)
	require.NoError(t, err)
	w = f.request(t, "PUT", "/api/permissions", map[string]interface{}{
		"assessor_id": coachAssessor.ID, "top_category_id": 10001, "access": false,
	}, athleteToken)
	require.Equal(t, http.StatusOK, w.Code)

	w = f.request(t, "POST", "/api/assessments/records", map[string]interface{}{
		"records": []map[string]interface{}{
			{"assessed_id": athleteAssessed.ID, "assessment_id": a.ID, "value": 40},
		},
	}, coachToken)
	require.Equal(t, http.StatusOK, w.Code)
	batch.Valid = nil
	batch.Rejected = nil
	require.NoError(t, json.NewDecoder(w.Body).Decode(&batch))
	assert.Empty(t, batch.Valid)
	assert.Len(t, batch.Rejected, 1)
}

func TestConfirmSameRoleInviteStaysPending(t *testing.T) {
	f := newAPIFixture(t)
	f.seedCatalog(t)
	coachA := testutil.CreateUser(t, f.db, "coach-a@example.com", "ca", models.UserTypeCoach)
	coachB := testutil.CreateUser(t, f.db, "coach-b@example.com", "ca", models.UserTypeCoach)

	w := f.request(t, "POST", "/api/invites", map[string]interface{}{
		"recipient": "coach-b@example.com",
	}, f.token(t, coachA))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var inviteResp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.NewDecoder(w.Body).Decode(&inviteResp))

	// A coach-to-coach invite with no team connects nothing; confirming it
	// leaves it pending instead of consuming it.
	w = f.request(t, "POST", "/api/invites/"+inviteResp.Token+"/confirm", nil, f.token(t, coachB))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var invite models.Invite
	require.NoError(t, f.db.Where("token = ?", inviteResp.Token).First(&invite).Error)
	assert.Equal(t, models.InvitePending, invite.Status)

	var coachings, perms int64
	require.NoError(t, f.db.Model(&models.Coaching{}).Count(&coachings).Error)
	require.NoError(t, f.db.Model(&models.AssessmentTopCategoryPermission{}).Count(&perms).Error)
	assert.Equal(t, int64(0), coachings)
	assert.Equal(t, int64(0), perms)
}

func TestInviteToArchivedTeamRejected(t *testing.T) {
	f := newAPIFixture(t)
	coach := testutil.CreateUser(t, f.db, "coach@example.com", "ca", models.UserTypeCoach)
	team := testutil.CreateTeam(t, f.db, "Old Squad", coach, false)
	require.NoError(t, f.db.Model(team).Update("status", models.TeamStatusArchived).Error)

	w := f.request(t, "POST", "/api/invites", map[string]interface{}{
		"recipient": "athlete@example.com",
		"team_id":   team.ID,
	}, f.token(t, coach))
	assert.Equal(t, http.StatusConflict, w.Code, w.Body.String())
}

func TestPromocodeValidationEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	athlete := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	token := f.token(t, athlete)

	now := time.Now()
	require.NoError(t, f.db.Create(&models.Promocode{
		Code: "SAVE10", Discount: 10, Name: "Autumn",
		StartDate: now.Add(-time.Hour), EndDate: now.Add(time.Hour), Active: true,
	}).Error)
	require.NoError(t, f.db.Create(&models.Promocode{
		Code: "EXPIRED", Discount: 10, Name: "Spring",
		StartDate: now.Add(-48 * time.Hour), EndDate: now.Add(-24 * time.Hour), Active: true,
	}).Error)

	var resp struct {
		Valid bool `json:"valid"`
	}
	w := f.request(t, "GET", "/api/promocodes/SAVE10", nil, token)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.True(t, resp.Valid)

	w = f.request(t, "GET", "/api/promocodes/EXPIRED", nil, token)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.NewDecoder(w.Body).Decode(&resp))
	assert.False(t, resp.Valid)

	w = f.request(t, "GET", "/api/promocodes/NOPE", nil, token)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDryRunQueryParameter(t *testing.T) {
	f := newAPIFixture(t)
	a := f.seedCatalog(t)
	athlete := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	athleteAssessed, err := models.AssessedOf(f.db, athlete)
	require.NoError(t, err)

	w := f.request(t, "POST", "/api/assessments/records?dry_run=true", map[string]interface{}{
		"records": []map[string]interface{}{
			{"assessed_id": athleteAssessed.ID, "assessment_id": a.ID, "value": 42},
		},
	}, f.token(t, athlete))
	require.Equal(t, http.StatusOK, w.Code)

	var count int64
	require.NoError(t, f.db.Model(&models.ChosenAssessment{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestUnlinkEndpoint(t *testing.T) {
	f := newAPIFixture(t)
	f.seedCatalog(t)
	athlete := testutil.CreateUser(t, f.db, "athlete@example.com", "ca", models.UserTypeAthlete)
	coach := testutil.CreateUser(t, f.db, "coach@example.com", "ca", models.UserTypeCoach)

	require.NoError(t, models.EnsureCoaching(f.db, athlete.ID, coach.ID))
	w := f.request(t, "POST", "/api/connections/unlink", map[string]interface{}{
		"user_id": coach.ID,
	}, f.token(t, athlete))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var count int64
	require.NoError(t, f.db.Model(&models.Coaching{}).Count(&count).Error)
	assert.Equal(t, int64(0), count)
}

func TestAdminSportEndpoint(t *testing.T) {
	f := newAPIFixture(t)

	// No token, no access.
	w := f.request(t, "POST", "/api/admin/sports", map[string]interface{}{"name": "Hockey"}, "")
	assert.Equal(t, http.StatusForbidden, w.Code)

	req := httptest.NewRequest("POST", "/api/admin/sports",
		bytes.NewReader([]byte(`{"name":"Hockey"}`)))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Admin-Token", "admin-secret")
	rec := httptest.NewRecorder()
	f.router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	for _, key := range f.reg.AllShards() {
		db, err := f.reg.Resolve(key)
		require.NoError(t, err)
		var sport models.Sport
		require.NoError(t, db.Where("name = ?", "Hockey").First(&sport).Error)
	}
}
