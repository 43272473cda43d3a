package main

import (
	"log"
	"net/http"

	"sportrecord/assessment"
	"sportrecord/catalog"
	"sportrecord/config"
	"sportrecord/connect"
	"sportrecord/database"
	"sportrecord/handlers"
	"sportrecord/middleware"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	middleware.SetJWTSecret(cfg.JWTSecret)

	// Open and migrate every localized database.
	reg, err := database.NewRegistry(cfg.ShardDatabases, logger)
	if err != nil {
		logger.Fatal("shard registry initialization failed", zap.Error(err))
	}

	treeCache := assessment.NewTreeCache(reg)
	syncWriter := database.NewSyncWriter(reg, logger)
	notifier := connect.NewLogNotifier(logger)

	assessmentSvc := assessment.NewService(reg, treeCache, cfg.AssessmentCooldown, logger)
	resolver := assessment.NewVisibilityResolver(reg, treeCache)
	orchestrator := connect.NewOrchestrator(reg, treeCache, notifier,
		cfg.DefaultOpenTopCategoryID, cfg.InviteExpiration, logger)
	catalogSvc := catalog.NewService(reg, syncWriter, treeCache, logger)

	auth := middleware.NewAuth(reg)
	authHandler := handlers.NewAuthHandler(cfg, reg, logger)
	assessmentHandler := handlers.NewAssessmentHandler(reg, assessmentSvc, resolver, logger)
	inviteHandler := handlers.NewInviteHandler(cfg, reg, orchestrator, notifier, logger)
	catalogHandler := handlers.NewCatalogHandler(catalogSvc, logger)

	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Logger)
	router.Use(chimiddleware.Recoverer)

	// Public routes
	router.Post("/api/register", authHandler.Register)
	router.Post("/api/login", authHandler.Login)

	// Protected routes
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

	// Catalog admin routes; every write here syncs across all shards.
	router.Group(func(r chi.Router) {
		r.Use(handlers.RequireAdminToken(cfg.AdminToken))

		r.Post("/api/admin/sports", catalogHandler.CreateSport)
		r.Post("/api/admin/promocodes", catalogHandler.CreatePromocode)
		r.Put("/api/admin/promocodes", catalogHandler.UpdatePromocode)
		r.Post("/api/admin/top-categories", catalogHandler.CreateTopCategory)
		r.Post("/api/admin/sub-categories", catalogHandler.CreateSubCategory)
		r.Post("/api/admin/formats", catalogHandler.CreateFormat)
		r.Post("/api/admin/relationship-types", catalogHandler.CreateRelationshipType)
		r.Post("/api/admin/assessments", catalogHandler.CreateAssessment)
		r.Delete("/api/admin/assessments/{assessmentID}", catalogHandler.DeleteAssessment)
		r.Post("/api/admin/repair", catalogHandler.Repair)
	})

	logger.Info("server starting", zap.String("port", cfg.ServerPort))
	if err := http.ListenAndServe(":"+cfg.ServerPort, router); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
