package handlers

import (
	"crypto/subtle"
	"net/http"
	"strconv"
	"time"

	"sportrecord/catalog"
	"sportrecord/database"
	"sportrecord/middleware"
	"sportrecord/models"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// CatalogHandler is the admin surface for the synced catalog. Writes here fan
// out to every shard.
type CatalogHandler struct {
	svc *catalog.Service
	log *zap.Logger
}

func NewCatalogHandler(svc *catalog.Service, log *zap.Logger) *CatalogHandler {
	return &CatalogHandler{svc: svc, log: log}
}

// RequireAdminToken gates the catalog endpoints behind a static token. An
// empty configured token disables the endpoints entirely.
func RequireAdminToken(token string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if token == "" {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			got := r.Header.Get("X-Admin-Token")
			if subtle.ConstantTimeCompare([]byte(got), []byte(token)) != 1 {
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// writeSyncResult reports partial sync failures with the committed subset so
// the caller knows which shards need a repair.
func (h *CatalogHandler) writeSyncResult(w http.ResponseWriter, err error, payload interface{}) {
	if err != nil {
		if partial, ok := err.(*database.PartialSyncError); ok {
			h.log.Error("partial catalog sync", zap.Error(partial))
			writeJSON(w, http.StatusBadGateway, map[string]interface{}{
				"error":     partial.Error(),
				"succeeded": partial.Succeeded,
				"failed":    partial.Failed,
			})
			return
		}
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusCreated, payload)
}

func (h *CatalogHandler) CreateSport(w http.ResponseWriter, r *http.Request) {
	var sport models.Sport
	if err := readJSON(r, &sport); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err := h.svc.CreateSport(&sport)
	h.writeSyncResult(w, err, &sport)
}

func (h *CatalogHandler) CreatePromocode(w http.ResponseWriter, r *http.Request) {
	var p models.Promocode
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err := h.svc.CreatePromocode(&p)
	h.writeSyncResult(w, err, &p)
}

func (h *CatalogHandler) UpdatePromocode(w http.ResponseWriter, r *http.Request) {
	var p models.Promocode
	if err := readJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := h.svc.UpdatePromocode(&p); err != nil {
		h.writeSyncResult(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, &p)
}

func (h *CatalogHandler) CreateTopCategory(w http.ResponseWriter, r *http.Request) {
	var tc models.AssessmentTopCategory
	if err := readJSON(r, &tc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err := h.svc.CreateTopCategory(&tc)
	h.writeSyncResult(w, err, &tc)
}

func (h *CatalogHandler) CreateSubCategory(w http.ResponseWriter, r *http.Request) {
	var sc models.AssessmentSubCategory
	if err := readJSON(r, &sc); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err := h.svc.CreateSubCategory(&sc)
	h.writeSyncResult(w, err, &sc)
}

func (h *CatalogHandler) CreateFormat(w http.ResponseWriter, r *http.Request) {
	var f models.AssessmentFormat
	if err := readJSON(r, &f); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err := h.svc.CreateFormat(&f)
	h.writeSyncResult(w, err, &f)
}

func (h *CatalogHandler) CreateRelationshipType(w http.ResponseWriter, r *http.Request) {
	var rt models.AssessmentRelationshipType
	if err := readJSON(r, &rt); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err := h.svc.CreateRelationshipType(&rt)
	h.writeSyncResult(w, err, &rt)
}

func (h *CatalogHandler) CreateAssessment(w http.ResponseWriter, r *http.Request) {
	var a models.Assessment
	if err := readJSON(r, &a); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	_, err := h.svc.CreateAssessment(&a)
	h.writeSyncResult(w, err, &a)
}

func (h *CatalogHandler) DeleteAssessment(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "assessmentID"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid assessment id")
		return
	}
	if err := h.svc.DeleteAssessment(uint(id)); err != nil {
		h.writeSyncResult(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

// ValidatePromocode resolves a code on the caller's shard and reports whether
// it can be applied right now.
func (h *CatalogHandler) ValidatePromocode(w http.ResponseWriter, r *http.Request) {
	shard := middleware.GetShardFromContext(r.Context())
	code := chi.URLParam(r, "code")

	p, err := h.svc.PromocodeByCode(shard, code)
	if err != nil {
		writeError(w, statusForError(err), "unknown promocode")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"promocode": p,
		"valid":     p.IsValidAt(time.Now()),
	})
}

type repairRequest struct {
	Entity string            `json:"entity"`
	ID     uint              `json:"id"`
	From   database.ShardKey `json:"from"`
}

// Repair replays one shard's row onto the shards missing it.
func (h *CatalogHandler) Repair(w http.ResponseWriter, r *http.Request) {
	var req repairRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var entity database.SyncedEntity
	switch req.Entity {
	case "sport":
		entity = &models.Sport{}
	case "promocode":
		entity = &models.Promocode{}
	case "top_category":
		entity = &models.AssessmentTopCategory{}
	case "sub_category":
		entity = &models.AssessmentSubCategory{}
	case "format":
		entity = &models.AssessmentFormat{}
	case "relationship_type":
		entity = &models.AssessmentRelationshipType{}
	case "assessment":
		entity = &models.Assessment{}
	default:
		writeError(w, http.StatusBadRequest, "unknown entity kind")
		return
	}

	if err := h.svc.Repair(entity, req.ID, req.From); err != nil {
		h.writeSyncResult(w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "repaired"})
}
