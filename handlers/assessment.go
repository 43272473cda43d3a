package handlers

import (
	"net/http"
	"strconv"

	"sportrecord/assessment"
	"sportrecord/database"
	"sportrecord/middleware"
	"sportrecord/models"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type AssessmentHandler struct {
	reg      *database.Registry
	svc      *assessment.Service
	resolver *assessment.VisibilityResolver
	log      *zap.Logger
}

func NewAssessmentHandler(reg *database.Registry, svc *assessment.Service,
	resolver *assessment.VisibilityResolver, log *zap.Logger) *AssessmentHandler {
	return &AssessmentHandler{reg: reg, svc: svc, resolver: resolver, log: log}
}

// GetTree renders the catalog filtered down to what the viewer may see.
func (h *AssessmentHandler) GetTree(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	db, err := h.reg.Resolve(shard)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	viewer, err := assessment.NewViewerContext(db, user)
	if err != nil {
		h.log.Error("viewer context failed", zap.Uint("user", user.ID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to load catalog")
		return
	}
	tree, err := h.resolver.Render(shard, viewer)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, tree)
}

type recordBatchRequest struct {
	Records []assessment.RecordInput `json:"records"`
}

type rejectedRecordResponse struct {
	Input assessment.RecordInput `json:"input"`
	Error string                 `json:"error"`
}

type recordBatchResponse struct {
	Valid    []models.ChosenAssessment `json:"valid"`
	Rejected []rejectedRecordResponse  `json:"rejected"`
}

// PostRecords stores a batch of assessment values. Each item passes or fails
// on its own; ?dry_run=true validates without writing.
func (h *AssessmentHandler) PostRecords(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	var req recordBatchRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "no records submitted")
		return
	}

	dryRun := r.URL.Query().Get("dry_run") == "true"
	result, err := h.svc.RecordBatch(shard, user, req.Records, dryRun)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	resp := recordBatchResponse{Valid: result.Valid}
	for _, rej := range result.Rejected {
		resp.Rejected = append(resp.Rejected, rejectedRecordResponse{
			Input: rej.Input,
			Error: rej.Err.Error(),
		})
	}
	writeJSON(w, http.StatusOK, resp)
}

// GetHistory lists an assessed's recorded values, newest first. Only the
// assessed themselves or a connected user may read it.
func (h *AssessmentHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	assessedID, err := strconv.ParseUint(chi.URLParam(r, "assessedID"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid assessed id")
		return
	}

	db, err := h.reg.Resolve(shard)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	var assessed models.Assessed
	if err := db.First(&assessed, uint(assessedID)).Error; err != nil {
		writeError(w, statusForError(err), "unknown assessed")
		return
	}
	if assessed.UserID() != user.ID {
		connected, err := models.IsConnectedTo(db, user, assessed.UserID())
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load history")
			return
		}
		if !connected {
			writeError(w, http.StatusForbidden, "not connected to this user")
			return
		}
	}

	records, err := h.svc.History(shard, uint(assessedID))
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, records)
}

type updateValueRequest struct {
	Value float64 `json:"value"`
}

// UpdateRecord corrects a single recorded value after re-running the
// validation pipeline.
func (h *AssessmentHandler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	recordID, err := strconv.ParseUint(chi.URLParam(r, "recordID"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid record id")
		return
	}

	var req updateValueRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	chosen, err := h.svc.UpdateValue(shard, user, uint(recordID), req.Value)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, chosen)
}

// GetPermissions lists every grant targeting the caller.
func (h *AssessmentHandler) GetPermissions(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	db, err := h.reg.Resolve(shard)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	assessed, err := models.AssessedOf(db, user)
	if err != nil {
		writeError(w, http.StatusForbidden, "account cannot be assessed")
		return
	}
	perms, err := assessment.ListForAssessed(db, assessed.ID)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, perms)
}

type updateAccessRequest struct {
	AssessorID    uint `json:"assessor_id"`
	TopCategoryID uint `json:"top_category_id"`
	Access        bool `json:"access"`
}

// PutPermission toggles one of the caller's grants. Only the assessed side
// controls access; the row must already exist from a connection fan-out.
func (h *AssessmentHandler) PutPermission(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	var req updateAccessRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	db, err := h.reg.Resolve(shard)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	assessed, err := models.AssessedOf(db, user)
	if err != nil {
		writeError(w, http.StatusForbidden, "account cannot be assessed")
		return
	}

	perm, err := assessment.UpdateAccess(db, assessed.ID, req.AssessorID, req.TopCategoryID, req.Access)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, perm)
}
