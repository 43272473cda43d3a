package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"sportrecord/config"
	"sportrecord/connect"
	"sportrecord/database"
	"sportrecord/middleware"
	"sportrecord/models"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type InviteHandler struct {
	config       *config.Config
	reg          *database.Registry
	invites      *database.Repository[models.Invite]
	orchestrator *connect.Orchestrator
	notifier     connect.Notifier
	log          *zap.Logger
}

func NewInviteHandler(cfg *config.Config, reg *database.Registry,
	orchestrator *connect.Orchestrator, notifier connect.Notifier, log *zap.Logger) *InviteHandler {
	return &InviteHandler{
		config:       cfg,
		reg:          reg,
		invites:      database.NewRepository[models.Invite](reg),
		orchestrator: orchestrator,
		notifier:     notifier,
		log:          log,
	}
}

type createInviteRequest struct {
	Recipient     string          `json:"recipient"`
	RecipientType models.UserType `json:"recipient_type"`
	TeamID        *uint           `json:"team_id"`
}

// CreateInvite issues a pending invite. The recipient is addressed by email
// because they may not have an account yet; connections only materialize on
// confirmation.
func (h *InviteHandler) CreateInvite(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	var req createInviteRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Recipient == "" {
		writeError(w, http.StatusBadRequest, "recipient is required")
		return
	}
	if req.Recipient == user.Email {
		writeError(w, http.StatusBadRequest, "cannot invite yourself")
		return
	}

	db, err := h.reg.Resolve(shard)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	recipientType := req.RecipientType
	var recipient models.User
	if err := db.Where("email = ?", req.Recipient).First(&recipient).Error; err == nil {
		if recipient.IsOrganisation() {
			writeError(w, http.StatusBadRequest, "organisation accounts cannot be invited")
			return
		}
		recipientType = recipient.UserType
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	if req.TeamID != nil {
		var team models.Team
		if err := db.First(&team, *req.TeamID).Error; err != nil {
			writeError(w, http.StatusNotFound, "unknown team")
			return
		}
		if team.OwnerID != user.ID {
			writeError(w, http.StatusForbidden, "only the team owner can invite to a team")
			return
		}
		if team.Status == models.TeamStatusArchived {
			writeError(w, http.StatusConflict, "team is archived")
			return
		}
	}

	cutoff := time.Now().Add(-h.config.InviteExpiration)
	var pending int64
	if err := db.Model(&models.Invite{}).
		Where("requester_id = ? AND recipient = ? AND status = ? AND date_sent > ?",
			user.ID, req.Recipient, models.InvitePending, cutoff).
		Count(&pending).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}
	if pending > 0 {
		writeError(w, http.StatusConflict, "an invite to this recipient is already pending")
		return
	}

	invite := models.Invite{
		RequesterID:   user.ID,
		TeamID:        req.TeamID,
		Token:         models.NewInviteToken(),
		Status:        models.InvitePending,
		Recipient:     req.Recipient,
		RecipientType: recipientType,
	}
	if err := db.Create(&invite).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create invite")
		return
	}

	invite.Requester = *user
	if err := h.notifier.InviteSent(&invite); err != nil {
		h.log.Warn("invite notification failed", zap.Error(err))
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"invite": invite,
		"token":  invite.Token,
	})
}

// ConfirmInvite accepts an invite addressed to the caller and runs the
// connection fan-out.
func (h *InviteHandler) ConfirmInvite(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	token := chi.URLParam(r, "token")

	db, err := h.reg.Resolve(shard)
	if err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}

	var invite models.Invite
	if err := db.Where("token = ?", token).First(&invite).Error; err != nil {
		writeError(w, http.StatusNotFound, "unknown invite")
		return
	}
	if invite.Recipient != user.Email {
		writeError(w, http.StatusForbidden, "invite is addressed to someone else")
		return
	}
	if !invite.IsPending() || invite.IsExpired(h.config.InviteExpiration, time.Now()) {
		writeError(w, http.StatusGone, "invite is no longer valid")
		return
	}

	var requester models.User
	if err := db.First(&requester, invite.RequesterID).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to confirm invite")
		return
	}
	// A same-role invite with no team attached connects nothing; leave it
	// pending rather than consuming it.
	if invite.TeamID == nil && requester.UserType == user.UserType {
		writeJSON(w, http.StatusOK, invite)
		return
	}

	invite.Status = models.InviteAccepted
	if err := db.Save(&invite).Error; err != nil {
		writeError(w, http.StatusInternalServerError, "failed to confirm invite")
		return
	}

	if err := h.orchestrator.OnConnectionConfirmed(shard, invite.RequesterID, user.ID, invite.TeamID); err != nil {
		h.log.Error("connection fan-out failed",
			zap.Uint("requester", invite.RequesterID),
			zap.Uint("recipient", user.ID),
			zap.Error(err))
		writeError(w, statusForError(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, invite)
}

// CancelInvite withdraws one of the caller's own pending invites.
func (h *InviteHandler) CancelInvite(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	inviteID, err := strconv.ParseUint(chi.URLParam(r, "inviteID"), 10, 32)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid invite id")
		return
	}

	invite, err := h.invites.Get(shard, uint(inviteID))
	if err != nil {
		writeError(w, http.StatusNotFound, "unknown invite")
		return
	}
	if invite.RequesterID != user.ID {
		writeError(w, http.StatusForbidden, "not your invite")
		return
	}
	if !invite.IsPending() {
		writeError(w, http.StatusConflict, "invite is not pending")
		return
	}

	invite.Status = models.InviteCanceled
	if err := h.invites.Save(shard, invite); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel invite")
		return
	}
	writeJSON(w, http.StatusOK, invite)
}

type unlinkRequest struct {
	UserID uint `json:"user_id"`
}

// Unlink severs a direct athlete-coach connection in both directions.
func (h *InviteHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	user := middleware.GetUserFromContext(r.Context())
	shard := middleware.GetShardFromContext(r.Context())

	var req unlinkRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := h.orchestrator.OnConnectionRevoked(shard, user.ID, req.UserID); err != nil {
		writeError(w, statusForError(err), err.Error())
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "unlinked"})
}
