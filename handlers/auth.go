package handlers

import (
	"errors"
	"net/http"

	"sportrecord/config"
	"sportrecord/database"
	"sportrecord/middleware"
	"sportrecord/models"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

type AuthHandler struct {
	config *config.Config
	reg    *database.Registry
	log    *zap.Logger
}

func NewAuthHandler(cfg *config.Config, reg *database.Registry, log *zap.Logger) *AuthHandler {
	return &AuthHandler{config: cfg, reg: reg, log: log}
}

type registerRequest struct {
	Email     string          `json:"email"`
	Password  string          `json:"password"`
	Country   string          `json:"country"`
	FirstName string          `json:"first_name"`
	LastName  string          `json:"last_name"`
	UserType  models.UserType `json:"user_type"`
}

type authResponse struct {
	Token string       `json:"token"`
	User  *models.User `json:"user"`
}

// Register creates the account on the shard keyed by the user's country. The
// country is fixed at registration; there is no account migration between
// shards.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Country == "" {
		writeError(w, http.StatusBadRequest, "email and country are required")
		return
	}
	if len(req.Password) < 5 {
		writeError(w, http.StatusBadRequest, "password must be at least 5 characters")
		return
	}
	switch req.UserType {
	case models.UserTypeAthlete, models.UserTypeCoach, models.UserTypeOrganisation:
	default:
		writeError(w, http.StatusBadRequest, "invalid user type")
		return
	}

	db, err := h.reg.Resolve(database.ShardKey(req.Country))
	if err != nil {
		writeError(w, http.StatusBadRequest, "unsupported country")
		return
	}

	if _, _, err := h.reg.FindUserByEmail(req.Email); err == nil {
		writeError(w, http.StatusConflict, "email already registered")
		return
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	user := models.User{
		Email:        req.Email,
		Country:      req.Country,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		PasswordHash: string(hashedPassword),
		UserType:     req.UserType,
	}
	if err := models.CreateUserWithProfiles(db, &user); err != nil {
		h.log.Error("user creation failed", zap.String("email", req.Email), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	token, err := middleware.GenerateToken(&user, h.config.JWTExpiration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "registration failed")
		return
	}

	writeJSON(w, http.StatusCreated, authResponse{Token: token, User: &user})
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login searches every shard for the email since the home shard is unknown
// until the user is found.
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	user, _, err := h.reg.FindUserByEmail(req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}

	token, err := middleware.GenerateToken(user, h.config.JWTExpiration)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "login failed")
		return
	}

	writeJSON(w, http.StatusOK, authResponse{Token: token, User: user})
}
