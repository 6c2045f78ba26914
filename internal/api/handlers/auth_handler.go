package handlers

import (
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/citevault/citevault/internal/core"
	"github.com/citevault/citevault/internal/models"
)

// AuthHandler signs operators up and in for the control plane.
type AuthHandler struct {
	dbclient core.DbClient
}

func NewAuthHandler(dbclient core.DbClient) *AuthHandler {
	return &AuthHandler{dbclient: dbclient}
}

type signupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Email == "" || req.Password == "" {
		http.Error(w, "email and password required", http.StatusBadRequest)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	op := &models.Operator{
		ID:           uuid.NewString(),
		Email:        req.Email,
		PasswordHash: string(hash),
		CreatedAt:    time.Now(),
	}

	if err := h.dbclient.CreateOperator(r.Context(), op); err != nil {
		http.Error(w, "operator exists", http.StatusConflict)
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{"token": generateJWT(op.ID)})
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req signupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	op, err := h.dbclient.GetOperatorByEmail(r.Context(), req.Email)
	if err != nil || bcrypt.CompareHashAndPassword([]byte(op.PasswordHash), []byte(req.Password)) != nil {
		http.Error(w, "invalid credentials", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": generateJWT(op.ID)})
}

// generateJWT creates a signed token with the operator id claim.
func generateJWT(operatorID string) string {
	secret := os.Getenv("JWT_SECRET")
	claims := jwt.MapClaims{
		"operator_id": operatorID,
		"exp":         time.Now().Add(24 * time.Hour).Unix(),
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	token, _ := tok.SignedString([]byte(secret))
	return token
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
