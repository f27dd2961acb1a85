package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/BradenHooton/lockout/internal/models"
	"github.com/BradenHooton/lockout/internal/services"
	pkghttp "github.com/BradenHooton/lockout/pkg/http"
)

// maxBodyBytes bounds login and register request bodies
const maxBodyBytes = 1 << 14

// registerAcceptedMessage is returned for new and already-registered emails alike
const registerAcceptedMessage = "If the email address is available, the account has been created."

// AuthServiceInterface defines the interface for auth business logic
type AuthServiceInterface interface {
	Login(ctx context.Context, email, password, ipAddress, userAgent string) models.Outcome
	Register(ctx context.Context, email, password, name string) (*services.UserResponse, error)
}

// AuthHandler handles authentication-related HTTP requests
type AuthHandler struct {
	service  AuthServiceInterface
	ipConfig *pkghttp.IPConfig
}

// NewAuthHandler creates a new AuthHandler
func NewAuthHandler(service AuthServiceInterface, ipConfig *pkghttp.IPConfig) *AuthHandler {
	return &AuthHandler{
		service:  service,
		ipConfig: ipConfig,
	}
}

// LoginRequest represents the request body for login.
// Empty fields are not rejected here; the guard reports them as a malformed request.
type LoginRequest struct {
	Email    string `json:"email" validate:"max=254"`
	Password string `json:"password" validate:"max=1024"`
}

// RegisterRequest represents the request body for registration
type RegisterRequest struct {
	Email    string `json:"email" validate:"required,email,max=254"`
	Password string `json:"password" validate:"required"`
	Name     string `json:"name" validate:"required,min=1,max=100"`
}

// LoginResponse is the body of a successful login
type LoginResponse struct {
	User *services.UserResponse `json:"user"`
}

// RegisterResponse is the body of an accepted registration
type RegisterResponse struct {
	Message string `json:"message"`
}

// Login handles user login
// @Summary User login
// @Accept json
// @Param request body LoginRequest true "Login request"
// @Produce json
// @Success 200 {object} LoginResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 401 {object} pkghttp.ErrorResponse
// @Failure 423 {object} pkghttp.ErrorResponse
// @Failure 503 {object} pkghttp.ErrorResponse
// @Router /auth/login [post]
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	ipAddress := pkghttp.ExtractClientIP(r, h.ipConfig)
	userAgent := r.Header.Get("User-Agent")

	outcome := h.service.Login(r.Context(), req.Email, req.Password, ipAddress, userAgent)
	WriteOutcome(w, outcome)
}

// WriteOutcome renders a guard outcome as an HTTP response
func WriteOutcome(w http.ResponseWriter, outcome models.Outcome) {
	switch outcome.Kind {
	case models.OutcomeSuccess:
		pkghttp.WriteJSON(w, http.StatusOK, LoginResponse{User: services.OutcomeUser(outcome)})
	case models.OutcomeMalformedRequest:
		pkghttp.WriteBadRequest(w, outcome.Message())
	case models.OutcomeInvalidCredential:
		pkghttp.WriteInvalidCredentials(w, outcome.Message(), outcome.RemainingAttempts)
	case models.OutcomeLocked:
		pkghttp.WriteLocked(w, outcome.Message(), outcome.RetryAfterOrDuration())
	case models.OutcomeUnavailable:
		pkghttp.WriteServiceUnavailable(w, outcome.Message())
	default:
		pkghttp.WriteInternalError(w, "Internal server error")
	}
}

// Register handles user registration
// @Summary User registration
// @Accept json
// @Param request body RegisterRequest true "Register request"
// @Produce json
// @Success 202 {object} RegisterResponse
// @Failure 400 {object} pkghttp.ErrorResponse
// @Failure 500 {object} pkghttp.ErrorResponse
// @Router /auth/register [post]
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		pkghttp.WriteBadRequest(w, "Invalid request body")
		return
	}

	if err := ValidateRequest(req); err != nil {
		pkghttp.WriteBadRequest(w, err.Error())
		return
	}

	_, err := h.service.Register(r.Context(), req.Email, req.Password, req.Name)
	switch {
	case err == nil, errors.Is(err, models.ErrConflict):
		// Same response for duplicates to prevent user enumeration
		pkghttp.WriteJSON(w, http.StatusAccepted, RegisterResponse{Message: registerAcceptedMessage})
	case errors.Is(err, models.ErrInternalServer):
		pkghttp.WriteInternalError(w, "Internal server error")
	default:
		// Remaining errors are password policy and input checks
		pkghttp.WriteBadRequest(w, err.Error())
	}
}
