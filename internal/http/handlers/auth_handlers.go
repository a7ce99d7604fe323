package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/lkrent/lkrent-server/internal/domain"
	"github.com/lkrent/lkrent-server/internal/http/response"
	"github.com/lkrent/lkrent-server/pkg/logger"
)

// Register handles user registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateUserRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	resp, err := h.authService.Register(r.Context(), &req)
	if err != nil {
		logger.WarnContext(r.Context(), "Registration failed", "error", err)
		response.FromError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusCreated, resp)
}

// Login handles user authentication
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var req domain.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	resp, err := h.authService.Login(r.Context(), &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, resp)
}

// Info returns the authenticated user's full profile
func (h *Handlers) Info(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Missing authentication")
		return
	}

	info, err := h.authService.GetUserInfo(r.Context(), claims.Sub)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, info)
}

// UpdateProfile handles partial profile updates
func (h *Handlers) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Missing authentication")
		return
	}

	var req domain.UpdateProfileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	info, err := h.authService.UpdateProfile(r.Context(), claims.Sub, &req)
	if err != nil {
		response.FromError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, info)
}

// RequestOtp issues a fresh verification code for the authenticated user
func (h *Handlers) RequestOtp(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Missing authentication")
		return
	}

	var req domain.RequestOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	if err := h.authService.RequestOtp(r.Context(), claims.Sub, req.Purpose); err != nil {
		logger.WarnContext(r.Context(), "OTP request failed", "error", err, "purpose", req.Purpose)
		response.FromError(w, err)
		return
	}

	// The code travels out of band; never echo it to the caller.
	response.WriteJSON(w, http.StatusCreated, map[string]string{
		"message": "Verification code sent",
	})
}

// VerifyOtp checks a submitted verification code
func (h *Handlers) VerifyOtp(w http.ResponseWriter, r *http.Request) {
	claims := getClaims(r)
	if claims == nil {
		response.Unauthorized(w, "Missing authentication")
		return
	}

	var req domain.VerifyOtpRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "Invalid JSON format")
		return
	}

	if err := h.authService.VerifyOtp(r.Context(), claims.Sub, req.Purpose, req.Code); err != nil {
		response.FromError(w, err)
		return
	}

	response.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
	})
}
