package api

import (
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/hackgods/clinic-appointment-booking/internal/account"
	"github.com/hackgods/clinic-appointment-booking/internal/auth"
)

const (
	resetRequestedMessage        = "if the account exists, a reset link has been sent"
	verificationRequestedMessage = "if the account exists and is not yet verified, a verification link has been sent"
)

func sessionCookie(value string, maxAge int, expires time.Time, secure bool) *http.Cookie {
	return &http.Cookie{
		Name:     auth.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		Expires:  expires,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteStrictMode,
	}
}

func registerHandler(svc AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.RegisterRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		user, err := svc.Register(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusCreated, user)
	}
}

func loginHandler(svc AccountService, tokens *auth.TokenManager, secure bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.LoginRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		res, err := svc.Login(r.Context(), req)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}

		http.SetCookie(w, sessionCookie(res.Token, int(tokens.TTL().Seconds()), res.ExpiresAt, secure))
		writeJSON(w, http.StatusOK, res)
	}
}

func logoutHandler(secure bool) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, sessionCookie("", -1, time.Unix(0, 0), secure))
		w.WriteHeader(http.StatusNoContent)
	}
}

func meHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}

		resp := MeResponse{
			UserID: claims.UserID,
			Email:  claims.Email,
			Name:   claims.Name,
			Role:   claims.Role,
		}
		if claims.ExpiresAt != nil {
			resp.ExpiresAt = claims.ExpiresAt.Time
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func forgotPasswordHandler(svc AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.ForgotPasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.RequestPasswordReset(r.Context(), req); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: resetRequestedMessage})
	}
}

func resetPasswordHandler(svc AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.ResetPasswordRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.ResetPassword(r.Context(), req); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: "password has been reset"})
	}
}

func sendVerificationHandler(svc AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req account.SendVerificationRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		if err := svc.RequestVerification(r.Context(), req); err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, MessageResponse{Message: verificationRequestedMessage})
	}
}

func verifyEmailHandler(svc AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, err := svc.VerifyEmail(r.Context(), r.URL.Query().Get("token"))
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, user)
	}
}

func getProfileHandler(svc AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		userID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if !claims.CanActFor(userID) {
			forbidden(w)
			return
		}

		profile, err := svc.GetProfile(r.Context(), userID)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func updateProfileHandler(svc AccountService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		claims, ok := caller(w, r)
		if !ok {
			return
		}
		userID, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		if !claims.CanActFor(userID) {
			forbidden(w)
			return
		}

		var req account.UpdateProfileRequest
		if !decodeJSON(w, r, &req) {
			return
		}

		profile, err := svc.UpdateProfile(r.Context(), userID, req)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, profile)
	}
}

func listNewsHandler(svc NewsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := 0
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, "invalid_limit", "limit must be an integer")
				return
			}
			limit = n
		}

		items, err := svc.List(r.Context(), limit)
		if err != nil {
			writeServiceError(w, r, logger, err)
			return
		}
		writeJSON(w, http.StatusOK, items)
	}
}
