package verification

import (
	"encoding/json"
	"errors"
	"net/http"
	"regexp"
	"strings"

	"github.com/getsentry/sentry-go"
)

var tokenFormatRegex = regexp.MustCompile(`^[A-Za-z0-9]{1,64}$`)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) Verify(w http.ResponseWriter, r *http.Request) {
	token := strings.TrimSpace(r.URL.Query().Get("token"))
	if !tokenFormatRegex.MatchString(token) {
		writeError(w, http.StatusBadRequest, "token format is invalid")
		return
	}

	if err := h.service.Consume(r.Context(), token); err != nil {
		switch {
		case errors.Is(err, ErrTokenNotFound):
			writeError(w, http.StatusNotFound, "token not found or already used")
		case errors.Is(err, ErrTokenExpired):
			writeError(w, http.StatusGone, "token has expired, request a new verification email")
		default:
			sentry.CaptureException(err)
			writeError(w, http.StatusInternalServerError, "failed to verify token")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "verified"})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
