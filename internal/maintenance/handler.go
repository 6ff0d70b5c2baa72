package maintenance

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"user-service/internal/observability"
)

// TokenPurger deletes expired verification token rows in batches.
type TokenPurger interface {
	DeleteExpired(ctx context.Context, now time.Time, batchSize int) (int64, error)
}

type CleanupHandler struct {
	purger     TokenPurger
	logger     *observability.Logger
	cronSecret string
	batchSize  int
}

func NewCleanupHandler(purger TokenPurger, logger *observability.Logger, cronSecret string, batchSize int) *CleanupHandler {
	return &CleanupHandler{
		purger:     purger,
		logger:     logger,
		cronSecret: strings.TrimSpace(cronSecret),
		batchSize:  batchSize,
	}
}

func (h *CleanupHandler) Handle(w http.ResponseWriter, r *http.Request) {
	if h.cronSecret == "" {
		writeJSON(w, http.StatusNotFound, map[string]string{"error": "not found"})
		return
	}

	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}

	authHeader := strings.TrimSpace(r.Header.Get("Authorization"))
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || strings.TrimSpace(parts[1]) != h.cronSecret {
		writeJSON(w, http.StatusUnauthorized, map[string]string{"error": "unauthorized"})
		return
	}

	deleted, err := h.purger.DeleteExpired(r.Context(), time.Now().UTC(), h.batchSize)
	if err != nil {
		h.logger.Error("verification_cleanup_failed", map[string]any{"error": err.Error()})
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "cleanup failed"})
		return
	}

	h.logger.Info("verification_cleanup_completed", map[string]any{
		"deleted_verification_tokens": deleted,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"status":                      "ok",
		"deleted_verification_tokens": deleted,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
