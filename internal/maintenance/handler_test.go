package maintenance

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-service/internal/observability"
)

type fakePurger struct {
	deleted int64
	err     error
	calls   int
}

func (f *fakePurger) DeleteExpired(context.Context, time.Time, int) (int64, error) {
	f.calls++
	return f.deleted, f.err
}

func doCleanup(handler *CleanupHandler, authorization string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/internal/maintenance/cleanup", nil)
	if authorization != "" {
		req.Header.Set("Authorization", authorization)
	}
	rec := httptest.NewRecorder()
	handler.Handle(rec, req)
	return rec
}

func TestCleanupDisabledWithoutSecret(t *testing.T) {
	handler := NewCleanupHandler(&fakePurger{}, observability.NewLogger(), "", 500)

	rec := doCleanup(handler, "Bearer anything")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestCleanupRejectsBadSecret(t *testing.T) {
	purger := &fakePurger{}
	handler := NewCleanupHandler(purger, observability.NewLogger(), "cron-secret", 500)

	rec := doCleanup(handler, "Bearer wrong")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, 0, purger.calls)
}

func TestCleanupPurgesExpiredTokens(t *testing.T) {
	purger := &fakePurger{deleted: 7}
	handler := NewCleanupHandler(purger, observability.NewLogger(), "cron-secret", 500)

	rec := doCleanup(handler, "Bearer cron-secret")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, purger.calls)
	assert.Contains(t, rec.Body.String(), `"deleted_verification_tokens":7`)
}

func TestCleanupReportsFailure(t *testing.T) {
	purger := &fakePurger{err: errors.New("db down")}
	handler := NewCleanupHandler(purger, observability.NewLogger(), "cron-secret", 500)

	rec := doCleanup(handler, "Bearer cron-secret")
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
