package account

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"user-service/internal/verification"
)

func newTestHandler(store *fakeUserStore, verifier *fakeVerifier, sessions *fakeSessions) *Handler {
	return NewHandler(newTestService(store, verifier, sessions))
}

func doJSON(t *testing.T, handler http.HandlerFunc, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rec := httptest.NewRecorder()
	handler(rec, req)
	return rec
}

func TestRegisterHandlerCreated(t *testing.T) {
	handler := newTestHandler(newFakeUserStore(), &fakeVerifier{}, &fakeSessions{})

	rec := doJSON(t, handler.Register, http.MethodPost, "/auth/register",
		`{"username":"alice","email":"a@x.com","password":"long-enough-pw"}`)

	require.Equal(t, http.StatusCreated, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, false, body["enabled"])
	assert.NotContains(t, rec.Body.String(), "password")
	assert.NotContains(t, rec.Body.String(), "$2a$")
}

func TestRegisterHandlerConflict(t *testing.T) {
	store := newFakeUserStore()
	handler := newTestHandler(store, &fakeVerifier{}, &fakeSessions{})

	rec := doJSON(t, handler.Register, http.MethodPost, "/auth/register",
		`{"username":"alice","email":"a@x.com","password":"long-enough-pw"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = doJSON(t, handler.Register, http.MethodPost, "/auth/register",
		`{"username":"alice","email":"b@x.com","password":"long-enough-pw"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doJSON(t, handler.Register, http.MethodPost, "/auth/register",
		`{"username":"bob","email":"a@x.com","password":"long-enough-pw"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestRegisterHandlerValidation(t *testing.T) {
	handler := newTestHandler(newFakeUserStore(), &fakeVerifier{}, &fakeSessions{})

	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{"username":`},
		{"short username", `{"username":"ab","email":"a@x.com","password":"long-enough-pw"}`},
		{"bad email", `{"username":"alice","email":"not-an-email","password":"long-enough-pw"}`},
		{"short password", `{"username":"alice","email":"a@x.com","password":"short"}`},
		{"unknown field", `{"username":"alice","email":"a@x.com","password":"long-enough-pw","admin":true}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, handler.Register, http.MethodPost, "/auth/register", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestLoginHandlerStatusMapping(t *testing.T) {
	store := newFakeUserStore()
	verifier := &fakeVerifier{}
	handler := newTestHandler(store, verifier, &fakeSessions{})

	rec := doJSON(t, handler.Register, http.MethodPost, "/auth/register",
		`{"username":"alice","email":"a@x.com","password":"long-enough-pw"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// Wrong password and unknown username both map to the same 401 body.
	badPw := doJSON(t, handler.Login, http.MethodPost, "/auth/login",
		`{"username":"alice","password":"wrong-password"}`)
	unknown := doJSON(t, handler.Login, http.MethodPost, "/auth/login",
		`{"username":"nobody","password":"wrong-password"}`)
	assert.Equal(t, http.StatusUnauthorized, badPw.Code)
	assert.Equal(t, http.StatusUnauthorized, unknown.Code)
	assert.Equal(t, badPw.Body.String(), unknown.Body.String())

	// Correct credentials on an unverified account: 403 plus a resend.
	forbidden := doJSON(t, handler.Login, http.MethodPost, "/auth/login",
		`{"username":"alice","password":"long-enough-pw"}`)
	assert.Equal(t, http.StatusForbidden, forbidden.Code)
	assert.Equal(t, 1, verifier.resendCalls)

	// Enable the account, login succeeds with a token pair.
	user := store.byUsername["alice"]
	user.Enabled = true
	store.byUsername["alice"] = user
	store.byID[user.ID] = user

	ok := doJSON(t, handler.Login, http.MethodPost, "/auth/login",
		`{"username":"alice","password":"long-enough-pw"}`)
	require.Equal(t, http.StatusOK, ok.Code)

	var tokens map[string]any
	require.NoError(t, json.Unmarshal(ok.Body.Bytes(), &tokens))
	assert.NotEmpty(t, tokens["access_token"])
	assert.NotEmpty(t, tokens["refresh_token"])
}

func TestResendHandlerMasksUnknownUsername(t *testing.T) {
	handler := newTestHandler(newFakeUserStore(), &fakeVerifier{}, &fakeSessions{})

	rec := doJSON(t, handler.ResendVerification, http.MethodPost, "/auth/resend",
		`{"username":"nobody"}`)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestResendHandlerThrottledIndistinguishable(t *testing.T) {
	store := newFakeUserStore()
	verifier := &fakeVerifier{resendErr: verification.ErrResendThrottled}
	handler := newTestHandler(store, verifier, &fakeSessions{})

	rec := doJSON(t, handler.Register, http.MethodPost, "/auth/register",
		`{"username":"alice","email":"a@x.com","password":"long-enough-pw"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	// A throttled resend for a real account answers exactly like a resend
	// for an unknown one; the email stays suppressed either way.
	throttled := doJSON(t, handler.ResendVerification, http.MethodPost, "/auth/resend",
		`{"username":"alice"}`)
	unknown := doJSON(t, handler.ResendVerification, http.MethodPost, "/auth/resend",
		`{"username":"nobody"}`)
	assert.Equal(t, http.StatusAccepted, throttled.Code)
	assert.Equal(t, unknown.Code, throttled.Code)
	assert.Equal(t, unknown.Body.String(), throttled.Body.String())
}

func TestGetUserHandler(t *testing.T) {
	store := newFakeUserStore()
	service := newTestService(store, &fakeVerifier{}, &fakeSessions{})
	handler := NewHandler(service)

	created, err := service.Register(context.Background(), "alice", "a@x.com", "long-enough-pw")
	require.NoError(t, err)

	// Fake store ids are not uuids, remap to one the handler accepts.
	const id = "0195f1e6-1111-7abc-8def-0123456789ab"
	store.byID[id] = created

	mux := http.NewServeMux()
	mux.HandleFunc("GET /users/{id}", handler.GetUser)

	req := httptest.NewRequest(http.MethodGet, "/users/"+id, nil)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"username":"alice"`)

	req = httptest.NewRequest(http.MethodGet, "/users/0195f1e6-2222-7abc-8def-0123456789ab", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/users/not-a-uuid", nil)
	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
