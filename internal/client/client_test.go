package client_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/greenworld/greenworld/internal/client"
	"github.com/greenworld/greenworld/internal/errors"
	"github.com/greenworld/greenworld/internal/storage"
)

func makeClient(t *testing.T, handler http.Handler) (*client.Client, *storage.Memory) {
	t.Helper()

	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	kv := storage.NewMemory()
	c := client.New(client.Config{
		BaseURL: srv.URL,
		Storage: kv,
	})
	return c, kv
}

func TestClient_LoginStoresTokenAndSendsIt(t *testing.T) {
	var gotAuth string

	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "u@example.com", body["email"])

		json.NewEncoder(w).Encode(map[string]string{"access_token": "tok-123"})
	})
	mux.HandleFunc("GET /users/me", func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		json.NewEncoder(w).Encode(map[string]any{
			"user_id": 1, "full_name": "U", "email": "u@example.com", "coins": 12,
		})
	})

	c, _ := makeClient(t, mux)

	require.NoError(t, c.Login(context.Background(), "u@example.com", "pw"))
	tok, ok := c.Token()
	require.True(t, ok)
	require.Equal(t, "tok-123", tok)

	u, err := c.CurrentUser(context.Background())
	require.NoError(t, err)
	require.Equal(t, int64(12), u.Coins)
	require.Equal(t, "Bearer tok-123", gotAuth)
}

func TestClient_UnauthorizedClearsToken(t *testing.T) {
	c, kv := makeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"message": "token expired"})
	}))
	require.NoError(t, kv.Set("auth_token", "stale"))

	_, err := c.CurrentUser(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CodeUnauthenticated))

	_, ok := c.Token()
	require.False(t, ok, "a 401 drops the stored token")
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := map[string]struct {
		status   int
		wantCode errors.Code
	}{
		"payment required": {http.StatusPaymentRequired, errors.CodeInsufficientFunds},
		"conflict":         {http.StatusConflict, errors.CodeAlreadyExists},
		"not found":        {http.StatusNotFound, errors.CodeNotFound},
		"bad request":      {http.StatusBadRequest, errors.CodeInvalidArgument},
		"server error":     {http.StatusInternalServerError, errors.CodeInternal},
	}

	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			c, _ := makeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				json.NewEncoder(w).Encode(map[string]string{"message": "nope"})
			}))

			_, err := c.BuyTree(context.Background(), "d1")
			require.Error(t, err)
			require.True(t, errors.Is(err, tt.wantCode), "got %v", err)
			require.Contains(t, err.Error(), "nope", "server-provided message survives the mapping")
		})
	}
}

func TestClient_TransportFailureIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close() // nothing listens anymore

	c := client.New(client.Config{BaseURL: base, Storage: storage.NewMemory()})

	_, err := c.CurrentUser(context.Background())
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CodeUnavailable))
}

func TestClient_SubmitGameResult(t *testing.T) {
	c, _ := makeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/games/result", r.URL.Path)

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "s-1", body["result_id"])
		require.Equal(t, "catch", body["game"])
		require.Equal(t, float64(7), body["score"])

		json.NewEncoder(w).Encode(map[string]int64{"awarded": 3, "coins": 103})
	}))

	r, err := c.SubmitGameResult(context.Background(), "s-1", "catch", 7, 30)
	require.NoError(t, err)
	require.NotNil(t, r.Awarded)
	require.Equal(t, int64(3), *r.Awarded)
	require.NotNil(t, r.Coins)
	require.Equal(t, int64(103), *r.Coins)
}

func TestClient_SubmitGameResultEmptyBody(t *testing.T) {
	c, _ := makeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r, err := c.SubmitGameResult(context.Background(), "s-1", "catch", 7, 30)
	require.NoError(t, err)
	require.Nil(t, r.Awarded)
	require.Nil(t, r.Coins)
}

func TestClient_LoginEmptyTokenRejected(t *testing.T) {
	c, _ := makeClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"access_token": ""})
	}))

	err := c.Login(context.Background(), "u@example.com", "pw")
	require.Error(t, err)
	require.True(t, errors.Is(err, errors.CodeInternal))

	_, ok := c.Token()
	require.False(t, ok)
}
