package identity

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"example.com/backstage/services/partyup/config"
	"example.com/backstage/services/partyup/internal/apperrors"
	"example.com/backstage/services/partyup/internal/models"

	"github.com/stretchr/testify/require"
)

func googleStub(t *testing.T, audience string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/oauth2/v2/tokeninfo", func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Query().Get("access_token") != "good" {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"error":{"code":400,"message":"invalid_token"}}`))
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"audience":       audience,
			"user_id":        "g-123",
			"email":          "ada@example.com",
			"verified_email": true,
		})
	})
	mux.HandleFunc("/oauth2/v2/userinfo", func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "Bearer good", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"id":      "g-123",
			"email":   "ada@example.com",
			"name":    "Ada Lovelace",
			"picture": "https://example.com/ada.png",
		})
	})
	return httptest.NewServer(mux)
}

func TestVerifyGoogleToken(t *testing.T) {
	srv := googleStub(t, "partyup-app")
	defer srv.Close()

	v := NewGoogleVerifierWith(config.IdentityConfig{Audience: "partyup-app"}, srv.Client(), srv.URL+"/")
	id, err := v.Verify(context.Background(), "good")

	require.NoError(t, err)
	require.Equal(t, "g-123", id.ExternalID)
	require.Equal(t, "ada@example.com", id.Email)
	require.True(t, id.EmailVerified)
	require.Equal(t, "Ada Lovelace", id.DisplayName)
	require.Equal(t, models.AuthProviderGoogle, id.Provider)
}

func TestVerifyRejectsInvalidToken(t *testing.T) {
	srv := googleStub(t, "partyup-app")
	defer srv.Close()

	v := NewGoogleVerifierWith(config.IdentityConfig{}, srv.Client(), srv.URL+"/")
	_, err := v.Verify(context.Background(), "bad")
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestVerifyRejectsForeignAudience(t *testing.T) {
	srv := googleStub(t, "someone-else")
	defer srv.Close()

	v := NewGoogleVerifierWith(config.IdentityConfig{Audience: "partyup-app"}, srv.Client(), srv.URL+"/")
	_, err := v.Verify(context.Background(), "good")
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestVerifyRejectsEmptyToken(t *testing.T) {
	v := NewGoogleVerifier(config.IdentityConfig{})
	_, err := v.Verify(context.Background(), "")
	require.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}
