package credstore

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return New(srv.URL, "test-key", time.Second)
}

func TestSignInReturnsGrant(t *testing.T) {
	var gotBody map[string]string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/token", r.URL.Path)
		assert.Equal(t, "password", r.URL.Query().Get("grant_type"))
		assert.Equal(t, "test-key", r.Header.Get("apikey"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"expires_at":    time.Now().Add(time.Hour).Unix(),
			"user":          map[string]any{"id": "u-1", "email": "a@b.c"},
		})
	})

	g, err := c.SignIn(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	assert.Equal(t, "at-1", g.AccessToken)
	assert.Equal(t, "rt-1", g.RefreshToken)
	assert.False(t, g.ExpiresAt.IsZero())
	require.NotNil(t, g.User)
	assert.Equal(t, "u-1", g.User.ID)
	assert.Equal(t, "pw", gotBody["password"])
}

func TestSignInWrongPasswordIsDenied(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]string{"error_description": "Invalid login credentials"})
	})
	_, err := c.SignIn(context.Background(), "a@b.c", "wrong")
	assert.ErrorIs(t, err, ErrDenied)
}

func TestServerErrorsAreUnavailable(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})
	_, err := c.SignIn(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNetworkErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	srv.Close() // nothing listening any more
	c := New(srv.URL, "", time.Second)
	_, err := c.SignIn(context.Background(), "a@b.c", "pw")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestRefreshDeniedMeansSessionExpired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]string{"msg": "refresh token revoked"})
	})
	_, err := c.Refresh(context.Background(), "rt-old")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestRefreshOutageIsNotExpiry(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	})
	_, err := c.Refresh(context.Background(), "rt-old")
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.NotErrorIs(t, err, ErrSessionExpired, "an outage must not end the user's session")
}

func TestRefreshEmptyGrantMeansExpired(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{})
	})
	_, err := c.Refresh(context.Background(), "rt-old")
	assert.ErrorIs(t, err, ErrSessionExpired)
}

func TestGrantExpiryFallsBackToExpiresIn(t *testing.T) {
	before := time.Now()
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "at-1",
			"refresh_token": "rt-1",
			"expires_in":    3600,
		})
	})
	g, err := c.Refresh(context.Background(), "rt-old")
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Hour), g.ExpiresAt, 10*time.Second)
	assert.Nil(t, g.User, "no identity in the payload")
}

func TestGetUserSendsBearer(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		json.NewEncoder(w).Encode(map[string]any{
			"id": "u-1", "email": "a@b.c",
			"user_metadata": map[string]any{"username": "casey"},
		})
	})
	ident, err := c.GetUser(context.Background(), "at-1")
	require.NoError(t, err)
	assert.Equal(t, "u-1", ident.ID)
	assert.Equal(t, "casey", ident.Metadata["username"])
}

func TestDeniedErrorCarriesProviderText(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"msg": "User already registered"})
	})
	_, err := c.SignUp(context.Background(), "a@b.c", "pw", nil)
	require.ErrorIs(t, err, ErrDenied)
	var denied *DeniedError
	require.ErrorAs(t, err, &denied)
	assert.Equal(t, "User already registered", denied.Msg)
}

func TestUpdatePasswordReturnsRotatedGrant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.URL.Path == "/token":
			assert.Equal(t, "refresh_token", r.URL.Query().Get("grant_type"))
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "at-2",
				"refresh_token": "rt-2",
				"expires_in":    3600,
			})
		case r.Method == http.MethodPut && r.URL.Path == "/user":
			assert.Equal(t, "Bearer at-2", r.Header.Get("Authorization"), "the update must use the fresh access token")
		default:
			t.Fatalf("unexpected request %s %s", r.Method, r.URL.Path)
		}
	})
	g, err := c.UpdatePassword(context.Background(), "at-1", "rt-1", "newpassword")
	require.NoError(t, err)
	require.NotNil(t, g, "the rotated pair must reach the caller")
	assert.Equal(t, "at-2", g.AccessToken)
	assert.Equal(t, "rt-2", g.RefreshToken)
}

func TestUpdatePasswordRejectionKeepsRotatedGrant(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			json.NewEncoder(w).Encode(map[string]any{
				"access_token":  "at-2",
				"refresh_token": "rt-2",
				"expires_in":    3600,
			})
			return
		}
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"msg": "password too weak"})
	})
	g, err := c.UpdatePassword(context.Background(), "at-1", "rt-1", "weak")
	assert.ErrorIs(t, err, ErrDenied)
	require.NotNil(t, g, "the refresh already burned rt-1; the new pair must reach the caller")
	assert.Equal(t, "rt-2", g.RefreshToken)
}

func TestResetPasswordUsesRecoveryToken(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		assert.Equal(t, "/user", r.URL.Path)
		assert.Equal(t, "Bearer recovery-tok", r.Header.Get("Authorization"))
		var body map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "newpassword", body["password"])
	})
	err := c.ResetPassword(context.Background(), "recovery-tok", "newpassword")
	assert.NoError(t, err)
}

func TestRecoverPassesRedirect(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/recover", r.URL.Path)
		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "a@b.c", body["email"])
		opts, _ := body["options"].(map[string]any)
		require.NotNil(t, opts)
		assert.Equal(t, "https://app/reset_password", opts["email_redirect_to"])
	})
	err := c.Recover(context.Background(), "a@b.c", "https://app/reset_password")
	assert.NoError(t, err)
}

func TestNotFoundMapsToErrNotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	_, err := c.GetUser(context.Background(), "at-1")
	assert.ErrorIs(t, err, ErrNotFound)
}
