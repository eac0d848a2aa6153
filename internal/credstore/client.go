// Package credstore talks to the external identity provider over HTTP. It
// issues bearer token pairs and handles password/OTP verification; this app
// never sees password hashes for primary accounts.
package credstore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"moneta/internal/logs"
)

// Identity is the provider's view of a user.
type Identity struct {
	ID       string         `json:"id"`
	Email    string         `json:"email"`
	Metadata map[string]any `json:"user_metadata"`
}

// Grant is the token triple plus the identity it was issued for. User is nil
// when the provider's payload carried no identity.
type Grant struct {
	AccessToken  string
	RefreshToken string
	ExpiresAt    time.Time
	User         *Identity
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(baseURL, apiKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: timeout},
	}
}

// grantResponse matches the provider's token payloads.
type grantResponse struct {
	AccessToken  string   `json:"access_token"`
	RefreshToken string   `json:"refresh_token"`
	ExpiresIn    int64    `json:"expires_in"`
	ExpiresAt    int64    `json:"expires_at"`
	User         Identity `json:"user"`
}

func (g *grantResponse) grant() *Grant {
	out := &Grant{
		AccessToken:  g.AccessToken,
		RefreshToken: g.RefreshToken,
	}
	if g.User.ID != "" {
		u := g.User
		out.User = &u
	}
	switch {
	case g.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(g.ExpiresAt, 0).UTC()
	case g.ExpiresIn > 0:
		out.ExpiresAt = time.Now().UTC().Add(time.Duration(g.ExpiresIn) * time.Second)
	default:
		out.ExpiresAt = expiryFromToken(g.AccessToken)
	}
	return out
}

// expiryFromToken reads the exp claim without verifying the signature; the
// provider signed it, we only need the instant. Falls back to one hour.
func expiryFromToken(access string) time.Time {
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(access, claims); err == nil {
		if exp, err := claims.GetExpirationTime(); err == nil && exp != nil {
			return exp.Time.UTC()
		}
	}
	return time.Now().UTC().Add(time.Hour)
}

func (c *Client) do(ctx context.Context, method, path string, q url.Values, bearer string, body any, out any) error {
	var rd io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request: %w", err)
		}
		rd = bytes.NewReader(raw)
	}
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u, rd)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("apikey", c.apiKey)
	}
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}
	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode >= 400 {
		var pe struct {
			Message string `json:"message"`
			Msg     string `json:"msg"`
			Error   string `json:"error_description"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&pe)
		detail := pe.Message
		if detail == "" {
			detail = pe.Msg
		}
		if detail == "" {
			detail = pe.Error
		}
		return &DeniedError{Msg: detail}
	}
	if out != nil {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
	}
	return nil
}

// SignIn authenticates email+password and returns a fresh grant.
func (c *Client) SignIn(ctx context.Context, email, password string) (*Grant, error) {
	var gr grantResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"password"}}, "",
		map[string]string{"email": email, "password": password}, &gr)
	if err != nil {
		return nil, err
	}
	return gr.grant(), nil
}

// SignUp creates an account. Email verification may be required before the
// account can sign in; no session is returned here.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*Identity, error) {
	var out struct {
		ID    string         `json:"id"`
		Email string         `json:"email"`
		User  *Identity      `json:"user"`
		Meta  map[string]any `json:"user_metadata"`
	}
	err := c.do(ctx, http.MethodPost, "/signup", nil, "",
		map[string]any{"email": email, "password": password, "data": metadata}, &out)
	if err != nil {
		return nil, err
	}
	if out.User != nil {
		return out.User, nil
	}
	return &Identity{ID: out.ID, Email: out.Email, Metadata: out.Meta}, nil
}

// RequestOTP asks the provider to mail a one-time code.
func (c *Client) RequestOTP(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{"email": email}
	if redirectTo != "" {
		body["options"] = map[string]any{"email_redirect_to": redirectTo}
	}
	return c.do(ctx, http.MethodPost, "/otp", nil, "", body, nil)
}

// VerifyOTP exchanges email+code for a grant.
func (c *Client) VerifyOTP(ctx context.Context, email, code string) (*Grant, error) {
	var gr grantResponse
	err := c.do(ctx, http.MethodPost, "/verify", nil, "",
		map[string]string{"email": email, "token": code, "type": "email"}, &gr)
	if err != nil {
		return nil, err
	}
	return gr.grant(), nil
}

// Refresh exchanges a refresh token for a new grant. A denied exchange means
// the session is gone for good; callers must force re-authentication.
func (c *Client) Refresh(ctx context.Context, refreshToken string) (*Grant, error) {
	var gr grantResponse
	err := c.do(ctx, http.MethodPost, "/token", url.Values{"grant_type": {"refresh_token"}}, "",
		map[string]string{"refresh_token": refreshToken}, &gr)
	if err != nil {
		if !isUnavailable(err) {
			return nil, fmt.Errorf("%w: %v", ErrSessionExpired, err)
		}
		return nil, err
	}
	if gr.AccessToken == "" {
		return nil, ErrSessionExpired
	}
	return gr.grant(), nil
}

// GetUser resolves the identity behind an access token.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*Identity, error) {
	var id Identity
	if err := c.do(ctx, http.MethodGet, "/user", nil, accessToken, nil, &id); err != nil {
		return nil, err
	}
	return &id, nil
}

// UpdatePassword sets a new password for the session behind accessToken. When
// a refresh token is supplied the client first re-establishes a privileged
// session, matching the provider's requirement for sensitive updates. That
// refresh rotates the token pair, so the new grant is returned whenever the
// rotation happened — even when the update itself was rejected — and callers
// must write it into the session or be left holding a burned refresh token.
func (c *Client) UpdatePassword(ctx context.Context, accessToken, refreshToken, newPassword string) (*Grant, error) {
	bearer := accessToken
	var rotated *Grant
	if refreshToken != "" {
		g, err := c.Refresh(ctx, refreshToken)
		if err != nil {
			logs.Logger.Warnf("credstore: privileged refresh before password update failed: %v", err)
			return nil, err
		}
		rotated = g
		bearer = g.AccessToken
	}
	if err := c.do(ctx, http.MethodPut, "/user", nil, bearer,
		map[string]string{"password": newPassword}, nil); err != nil {
		return rotated, err
	}
	return rotated, nil
}

// ResetPassword consumes a recovery token for a privileged password update.
// No session is established; the user logs in normally afterward.
func (c *Client) ResetPassword(ctx context.Context, recoveryToken, newPassword string) error {
	return c.do(ctx, http.MethodPut, "/user", nil, recoveryToken,
		map[string]string{"password": newPassword}, nil)
}

// Recover asks the provider to send a password-recovery email.
func (c *Client) Recover(ctx context.Context, email, redirectTo string) error {
	body := map[string]any{"email": email}
	if redirectTo != "" {
		body["options"] = map[string]any{"email_redirect_to": redirectTo}
	}
	return c.do(ctx, http.MethodPost, "/recover", nil, "", body, nil)
}

// SignOut revokes the provider-side session for an access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	return c.do(ctx, http.MethodPost, "/logout", nil, accessToken, nil, nil)
}

func isUnavailable(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
