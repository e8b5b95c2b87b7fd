package api

import (
	"context"
	"net/http"

	"github.com/and161185/c3ds-console/internal/model"
	"github.com/and161185/c3ds-console/internal/query"
)

// IdentityStaleTime is how long a resolved identity is trusted.
const IdentityStaleTime = query.DefaultStaleTime

// Me resolves the identity of the current session.
func (c *Client) Me(ctx context.Context) (model.User, error) {
	var u model.User
	if err := c.getJSON(ctx, "/auth/me/", nil, &u); err != nil {
		return model.User{}, err
	}
	return u, nil
}

// MeQuery is the identity check. It is never retried: a 401 is an answer.
func (c *Client) MeQuery() query.Query[model.User] {
	return query.Query[model.User]{
		Key:     KeyMe,
		Fn:      c.Me,
		Options: query.Options{StaleTime: IdentityStaleTime, Retry: query.RetryNever},
	}
}

// EnsureCSRF fetches the anti-forgery cookie unless one is already held.
func (c *Client) EnsureCSRF(ctx context.Context) error {
	if c.t.CSRFToken() != "" {
		return nil
	}
	return c.getJSON(ctx, "/auth/csrf/", nil, nil)
}

// Login opens a session.
func (c *Client) Login(ctx context.Context, cr model.Credentials) error {
	if err := c.Validate(cr); err != nil {
		return err
	}
	if err := c.EnsureCSRF(ctx); err != nil {
		return err
	}
	return c.sendJSON(ctx, http.MethodPost, "/auth/login/", cr, nil)
}

// Logout closes the session on the server.
func (c *Client) Logout(ctx context.Context) error {
	return c.sendJSON(ctx, http.MethodPost, "/auth/logout/", nil, nil)
}

// Register creates an account. It does not log in.
func (c *Client) Register(ctx context.Context, r model.Registration) error {
	if err := c.Validate(r); err != nil {
		return err
	}
	if err := c.EnsureCSRF(ctx); err != nil {
		return err
	}
	return c.sendJSON(ctx, http.MethodPost, "/auth/register/", r, nil)
}
