package api

import (
	"context"
	"errors"
	"net/http"
)

// User is a confirmed identity
type User struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
}

// IsGuest reports whether the user has no identity
func (u User) IsGuest() bool {
	return u.ID == ""
}

// CheckUser confirms the bearer credential and returns the identity behind it
func (c *Client) CheckUser(ctx context.Context) (*User, error) {
	env, err := c.do(ctx, request{method: http.MethodPost, path: "/user/checkUser", auth: true})
	if err != nil {
		return nil, err
	}
	if env.rejected() {
		e := rejectedError(env, "Authentication failed")
		e.Kind = KindUnauthorized
		return nil, e
	}

	var user User
	if err := decodeField("userDetails", env.UserDetails, &user, false); err != nil {
		return nil, err
	}
	if user.IsGuest() {
		return nil, &Error{Kind: KindUnauthorized, Err: errors.New("server returned an identity without id")}
	}
	return &user, nil
}

// RequestCount returns how many contact reveals the caller has left
func (c *Client) RequestCount(ctx context.Context) (int, error) {
	env, err := c.do(ctx, request{method: http.MethodGet, path: "/user/count_view", auth: true})
	if err != nil {
		return 0, err
	}
	if env.Success == nil || !*env.Success {
		return 0, rejectedError(env, "Failed to fetch request count")
	}
	if env.RequestCount == nil {
		return 0, &Error{Kind: KindDecode, Err: errors.New("response has no request_count")}
	}
	return *env.RequestCount, nil
}
