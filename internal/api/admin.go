package api

import (
	"context"
	"net/http"
	"net/url"
)

// LoginResult carries the session token and identity from a login call.
type LoginResult struct {
	Token string `json:"access_token"`
	User  User   `json:"user"`
}

// Login exchanges credentials for a session token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body := map[string]string{
		"username": username,
		"password": password,
	}
	var result LoginResult
	if err := c.do(ctx, c.submitClient, http.MethodPost, "/auth/login", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// CheckAuth verifies that the current token is still accepted.
func (c *Client) CheckAuth(ctx context.Context) error {
	return c.do(ctx, c.httpClient, http.MethodGet, "/auth/check-auth", nil, nil)
}

// CurrentUser fetches the identity behind the current token.
func (c *Client) CurrentUser(ctx context.Context) (*User, error) {
	var user User
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/auth/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout invalidates the current token server-side. Local state is the
// caller's responsibility.
func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, c.submitClient, http.MethodPost, "/auth/logout", nil, nil)
}

// ChangePassword updates the current user's password.
func (c *Client) ChangePassword(ctx context.Context, oldPassword, newPassword string) error {
	body := map[string]string{
		"old_password": oldPassword,
		"new_password": newPassword,
	}
	return c.do(ctx, c.submitClient, http.MethodPost, "/auth/change-password", body, nil)
}

// ListUsers fetches all accounts. Admin only.
func (c *Client) ListUsers(ctx context.Context) ([]User, error) {
	var users []User
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/user/list", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUser adds an account. Admin only.
func (c *Client) CreateUser(ctx context.Context, username, password, role string) (*User, error) {
	body := map[string]string{
		"username": username,
		"password": password,
		"role":     role,
	}
	var user User
	if err := c.do(ctx, c.submitClient, http.MethodPost, "/user", body, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateUser changes an account's role or display fields. Admin only.
func (c *Client) UpdateUser(ctx context.Context, userID string, fields map[string]string) error {
	return c.do(ctx, c.submitClient, http.MethodPut, "/user/"+url.PathEscape(userID), fields, nil)
}

// DeleteUser removes an account. Admin only.
func (c *Client) DeleteUser(ctx context.Context, userID string) error {
	return c.do(ctx, c.submitClient, http.MethodDelete, "/user/"+url.PathEscape(userID), nil, nil)
}

// ResetPassword sets a new password on another account. Admin only.
func (c *Client) ResetPassword(ctx context.Context, userID, newPassword string) error {
	body := map[string]string{"password": newPassword}
	return c.do(ctx, c.submitClient, http.MethodPut, "/user/"+url.PathEscape(userID)+"/password", body, nil)
}

// RolePrompt is one agent role's prompt template.
type RolePrompt struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ListPrompts fetches the prompt templates for every agent role.
func (c *Client) ListPrompts(ctx context.Context) ([]RolePrompt, error) {
	var prompts []RolePrompt
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/prompt/list", nil, &prompts); err != nil {
		return nil, err
	}
	return prompts, nil
}

// GetPrompt fetches one role's prompt template.
func (c *Client) GetPrompt(ctx context.Context, role string) (*RolePrompt, error) {
	var prompt RolePrompt
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/prompt/"+url.PathEscape(role), nil, &prompt); err != nil {
		return nil, err
	}
	return &prompt, nil
}

// UpdatePrompt replaces one role's prompt template.
func (c *Client) UpdatePrompt(ctx context.Context, role, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, c.submitClient, http.MethodPut, "/prompt/"+url.PathEscape(role), body, nil)
}

// Background is one shared context document injected into agent prompts.
type Background struct {
	Name    string `json:"name"`
	Content string `json:"content"`
}

// GetBackground fetches one shared background document.
func (c *Client) GetBackground(ctx context.Context, name string) (*Background, error) {
	var bg Background
	if err := c.do(ctx, c.httpClient, http.MethodGet, "/prompt/background/"+url.PathEscape(name), nil, &bg); err != nil {
		return nil, err
	}
	return &bg, nil
}

// UpdateBackground replaces one shared background document.
func (c *Client) UpdateBackground(ctx context.Context, name, content string) error {
	body := map[string]string{"content": content}
	return c.do(ctx, c.submitClient, http.MethodPut, "/prompt/background/"+url.PathEscape(name), body, nil)
}
