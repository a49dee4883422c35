// Package backend is a thin client for the remote application backend
// (a PostgREST-style API addressed by a URL and a public anon key).
package backend

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/bytedance/sonic"
	log "github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned by every call of a client built without
// credentials.
var ErrNotConfigured = errors.New("backend client not configured")

const profilesTable = "profiles"

// Client talks to the backend REST API.
type Client struct {
	baseURL string
	anonKey string
	http    *http.Client
}

// Profile is the row written when a user finishes onboarding.
type Profile struct {
	UserID              string `json:"user_id"`
	Estimate            int    `json:"estimate"`
	OnboardingCompleted bool   `json:"onboarding_completed"`
}

// NewClient builds a client. Missing credentials are not fatal: a warning is
// logged and the returned client answers every call with ErrNotConfigured so
// the rest of the service can still start.
func NewClient(url, anonKey string, logger log.FieldLogger) *Client {
	if logger == nil {
		logger = log.StandardLogger()
	}
	url = strings.TrimRight(strings.TrimSpace(url), "/")
	anonKey = strings.TrimSpace(anonKey)
	if url == "" || anonKey == "" {
		logger.WithFields(log.Fields{
			"url_set":      url != "",
			"anon_key_set": anonKey != "",
		}).Warn("backend credentials missing; backend calls are disabled")
		return &Client{}
	}
	return &Client{
		baseURL: url,
		anonKey: anonKey,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

// Configured reports whether the client has credentials.
func (c *Client) Configured() bool {
	return c != nil && c.baseURL != "" && c.anonKey != ""
}

// UpsertProfile creates or merges the profile row of a user.
func (c *Client) UpsertProfile(ctx context.Context, p Profile) error {
	return c.post(ctx, "/rest/v1/"+profilesTable, p, "resolution=merge-duplicates")
}

func (c *Client) post(ctx context.Context, path string, body any, prefer string) error {
	if !c.Configured() {
		return ErrNotConfigured
	}
	payload, err := sonic.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.anonKey)
	req.Header.Set("Authorization", "Bearer "+c.anonKey)
	req.Header.Set("Content-Type", "application/json")
	if prefer != "" {
		req.Header.Set("Prefer", prefer)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("backend %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
