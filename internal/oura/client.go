// Package oura is a raw HTTP client for the Oura API v2.
package oura

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/collinvine/talk-to-oura/internal/domain"
	"go.uber.org/zap"
)

// Token is a session's OAuth credential for the Oura API
type Token struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
}

// NearExpiry reports whether the token should be refreshed before use
func (t Token) NearExpiry(now time.Time) bool {
	return !t.ExpiresAt.IsZero() && now.Add(5*time.Minute).After(t.ExpiresAt)
}

// Client calls the Oura API. All fetches are scoped to an access token
// and an inclusive ISO date range.
type Client struct {
	baseURL      string
	tokenURL     string
	clientID     string
	clientSecret string
	httpClient   *http.Client
	logger       *zap.Logger
}

// NewClient creates an Oura API client
func NewClient(baseURL, tokenURL, clientID, clientSecret string, logger *zap.Logger) *Client {
	return &Client{
		baseURL:      strings.TrimRight(baseURL, "/"),
		tokenURL:     tokenURL,
		clientID:     clientID,
		clientSecret: clientSecret,
		httpClient:   &http.Client{Timeout: 30 * time.Second},
		logger:       logger,
	}
}

// FetchSleep returns daily sleep summaries for the range
func (c *Client) FetchSleep(ctx context.Context, accessToken, start, end string) ([]domain.SleepRecord, error) {
	var envelope struct {
		Data []domain.SleepRecord `json:"data"`
	}
	if err := c.get(ctx, accessToken, "/usercollection/daily_sleep", dateParams(start, end), &envelope); err != nil {
		return nil, fmt.Errorf("fetch sleep: %w", err)
	}
	return envelope.Data, nil
}

// FetchActivity returns daily activity summaries for the range
func (c *Client) FetchActivity(ctx context.Context, accessToken, start, end string) ([]domain.ActivityRecord, error) {
	var envelope struct {
		Data []domain.ActivityRecord `json:"data"`
	}
	if err := c.get(ctx, accessToken, "/usercollection/daily_activity", dateParams(start, end), &envelope); err != nil {
		return nil, fmt.Errorf("fetch activity: %w", err)
	}
	return envelope.Data, nil
}

// FetchReadiness returns daily readiness summaries for the range
func (c *Client) FetchReadiness(ctx context.Context, accessToken, start, end string) ([]domain.ReadinessRecord, error) {
	var envelope struct {
		Data []domain.ReadinessRecord `json:"data"`
	}
	if err := c.get(ctx, accessToken, "/usercollection/daily_readiness", dateParams(start, end), &envelope); err != nil {
		return nil, fmt.Errorf("fetch readiness: %w", err)
	}
	return envelope.Data, nil
}

// FetchHeartRate returns raw readings for the range plus per-day stats
// derived from them.
func (c *Client) FetchHeartRate(ctx context.Context, accessToken, start, end string) (*domain.HeartRateData, error) {
	params := url.Values{}
	params.Set("start_datetime", start+"T00:00:00+00:00")
	params.Set("end_datetime", end+"T23:59:59+00:00")

	var envelope struct {
		Data []domain.HeartRateReading `json:"data"`
	}
	if err := c.get(ctx, accessToken, "/usercollection/heartrate", params, &envelope); err != nil {
		return nil, fmt.Errorf("fetch heart rate: %w", err)
	}
	return ShapeHeartRate(envelope.Data), nil
}

// Ping verifies the token can reach the API at all
func (c *Client) Ping(ctx context.Context, accessToken string) error {
	var info struct {
		ID string `json:"id"`
	}
	if err := c.get(ctx, accessToken, "/usercollection/personal_info", nil, &info); err != nil {
		return fmt.Errorf("oura ping: %w", err)
	}
	return nil
}

// Refresh exchanges a refresh token for a fresh credential
func (c *Client) Refresh(ctx context.Context, refreshToken string) (Token, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", c.clientID)
	form.Set("client_secret", c.clientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return Token{}, fmt.Errorf("refresh token: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return Token{}, fmt.Errorf("refresh token: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var parsed struct {
		AccessToken  string `json:"access_token"`
		RefreshToken string `json:"refresh_token"`
		ExpiresIn    int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return Token{}, fmt.Errorf("parse token response: %w", err)
	}

	token := Token{
		AccessToken:  parsed.AccessToken,
		RefreshToken: parsed.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(parsed.ExpiresIn) * time.Second),
	}
	if token.RefreshToken == "" {
		token.RefreshToken = refreshToken
	}
	return token, nil
}

func (c *Client) get(ctx context.Context, accessToken, path string, params url.Values, out any) error {
	u := c.baseURL + path
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized {
		return domain.ErrUnauthorized
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("parse %s response: %w", path, err)
	}
	return nil
}

func dateParams(start, end string) url.Values {
	params := url.Values{}
	params.Set("start_date", start)
	params.Set("end_date", end)
	return params
}
