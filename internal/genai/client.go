// Package genai streams chat completions from an OpenRouter-compatible
// API, with ordered model fallback and exponential backoff on rate limits.
package genai

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"github.com/collinvine/talk-to-oura/internal/domain"
	"go.uber.org/zap"
)

const defaultMaxRetries = 3

// Delta is one increment of a generation stream. A non-nil Err is
// terminal and the channel closes after it.
type Delta struct {
	Text string
	Err  error
}

// Stream is a forward-only sequence of text fragments from one model
type Stream struct {
	Model  string
	Deltas <-chan Delta
}

// Client calls the chat completions API. Models are tried in order:
// rate-limit errors are retried with backoff up to maxRetries per model,
// then the next model takes over; any other error aborts immediately.
type Client struct {
	apiKey     string
	baseURL    string
	models     []string
	maxRetries int
	httpClient *http.Client
	logger     *zap.Logger

	// test seams
	sleep  func(ctx context.Context, d time.Duration) error
	jitter func() time.Duration
}

// NewClient creates a generation client over the given ordered model list
func NewClient(baseURL, apiKey string, models []string, maxRetries int, logger *zap.Logger) *Client {
	if maxRetries <= 0 {
		maxRetries = defaultMaxRetries
	}
	return &Client{
		apiKey:     apiKey,
		baseURL:    strings.TrimRight(baseURL, "/"),
		models:     models,
		maxRetries: maxRetries,
		httpClient: &http.Client{},
		logger:     logger,
		sleep:      sleepCtx,
		jitter: func() time.Duration {
			return time.Duration(rand.Intn(250)) * time.Millisecond
		},
	}
}

// GenerateStream opens a stream for the conversation, working through the
// model list. It fails only once every model is exhausted, returning the
// last error seen.
func (c *Client) GenerateStream(ctx context.Context, turns []domain.ChatTurn) (*Stream, error) {
	var lastErr error

	for _, model := range c.models {
		for attempt := 0; attempt < c.maxRetries; attempt++ {
			stream, err := c.open(ctx, model, turns)
			if err == nil {
				return stream, nil
			}
			if !errors.Is(err, domain.ErrRateLimited) {
				return nil, err
			}
			lastErr = err

			if attempt < c.maxRetries-1 {
				delay := time.Duration(1<<uint(attempt))*time.Second + c.jitter()
				c.logger.Warn("model rate limited, backing off",
					zap.String("model", model),
					zap.Int("attempt", attempt+1),
					zap.Duration("delay", delay),
				)
				if err := c.sleep(ctx, delay); err != nil {
					return nil, err
				}
			}
		}
		c.logger.Warn("model exhausted, falling back", zap.String("model", model))
	}

	if lastErr == nil {
		lastErr = fmt.Errorf("no models configured")
	}
	return nil, lastErr
}

// GeneratePrompt streams a response to a single flattened prompt
func (c *Client) GeneratePrompt(ctx context.Context, prompt string) (*Stream, error) {
	return c.GenerateStream(ctx, []domain.ChatTurn{{Role: domain.RoleUser, Content: prompt}})
}

// Complete runs a single-turn generation and gathers the full text
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
	stream, err := c.GeneratePrompt(ctx, prompt)
	if err != nil {
		return "", err
	}
	var sb strings.Builder
	for delta := range stream.Deltas {
		if delta.Err != nil {
			return "", delta.Err
		}
		sb.WriteString(delta.Text)
	}
	return sb.String(), nil
}

type chatRequest struct {
	Model    string            `json:"model"`
	Messages []domain.ChatTurn `json:"messages"`
	Stream   bool              `json:"stream"`
}

type streamFrame struct {
	Choices []struct {
		Delta struct {
			Content string `json:"content"`
		} `json:"delta"`
	} `json:"choices"`
}

// open performs one streaming attempt against one model
func (c *Client) open(ctx context.Context, model string, turns []domain.ChatTurn) (*Stream, error) {
	payload, err := json.Marshal(chatRequest{Model: model, Messages: turns, Stream: true})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("chat request: %w", err)
	}

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusTooManyRequests, http.StatusServiceUnavailable:
		resp.Body.Close()
		return nil, fmt.Errorf("%w: model %s returned %d", domain.ErrRateLimited, model, resp.StatusCode)
	default:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		resp.Body.Close()
		return nil, fmt.Errorf("model %s returned %d: %s", model, resp.StatusCode, strings.TrimSpace(string(body)))
	}

	ch := make(chan Delta, 64)
	go c.scan(resp.Body, ch)

	return &Stream{Model: model, Deltas: ch}, nil
}

// scan reads SSE frames from the response body and forwards the text
// deltas. Malformed frames are skipped with a warning rather than
// aborting the stream.
func (c *Client) scan(body io.ReadCloser, ch chan<- Delta) {
	defer close(ch)
	defer body.Close()

	scanner := bufio.NewScanner(body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, ":") {
			continue
		}
		data, ok := strings.CutPrefix(line, "data:")
		if !ok {
			continue
		}
		data = strings.TrimSpace(data)
		if data == "[DONE]" {
			return
		}

		var frame streamFrame
		if err := json.Unmarshal([]byte(data), &frame); err != nil {
			c.logger.Warn("skipping malformed stream frame", zap.Error(err))
			continue
		}
		if len(frame.Choices) == 0 {
			continue
		}
		if text := frame.Choices[0].Delta.Content; text != "" {
			ch <- Delta{Text: text}
		}
	}

	if err := scanner.Err(); err != nil {
		ch <- Delta{Err: fmt.Errorf("read stream: %w", err)}
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
