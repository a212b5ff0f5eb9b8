package service

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/collinvine/talk-to-oura/internal/cache"
	"github.com/collinvine/talk-to-oura/internal/domain"
	"github.com/collinvine/talk-to-oura/internal/genai"
	"github.com/collinvine/talk-to-oura/internal/oura"
	"github.com/collinvine/talk-to-oura/internal/relevance"
	"github.com/collinvine/talk-to-oura/internal/timeframe"
	"go.uber.org/zap"
)

// DataSource is the Oura API surface the service depends on
type DataSource interface {
	FetchSleep(ctx context.Context, accessToken, start, end string) ([]domain.SleepRecord, error)
	FetchActivity(ctx context.Context, accessToken, start, end string) ([]domain.ActivityRecord, error)
	FetchReadiness(ctx context.Context, accessToken, start, end string) ([]domain.ReadinessRecord, error)
	FetchHeartRate(ctx context.Context, accessToken, start, end string) (*domain.HeartRateData, error)
	Ping(ctx context.Context, accessToken string) error
	Refresh(ctx context.Context, refreshToken string) (oura.Token, error)
}

// Generator streams model responses
type Generator interface {
	GenerateStream(ctx context.Context, turns []domain.ChatTurn) (*genai.Stream, error)
	GeneratePrompt(ctx context.Context, prompt string) (*genai.Stream, error)
}

// SessionStore persists per-session credentials and conversation history
type SessionStore interface {
	GetToken(sessionID string) (*oura.Token, error)
	SaveToken(sessionID string, token oura.Token) error
	SaveMessage(sessionID, role, content string) error
	RecentMessages(sessionID string, limit int) ([]domain.ChatTurn, error)
}

// QueryService runs the query-to-answer pipeline: date-range resolution,
// relevance detection, cache lookup, Oura fetch, prompt assembly and
// streamed generation.
type QueryService struct {
	source    DataSource
	generator Generator
	cache     *cache.Store
	sessions  SessionStore
	resolver  *timeframe.Resolver
	logger    *zap.Logger

	now func() time.Time
}

// NewQueryService creates a query service
func NewQueryService(
	source DataSource,
	generator Generator,
	cacheStore *cache.Store,
	sessions SessionStore,
	resolver *timeframe.Resolver,
	logger *zap.Logger,
) *QueryService {
	return &QueryService{
		source:    source,
		generator: generator,
		cache:     cacheStore,
		sessions:  sessions,
		resolver:  resolver,
		logger:    logger,
		now:       time.Now,
	}
}

// AskStream answers a query about the session's Oura data as a stream of
// events. Validation and authorization failures return an error before
// any streaming begins; everything after that is reported on the stream.
func (s *QueryService) AskStream(ctx context.Context, sessionID string, req domain.QueryRequest) (<-chan domain.StreamEvent, error) {
	query := strings.TrimSpace(req.Query)
	if query == "" {
		return nil, fmt.Errorf("%w: query must not be empty", domain.ErrInvalidRequest)
	}
	if utf8.RuneCountInString(req.Query) > domain.MaxQueryLength {
		return nil, fmt.Errorf("%w: query exceeds %d characters", domain.ErrInvalidRequest, domain.MaxQueryLength)
	}

	token, err := s.sessions.GetToken(sessionID)
	if err != nil {
		return nil, fmt.Errorf("load token: %w", err)
	}
	if token == nil {
		return nil, fmt.Errorf("%w: no Oura connection for this session", domain.ErrUnauthorized)
	}

	accessToken := s.freshAccessToken(ctx, sessionID, *token)

	events := make(chan domain.StreamEvent, 16)
	go s.run(ctx, events, sessionID, accessToken, query, req.ConversationHistory)
	return events, nil
}

// run executes the pipeline and pushes events until done or failure
func (s *QueryService) run(ctx context.Context, events chan<- domain.StreamEvent, sessionID, accessToken, query string, history []domain.ChatTurn) {
	defer close(events)

	today := s.now()
	rng := s.resolver.Resolve(ctx, query, today)
	types := relevance.Classify(query)

	data, rng := s.resolveData(ctx, sessionID, accessToken, rng, types)
	relevant := relevantSubset(data, types)

	if relevant.Empty() {
		msg := noDataMessage(rng)
		if !send(ctx, events, domain.ContentEvent(msg)) {
			return
		}
		send(ctx, events, domain.DoneEvent(nil))
		s.persistTurns(sessionID, query, msg)
		return
	}

	contextStr := buildContext(data, rng, types)

	if len(history) == 0 {
		stored, err := s.sessions.RecentMessages(sessionID, maxHistoryTurns)
		if err != nil {
			s.logger.Warn("failed to load conversation history", zap.Error(err))
		} else {
			history = stored
		}
	}

	var stream *genai.Stream
	var err error
	if len(history) > 0 {
		stream, err = s.generator.GenerateStream(ctx, buildTurns(history, contextStr, query))
	} else {
		stream, err = s.generator.GeneratePrompt(ctx, buildPrompt(contextStr, query))
	}
	if err != nil {
		s.logger.Error("generation failed", zap.Error(err))
		send(ctx, events, domain.ErrorEvent("Failed to generate a response. Please try again."))
		return
	}

	s.logger.Info("streaming response",
		zap.String("model", stream.Model),
		zap.String("range", rng.StartDate+".."+rng.EndDate),
	)

	var answer strings.Builder
	for delta := range stream.Deltas {
		if delta.Err != nil {
			s.logger.Error("stream aborted", zap.Error(delta.Err))
			send(ctx, events, domain.ErrorEvent("The response was interrupted. Please try again."))
			return
		}
		answer.WriteString(delta.Text)
		if !send(ctx, events, domain.ContentEvent(delta.Text)) {
			// Caller went away. Stop relaying, but drain the stream so
			// the producer can finish and release its connection.
			go func() {
				for range stream.Deltas {
				}
			}()
			return
		}
	}

	if !send(ctx, events, domain.DoneEvent(&relevant)) {
		return
	}
	s.persistTurns(sessionID, query, answer.String())
}

// resolveData serves the request from cache when possible, otherwise
// fetches fresh data and caches it. A follow-up with no explicit range
// keeps using whatever range is already cached; an explicit range only
// hits the cache when wholly contained in it.
func (s *QueryService) resolveData(ctx context.Context, sessionID, accessToken string, rng domain.DateRange, types domain.DataTypes) (domain.HealthData, domain.DateRange) {
	if entry, ok := s.cache.Get(sessionID); ok {
		if !rng.Custom && entry.IncludedTypes.Covers(types) {
			cached := domain.DateRange{StartDate: entry.StartDate, EndDate: entry.EndDate, Custom: rng.Custom}
			return entry.Data, cached
		}
		if rng.Custom && entry.Matches(rng.StartDate, rng.EndDate, types) {
			return entry.Filter(rng.StartDate, rng.EndDate), rng
		}
	}

	data := s.fetch(ctx, accessToken, rng, types)
	s.cache.Set(sessionID, rng.StartDate, rng.EndDate, data, types)
	return data, rng
}

// fetch pulls exactly the needed categories. A failing category is logged
// and left empty so the others still populate.
func (s *QueryService) fetch(ctx context.Context, accessToken string, rng domain.DateRange, types domain.DataTypes) domain.HealthData {
	var data domain.HealthData

	if types.Sleep {
		records, err := s.source.FetchSleep(ctx, accessToken, rng.StartDate, rng.EndDate)
		if err != nil {
			s.logger.Warn("sleep fetch failed", zap.Error(err))
		} else {
			data.Sleep = records
		}
	}
	if types.Activity {
		records, err := s.source.FetchActivity(ctx, accessToken, rng.StartDate, rng.EndDate)
		if err != nil {
			s.logger.Warn("activity fetch failed", zap.Error(err))
		} else {
			data.Activity = records
		}
	}
	if types.Readiness {
		records, err := s.source.FetchReadiness(ctx, accessToken, rng.StartDate, rng.EndDate)
		if err != nil {
			s.logger.Warn("readiness fetch failed", zap.Error(err))
		} else {
			data.Readiness = records
		}
	}
	if types.HeartRate {
		hr, err := s.source.FetchHeartRate(ctx, accessToken, rng.StartDate, rng.EndDate)
		if err != nil {
			s.logger.Warn("heart rate fetch failed", zap.Error(err))
		} else {
			data.HeartRate = hr
		}
	}

	return data
}

// freshAccessToken refreshes the credential when it is near expiry.
// Refresh failures are logged and the stale token used as-is; the Oura
// API will reject it if it is truly dead.
func (s *QueryService) freshAccessToken(ctx context.Context, sessionID string, token oura.Token) string {
	if !token.NearExpiry(s.now()) {
		return token.AccessToken
	}

	refreshed, err := s.source.Refresh(ctx, token.RefreshToken)
	if err != nil {
		s.logger.Warn("token refresh failed", zap.Error(err))
		return token.AccessToken
	}
	if err := s.sessions.SaveToken(sessionID, refreshed); err != nil {
		s.logger.Warn("failed to persist refreshed token", zap.Error(err))
	}
	return refreshed.AccessToken
}

func (s *QueryService) persistTurns(sessionID, query, answer string) {
	if err := s.sessions.SaveMessage(sessionID, domain.RoleUser, query); err != nil {
		s.logger.Warn("failed to save user message", zap.Error(err))
		return
	}
	if err := s.sessions.SaveMessage(sessionID, domain.RoleAssistant, answer); err != nil {
		s.logger.Warn("failed to save assistant message", zap.Error(err))
	}
}

// Status checks the session's Oura connectivity
func (s *QueryService) Status(ctx context.Context, sessionID string) error {
	token, err := s.sessions.GetToken(sessionID)
	if err != nil {
		return err
	}
	if token == nil {
		return domain.ErrUnauthorized
	}
	return s.source.Ping(ctx, s.freshAccessToken(ctx, sessionID, *token))
}

// Connect stores an externally obtained Oura credential for the session.
// The OAuth exchange itself happens outside this service.
func (s *QueryService) Connect(sessionID string, token oura.Token) error {
	return s.sessions.SaveToken(sessionID, token)
}

// relevantSubset keeps only the categories the query concerns
func relevantSubset(data domain.HealthData, types domain.DataTypes) domain.HealthData {
	var out domain.HealthData
	if types.Sleep {
		out.Sleep = data.Sleep
	}
	if types.Activity {
		out.Activity = data.Activity
	}
	if types.Readiness {
		out.Readiness = data.Readiness
	}
	if types.HeartRate {
		out.HeartRate = data.HeartRate
	}
	return out
}

// send pushes an event unless the caller has disconnected
func send(ctx context.Context, events chan<- domain.StreamEvent, event domain.StreamEvent) bool {
	select {
	case events <- event:
		return true
	case <-ctx.Done():
		return false
	}
}
