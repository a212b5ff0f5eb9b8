package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/collinvine/talk-to-oura/internal/cache"
	"github.com/collinvine/talk-to-oura/internal/domain"
	"github.com/collinvine/talk-to-oura/internal/genai"
	"github.com/collinvine/talk-to-oura/internal/oura"
	"github.com/collinvine/talk-to-oura/internal/timeframe"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testToday = time.Date(2025, 6, 10, 12, 0, 0, 0, time.UTC)

type fakeSource struct {
	sleep     []domain.SleepRecord
	activity  []domain.ActivityRecord
	readiness []domain.ReadinessRecord
	heartRate *domain.HeartRateData

	sleepErr error

	fetchCalls int
	lastStart  string
	lastEnd    string
}

func (f *fakeSource) FetchSleep(_ context.Context, _, start, end string) ([]domain.SleepRecord, error) {
	f.fetchCalls++
	f.lastStart, f.lastEnd = start, end
	if f.sleepErr != nil {
		return nil, f.sleepErr
	}
	return f.sleep, nil
}

func (f *fakeSource) FetchActivity(_ context.Context, _, start, end string) ([]domain.ActivityRecord, error) {
	f.lastStart, f.lastEnd = start, end
	return f.activity, nil
}

func (f *fakeSource) FetchReadiness(_ context.Context, _, start, end string) ([]domain.ReadinessRecord, error) {
	f.lastStart, f.lastEnd = start, end
	return f.readiness, nil
}

func (f *fakeSource) FetchHeartRate(_ context.Context, _, start, end string) (*domain.HeartRateData, error) {
	f.lastStart, f.lastEnd = start, end
	return f.heartRate, nil
}

func (f *fakeSource) Ping(context.Context, string) error { return nil }

func (f *fakeSource) Refresh(context.Context, string) (oura.Token, error) {
	return oura.Token{AccessToken: "refreshed"}, nil
}

type fakeGenerator struct {
	chunks []string
	err    error

	streamCalls int
	promptCalls int
	turns       []domain.ChatTurn
	prompt      string
}

func (g *fakeGenerator) stream() (*genai.Stream, error) {
	if g.err != nil {
		return nil, g.err
	}
	ch := make(chan genai.Delta, len(g.chunks))
	for _, chunk := range g.chunks {
		ch <- genai.Delta{Text: chunk}
	}
	close(ch)
	return &genai.Stream{Model: "fake-model", Deltas: ch}, nil
}

func (g *fakeGenerator) GenerateStream(_ context.Context, turns []domain.ChatTurn) (*genai.Stream, error) {
	g.streamCalls++
	g.turns = turns
	return g.stream()
}

func (g *fakeGenerator) GeneratePrompt(_ context.Context, prompt string) (*genai.Stream, error) {
	g.promptCalls++
	g.prompt = prompt
	return g.stream()
}

type fakeSessions struct {
	token    *oura.Token
	history  []domain.ChatTurn
	messages []domain.ChatTurn
}

func (f *fakeSessions) GetToken(string) (*oura.Token, error) { return f.token, nil }

func (f *fakeSessions) SaveToken(_ string, token oura.Token) error {
	f.token = &token
	return nil
}

func (f *fakeSessions) SaveMessage(_, role, content string) error {
	f.messages = append(f.messages, domain.ChatTurn{Role: role, Content: content})
	return nil
}

func (f *fakeSessions) RecentMessages(string, int) ([]domain.ChatTurn, error) {
	return f.history, nil
}

func connectedToken() *oura.Token {
	return &oura.Token{AccessToken: "token", ExpiresAt: testToday.Add(time.Hour)}
}

func newTestService(source *fakeSource, generator *fakeGenerator, sessions *fakeSessions) *QueryService {
	logger := zap.NewNop()
	svc := NewQueryService(
		source,
		generator,
		cache.NewStore(time.Hour),
		sessions,
		timeframe.NewResolver(nil, logger),
		logger,
	)
	svc.now = func() time.Time { return testToday }
	return svc
}

func collectEvents(t *testing.T, ch <-chan domain.StreamEvent) []domain.StreamEvent {
	t.Helper()
	var events []domain.StreamEvent
	for event := range ch {
		events = append(events, event)
	}
	return events
}

func ask(t *testing.T, svc *QueryService, query string) []domain.StreamEvent {
	t.Helper()
	ch, err := svc.AskStream(context.Background(), "session-1", domain.QueryRequest{Query: query})
	require.NoError(t, err)
	return collectEvents(t, ch)
}

func TestAskStreamRejectsEmptyQuery(t *testing.T) {
	svc := newTestService(&fakeSource{}, &fakeGenerator{}, &fakeSessions{token: connectedToken()})

	_, err := svc.AskStream(context.Background(), "session-1", domain.QueryRequest{Query: "   "})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestAskStreamRejectsOverlongQuery(t *testing.T) {
	svc := newTestService(&fakeSource{}, &fakeGenerator{}, &fakeSessions{token: connectedToken()})

	_, err := svc.AskStream(context.Background(), "session-1", domain.QueryRequest{Query: strings.Repeat("a", 501)})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestAskStreamCountsRunesNotBytes(t *testing.T) {
	// 400 three-byte runes: over 500 bytes but well under 500 characters.
	svc := newTestService(&fakeSource{}, &fakeGenerator{}, &fakeSessions{token: connectedToken()})

	ch, err := svc.AskStream(context.Background(), "session-1", domain.QueryRequest{Query: "睡眠" + strings.Repeat("眠", 398)})
	require.NoError(t, err)
	collectEvents(t, ch)

	_, err = svc.AskStream(context.Background(), "session-1", domain.QueryRequest{Query: strings.Repeat("眠", 501)})
	assert.ErrorIs(t, err, domain.ErrInvalidRequest)
}

func TestAskStreamRejectsWithoutOuraSession(t *testing.T) {
	svc := newTestService(&fakeSource{}, &fakeGenerator{}, &fakeSessions{})

	_, err := svc.AskStream(context.Background(), "session-1", domain.QueryRequest{Query: "How was my sleep?"})
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestAskStreamSleepLastNight(t *testing.T) {
	source := &fakeSource{sleep: []domain.SleepRecord{{Day: "2025-06-09", Score: 82}}}
	generator := &fakeGenerator{chunks: []string{"You slept ", "well."}}
	sessions := &fakeSessions{token: connectedToken()}
	svc := newTestService(source, generator, sessions)

	events := ask(t, svc, "How was my sleep last night?")

	assert.Equal(t, "2025-06-09", source.lastStart)
	assert.Equal(t, "2025-06-09", source.lastEnd)

	require.Len(t, events, 3)
	assert.Equal(t, "You slept ", events[0].Content)
	assert.Equal(t, "well.", events[1].Content)

	done := events[2]
	assert.True(t, done.Done)
	require.NotNil(t, done.OuraData)

	payload, err := json.Marshal(done.OuraData)
	require.NoError(t, err)
	assert.Contains(t, string(payload), `"sleep"`)
	assert.NotContains(t, string(payload), `"heartRate"`)

	// Both turns persisted after a successful stream
	require.Len(t, sessions.messages, 2)
	assert.Equal(t, domain.RoleUser, sessions.messages[0].Role)
	assert.Equal(t, "You slept well.", sessions.messages[1].Content)
}

func TestAskStreamNoData(t *testing.T) {
	generator := &fakeGenerator{chunks: []string{"should not run"}}
	svc := newTestService(&fakeSource{}, generator, &fakeSessions{token: connectedToken()})

	events := ask(t, svc, "How was my sleep last night?")

	require.Len(t, events, 2)
	assert.Contains(t, events[0].Content, "couldn't find any data")
	assert.True(t, events[1].Done)
	assert.Nil(t, events[1].OuraData)
	for _, event := range events {
		assert.Empty(t, event.Error)
	}
	assert.Zero(t, generator.streamCalls)
	assert.Zero(t, generator.promptCalls)
}

func TestAskStreamFollowUpReusesCache(t *testing.T) {
	source := &fakeSource{sleep: []domain.SleepRecord{{Day: "2025-06-09", Score: 82}}}
	generator := &fakeGenerator{chunks: []string{"answer"}}
	svc := newTestService(source, generator, &fakeSessions{token: connectedToken()})

	ask(t, svc, "How was my sleep last night?")
	require.Equal(t, 1, source.fetchCalls)

	// No explicit new range, needed types already cached: no refetch
	ask(t, svc, "Was that enough rest?")
	assert.Equal(t, 1, source.fetchCalls)
}

func TestAskStreamExplicitSubRangeServedFromCache(t *testing.T) {
	source := &fakeSource{sleep: []domain.SleepRecord{
		{Day: "2025-06-02", Score: 70},
		{Day: "2025-06-03", Score: 85},
		{Day: "2025-06-05", Score: 90},
	}}
	generator := &fakeGenerator{chunks: []string{"answer"}}
	svc := newTestService(source, generator, &fakeSessions{token: connectedToken()})

	ask(t, svc, "sleep from 2025-06-01 to 2025-06-07")
	require.Equal(t, 1, source.fetchCalls)

	events := ask(t, svc, "how did I sleep on 2025-06-03")
	assert.Equal(t, 1, source.fetchCalls, "contained sub-range must not refetch")

	done := events[len(events)-1]
	require.NotNil(t, done.OuraData)
	require.Len(t, done.OuraData.Sleep, 1)
	assert.Equal(t, "2025-06-03", done.OuraData.Sleep[0].Day)
}

func TestAskStreamExplicitRangeOutsideCacheRefetches(t *testing.T) {
	source := &fakeSource{sleep: []domain.SleepRecord{{Day: "2025-06-02", Score: 70}}}
	generator := &fakeGenerator{chunks: []string{"answer"}}
	svc := newTestService(source, generator, &fakeSessions{token: connectedToken()})

	ask(t, svc, "sleep from 2025-06-01 to 2025-06-07")
	ask(t, svc, "sleep from 2025-05-01 to 2025-05-07")

	assert.Equal(t, 2, source.fetchCalls)
}

func TestAskStreamPartialFetchFailure(t *testing.T) {
	source := &fakeSource{
		sleepErr:  errors.New("oura is down"),
		readiness: []domain.ReadinessRecord{{Day: "2025-06-09", Score: 77}},
	}
	generator := &fakeGenerator{chunks: []string{"answer"}}
	svc := newTestService(source, generator, &fakeSessions{token: connectedToken()})

	events := ask(t, svc, "How am I doing?")

	done := events[len(events)-1]
	require.True(t, done.Done)
	require.NotNil(t, done.OuraData)
	assert.Empty(t, done.OuraData.Sleep)
	assert.Len(t, done.OuraData.Readiness, 1)
}

func TestAskStreamGenerationFailure(t *testing.T) {
	source := &fakeSource{sleep: []domain.SleepRecord{{Day: "2025-06-09", Score: 82}}}
	generator := &fakeGenerator{err: errors.New("model exploded")}
	sessions := &fakeSessions{token: connectedToken()}
	svc := newTestService(source, generator, sessions)

	events := ask(t, svc, "How was my sleep last night?")

	require.Len(t, events, 1)
	assert.NotEmpty(t, events[0].Error)
	assert.Empty(t, sessions.messages, "failed exchanges are not persisted")
}

func TestAskStreamFlatPromptWithoutHistory(t *testing.T) {
	source := &fakeSource{sleep: []domain.SleepRecord{{Day: "2025-06-09", Score: 82}}}
	generator := &fakeGenerator{chunks: []string{"answer"}}
	svc := newTestService(source, generator, &fakeSessions{token: connectedToken()})

	ask(t, svc, "How was my sleep last night?")

	assert.Equal(t, 1, generator.promptCalls)
	assert.Zero(t, generator.streamCalls)
	assert.Contains(t, generator.prompt, "Question: How was my sleep last night?")
	assert.Contains(t, generator.prompt, "2025-06-09")
}

func TestAskStreamMultiTurnWithHistory(t *testing.T) {
	source := &fakeSource{sleep: []domain.SleepRecord{{Day: "2025-06-09", Score: 82}}}
	generator := &fakeGenerator{chunks: []string{"answer"}}
	svc := newTestService(source, generator, &fakeSessions{token: connectedToken()})

	history := []domain.ChatTurn{
		{Role: domain.RoleUser, Content: "earlier question"},
		{Role: domain.RoleAssistant, Content: "earlier answer"},
	}
	ch, err := svc.AskStream(context.Background(), "session-1", domain.QueryRequest{
		Query:               "How was my sleep last night?",
		ConversationHistory: history,
	})
	require.NoError(t, err)
	collectEvents(t, ch)

	assert.Equal(t, 1, generator.streamCalls)
	// Grounding pair + replayed history + current query
	require.Len(t, generator.turns, 5)
	assert.Contains(t, generator.turns[0].Content, "2025-06-09")
	assert.Equal(t, domain.RoleAssistant, generator.turns[1].Role)
	assert.Equal(t, "earlier question", generator.turns[2].Content)
	assert.Equal(t, "How was my sleep last night?", generator.turns[4].Content)
}

func TestAskStreamRefreshesNearExpiryToken(t *testing.T) {
	source := &fakeSource{sleep: []domain.SleepRecord{{Day: "2025-06-09", Score: 82}}}
	generator := &fakeGenerator{chunks: []string{"answer"}}
	sessions := &fakeSessions{token: &oura.Token{
		AccessToken:  "stale",
		RefreshToken: "refresh-me",
		ExpiresAt:    testToday.Add(time.Minute),
	}}
	svc := newTestService(source, generator, sessions)

	ask(t, svc, "How was my sleep last night?")

	assert.Equal(t, "refreshed", sessions.token.AccessToken)
}
