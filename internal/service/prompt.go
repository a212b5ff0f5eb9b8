package service

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/collinvine/talk-to-oura/internal/domain"
)

// maxHistoryTurns caps how much prior conversation is replayed to the model
const maxHistoryTurns = 10

const persona = `You are a friendly, knowledgeable health assistant with access to the user's Oura ring data.
Answer conversationally. Cite the concrete numbers and dates from the data rather than speaking in generalities.
When the user asks what a metric means, explain it in plain language.
If the data doesn't cover what was asked, say so instead of guessing.
Sleep durations are in seconds; convert them to hours and minutes when you mention them.`

// buildContext renders the grounding data for the prompt, restricted to
// the relevant categories. Heart rate appears only as per-day min/max/avg
// stats: raw per-sample readings would blow the token budget.
func buildContext(data domain.HealthData, rng domain.DateRange, types domain.DataTypes) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Oura data for %s to %s:\n", rng.StartDate, rng.EndDate)

	if types.Sleep && len(data.Sleep) > 0 {
		appendSection(&sb, "Sleep", data.Sleep)
	}
	if types.Activity && len(data.Activity) > 0 {
		appendSection(&sb, "Activity", data.Activity)
	}
	if types.Readiness && len(data.Readiness) > 0 {
		appendSection(&sb, "Readiness", data.Readiness)
	}
	if types.HeartRate && data.HeartRate != nil && len(data.HeartRate.DailyStats) > 0 {
		appendSection(&sb, "Heart rate (daily min/max/avg bpm)", data.HeartRate.DailyStats)
	}

	return sb.String()
}

func appendSection(sb *strings.Builder, title string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return
	}
	fmt.Fprintf(sb, "\n%s:\n%s\n", title, raw)
}

// buildPrompt flattens everything into a single prompt for the
// no-history case.
func buildPrompt(contextStr, query string) string {
	return fmt.Sprintf("%s\n\n%s\nQuestion: %s", persona, contextStr, query)
}

// buildTurns constructs a multi-turn exchange: the grounding context goes
// in as an opening user/assistant pair, then the trailing history, then
// the current query.
func buildTurns(history []domain.ChatTurn, contextStr, query string) []domain.ChatTurn {
	if len(history) > maxHistoryTurns {
		history = history[len(history)-maxHistoryTurns:]
	}

	turns := make([]domain.ChatTurn, 0, len(history)+3)
	turns = append(turns,
		domain.ChatTurn{Role: domain.RoleUser, Content: persona + "\n\n" + contextStr},
		domain.ChatTurn{Role: domain.RoleAssistant, Content: "Understood. I have your Oura data and I'm ready to answer questions about it."},
	)
	turns = append(turns, history...)
	turns = append(turns, domain.ChatTurn{Role: domain.RoleUser, Content: query})
	return turns
}

// noDataMessage is the clean empty-result reply; not an error
func noDataMessage(rng domain.DateRange) string {
	return fmt.Sprintf("I couldn't find any data for %s to %s. Your ring may not have synced yet, or there may be no data recorded for that period.", rng.StartDate, rng.EndDate)
}
