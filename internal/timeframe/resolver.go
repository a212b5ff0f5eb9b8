package timeframe

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/collinvine/talk-to-oura/internal/domain"
	"go.uber.org/zap"
)

// Completer is the single-turn generation call used for AI-assisted date
// extraction when the heuristics fail but the query still references dates.
type Completer interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

var (
	explicitRangePattern = regexp.MustCompile(`(\d{4}-\d{2}-\d{2})\s*(?:to|-)\s*(\d{4}-\d{2}-\d{2})`)
	singleDatePattern    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	relativePattern      = regexp.MustCompile(`(?:last|past|previous)\s+(\d+)\s+(day|week|month|year)s?`)
	bareYearPattern      = regexp.MustCompile(`\b(19\d{2}|20\d{2})\b`)
	jsonObjectPattern    = regexp.MustCompile(`\{[^{}]*\}`)

	// dateHintPattern decides whether the AI fallback is worth a call at all.
	dateHintPattern = regexp.MustCompile(`\b(?:january|february|march|april|may|june|july|august|september|october|november|december)\b|last\s+\d+|\byear\b`)
)

// Resolver turns free-text queries into concrete date ranges. It never
// fails: every path ends in a usable range, worst case the default
// trailing-7-day window.
type Resolver struct {
	completer Completer
	logger    *zap.Logger
}

// NewResolver creates a resolver. completer may be nil, in which case the
// AI fallback step is skipped.
func NewResolver(completer Completer, logger *zap.Logger) *Resolver {
	return &Resolver{completer: completer, logger: logger}
}

// Resolve extracts the date range a query refers to, relative to today.
// Heuristics are tried in priority order; first match wins.
func (r *Resolver) Resolve(ctx context.Context, query string, today time.Time) domain.DateRange {
	q := strings.ToLower(query)

	// Explicit "YYYY-MM-DD to YYYY-MM-DD" range
	if m := explicitRangePattern.FindStringSubmatch(q); m != nil {
		return normalize(m[1], m[2], today)
	}

	// A single explicit date means a single-day range
	if d := singleDatePattern.FindString(q); d != "" {
		return normalize(d, d, today)
	}

	if strings.Contains(q, "today") {
		d := today.Format(domain.ISODate)
		return domain.DateRange{StartDate: d, EndDate: d, Custom: true}
	}

	if strings.Contains(q, "yesterday") || strings.Contains(q, "last night") {
		d := today.AddDate(0, 0, -1).Format(domain.ISODate)
		return domain.DateRange{StartDate: d, EndDate: d, Custom: true}
	}

	// "last/past/previous N days|weeks|months|years". Weeks, months and
	// years are approximated as 7, 30 and 365 days; queries near month
	// boundaries keep the historical behavior rather than calendar math.
	if m := relativePattern.FindStringSubmatch(q); m != nil {
		n, _ := strconv.Atoi(m[1])
		days := n
		switch m[2] {
		case "week":
			days = n * 7
		case "month":
			days = n * 30
		case "year":
			days = n * 365
		}
		return rangeOf(today.AddDate(0, 0, -days), today, today)
	}

	// Both "this week" and "last week" mean the trailing 7 days, not the
	// calendar week.
	if strings.Contains(q, "this week") || strings.Contains(q, "last week") {
		return rangeOf(today.AddDate(0, 0, -7), today, today)
	}

	if strings.Contains(q, "this month") {
		start := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		return rangeOf(start, today, today)
	}

	if strings.Contains(q, "last month") {
		firstOfMonth := time.Date(today.Year(), today.Month(), 1, 0, 0, 0, 0, today.Location())
		end := firstOfMonth.AddDate(0, 0, -1)
		start := time.Date(end.Year(), end.Month(), 1, 0, 0, 0, 0, today.Location())
		return rangeOf(start, end, today)
	}

	if strings.Contains(q, "this year") {
		start := time.Date(today.Year(), time.January, 1, 0, 0, 0, 0, today.Location())
		return rangeOf(start, today, today)
	}

	if strings.Contains(q, "last year") {
		y := today.Year() - 1
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, today.Location())
		end := time.Date(y, time.December, 31, 0, 0, 0, 0, today.Location())
		return rangeOf(start, end, today)
	}

	// A bare 4-digit year covers that whole calendar year
	if m := bareYearPattern.FindString(q); m != "" {
		y, _ := strconv.Atoi(m)
		start := time.Date(y, time.January, 1, 0, 0, 0, 0, today.Location())
		end := time.Date(y, time.December, 31, 0, 0, 0, 0, today.Location())
		return rangeOf(start, end, today)
	}

	// The query references dates in a way the heuristics don't cover, so
	// ask the model. Any failure here falls through to the default range
	// and is never surfaced to the user.
	if r.completer != nil && dateHintPattern.MatchString(q) {
		if dr, ok := r.resolveWithModel(ctx, query, today); ok {
			return dr
		}
	}

	return DefaultRange(today)
}

// DefaultRange is the trailing 7 days ending today, marked non-custom so
// callers can tell "no explicit range requested" from a parsed range.
func DefaultRange(today time.Time) domain.DateRange {
	return domain.DateRange{
		StartDate: today.AddDate(0, 0, -7).Format(domain.ISODate),
		EndDate:   today.Format(domain.ISODate),
		Custom:    false,
	}
}

func (r *Resolver) resolveWithModel(ctx context.Context, query string, today time.Time) (domain.DateRange, bool) {
	prompt := fmt.Sprintf(`Today's date is %s. Extract the date range this question refers to.
Respond with strict JSON only: {"startDate": "YYYY-MM-DD", "endDate": "YYYY-MM-DD"}.
Rules:
- "in March" with no year means the most recent March that has fully or partly passed.
- A month in the current year that hasn't started yet refers to last year.
- Example: if today is 2025-06-10, "how did I sleep in March" means {"startDate": "2025-03-01", "endDate": "2025-03-31"}.
- Never return dates after today.

Question: %q`, today.Format(domain.ISODate), query)

	resp, err := r.completer.Complete(ctx, prompt)
	if err != nil {
		r.logger.Warn("date extraction model call failed", zap.Error(err))
		return domain.DateRange{}, false
	}

	raw := jsonObjectPattern.FindString(resp)
	if raw == "" {
		r.logger.Warn("date extraction response had no JSON object", zap.String("response", resp))
		return domain.DateRange{}, false
	}

	var parsed struct {
		StartDate string `json:"startDate"`
		EndDate   string `json:"endDate"`
	}
	if err := json.Unmarshal([]byte(raw), &parsed); err != nil {
		r.logger.Warn("date extraction JSON parse failed", zap.Error(err))
		return domain.DateRange{}, false
	}
	if _, err := time.Parse(domain.ISODate, parsed.StartDate); err != nil {
		return domain.DateRange{}, false
	}
	if _, err := time.Parse(domain.ISODate, parsed.EndDate); err != nil {
		return domain.DateRange{}, false
	}

	return normalize(parsed.StartDate, parsed.EndDate, today), true
}

// normalize swaps an inverted range and clamps both ends to today, so
// the result always satisfies startDate <= endDate <= today even for
// fully-future input.
func normalize(start, end string, today time.Time) domain.DateRange {
	if start > end {
		start, end = end, start
	}
	if t := today.Format(domain.ISODate); end > t {
		end = t
	}
	if start > end {
		start = end
	}
	return domain.DateRange{StartDate: start, EndDate: end, Custom: true}
}

func rangeOf(start, end, today time.Time) domain.DateRange {
	return normalize(start.Format(domain.ISODate), end.Format(domain.ISODate), today)
}
