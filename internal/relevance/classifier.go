// Package relevance decides which Oura data categories a query is about,
// using curated keyword lists per category.
package relevance

import (
	"regexp"
	"strings"

	"github.com/collinvine/talk-to-oura/internal/domain"
)

// Keywords match as whole words (plural allowed) so that "resting heart
// rate" doesn't trip the sleep list via "rest".
var (
	sleepPattern     = wordPattern("sleep", "rest", "night", "bed", "rem", "deep", "light", "awake")
	activityPattern  = wordPattern("activity", "step", "active", "exercise", "workout", "calories", "move")
	readinessPattern = wordPattern("readiness", "recovery", "ready", "stress", "strain")
	heartRatePattern = wordPattern("heart", "hr", "bpm", "pulse")
)

// Classify flags the categories a query concerns. When no category
// keyword is found, sleep, activity and readiness default to included;
// heart rate stays excluded because its raw series is by far the largest
// payload and is only fetched on explicit request.
func Classify(query string) domain.DataTypes {
	q := strings.ToLower(query)

	types := domain.DataTypes{
		Sleep:     sleepPattern.MatchString(q),
		Activity:  activityPattern.MatchString(q),
		Readiness: readinessPattern.MatchString(q),
		HeartRate: heartRatePattern.MatchString(q),
	}

	if !types.Sleep && !types.Activity && !types.Readiness && !types.HeartRate {
		types.Sleep = true
		types.Activity = true
		types.Readiness = true
	}

	return types
}

func wordPattern(words ...string) *regexp.Regexp {
	return regexp.MustCompile(`\b(?:` + strings.Join(words, "|") + `)s?\b`)
}
