package relevance

import (
	"testing"

	"github.com/collinvine/talk-to-oura/internal/domain"
	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  domain.DataTypes
	}{
		{
			name:  "no keywords defaults to everything but heart rate",
			query: "How am I doing?",
			want:  domain.DataTypes{Sleep: true, Activity: true, Readiness: true, HeartRate: false},
		},
		{
			name:  "resting heart rate is heart rate only",
			query: "What's my resting heart rate?",
			want:  domain.DataTypes{HeartRate: true},
		},
		{
			name:  "sleep query",
			query: "How was my sleep last night?",
			want:  domain.DataTypes{Sleep: true},
		},
		{
			name:  "steps query",
			query: "How many steps did I take?",
			want:  domain.DataTypes{Activity: true},
		},
		{
			name:  "readiness query",
			query: "Am I ready for a hard workout?",
			want:  domain.DataTypes{Readiness: true, Activity: true},
		},
		{
			name:  "bpm query",
			query: "what was my BPM during the day",
			want:  domain.DataTypes{HeartRate: true},
		},
		{
			name:  "mixed sleep and heart rate",
			query: "Did my pulse drop while I was in bed?",
			want:  domain.DataTypes{Sleep: true, HeartRate: true},
		},
		{
			name:  "case insensitive",
			query: "SLEEP SCORE?",
			want:  domain.DataTypes{Sleep: true},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.query))
		})
	}
}
