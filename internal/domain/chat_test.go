package domain

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoneEventAlwaysCarriesOuraDataKey(t *testing.T) {
	raw, err := json.Marshal(DoneEvent(nil))
	require.NoError(t, err)
	assert.JSONEq(t, `{"ouraData": null, "done": true}`, string(raw))
}

func TestDoneEventWithData(t *testing.T) {
	data := &HealthData{Sleep: []SleepRecord{{Day: "2025-06-09"}}}

	raw, err := json.Marshal(DoneEvent(data))
	require.NoError(t, err)

	assert.Contains(t, string(raw), `"ouraData"`)
	assert.Contains(t, string(raw), `"done":true`)
	assert.Contains(t, string(raw), `"sleep"`)
}

func TestContentAndErrorEventsStayMinimal(t *testing.T) {
	raw, err := json.Marshal(ContentEvent("hello"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"content": "hello"}`, string(raw))

	raw, err = json.Marshal(ErrorEvent("boom"))
	require.NoError(t, err)
	assert.JSONEq(t, `{"error": "boom"}`, string(raw))
}
