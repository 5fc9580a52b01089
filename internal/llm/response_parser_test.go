package llm

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		wantJSON string
	}{
		{"plain JSON object", `{"key": "value"}`, `{"key": "value"}`},
		{"markdown code block", "```json\n{\"key\": \"value\"}\n```", `{"key": "value"}`},
		{"surrounding text", "Here it is:\n{\"key\": \"value\"}\nDone", `{"key": "value"}`},
		{"nested object", `{"outer": {"inner": "value"}}`, `{"outer": {"inner": "value"}}`},
		{"braces inside strings", `{"text": "a } b { c"} trailing`, `{"text": "a } b { c"}`},
		{"escaped quotes", `{"text": "He said \"hi\""}`, `{"text": "He said \"hi\""}`},
		{"no JSON present", "no json here", "no json here"},
		{"empty string", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.wantJSON, extractJSON(tt.input))
		})
	}
}

func TestParseMatchResponse_Link(t *testing.T) {
	resp, err := ParseMatchResponse("```json\n" + `{"action":"LINK","matchedEntityId":" mat-1 ","confidence":0.92,"reasoning":"synonym"}` + "\n```")
	require.NoError(t, err)
	assert.Equal(t, ActionLink, resp.Action)
	assert.Equal(t, "mat-1", resp.MatchedEntityID)
	assert.InDelta(t, 0.92, resp.Confidence, 1e-9)
}

func TestParseMatchResponse_Create(t *testing.T) {
	resp, err := ParseMatchResponse(`Sure! {"action":"create","newEntitySpec":{"name":{"en":"Carrara Marble","he":"שיש קררה"},"categoryId":"stone-finishes","finish":["Honed"," honed ","Polished"],"colors":["white"]},"reasoning":"not in catalogue"}`)
	require.NoError(t, err)
	assert.Equal(t, ActionCreate, resp.Action)
	require.NotNil(t, resp.NewEntitySpec)
	assert.Equal(t, "Carrara Marble", resp.NewEntitySpec.Name.En)
	assert.Equal(t, "שיש קררה", resp.NewEntitySpec.Name.He)
	assert.Equal(t, "stone-finishes", resp.NewEntitySpec.CategoryID)
	assert.Equal(t, []string{"honed", "polished"}, resp.NewEntitySpec.Finish)
	assert.Equal(t, "not in catalogue", resp.Reasoning)
}

func TestParseMatchResponse_CreateDefaults(t *testing.T) {
	resp, err := ParseMatchResponse(`{"action":"create","newEntitySpec":{"name":{"en":"Rattan"}},"confidence":3}`)
	require.NoError(t, err)
	assert.Equal(t, "Rattan", resp.NewEntitySpec.Name.He, "Hebrew name falls back to English")
	assert.NotEmpty(t, resp.Reasoning)
	assert.Equal(t, 1.0, resp.Confidence)
}

func TestParseMatchResponse_Invalid(t *testing.T) {
	inputs := map[string]string{
		"not json":            "I think it is oak",
		"unknown action":      `{"action":"merge"}`,
		"link without id":     `{"action":"link","matchedEntityId":""}`,
		"create without spec": `{"action":"create"}`,
		"create without name": `{"action":"create","newEntitySpec":{"name":{"he":"אלון"}}}`,
		"truncated":           `{"action":"create","newEntitySpec":{"name":`,
	}
	for name, input := range inputs {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMatchResponse(input)
			require.Error(t, err)
			assert.True(t, errors.Is(err, ErrUnparsableResponse))
		})
	}
}

func TestCleanAttributes(t *testing.T) {
	got := cleanAttributes([]string{"A", "b", "", "a", "c", "d", "e"})
	assert.Equal(t, []string{"a", "b", "c", "d"}, got)
	assert.Nil(t, cleanAttributes(nil))
}
