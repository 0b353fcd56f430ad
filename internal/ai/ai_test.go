package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDetectNoteType(t *testing.T) {
	tests := []struct {
		transcript string
		want       string
	}{
		{"Patient returns for follow up of hypertension.", NoteTypeProgress},
		{"Asked to see this patient, referred by Dr. Lee, consult for syncope.", NoteTypeConsult},
		{"Procedure: skin biopsy under local anesthesia, specimen sent.", NoteTypeProcedure},
		{"Patient discharged home, hospital course uncomplicated.", NoteTypeDischargeSummary},
		{"New patient. History of present illness: cough. Past medical history: asthma.", NoteTypeHistoryPhysical},
		{"Cough for three days.", NoteTypeProgress},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, DetectNoteType(tt.transcript), tt.transcript)
	}
}

func TestBuildPrompt(t *testing.T) {
	system, user := BuildPrompt("Cough for three days.", NoteTypeProgress)

	assert.Contains(t, system, "Do NOT invent")
	assert.Contains(t, user, "Cough for three days.")
	assert.Contains(t, user, `"noteType": "progress_note"`)
	for _, key := range []string{"subjective", "objective", "assessment", "plan", "icd10Codes", "redFlags", "followUp"} {
		assert.Contains(t, user, `"`+key+`"`)
	}
}

func TestOpenAIEngine_Complete(t *testing.T) {
	var body map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/chat/completions", r.URL.Path)
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[{"index":0,"message":{"role":"assistant","content":"{\"noteType\":\"progress_note\"}"},"finish_reason":"stop"}],"usage":{"prompt_tokens":10,"completion_tokens":5,"total_tokens":15}}`))
	}))
	defer srv.Close()

	engine := NewOpenAIEngine("sk-test", srv.URL+"/v1", "gpt-4o-mini")
	out, err := engine.Complete(context.Background(), "sys", "user")
	require.NoError(t, err)

	assert.Equal(t, `{"noteType":"progress_note"}`, out)
	assert.Equal(t, "gpt-4o-mini", engine.Model())
	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, map[string]any{"type": "json_object"}, body["response_format"])
	assert.InDelta(t, 0, body["temperature"], 1e-6)
}

func TestOpenAIEngine_NoChoices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id":"c1","object":"chat.completion","choices":[]}`))
	}))
	defer srv.Close()

	_, err := NewOpenAIEngine("sk-test", srv.URL+"/v1", "").Complete(context.Background(), "sys", "user")
	assert.ErrorContains(t, err, "no choices")
}
