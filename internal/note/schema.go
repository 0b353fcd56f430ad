// Package note validates extraction engine output against the structured note schema.
package note

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"medscribe/internal/model"
	"medscribe/pkg/errors"
)

var requiredFields = []string{"noteType", "subjective", "objective", "assessment", "plan"}

// Parse decodes raw engine output into a NoteResult.
// Unparseable input wraps errors.ErrInvalidJSON. Schema violations return an
// errors.ValidationError naming every offending field in schema order.
// Values are stored verbatim; nothing is trimmed or rewritten.
func Parse(raw string) (*model.NoteResult, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrInvalidJSON, err)
	}
	if fields == nil {
		return nil, fmt.Errorf("%w: top-level value is not an object", errors.ErrInvalidJSON)
	}

	var result model.NoteResult
	var bad []string

	required := map[string]*string{
		"noteType":   &result.NoteType,
		"subjective": &result.Subjective,
		"objective":  &result.Objective,
		"assessment": &result.Assessment,
		"plan":       &result.Plan,
	}
	for _, name := range requiredFields {
		v, ok := fields[name]
		if !ok || !decodeString(v, required[name]) {
			bad = append(bad, name)
		}
	}

	var ok bool
	if result.ICD10Codes, ok = optionalStrings(fields["icd10Codes"]); !ok {
		bad = append(bad, "icd10Codes")
	}
	if result.RedFlags, ok = optionalStrings(fields["redFlags"]); !ok {
		bad = append(bad, "redFlags")
	}
	if v, present := fields["followUp"]; present && !isNull(v) && !decodeString(v, &result.FollowUp) {
		bad = append(bad, "followUp")
	}

	if len(bad) > 0 {
		return nil, errors.ValidationError{
			Fields:  bad,
			Message: "missing or non-string fields: " + strings.Join(bad, ", "),
		}
	}
	return &result, nil
}

func decodeString(v json.RawMessage, dst *string) bool {
	if len(v) == 0 || v[0] != '"' {
		return false
	}
	return json.Unmarshal(v, dst) == nil
}

// optionalStrings treats an absent or null value as an empty list
func optionalStrings(v json.RawMessage) ([]string, bool) {
	if len(v) == 0 || isNull(v) {
		return []string{}, true
	}
	if v[0] != '[' {
		return nil, false
	}
	var items []json.RawMessage
	if err := json.Unmarshal(v, &items); err != nil {
		return nil, false
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		var s string
		if !decodeString(item, &s) {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}

func isNull(v json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(v), []byte("null"))
}
