package ai

import (
	"strings"
)

// Note types the engine is asked to choose from.
const (
	NoteTypeProgress         = "progress_note"
	NoteTypeConsult          = "consult_note"
	NoteTypeHistoryPhysical  = "history_and_physical"
	NoteTypeProcedure        = "procedure_note"
	NoteTypeDischargeSummary = "discharge_summary"
)

var noteTypeKeywords = []struct {
	noteType string
	keywords []string
}{
	{NoteTypeDischargeSummary, []string{"discharge", "discharged", "hospital course", "admitted on"}},
	{NoteTypeProcedure, []string{"procedure", "incision", "anesthesia", "sutured", "biopsy", "specimen"}},
	{NoteTypeConsult, []string{"consult", "referred by", "referral", "asked to see"}},
	{NoteTypeHistoryPhysical, []string{"history of present illness", "past medical history", "review of systems", "new patient"}},
	{NoteTypeProgress, []string{"follow up", "follow-up", "since last visit", "returns", "interval"}},
}

// DetectNoteType guesses the note type from keyword counts. It is only a hint
// passed to the engine; the engine's own noteType is what gets stored.
func DetectNoteType(transcript string) string {
	transcript = strings.ToLower(transcript)

	best := NoteTypeProgress
	bestCount := 0
	for _, entry := range noteTypeKeywords {
		count := 0
		for _, keyword := range entry.keywords {
			if strings.Contains(transcript, keyword) {
				count++
			}
		}
		if count > bestCount {
			best = entry.noteType
			bestCount = count
		}
	}
	return best
}
