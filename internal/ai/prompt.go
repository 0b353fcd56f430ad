package ai

import (
	"fmt"
)

const systemPrompt = `You are a clinical documentation assistant.
You convert a clinician's dictation transcript into a structured clinical note.
Be accurate and neutral. Use only information stated in the transcript.
Do NOT invent findings, diagnoses, medications or codes.
If a section is not covered by the transcript, write "Not documented." for it.
Return a single valid JSON object and nothing else.`

// BuildPrompt builds the system and user prompts for note extraction
func BuildPrompt(transcript string, noteTypeHint string) (string, string) {
	userPrompt := fmt.Sprintf(`Transcript:
"""
%s
"""

Suggested note type: %s

Tasks:
1. Choose noteType, one of: progress_note, consult_note, history_and_physical, procedure_note, discharge_summary.
2. Write subjective, objective, assessment and plan as plain strings.
3. List ICD-10 codes that are explicitly supported by the assessment in icd10Codes.
4. List urgent findings the clinician must not miss in redFlags.
5. Put the follow-up instruction in followUp, or "" if none was dictated.

Return JSON exactly in this format (all keys required, use [] or "" when there is no data):

{
  "noteType": "%s",
  "subjective": "...",
  "objective": "...",
  "assessment": "...",
  "plan": "...",
  "icd10Codes": ["J20.9"],
  "redFlags": [],
  "followUp": "..."
}`, transcript, noteTypeHint, noteTypeHint)

	return systemPrompt, userPrompt
}
