package repository

import "github.com/sweetginger/Nyogi/internal/repository"

// Concurrent appends may race for the same next seq; the loser retries.
const appendCaptionAttempts = 3

func defaultModality(modality string) string {
	if modality == "" {
		return repository.ModalityInPerson
	}
	return modality
}

func statusStrings(statuses []repository.SessionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}

func captionFromAppend(input repository.AppendCaptionInput, seq int) repository.Caption {
	return repository.Caption{
		MeetingID:  input.MeetingID,
		Seq:        seq,
		Speaker:    input.Speaker,
		StartMs:    input.StartMs,
		EndMs:      input.EndMs,
		SourceLang: input.SourceLang,
		SourceText: input.SourceText,
		TargetLang: input.TargetLang,
		TargetText: input.TargetText,
	}
}
