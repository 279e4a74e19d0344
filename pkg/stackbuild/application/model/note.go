package model

import "fmt"

type NoteLevel string

const (
	NoteInfo    NoteLevel = "info"
	NoteWarning NoteLevel = "warning"
)

// Note is a non-fatal observation made during resolution, surfaced to
// the caller instead of being logged from pure code.
type Note struct {
	Level   NoteLevel
	Message string
}

func InfoNote(format string, args ...any) Note {
	return Note{Level: NoteInfo, Message: fmt.Sprintf(format, args...)}
}

func WarningNote(format string, args ...any) Note {
	return Note{Level: NoteWarning, Message: fmt.Sprintf(format, args...)}
}
