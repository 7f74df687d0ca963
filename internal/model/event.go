package model

import (
	"strings"
	"time"
)

// Phase marks which end of an event a record describes.
type Phase string

const (
	PhaseStart Phase = "start"
	PhaseEnd   Phase = "end"
)

// EventRecord is one line of the event log.
type EventRecord struct {
	Time  time.Time
	Phase Phase
	Name  string
	ID    string
}

// Line renders the record without the trailing newline.
func (r EventRecord) Line() string {
	return strings.Join([]string{FormatTime(r.Time), string(r.Phase), r.Name, r.ID}, Separator)
}
