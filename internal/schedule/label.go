// Package schedule turns raw panel schedules into calendar event candidates:
// classifying schedule names into (game, event, kind) labels and pairing
// start/stop occurrences into bounded events.
package schedule

import (
	"regexp"
	"strings"
	"time"
)

// Kind distinguishes schedules that open an event, close one, or stand alone.
type Kind string

const (
	KindStart  Kind = "start"
	KindStop   Kind = "stop"
	KindSingle Kind = "single"
)

// Occurrence is one expanded firing of one panel schedule. It only lives for
// the duration of a sync pass.
type Occurrence struct {
	ScheduleID string
	GameName   string
	EventName  string
	Kind       Kind
	At         time.Time
}

// Candidate is a paired or singleton event ready for storage.
type Candidate struct {
	ScheduleID string
	GameName   string
	EventName  string
	Start      time.Time
	Stop       *time.Time
}

var (
	startWordRe = regexp.MustCompile(`(?i)\bstart\b`)
	stopWordRe  = regexp.MustCompile(`(?i)\bstop\b`)
	markerRe    = regexp.MustCompile(`(?i)\b(start|stop)\b`)
)

// Classify derives (game, event, kind) from a schedule name.
//
// "start" anywhere as a whole word wins over "stop". The matched marker words
// are stripped to form the base label; a "game: event" colon split overrides
// the default game name. Empty pieces fall back to the default game and the
// literal "Event".
func Classify(rawName, defaultGameName string) (gameName, eventName string, kind Kind) {
	raw := strings.TrimSpace(rawName)
	if raw == "" {
		raw = "Schedule"
	}

	kind = KindSingle
	if startWordRe.MatchString(raw) {
		kind = KindStart
	} else if stopWordRe.MatchString(raw) {
		kind = KindStop
	}

	base := strings.TrimSpace(markerRe.ReplaceAllString(raw, ""))
	if base == "" {
		base = raw
	}

	gameName = defaultGameName
	if gamePart, eventPart, found := strings.Cut(base, ":"); found {
		if trimmed := strings.TrimSpace(gamePart); trimmed != "" {
			gameName = trimmed
		}
		eventName = strings.TrimSpace(eventPart)
	} else {
		eventName = strings.TrimSpace(base)
	}
	if eventName == "" {
		eventName = "Event"
	}
	return gameName, eventName, kind
}
