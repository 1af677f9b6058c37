package notify

import (
	"fmt"
	"strings"
)

// Level is the severity of a notification.
type Level string

const (
	LevelDebug    Level = "DEBUG"
	LevelInfo     Level = "INFO"
	LevelWarning  Level = "WARNING"
	LevelError    Level = "ERROR"
	LevelCritical Level = "CRITICAL"
)

var levelRanks = map[Level]int{
	LevelDebug:    0,
	LevelInfo:     1,
	LevelWarning:  2,
	LevelError:    3,
	LevelCritical: 4,
}

// Rank returns the ordering of the level, higher is more severe.
// Unknown levels rank below DEBUG.
func (l Level) Rank() int {
	if rank, ok := levelRanks[l]; ok {
		return rank
	}
	return -1
}

// Urgent reports whether the level warrants operator attention.
func (l Level) Urgent() bool {
	return l.Rank() >= LevelError.Rank()
}

// ParseLevel normalizes a level name.
func ParseLevel(s string) (Level, error) {
	l := Level(strings.ToUpper(strings.TrimSpace(s)))
	if _, ok := levelRanks[l]; !ok {
		return "", fmt.Errorf("invalid notification level %q", s)
	}
	return l, nil
}
