package grbl

import (
	"strconv"
	"strings"
)

// TerminatorKind classifies the line that ends a GRBL reply.
type TerminatorKind int

const (
	TerminatorNone TerminatorKind = iota
	TerminatorOK
	TerminatorError
	TerminatorAlarm
)

// Terminator is a parsed reply terminator. Code is set for errors and alarms.
type Terminator struct {
	Kind TerminatorKind
	Code int
}

func ClassifyTerminator(line string) Terminator {
	line = strings.TrimSpace(line)
	lower := strings.ToLower(line)
	switch {
	case lower == "ok":
		return Terminator{Kind: TerminatorOK}
	case strings.HasPrefix(lower, "error:"):
		return Terminator{Kind: TerminatorError, Code: parseCode(line[len("error:"):])}
	case strings.HasPrefix(lower, "alarm:"):
		return Terminator{Kind: TerminatorAlarm, Code: parseCode(line[len("alarm:"):])}
	default:
		return Terminator{Kind: TerminatorNone}
	}
}

func IsTerminator(line string) bool {
	return ClassifyTerminator(line).Kind != TerminatorNone
}

// IsStartupBanner reports the welcome line GRBL prints after every reset, for
// example "Grbl 1.1h ['$' for help]".
func IsStartupBanner(line string) bool {
	line = strings.TrimSpace(line)

	return strings.HasPrefix(line, "Grbl ") || strings.HasPrefix(line, "GrblHAL ")
}

// IsNoise reports lines GRBL emits asynchronously that never belong to a reply:
// realtime status reports, feedback messages, startup banners and echoes.
func IsNoise(line string) bool {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return true
	case strings.HasPrefix(line, "<") && strings.HasSuffix(line, ">"):
		return true
	case strings.HasPrefix(line, "[MSG:"), strings.HasPrefix(line, "[echo:"), strings.HasPrefix(line, "[GC:"):
		return true
	case IsStartupBanner(line):
		return true
	case line == "$$":
		return true
	default:
		return false
	}
}

// ErrorKey is the message catalog key for an error:N reply.
func ErrorKey(code int) string {
	return "grbl.error." + strconv.Itoa(code)
}

// AlarmKey is the message catalog key for an ALARM:N reply.
func AlarmKey(code int) string {
	return "grbl.alarm." + strconv.Itoa(code)
}

func parseCode(raw string) int {
	code, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0
	}

	return code
}
