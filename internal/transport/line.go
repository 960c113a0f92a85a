package transport

import (
	"errors"
	"fmt"
	"strings"
)

// MaxLineLen bounds a single line in both directions. GRBL itself keeps lines
// far shorter; the limit only protects against a runaway stream.
const MaxLineLen = 4096

var (
	errEmptyLine   = errors.New("line is empty")
	ErrLineTooLong = fmt.Errorf("line exceeds %d bytes", MaxLineLen)
)

// encodeLine validates one outbound line and appends the "\n" terminator.
func encodeLine(line string) ([]byte, error) {
	line = strings.TrimRight(line, "\r\n")
	switch {
	case line == "":
		return nil, errEmptyLine
	case len(line) > MaxLineLen:
		return nil, fmt.Errorf("encode line: %w", ErrLineTooLong)
	case strings.ContainsAny(line, "\r\n"):
		return nil, errors.New("line contains a line break")
	}

	return []byte(line + "\n"), nil
}

// readLine collects bytes up to the next "\n". Carriage returns are dropped so
// "\r\n" devices read the same as "\n" ones, and empty lines are skipped.
func readLine(next func() (byte, error)) (string, error) {
	var sb strings.Builder
	for {
		b, err := next()
		if err != nil {
			return "", fmt.Errorf("read line: %w", err)
		}
		switch {
		case b == '\r':
		case b == '\n' && sb.Len() == 0:
		case b == '\n':
			return sb.String(), nil
		case sb.Len() >= MaxLineLen:
			return "", fmt.Errorf("read line: %w", ErrLineTooLong)
		default:
			sb.WriteByte(b)
		}
	}
}
