package grbl

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/skobkin/machinecfg/internal/settings"
)

const (
	// CommandEeprom queries every persisted setting.
	CommandEeprom = "eeprom"

	querySettings = "$$"
)

// Command is an outbound query produced by the processor.
type Command struct {
	Cmd string
}

// Processor builds GRBL commands and turns raw replies into settings entries.
type Processor struct{}

func NewProcessor() *Processor {
	return &Processor{}
}

func (p *Processor) Command(kind string) (Command, error) {
	switch kind {
	case CommandEeprom:
		return Command{Cmd: querySettings}, nil
	default:
		return Command{}, fmt.Errorf("unsupported command kind: %q", kind)
	}
}

var settingLine = regexp.MustCompile(`^(\$[0-9A-Za-z_]+)=([^()]*?)\s*(?:\((.*)\))?\s*$`)

// FormatEeprom parses a `$$` reply. Every `$<n>=<value>` line becomes an
// editable entry, any other non-blank line becomes a comment.
func (p *Processor) FormatEeprom(raw string) []*settings.Entry {
	lines := strings.Split(strings.ReplaceAll(raw, "\r\n", "\n"), "\n")
	out := make([]*settings.Entry, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || IsTerminator(line) {
			continue
		}
		match := settingLine.FindStringSubmatch(line)
		if match == nil {
			out = append(out, settings.NewComment(line))
			continue
		}
		command := match[1]
		label := strings.TrimSpace(match[3])
		if label == "" {
			label = SettingDescription(command)
		}
		out = append(out, settings.NewText(command, label, strings.TrimSpace(match[2])))
	}

	return out
}

// UpdateCommand builds the command that stores value under the setting tag.
func (p *Processor) UpdateCommand(command, value string) string {
	return UpdateCommand(command, value)
}

func UpdateCommand(command, value string) string {
	return command + "=" + strings.TrimSpace(value)
}
