package settings

import "strings"

// Kind tells renderers and the validator how an entry behaves.
type Kind int

const (
	// KindComment is a display-only line reported by the device.
	KindComment Kind = iota + 1
	// KindText is an editable free-text parameter.
	KindText
)

func (k Kind) String() string {
	switch k {
	case KindComment:
		return "comment"
	case KindText:
		return "text"
	default:
		return "unknown"
	}
}

// Editable reports whether entries of this kind carry a command tag and a value.
func (k Kind) Editable() bool {
	return k == KindText
}

// Entry is one machine settings row.
type Entry struct {
	Kind Kind
	// Command is the tag sent back to the device to apply a change, e.g. "$110".
	Command string
	Label   string
	Value   string
	// Initial is the last value confirmed by a fetch or a successful submit.
	Initial string

	HasModified bool
	HasError    bool
}

// NewComment builds a display-only entry.
func NewComment(text string) *Entry {
	return &Entry{Kind: KindComment, Value: text}
}

// NewText builds an editable entry whose value is already confirmed.
func NewText(command, label, value string) *Entry {
	return &Entry{
		Kind:    KindText,
		Command: command,
		Label:   label,
		Value:   value,
		Initial: value,
	}
}

func (e *Entry) Dirty() bool {
	return e.Value != e.Initial
}

func (e *Entry) Invalid() bool {
	return strings.TrimSpace(e.Value) == ""
}

// HasUnsavedChanges reports whether any entry was flagged as modified by the validator.
func HasUnsavedChanges(entries []*Entry) bool {
	for _, entry := range entries {
		if entry != nil && entry.Kind.Editable() && entry.HasModified {
			return true
		}
	}

	return false
}
