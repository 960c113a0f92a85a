package settings

// Message selects the hint shown next to a field.
type Message int

const (
	MessageNone Message = iota
	// MessageRequired asks the user to fill an empty field.
	MessageRequired
	// MessageReady marks a changed value that can be submitted.
	MessageReady
)

// ValidationState summarizes one entry for display.
type ValidationState struct {
	Message  Message
	Valid    bool
	Modified bool
}

// Idle reports whether no call to action should be offered for the field.
func (v ValidationState) Idle() bool {
	return v.Message == MessageNone && v.Valid && !v.Modified
}

// Validate computes the display state of an entry and records HasModified and
// HasError on it. Comment entries are left untouched.
func Validate(e *Entry) ValidationState {
	if e == nil || !e.Kind.Editable() {
		return ValidationState{Valid: true}
	}

	e.HasModified = e.Dirty()
	e.HasError = e.Invalid()

	switch {
	case e.HasError:
		return ValidationState{Message: MessageRequired, Valid: false, Modified: true}
	case e.HasModified:
		return ValidationState{Message: MessageReady, Valid: true, Modified: true}
	default:
		return ValidationState{Message: MessageNone, Valid: true, Modified: false}
	}
}
