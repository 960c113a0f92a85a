package notifications

// Level tells the user how serious a notification is.
type Level string

const (
	LevelInfo  Level = "info"
	LevelError Level = "error"
)

// Payload is a generic user-facing notification payload.
type Payload struct {
	Level   Level
	Title   string
	Content string
}

// Sender sends notifications using a platform-specific backend.
type Sender interface {
	Send(payload Payload)
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(Payload)

func (f SenderFunc) Send(payload Payload) {
	f(payload)
}

// Fanout delivers every payload to all non-nil senders.
type Fanout []Sender

func (f Fanout) Send(payload Payload) {
	for _, sender := range f {
		if sender != nil {
			sender.Send(payload)
		}
	}
}
