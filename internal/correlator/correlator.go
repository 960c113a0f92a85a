package correlator

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"github.com/skobkin/machinecfg/internal/bus"
	"github.com/skobkin/machinecfg/internal/connectors"
	"github.com/skobkin/machinecfg/internal/grbl"
)

// ContentConnectionLost is the feedback content used when the link drops
// while a reply is still being collected.
const ContentConnectionLost = "connection.lost"

const progressBuffer = 64

// Status is the outcome carried by a Feedback.
type Status string

const (
	StatusOK    Status = "ok"
	StatusError Status = "error"
)

// Feedback is the final outcome of one catch.
// Content is the collected payload on success and a message key on error.
// Total is the byte count of every line collected.
type Feedback struct {
	Status  Status
	Command string
	Content string
	Total   int
}

// Progress is emitted for every collected line.
type Progress struct {
	Chunk string
	Total int
}

// FilterFunc reports lines that must be ignored while collecting a reply.
type FilterFunc func(line string) bool

// Correlator matches inbound controller lines to the command that asked for
// them. The firmware answers every written line with exactly one terminator,
// in write order, so each written line owns one slot of a FIFO. A slot is a
// live catch collecting its reply or a discarding one that swallows lines up
// to its terminator.
type Correlator struct {
	bus    bus.MessageBus
	logger *slog.Logger

	mu    sync.Mutex
	queue []*Catch
}

func New(messageBus bus.MessageBus, logger *slog.Logger) *Correlator {
	if logger == nil {
		logger = slog.Default().With("component", "correlator")
	}

	return &Correlator{
		bus:    messageBus,
		logger: logger,
	}
}

func (c *Correlator) Start(ctx context.Context) {
	sub := c.bus.Subscribe(connectors.TopicLineIn, connectors.TopicConnStatus)
	go func() {
		defer c.bus.Unsubscribe(sub, connectors.TopicLineIn, connectors.TopicConnStatus)
		for {
			select {
			case <-ctx.Done():
				c.failAll(context.Cause(ctx).Error())

				return
			case raw, ok := <-sub:
				if !ok {
					return
				}
				switch event := raw.(type) {
				case connectors.Line:
					c.HandleLine(event.Text)
				case connectors.ConnectionStatus:
					if event.State != connectors.ConnectionStateConnected {
						c.failAll(ContentConnectionLost)
					}
				}
			}
		}
	}()
}

// StartCatch reserves the reply slot of the command about to be written and
// collects that reply for operation tag. It returns false when an operation
// with the same tag is still collecting.
func (c *Correlator) StartCatch(domain, tag string, filter FilterFunc) (*Catch, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.collectingLocked(tag) {
		c.logger.Debug("catch refused: operation already outstanding", "domain", domain, "tag", tag)

		return nil, false
	}

	catch := c.enqueueLocked(domain, tag, filter)
	c.logger.Debug("catch started", "domain", domain, "tag", tag, "queued", len(c.queue))

	return catch, true
}

// IgnoreReply reserves the reply slot of a command whose reply nobody collects,
// such as a setting update. The returned catch is already stopped. Withdraw it
// when the command could not be written.
func (c *Correlator) IgnoreReply(domain, command string) *Catch {
	c.mu.Lock()
	defer c.mu.Unlock()

	catch := c.enqueueLocked(domain, command, nil)
	catch.discard = true
	catch.stopOnce.Do(func() { close(catch.stopped) })
	c.logger.Debug("reply slot reserved", "domain", domain, "command", command, "queued", len(c.queue))

	return catch
}

// Outstanding reports whether a catch with tag is still collecting its reply.
func (c *Correlator) Outstanding(tag string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.collectingLocked(tag)
}

// Queued reports how many written commands still wait for their terminator.
func (c *Correlator) Queued() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.queue)
}

// HandleLine feeds one inbound line to the slot at the head of the queue.
func (c *Correlator) HandleLine(line string) {
	line = strings.TrimSpace(line)

	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.queue) == 0 {
		c.logger.Debug("line dropped: no outstanding command", "line", line)

		return
	}

	head := c.queue[0]
	if head.filter != nil && head.filter(line) {
		return
	}

	terminator := grbl.ClassifyTerminator(line)
	if head.discard {
		if terminator.Kind != grbl.TerminatorNone {
			c.removeLocked(head)
			c.logger.Debug("reply discarded", "domain", head.domain, "tag", head.tag, "terminator", line)
		}

		return
	}

	switch terminator.Kind {
	case grbl.TerminatorOK:
		c.completeLocked(head, Feedback{Status: StatusOK, Command: head.tag, Content: head.payload.String()})
	case grbl.TerminatorError:
		c.completeLocked(head, Feedback{Status: StatusError, Command: head.tag, Content: grbl.ErrorKey(terminator.Code)})
	case grbl.TerminatorAlarm:
		c.completeLocked(head, Feedback{Status: StatusError, Command: head.tag, Content: grbl.AlarmKey(terminator.Code)})
	default:
		head.payload.WriteString(line)
		head.payload.WriteByte('\n')
		head.total += len(line) + 1
		head.emitProgress(Progress{Chunk: line, Total: head.total})
	}
}

// failAll completes every live catch with content and empties the queue.
// Replies still in flight are lost together with the link.
func (c *Correlator) failAll(content string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for len(c.queue) > 0 {
		head := c.queue[0]
		if head.discard {
			c.removeLocked(head)

			continue
		}
		c.logger.Info("catch failed", "domain", head.domain, "tag", head.tag, "reason", content)
		c.completeLocked(head, Feedback{Status: StatusError, Command: head.tag, Content: content})
	}
}

func (c *Correlator) enqueueLocked(domain, tag string, filter FilterFunc) *Catch {
	catch := &Catch{
		owner:    c,
		domain:   domain,
		tag:      tag,
		filter:   filter,
		progress: make(chan Progress, progressBuffer),
		done:     make(chan Feedback, 1),
		stopped:  make(chan struct{}),
	}
	c.queue = append(c.queue, catch)

	return catch
}

func (c *Correlator) collectingLocked(tag string) bool {
	for _, queued := range c.queue {
		if !queued.discard && queued.tag == tag {
			return true
		}
	}

	return false
}

func (c *Correlator) completeLocked(catch *Catch, feedback Feedback) {
	c.removeLocked(catch)
	feedback.Total = catch.total
	catch.done <- feedback
	c.logger.Debug("catch completed", "domain", catch.domain, "tag", catch.tag, "status", feedback.Status, "bytes", catch.total)
}

// stop turns a live catch into a discarding slot. The command was written, so
// its terminator is still due and must not reach the next slot.
func (c *Correlator) stop(catch *Catch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !catch.discard && c.queuedLocked(catch) {
		catch.discard = true
		c.logger.Debug("catch stopped", "domain", catch.domain, "tag", catch.tag)
	}
	catch.stopOnce.Do(func() { close(catch.stopped) })
}

// withdraw drops the slot of a command that never reached the wire.
func (c *Correlator) withdraw(catch *Catch) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.removeLocked(catch) {
		c.logger.Debug("reply slot withdrawn", "domain", catch.domain, "tag", catch.tag)
	}
	catch.discard = true
	catch.stopOnce.Do(func() { close(catch.stopped) })
}

func (c *Correlator) queuedLocked(catch *Catch) bool {
	for _, queued := range c.queue {
		if queued == catch {
			return true
		}
	}

	return false
}

func (c *Correlator) removeLocked(catch *Catch) bool {
	for i, queued := range c.queue {
		if queued == catch {
			c.queue = append(c.queue[:i], c.queue[i+1:]...)

			return true
		}
	}

	return false
}
