package typing

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fakero0t/messageAI-sub004/interfaces"
)

const (
	// DefaultDebounce is the idle interval after which a stop is
	// broadcast automatically.
	DefaultDebounce = 2500 * time.Millisecond
	// DefaultEntryTTL is how long a received typing entry stays valid
	// without a refresh before the consumer side discards it.
	DefaultEntryTTL = 5 * time.Second
)

// Broadcaster is the outgoing surface the coordinator needs from the
// remote store.
type Broadcaster interface {
	SendTyping(ctx context.Context, conversationID, userID, displayName string, typing bool) error
}

type entry struct {
	displayName string
	expiresAt   time.Time
}

// Coordinator tracks typing state for a single conversation: the local
// user's debounced broadcast and the set of remote users currently
// typing.
type Coordinator struct {
	mu sync.Mutex

	conversationID string
	selfID         string
	selfName       string

	remote   Broadcaster
	clock    interfaces.Clock
	debounce time.Duration
	entryTTL time.Duration

	typing        bool
	debounceTimer interfaces.Timer

	active map[string]entry

	onChange func(text string)
}

// NewCoordinator creates a coordinator for one conversation. A nil
// clock falls back to the system clock.
func NewCoordinator(conversationID, selfID, selfName string, remote Broadcaster, clock interfaces.Clock) *Coordinator {
	if clock == nil {
		clock = interfaces.SystemClock{}
	}
	return &Coordinator{
		conversationID: conversationID,
		selfID:         selfID,
		selfName:       selfName,
		remote:         remote,
		clock:          clock,
		debounce:       DefaultDebounce,
		entryTTL:       DefaultEntryTTL,
		active:         make(map[string]entry),
	}
}

// SetDebounce overrides the idle interval. Intended for configuration
// and tests; takes effect on the next keystroke.
func (c *Coordinator) SetDebounce(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.debounce = d
	}
}

// SetEntryTTL overrides the consumer-side staleness window.
func (c *Coordinator) SetEntryTTL(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.entryTTL = d
	}
}

// OnChange registers a callback invoked with the new display text
// whenever the set of typing users changes.
func (c *Coordinator) OnChange(fn func(text string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onChange = fn
}

// StartTyping records a keystroke: broadcasts presence with a refreshed
// expiry and re-arms the debounce timer. Safe to call on every
// keystroke.
func (c *Coordinator) StartTyping() {
	c.mu.Lock()
	c.typing = true
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
	}
	c.debounceTimer = c.clock.AfterFunc(c.debounce, c.debounceExpired)
	c.mu.Unlock()

	c.broadcast(true)
}

// StopTyping broadcasts immediate cessation and cancels the debounce
// timer. A no-op when the local user is not typing.
func (c *Coordinator) StopTyping() {
	c.mu.Lock()
	if !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	if c.debounceTimer != nil {
		c.debounceTimer.Stop()
		c.debounceTimer = nil
	}
	c.mu.Unlock()

	c.broadcast(false)
}

// debounceExpired fires when the idle interval elapses with no further
// keystroke and no explicit stop.
func (c *Coordinator) debounceExpired() {
	c.mu.Lock()
	if !c.typing {
		c.mu.Unlock()
		return
	}
	c.typing = false
	c.debounceTimer = nil
	c.mu.Unlock()

	logrus.WithFields(logrus.Fields{
		"conversation_id": c.conversationID,
		"user_id":         c.selfID,
	}).Debug("Typing debounce expired, broadcasting stop")
	c.broadcast(false)
}

func (c *Coordinator) broadcast(typing bool) {
	if c.remote == nil {
		return
	}
	go func() {
		if err := c.remote.SendTyping(context.Background(), c.conversationID, c.selfID, c.selfName, typing); err != nil {
			logrus.WithFields(logrus.Fields{
				"conversation_id": c.conversationID,
				"typing":          typing,
				"error":           err,
			}).Warn("Failed to broadcast typing state")
		}
	}()
}

// HandleEvent consumes a remote typing event. Events for the local user
// are ignored.
func (c *Coordinator) HandleEvent(ev interfaces.TypingEvent) {
	if ev.ConversationID != c.conversationID || ev.UserID == c.selfID {
		return
	}

	c.mu.Lock()
	if ev.Typing {
		expires := ev.ExpiresAt
		if expires.IsZero() {
			expires = c.clock.Now().Add(c.entryTTL)
		}
		c.active[ev.UserID] = entry{displayName: ev.DisplayName, expiresAt: expires}
	} else {
		delete(c.active, ev.UserID)
	}
	text := c.textLocked()
	fn := c.onChange
	c.mu.Unlock()

	if fn != nil {
		fn(text)
	}
}

// ClearUser removes a user's typing entry immediately. The reconciler
// calls this when a message from that sender arrives, since a message
// implies the sender stopped typing.
func (c *Coordinator) ClearUser(userID string) {
	c.mu.Lock()
	_, present := c.active[userID]
	if present {
		delete(c.active, userID)
	}
	text := c.textLocked()
	fn := c.onChange
	c.mu.Unlock()

	if present && fn != nil {
		fn(text)
	}
}

// Text returns the current display text, excluding entries whose expiry
// has passed even if no explicit stop was received.
func (c *Coordinator) Text() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.textLocked()
}

func (c *Coordinator) textLocked() string {
	now := c.clock.Now()
	names := make([]string, 0, len(c.active))
	for id, e := range c.active {
		if !e.expiresAt.After(now) {
			delete(c.active, id)
			continue
		}
		names = append(names, e.displayName)
	}
	sort.Strings(names)

	switch len(names) {
	case 0:
		return ""
	case 1:
		return names[0] + " is typing…"
	case 2:
		return names[0] + ", " + names[1] + " are typing…"
	default:
		return "Several people are typing…"
	}
}
