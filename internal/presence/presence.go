// Package presence broadcasts which game is being simulated.
package presence

import (
	"errors"
	"sync"
	"time"

	"github.com/dsqprocess/dsqprocess/internal/logging"
)

// ClientID identifies the application to the presence service
const ClientID = "1391260707542143046"

// ErrClosed is returned after Close
var ErrClosed = errors.New("presence client closed")

// Activity is what the presence service displays
type Activity struct {
	Details    string    `json:"details"`
	State      string    `json:"state"`
	Game       string    `json:"game,omitempty"`
	LargeImage string    `json:"large_image"`
	LargeText  string    `json:"large_text"`
	Start      time.Time `json:"start"`
}

// NewActivity builds the activity for game; an empty game is the idle state
func NewActivity(game string, start time.Time) Activity {
	a := Activity{
		Details:    "Simulando juego",
		Game:       game,
		LargeImage: "dsqprocess_logo",
		LargeText:  "DSQProcess - Discord Quest Process",
		Start:      start,
	}
	if game != "" {
		a.State = "Jugando: " + game
	} else {
		a.State = "Esperando..."
	}
	return a
}

// Broadcaster publishes the simulated game
type Broadcaster interface {
	SetActivity(game string) error
	// Reset returns to the idle activity
	Reset() error
	// Close clears the activity and disconnects
	Close() error
}

// LogBroadcaster records activity changes through the logger and keeps the current activity
// for the status surfaces.
type LogBroadcaster struct {
	mu      sync.Mutex
	logger  *logging.Logger
	start   time.Time
	current *Activity
	closed  bool
}

// NewLogBroadcaster creates a LogBroadcaster
func NewLogBroadcaster(logger *logging.Logger) *LogBroadcaster {
	if logger == nil {
		logger = logging.Discard()
	}
	return &LogBroadcaster{
		logger: logger.Component("presence"),
		start:  time.Now(),
	}
}

// SetActivity publishes game
func (b *LogBroadcaster) SetActivity(game string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return ErrClosed
	}
	a := NewActivity(game, b.start)
	b.current = &a
	b.logger.Info("presence updated", logging.Fields{"state": a.State, "client_id": ClientID})
	return nil
}

// Reset publishes the idle activity
func (b *LogBroadcaster) Reset() error {
	return b.SetActivity("")
}

// Close clears the activity; later calls fail with ErrClosed
func (b *LogBroadcaster) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	b.closed = true
	b.current = nil
	b.logger.Info("presence cleared")
	return nil
}

// Current returns the published activity, if any
func (b *LogBroadcaster) Current() (Activity, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.current == nil {
		return Activity{}, false
	}
	return *b.current, true
}

// Nop discards every update
type Nop struct{}

func (Nop) SetActivity(string) error { return nil }
func (Nop) Reset() error             { return nil }
func (Nop) Close() error             { return nil }
