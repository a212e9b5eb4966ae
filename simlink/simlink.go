// Package simlink talks to a running simulation over a websocket: it reads the
// initial snapshot, publishes plans and drives plan execution turn by turn.
//
// Every message is a JSON envelope {"type": ..., "data": ...}.
package simlink

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/erikjearl/SEPIA-Environments/game"
	"github.com/erikjearl/SEPIA-Environments/rules"
)

// Event types.
const (
	EventSnapshot = "snapshot"
	EventPlan     = "plan"
	EventCommands = "commands"
	EventFeedback = "feedback"
	EventDone     = "done"
)

var (
	// ErrCommandFailed means the simulation reported a command as failed.
	ErrCommandFailed = errors.New("command failed")
	// ErrStalled means a step stayed incomplete for too many turns.
	ErrStalled = errors.New("step stalled")
	// ErrUnexpectedEvent means the peer sent an event out of protocol order.
	ErrUnexpectedEvent = errors.New("unexpected event")
)

// Event is the wire envelope.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// PlanMessage is the payload of a "plan" event.
type PlanMessage struct {
	RunID   string   `json:"run_id"`
	Outcome string   `json:"outcome"`
	Cost    float64  `json:"cost"`
	Actions []string `json:"actions"`
}

// CommandsMessage is the payload of a "commands" event. Commands is empty on
// turns where the previous step is still running.
type CommandsMessage struct {
	Step     int             `json:"step"`
	Commands []rules.Command `json:"commands"`
}

// UnitResult is one unit's verdict on its last command.
type UnitResult struct {
	UnitID   int            `json:"unit_id"`
	Feedback rules.Feedback `json:"feedback"`
}

// FeedbackMessage is the payload of a "feedback" event, sent by the
// simulation after every turn.
type FeedbackMessage struct {
	Turn    int             `json:"turn"`
	Results []UnitResult    `json:"results"`
	Units   []game.UnitView `json:"units"`
}

// Config holds connection settings.
type Config struct {
	URL              string
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	WriteTimeout     time.Duration
	// MaxIncompleteTurns bounds how long one step may run.
	MaxIncompleteTurns int
}

func DefaultConfig() Config {
	return Config{
		HandshakeTimeout:   10 * time.Second,
		ReadTimeout:        30 * time.Second,
		WriteTimeout:       10 * time.Second,
		MaxIncompleteTurns: 1000,
	}
}

// Client is one connection to a simulation. Reads must come from a single
// goroutine; writes are serialized.
type Client struct {
	cfg  Config
	conn *websocket.Conn
	log  *slog.Logger

	wmu sync.Mutex
}

// Dial connects to cfg.URL.
func Dial(ctx context.Context, cfg Config, log *slog.Logger) (*Client, error) {
	def := DefaultConfig()
	if cfg.HandshakeTimeout <= 0 {
		cfg.HandshakeTimeout = def.HandshakeTimeout
	}
	if cfg.ReadTimeout <= 0 {
		cfg.ReadTimeout = def.ReadTimeout
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = def.WriteTimeout
	}
	if cfg.MaxIncompleteTurns <= 0 {
		cfg.MaxIncompleteTurns = def.MaxIncompleteTurns
	}
	if log == nil {
		log = slog.Default()
	}

	dialer := websocket.Dialer{
		HandshakeTimeout: cfg.HandshakeTimeout,
	}
	conn, _, err := dialer.DialContext(ctx, cfg.URL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to connect: %w", err)
	}
	log.Info("simulation connected", "url", cfg.URL)
	return &Client{cfg: cfg, conn: conn, log: log}, nil
}

// Close sends a normal close frame and closes the connection.
func (c *Client) Close() error {
	c.wmu.Lock()
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	c.wmu.Unlock()
	return c.conn.Close()
}

func (c *Client) send(typ string, data any) error {
	raw, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("encode %s: %w", typ, err)
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	if err := c.conn.WriteJSON(Event{Type: typ, Data: raw}); err != nil {
		return fmt.Errorf("write %s: %w", typ, err)
	}
	return nil
}

func (c *Client) read(ctx context.Context) (Event, error) {
	if err := ctx.Err(); err != nil {
		return Event{}, err
	}
	deadline := time.Now().Add(c.cfg.ReadTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	c.conn.SetReadDeadline(deadline)

	_, message, err := c.conn.ReadMessage()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return Event{}, ctxErr
		}
		return Event{}, fmt.Errorf("read error: %w", err)
	}
	var ev Event
	if err := json.Unmarshal(message, &ev); err != nil {
		return Event{}, fmt.Errorf("decode event: %w", err)
	}
	return ev, nil
}

func (c *Client) expect(ctx context.Context, typ string, into any) error {
	ev, err := c.read(ctx)
	if err != nil {
		return err
	}
	if ev.Type != typ {
		return fmt.Errorf("%w: got %q, want %q", ErrUnexpectedEvent, ev.Type, typ)
	}
	if err := json.Unmarshal(ev.Data, into); err != nil {
		return fmt.Errorf("decode %s: %w", typ, err)
	}
	return nil
}

// ReadSnapshot waits for the simulation's initial state.
func (c *Client) ReadSnapshot(ctx context.Context) (game.Snapshot, error) {
	var snap game.Snapshot
	if err := c.expect(ctx, EventSnapshot, &snap); err != nil {
		return game.Snapshot{}, err
	}
	if err := snap.Validate(); err != nil {
		return game.Snapshot{}, err
	}
	c.log.Info("snapshot received",
		"workers", len(snap.Workers),
		"resources", len(snap.Resources),
		"required_gold", snap.RequiredGold,
		"required_wood", snap.RequiredWood,
	)
	return snap, nil
}

// PublishPlan sends a human-readable copy of a plan.
func (c *Client) PublishPlan(msg PlanMessage) error {
	return c.send(EventPlan, msg)
}
