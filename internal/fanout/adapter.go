// Package fanout bridges local room broadcasts to a shared Redis pub/sub
// channel so horizontally scaled instances behave as one logical room. The
// adapter degrades rather than fails: without a broker (or with a broken
// one) the service keeps running with per-instance delivery only.
package fanout

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/boardcast/boardcast/internal/obs"
)

// State is the adapter's lifecycle position. Transitions are one-way in the
// base design; there is no automatic reconnect out of Degraded.
type State int32

const (
	StateUnconfigured State = iota
	StateConnecting
	StateReady
	StateDegraded
)

func (s State) String() string {
	switch s {
	case StateUnconfigured:
		return "unconfigured"
	case StateConnecting:
		return "connecting"
	case StateReady:
		return "ready"
	case StateDegraded:
		return "degraded"
	default:
		return "unknown"
	}
}

// ErrBrokerUnavailable reports that an event could not be replicated to peer
// instances. Callers log it and continue with local delivery; it is never
// surfaced to clients.
var ErrBrokerUnavailable = errors.New("broker unavailable")

// Envelope is the wire form of a replicated broadcast. Origin identifies the
// publishing instance so it can drop its own events when they loop back.
type Envelope struct {
	Origin  string          `json:"origin"`
	Room    string          `json:"room"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sentAt"`
}

// Handler receives broadcasts published by peer instances.
type Handler func(roomID, event string, payload json.RawMessage)

const (
	defaultChannel      = "boardcast:events"
	defaultReadyTimeout = 10 * time.Second
)

type Options struct {
	// URL of the Redis broker. Empty selects single-instance mode.
	URL string
	// Channel overrides the pub/sub channel name.
	Channel string
	// ReadyTimeout bounds each client's startup handshake. Zero means 10s.
	ReadyTimeout time.Duration
}

type Adapter struct {
	logger *slog.Logger
	opts   Options
	origin string

	handler Handler
	state   atomic.Int32

	pub       *redis.Client
	sub       *redis.Client
	pubsub    *redis.PubSub
	recvDone  chan struct{}
	closeOnce sync.Once
}

func New(logger *slog.Logger, opts Options) *Adapter {
	if opts.Channel == "" {
		opts.Channel = defaultChannel
	}
	if opts.ReadyTimeout <= 0 {
		opts.ReadyTimeout = defaultReadyTimeout
	}
	return &Adapter{
		logger:   logger.With(slog.String("component", "fanout")),
		opts:     opts,
		origin:   uuid.NewString(),
		recvDone: make(chan struct{}),
	}
}

// Origin returns this instance's origin tag.
func (a *Adapter) Origin() string { return a.origin }

// SetHandler installs the callback for peer-originated events. Must be
// called before Start.
func (a *Adapter) SetHandler(h Handler) { a.handler = h }

// State returns the adapter's current lifecycle state.
func (a *Adapter) State() State { return State(a.state.Load()) }

func (a *Adapter) setState(s State) {
	a.state.Store(int32(s))
	obs.SetFanoutState(int(s))
}

// Start brings up the publish and subscribe clients. Both must independently
// signal ready within the configured timeout; any failure leaves the adapter
// Degraded and the service running in single-instance mode. Start never
// fails the caller.
func (a *Adapter) Start(ctx context.Context) {
	if a.opts.URL == "" {
		a.setState(StateUnconfigured)
		close(a.recvDone)
		a.logger.Warn("No broker URL configured - running in single-instance mode")
		return
	}

	a.setState(StateConnecting)

	redisOpts, err := redis.ParseURL(a.opts.URL)
	if err != nil {
		a.degrade("Invalid broker URL", err)
		return
	}
	subOpts := *redisOpts
	a.pub = redis.NewClient(redisOpts)
	a.sub = redis.NewClient(&subOpts)

	var (
		wg     sync.WaitGroup
		pubErr error
		subErr error
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		pctx, cancel := context.WithTimeout(ctx, a.opts.ReadyTimeout)
		defer cancel()
		pubErr = a.pub.Ping(pctx).Err()
	}()

	go func() {
		defer wg.Done()
		sctx, cancel := context.WithTimeout(ctx, a.opts.ReadyTimeout)
		defer cancel()
		ps := a.sub.Subscribe(sctx, a.opts.Channel)
		if _, err := ps.Receive(sctx); err != nil {
			subErr = err
			_ = ps.Close()
			return
		}
		a.pubsub = ps
	}()

	wg.Wait()

	if pubErr != nil || subErr != nil {
		a.degrade("Broker did not become ready", errors.Join(pubErr, subErr))
		return
	}

	a.setState(StateReady)
	a.logger.Info("Broker connected - cross-instance fan-out active",
		slog.String("origin", a.origin),
		slog.String("channel", a.opts.Channel),
	)

	go a.receiveLoop()
}

// degrade records a startup failure and tears down any half-open clients.
func (a *Adapter) degrade(msg string, err error) {
	a.setState(StateDegraded)
	a.logger.Error(msg, slog.Any("error", err))
	a.logger.Warn("Running without broker - real-time fan-out limited to this instance")

	if a.pubsub != nil {
		_ = a.pubsub.Close()
		a.pubsub = nil
	}
	if a.pub != nil {
		_ = a.pub.Close()
	}
	if a.sub != nil {
		_ = a.sub.Close()
	}
	close(a.recvDone)
}

// receiveLoop delivers peer-originated envelopes to the handler until the
// subscription closes. Own-origin envelopes are dropped so a broker that
// echoes to the publisher cannot cause duplicate local delivery.
func (a *Adapter) receiveLoop() {
	defer close(a.recvDone)

	for msg := range a.pubsub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			a.logger.Warn("Dropping malformed fan-out envelope", slog.Any("error", err))
			continue
		}
		if env.Origin == a.origin {
			continue
		}
		obs.BroadcastDelivered("remote")
		if a.handler != nil {
			a.handler(env.Room, env.Event, env.Payload)
		}
	}
}

// Publish replicates a locally-originated broadcast to peer instances.
// Returns ErrBrokerUnavailable when the adapter is not Ready or the publish
// fails; broker errors after Ready are logged, never fatal.
func (a *Adapter) Publish(ctx context.Context, roomID, event string, payload json.RawMessage) error {
	if a.State() != StateReady {
		return ErrBrokerUnavailable
	}

	env := Envelope{
		Origin:  a.origin,
		Room:    roomID,
		Event:   event,
		Payload: payload,
		SentAt:  time.Now().UTC(),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal fan-out envelope: %w", err)
	}

	if err := a.pub.Publish(ctx, a.opts.Channel, data).Err(); err != nil {
		a.logger.Error("Failed to publish fan-out event",
			slog.String("room", roomID),
			slog.String("event", event),
			slog.Any("error", err),
		)
		return fmt.Errorf("%w: %v", ErrBrokerUnavailable, err)
	}
	return nil
}

// Close tears down the broker clients. Idempotent.
func (a *Adapter) Close() error {
	var err error
	a.closeOnce.Do(func() {
		if a.pubsub != nil {
			err = a.pubsub.Close()
			// receiveLoop drains and exits once the subscription closes.
			<-a.recvDone
		}
		if a.pub != nil {
			_ = a.pub.Close()
		}
		if a.sub != nil {
			_ = a.sub.Close()
		}
	})
	return err
}
