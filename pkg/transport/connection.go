package transport

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
)

// MessageHandler is the callback executed when a message is received.
type MessageHandler func(ctx context.Context, connID uuid.UUID, msg []byte)

// OnCloseHandler is the callback executed once when the connection dies.
type OnCloseHandler func(connID uuid.UUID, err error)

type ConnectionConfig struct {
	ReadTimeout time.Duration
}

// Connection represents a single, thread-safe WebSocket connection.
// Inbound frames are handled sequentially on the read pump; outbound frames
// go through a buffered send channel drained by the write pump.
type Connection struct {
	id     uuid.UUID
	conn   *websocket.Conn
	config ConnectionConfig
	send   chan []byte

	onMessage MessageHandler
	onClose   OnCloseHandler

	done      chan struct{}
	wg        *sync.WaitGroup
	ctx       context.Context
	cancel    context.CancelFunc
	closeOnce sync.Once

	logger *slog.Logger
}

func NewConnection(parentCtx context.Context, wg *sync.WaitGroup, conn *websocket.Conn, config ConnectionConfig, logger *slog.Logger) *Connection {
	id := uuid.New()
	connCtx, cancel := context.WithCancel(parentCtx)

	// Balanced by Close; the connection counts against the server's
	// shutdown wait group from the moment it exists.
	wg.Add(1)

	return &Connection{
		id:     id,
		conn:   conn,
		config: config,
		send:   make(chan []byte, 256),
		done:   make(chan struct{}),
		ctx:    connCtx,
		cancel: cancel,
		wg:     wg,
		logger: logger.With(slog.String("connID", id.String())),
	}
}

// Run starts the read and write pumps. Handlers must be set before Run.
func (c *Connection) Run() {
	go c.readPump()
	go c.writePump()

	c.logger.Debug("connection established")
}

// readPump pumps messages from the WebSocket connection to the message handler.
func (c *Connection) readPump() {
	var readErr error
	defer func() {
		c.Close(readErr)
	}()

	for {
		msg, err := c.readOne()
		if err != nil {
			readErr = err
			return
		}
		if msg == nil {
			// Non-data frame, nothing to dispatch.
			continue
		}
		if c.onMessage != nil {
			c.onMessage(c.ctx, c.id, msg)
		}
	}
}

// readOne reads a single frame under the configured read deadline.
func (c *Connection) readOne() ([]byte, error) {
	readCtx := c.ctx
	if c.config.ReadTimeout > 0 {
		var cancel context.CancelFunc
		readCtx, cancel = context.WithTimeout(c.ctx, c.config.ReadTimeout)
		defer cancel()
	}

	typ, r, err := c.conn.Reader(readCtx)
	if err != nil {
		return nil, err
	}
	if typ != websocket.MessageText && typ != websocket.MessageBinary {
		return nil, nil
	}
	return io.ReadAll(r)
}

// writePump pumps messages from the send channel to the WebSocket connection.
func (c *Connection) writePump() {
	var writeErr error
	defer func() {
		c.Close(writeErr)
	}()

	for {
		select {
		case message := <-c.send:
			if err := c.conn.Write(c.ctx, websocket.MessageText, message); err != nil {
				writeErr = err
				return
			}
		case <-c.ctx.Done():
			c.conn.Close(websocket.StatusNormalClosure, "connection context cancelled")
			return
		}
	}
}

// Send queues a message for delivery to the client. Safe for concurrent use,
// including concurrently with Close. Messages queued after the connection is
// closed are dropped.
func (c *Connection) Send(message []byte) {
	// The send channel is never closed; a queued-but-undelivered message on
	// a dead connection is garbage collected with the channel. Closing it
	// would race concurrent senders.
	if c.ctx.Err() != nil {
		c.logger.Debug("dropped message for closed connection")
		return
	}
	select {
	case c.send <- message:
	case <-c.ctx.Done():
		c.logger.Debug("dropped message for closed connection")
	}
}

// Close gracefully shuts down the connection and its resources. Idempotent.
func (c *Connection) Close(err error) {
	c.closeOnce.Do(func() {
		c.logger.Debug("transport connection closing", slog.Any("reason", err))

		c.cancel() // Signal pumps and pending Sends to stop.
		if c.conn != nil {
			c.conn.Close(websocket.StatusNormalClosure, "")
		}
		if c.onClose != nil {
			c.onClose(c.id, err)
		}
		c.wg.Done()
		close(c.done)
	})
}

// Done returns a channel that is closed when the connection is fully terminated.
func (c *Connection) Done() <-chan struct{} {
	return c.done
}

// ID returns the unique identifier of the connection.
func (c *Connection) ID() uuid.UUID {
	return c.id
}

func (c *Connection) SetOnMessageHandler(handler MessageHandler) {
	c.onMessage = handler
}

func (c *Connection) SetOnCloseHandler(handler OnCloseHandler) {
	c.onClose = handler
}
