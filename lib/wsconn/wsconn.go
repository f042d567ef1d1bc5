// Copyright 2026 The Paseo Authors
// SPDX-License-Identifier: Apache-2.0

// Package wsconn runs the read and write pumps of a gorilla/websocket
// connection behind a non-blocking Send and Close.
//
// A gorilla connection supports one concurrent reader and one
// concurrent writer. [Conn] owns the writer in a goroutine fed by a
// bounded queue, so callers that must not block (the relay router
// holding a session lock, the daemon fanning out events) can hand off
// frames and move on. The caller owns the reader by calling [Conn.Run].
package wsconn

import (
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/paseo-dev/paseo/lib/clock"
)

// Defaults for zero [Config] fields.
const (
	DefaultPingPeriod    = 30 * time.Second
	DefaultWriteTimeout  = 10 * time.Second
	DefaultMaxFrameBytes = 4 << 20
	DefaultQueueSize     = 256
)

var (
	// ErrClosed is returned by Send once Close has been called or the
	// connection has failed.
	ErrClosed = errors.New("connection closed")

	// ErrQueueFull is returned by Send when the writer is behind by a
	// full queue.
	ErrQueueFull = errors.New("send queue full")
)

// Frame is one WebSocket data message.
type Frame struct {
	Binary bool
	Data   []byte
}

// Config tunes a [Conn].
type Config struct {
	// PingPeriod is the keepalive interval. The peer is considered
	// dead after two periods without any frame or pong.
	PingPeriod time.Duration

	WriteTimeout  time.Duration
	MaxFrameBytes int64
	QueueSize     int

	// Clock drives the ping ticker. Socket deadlines always use the
	// wall clock.
	Clock clock.Clock
}

func (config Config) withDefaults() Config {
	if config.PingPeriod <= 0 {
		config.PingPeriod = DefaultPingPeriod
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = DefaultWriteTimeout
	}
	if config.MaxFrameBytes <= 0 {
		config.MaxFrameBytes = DefaultMaxFrameBytes
	}
	if config.QueueSize <= 0 {
		config.QueueSize = DefaultQueueSize
	}
	if config.Clock == nil {
		config.Clock = clock.Real()
	}
	return config
}

// Conn is a websocket connection with pumps.
type Conn struct {
	conn   *websocket.Conn
	config Config

	send     chan Frame
	closing  chan struct{}
	readDone chan struct{}
	done     chan struct{}

	mu          sync.Mutex
	closed      bool
	closeCode   int
	closeReason string
}

// New wraps conn and starts its write pump.
func New(conn *websocket.Conn, config Config) *Conn {
	config = config.withDefaults()
	c := &Conn{
		conn:     conn,
		config:   config,
		send:     make(chan Frame, config.QueueSize),
		closing:  make(chan struct{}),
		readDone: make(chan struct{}),
		done:     make(chan struct{}),
	}
	go c.writePump()
	return c
}

// Send queues frame for writing.
func (c *Conn) Send(frame Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return ErrClosed
	}
	select {
	case c.send <- frame:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close writes any frames already queued, then a close frame with code
// and reason, then closes the connection. Later calls do nothing.
func (c *Conn) Close(code int, reason string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.closeCode = code
	c.closeReason = reason
	close(c.closing)
}

// Closed reports whether Close has been called.
func (c *Conn) Closed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Done is closed once the write pump has exited and the connection is
// closed.
func (c *Conn) Done() <-chan struct{} { return c.done }

// Run reads frames and passes each to handle until the connection
// fails or closes. It must be called exactly once. The returned error
// is the read error that ended the loop; a *websocket.CloseError
// carries the peer's close code.
func (c *Conn) Run(handle func(Frame)) error {
	defer close(c.readDone)

	pongWait := 2 * c.config.PingPeriod
	c.conn.SetReadLimit(c.config.MaxFrameBytes)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		messageType, data, err := c.conn.ReadMessage()
		if err != nil {
			return err
		}
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		handle(Frame{Binary: messageType == websocket.BinaryMessage, Data: data})
	}
}

func (c *Conn) writePump() {
	ticker := c.config.Clock.NewTicker(c.config.PingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
		c.mu.Lock()
		c.closed = true
		c.mu.Unlock()
		close(c.done)
	}()

	for {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		case <-ticker.C():
			deadline := time.Now().Add(c.config.WriteTimeout)
			if err := c.conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		case <-c.closing:
			c.flushAndClose()
			return
		case <-c.readDone:
			return
		}
	}
}

func (c *Conn) write(frame Frame) error {
	messageType := websocket.TextMessage
	if frame.Binary {
		messageType = websocket.BinaryMessage
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
	return c.conn.WriteMessage(messageType, frame.Data)
}

func (c *Conn) flushAndClose() {
	for drained := false; !drained; {
		select {
		case frame := <-c.send:
			if err := c.write(frame); err != nil {
				return
			}
		default:
			drained = true
		}
	}
	c.mu.Lock()
	code, reason := c.closeCode, c.closeReason
	c.mu.Unlock()
	message := websocket.FormatCloseMessage(code, reason)
	c.conn.WriteControl(websocket.CloseMessage, message, time.Now().Add(c.config.WriteTimeout))
}
