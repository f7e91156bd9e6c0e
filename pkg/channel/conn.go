package channel

import (
	"context"

	"github.com/pkg/errors"
)

var ErrNotConnected = errors.New("push channel not connected")

// Handler receives everything a Conn observes. Implementations must not
// block for long: Conn implementations call it from their read goroutine.
type Handler interface {
	HandleMessage(topic string, payload []byte)
	HandleConnected()
	HandleDisconnected(err error)
}

// Conn is one long-lived, topic-addressed push connection. Subscriptions do
// not survive a reconnect; the Handler is told about every (re)connect so it
// can re-issue them.
//
// Subscribe and Unsubscribe are called with the Multiplexer lock held and
// must not wait for inbound deliveries to drain.
type Conn interface {
	// Start begins connecting in the background and returns immediately.
	Start(ctx context.Context, h Handler) error
	Subscribe(topic string) error
	Unsubscribe(topic string) error
	Close() error
}

// NopConn never connects. Subscriptions stay recorded in the Multiplexer and
// no log text arrives.
type NopConn struct{}

func (NopConn) Start(context.Context, Handler) error { return nil }

func (NopConn) Subscribe(string) error { return ErrNotConnected }

func (NopConn) Unsubscribe(string) error { return ErrNotConnected }

func (NopConn) Close() error { return nil }
