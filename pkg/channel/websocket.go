package channel

import (
	"context"
	"sync"
	"time"

	retry "github.com/avast/retry-go/v4"
	"github.com/gorilla/websocket"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	FrameSubscribe   = "subscribe"
	FrameUnsubscribe = "unsubscribe"
	FrameEvent       = "event"
)

// Frame is the JSON envelope exchanged over the websocket.
type Frame struct {
	Type  string              `json:"type"`
	Topic string              `json:"topic"`
	Data  jsoniter.RawMessage `json:"data,omitempty"`
}

type WebsocketOptions struct {
	URL    string
	Dialer *websocket.Dialer

	MinBackoff time.Duration
	MaxBackoff time.Duration
	// StaleAfter is the number of consecutive failed dials after which the
	// handler is told the channel is down.
	StaleAfter   uint
	WriteTimeout time.Duration
	ReadLimit    int64
}

type WebsocketConn struct {
	opts WebsocketOptions

	mu     sync.Mutex
	ws     *websocket.Conn
	cancel context.CancelFunc
	done   chan struct{}
}

func NewWebsocketConn(opts WebsocketOptions) *WebsocketConn {
	if opts.Dialer == nil {
		opts.Dialer = websocket.DefaultDialer
	}
	if opts.MinBackoff <= 0 {
		opts.MinBackoff = 500 * time.Millisecond
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 30 * time.Second
	}
	if opts.StaleAfter == 0 {
		opts.StaleAfter = 3
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 5 * time.Second
	}
	if opts.ReadLimit <= 0 {
		opts.ReadLimit = 4 << 20
	}
	return &WebsocketConn{opts: opts}
}

func (c *WebsocketConn) Start(ctx context.Context, h Handler) error {
	if c.opts.URL == "" {
		return errors.New("missing websocket URL")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.done != nil {
		return errors.New("websocket connection already started")
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancel = cancel
	c.done = make(chan struct{})
	go c.run(ctx, h)
	return nil
}

func (c *WebsocketConn) Subscribe(topic string) error {
	return c.write(Frame{Type: FrameSubscribe, Topic: topic})
}

func (c *WebsocketConn) Unsubscribe(topic string) error {
	return c.write(Frame{Type: FrameUnsubscribe, Topic: topic})
}

func (c *WebsocketConn) Close() error {
	c.mu.Lock()
	cancel, done, ws := c.cancel, c.done, c.ws
	c.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()
	if ws != nil {
		c.mu.Lock()
		_ = ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		c.mu.Unlock()
		_ = ws.Close()
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		return errors.New("timed out waiting for websocket reader")
	}
	return nil
}

func (c *WebsocketConn) write(f Frame) error {
	b, err := json.Marshal(f)
	if err != nil {
		return errors.Wrap(err, "marshal frame")
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.ws == nil {
		return ErrNotConnected
	}
	_ = c.ws.SetWriteDeadline(time.Now().Add(c.opts.WriteTimeout))
	if err := c.ws.WriteMessage(websocket.TextMessage, b); err != nil {
		return errors.Wrapf(err, "write %s frame", f.Type)
	}
	return nil
}

func (c *WebsocketConn) run(ctx context.Context, h Handler) {
	defer close(c.done)
	for {
		ws, err := c.dial(ctx, h)
		if err != nil {
			return
		}
		ws.SetReadLimit(c.opts.ReadLimit)

		c.mu.Lock()
		c.ws = ws
		c.mu.Unlock()

		h.HandleConnected()
		err = c.readLoop(ctx, ws, h)

		c.mu.Lock()
		c.ws = nil
		c.mu.Unlock()
		_ = ws.Close()

		if ctx.Err() != nil {
			return
		}
		h.HandleDisconnected(err)
	}
}

func (c *WebsocketConn) dial(ctx context.Context, h Handler) (*websocket.Conn, error) {
	var ws *websocket.Conn
	err := retry.Do(
		func() error {
			conn, _, err := c.opts.Dialer.DialContext(ctx, c.opts.URL, nil)
			if err != nil {
				return err
			}
			ws = conn
			return nil
		},
		retry.Context(ctx),
		retry.Attempts(0),
		retry.Delay(c.opts.MinBackoff),
		retry.MaxDelay(c.opts.MaxBackoff),
		retry.DelayType(retry.BackOffDelay),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(attempt uint, err error) {
			log.Warn().Err(err).Uint("attempt", attempt+1).Str("url", c.opts.URL).Msg("push channel dial failed")
			if attempt+1 == c.opts.StaleAfter {
				h.HandleDisconnected(errors.Wrapf(err, "push channel unreachable after %d attempts", attempt+1))
			}
		}),
	)
	if err != nil {
		return nil, err
	}
	return ws, nil
}

func (c *WebsocketConn) readLoop(ctx context.Context, ws *websocket.Conn, h Handler) error {
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			_ = ws.Close()
		case <-stop:
		}
	}()

	for {
		_, b, err := ws.ReadMessage()
		if err != nil {
			return errors.Wrap(err, "read frame")
		}
		var f Frame
		if err := json.Unmarshal(b, &f); err != nil {
			log.Warn().Err(err).Msg("dropping malformed frame")
			continue
		}
		if f.Type != FrameEvent {
			continue
		}
		h.HandleMessage(f.Topic, f.Data)
	}
}
