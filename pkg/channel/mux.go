package channel

import (
	"context"
	"sort"
	"sync"

	"github.com/go-go-golems/deployctl/pkg/protocol"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sink is where the Multiplexer delivers log text and connection state.
type Sink interface {
	OnLog(id, text string)
	OnChannelState(connected bool, err error)
}

// Multiplexer owns the single push connection and the set of deployment ids
// with an active log subscription. Subscribe and Unsubscribe are idempotent.
type Multiplexer struct {
	conn Conn

	mu        sync.Mutex
	topics    map[string]string // id -> topic
	sink      Sink
	connected bool
	closed    bool
}

func NewMultiplexer(conn Conn) *Multiplexer {
	return &Multiplexer{
		conn:   conn,
		topics: map[string]string{},
	}
}

func (m *Multiplexer) Start(ctx context.Context, sink Sink) error {
	if sink == nil {
		return errors.New("missing Sink")
	}
	m.mu.Lock()
	m.sink = sink
	m.mu.Unlock()
	return m.conn.Start(ctx, m)
}

func (m *Multiplexer) Subscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	if _, ok := m.topics[id]; ok {
		return
	}
	topic := protocol.Topic(id)
	m.topics[id] = topic
	if !m.connected {
		// sent by HandleConnected
		return
	}
	if err := m.conn.Subscribe(topic); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("subscribe failed, will retry on reconnect")
	}
}

func (m *Multiplexer) Unsubscribe(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	topic, ok := m.topics[id]
	if !ok {
		return
	}
	delete(m.topics, id)
	if !m.connected {
		return
	}
	if err := m.conn.Unsubscribe(topic); err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("unsubscribe failed")
	}
}

// Subscribed returns the subscribed ids, sorted.
func (m *Multiplexer) Subscribed() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.topics))
	for id := range m.topics {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Close drops every subscription and closes the connection.
func (m *Multiplexer) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	if m.connected {
		for _, topic := range m.topics {
			_ = m.conn.Unsubscribe(topic)
		}
	}
	m.topics = map[string]string{}
	m.connected = false
	m.mu.Unlock()
	return m.conn.Close()
}

// HandleMessage is the single dispatch point for every inbound event.
func (m *Multiplexer) HandleMessage(topic string, payload []byte) {
	id, ok := protocol.IDFromTopic(topic)
	if !ok {
		log.Debug().Str("topic", topic).Msg("ignoring message on foreign topic")
		return
	}

	m.mu.Lock()
	_, subscribed := m.topics[id]
	sink := m.sink
	m.mu.Unlock()
	if !subscribed || sink == nil {
		log.Debug().Str("topic", topic).Msg("dropping message for inactive subscription")
		return
	}

	p, err := protocol.DecodeLogPayload(payload)
	if err != nil {
		log.Warn().Err(err).Str("topic", topic).Msg("dropping malformed log payload")
		return
	}
	sink.OnLog(id, p.Logs)
}

func (m *Multiplexer) HandleConnected() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.connected = true
	topics := make([]string, 0, len(m.topics))
	for _, topic := range m.topics {
		topics = append(topics, topic)
	}
	sink := m.sink
	sort.Strings(topics)
	for _, topic := range topics {
		if err := m.conn.Subscribe(topic); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msg("resubscribe failed")
		}
	}
	m.mu.Unlock()

	log.Info().Int("topics", len(topics)).Msg("push channel connected")
	if sink != nil {
		sink.OnChannelState(true, nil)
	}
}

func (m *Multiplexer) HandleDisconnected(err error) {
	m.mu.Lock()
	m.connected = false
	sink := m.sink
	closed := m.closed
	m.mu.Unlock()
	if closed {
		return
	}

	log.Warn().Err(err).Msg("push channel disconnected")
	if sink != nil {
		sink.OnChannelState(false, err)
	}
}
