package channel

import (
	"context"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type MQTTOptions struct {
	// Broker is a URL such as tcp://localhost:1883 or ws://localhost:9001.
	Broker   string
	ClientID string
	QoS      byte

	ConnectTimeout       time.Duration
	MaxReconnectInterval time.Duration
	KeepAlive            time.Duration
	AckTimeout           time.Duration
}

// MQTTConn carries log topics over an MQTT broker. The broker forgets
// subscriptions on reconnect (clean session), so the on-connect hook tells
// the handler to re-issue them.
type MQTTConn struct {
	opts MQTTOptions

	mu     sync.Mutex
	client mqtt.Client
}

func NewMQTTConn(opts MQTTOptions) *MQTTConn {
	if opts.ClientID == "" {
		opts.ClientID = fmt.Sprintf("deployctl-%d", time.Now().UnixNano())
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.MaxReconnectInterval <= 0 {
		opts.MaxReconnectInterval = time.Minute
	}
	if opts.KeepAlive <= 0 {
		opts.KeepAlive = 60 * time.Second
	}
	if opts.AckTimeout <= 0 {
		opts.AckTimeout = 10 * time.Second
	}
	return &MQTTConn{opts: opts}
}

func (c *MQTTConn) Start(ctx context.Context, h Handler) error {
	if c.opts.Broker == "" {
		return errors.New("missing MQTT broker")
	}

	o := mqtt.NewClientOptions()
	o.AddBroker(c.opts.Broker)
	o.SetClientID(c.opts.ClientID)
	o.SetCleanSession(true)
	o.SetOrderMatters(true)
	o.SetKeepAlive(c.opts.KeepAlive)
	o.SetConnectTimeout(c.opts.ConnectTimeout)
	o.SetAutoReconnect(true)
	o.SetConnectRetry(true)
	o.SetMaxReconnectInterval(c.opts.MaxReconnectInterval)
	o.SetDefaultPublishHandler(func(_ mqtt.Client, msg mqtt.Message) {
		h.HandleMessage(msg.Topic(), msg.Payload())
	})
	o.SetOnConnectHandler(func(mqtt.Client) {
		h.HandleConnected()
	})
	o.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.HandleDisconnected(err)
	})

	client := mqtt.NewClient(o)
	c.mu.Lock()
	c.client = client
	c.mu.Unlock()

	log.Info().Str("broker", c.opts.Broker).Msg("connecting to MQTT broker")
	// With ConnectRetry the token only completes once connected, so do not
	// wait on it here.
	token := client.Connect()
	go func() {
		select {
		case <-token.Done():
			if err := token.Error(); err != nil {
				h.HandleDisconnected(errors.Wrap(err, "connect MQTT broker"))
			}
		case <-ctx.Done():
		}
	}()
	go func() {
		<-ctx.Done()
		_ = c.Close()
	}()
	return nil
}

func (c *MQTTConn) Subscribe(topic string) error {
	client, err := c.connected()
	if err != nil {
		return err
	}
	// nil callback routes through the default publish handler
	c.watch("subscribe", topic, client.Subscribe(topic, c.opts.QoS, nil))
	return nil
}

func (c *MQTTConn) Unsubscribe(topic string) error {
	client, err := c.connected()
	if err != nil {
		return err
	}
	c.watch("unsubscribe", topic, client.Unsubscribe(topic))
	return nil
}

func (c *MQTTConn) Close() error {
	c.mu.Lock()
	client := c.client
	c.client = nil
	c.mu.Unlock()
	if client != nil {
		client.Disconnect(250)
	}
	return nil
}

func (c *MQTTConn) connected() (mqtt.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.client == nil || !c.client.IsConnectionOpen() {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

func (c *MQTTConn) watch(op, topic string, token mqtt.Token) {
	go func() {
		if !token.WaitTimeout(c.opts.AckTimeout) {
			log.Warn().Str("topic", topic).Msgf("MQTT %s not acknowledged", op)
			return
		}
		if err := token.Error(); err != nil {
			log.Warn().Err(err).Str("topic", topic).Msgf("MQTT %s failed", op)
		}
	}()
}
