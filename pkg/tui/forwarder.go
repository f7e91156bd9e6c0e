package tui

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/deployctl/pkg/bus"
	"github.com/go-go-golems/deployctl/pkg/dashboard"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

// Sender is the part of *tea.Program the forwarder needs.
type Sender interface {
	Send(msg tea.Msg)
}

// Forwarder turns dashboard bus messages into bubbletea messages.
type Forwarder struct {
	Sub    message.Subscriber
	Target Sender
}

func (f *Forwarder) Run(ctx context.Context) error {
	if f.Sub == nil {
		return errors.New("missing Subscriber")
	}
	if f.Target == nil {
		return errors.New("missing Target")
	}

	msgs, err := f.Sub.Subscribe(ctx, bus.TopicDashboard)
	if err != nil {
		return errors.Wrap(err, "subscribe dashboard")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			if m := Translate(msg.Payload); m != nil {
				f.Target.Send(m)
			}
			msg.Ack()
		}
	}
}

// Translate decodes one bus payload. Unknown or malformed payloads yield nil.
func Translate(payload []byte) tea.Msg {
	env, err := bus.ParseEnvelope(payload)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed dashboard message")
		return nil
	}
	switch env.Type {
	case bus.TypeRenderRequest:
		var req dashboard.RenderRequest
		if err := env.Decode(&req); err != nil {
			log.Warn().Err(err).Msg("dropping render request")
			return nil
		}
		return RenderRequestMsg{Request: req}
	case bus.TypeActivity:
		var entry dashboard.ActivityEntry
		if err := env.Decode(&entry); err != nil {
			log.Warn().Err(err).Msg("dropping activity entry")
			return nil
		}
		return ActivityMsg{Entry: entry}
	}
	return nil
}

// ActionPublisher sends UI actions to the loop over the bus.
type ActionPublisher struct {
	Pub message.Publisher
}

func (p ActionPublisher) Request(req dashboard.ActionRequest) error {
	return bus.Publish(p.Pub, bus.TopicUIActions, bus.TypeActionRequest, req)
}
