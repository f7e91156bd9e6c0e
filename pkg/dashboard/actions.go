package dashboard

import (
	"context"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/deployctl/pkg/bus"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type ActionKind string

const (
	ActionRefresh ActionKind = "refresh"
	ActionStop    ActionKind = "stop"
	ActionUpload  ActionKind = "upload"
)

type ActionRequest struct {
	Kind  ActionKind `json:"kind"`
	ID    string     `json:"id,omitempty"`
	Paths []string   `json:"paths,omitempty"`
}

func (l *Loop) Dispatch(req ActionRequest) error {
	switch req.Kind {
	case ActionRefresh:
		l.Trigger("manual")
	case ActionStop:
		l.Stop(req.ID)
	case ActionUpload:
		l.Upload(req.Paths...)
	default:
		return errors.Errorf("unknown action %q", req.Kind)
	}
	return nil
}

// ServeActions feeds UI action requests published on bus.TopicUIActions into
// the loop until ctx is done.
func (l *Loop) ServeActions(ctx context.Context, sub message.Subscriber) error {
	msgs, err := sub.Subscribe(ctx, bus.TopicUIActions)
	if err != nil {
		return errors.Wrap(err, "subscribe ui actions")
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return nil
			}
			l.handleActionMessage(msg)
			msg.Ack()
		}
	}
}

func (l *Loop) handleActionMessage(msg *message.Message) {
	env, err := bus.ParseEnvelope(msg.Payload)
	if err != nil {
		log.Warn().Err(err).Msg("dropping malformed action message")
		return
	}
	if env.Type != bus.TypeActionRequest {
		return
	}
	var req ActionRequest
	if err := env.Decode(&req); err != nil {
		log.Warn().Err(err).Msg("dropping malformed action request")
		return
	}
	if err := l.Dispatch(req); err != nil {
		log.Warn().Err(err).Msg("dropping action request")
	}
}
