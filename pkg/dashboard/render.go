package dashboard

import (
	"time"

	"github.com/go-go-golems/deployctl/pkg/bus"
	"github.com/go-go-golems/deployctl/pkg/view"
	"github.com/rs/zerolog/log"
)

// RenderRequest is the full render-ready dashboard as of one handler. Seq
// increases monotonically; consumers drop requests older than the last one
// they applied.
type RenderRequest struct {
	Seq        uint64          `json:"seq"`
	At         time.Time       `json:"at"`
	Fragments  []view.Fragment `json:"fragments"`
	Banner     string          `json:"banner,omitempty"`
	ChannelUp  bool            `json:"channel_up"`
	ChannelErr string          `json:"channel_err,omitempty"`
	Upload     UploadStatus    `json:"upload"`
	Command    CommandStatus   `json:"command"`
	Fetching   bool            `json:"fetching"`
	LastFetch  time.Time       `json:"last_fetch"`
}

type Level string

const (
	LevelInfo  Level = "info"
	LevelWarn  Level = "warn"
	LevelError Level = "error"
)

type ActivityEntry struct {
	At    time.Time `json:"at"`
	Level Level     `json:"level"`
	Text  string    `json:"text"`
}

func (l *Loop) render() {
	l.seq++
	req := RenderRequest{
		Seq:        l.seq,
		At:         time.Now(),
		Fragments:  view.Render(l.state.snapshot, l.state.logs, l.viewOpts),
		Banner:     l.state.banner,
		ChannelUp:  l.state.channelUp,
		ChannelErr: l.state.channelErr,
		Upload:     l.state.upload,
		Command:    l.state.command,
		Fetching:   l.fetching,
		LastFetch:  l.state.lastFetch,
	}
	l.lastRender = req
	if l.pub == nil {
		return
	}
	if err := bus.Publish(l.pub, bus.TopicDashboard, bus.TypeRenderRequest, req); err != nil {
		log.Error().Err(err).Msg("publish render request")
	}
}

func (l *Loop) activity(level Level, text string) {
	if l.pub == nil {
		return
	}
	entry := ActivityEntry{At: time.Now(), Level: level, Text: text}
	if err := bus.Publish(l.pub, bus.TopicDashboard, bus.TypeActivity, entry); err != nil {
		log.Error().Err(err).Msg("publish activity")
	}
}
