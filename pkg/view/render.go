// Package view turns a deployment snapshot and the log buffer into
// render-ready fragments. Render is pure: same inputs, same output.
package view

import (
	"fmt"

	"github.com/go-go-golems/deployctl/pkg/protocol"
)

type Badge string

const (
	BadgeRunning Badge = "running"
	BadgeStopped Badge = "stopped"
)

// BadgeFor maps a backend status onto the two display styles. Any status
// other than "running", including ones the backend may add later, gets the
// stopped style.
func BadgeFor(s protocol.Status) Badge {
	if s.Running() {
		return BadgeRunning
	}
	return BadgeStopped
}

type Fragment struct {
	ID      string          `json:"id" yaml:"id"`
	ShortID string          `json:"short_id" yaml:"short_id"`
	Status  protocol.Status `json:"status" yaml:"status"`
	Badge   Badge           `json:"badge" yaml:"badge"`
	Port    int             `json:"port" yaml:"port"`
	Link    string          `json:"link" yaml:"link"`
	Logs    string          `json:"logs" yaml:"logs,omitempty"`
}

// LogSource is the read side of the log buffer.
type LogSource interface {
	Get(id string) (string, bool)
}

type Options struct {
	LinkHost   string
	ShortIDLen int
}

func (o Options) withDefaults() Options {
	if o.LinkHost == "" {
		o.LinkHost = "localhost"
	}
	if o.ShortIDLen <= 0 {
		o.ShortIDLen = 8
	}
	return o
}

func Render(snap protocol.Snapshot, logs LogSource, opts Options) []Fragment {
	opts = opts.withDefaults()
	entries := snap.Entries()
	out := make([]Fragment, 0, len(entries))
	for _, e := range entries {
		text := ""
		if logs != nil {
			text, _ = logs.Get(e.ID)
		}
		out = append(out, Fragment{
			ID:      e.ID,
			ShortID: ShortID(e.ID, opts.ShortIDLen),
			Status:  e.Record.Status,
			Badge:   BadgeFor(e.Record.Status),
			Port:    int(e.Record.Port),
			Link:    fmt.Sprintf("http://%s:%d", opts.LinkHost, e.Record.Port),
			Logs:    text,
		})
	}
	return out
}

func ShortID(id string, n int) string {
	r := []rune(id)
	if len(r) <= n {
		return id
	}
	return string(r[:n])
}
