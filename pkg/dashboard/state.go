package dashboard

import (
	"sort"
	"time"

	"github.com/go-go-golems/deployctl/pkg/protocol"
)

// LogBuffer holds the latest full log text per deployment id.
type LogBuffer struct {
	entries map[string]string
}

func NewLogBuffer() *LogBuffer {
	return &LogBuffer{entries: map[string]string{}}
}

func (b *LogBuffer) Set(id, text string) {
	b.entries[id] = text
}

func (b *LogBuffer) Get(id string) (string, bool) {
	v, ok := b.entries[id]
	return v, ok
}

func (b *LogBuffer) Delete(id string) {
	delete(b.entries, id)
}

func (b *LogBuffer) Len() int {
	return len(b.entries)
}

func (b *LogBuffer) IDs() []string {
	ids := make([]string, 0, len(b.entries))
	for id := range b.entries {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type CommandStatus struct {
	Op      string    `json:"op,omitempty"`
	ID      string    `json:"id,omitempty"`
	Pending bool      `json:"pending,omitempty"`
	Ok      bool      `json:"ok,omitempty"`
	Message string    `json:"message,omitempty"`
	At      time.Time `json:"at,omitempty"`
}

// State is everything the dashboard shows. Only the Loop's dispatcher
// goroutine mutates it.
type State struct {
	snapshot   protocol.Snapshot
	logs       *LogBuffer
	banner     string
	channelUp  bool
	channelErr string
	upload     UploadStatus
	command    CommandStatus
	lastFetch  time.Time
}

func newState() State {
	return State{logs: NewLogBuffer()}
}
