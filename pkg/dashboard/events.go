package dashboard

import (
	"time"

	"github.com/go-go-golems/deployctl/pkg/protocol"
)

// Events consumed by the Loop dispatcher. Results of network calls come back
// as *DoneEvent values posted by the goroutine that made the call.

type triggerEvent struct {
	reason string
}

type tickEvent struct {
	gen uint64
}

type fetchDoneEvent struct {
	snap protocol.Snapshot
	err  error
	took time.Duration
}

type logEvent struct {
	id   string
	text string
}

type channelStateEvent struct {
	connected bool
	err       error
}

type stopRequestEvent struct {
	id string
}

type stopDoneEvent struct {
	id  string
	err error
}

type uploadRequestEvent struct {
	paths []string
}

type uploadDoneEvent struct {
	res protocol.DeployResult
	err error
}
