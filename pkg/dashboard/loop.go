package dashboard

import (
	"context"
	"io"
	"sync"
	"time"

	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/go-go-golems/deployctl/pkg/protocol"
	"github.com/go-go-golems/deployctl/pkg/transport"
	"github.com/go-go-golems/deployctl/pkg/view"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

const DefaultInterval = 5 * time.Second

type Transport interface {
	FetchSnapshot(ctx context.Context) (protocol.Snapshot, error)
	IssueDeploy(ctx context.Context, name string, body io.Reader) (protocol.DeployResult, error)
	IssueStop(ctx context.Context, id string) error
}

// Subscriptions is the log-subscription side of the channel multiplexer.
type Subscriptions interface {
	Subscribe(id string)
	Unsubscribe(id string)
	Subscribed() []string
}

type Timer interface {
	Stop() bool
}

type Options struct {
	Transport     Transport
	Subscriptions Subscriptions
	// Publisher receives render requests and activity entries. Optional.
	Publisher message.Publisher
	Interval  time.Duration
	View      view.Options
	// AfterFunc schedules the next poll. Defaults to time.AfterFunc.
	AfterFunc func(d time.Duration, f func()) Timer
}

// Loop reconciles polled snapshots against the log subscriptions and the
// rendered state. Every state change runs on the goroutine inside Run; the
// exported methods only enqueue events and are safe from any goroutine.
type Loop struct {
	transport Transport
	subs      Subscriptions
	pub       message.Publisher
	interval  time.Duration
	viewOpts  view.Options
	afterFunc func(time.Duration, func()) Timer

	events    chan any
	done      chan struct{}
	closeOnce sync.Once
	ctx       context.Context

	state    State
	fetching bool
	pending  bool
	timer    Timer
	timerGen uint64
	seq      uint64

	lastRender RenderRequest
}

func NewLoop(opts Options) (*Loop, error) {
	if opts.Transport == nil {
		return nil, errors.New("missing Transport")
	}
	if opts.Subscriptions == nil {
		return nil, errors.New("missing Subscriptions")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.AfterFunc == nil {
		opts.AfterFunc = func(d time.Duration, f func()) Timer { return time.AfterFunc(d, f) }
	}
	return &Loop{
		transport: opts.Transport,
		subs:      opts.Subscriptions,
		pub:       opts.Publisher,
		interval:  opts.Interval,
		viewOpts:  opts.View,
		afterFunc: opts.AfterFunc,
		events:    make(chan any, 1024),
		done:      make(chan struct{}),
		ctx:       context.Background(),
		state:     newState(),
	}, nil
}

// Run fetches immediately, then dispatches events until ctx is done. On exit
// the poll timer is stopped and every log subscription is dropped.
func (l *Loop) Run(ctx context.Context) error {
	l.ctx = ctx
	defer l.teardown()

	l.requestFetch("startup")
	for {
		select {
		case <-ctx.Done():
			return nil
		case ev := <-l.events:
			l.handle(ev)
		}
	}
}

// Trigger requests an out-of-band reconciliation. Triggers that arrive while
// a fetch is in flight collapse into a single follow-up fetch.
func (l *Loop) Trigger(reason string) {
	l.post(triggerEvent{reason: reason})
}

func (l *Loop) Stop(id string) {
	l.post(stopRequestEvent{id: id})
}

// Upload deploys the first of paths.
func (l *Loop) Upload(paths ...string) {
	l.post(uploadRequestEvent{paths: append([]string(nil), paths...)})
}

func (l *Loop) OnLog(id, text string) {
	l.post(logEvent{id: id, text: text})
}

func (l *Loop) OnChannelState(connected bool, err error) {
	l.post(channelStateEvent{connected: connected, err: err})
}

func (l *Loop) post(ev any) bool {
	select {
	case l.events <- ev:
		return true
	case <-l.done:
		return false
	}
}

func (l *Loop) handle(ev any) {
	switch e := ev.(type) {
	case triggerEvent:
		l.requestFetch(e.reason)
	case tickEvent:
		if e.gen != l.timerGen || l.fetching {
			return
		}
		l.timer = nil
		l.startFetch("interval")
	case fetchDoneEvent:
		l.finishFetch(e)
	case logEvent:
		l.applyLog(e.id, e.text)
	case channelStateEvent:
		l.applyChannelState(e.connected, e.err)
	case stopRequestEvent:
		l.startStop(e.id)
	case stopDoneEvent:
		l.finishStop(e)
	case uploadRequestEvent:
		l.startUpload(e.paths)
	case uploadDoneEvent:
		l.finishUpload(e)
	default:
		log.Warn().Msgf("dashboard: unknown event %T", ev)
	}
}

func (l *Loop) requestFetch(reason string) {
	if l.fetching {
		if !l.pending {
			log.Debug().Str("reason", reason).Msg("fetch in flight, coalescing trigger")
		}
		l.pending = true
		return
	}
	l.stopTimer()
	l.startFetch(reason)
}

func (l *Loop) startFetch(reason string) {
	l.fetching = true
	ctx := l.ctx
	log.Debug().Str("reason", reason).Msg("fetching deployments")
	go func() {
		started := time.Now()
		snap, err := l.transport.FetchSnapshot(ctx)
		l.post(fetchDoneEvent{snap: snap, err: err, took: time.Since(started)})
	}()
}

func (l *Loop) finishFetch(e fetchDoneEvent) {
	l.fetching = false
	if e.err != nil {
		msg := transport.Message(e.err)
		log.Warn().Err(e.err).Msg("fetch deployments failed, keeping previous snapshot")
		if l.state.banner != msg {
			l.activity(LevelError, "refresh failed: "+msg)
		}
		l.state.banner = msg
	} else {
		l.reconcile(e.snap)
		log.Debug().Int("deployments", e.snap.Len()).Dur("took", e.took).Msg("reconciled snapshot")
	}
	l.render()

	if l.pending {
		l.pending = false
		l.startFetch("coalesced")
		return
	}
	l.scheduleNext()
}

func (l *Loop) reconcile(snap protocol.Snapshot) {
	subscribed := map[string]struct{}{}
	for _, id := range l.subs.Subscribed() {
		subscribed[id] = struct{}{}
	}

	for id := range subscribed {
		if snap.Has(id) {
			continue
		}
		l.subs.Unsubscribe(id)
		l.state.logs.Delete(id)
		log.Info().Str("deployment", id).Msg("deployment gone, log subscription removed")
	}
	for _, id := range snap.IDs() {
		if _, ok := subscribed[id]; ok {
			continue
		}
		l.subs.Subscribe(id)
		log.Info().Str("deployment", id).Msg("new deployment, log subscription added")
	}
	// entries can outlive their subscription only if the set was changed
	// behind our back; drop them too
	for _, id := range l.state.logs.IDs() {
		if !snap.Has(id) {
			l.state.logs.Delete(id)
		}
	}

	l.state.snapshot = snap
	l.state.banner = ""
	l.state.lastFetch = time.Now()
}

func (l *Loop) scheduleNext() {
	l.stopTimer()
	l.timerGen++
	gen := l.timerGen
	l.timer = l.afterFunc(l.interval, func() {
		l.post(tickEvent{gen: gen})
	})
}

func (l *Loop) stopTimer() {
	if l.timer != nil {
		l.timer.Stop()
		l.timer = nil
	}
	// a tick that already fired is ignored by generation
	l.timerGen++
}

func (l *Loop) applyLog(id, text string) {
	if !l.state.snapshot.Has(id) {
		log.Debug().Str("deployment", id).Msg("dropping log for unknown deployment")
		return
	}
	l.state.logs.Set(id, text)
	l.render()
}

func (l *Loop) applyChannelState(connected bool, err error) {
	l.state.channelUp = connected
	l.state.channelErr = ""
	if err != nil {
		l.state.channelErr = err.Error()
	}
	if connected {
		l.activity(LevelInfo, "log channel connected")
	} else {
		l.activity(LevelWarn, "log channel down: "+l.state.channelErr)
	}
	l.render()
}

func (l *Loop) startStop(id string) {
	if id == "" {
		l.state.command = CommandStatus{Op: "stop", Message: "no deployment selected", At: time.Now()}
		l.render()
		return
	}
	l.state.command = CommandStatus{Op: "stop", ID: id, Pending: true, At: time.Now()}
	l.render()

	ctx := l.ctx
	go func() {
		err := l.transport.IssueStop(ctx, id)
		l.post(stopDoneEvent{id: id, err: err})
	}()
}

func (l *Loop) finishStop(e stopDoneEvent) {
	short := view.ShortID(e.id, 8)
	if e.err != nil {
		msg := transport.Message(e.err)
		log.Warn().Err(e.err).Str("deployment", e.id).Msg("stop failed")
		l.state.command = CommandStatus{Op: "stop", ID: e.id, Message: msg, At: time.Now()}
		l.activity(LevelError, "stop "+short+" failed: "+msg)
		l.render()
		return
	}
	l.state.command = CommandStatus{Op: "stop", ID: e.id, Ok: true, Message: "stopped " + short, At: time.Now()}
	l.activity(LevelInfo, "stopped "+short)
	l.render()
	l.requestFetch("stop")
}

func (l *Loop) teardown() {
	l.closeOnce.Do(func() { close(l.done) })
	l.stopTimer()
	for _, id := range l.subs.Subscribed() {
		l.subs.Unsubscribe(id)
	}
}
