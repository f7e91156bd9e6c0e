package dashboard

import (
	"context"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-go-golems/deployctl/pkg/bus"
	"github.com/go-go-golems/deployctl/pkg/protocol"
	"github.com/go-go-golems/deployctl/pkg/transport"
	"github.com/go-go-golems/deployctl/pkg/view"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type fetchReply struct {
	snap protocol.Snapshot
	err  error
}

type fakeTransport struct {
	replies    chan fetchReply
	fetchCalls atomic.Int32

	mu          sync.Mutex
	deployCalls int
	deployed    []string
	deployErr   error
	deployGate  chan struct{}
	stopCalls   []string
	stopErr     error
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{replies: make(chan fetchReply, 16)}
}

func (f *fakeTransport) FetchSnapshot(ctx context.Context) (protocol.Snapshot, error) {
	f.fetchCalls.Add(1)
	select {
	case r := <-f.replies:
		return r.snap, r.err
	case <-ctx.Done():
		return protocol.Snapshot{}, ctx.Err()
	}
}

func (f *fakeTransport) IssueDeploy(ctx context.Context, name string, body io.Reader) (protocol.DeployResult, error) {
	f.mu.Lock()
	f.deployCalls++
	gate, derr := f.deployGate, f.deployErr
	f.mu.Unlock()
	if gate != nil {
		<-gate
	}
	b, err := io.ReadAll(body)
	if err != nil {
		return protocol.DeployResult{}, err
	}
	f.mu.Lock()
	f.deployed = append(f.deployed, name+":"+string(b))
	f.mu.Unlock()
	if derr != nil {
		return protocol.DeployResult{}, derr
	}
	return protocol.DeployResult{ID: "0123456789abcdef"}, nil
}

func (f *fakeTransport) IssueStop(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopCalls = append(f.stopCalls, id)
	return f.stopErr
}

type fakeSubs struct {
	active     map[string]bool
	subCalls   []string
	unsubCalls []string
	duplicates int
}

func newFakeSubs() *fakeSubs {
	return &fakeSubs{active: map[string]bool{}}
}

func (s *fakeSubs) Subscribe(id string) {
	s.subCalls = append(s.subCalls, id)
	if s.active[id] {
		s.duplicates++
	}
	s.active[id] = true
}

func (s *fakeSubs) Unsubscribe(id string) {
	s.unsubCalls = append(s.unsubCalls, id)
	delete(s.active, id)
}

func (s *fakeSubs) Subscribed() []string {
	ids := make([]string, 0, len(s.active))
	for id := range s.active {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

type fakeTimer struct {
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	was := !t.stopped
	t.stopped = true
	return was
}

type harness struct {
	t      *testing.T
	loop   *Loop
	tr     *fakeTransport
	subs   *fakeSubs
	timers []*fakeTimer
}

func newHarness(t *testing.T) *harness {
	h := &harness{t: t, tr: newFakeTransport(), subs: newFakeSubs()}
	loop, err := NewLoop(Options{
		Transport:     h.tr,
		Subscriptions: h.subs,
		AfterFunc: func(d time.Duration, f func()) Timer {
			ft := &fakeTimer{f: f}
			h.timers = append(h.timers, ft)
			return ft
		},
	})
	require.NoError(t, err)
	h.loop = loop
	return h
}

// step dispatches the next queued event, as Run would.
func (h *harness) step() {
	h.t.Helper()
	select {
	case ev := <-h.loop.events:
		h.loop.handle(ev)
	case <-time.After(5 * time.Second):
		h.t.Fatal("timed out waiting for loop event")
	}
}

// cycle runs one manual reconciliation that receives reply.
func (h *harness) cycle(snap protocol.Snapshot, err error) {
	h.t.Helper()
	h.loop.handle(triggerEvent{reason: "test"})
	h.tr.replies <- fetchReply{snap: snap, err: err}
	h.step()
}

func snapOf(ids ...string) protocol.Snapshot {
	entries := make([]protocol.Entry, 0, len(ids))
	for i, id := range ids {
		entries = append(entries, protocol.Entry{ID: id, Record: protocol.Record{Status: protocol.StatusRunning, Port: protocol.Port(8001 + i)}})
	}
	return protocol.NewSnapshot(entries...)
}

func TestNewLoop_RequiresCollaborators(t *testing.T) {
	_, err := NewLoop(Options{Subscriptions: newFakeSubs()})
	require.Error(t, err)
	_, err = NewLoop(Options{Transport: newFakeTransport()})
	require.Error(t, err)
}

func TestLoop_FirstDeploymentSubscribesOnce(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf(), nil)
	require.Empty(t, h.subs.subCalls)

	h.cycle(snapOf("A"), nil)
	require.Equal(t, []string{"A"}, h.subs.subCalls)
	require.Equal(t, []string{"A"}, h.subs.Subscribed())

	h.cycle(snapOf("A"), nil)
	require.Equal(t, []string{"A"}, h.subs.subCalls)
}

func TestLoop_GoneDeploymentUnsubscribesAndDropsLogs(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf("A", "B"), nil)
	h.loop.handle(logEvent{id: "A", text: "a-log"})
	h.loop.handle(logEvent{id: "B", text: "b-log"})

	h.cycle(snapOf("B"), nil)

	require.Equal(t, []string{"A"}, h.subs.unsubCalls)
	_, ok := h.loop.state.logs.Get("A")
	require.False(t, ok)
	text, ok := h.loop.state.logs.Get("B")
	require.True(t, ok)
	require.Equal(t, "b-log", text)
}

func TestLoop_LogEventsReplaceNotAppend(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf("A"), nil)

	h.loop.handle(logEvent{id: "A", text: "line1"})
	h.loop.handle(logEvent{id: "A", text: "line1\nline2"})

	text, _ := h.loop.state.logs.Get("A")
	require.Equal(t, "line1\nline2", text)
	require.Equal(t, "line1\nline2", h.loop.lastRender.Fragments[0].Logs)
}

func TestLoop_LogForUnknownDeploymentDropped(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf("A"), nil)
	seq := h.loop.lastRender.Seq

	h.loop.handle(logEvent{id: "ghost", text: "boo"})

	require.Equal(t, 0, len(h.loop.state.logs.IDs()))
	require.Equal(t, seq, h.loop.lastRender.Seq)
}

func TestLoop_FailedFetchKeepsState(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf("A"), nil)
	h.loop.handle(logEvent{id: "A", text: "still here"})
	subCalls := len(h.subs.subCalls)

	h.cycle(protocol.Snapshot{}, &transport.Error{Op: "fetch deployments", Message: "connection refused"})

	require.Equal(t, []string{"A"}, h.loop.state.snapshot.IDs())
	require.Equal(t, []string{"A"}, h.subs.Subscribed())
	require.Len(t, h.subs.subCalls, subCalls)
	require.Empty(t, h.subs.unsubCalls)
	require.Equal(t, "connection refused", h.loop.lastRender.Banner)
	require.Len(t, h.loop.lastRender.Fragments, 1)
	require.Equal(t, "still here", h.loop.lastRender.Fragments[0].Logs)

	// next success clears the banner
	h.cycle(snapOf("A"), nil)
	require.Empty(t, h.loop.lastRender.Banner)
}

func TestLoop_ConvergesForAnySnapshotSequence(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	pool := []string{"a", "b", "c", "d", "e", "f"}

	for run := 0; run < 20; run++ {
		h := newHarness(t)
		var want []string
		for step := 0; step < 40; step++ {
			if rng.Intn(5) == 0 {
				h.cycle(protocol.Snapshot{}, errors.New("flaky"))
			} else {
				ids := append([]string(nil), pool...)
				rng.Shuffle(len(ids), func(i, j int) { ids[i], ids[j] = ids[j], ids[i] })
				ids = ids[:rng.Intn(len(ids)+1)]
				h.cycle(snapOf(ids...), nil)
				want = append([]string(nil), ids...)
				sort.Strings(want)
				for _, id := range ids {
					if rng.Intn(2) == 0 {
						h.loop.handle(logEvent{id: id, text: id})
					}
				}
			}

			got := h.subs.Subscribed()
			if len(want) == 0 {
				require.Empty(t, got)
			} else {
				require.Equal(t, want, got)
			}
			require.Zero(t, h.subs.duplicates)
			for _, id := range h.loop.state.logs.IDs() {
				require.True(t, h.loop.state.snapshot.Has(id))
			}
		}
	}
}

func TestLoop_TriggersCoalesceWhileFetching(t *testing.T) {
	h := newHarness(t)

	h.loop.handle(triggerEvent{reason: "first"})
	require.True(t, h.loop.fetching)
	h.loop.handle(triggerEvent{reason: "a"})
	h.loop.handle(triggerEvent{reason: "b"})
	h.loop.handle(triggerEvent{reason: "c"})

	h.tr.replies <- fetchReply{snap: snapOf("A")}
	h.step()
	require.True(t, h.loop.fetching, "one follow-up fetch")
	require.Empty(t, h.timers)

	h.tr.replies <- fetchReply{snap: snapOf("A", "B")}
	h.step()
	require.False(t, h.loop.fetching)
	require.Equal(t, int32(2), h.tr.fetchCalls.Load())
	require.Len(t, h.timers, 1)
	require.Equal(t, []string{"A", "B"}, h.subs.Subscribed())
}

func TestLoop_IntervalTickStartsNextCycle(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf("A"), nil)
	require.Len(t, h.timers, 1)

	h.timers[0].f()
	h.step()
	require.True(t, h.loop.fetching)

	h.tr.replies <- fetchReply{snap: snapOf()}
	h.step()
	require.Equal(t, int32(2), h.tr.fetchCalls.Load())
	require.Empty(t, h.subs.Subscribed())
	require.Len(t, h.timers, 2)
}

func TestLoop_StaleTickIgnoredAfterManualTrigger(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf("A"), nil)
	stale := h.timers[0]

	h.cycle(snapOf("A"), nil)
	require.True(t, stale.stopped)

	stale.f()
	h.step()
	require.False(t, h.loop.fetching)
	require.Equal(t, int32(2), h.tr.fetchCalls.Load())
}

func TestLoop_StopSuccessForcesReconciliation(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf("A"), nil)

	h.loop.handle(stopRequestEvent{id: "A"})
	require.True(t, h.loop.lastRender.Command.Pending)
	h.step()

	require.Equal(t, []string{"A"}, h.tr.stopCalls)
	require.True(t, h.loop.state.command.Ok)
	require.True(t, h.loop.fetching)

	h.tr.replies <- fetchReply{snap: protocol.NewSnapshot(protocol.Entry{ID: "A", Record: protocol.Record{Status: protocol.StatusStopped, Port: 8001}})}
	h.step()
	require.Equal(t, view.BadgeStopped, h.loop.lastRender.Fragments[0].Badge)
}

func TestLoop_StopFailureSurfacesMessage(t *testing.T) {
	h := newHarness(t)
	h.cycle(snapOf("A"), nil)
	h.tr.stopErr = &transport.Error{Op: "stop", Message: "Deployment not found"}

	h.loop.handle(stopRequestEvent{id: "A"})
	h.step()

	require.False(t, h.loop.state.command.Ok)
	require.Equal(t, "Deployment not found", h.loop.lastRender.Command.Message)
	require.False(t, h.loop.fetching)
	require.Equal(t, []string{"A"}, h.loop.state.snapshot.IDs())
}

func TestLoop_StopWithoutSelection(t *testing.T) {
	h := newHarness(t)
	h.loop.handle(stopRequestEvent{})
	require.Empty(t, h.tr.stopCalls)
	require.Equal(t, "no deployment selected", h.loop.lastRender.Command.Message)
}

func TestLoop_ChannelStateIsRendered(t *testing.T) {
	h := newHarness(t)
	h.loop.handle(channelStateEvent{connected: true})
	require.True(t, h.loop.lastRender.ChannelUp)

	h.loop.handle(channelStateEvent{connected: false, err: errors.New("reset")})
	require.False(t, h.loop.lastRender.ChannelUp)
	require.Equal(t, "reset", h.loop.lastRender.ChannelErr)
}

func TestLoop_RunPublishesAndTearsDown(t *testing.T) {
	tr := newFakeTransport()
	subs := newFakeSubs()
	ps := bus.NewPubSub(nil)
	defer func() { _ = ps.Close() }()

	loop, err := NewLoop(Options{Transport: tr, Subscriptions: subs, Publisher: ps, Interval: time.Hour})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	msgs, err := ps.Subscribe(ctx, bus.TopicDashboard)
	require.NoError(t, err)

	runCtx, stop := context.WithCancel(ctx)
	done := make(chan error, 1)
	go func() { done <- loop.Run(runCtx) }()

	tr.replies <- fetchReply{snap: snapOf("A", "B")}

	var got RenderRequest
	for len(got.Fragments) == 0 {
		select {
		case msg := <-msgs:
			msg.Ack()
			env, err := bus.ParseEnvelope(msg.Payload)
			require.NoError(t, err)
			if env.Type != bus.TypeRenderRequest {
				continue
			}
			require.NoError(t, env.Decode(&got))
		case <-ctx.Done():
			t.Fatal("no render request published")
		}
	}
	require.Equal(t, "A", got.Fragments[0].ID)
	require.Equal(t, "B", got.Fragments[1].ID)

	stop()
	require.NoError(t, <-done)
	require.Empty(t, subs.Subscribed())
}

func writeBundle(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "app.zip")
	require.NoError(t, os.WriteFile(p, []byte(content), 0o644))
	return p
}

func TestUpload_NoFileNeverCallsTransport(t *testing.T) {
	h := newHarness(t)

	h.loop.handle(uploadRequestEvent{})
	h.loop.handle(uploadRequestEvent{paths: []string{"  "}})

	require.Zero(t, h.tr.deployCalls)
	require.Equal(t, UploadFailed, h.loop.lastRender.Upload.Phase)
	require.Equal(t, "no file selected", h.loop.lastRender.Upload.Message)
}

func TestUpload_MissingFileAndDirectory(t *testing.T) {
	h := newHarness(t)

	h.loop.handle(uploadRequestEvent{paths: []string{filepath.Join(t.TempDir(), "nope.zip")}})
	require.Contains(t, h.loop.state.upload.Message, "file not found")

	h.loop.handle(uploadRequestEvent{paths: []string{t.TempDir()}})
	require.Contains(t, h.loop.state.upload.Message, "not a regular file")
	require.Zero(t, h.tr.deployCalls)
}

func TestUpload_SuccessTriggersReconciliation(t *testing.T) {
	h := newHarness(t)
	first := writeBundle(t, "zip-bytes")

	h.loop.handle(uploadRequestEvent{paths: []string{first, "/ignored/second.zip"}})
	require.Equal(t, UploadUploading, h.loop.lastRender.Upload.Phase)
	h.step()

	require.Equal(t, []string{"app.zip:zip-bytes"}, h.tr.deployed)
	up := h.loop.state.upload
	require.Equal(t, UploadSucceeded, up.Phase)
	require.Equal(t, "0123456789abcdef", up.DeploymentID)
	require.Contains(t, up.Message, "01234567")
	require.True(t, h.loop.fetching)
}

func TestUpload_FailureShowsMessageAndIsReusable(t *testing.T) {
	h := newHarness(t)
	h.tr.deployErr = &transport.Error{Op: "deploy", Message: "No file provided"}
	p := writeBundle(t, "x")

	h.loop.handle(uploadRequestEvent{paths: []string{p}})
	h.step()
	require.Equal(t, UploadFailed, h.loop.state.upload.Phase)
	require.Equal(t, "No file provided", h.loop.state.upload.Message)
	require.False(t, h.loop.fetching)

	h.tr.deployErr = nil
	h.loop.handle(uploadRequestEvent{paths: []string{p}})
	h.step()
	require.Equal(t, UploadSucceeded, h.loop.state.upload.Phase)
}

func TestUpload_RejectedWhileBusy(t *testing.T) {
	h := newHarness(t)
	gate := make(chan struct{})
	h.tr.deployGate = gate
	p := writeBundle(t, "x")

	h.loop.handle(uploadRequestEvent{paths: []string{p}})
	h.loop.handle(uploadRequestEvent{paths: []string{p}})
	require.Equal(t, UploadUploading, h.loop.state.upload.Phase)

	close(gate)
	h.step()
	require.Equal(t, 1, h.tr.deployCalls)
	require.Equal(t, UploadSucceeded, h.loop.state.upload.Phase)
}

func TestCleanDroppedPath(t *testing.T) {
	require.Equal(t, "/tmp/my app.zip", CleanDroppedPath(`'/tmp/my app.zip'`))
	require.Equal(t, "/tmp/my app.zip", CleanDroppedPath(`/tmp/my\ app.zip`))
	require.Equal(t, "/tmp/a.zip", CleanDroppedPath(" file:///tmp/a.zip\n"))
	require.Equal(t, []string{"/a", "/b"}, SplitDroppedPaths("/a\n\n /b \n"))
}
