package view

import (
	"testing"

	"github.com/go-go-golems/deployctl/pkg/protocol"
	"github.com/stretchr/testify/require"
)

type mapLogs map[string]string

func (m mapLogs) Get(id string) (string, bool) {
	v, ok := m[id]
	return v, ok
}

func TestRender_OrderBadgesAndLogs(t *testing.T) {
	snap := protocol.NewSnapshot(
		protocol.Entry{ID: "9f1c2d3e-aaaa-bbbb", Record: protocol.Record{Status: protocol.StatusRunning, Port: 8001}},
		protocol.Entry{ID: "b", Record: protocol.Record{Status: protocol.StatusStopped, Port: 8002}},
		protocol.Entry{ID: "c", Record: protocol.Record{Status: "crashed", Port: 8003}},
	)
	logs := mapLogs{"b": "line1\nline2"}

	got := Render(snap, logs, Options{})
	require.Len(t, got, 3)

	require.Equal(t, "9f1c2d3e", got[0].ShortID)
	require.Equal(t, BadgeRunning, got[0].Badge)
	require.Equal(t, "http://localhost:8001", got[0].Link)
	require.Equal(t, "", got[0].Logs)

	require.Equal(t, "b", got[1].ShortID)
	require.Equal(t, BadgeStopped, got[1].Badge)
	require.Equal(t, "line1\nline2", got[1].Logs)

	require.Equal(t, protocol.Status("crashed"), got[2].Status)
	require.Equal(t, BadgeStopped, got[2].Badge)
	require.Equal(t, 8003, got[2].Port)
}

func TestRender_IsIdempotent(t *testing.T) {
	snap := protocol.NewSnapshot(protocol.Entry{ID: "a", Record: protocol.Record{Status: protocol.StatusRunning, Port: 1}})
	logs := mapLogs{"a": "x"}
	require.Equal(t, Render(snap, logs, Options{}), Render(snap, logs, Options{}))
}

func TestRender_EmptyAndNilLogs(t *testing.T) {
	require.Empty(t, Render(protocol.Snapshot{}, nil, Options{}))

	snap := protocol.NewSnapshot(protocol.Entry{ID: "a", Record: protocol.Record{Status: protocol.StatusRunning, Port: 1}})
	got := Render(snap, nil, Options{LinkHost: "10.0.0.5", ShortIDLen: 4})
	require.Equal(t, "http://10.0.0.5:1", got[0].Link)
	require.Equal(t, "", got[0].Logs)
}

func TestShortID(t *testing.T) {
	require.Equal(t, "abc", ShortID("abc", 8))
	require.Equal(t, "abcdefgh", ShortID("abcdefghijk", 8))
}
