package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-go-golems/deployctl/pkg/protocol"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := NewClient(Options{BaseURL: srv.URL})
	require.NoError(t, err)
	return c
}

func TestNewClient_Validation(t *testing.T) {
	_, err := NewClient(Options{})
	require.Error(t, err)

	_, err = NewClient(Options{BaseURL: "ftp://example.com"})
	require.Error(t, err)
}

func TestFetchSnapshot_OK(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodGet, r.Method)
		require.Equal(t, "/deployments", r.URL.Path)
		require.NotEmpty(t, r.Header.Get(requestIDHeader))
		_, _ = io.WriteString(w, `{"b":{"status":"running","port":8002},"a":{"status":"stopped","port":"8001"}}`)
	})

	snap, err := c.FetchSnapshot(context.Background())
	require.NoError(t, err)
	require.Equal(t, []string{"b", "a"}, snap.IDs())
	rec, _ := snap.Get("a")
	require.Equal(t, protocol.Port(8001), rec.Port)
}

func TestFetchSnapshot_ErrorBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"error":"docker daemon unavailable"}`)
	})

	_, err := c.FetchSnapshot(context.Background())
	require.Error(t, err)
	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, "docker daemon unavailable", te.Message)
	require.Equal(t, http.StatusInternalServerError, te.StatusCode)
	require.Equal(t, "docker daemon unavailable", Message(err))
}

func TestFetchSnapshot_StatusWithoutBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	})

	_, err := c.FetchSnapshot(context.Background())
	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, http.StatusBadGateway, te.StatusCode)
	require.Contains(t, te.Message, "502")
}

func TestFetchSnapshot_Malformed(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `<html>oops</html>`)
	})

	_, err := c.FetchSnapshot(context.Background())
	te, ok := AsError(err)
	require.True(t, ok)
	require.True(t, strings.HasPrefix(te.Message, "malformed response"))
}

func TestFetchSnapshot_ConnectionRefused(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	base := srv.URL
	srv.Close()

	c, err := NewClient(Options{BaseURL: base})
	require.NoError(t, err)

	_, err = c.FetchSnapshot(context.Background())
	te, ok := AsError(err)
	require.True(t, ok)
	require.Equal(t, 0, te.StatusCode)
	require.NotEmpty(t, te.Message)
}

func TestFetchSnapshot_RequestTimeout(t *testing.T) {
	release := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	}))
	t.Cleanup(srv.Close)
	t.Cleanup(func() { close(release) })

	c, err := NewClient(Options{BaseURL: srv.URL, RequestTimeout: 50 * time.Millisecond})
	require.NoError(t, err)

	_, err = c.FetchSnapshot(context.Background())
	te, ok := AsError(err)
	require.True(t, ok)
	require.Contains(t, te.Message, "deadline")
}

func TestIssueDeploy_IgnoresRequestTimeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.Copy(io.Discard, r.Body)
		time.Sleep(200 * time.Millisecond)
		_, _ = io.WriteString(w, `{"id":"slow-1"}`)
	}))
	t.Cleanup(srv.Close)

	c, err := NewClient(Options{BaseURL: srv.URL, RequestTimeout: 50 * time.Millisecond})
	require.NoError(t, err)
	require.Equal(t, srv.URL, c.BaseURL())

	res, err := c.IssueDeploy(context.Background(), "big.zip", strings.NewReader("bundle"))
	require.NoError(t, err)
	require.Equal(t, "slow-1", res.ID)
}

func TestIssueDeploy_Multipart(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/deploy", r.URL.Path)
		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		b, err := io.ReadAll(f)
		require.NoError(t, err)
		require.Equal(t, "app.zip", hdr.Filename)
		require.Equal(t, "bundle-bytes", string(b))
		_, _ = io.WriteString(w, `{"deployment_id":"d-1","url":"http://localhost:32768","status":"deployed"}`)
	})

	res, err := c.IssueDeploy(context.Background(), "app.zip", strings.NewReader("bundle-bytes"))
	require.NoError(t, err)
	require.Equal(t, "d-1", res.ID)
	require.Equal(t, "http://localhost:32768", res.URL)
}

func TestIssueDeploy_BackendError(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = io.WriteString(w, `{"error":"No file provided"}`)
	})

	_, err := c.IssueDeploy(context.Background(), "app.zip", strings.NewReader("x"))
	require.Equal(t, "No file provided", Message(err))
}

func TestIssueDeploy_MissingID(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"status":"deployed"}`)
	})

	_, err := c.IssueDeploy(context.Background(), "app.zip", strings.NewReader("x"))
	require.Contains(t, Message(err), "missing deployment id")
}

func TestIssueStop(t *testing.T) {
	for _, body := range []string{`{"ok":true}`, `{"status":"stopped"}`} {
		c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
			require.Equal(t, http.MethodPost, r.Method)
			require.Equal(t, "/deployment/abc/stop", r.URL.Path)
			_, _ = io.WriteString(w, body)
		})
		require.NoError(t, c.IssueStop(context.Background(), "abc"))
	}
}

func TestIssueStop_NotFound(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"error":"Deployment not found"}`)
	})

	err := c.IssueStop(context.Background(), "nope")
	require.Equal(t, "Deployment not found", Message(err))
	require.Equal(t, "stop: Deployment not found", err.Error())
}

func TestFetchDeployment(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/deployment/abc", r.URL.Path)
		_, _ = io.WriteString(w, `{"status":"running","port":8080,"container_id":"c"}`)
	})

	rec, err := c.FetchDeployment(context.Background(), "abc")
	require.NoError(t, err)
	require.Equal(t, protocol.Port(8080), rec.Port)
}
