package transport

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-go-golems/deployctl/pkg/protocol"
	"github.com/hashicorp/go-uuid"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	maxResponseBytes = 8 << 20
	requestIDHeader  = "X-Request-Id"
)

type Options struct {
	BaseURL string
	// RequestTimeout bounds fetch and stop requests. Zero leaves them to the
	// context. Uploads are never cut off by it.
	RequestTimeout time.Duration
	HTTPClient     *http.Client
}

// Client talks to the deployment backend. It never retries.
type Client struct {
	base    *url.URL
	http    *http.Client
	timeout time.Duration
}

func NewClient(opts Options) (*Client, error) {
	if strings.TrimSpace(opts.BaseURL) == "" {
		return nil, errors.New("missing BaseURL")
	}
	base, err := url.Parse(opts.BaseURL)
	if err != nil {
		return nil, errors.Wrap(err, "parse base url")
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, errors.Errorf("unsupported base url scheme %q", base.Scheme)
	}
	hc := opts.HTTPClient
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{base: base, http: hc, timeout: opts.RequestTimeout}, nil
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) FetchSnapshot(ctx context.Context) (protocol.Snapshot, error) {
	var snap protocol.Snapshot
	if err := c.do(ctx, "fetch deployments", http.MethodGet, "/deployments", nil, "", &snap); err != nil {
		return protocol.Snapshot{}, err
	}
	return snap, nil
}

func (c *Client) FetchDeployment(ctx context.Context, id string) (protocol.Record, error) {
	var rec protocol.Record
	if err := c.do(ctx, "fetch deployment", http.MethodGet, "/deployment/"+url.PathEscape(id), nil, "", &rec); err != nil {
		return protocol.Record{}, err
	}
	return rec, nil
}

// IssueDeploy uploads body as the multipart field "file" named name.
func (c *Client) IssueDeploy(ctx context.Context, name string, body io.Reader) (protocol.DeployResult, error) {
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", name)
		if err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		if _, err := io.Copy(part, body); err != nil {
			_ = pw.CloseWithError(err)
			return
		}
		_ = pw.CloseWithError(mw.Close())
	}()

	var res protocol.DeployResult
	err := c.send(ctx, 0, "deploy", http.MethodPost, "/deploy", pr, mw.FormDataContentType(), &res)
	_ = pr.Close()
	if err != nil {
		return protocol.DeployResult{}, err
	}
	if res.ID == "" {
		return protocol.DeployResult{}, newError("deploy", http.StatusOK, "malformed response: missing deployment id", nil)
	}
	return res, nil
}

func (c *Client) IssueStop(ctx context.Context, id string) error {
	var ack protocol.StopAck
	if err := c.do(ctx, "stop", http.MethodPost, "/deployment/"+url.PathEscape(id)+"/stop", nil, "", &ack); err != nil {
		return err
	}
	if !ack.Acknowledged() {
		return newError("stop", http.StatusOK, "backend did not acknowledge stop", nil)
	}
	return nil
}

func (c *Client) do(ctx context.Context, op, method, path string, body io.Reader, contentType string, out any) error {
	return c.send(ctx, c.timeout, op, method, path, body, contentType, out)
}

func (c *Client) send(ctx context.Context, timeout time.Duration, op, method, path string, body io.Reader, contentType string, out any) error {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	u := c.base.JoinPath(path)
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return newError(op, 0, err.Error(), err)
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("Accept", "application/json")
	rid, err := uuid.GenerateUUID()
	if err == nil {
		req.Header.Set(requestIDHeader, rid)
	}

	started := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		log.Debug().Err(err).Str("op", op).Str("request_id", rid).Msg("request failed")
		if ctxErr := ctx.Err(); ctxErr != nil {
			return newError(op, 0, ctxErr.Error(), err)
		}
		return newError(op, 0, networkMessage(err), err)
	}
	defer func() { _ = resp.Body.Close() }()

	b, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return newError(op, resp.StatusCode, "read response: "+err.Error(), err)
	}
	log.Debug().
		Str("op", op).
		Str("request_id", rid).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(started)).
		Msg("request done")

	var eb protocol.ErrorBody
	if json.Unmarshal(b, &eb) == nil && eb.Error != "" {
		return newError(op, resp.StatusCode, eb.Error, nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		msg := strings.TrimSpace(string(b))
		if msg == "" || len(msg) > 200 {
			msg = http.StatusText(resp.StatusCode)
		}
		return newError(op, resp.StatusCode, fmt.Sprintf("unexpected status %d: %s", resp.StatusCode, msg), nil)
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(b, out); err != nil {
		return newError(op, resp.StatusCode, "malformed response: "+err.Error(), err)
	}
	return nil
}

func networkMessage(err error) string {
	var ue *url.Error
	if errors.As(err, &ue) && ue.Err != nil {
		return ue.Err.Error()
	}
	return err.Error()
}
