package protocol

import (
	"strconv"
	"strings"

	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status is the lifecycle state reported by the backend. Only "running" and
// "stopped" are known; anything else is passed through verbatim.
type Status string

const (
	StatusRunning Status = "running"
	StatusStopped Status = "stopped"
)

func (s Status) Running() bool {
	return s == StatusRunning
}

// Port accepts either a JSON number or a numeric string.
type Port int

func (p *Port) UnmarshalJSON(b []byte) error {
	raw := strings.TrimSpace(string(b))
	if raw == "null" || raw == `""` {
		*p = 0
		return nil
	}
	raw = strings.Trim(raw, `"`)
	v, err := strconv.Atoi(raw)
	if err != nil {
		return errors.Wrapf(err, "parse port %q", raw)
	}
	*p = Port(v)
	return nil
}

type Record struct {
	Status      Status `json:"status"`
	Port        Port   `json:"port"`
	ContainerID string `json:"container_id,omitempty"`
}

// ErrorBody is the structured failure payload used by every endpoint.
type ErrorBody struct {
	Error string `json:"error"`
}

type DeployResult struct {
	ID     string `json:"id"`
	URL    string `json:"url,omitempty"`
	Status string `json:"status,omitempty"`
}

func (r *DeployResult) UnmarshalJSON(b []byte) error {
	var raw struct {
		ID           string `json:"id"`
		DeploymentID string `json:"deployment_id"`
		URL          string `json:"url"`
		Status       string `json:"status"`
	}
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	if r.ID == "" {
		r.ID = raw.DeploymentID
	}
	r.URL = raw.URL
	r.Status = raw.Status
	return nil
}

type StopAck struct {
	Ok     bool   `json:"ok"`
	Status string `json:"status,omitempty"`
}

// Acknowledged accepts both {"ok": true} and {"status": "stopped"}.
func (a StopAck) Acknowledged() bool {
	return a.Ok || Status(a.Status) == StatusStopped
}

// LogPayload is the push-channel body: the full current log text.
type LogPayload struct {
	Logs string `json:"logs"`
}

func DecodeLogPayload(b []byte) (LogPayload, error) {
	var p LogPayload
	if err := json.Unmarshal(b, &p); err != nil {
		return LogPayload{}, errors.Wrap(err, "decode log payload")
	}
	return p, nil
}

const LogTopicPrefix = "logs_"

func Topic(id string) string {
	return LogTopicPrefix + id
}

// IDFromTopic reverses Topic. ok is false for topics outside the log namespace.
func IDFromTopic(topic string) (string, bool) {
	if !strings.HasPrefix(topic, LogTopicPrefix) {
		return "", false
	}
	id := strings.TrimPrefix(topic, LogTopicPrefix)
	if id == "" {
		return "", false
	}
	return id, true
}
