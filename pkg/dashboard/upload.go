package dashboard

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/deployctl/pkg/transport"
	"github.com/go-go-golems/deployctl/pkg/view"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
)

type UploadPhase string

const (
	UploadIdle      UploadPhase = "idle"
	UploadUploading UploadPhase = "uploading"
	UploadSucceeded UploadPhase = "succeeded"
	UploadFailed    UploadPhase = "failed"
)

type UploadStatus struct {
	Phase        UploadPhase `json:"phase"`
	File         string      `json:"file,omitempty"`
	Size         int64       `json:"size,omitempty"`
	DeploymentID string      `json:"deployment_id,omitempty"`
	Message      string      `json:"message,omitempty"`
}

// Busy reports whether an upload is in flight. Succeeded and Failed accept a
// new upload right away.
func (s UploadStatus) Busy() bool {
	return s.Phase == UploadUploading
}

// SelectUpload picks the first of paths and checks that it names a regular
// file. Terminals deliver drag-and-drop as pasted text, possibly quoted or
// with escaped spaces, so each path is cleaned first.
func SelectUpload(paths []string) (string, os.FileInfo, error) {
	var first string
	for _, p := range paths {
		if p = CleanDroppedPath(p); p != "" {
			first = p
			break
		}
	}
	if first == "" {
		return "", nil, &ValidationError{Reason: "no file selected"}
	}
	info, err := os.Stat(first)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil, &ValidationError{Reason: "file not found: " + first}
		}
		return "", nil, &ValidationError{Reason: err.Error()}
	}
	if !info.Mode().IsRegular() {
		return "", nil, &ValidationError{Reason: "not a regular file: " + first}
	}
	return first, info, nil
}

func CleanDroppedPath(p string) string {
	p = strings.TrimSpace(p)
	if len(p) >= 2 {
		if (p[0] == '\'' && p[len(p)-1] == '\'') || (p[0] == '"' && p[len(p)-1] == '"') {
			p = p[1 : len(p)-1]
		}
	}
	p = strings.TrimPrefix(p, "file://")
	p = strings.ReplaceAll(p, `\ `, " ")
	return p
}

// SplitDroppedPaths splits pasted text holding one or more dropped paths.
func SplitDroppedPaths(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}

func (l *Loop) startUpload(paths []string) {
	if l.state.upload.Busy() {
		log.Warn().Str("file", l.state.upload.File).Msg("upload already in progress")
		l.activity(LevelWarn, "upload already in progress: "+l.state.upload.File)
		return
	}
	path, info, err := SelectUpload(paths)
	if err != nil {
		l.state.upload = UploadStatus{Phase: UploadFailed, Message: err.Error()}
		l.activity(LevelWarn, "upload rejected: "+err.Error())
		l.render()
		return
	}

	name := filepath.Base(path)
	l.state.upload = UploadStatus{Phase: UploadUploading, File: name, Size: info.Size()}
	l.render()
	log.Info().Str("file", path).Int64("size", info.Size()).Msg("uploading bundle")

	ctx := l.ctx
	go func() {
		f, err := os.Open(path)
		if err != nil {
			l.post(uploadDoneEvent{err: errors.Wrap(err, "open bundle")})
			return
		}
		defer func() { _ = f.Close() }()
		res, err := l.transport.IssueDeploy(ctx, name, f)
		l.post(uploadDoneEvent{res: res, err: err})
	}()
}

func (l *Loop) finishUpload(e uploadDoneEvent) {
	prev := l.state.upload
	if e.err != nil {
		msg := transport.Message(e.err)
		log.Warn().Err(e.err).Str("file", prev.File).Msg("upload failed")
		l.state.upload = UploadStatus{Phase: UploadFailed, File: prev.File, Size: prev.Size, Message: msg}
		l.activity(LevelError, "upload "+prev.File+" failed: "+msg)
		l.render()
		return
	}

	short := view.ShortID(e.res.ID, 8)
	msg := "deployed " + prev.File + " (" + humanize.Bytes(uint64(prev.Size)) + ") as " + short
	l.state.upload = UploadStatus{
		Phase:        UploadSucceeded,
		File:         prev.File,
		Size:         prev.Size,
		DeploymentID: e.res.ID,
		Message:      msg,
	}
	l.activity(LevelInfo, msg)
	l.render()
	l.requestFetch("upload")
}
