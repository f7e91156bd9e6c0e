package main

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/go-go-golems/deployctl/pkg/channel"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newLogsCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "logs ID",
		Short: "Follow the console output of one deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd.Flags(), false); err != nil {
				return err
			}
			conn, err := opts.conn()
			if err != nil {
				return err
			}
			mux := channel.NewMultiplexer(conn)
			defer func() { _ = mux.Close() }()

			ctx := cmd.Context()
			if err := mux.Start(ctx, &logFollower{out: cmd.OutOrStdout()}); err != nil {
				return errors.Wrap(err, "start log channel")
			}
			mux.Subscribe(args[0])
			<-ctx.Done()
			return nil
		},
	}
}

// logFollower prints log text as it grows. Each event carries the whole log,
// so only the part not yet printed is written.
type logFollower struct {
	mu      sync.Mutex
	out     io.Writer
	printed string
}

func (f *logFollower) OnLog(id, text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if strings.HasPrefix(text, f.printed) {
		_, _ = io.WriteString(f.out, text[len(f.printed):])
	} else {
		// log was truncated or rotated on the backend
		_, _ = fmt.Fprintf(f.out, "\n--- log restarted ---\n%s", text)
	}
	f.printed = text
}

func (f *logFollower) OnChannelState(connected bool, err error) {
	if connected {
		log.Info().Msg("log channel connected")
		return
	}
	log.Warn().Err(err).Msg("log channel down, reconnecting")
}
