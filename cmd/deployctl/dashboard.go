package main

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/deployctl/pkg/bus"
	"github.com/go-go-golems/deployctl/pkg/channel"
	"github.com/go-go-golems/deployctl/pkg/dashboard"
	"github.com/go-go-golems/deployctl/pkg/logging"
	"github.com/go-go-golems/deployctl/pkg/tui"
	"github.com/go-go-golems/deployctl/pkg/tui/models"
	"github.com/go-go-golems/deployctl/pkg/view"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newDashboardCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Live dashboard of all deployments (default)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd.Flags(), true); err != nil {
				return err
			}
			return runDashboard(cmd.Context(), opts)
		},
	}
}

func runDashboard(ctx context.Context, opts *rootOptions) error {
	cfg := opts.cfg
	client, err := opts.client()
	if err != nil {
		return err
	}
	conn, err := opts.conn()
	if err != nil {
		return err
	}

	ps := bus.NewPubSub(logging.Watermill())
	defer func() { _ = ps.Close() }()

	mux := channel.NewMultiplexer(conn)
	defer func() { _ = mux.Close() }()

	loop, err := dashboard.NewLoop(dashboard.Options{
		Transport:     client,
		Subscriptions: mux,
		Publisher:     ps,
		Interval:      cfg.PollInterval,
		View:          view.Options{LinkHost: cfg.LinkHost},
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	eg, ctx := errgroup.WithContext(ctx)

	program := tea.NewProgram(models.NewRootModel(tui.ActionPublisher{Pub: ps}), tea.WithAltScreen(), tea.WithContext(ctx))

	eg.Go(func() error {
		return (&tui.Forwarder{Sub: ps, Target: program}).Run(ctx)
	})
	eg.Go(func() error {
		return loop.ServeActions(ctx, ps)
	})
	eg.Go(func() error {
		return loop.Run(ctx)
	})
	eg.Go(func() error {
		defer cancel()
		_, err := program.Run()
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil
		}
		return errors.Wrap(err, "run dashboard")
	})

	if err := mux.Start(ctx, loop); err != nil {
		cancel()
		_ = eg.Wait()
		return errors.Wrap(err, "start log channel")
	}
	log.Info().
		Str("backend", client.BaseURL()).
		Str("channel", string(cfg.ChannelKind)).
		Dur("interval", cfg.PollInterval).
		Msg("dashboard started")

	return eg.Wait()
}
