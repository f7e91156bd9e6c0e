package main

import (
	"io"
	"time"

	"github.com/go-go-golems/deployctl/pkg/channel"
	"github.com/go-go-golems/deployctl/pkg/config"
	"github.com/go-go-golems/deployctl/pkg/logging"
	"github.com/go-go-golems/deployctl/pkg/transport"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type rootOptions struct {
	configPath   string
	backend      string
	logLevel     string
	logFile      string
	pollInterval time.Duration
	channelKind  string
	channelURL   string

	cfg       config.Config
	logCloser io.Closer
}

// newRootCommand returns the command tree and a func that closes the log
// sink opened while running it. Call it after Execute, whatever the outcome.
func newRootCommand() (*cobra.Command, func() error) {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:           "deployctl",
		Short:         "Deploy bundles and watch deployments from the terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&opts.configPath, "config", "", "YAML config file")
	pf.StringVar(&opts.backend, "backend", "", "backend base URL")
	pf.StringVar(&opts.logLevel, "log-level", "", "log level (trace, debug, info, warn, error)")
	pf.StringVar(&opts.logFile, "log-file", "", "log file used while the dashboard runs")
	pf.DurationVar(&opts.pollInterval, "interval", 0, "poll interval")
	pf.StringVar(&opts.channelKind, "channel", "", "log channel: websocket, mqtt or none")
	pf.StringVar(&opts.channelURL, "channel-url", "", "log channel endpoint")

	dash := newDashboardCommand(opts)
	root.RunE = dash.RunE
	root.AddCommand(
		dash,
		newListCommand(opts),
		newShowCommand(opts),
		newDeployCommand(opts),
		newStopCommand(opts),
		newLogsCommand(opts),
	)
	return root, opts.closeLog
}

func (o *rootOptions) closeLog() error {
	if o.logCloser == nil {
		return nil
	}
	err := o.logCloser.Close()
	o.logCloser = nil
	return err
}

// load resolves the configuration and sets up logging. The dashboard logs to
// a file because the terminal belongs to the UI.
func (o *rootOptions) load(flags *pflag.FlagSet, toFile bool) error {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return err
	}
	if flags.Changed("backend") {
		cfg.BackendURL = o.backend
	}
	if flags.Changed("log-level") {
		cfg.LogLevel = o.logLevel
	}
	if flags.Changed("log-file") {
		cfg.LogFile = o.logFile
	}
	if flags.Changed("interval") {
		cfg.PollInterval = o.pollInterval
	}
	if flags.Changed("channel") {
		cfg.ChannelKind = config.ChannelKind(o.channelKind)
	}
	if flags.Changed("channel-url") {
		cfg.ChannelURL = o.channelURL
	}
	if err := cfg.Validate(); err != nil {
		return errors.Wrap(err, "invalid config")
	}
	o.cfg = cfg

	lo := logging.Options{Level: cfg.LogLevel}
	if toFile {
		lo.File = cfg.LogFile
		lo.MaxSizeMB = cfg.LogMaxSizeMB
		lo.MaxBackups = cfg.LogMaxBackups
	}
	closer, err := logging.Setup(lo)
	if err != nil {
		return err
	}
	o.logCloser = closer
	return nil
}

func (o *rootOptions) client() (*transport.Client, error) {
	return transport.NewClient(transport.Options{
		BaseURL:        o.cfg.BackendURL,
		RequestTimeout: o.cfg.RequestTimeout,
	})
}

func (o *rootOptions) conn() (channel.Conn, error) {
	if o.cfg.ChannelKind == config.ChannelNone {
		return channel.NopConn{}, nil
	}
	endpoint, err := o.cfg.ChannelEndpoint()
	if err != nil {
		return nil, err
	}
	if o.cfg.ChannelKind == config.ChannelMQTT {
		return channel.NewMQTTConn(channel.MQTTOptions{
			Broker:               endpoint,
			ClientID:             o.cfg.ChannelClientID,
			MaxReconnectInterval: o.cfg.ChannelMaxBackoff,
		}), nil
	}
	return channel.NewWebsocketConn(channel.WebsocketOptions{
		URL:        endpoint,
		MinBackoff: o.cfg.ChannelMinBackoff,
		MaxBackoff: o.cfg.ChannelMaxBackoff,
	}), nil
}
