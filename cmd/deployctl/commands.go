package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/dustin/go-humanize"
	"github.com/go-go-golems/deployctl/pkg/dashboard"
	"github.com/go-go-golems/deployctl/pkg/protocol"
	"github.com/go-go-golems/deployctl/pkg/view"
	jsoniter "github.com/json-iterator/go"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func addOutputFlag(cmd *cobra.Command, target *string) {
	cmd.Flags().StringVarP(target, "output", "o", outputTable, "output format: table, json or yaml")
}

// writeFragments prints fragments in snapshot order in the chosen format.
func writeFragments(w io.Writer, format string, frags []view.Fragment, container string) error {
	switch format {
	case outputJSON:
		b, err := json.MarshalIndent(frags, "", "  ")
		if err != nil {
			return errors.Wrap(err, "encode json")
		}
		_, err = fmt.Fprintln(w, string(b))
		return err
	case outputYAML:
		b, err := yaml.Marshal(frags)
		if err != nil {
			return errors.Wrap(err, "encode yaml")
		}
		_, err = w.Write(b)
		return err
	case outputTable:
	default:
		return errors.Errorf("unknown output format %q", format)
	}

	if len(frags) == 0 {
		_, err := fmt.Fprintln(w, "no deployments")
		return err
	}
	headers := []string{"ID", "STATUS", "PORT", "LINK"}
	if container != "" {
		headers = append(headers, "CONTAINER")
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(headers...)
	for _, f := range frags {
		row := []string{f.ShortID, string(f.Status), strconv.Itoa(f.Port), f.Link}
		if container != "" {
			row = append(row, container)
		}
		t.Row(row...)
	}
	_, err := fmt.Fprintln(w, t.Render())
	return err
}

func newListCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List deployments",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd.Flags(), false); err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			snap, err := client.FetchSnapshot(cmd.Context())
			if err != nil {
				return err
			}
			frags := view.Render(snap, nil, view.Options{LinkHost: opts.cfg.LinkHost})
			return writeFragments(cmd.OutOrStdout(), output, frags, "")
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newShowCommand(opts *rootOptions) *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "show ID",
		Short: "Show one deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd.Flags(), false); err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			rec, err := client.FetchDeployment(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			snap := protocol.NewSnapshot(protocol.Entry{ID: args[0], Record: rec})
			frags := view.Render(snap, nil, view.Options{LinkHost: opts.cfg.LinkHost, ShortIDLen: len(args[0])})
			return writeFragments(cmd.OutOrStdout(), output, frags, rec.ContainerID)
		},
	}
	addOutputFlag(cmd, &output)
	return cmd
}

func newDeployCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "deploy FILE",
		Short: "Upload a bundle and deploy it",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd.Flags(), false); err != nil {
				return err
			}
			path, info, err := dashboard.SelectUpload(args)
			if err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			f, err := os.Open(path)
			if err != nil {
				return errors.Wrap(err, "open bundle")
			}
			defer func() { _ = f.Close() }()

			name := filepath.Base(path)
			res, err := client.IssueDeploy(cmd.Context(), name, f)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "deployed %s (%s) as %s\n", name, humanize.Bytes(uint64(info.Size())), res.ID)
			return err
		},
	}
}

func newStopCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "stop ID",
		Short: "Stop a deployment",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.load(cmd.Flags(), false); err != nil {
				return err
			}
			client, err := opts.client()
			if err != nil {
				return err
			}
			if err := client.IssueStop(cmd.Context(), args[0]); err != nil {
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "stopped %s\n", args[0])
			return err
		},
	}
}
