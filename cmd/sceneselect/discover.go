package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"sceneselect/internal/discovery"
)

const dateLayout = "2006-01-02"

func (a *app) discoverCmd() *cobra.Command {
	var (
		opts       discovery.Options
		from, to   string
		outputPath string
	)
	cmd := &cobra.Command{
		Use:   "discover",
		Short: "List Level-1 metadata documents found on disk",
		Long: `Walk <root>/YYYY/YYYY-MM/ directories and print every metadata document
found. Used to build a work list when the catalogue is unavailable.

Examples:
  sceneselect discover --root /g/data/da82/AODH/USGS/L1/Landsat/C1 --from 2020-01-01
  sceneselect discover --root ./l1 --workers 16 --output scenes.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			var err error
			if opts.From, err = parseDate(from); err != nil {
				return fmt.Errorf("--from: %w", err)
			}
			if opts.To, err = parseDate(to); err != nil {
				return fmt.Errorf("--to: %w", err)
			}
			if !opts.To.IsZero() {
				opts.To = opts.To.Add(24*time.Hour - time.Nanosecond)
			}
			return a.runDiscover(cmd.Context(), opts, outputPath)
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.Root, "root", "", "archive root containing YYYY/YYYY-MM directories")
	f.IntVar(&opts.Workers, "workers", 8, "concurrent month scans")
	f.StringVar(&opts.Pattern, "pattern", discovery.DefaultPattern, "metadata file glob")
	f.StringVar(&from, "from", "", "earliest acquisition month (YYYY-MM-DD)")
	f.StringVar(&to, "to", "", "latest acquisition month (YYYY-MM-DD)")
	f.StringVar(&outputPath, "output", "-", `output file ("-" for stdout)`)
	_ = cmd.MarkFlagRequired("root")
	return cmd
}

func (a *app) runDiscover(ctx context.Context, opts discovery.Options, outputPath string) error {
	var w io.Writer = a.stdout
	if outputPath != "-" {
		f, err := os.Create(outputPath)
		if err != nil {
			return fmt.Errorf("create output: %w", err)
		}
		defer func() { _ = f.Close() }()
		w = f
	}
	n, err := discovery.Walk(ctx, opts, w)
	if err != nil {
		return err
	}
	a.logger.Info("discovery complete", "root", opts.Root, "documents", n)
	return nil
}

func parseDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}
