package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"sceneselect/internal/jobscript"
)

func (a *app) nodesCmd() *cobra.Command {
	var (
		count    int
		workList string
	)
	cmd := &cobra.Command{
		Use:   "nodes",
		Short: "Estimate the batch nodes needed for a work list",
		Long: `Print the number of nodes needed to process --count scenes (or the
non-empty lines of --work-list) within the configured walltime.

Examples:
  sceneselect nodes --count 400 --walltime 10 --workers 48
  sceneselect nodes --work-list runs/20240101T000000Z-1a2b3c4d/scenes.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if workList != "" {
				n, err := countLines(workList)
				if err != nil {
					return err
				}
				count = n
			} else if !cmd.Flags().Changed("count") {
				return errors.New("one of --count or --work-list required")
			}
			jc := a.cfg.Jobs
			est, err := jobscript.NodesRequired(count, jc.WalltimeHours, jc.Workers, jc.HoursPerItem)
			if err != nil {
				return err
			}
			if est.Warning != "" {
				a.logger.Warn("job may not fit in walltime", "detail", est.Warning)
			}
			_, err = fmt.Fprintln(a.stdout, est.Nodes)
			return err
		},
	}
	f := cmd.Flags()
	f.IntVar(&count, "count", 0, "number of scenes")
	f.StringVar(&workList, "work-list", "", "work list file to count")
	f.Float64("walltime", 0, "job walltime in hours")
	f.Int("workers", 0, "workers per node")
	f.Float64("hours-per-item", 0, "processing hours per scene")
	return cmd
}

func countLines(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open work list: %w", err)
	}
	defer func() { _ = f.Close() }()
	n := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		if strings.TrimSpace(sc.Text()) != "" {
			n++
		}
	}
	if err := sc.Err(); err != nil {
		return 0, fmt.Errorf("read work list: %w", err)
	}
	return n, nil
}
