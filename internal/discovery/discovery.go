// Package discovery finds Level-1 metadata documents on disk when the
// catalogue is unavailable.
package discovery

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// DefaultPattern matches dataset metadata documents.
const DefaultPattern = "*.odc-metadata.yaml"

var (
	yearDir  = regexp.MustCompile(`^\d{4}$`)
	monthDir = regexp.MustCompile(`^(\d{4})-(\d{2})$`)
)

// Options configures a walk.
type Options struct {
	Root string
	// Workers bounds concurrent month scans; values below one mean one.
	Workers int
	Pattern string
	// From and To, when set, restrict the walk to months overlapping them.
	From, To time.Time
}

// Walk scans <root>/YYYY/YYYY-MM/ directories and writes every matching path,
// one per line. Each month's paths are sorted and written together; months
// complete in any order. It returns the number of paths written.
func Walk(ctx context.Context, opts Options, w io.Writer) (int, error) {
	if opts.Root == "" {
		return 0, errors.New("discovery root required")
	}
	if opts.Pattern == "" {
		opts.Pattern = DefaultPattern
	}
	if _, err := filepath.Match(opts.Pattern, ""); err != nil {
		return 0, fmt.Errorf("bad pattern %q: %w", opts.Pattern, err)
	}
	months, err := monthDirs(opts)
	if err != nil {
		return 0, err
	}

	var (
		mu    sync.Mutex
		total int
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(max(opts.Workers, 1))
	for _, dir := range months {
		dir := dir
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			paths, err := scanMonth(dir, opts.Pattern)
			if err != nil {
				return err
			}
			mu.Lock()
			defer mu.Unlock()
			for _, p := range paths {
				if _, err := fmt.Fprintln(w, p); err != nil {
					return fmt.Errorf("write discovery output: %w", err)
				}
			}
			total += len(paths)
			return nil
		})
	}
	err = g.Wait()
	return total, err
}

func monthDirs(opts Options) ([]string, error) {
	years, err := os.ReadDir(opts.Root)
	if err != nil {
		return nil, fmt.Errorf("read discovery root: %w", err)
	}
	var out []string
	for _, y := range years {
		if !y.IsDir() || !yearDir.MatchString(y.Name()) {
			continue
		}
		entries, err := os.ReadDir(filepath.Join(opts.Root, y.Name()))
		if err != nil {
			return nil, fmt.Errorf("read year %s: %w", y.Name(), err)
		}
		for _, m := range entries {
			match := monthDir.FindStringSubmatch(m.Name())
			if !m.IsDir() || match == nil || match[1] != y.Name() {
				continue
			}
			start, err := time.Parse("2006-01", m.Name())
			if err != nil {
				continue
			}
			end := start.AddDate(0, 1, 0)
			if !opts.From.IsZero() && !end.After(opts.From) {
				continue
			}
			if !opts.To.IsZero() && start.After(opts.To) {
				continue
			}
			out = append(out, filepath.Join(opts.Root, y.Name(), m.Name()))
		}
	}
	return out, nil
}

// scanMonth globs the month directory and its immediate scene directories.
func scanMonth(dir, pattern string) ([]string, error) {
	var out []string
	for _, p := range []string{filepath.Join(dir, pattern), filepath.Join(dir, "*", pattern)} {
		matches, err := filepath.Glob(p)
		if err != nil {
			return nil, fmt.Errorf("glob %s: %w", p, err)
		}
		out = append(out, matches...)
	}
	sort.Strings(out)
	return out, nil
}
