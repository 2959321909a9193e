// Package worklist writes run outputs (work lists and archive lists) to blob
// storage under a per-run prefix.
package worklist

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/google/uuid"

	"sceneselect/internal/blob"
	"sceneselect/internal/core"
)

// Default object names within a run prefix.
const (
	DefaultWorkListName    = "scenes.txt"
	DefaultArchiveListName = "archive.txt"
)

// Format selects the archive-list layout.
type Format string

const (
	// FormatPlain writes one derived-dataset ID per line.
	FormatPlain Format = "plain"
	// FormatGrouped writes level1-path,id1,id2,... CSV rows.
	FormatGrouped Format = "grouped"
)

// ParseFormat validates an archive-list format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatPlain:
		return FormatPlain, nil
	case FormatGrouped:
		return FormatGrouped, nil
	}
	return "", fmt.Errorf("unknown archive list format %q", s)
}

// NewRunID returns a sortable run identifier.
func NewRunID(now time.Time) string {
	return now.UTC().Format("20060102T150405Z") + "-" + uuid.NewString()[:8]
}

// Outputs names the objects written for a run.
type Outputs struct {
	RunID       string
	WorkList    string
	ArchiveList string
}

// Writer stores run outputs. Keys are <prefix>/<run-id>/<name>; blob writes are
// create-only so every run gets a fresh prefix.
type Writer struct {
	store  blob.Store
	prefix string
	runID  string
}

// NewWriter returns a Writer for one run.
func NewWriter(store blob.Store, prefix, runID string) (*Writer, error) {
	if store == nil {
		return nil, errors.New("blob store required")
	}
	if runID == "" {
		return nil, errors.New("run id required")
	}
	return &Writer{store: store, prefix: strings.Trim(prefix, "/"), runID: runID}, nil
}

// Key returns the object key for name within the run.
func (w *Writer) Key(name string) string {
	if w.prefix == "" {
		return path.Join(w.runID, name)
	}
	return path.Join(w.prefix, w.runID, name)
}

// WriteLines stores one entry per newline-terminated line. An empty list
// yields an empty object.
func (w *Writer) WriteLines(ctx context.Context, name string, lines []string) (string, error) {
	var buf bytes.Buffer
	for _, l := range lines {
		buf.WriteString(l)
		buf.WriteByte('\n')
	}
	key := w.Key(name)
	if _, err := blob.PutBytes(ctx, w.store, key, buf.Bytes(), "text/plain; charset=utf-8"); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return key, nil
}

// WriteGroups stores grouped archive entries as CSV rows.
func (w *Writer) WriteGroups(ctx context.Context, name string, groups []core.ArchiveGroup) (string, error) {
	var buf bytes.Buffer
	cw := csv.NewWriter(&buf)
	for _, g := range groups {
		if err := cw.Write(append([]string{g.Level1Path}, g.DerivedIDs...)); err != nil {
			return "", fmt.Errorf("encode archive group: %w", err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return "", fmt.Errorf("encode archive groups: %w", err)
	}
	key := w.Key(name)
	if _, err := blob.PutBytes(ctx, w.store, key, buf.Bytes(), "text/csv"); err != nil {
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	return key, nil
}

// Lists is what a run hands to WriteRun.
type Lists struct {
	WorkList      []string
	ArchiveIDs    []string
	ArchiveGroups []core.ArchiveGroup
}

// WriteRun writes the work list and the archive list in the chosen format.
func (w *Writer) WriteRun(ctx context.Context, workName, archiveName string, format Format, lists Lists) (Outputs, error) {
	if workName == "" {
		workName = DefaultWorkListName
	}
	if archiveName == "" {
		archiveName = DefaultArchiveListName
	}
	out := Outputs{RunID: w.runID}
	var err error
	if out.WorkList, err = w.WriteLines(ctx, workName, lists.WorkList); err != nil {
		return out, err
	}
	if format == FormatGrouped {
		out.ArchiveList, err = w.WriteGroups(ctx, archiveName, lists.ArchiveGroups)
	} else {
		out.ArchiveList, err = w.WriteLines(ctx, archiveName, lists.ArchiveIDs)
	}
	return out, err
}

// ReadGroups parses a grouped archive list.
func ReadGroups(ctx context.Context, store blob.Store, key string) ([]core.ArchiveGroup, error) {
	data, err := blob.ReadAll(ctx, store, key)
	if err != nil {
		return nil, err
	}
	r := csv.NewReader(bytes.NewReader(data))
	r.FieldsPerRecord = -1
	records, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", key, err)
	}
	groups := make([]core.ArchiveGroup, 0, len(records))
	for _, rec := range records {
		groups = append(groups, core.ArchiveGroup{Level1Path: rec[0], DerivedIDs: rec[1:]})
	}
	return groups, nil
}
