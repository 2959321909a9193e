// Package decisionlog writes one JSON object per decision. Downstream tooling
// greps these lines for reasons, so every record is self-contained.
package decisionlog

import (
	"context"
	"io"
	"log/slog"
	"time"

	"sceneselect/internal/core"
	"sceneselect/pkg/domain"
)

// Attribute keys of a decision record.
const (
	KeyEvent       = "event"
	KeyDatasetID   = "dataset_id"
	KeyDatasetPath = "dataset_path"
	KeyProduct     = "product"
	KeyReason      = "reason"
	KeySceneID     = "landsat_scene_id"
	KeyRegionCode  = "region_code"
	KeyOutcome     = "outcome"
	KeyArchiveID   = "archive_id"
	KeyDetail      = "detail"
	KeyMaturity    = "maturity"
)

// Log is a core.DecisionSink over a slog JSON handler.
type Log struct {
	logger *slog.Logger
}

var _ core.DecisionSink = (*Log)(nil)

// New returns a Log writing to w.
func New(w io.Writer) *Log {
	h := slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: slog.LevelInfo,
		ReplaceAttr: func(groups []string, a slog.Attr) slog.Attr {
			if len(groups) > 0 {
				return a
			}
			switch a.Key {
			case slog.MessageKey:
				a.Key = KeyEvent
			case slog.LevelKey:
				return slog.Attr{}
			case slog.TimeKey:
				return slog.String(slog.TimeKey, a.Value.Time().UTC().Format(time.RFC3339Nano))
			}
			return a
		},
	})
	return &Log{logger: slog.New(h)}
}

// With returns a Log that adds attrs, such as a run id, to every record.
func (l *Log) With(args ...any) *Log {
	return &Log{logger: l.logger.With(args...)}
}

// Record writes d as one line.
func (l *Log) Record(ctx context.Context, d domain.Decision) {
	attrs := make([]slog.Attr, 0, 10)
	attrs = appendString(attrs, KeyDatasetID, d.DatasetID)
	attrs = appendString(attrs, KeyDatasetPath, d.DatasetPath)
	attrs = appendString(attrs, KeyProduct, d.Product)
	attrs = append(attrs, slog.String(KeyOutcome, string(d.Outcome)))
	attrs = appendString(attrs, KeyReason, string(d.Reason))
	attrs = appendString(attrs, KeySceneID, d.SceneID)
	attrs = appendString(attrs, KeyRegionCode, d.RegionCode)
	attrs = appendString(attrs, KeyMaturity, string(d.Maturity))
	attrs = appendString(attrs, KeyDetail, d.Detail)
	switch len(d.ArchiveIDs) {
	case 0:
	case 1:
		attrs = append(attrs, slog.String(KeyArchiveID, d.ArchiveIDs[0]))
	default:
		attrs = append(attrs, slog.Any(KeyArchiveID, d.ArchiveIDs))
	}
	l.logger.LogAttrs(ctx, slog.LevelInfo, d.Event(), attrs...)
}

func appendString(attrs []slog.Attr, key, value string) []slog.Attr {
	if value == "" {
		return attrs
	}
	return append(attrs, slog.String(key, value))
}
