// Package pipeline threads one scan through its phases (scan, link, save)
// and wraps store operations that must leave an audit trail.
package pipeline

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/mesh-intelligence/piilink/internal/audit"
	"github.com/mesh-intelligence/piilink/internal/linker"
	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/internal/source"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// Run holds the state of one scan as it moves through its phases. Each
// phase owns the fields it sets: Scan sets Fragments, Sources and Warnings
// and clears the link result; Link sets Mapping, Table and EntityIDs; Save
// reads them.
type Run struct {
	User   string
	Audit  audit.Recorder
	Logger *zap.SugaredLogger

	Fragments []types.Fragment
	Sources   []string
	Warnings  []string

	Threshold float64
	Mapping   types.Mapping
	Table     []types.AnnotatedFragment
	EntityIDs []string
}

// NewRun creates a Run that records audit entries as user. A nil recorder
// disables auditing.
func NewRun(user string, rec audit.Recorder, logger *zap.SugaredLogger) *Run {
	if rec == nil {
		rec = audit.Nop{}
	}
	return &Run{
		User:   user,
		Audit:  rec,
		Logger: logging.OrComponent(logger, "pipeline"),
	}
}

// Scan reads job through scanner and replaces the run's fragments.
func (r *Run) Scan(ctx context.Context, scanner *source.Scanner, job source.Job) error {
	start := time.Now()
	res, err := scanner.Run(ctx, job)
	if err != nil {
		return err
	}

	r.Fragments = res.Fragments
	r.Sources = res.Sources
	r.Warnings = res.Warnings
	r.Mapping, r.Table, r.EntityIDs = nil, nil, nil

	r.Logger.Infow("Scan complete",
		logging.FieldCount, len(r.Fragments),
		"sources", len(r.Sources),
		"warnings", len(r.Warnings),
		logging.FieldDuration, time.Since(start).Milliseconds())

	r.record(audit.Entry{
		Operation:      audit.OpScan,
		User:           r.User,
		ProofHash:      audit.ProofHash(r.Fragments),
		Rows:           len(r.Fragments),
		SourceFiles:    r.Sources,
		FragmentsFound: len(r.Fragments),
	})
	return nil
}

// Link clusters the scanned fragments into entities.
func (r *Run) Link(threshold float64) error {
	if threshold <= 0 || threshold > 1 {
		return errors.Wrapf(types.ErrThresholdInvalid, "%v", threshold)
	}
	r.Threshold = threshold
	r.Mapping, r.Table = linker.Cluster(r.Fragments, threshold)
	r.EntityIDs = r.Mapping.EntityIDs()

	r.Logger.Infow("Linking complete",
		logging.FieldCount, len(r.EntityIDs),
		logging.FieldThreshold, threshold)

	r.record(audit.Entry{
		Operation:      audit.OpLinking,
		User:           r.User,
		FragmentsFound: len(r.Fragments),
		EntitiesLinked: len(r.EntityIDs),
		Threshold:      threshold,
	})
	return nil
}

// Save persists the linked entities. It returns ErrNotLinked when Link has
// not run since the last Scan.
func (r *Run) Save(ctx context.Context, store types.EntityStore) error {
	if r.Mapping == nil {
		return types.ErrNotLinked
	}
	if err := store.Save(ctx, r.Mapping, r.Fragments); err != nil {
		return err
	}
	r.Logger.Infow("Entities saved", logging.FieldCount, len(r.EntityIDs))
	return nil
}

// Summary returns the per-entity overview of the linked result.
func (r *Run) Summary() []linker.ClusterSummary {
	return linker.Summarize(r.Mapping, r.Table)
}

func (r *Run) record(e audit.Entry) {
	if err := r.Audit.Record(e); err != nil {
		r.Logger.Warnw("Audit write failed", logging.FieldOperation, e.Operation, logging.FieldError, err)
	}
}
