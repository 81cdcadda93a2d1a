package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/mesh-intelligence/piilink/internal/detect"
	"github.com/mesh-intelligence/piilink/internal/linker"
	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/internal/pipeline"
	"github.com/mesh-intelligence/piilink/internal/source"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

type scanOptions struct {
	files       []string
	folders     []string
	sqlConn     string
	tables      []string
	mongoURI    string
	database    string
	collections []string
	threshold   float64
	sampleN     int
	workers     int
	noSave      bool
	fragments   bool
}

// scanReport is the JSON form of a finished scan.
type scanReport struct {
	Fragments int                     `json:"fragments"`
	Sources   []string                `json:"sources"`
	Warnings  []string                `json:"warnings"`
	Threshold float64                 `json:"threshold"`
	Entities  []linker.ClusterSummary `json:"entities"`
	Saved     bool                    `json:"saved"`

	Table []types.AnnotatedFragment `json:"table,omitempty"`
}

func newScanCmd(a *app) *cobra.Command {
	o := &scanOptions{}
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Scan sources for personal data and link it into entities",
		Long: `Scan reads files, folders, a SQL database and a MongoDB database, extracts
personal data fragments, links them into entities and saves the result.

Example:
  piilink scan --file customers.csv --folder ./exports
  piilink scan --sql postgres://ro@db/crm --table customers --sample 500
  piilink scan --mongo mongodb://localhost --db shop --collection users
  piilink scan --folder ./exports --threshold 0.9 --no-save --json`,
		Args: exactArgs(0),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := o.apply(cmd, a.cfg)
			if err != nil {
				return err
			}
			job, warnings := o.job(cfg)
			run, err := a.scan(cmdContext(cmd), cfg, job, !o.noSave)
			if err != nil {
				return err
			}
			run.Warnings = append(warnings, run.Warnings...)
			return writeScan(cmd.OutOrStdout(), a.flags.jsonMode, run, !o.noSave, o.fragments)
		},
	}

	f := cmd.Flags()
	f.StringArrayVar(&o.files, "file", nil, "file to scan (repeatable)")
	f.StringArrayVar(&o.folders, "folder", nil, "folder to scan, not recursive (repeatable)")
	f.StringVar(&o.sqlConn, "sql", "", "SQL connection string (postgres:// or a SQLite path)")
	f.StringSliceVar(&o.tables, "table", nil, "tables to sample (default: all)")
	f.StringVar(&o.mongoURI, "mongo", "", "MongoDB URI")
	f.StringVar(&o.database, "db", "", "MongoDB database")
	f.StringSliceVar(&o.collections, "collection", nil, "collections to sample (default: all)")
	f.Float64Var(&o.threshold, "threshold", 0, "linking threshold in (0, 1] (default: scan.threshold)")
	f.IntVar(&o.sampleN, "sample", 0, "rows or documents sampled per table or collection (default: scan.sample_n)")
	f.IntVar(&o.workers, "workers", 0, "sources scanned in parallel (default: scan.workers)")
	f.BoolVar(&o.noSave, "no-save", false, "link without saving entities")
	f.BoolVar(&o.fragments, "fragments", false, "also print every fragment with its entity")
	return cmd
}

// apply overlays the flags that were set on cfg and validates the result.
func (o *scanOptions) apply(cmd *cobra.Command, cfg types.Config) (types.Config, error) {
	f := cmd.Flags()
	if f.Changed("threshold") {
		cfg.Scan.Threshold = o.threshold
	}
	if f.Changed("sample") {
		cfg.Scan.SampleN = o.sampleN
	}
	if f.Changed("workers") {
		cfg.Scan.Workers = o.workers
	}
	if err := cfg.Scan.Validate(); err != nil {
		return cfg, usageError(err)
	}
	return cfg, nil
}

// job reads --file arguments into blobs. Unreadable files become warnings.
func (o *scanOptions) job(cfg types.Config) (source.Job, []string) {
	var (
		job      source.Job
		warnings []string
	)
	for _, path := range o.files {
		data, err := os.ReadFile(path)
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("%s: %v", path, err))
			continue
		}
		job.Blobs = append(job.Blobs, source.Blob{Name: filepath.Base(path), Data: data})
	}
	job.Folders = o.folders
	if o.sqlConn != "" {
		job.SQL = &source.SQLTarget{ConnString: o.sqlConn, Tables: o.tables, SampleN: cfg.Scan.SampleN}
	}
	if o.mongoURI != "" {
		job.Docs = &source.DocTarget{URI: o.mongoURI, Database: o.database, Collections: o.collections, SampleN: cfg.Scan.SampleN}
	}
	return job, warnings
}

// scanner builds the detectors named by cfg.
func scanner(cfg types.Config) (*source.Scanner, error) {
	reg, err := detect.FromConfig(cfg)
	if err != nil {
		return nil, usageError(err)
	}
	ex := detect.NewExtractor(reg, logging.ComponentLogger("detect"))
	return source.NewScanner(ex, source.Options{
		Workers: cfg.Scan.Workers,
		SampleN: cfg.Scan.SampleN,
		Logger:  logging.ComponentLogger("source"),
	}), nil
}

// scan runs one scan, link and optional save.
func (a *app) scan(ctx context.Context, cfg types.Config, job source.Job, save bool) (*pipeline.Run, error) {
	sc, err := scanner(cfg)
	if err != nil {
		return nil, err
	}

	run := pipeline.NewRun(cfg.User, a.recorder(), logging.ComponentLogger("pipeline"))
	if err := run.Scan(ctx, sc, job); err != nil {
		if errors.Is(err, types.ErrNoSources) {
			return nil, errors.WithHint(err, "pass --file, --folder, --sql or --mongo")
		}
		return nil, err
	}
	if err := run.Link(cfg.Scan.Threshold); err != nil {
		return nil, err
	}
	if !save {
		return run, nil
	}

	store, err := a.openStore()
	if err != nil {
		return nil, err
	}
	defer store.Close()
	if err := run.Save(ctx, store); err != nil {
		return nil, err
	}
	return run, nil
}

func writeScan(w io.Writer, jsonMode bool, run *pipeline.Run, saved, fragments bool) error {
	summary := run.Summary()
	if jsonMode {
		rep := scanReport{
			Fragments: len(run.Fragments),
			Sources:   nonNil(run.Sources),
			Warnings:  nonNil(run.Warnings),
			Threshold: run.Threshold,
			Entities:  summary,
			Saved:     saved,
		}
		if fragments {
			rep.Table = run.Table
		}
		return printJSON(w, rep)
	}

	fmt.Fprintf(w, "Scanned %d sources: %d fragments, %d entities (threshold %s)\n",
		len(run.Sources), len(run.Fragments), len(summary), formatFloat(run.Threshold))
	for _, warn := range run.Warnings {
		fmt.Fprintf(w, "warning: %s\n", warn)
	}
	if len(summary) > 0 {
		t := newTable(w, "ENTITY", "FRAGMENTS", "NAMES", "EMAILS", "CONFIDENCE")
		for _, s := range summary {
			t.row(s.EntityID, strconv.Itoa(s.FragmentCount), s.Names, s.Emails, formatFloat(s.AvgConfidence))
		}
		if err := t.flush(); err != nil {
			return err
		}
	}
	if fragments && len(run.Table) > 0 {
		fmt.Fprintln(w)
		t := newTable(w, "ENTITY", "IDENTIFIER", "VALUE", "SOURCE", "SCORE")
		for _, row := range run.Table {
			t.row(row.EntityID, types.IdentifierLabel(row.Fragment), row.Value, types.DisplaySource(row.Fragment), formatFloat(row.Score))
		}
		if err := t.flush(); err != nil {
			return err
		}
	}
	if saved {
		fmt.Fprintf(w, "Saved %d entities\n", len(summary))
	}
	return nil
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
