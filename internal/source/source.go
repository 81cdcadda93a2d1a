// Package source enumerates scan targets and feeds their text to the
// fragment extractor.
//
// A Job names in-memory blobs, folders, and optionally one SQL database and
// one document store. Each target is scanned independently and may run in
// parallel; results are concatenated in job order. A target that cannot be
// read produces a warning and no fragments, never an error for the job.
// Database and document-store reads are read-only and sampled.
package source

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mesh-intelligence/piilink/internal/detect"
	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// Blob is an uploaded file held in memory.
type Blob struct {
	Name string
	Data []byte
}

// SQLTarget is a relational database to sample. Empty Tables means every
// user table.
type SQLTarget struct {
	ConnString string
	Tables     []string
	SampleN    int
}

// DocTarget is a document-store database to sample. Empty Collections means
// every collection.
type DocTarget struct {
	URI         string
	Database    string
	Collections []string
	SampleN     int
}

// Job lists what one scan reads.
type Job struct {
	Blobs   []Blob
	Folders []string
	SQL     *SQLTarget
	Docs    *DocTarget
}

// Empty reports whether the job names no target.
func (j Job) Empty() bool {
	return len(j.Blobs) == 0 && len(j.Folders) == 0 && j.SQL == nil && j.Docs == nil
}

// Result is the flattened output of a scan.
type Result struct {
	Fragments []types.Fragment
	// Sources lists every file, table and collection that was read.
	Sources  []string
	Warnings []string
	// Items counts the texts handed to the extractor.
	Items int
}

// Options tunes a Scanner. Zero values take the defaults.
type Options struct {
	Workers int
	SampleN int
	Logger  *zap.SugaredLogger
}

// Scanner runs jobs against an extractor.
type Scanner struct {
	extractor *detect.Extractor
	readers   map[string]TextReader
	workers   int
	sampleN   int
	logger    *zap.SugaredLogger

	openSQL  func(ctx context.Context, conn string) (*sql.DB, Dialect, error)
	openDocs func(ctx context.Context, uri string) (docSource, error)
}

// NewScanner creates a Scanner feeding extractor.
func NewScanner(extractor *detect.Extractor, opts Options) *Scanner {
	s := &Scanner{
		extractor: extractor,
		readers:   make(map[string]TextReader, len(readersByExt)),
		workers:   opts.Workers,
		sampleN:   opts.SampleN,
		logger:    logging.OrComponent(opts.Logger, "source"),
		openSQL:   OpenSQL,
		openDocs:  openMongo,
	}
	for ext, r := range readersByExt {
		s.readers[ext] = r
	}
	if s.workers <= 0 {
		s.workers = types.DefaultWorkers
	}
	if s.sampleN <= 0 {
		s.sampleN = types.DefaultSampleN
	}
	return s
}

// RegisterReader sets the reader for a file extension such as ".pdf".
func (s *Scanner) RegisterReader(ext string, r TextReader) {
	s.readers[ext] = r
}

// partial is the output of one target.
type partial struct {
	frags    []types.Fragment
	sources  []string
	warnings []string
	items    int
}

func (s *Scanner) warn(p *partial, target string, err error) {
	s.logger.Warnw("Skipping unreadable source",
		logging.FieldSource, target,
		logging.FieldError, err,
	)
	p.warnings = append(p.warnings, fmt.Sprintf("%s: %v", target, err))
}

func (s *Scanner) scanText(p *partial, text, label string, meta map[string]string) {
	p.items++
	for _, f := range s.extractor.Detect(text, label) {
		for k, v := range meta {
			f = f.WithMeta(k, v)
		}
		p.frags = append(p.frags, f)
	}
}

// Run scans every target of job. It returns types.ErrNoSources for an empty
// job and the context error if ctx is cancelled; unreadable targets are
// reported in Result.Warnings.
func (s *Scanner) Run(ctx context.Context, job Job) (*Result, error) {
	if job.Empty() {
		return nil, types.ErrNoSources
	}

	var tasks []func(context.Context, *partial)
	for _, b := range job.Blobs {
		tasks = append(tasks, func(ctx context.Context, p *partial) { s.scanBlob(p, b) })
	}
	for _, dir := range job.Folders {
		tasks = append(tasks, func(ctx context.Context, p *partial) { s.scanFolder(ctx, p, dir) })
	}
	if job.SQL != nil {
		tasks = append(tasks, func(ctx context.Context, p *partial) { s.scanSQL(ctx, p, *job.SQL) })
	}
	if job.Docs != nil {
		tasks = append(tasks, func(ctx context.Context, p *partial) { s.scanDocs(ctx, p, *job.Docs) })
	}

	parts := make([]partial, len(tasks))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.workers)
	for i, task := range tasks {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			task(gctx, &parts[i])
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	res := &Result{}
	for _, p := range parts {
		res.Fragments = append(res.Fragments, p.frags...)
		res.Sources = append(res.Sources, p.sources...)
		res.Warnings = append(res.Warnings, p.warnings...)
		res.Items += p.items
	}
	s.logger.Infow("Scan finished",
		"sources", len(res.Sources),
		"items", res.Items,
		logging.FieldCount, len(res.Fragments),
		"warnings", len(res.Warnings),
	)
	return res, nil
}

func (s *Scanner) scanBlob(p *partial, b Blob) {
	text, err := extractText(s.readers, b.Name, b.Data)
	if err != nil {
		s.warn(p, b.Name, err)
		return
	}
	p.sources = append(p.sources, b.Name)
	s.scanText(p, text, b.Name, nil)
}

func (s *Scanner) scanFolder(ctx context.Context, p *partial, dir string) {
	files, err := folderFiles(dir)
	if err != nil {
		s.warn(p, dir, err)
		return
	}
	for _, path := range files {
		if ctx.Err() != nil {
			return
		}
		name := filepath.Base(path)
		data, err := os.ReadFile(path)
		if err != nil {
			s.warn(p, path, err)
			continue
		}
		text, err := extractText(s.readers, name, data)
		if err != nil {
			s.warn(p, path, err)
			continue
		}
		p.sources = append(p.sources, name)
		s.scanText(p, text, name, nil)
	}
}

// sampler is what the SQL and document samplers have in common.
type sampler interface {
	Sample(ctx context.Context, container string, emit func(Cell)) error
}

// scanContainers samples each container and scans every cell, recording the
// row and the field under fieldKey.
func (s *Scanner) scanContainers(ctx context.Context, p *partial, smp sampler, containers []string, fieldKey string) {
	for _, c := range containers {
		if ctx.Err() != nil {
			return
		}
		err := smp.Sample(ctx, c, func(cell Cell) {
			s.scanText(p, cell.Value, cell.Label(), map[string]string{
				types.MetaRow: strconv.Itoa(cell.Row),
				fieldKey:      cell.Field,
			})
		})
		if err != nil {
			s.warn(p, c, err)
			continue
		}
		p.sources = append(p.sources, c)
	}
}

func (s *Scanner) scanSQL(ctx context.Context, p *partial, t SQLTarget) {
	if t.ConnString == "" {
		s.warn(p, "sql", errors.New("empty connection string"))
		return
	}
	db, dialect, err := s.openSQL(ctx, t.ConnString)
	if err != nil {
		s.warn(p, "sql", err)
		return
	}
	defer db.Close()

	smp := &SQLSampler{DB: db, Dialect: dialect, SampleN: orDefault(t.SampleN, s.sampleN)}
	tables := t.Tables
	if len(tables) == 0 {
		if tables, err = smp.Tables(ctx); err != nil {
			s.warn(p, "sql", err)
			return
		}
	}
	s.scanContainers(ctx, p, smp, tables, types.MetaColumn)
}

func (s *Scanner) scanDocs(ctx context.Context, p *partial, t DocTarget) {
	if t.URI == "" || t.Database == "" {
		s.warn(p, "documents", errors.New("URI and database are required"))
		return
	}
	src, err := s.openDocs(ctx, t.URI)
	if err != nil {
		s.warn(p, t.Database, err)
		return
	}
	defer src.Close(context.WithoutCancel(ctx))

	smp := &DocSampler{source: src, Database: t.Database, SampleN: orDefault(t.SampleN, s.sampleN)}
	colls := t.Collections
	if len(colls) == 0 {
		if colls, err = smp.Collections(ctx); err != nil {
			s.warn(p, t.Database, err)
			return
		}
	}
	s.scanContainers(ctx, p, smp, colls, types.MetaField)
}

func orDefault(n, def int) int {
	if n > 0 {
		return n
	}
	return def
}
