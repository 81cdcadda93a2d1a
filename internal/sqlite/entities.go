// This file implements saving and reading entities and their fragments.
package sqlite

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sort"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	msqlite "modernc.org/sqlite"

	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

const entityColumns = "entity_id, fragment_count, confidence, created_at, updated_at"

// Save replaces every entity named in mapping by the fragments mapped to it.
// Each entity's old fragments are deleted before the new ones are inserted,
// so saving the same scan twice does not duplicate rows. The first-seen
// created_at of an entity survives a re-save.
func (s *Store) Save(ctx context.Context, mapping types.Mapping, fragments []types.Fragment) error {
	groups := make(map[string][]int)
	for _, idx := range mapping.Indices() {
		a := mapping[idx]
		if idx < 0 || idx >= len(fragments) {
			return errors.Wrapf(types.ErrInvalidMapping, "index %d of %d", idx, len(fragments))
		}
		if a.EntityID == "" {
			return errors.Wrapf(types.ErrInvalidID, "empty entity ID at index %d", idx)
		}
		groups[a.EntityID] = append(groups[a.EntityID], idx)
	}
	if len(groups) == 0 {
		return nil
	}

	ids := make([]string, 0, len(groups))
	for id := range groups {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	err := s.write(ctx, "saving entities", func(tx *sql.Tx) error {
		now := s.timestamp()
		for _, id := range ids {
			if err := saveEntity(ctx, tx, id, groups[id], mapping, fragments, now); err != nil {
				return errors.Wrapf(err, "saving entity %s", id)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.logger.Infow("Saved entities",
		logging.FieldCount, len(ids),
		"fragments", len(mapping),
	)
	return nil
}

func saveEntity(ctx context.Context, tx *sql.Tx, id string, idxs []int, mapping types.Mapping, fragments []types.Fragment, now string) error {
	createdAt := now
	var prev string
	err := tx.QueryRowContext(ctx, "SELECT created_at FROM entities WHERE entity_id = ?", id).Scan(&prev)
	switch {
	case err == nil:
		createdAt = prev
	case !errors.Is(err, sql.ErrNoRows):
		return err
	}

	if _, err := tx.ExecContext(ctx, "DELETE FROM fragments WHERE entity_id = ?", id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE entity_id = ?", id); err != nil {
		return err
	}

	sum := 0.0
	for _, idx := range idxs {
		sum += mapping[idx].Confidence
	}
	_, err = tx.ExecContext(ctx,
		"INSERT INTO entities ("+entityColumns+") VALUES (?, ?, ?, ?, ?)",
		id, len(idxs), sum/float64(len(idxs)), createdAt, now,
	)
	if err != nil {
		return err
	}

	for _, idx := range idxs {
		f := fragments[idx]
		_, err := tx.ExecContext(ctx,
			`INSERT INTO fragments (frag_id, entity_id, frag_type, value, source, confidence, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			newFragmentID(id), id, f.Type, f.Value, types.DisplaySource(f), mapping[idx].Confidence, now,
		)
		if err != nil {
			return err
		}
	}

	return recount(ctx, tx, id)
}

// recount sets fragment_count from the live fragment rows.
func recount(ctx context.Context, tx *sql.Tx, entityID string) error {
	_, err := tx.ExecContext(ctx,
		"UPDATE entities SET fragment_count = (SELECT COUNT(*) FROM fragments WHERE entity_id = ?) WHERE entity_id = ?",
		entityID, entityID,
	)
	return err
}

// newFragmentID prefixes a random suffix with the owning entity ID.
func newFragmentID(entityID string) string {
	return entityID + "-" + uuid.NewString()
}

// Get returns the entity and its fragments in insertion order. The returned
// FragmentCount is the number of returned fragments.
func (s *Store) Get(ctx context.Context, entityID string) (*types.EntityRecord, error) {
	if entityID == "" {
		return nil, types.ErrInvalidID
	}

	var rec *types.EntityRecord
	err := s.read(func() error {
		row := s.db.QueryRowContext(ctx, "SELECT "+entityColumns+" FROM entities WHERE entity_id = ?", entityID)
		e, err := scanEntity(row)
		if errors.Is(err, sql.ErrNoRows) {
			return types.ErrEntityNotFound
		}
		if err != nil {
			return errors.Wrapf(err, "getting entity %s", entityID)
		}

		frags, err := s.fragmentsOf(ctx, entityID)
		if err != nil {
			return err
		}
		e.FragmentCount = len(frags)
		rec = &types.EntityRecord{Entity: *e, Fragments: frags}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Store) fragmentsOf(ctx context.Context, entityID string) ([]types.StoredFragment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT frag_id, entity_id, frag_type, value, source, confidence, created_at
		 FROM fragments WHERE entity_id = ? ORDER BY rowid`,
		entityID,
	)
	if err != nil {
		return nil, errors.Wrapf(err, "listing fragments of %s", entityID)
	}
	defer rows.Close()

	frags := []types.StoredFragment{}
	for rows.Next() {
		var (
			f       types.StoredFragment
			created string
		)
		if err := rows.Scan(&f.FragID, &f.EntityID, &f.Type, &f.Value, &f.Source, &f.Confidence, &created); err != nil {
			return nil, errors.Wrap(err, "scanning fragment")
		}
		f.CreatedAt = parseTime(created)
		frags = append(frags, f)
	}
	return frags, errors.Wrap(rows.Err(), "iterating fragments")
}

// Search returns the distinct entities owning a fragment whose value or type
// contains query, ignoring case. At most types.SearchPageSize entities are
// returned, most recently updated first.
func (s *Store) Search(ctx context.Context, query string) ([]types.Entity, error) {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"

	var out []types.Entity
	err := s.read(func() error {
		var err error
		out, err = s.queryEntities(ctx,
			`SELECT `+prefixed("e", entityColumns)+`
			 FROM entities e
			 WHERE EXISTS (
			   SELECT 1 FROM fragments f
			   WHERE f.entity_id = e.entity_id
			     AND (piilink_lower(f.value) LIKE ? ESCAPE '\' OR piilink_lower(f.frag_type) LIKE ? ESCAPE '\')
			 )
			 ORDER BY e.updated_at DESC, e.entity_id
			 LIMIT ?`,
			pattern, pattern, types.SearchPageSize,
		)
		return err
	})
	return out, err
}

// ListEntities returns up to limit entities, most recently updated first. A
// non-positive limit returns all entities.
func (s *Store) ListEntities(ctx context.Context, limit int) ([]types.Entity, error) {
	if limit <= 0 {
		limit = -1
	}
	var out []types.Entity
	err := s.read(func() error {
		var err error
		out, err = s.queryEntities(ctx,
			"SELECT "+entityColumns+" FROM entities ORDER BY updated_at DESC, entity_id LIMIT ?",
			limit,
		)
		return err
	})
	return out, err
}

func (s *Store) queryEntities(ctx context.Context, query string, args ...any) ([]types.Entity, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, errors.Wrap(err, "querying entities")
	}
	defer rows.Close()

	out := []types.Entity{}
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scanning entity")
		}
		out = append(out, *e)
	}
	return out, errors.Wrap(rows.Err(), "iterating entities")
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEntity(row rowScanner) (*types.Entity, error) {
	var (
		e                types.Entity
		created, updated string
	)
	if err := row.Scan(&e.EntityID, &e.FragmentCount, &e.Confidence, &created, &updated); err != nil {
		return nil, err
	}
	e.CreatedAt = parseTime(created)
	e.UpdatedAt = parseTime(updated)
	return &e, nil
}

func prefixed(alias, columns string) string {
	cols := strings.Split(columns, ", ")
	for i, c := range cols {
		cols[i] = alias + "." + c
	}
	return strings.Join(cols, ", ")
}

// SQLite's LOWER folds ASCII only. Search lowers the query in Go, so stored
// values are lowered by the same function.
func init() {
	msqlite.MustRegisterDeterministicScalarFunction("piilink_lower", 1, lowerFunc)
}

func lowerFunc(_ *msqlite.FunctionContext, args []driver.Value) (driver.Value, error) {
	switch v := args[0].(type) {
	case string:
		return strings.ToLower(v), nil
	case []byte:
		return strings.ToLower(string(v)), nil
	default:
		return v, nil
	}
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
