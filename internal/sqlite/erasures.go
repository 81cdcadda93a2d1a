// This file implements fragment deletion, entity erasure and statistics.
package sqlite

import (
	"context"
	"database/sql"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// ErasureIDPrefix starts every erasure ID.
const ErasureIDPrefix = "ER-"

func newErasureID() string {
	return ErasureIDPrefix + uuid.NewString()
}

func insertErasure(ctx context.Context, tx *sql.Tx, e types.Erasure) error {
	_, err := tx.ExecContext(ctx,
		`INSERT INTO erasures (erasure_id, entity_id, fragments_deleted, requested_by, reason, timestamp)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		e.ErasureID, e.EntityID, e.FragmentsDeleted, e.RequestedBy, e.Reason, formatTime(e.Timestamp),
	)
	return err
}

// DeleteFragment removes one fragment and recounts its entity. Removing the
// last fragment deletes the entity and records an erasure of one fragment.
func (s *Store) DeleteFragment(ctx context.Context, fragID, requestedBy, reason string) (*types.DeleteResult, error) {
	if fragID == "" {
		return nil, types.ErrInvalidID
	}

	var res types.DeleteResult
	err := s.write(ctx, "deleting fragment", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, "SELECT entity_id FROM fragments WHERE frag_id = ?", fragID).Scan(&res.EntityID)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(types.ErrFragmentNotFound, "%s", fragID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM fragments WHERE frag_id = ?", fragID); err != nil {
			return err
		}
		if err := tx.QueryRowContext(ctx,
			"SELECT COUNT(*) FROM fragments WHERE entity_id = ?", res.EntityID,
		).Scan(&res.Remaining); err != nil {
			return err
		}

		now := s.now()
		if res.Remaining > 0 {
			_, err := tx.ExecContext(ctx,
				`UPDATE entities SET fragment_count = ?, updated_at = ?,
				   confidence = (SELECT AVG(confidence) FROM fragments WHERE entity_id = ?)
				 WHERE entity_id = ?`,
				res.Remaining, formatTime(now), res.EntityID, res.EntityID,
			)
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE entity_id = ?", res.EntityID); err != nil {
			return err
		}
		res.EntityErased = true
		res.ErasureID = newErasureID()
		return insertErasure(ctx, tx, types.Erasure{
			ErasureID:        res.ErasureID,
			EntityID:         res.EntityID,
			FragmentsDeleted: 1,
			RequestedBy:      requestedBy,
			Reason:           reason,
			Timestamp:        now,
		})
	})
	if err != nil {
		return nil, err
	}

	s.logger.Infow("Deleted fragment",
		logging.FieldFragID, fragID,
		logging.FieldEntityID, res.EntityID,
		"remaining", res.Remaining,
	)
	return &res, nil
}

// EraseEntity removes an entity with all its fragments and records one
// erasure carrying the number of fragments removed. Nothing changes when the
// entity does not exist or any step fails.
func (s *Store) EraseEntity(ctx context.Context, entityID, requestedBy, reason string) (int, error) {
	if entityID == "" {
		return 0, types.ErrInvalidID
	}

	var deleted int
	err := s.write(ctx, "erasing entity", func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx,
			"SELECT (SELECT COUNT(*) FROM fragments WHERE entity_id = ?) FROM entities WHERE entity_id = ?",
			entityID, entityID,
		).Scan(&deleted)
		if errors.Is(err, sql.ErrNoRows) {
			return errors.Wrapf(types.ErrEntityNotFound, "%s", entityID)
		}
		if err != nil {
			return err
		}

		if _, err := tx.ExecContext(ctx, "DELETE FROM fragments WHERE entity_id = ?", entityID); err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM entities WHERE entity_id = ?", entityID); err != nil {
			return err
		}
		return insertErasure(ctx, tx, types.Erasure{
			ErasureID:        newErasureID(),
			EntityID:         entityID,
			FragmentsDeleted: deleted,
			RequestedBy:      requestedBy,
			Reason:           reason,
			Timestamp:        s.now(),
		})
	})
	if err != nil {
		return 0, err
	}

	s.logger.Infow("Erased entity",
		logging.FieldEntityID, entityID,
		logging.FieldCount, deleted,
	)
	return deleted, nil
}

// ListErasures returns up to limit erasure records, newest first. A
// non-positive limit returns all of them.
func (s *Store) ListErasures(ctx context.Context, limit int) ([]types.Erasure, error) {
	if limit <= 0 {
		limit = -1
	}

	out := []types.Erasure{}
	err := s.read(func() error {
		rows, err := s.db.QueryContext(ctx,
			`SELECT erasure_id, entity_id, fragments_deleted, requested_by, reason, timestamp
			 FROM erasures ORDER BY timestamp DESC, erasure_id LIMIT ?`,
			limit,
		)
		if err != nil {
			return errors.Wrap(err, "querying erasures")
		}
		defer rows.Close()

		for rows.Next() {
			var (
				e  types.Erasure
				ts string
			)
			if err := rows.Scan(&e.ErasureID, &e.EntityID, &e.FragmentsDeleted, &e.RequestedBy, &e.Reason, &ts); err != nil {
				return errors.Wrap(err, "scanning erasure")
			}
			e.Timestamp = parseTime(ts)
			out = append(out, e)
		}
		return errors.Wrap(rows.Err(), "iterating erasures")
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Statistics counts the current rows. The average is rounded to two decimals
// and is zero for an empty store.
func (s *Store) Statistics(ctx context.Context) (*types.Statistics, error) {
	var st types.Statistics
	err := s.read(func() error {
		err := s.db.QueryRowContext(ctx,
			`SELECT (SELECT COUNT(*) FROM entities),
			        (SELECT COUNT(*) FROM fragments),
			        (SELECT COUNT(*) FROM erasures)`,
		).Scan(&st.TotalEntities, &st.TotalFragments, &st.ErasuresPerformed)
		return errors.Wrap(err, "computing statistics")
	})
	if err != nil {
		return nil, err
	}
	if st.TotalEntities > 0 {
		st.AvgFragmentsPerEntity = round2(float64(st.TotalFragments) / float64(st.TotalEntities))
	}
	return &st, nil
}
