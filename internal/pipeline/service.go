package pipeline

import (
	"context"

	"go.uber.org/zap"

	"github.com/mesh-intelligence/piilink/internal/audit"
	"github.com/mesh-intelligence/piilink/internal/logging"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// Defaults applied when a caller leaves a field empty.
const (
	DefaultUser          = "system"
	DefaultPurpose       = "manual_lookup"
	DefaultDeleteReason  = "Manual PII deletion"
	DefaultErasureReason = "GDPR Article 17"
)

// Service performs store operations on behalf of User and records an audit
// entry after each one succeeds. An audit failure is logged and does not
// change the result.
type Service struct {
	Store  types.EntityStore
	Audit  audit.Recorder
	User   string
	Logger *zap.SugaredLogger
}

// NewService returns a Service. A nil recorder disables auditing; an empty
// user becomes DefaultUser.
func NewService(store types.EntityStore, rec audit.Recorder, user string, logger *zap.SugaredLogger) *Service {
	if rec == nil {
		rec = audit.Nop{}
	}
	if user == "" {
		user = DefaultUser
	}
	return &Service{
		Store:  store,
		Audit:  rec,
		User:   user,
		Logger: logging.OrComponent(logger, "pipeline"),
	}
}

// Lookup returns an entity and its fragments and records the access.
func (s *Service) Lookup(ctx context.Context, entityID, purpose string) (*types.EntityRecord, error) {
	rec, err := s.Store.Get(ctx, entityID)
	if err != nil {
		return nil, err
	}
	if purpose == "" {
		purpose = DefaultPurpose
	}
	s.record(audit.Entry{
		Operation: audit.OpAccess,
		User:      s.User,
		EntityID:  entityID,
		Purpose:   purpose,
	})
	return rec, nil
}

// DeleteFragment removes one fragment and records a one-fragment erasure
// against its entity.
func (s *Service) DeleteFragment(ctx context.Context, fragID, reason string) (*types.DeleteResult, error) {
	if reason == "" {
		reason = DefaultDeleteReason
	}
	res, err := s.Store.DeleteFragment(ctx, fragID, s.User, reason)
	if err != nil {
		return nil, err
	}
	s.Logger.Infow("Fragment deleted",
		logging.FieldFragID, fragID,
		logging.FieldEntityID, res.EntityID,
		"entity_erased", res.EntityErased)
	s.record(audit.Entry{
		Operation:        audit.OpErasure,
		EntityID:         res.EntityID,
		FragmentsDeleted: 1,
		RequestedBy:      s.User,
		Reason:           reason,
	})
	return res, nil
}

// EraseEntity removes an entity with all its fragments and records the
// erasure.
func (s *Service) EraseEntity(ctx context.Context, entityID, reason string) (int, error) {
	if reason == "" {
		reason = DefaultErasureReason
	}
	n, err := s.Store.EraseEntity(ctx, entityID, s.User, reason)
	if err != nil {
		return n, err
	}
	s.Logger.Infow("Entity erased", logging.FieldEntityID, entityID, logging.FieldCount, n)
	s.record(audit.Entry{
		Operation:        audit.OpErasure,
		EntityID:         entityID,
		FragmentsDeleted: n,
		RequestedBy:      s.User,
		Reason:           reason,
	})
	return n, nil
}

// Search passes through to the store.
func (s *Service) Search(ctx context.Context, query string) ([]types.Entity, error) {
	return s.Store.Search(ctx, query)
}

// Statistics passes through to the store.
func (s *Service) Statistics(ctx context.Context) (*types.Statistics, error) {
	return s.Store.Statistics(ctx)
}

func (s *Service) record(e audit.Entry) {
	if err := s.Audit.Record(e); err != nil {
		s.Logger.Warnw("Audit write failed", logging.FieldOperation, e.Operation, logging.FieldError, err)
	}
}
