// Package sqlite provides the public API for the SQLite entity store.
// This package exposes the factory function while keeping implementation
// details internal.
package sqlite

import (
	"github.com/mesh-intelligence/piilink/internal/sqlite"
	"github.com/mesh-intelligence/piilink/pkg/types"
)

// Open opens (creating if needed) the store in cfg.DataDir. The returned
// store also implements types.ErasureExporter.
//
// Example:
//
//	cfg := types.DefaultConfig()
//	cfg.DataDir = ".piilink-db"
//	store, err := sqlite.Open(cfg)
//	if err != nil {
//	    return err
//	}
//	defer store.Close()
func Open(cfg types.Config) (types.EntityStore, error) {
	s, err := sqlite.Open(cfg)
	if err != nil {
		return nil, err
	}
	return s, nil
}
