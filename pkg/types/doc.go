// Package types defines the fragment, entity and erasure records, the
// EntityStore interface, configuration, and the sentinel errors shared by the
// piilink scanner, linker and store.
package types
