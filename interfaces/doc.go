// Package interfaces defines the contracts shared across the log server.
//
// It contains the storage backend interface implemented by the object store
// and local filesystem backends, the relational store contracts consumed by
// the hybrid access layer, and the typed sentinel errors used to signal
// not-found, unsupported-operation and unregistered-backend conditions.
package interfaces
