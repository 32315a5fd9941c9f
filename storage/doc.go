// Package storage provides the pluggable artifact storage backends.
//
// Two backends are built in:
//
//   - S3Backend over Amazon S3 or S3-compatible services (MinIO etc.)
//   - FileBackend over a local directory tree
//
// Backends are created through a BackendRegistry mapping a lowercase mode
// name ("s3", "local") to a constructor. The registry is an explicit object
// constructed once at process start and injected into the hybrid access
// layer; registering a new backend type requires no changes to callers.
//
// # Configuration
//
// All backend configuration (bucket, endpoint, region, credentials, local
// root path) is resolved once at startup into a Config and passed to the
// constructors. Backends re-read nothing per request.
//
// # Error conventions
//
// Missing objects are reported as interfaces.ErrObjectNotFound, never as a
// backend-specific error. Operations a backend cannot perform are reported
// with the interfaces.ErrPresignNotSupported and interfaces.ErrWriteNotSupported
// sentinels rather than failing loudly.
package storage
