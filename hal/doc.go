// Package hal implements the hybrid access layer.
//
// The hybrid access layer (HAL) presents one coherent, browsable content
// tree per run regardless of where the bytes physically live: an S3-style
// object store, a local filesystem, or the relational store itself (operation
// logs kept as text columns are surfaced as synthetic files).
//
// # Storage modes
//
// Each run carries a persisted storage_mode column classifying where its
// artifacts live. A null column means the mode was never determined; the
// ModeResolver infers it by probing the object store first, then the
// relational store, and persists any definite outcome so subsequent requests
// are pure cache hits. InferBatch resolves many runs with exactly one object
// store listing and one relational query.
//
// # Read paths
//
// ListContents, LoadContent, GetDownloadURL and GetStorageInfo dispatch on
// the run's mode. Runs with an unknown (or hybrid) mode are served best
// effort from every source, with per-source failures swallowed and counted;
// runs with a definite single-source mode propagate that source's failures.
// Listing results are merged and deduplicated by virtual path, first seen
// wins.
package hal
