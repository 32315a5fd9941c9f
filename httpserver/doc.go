// Package httpserver exposes the hybrid access layer over HTTP.
//
// It wraps the four HAL operations into the v2 storage API:
//
//	GET /api/v2/storage/list/{run_id}?prefix=      list a run's content tree
//	GET /api/v2/storage/content/{run_id}?path=     load content for preview
//	GET /api/v2/storage/download/{run_id}?path=    resolve a download reference
//	GET /api/v2/storage/info/{run_id}              describe a run's storage
//	GET /api/v2/storage/db-content/{run_id}        serve a database-resident log
//	GET /api/storage/download-direct?path=         stream from the default backend
//
// plus liveness, readiness and drain endpoints and an optional pprof mount.
// The server itself carries no storage logic; it parses parameters, maps the
// typed HAL errors to status codes and encodes responses.
package httpserver
