// Package common holds shared constants and the process-wide logger setup.
package common

// PackageName is used as the metrics namespace and default service tag.
const PackageName = "labcode-log-server"

// Version is set at build time via -ldflags.
var Version = "dev"
