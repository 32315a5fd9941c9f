// Package flags holds the cli flag definitions shared by the log server
// commands, plus helpers turning parsed flags into configured components.
package flags

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labcode-dev/labcode-log-server/common"
	"github.com/labcode-dev/labcode-log-server/httpserver"
	"github.com/labcode-dev/labcode-log-server/storage"
	"github.com/urfave/cli/v2"
)

var ListenAddrFlag = &cli.StringFlag{
	Name:  "listen-addr",
	Value: "127.0.0.1:8080",
	Usage: "address to listen on for the storage API",
}

var MetricsAddrFlag = &cli.StringFlag{
	Name:  "metrics-addr",
	Value: "127.0.0.1:8090",
	Usage: "address to listen on for Prometheus metrics",
}

var DatabaseURLFlag = &cli.StringFlag{
	Name:    "database-url",
	EnvVars: []string{"DATABASE_URL"},
	Usage:   "PostgreSQL connection URL for the run database",
}

var StorageModeFlag = &cli.StringFlag{
	Name:    "storage-mode",
	Value:   storage.ModeS3,
	EnvVars: []string{"STORAGE_MODE"},
	Usage:   "default storage backend: 's3' or 'local'",
}

var S3BucketFlag = &cli.StringFlag{
	Name:    "s3-bucket",
	Value:   storage.DefaultBucket,
	EnvVars: []string{"S3_BUCKET_NAME"},
	Usage:   "S3 bucket holding run artifacts",
}

var S3EndpointFlag = &cli.StringFlag{
	Name:    "s3-endpoint",
	EnvVars: []string{"S3_ENDPOINT_URL"},
	Usage:   "custom S3 endpoint URL (MinIO and other S3-compatible stores)",
}

var S3RegionFlag = &cli.StringFlag{
	Name:    "s3-region",
	Value:   storage.DefaultRegion,
	EnvVars: []string{"AWS_DEFAULT_REGION"},
	Usage:   "S3 region",
}

var S3AccessKeyFlag = &cli.StringFlag{
	Name:    "s3-access-key",
	EnvVars: []string{"AWS_ACCESS_KEY_ID"},
	Usage:   "S3 access key id",
}

var S3SecretKeyFlag = &cli.StringFlag{
	Name:    "s3-secret-key",
	EnvVars: []string{"AWS_SECRET_ACCESS_KEY"},
	Usage:   "S3 secret access key",
}

var LocalStoragePathFlag = &cli.StringFlag{
	Name:    "local-storage-path",
	Value:   storage.DefaultLocalBasePath,
	EnvVars: []string{"LOCAL_STORAGE_PATH"},
	Usage:   "root directory for the local filesystem backend",
}

var LogJSONFlag = &cli.BoolFlag{
	Name:  "log-json",
	Value: false,
	Usage: "log in JSON format",
}

var LogDebugFlag = &cli.BoolFlag{
	Name:  "log-debug",
	Value: false,
	Usage: "log debug messages",
}

var LogUIDFlag = &cli.BoolFlag{
	Name:  "log-uid",
	Value: false,
	Usage: "generate a uuid and add to all log messages",
}

var LogServiceFlag = &cli.StringFlag{
	Name:  "log-service",
	Value: common.PackageName,
	Usage: "add 'service' tag to logs",
}

var PprofFlag = &cli.BoolFlag{
	Name:  "pprof",
	Value: false,
	Usage: "enable pprof debug endpoint",
}

var DrainSecondsFlag = &cli.Int64Flag{
	Name:  "drain-seconds",
	Value: 45,
	Usage: "seconds to wait in drain HTTP request",
}

// SetupLogger builds the process logger from the parsed log flags.
func SetupLogger(cCtx *cli.Context) *slog.Logger {
	logger := common.SetupLogger(&common.LoggingOpts{
		Debug:   cCtx.Bool(LogDebugFlag.Name),
		JSON:    cCtx.Bool(LogJSONFlag.Name),
		Service: cCtx.String(LogServiceFlag.Name),
		Version: common.Version,
	})

	if cCtx.Bool(LogUIDFlag.Name) {
		id := uuid.Must(uuid.NewRandom())
		logger = logger.With("uid", id.String())
	}
	return logger
}

// ConfigureServer builds the HTTP server configuration from the parsed
// flags.
func ConfigureServer(cCtx *cli.Context, logger *slog.Logger) *httpserver.HTTPServerConfig {
	return &httpserver.HTTPServerConfig{
		ListenAddr:               cCtx.String(ListenAddrFlag.Name),
		MetricsAddr:              cCtx.String(MetricsAddrFlag.Name),
		Log:                      logger,
		EnablePprof:              cCtx.Bool(PprofFlag.Name),
		DrainDuration:            time.Duration(cCtx.Int64(DrainSecondsFlag.Name)) * time.Second,
		GracefulShutdownDuration: 30 * time.Second,
		ReadTimeout:              60 * time.Second,
		WriteTimeout:             30 * time.Second,
	}
}

// StorageConfig builds the storage configuration from the parsed flags.
func StorageConfig(cCtx *cli.Context) *storage.Config {
	return &storage.Config{
		DefaultMode: cCtx.String(StorageModeFlag.Name),
		S3: storage.S3Config{
			Bucket:    cCtx.String(S3BucketFlag.Name),
			Endpoint:  cCtx.String(S3EndpointFlag.Name),
			Region:    cCtx.String(S3RegionFlag.Name),
			AccessKey: cCtx.String(S3AccessKeyFlag.Name),
			SecretKey: cCtx.String(S3SecretKeyFlag.Name),
		},
		Local: storage.LocalConfig{
			BasePath: cCtx.String(LocalStoragePathFlag.Name),
		},
	}
}
