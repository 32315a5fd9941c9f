package storage

// Historical defaults used by the lab deployment. The cli flag definitions
// reference these so the flag layer and this package cannot drift.
const (
	DefaultBucket        = "labcode-dev-artifacts"
	DefaultRegion        = "ap-northeast-1"
	DefaultLocalBasePath = "/data/storage"
)

// S3Config holds object store settings.
type S3Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// LocalConfig holds local filesystem settings.
type LocalConfig struct {
	BasePath string
}

// Config is the resolved storage configuration for all backends.
type Config struct {
	// DefaultMode is the backend used for direct downloads and as the
	// fallback when a run carries an unrecognized mode string.
	DefaultMode string

	S3    S3Config
	Local LocalConfig
}
