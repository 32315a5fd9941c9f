package hal

import (
	"strings"
	"time"
)

// StorageMode classifies where a run's bulk artifacts live.
type StorageMode string

const (
	// ModeS3 means artifacts live in the object store.
	ModeS3 StorageMode = "s3"

	// ModeLocal means artifacts live in the relational store (and
	// possibly the local filesystem).
	ModeLocal StorageMode = "local"

	// ModeHybrid means both the object store and the relational store
	// hold data. Persisted only by batch inference; read paths treat it
	// like the merged multi-source branch.
	ModeHybrid StorageMode = "hybrid"

	// ModeUnknown means the mode is unset or unrecognized.
	ModeUnknown StorageMode = "unknown"
)

// ParseStorageMode maps a nullable persisted mode string to a StorageMode.
// Nil, empty and unrecognized values parse to ModeUnknown.
func ParseStorageMode(value *string) StorageMode {
	if value == nil {
		return ModeUnknown
	}
	switch StorageMode(strings.ToLower(*value)) {
	case ModeS3:
		return ModeS3
	case ModeLocal:
		return ModeLocal
	case ModeHybrid:
		return ModeHybrid
	case ModeUnknown:
		return ModeUnknown
	default:
		return ModeUnknown
	}
}

// ContentType is a coarse classification derived from virtual path patterns.
type ContentType string

const (
	ContentTypeOperationLog   ContentType = "operation_log"
	ContentTypeProtocolYAML   ContentType = "protocol_yaml"
	ContentTypeManipulateYAML ContentType = "manipulate_yaml"
	ContentTypeProcessData    ContentType = "process_data"
	ContentTypeOther          ContentType = "other"
)

// DataSource tells which kind of source produced a content item.
type DataSource string

const (
	// SourceFile marks items backed by a storage backend (S3 or local FS).
	SourceFile DataSource = "file"

	// SourceDatabase marks items synthesized from relational rows.
	SourceDatabase DataSource = "db"

	// SourceVirtual marks synthetic directory entries.
	SourceVirtual DataSource = "virtual"
)

// ContentItem is one entry (file or directory) in a listing result. Within a
// single listing response virtual paths are unique.
type ContentItem struct {
	Name         string      `json:"name"`
	Path         string      `json:"path"`
	Type         string      `json:"type"` // "file" or "directory"
	Size         int64       `json:"size"`
	LastModified *time.Time  `json:"lastModified"`
	ContentType  ContentType `json:"contentType"`
	Source       DataSource  `json:"source"`
	Backend      string      `json:"backend,omitempty"`
}

// StorageInfo is a per-run descriptive snapshot of where data lives. It is
// synthesized per request and never persisted.
type StorageInfo struct {
	Mode           StorageMode       `json:"mode"`
	StorageAddress string            `json:"storage_address"`
	FullPath       string            `json:"full_path"`
	DataSources    map[string]string `json:"data_sources"`
	Warning        string            `json:"warning,omitempty"`
	Inferred       bool              `json:"inferred,omitempty"`
	IsHybrid       bool              `json:"isHybrid,omitempty"`
	S3Path         string            `json:"s3Path,omitempty"`
	LocalPath      string            `json:"localPath,omitempty"`
}

// unknownModeWarning is attached to StorageInfo when inference cannot settle
// on a mode.
const unknownModeWarning = "Storage mode is not set and could not be inferred. Data may not be displayed correctly."

// DetectContentType classifies a virtual path.
func DetectContentType(path string) ContentType {
	switch {
	case IsOperationLogPath(path):
		return ContentTypeOperationLog
	case strings.HasSuffix(path, "protocol.yaml"), strings.HasSuffix(path, "protocol.yml"):
		return ContentTypeProtocolYAML
	case strings.HasSuffix(path, "manipulate.yaml"), strings.HasSuffix(path, "manipulate.yml"):
		return ContentTypeManipulateYAML
	case strings.HasSuffix(path, ".yaml"), strings.HasSuffix(path, ".yml"):
		return ContentTypeOther
	case strings.Contains(path, "processes/"):
		return ContentTypeProcessData
	default:
		return ContentTypeOther
	}
}
