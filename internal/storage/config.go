package storage

import "fmt"

// MinIOConfig holds MinIO connection configuration
type MinIOConfig struct {
	Endpoint      string
	AccessKey     string
	SecretKey     string
	UseSSL        bool
	Bucket        string
	PublicBaseURL string
}

// Options selects and configures a blob backend.
type Options struct {
	Backend   string // local | minio
	UploadDir string
	URLPrefix string
	MaxBytes  int64
	MinIO     *MinIOConfig
}

// New builds the Store named by opts.Backend.
func New(opts Options) (Store, error) {
	switch opts.Backend {
	case "", "local":
		return NewLocalStore(opts.UploadDir, opts.URLPrefix, opts.MaxBytes), nil
	case "minio":
		return NewMinIOStorage(opts.MinIO, opts.MaxBytes)
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", opts.Backend)
	}
}
