package objectstore

import "time"

// Config holds the settings needed to reach an S3-compatible object store.
type Config struct {
	// Endpoint is the host:port of the storage server.
	// Example: "localhost:9000" for local MinIO.
	Endpoint string `yaml:"endpoint"`

	AccessKey string `yaml:"access_key"`
	SecretKey string `yaml:"secret_key"`

	// UseSSL controls whether TLS is used for the connection.
	UseSSL bool `yaml:"use_ssl"`

	// Region is used by region-aware backends (e.g. AWS S3).
	// Leave empty for MinIO.
	Region string `yaml:"region"`

	// Bucket is the default bucket for requests that leave it empty. When
	// set, validity checks probe it instead of listing every bucket.
	Bucket string `yaml:"bucket"`

	// MaxObjectSize caps how many bytes a get request buffers.
	MaxObjectSize int64 `yaml:"max_object_size"`

	PingTimeout    time.Duration `yaml:"ping_timeout"`
	RequestTimeout time.Duration `yaml:"request_timeout"`
}

// DefaultConfig returns a sensible local-dev config for MinIO.
func DefaultConfig(endpoint, accessKey, secretKey string) *Config {
	return &Config{
		Endpoint:       endpoint,
		AccessKey:      accessKey,
		SecretKey:      secretKey,
		UseSSL:         false,
		MaxObjectSize:  8 << 20,
		PingTimeout:    2 * time.Second,
		RequestTimeout: 30 * time.Second,
	}
}
