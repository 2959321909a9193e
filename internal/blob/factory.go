package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
)

// Config selects and configures a Store backend. It is filled from the
// blob section of the application configuration.
type Config struct {
	Driver string   `mapstructure:"driver"`
	Root   string   `mapstructure:"root"`
	S3     S3Config `mapstructure:"s3"`
}

// Open selects a Store implementation from cfg.
//
//	driver: fs|s3|memory (default fs)
//	root:   directory root when driver=fs (default ./blobdata)
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := strings.ToLower(strings.TrimSpace(cfg.Driver))
	if driver == "" {
		driver = string(DriverFilesystem)
	}
	switch Driver(driver) {
	case DriverFilesystem:
		return NewFilesystem(cfg.Root)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}

// ReadAll fetches the full contents of key.
func ReadAll(ctx context.Context, store Store, key string) ([]byte, error) {
	_, rc, err := store.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

// PutBytes writes body to key with the given content type.
func PutBytes(ctx context.Context, store Store, key string, body []byte, contentType string) (Info, error) {
	return store.Put(ctx, key, bytes.NewReader(body), PutOptions{ContentType: contentType})
}
