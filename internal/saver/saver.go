// Package saver provides the save-as-file capability: decoded downloads
// are written to a local directory or an S3 bucket.
package saver

import (
	"context"
	"fmt"
	"path"
	"strings"

	"github.com/fruitsalade/docconnector/internal/config"
)

// Target stores downloaded files under a suggested name.
type Target interface {
	SaveAsFile(ctx context.Context, data []byte, suggestedName string) error

	// Type returns the target type identifier ("local", "s3").
	Type() string
}

// New creates the save target selected by cfg.SaveBackend.
func New(ctx context.Context, cfg *config.Client) (Target, error) {
	switch cfg.SaveBackend {
	case "", "local":
		return NewLocal(LocalConfig{Dir: cfg.SaveDir, CreateDirs: true})
	case "s3":
		return NewS3(ctx, S3Config{
			Endpoint:     cfg.S3Endpoint,
			Bucket:       cfg.S3Bucket,
			Prefix:       cfg.S3Prefix,
			AccessKey:    cfg.S3AccessKey,
			SecretKey:    cfg.S3SecretKey,
			Region:       cfg.S3Region,
			CreateBucket: cfg.S3CreateBucket,
		})
	default:
		return nil, fmt.Errorf("unknown save backend: %s", cfg.SaveBackend)
	}
}

// cleanName reduces a server-supplied name to a single safe path element.
func cleanName(name string) (string, error) {
	name = strings.ReplaceAll(name, "\\", "/")
	name = path.Base(path.Clean("/" + name))
	if name == "/" || name == "." || name == "" {
		return "", fmt.Errorf("invalid file name")
	}
	return name, nil
}
