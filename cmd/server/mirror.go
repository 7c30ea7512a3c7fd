package main

import (
	"fmt"
	"log"
	"os"
	"strconv"
	"strings"

	"realmstate.ai/internal/persistence/s3mirror"
)

type mirrorRuntime struct {
	enabled bool
	mirror  *s3mirror.Mirror
}

// buildMirrorRuntime reads REALM_MIRROR_* env vars and, if enabled, starts an
// async uploader that copies snapshots and archives to an S3-compatible bucket.
func buildMirrorRuntime(dataDir string, logger *log.Logger) (*mirrorRuntime, error) {
	if !envBool("REALM_MIRROR", false) {
		return &mirrorRuntime{enabled: false}, nil
	}

	endpoint := strings.TrimSpace(os.Getenv("REALM_MIRROR_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("REALM_MIRROR_BUCKET"))
	accessKey := strings.TrimSpace(os.Getenv("REALM_MIRROR_ACCESS_KEY_ID"))
	secretKey := strings.TrimSpace(os.Getenv("REALM_MIRROR_SECRET_ACCESS_KEY"))
	prefix := strings.TrimSpace(os.Getenv("REALM_MIRROR_PREFIX"))

	if endpoint == "" || bucket == "" || accessKey == "" || secretKey == "" {
		return nil, fmt.Errorf("REALM_MIRROR=true but REALM_MIRROR_ENDPOINT/REALM_MIRROR_BUCKET/REALM_MIRROR_ACCESS_KEY_ID/REALM_MIRROR_SECRET_ACCESS_KEY are not fully set")
	}

	client, err := s3mirror.NewClient(endpoint, bucket, accessKey, secretKey)
	if err != nil {
		return nil, err
	}

	workers := envInt("REALM_MIRROR_UPLOAD_WORKERS", 2)
	return &mirrorRuntime{
		enabled: true,
		mirror:  s3mirror.NewMirror(client, dataDir, prefix, workers, 256, logger),
	}, nil
}

func (r *mirrorRuntime) Close() {
	if r == nil || r.mirror == nil {
		return
	}
	r.mirror.Close()
}

func (r *mirrorRuntime) Enqueue(localPath string) {
	if r == nil || !r.enabled || r.mirror == nil {
		return
	}
	r.mirror.Enqueue(localPath)
}

func (r *mirrorRuntime) Stats() (s3mirror.Stats, bool) {
	if r == nil || !r.enabled || r.mirror == nil {
		return s3mirror.Stats{}, false
	}
	return r.mirror.Stats(), true
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func envInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
