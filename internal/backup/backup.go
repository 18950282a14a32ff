// Package backup archives the engine's data paths into a zstd-compressed
// tar and ships it to S3-compatible object storage. Archives capture the
// files as they are on disk; stop the server or let the syncer settle first
// for a consistent snapshot.
package backup

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"

	"github.com/kiokusearch/kioku/internal/config"
)

// Backup archives data paths and uploads the result. Credentials are read
// from the environment variables named in the config, never from the config
// itself.
type Backup struct {
	cfg    config.BackupConfig
	logger *zap.Logger
}

// New returns a Backup using the given upload settings.
func New(cfg config.BackupConfig, logger *zap.Logger) *Backup {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backup{cfg: cfg, logger: logger}
}

// Result describes a finished backup.
type Result struct {
	ArchivePath string `json:"archive_path"`
	SizeBytes   int64  `json:"size_bytes"`
	Bucket      string `json:"bucket,omitempty"`
	ObjectName  string `json:"object_name,omitempty"`
}

// Run archives paths into archivePath (a timestamped name under the system
// temp directory when empty) and uploads the archive unless localOnly is set
// or no endpoint is configured. On upload failure the local archive is kept
// and returned alongside the error.
func (b *Backup) Run(ctx context.Context, paths []string, archivePath string, localOnly bool) (*Result, error) {
	if archivePath == "" {
		archivePath = filepath.Join(os.TempDir(), ArchiveName(time.Now()))
	}

	f, err := os.Create(archivePath)
	if err != nil {
		return nil, fmt.Errorf("create archive: %w", err)
	}
	if err := WriteArchive(paths, f); err != nil {
		_ = f.Close()
		_ = os.Remove(archivePath)
		return nil, err
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("close archive: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return nil, fmt.Errorf("stat archive: %w", err)
	}
	res := &Result{ArchivePath: archivePath, SizeBytes: info.Size()}
	b.logger.Info("backup archived",
		zap.String("path", archivePath),
		zap.Int64("size_bytes", res.SizeBytes),
		zap.Strings("sources", paths))

	if localOnly || b.cfg.Endpoint == "" {
		return res, nil
	}

	object := path.Join(b.cfg.Prefix, filepath.Base(archivePath))
	if err := b.upload(ctx, archivePath, object); err != nil {
		return res, err
	}
	res.Bucket = b.cfg.Bucket
	res.ObjectName = object
	return res, nil
}

// ArchiveName returns the timestamped file name for a backup taken at t.
func ArchiveName(t time.Time) string {
	return fmt.Sprintf("kioku-%s.tar.zst", t.UTC().Format("20060102T150405Z"))
}

// WriteArchive streams a zstd-compressed tar of paths to w. Each path may be
// a file or a directory; entries are named relative to the path's parent, so
// a badger directory lands in the archive under its own base name. Paths
// that do not exist are skipped.
func WriteArchive(paths []string, w io.Writer) error {
	zw, err := zstd.NewWriter(w)
	if err != nil {
		return fmt.Errorf("create compressor: %w", err)
	}
	tw := tar.NewWriter(zw)

	for _, p := range paths {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); os.IsNotExist(err) {
			continue
		}
		if err := addPath(tw, p); err != nil {
			_ = tw.Close()
			_ = zw.Close()
			return fmt.Errorf("archive %s: %w", p, err)
		}
	}

	if err := tw.Close(); err != nil {
		_ = zw.Close()
		return fmt.Errorf("finish tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("finish compression: %w", err)
	}
	return nil
}

func addPath(tw *tar.Writer, root string) error {
	parent := filepath.Dir(root)
	return filepath.Walk(root, func(p string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		// Sockets, pipes, and symlinks have no place in a restorable archive.
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(parent, p)
		if err != nil {
			return err
		}
		header, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		header.Name = filepath.ToSlash(rel)
		if err := tw.WriteHeader(header); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		f, err := os.Open(p)
		if err != nil {
			return err
		}
		defer f.Close()
		_, err = io.Copy(tw, f)
		return err
	})
}

func (b *Backup) upload(ctx context.Context, archivePath, objectName string) error {
	if b.cfg.Bucket == "" {
		return fmt.Errorf("backup bucket not configured")
	}
	access := os.Getenv(b.cfg.AccessKeyEnv)
	secret := os.Getenv(b.cfg.SecretKeyEnv)
	if access == "" || secret == "" {
		return fmt.Errorf("backup credentials missing: set %s and %s", b.cfg.AccessKeyEnv, b.cfg.SecretKeyEnv)
	}

	client, err := minio.New(b.cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: b.cfg.UseSSLOrDefault(),
	})
	if err != nil {
		return fmt.Errorf("create object storage client: %w", err)
	}

	exists, err := client.BucketExists(ctx, b.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", b.cfg.Bucket, err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, b.cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return fmt.Errorf("create bucket %s: %w", b.cfg.Bucket, err)
		}
	}

	info, err := client.FPutObject(ctx, b.cfg.Bucket, objectName, archivePath, minio.PutObjectOptions{
		ContentType: "application/zstd",
	})
	if err != nil {
		return fmt.Errorf("upload %s: %w", objectName, err)
	}
	b.logger.Info("backup uploaded",
		zap.String("bucket", b.cfg.Bucket),
		zap.String("object", objectName),
		zap.Int64("size_bytes", info.Size))
	return nil
}
