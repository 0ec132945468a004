package publish

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"yt2pod/internal/config"
	"yt2pod/internal/episode"
	"yt2pod/internal/logging"
	"yt2pod/internal/services"
)

// ObjectClient is the subset of *minio.Client used for publishing.
type ObjectClient interface {
	StatObject(ctx context.Context, bucket, object string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	FPutObject(ctx context.Context, bucket, object, filePath string, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	RemoveObject(ctx context.Context, bucket, object string, opts minio.RemoveObjectOptions) error
}

// ObjectStore mirrors the feed and media files into an S3-compatible bucket.
// Object keys are the files' paths relative to root, under prefix.
type ObjectStore struct {
	client  ObjectClient
	bucket  string
	prefix  string
	root    string
	tracked []string
	logger  *slog.Logger
}

// NewObjectStore wraps an existing client. tracked lists the files and
// directories whose contents are compared with the bucket.
func NewObjectStore(client ObjectClient, bucket, prefix, root string, tracked []string, logger *slog.Logger) *ObjectStore {
	return &ObjectStore{
		client:  client,
		bucket:  bucket,
		prefix:  strings.Trim(prefix, "/"),
		root:    root,
		tracked: tracked,
		logger:  logging.NewComponentLogger(logger, "publish-s3"),
	}
}

// NewObjectStoreFromConfig connects to the configured endpoint.
func NewObjectStoreFromConfig(cfg *config.Config, logger *slog.Logger) (*ObjectStore, error) {
	store := cfg.Publish.ObjectStore
	client, err := minio.New(store.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(store.AccessKey, store.SecretKey, ""),
		Secure: store.UseSSL,
		Region: store.Region,
	})
	if err != nil {
		return nil, services.Wrap(services.ErrConfiguration, "publishing", "object store", "create client", err)
	}
	tracked := []string{cfg.Paths.RSSFile, cfg.Paths.MediaDir}
	return NewObjectStore(client, store.Bucket, store.Prefix, cfg.Paths.PodcastDir, tracked, logger), nil
}

// Key returns the object key for a local file.
func (o *ObjectStore) Key(file string) (string, error) {
	rel, err := filepath.Rel(o.root, file)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("%s is outside %s", file, o.root)
	}
	return path.Join(o.prefix, filepath.ToSlash(rel)), nil
}

// HasPendingChanges reports whether any tracked file is missing remotely or
// differs in size.
func (o *ObjectStore) HasPendingChanges(ctx context.Context) (bool, error) {
	pending, err := o.pendingFiles(ctx)
	return len(pending) > 0, err
}

// Publish uploads files, or every pending tracked file when files is empty.
// Listed files that no longer exist locally are deleted from the bucket.
// The feed document is uploaded last so it never references missing media.
func (o *ObjectStore) Publish(ctx context.Context, label string, files []string) error {
	if len(files) == 0 {
		pending, err := o.pendingFiles(ctx)
		if err != nil {
			return err
		}
		files = pending
	}
	ordered := make([]string, 0, len(files))
	var feeds []string
	for _, file := range files {
		if strings.EqualFold(filepath.Ext(file), ".xml") {
			feeds = append(feeds, file)
			continue
		}
		ordered = append(ordered, file)
	}
	ordered = append(ordered, feeds...)

	uploaded := 0
	for _, file := range ordered {
		key, err := o.Key(file)
		if err != nil {
			return services.Wrap(services.ErrValidation, "publishing", "object store", "map key", err)
		}
		if _, err := os.Stat(file); errors.Is(err, fs.ErrNotExist) {
			if err := o.client.RemoveObject(ctx, o.bucket, key, minio.RemoveObjectOptions{}); err != nil {
				return services.Wrap(services.ErrTransient, "publishing", "object store", "remove "+key, err)
			}
			o.logger.Debug("object removed", logging.String("key", key))
			continue
		}
		uploaded++
		opts := minio.PutObjectOptions{ContentType: contentType(file)}
		if strings.EqualFold(filepath.Ext(file), ".xml") {
			opts.CacheControl = "no-cache"
		}
		if _, err := o.client.FPutObject(ctx, o.bucket, key, file, opts); err != nil {
			return services.Wrap(services.ErrTransient, "publishing", "object store", "upload "+key, err)
		}
		o.logger.Debug("object uploaded", logging.String("key", key))
	}
	o.logger.Info("feed published",
		logging.String("label", label),
		logging.String("bucket", o.bucket),
		logging.Int("objects", uploaded),
	)
	return nil
}

func (o *ObjectStore) pendingFiles(ctx context.Context) ([]string, error) {
	var pending []string
	for _, file := range o.localFiles() {
		info, err := os.Stat(file)
		if err != nil {
			continue
		}
		key, err := o.Key(file)
		if err != nil {
			continue
		}
		remote, err := o.client.StatObject(ctx, o.bucket, key, minio.StatObjectOptions{})
		if err != nil {
			if minio.ToErrorResponse(err).Code == "NoSuchKey" {
				pending = append(pending, file)
				continue
			}
			return nil, services.Wrap(services.ErrTransient, "publishing", "object store", "stat "+key, err)
		}
		if remote.Size != info.Size() {
			pending = append(pending, file)
		}
	}
	return pending, nil
}

func (o *ObjectStore) localFiles() []string {
	var files []string
	for _, target := range o.tracked {
		info, err := os.Stat(target)
		if err != nil {
			continue
		}
		if !info.IsDir() {
			files = append(files, target)
			continue
		}
		_ = filepath.WalkDir(target, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			if !d.IsDir() && !strings.HasPrefix(d.Name(), ".") {
				files = append(files, p)
			}
			return nil
		})
	}
	return files
}

func contentType(file string) string {
	ext := strings.TrimPrefix(strings.ToLower(filepath.Ext(file)), ".")
	switch ext {
	case "xml":
		return "application/rss+xml"
	case "txt":
		return "text/plain; charset=utf-8"
	case "jpg", "jpeg":
		return "image/jpeg"
	case "png":
		return "image/png"
	default:
		return episode.MimeType(ext)
	}
}
