package objectstore

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// excludedPatterns are the "small fixed set of transient patterns" §4.6
// step 2 calls for skipping during hot-sync: temp files and editor caches.
var excludedPatterns = []string{".swp", "~", ".DS_Store", ".tmp"}

func isExcluded(name string) bool {
	base := filepath.Base(name)
	for _, p := range excludedPatterns {
		if strings.HasSuffix(base, p) {
			return true
		}
	}
	return false
}

// syncRetries mirrors §4.6's "bounded exponential back-off; at least 3
// attempts" for both hot-sync directions.
const syncRetries = 3

func withRetry(ctx context.Context, logger *slog.Logger, op string, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt < syncRetries; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			logger.Warn("sync attempt failed", "op", op, "attempt", attempt+1, "err", err)
			backoff := time.Duration(math.Pow(2, float64(attempt))) * time.Second
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(backoff):
			}
			continue
		}
		return nil
	}
	return fmt.Errorf("sync %s: all %d attempts failed: %w", op, syncRetries, lastErr)
}

// SyncDown mirrors every object under bucket/prefix into localDir,
// creating parent directories as needed. Best-effort per object: one
// bad object is retried up to syncRetries times and then skipped with a
// logged warning rather than aborting the whole sync, since §4.6 treats
// the hot sync as best-effort overall.
func SyncDown(ctx context.Context, client *s3.Client, bucket, prefix, localDir string, logger *slog.Logger) error {
	downloader := manager.NewDownloader(client)

	paginator := s3.NewListObjectsV2Paginator(client, &s3.ListObjectsV2Input{
		Bucket: aws.String(bucket),
		Prefix: aws.String(prefix),
	})

	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return fmt.Errorf("listing objects under %s: %w", prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if isExcluded(key) {
				continue
			}
			rel := strings.TrimPrefix(key, prefix)
			if rel == "" {
				continue
			}
			dest := filepath.Join(localDir, rel)

			err := withRetry(ctx, logger, "download:"+key, func() error {
				if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
					return err
				}
				f, err := os.Create(dest)
				if err != nil {
					return err
				}
				defer f.Close()
				_, err = downloader.Download(ctx, f, &s3.GetObjectInput{
					Bucket: aws.String(bucket),
					Key:    aws.String(key),
				})
				return err
			})
			if err != nil {
				logger.Warn("hot-sync-down: giving up on object, continuing", "key", key, "err", err)
			}
		}
	}
	return nil
}

// SyncUp mirrors localDir back into bucket/prefix, the shutdown-sequence
// counterpart of SyncDown (§4.6 step 2 of shutdown). A failed object is
// logged and skipped like in SyncDown, but once the walk finishes SyncUp
// returns an error counting the objects that did not upload.
func SyncUp(ctx context.Context, client *s3.Client, bucket, prefix, localDir string, logger *slog.Logger) error {
	uploader := manager.NewUploader(client)

	failed := 0
	err := filepath.WalkDir(localDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || isExcluded(path) {
			return nil
		}
		rel, err := filepath.Rel(localDir, path)
		if err != nil {
			return err
		}
		key := prefix + filepath.ToSlash(rel)

		if err := withRetry(ctx, logger, "upload:"+key, func() error {
			f, err := os.Open(path)
			if err != nil {
				return err
			}
			defer f.Close()
			_, err = uploader.Upload(ctx, &s3.PutObjectInput{
				Bucket: aws.String(bucket),
				Key:    aws.String(key),
				Body:   f,
			})
			return err
		}); err != nil {
			logger.Warn("hot-sync-up: giving up on object, continuing", "key", key, "err", err)
			failed++
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("walking %s: %w", localDir, err)
	}
	if failed > 0 {
		return fmt.Errorf("hot-sync-up: %d object(s) failed to upload", failed)
	}
	return nil
}
