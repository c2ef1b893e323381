// Package s3up mirrors a local directory tree to an S3 prefix.
package s3up

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"mime"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"golang.org/x/sync/errgroup"

	logger "radpipe.io/logger"
)

// Target is the parsed form of an s3://bucket/prefix URI.
type Target struct {
	Bucket string
	Prefix string
}

// ParseURI splits an S3 URI into bucket and prefix. The prefix keeps any
// trailing slash and never starts with one.
func ParseURI(s3uri string) (Target, error) {
	if !strings.HasPrefix(s3uri, "s3://") {
		return Target{}, errors.New("s3up: S3 path must start with s3://")
	}
	parsed, err := url.Parse(s3uri)
	if err != nil {
		return Target{}, fmt.Errorf("s3up: %w", err)
	}
	if len(parsed.Host) == 0 {
		return Target{}, errors.New("s3up: S3 path is missing a bucket")
	}
	return Target{
		Bucket: parsed.Host,
		Prefix: strings.TrimPrefix(parsed.Path, "/"),
	}, nil
}

// BuildKey preserves the file's path relative to root under the prefix,
// always with forward slashes.
func BuildKey(localFile, localRoot, prefix string) (string, error) {
	rel, err := filepath.Rel(localRoot, localFile)
	if err != nil {
		return "", err
	}
	key := filepath.ToSlash(rel)
	if len(prefix) > 0 && !strings.HasSuffix(prefix, "/") {
		prefix = prefix + "/"
	}
	return prefix + key, nil
}

// ContentType guesses a Content-Type from the file extension; empty when
// unknown so the SDK default applies.
func ContentType(localFile string) string {
	return mime.TypeByExtension(filepath.Ext(localFile))
}

// ListFiles returns every regular file under root.
func ListFiles(root string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, werr error) error {
		if werr != nil {
			return werr
		}
		if d.Type().IsRegular() {
			files = append(files, p)
		}
		return nil
	})
	return files, err
}

// Progress is a goroutine safe byte counter for the one-line upload ticker.
type Progress struct {
	total int64
	seen  atomic.Int64
	mu    sync.Mutex
}

func NewProgress(total int64) *Progress {
	return &Progress{total: total}
}

func (p *Progress) Add(n int64) {
	seen := p.seen.Add(n)
	if p.total <= 0 {
		return
	}
	p.mu.Lock()
	fmt.Printf("\rUploaded %d of %d bytes (%5.1f%%)", seen, p.total,
		float64(seen)/float64(p.total)*100)
	p.mu.Unlock()
}

// progressReader feeds the counter as the SDK consumes the file.
type progressReader struct {
	f        *os.File
	progress *Progress
}

func (r *progressReader) Read(p []byte) (int, error) {
	n, err := r.f.Read(p)
	if n > 0 && r.progress != nil {
		r.progress.Add(int64(n))
	}
	return n, err
}

// Failure records one upload that did not complete.
type Failure struct {
	Key string
	Err error
}

// Uploader pushes files with a bounded worker pool.
type Uploader struct {
	Client       *s3.Client
	Workers      int
	ACL          string
	StorageClass string
}

// New builds an uploader from the default AWS credential chain.
func New(ctx context.Context, workers int) (*Uploader, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("s3up: load AWS config: %w", err)
	}
	return &Uploader{
		Client:  s3.NewFromConfig(cfg),
		Workers: workers,
	}, nil
}

// UploadTree uploads every file under localRoot to the target. All failures
// are collected rather than aborting the batch; the first walk or context
// error still aborts.
func (u *Uploader) UploadTree(ctx context.Context, localRoot string, target Target,
	files []string, progress *Progress) ([]string, []Failure, error) {

	uploader := manager.NewUploader(u.Client)

	workers := u.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	var uploaded []string
	var failures []Failure

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for _, file := range files {
		file := file
		g.Go(func() error {
			key, err := BuildKey(file, localRoot, target.Prefix)
			if err != nil {
				return err
			}
			uerr := u.uploadOne(gctx, uploader, target.Bucket, key, file, progress)
			mu.Lock()
			defer mu.Unlock()
			if uerr != nil {
				logger.ErrorPrintf("upload failed for %s: %v", key, uerr)
				failures = append(failures, Failure{Key: key, Err: uerr})
			} else {
				uploaded = append(uploaded, key)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return uploaded, failures, err
	}
	return uploaded, failures, nil
}

func (u *Uploader) uploadOne(ctx context.Context, uploader *manager.Uploader,
	bucket, key, file string, progress *Progress) error {

	f, err := os.Open(file)
	if err != nil {
		return err
	}
	defer f.Close()

	input := &s3.PutObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
		Body:   &progressReader{f: f, progress: progress},
	}
	if ctype := ContentType(file); len(ctype) > 0 {
		input.ContentType = aws.String(ctype)
	}
	if len(u.ACL) > 0 {
		input.ACL = types.ObjectCannedACL(u.ACL)
	}
	if len(u.StorageClass) > 0 {
		input.StorageClass = types.StorageClass(u.StorageClass)
	}
	_, err = uploader.Upload(ctx, input)
	return err
}
