package storedrequest

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"path"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"golang.org/x/sync/errgroup"

	"github.com/seantiz/vexing/internal/bounded"
	"github.com/seantiz/vexing/internal/deadline"
	"github.com/seantiz/vexing/internal/model"
)

const noSuchKey = "NoSuchKey"

// S3Config describes the bucket holding stored request objects.
type S3Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Region    string
	UseSSL    bool
	Bucket    string
	Prefix    string
}

// S3Fetcher loads fragments stored as <prefix>/requests/<id>.json and
// <prefix>/imps/<id>.json objects. Each object read is bounded by the deadline.
type S3Fetcher struct {
	mc     *minio.Client
	bucket string
	prefix string
	runner *bounded.Runner
}

// NewS3Fetcher creates a Fetcher reading from an S3-compatible object store.
func NewS3Fetcher(cfg S3Config, runner *bounded.Runner) (*S3Fetcher, error) {
	mc, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("s3 client: %w", err)
	}
	if runner == nil {
		runner = bounded.NewRunner(nil, nil)
	}
	return &S3Fetcher{mc: mc, bucket: cfg.Bucket, prefix: cfg.Prefix, runner: runner}, nil
}

// FetchRequests implements Fetcher.
func (f *S3Fetcher) FetchRequests(ctx context.Context, d deadline.Deadline, requestIDs, impIDs []string) (*Result, error) {
	res := newResult()
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)
	fetch := func(kind, id string, into map[string]json.RawMessage) {
		g.Go(func() error {
			data, err := bounded.Run(gctx, f.runner, d, "S3 object fetch", func(ctx context.Context) ([]byte, error) {
				return f.getObject(ctx, objectKey(f.prefix, kind, id))
			})
			if err != nil {
				return err
			}
			if data == nil {
				return nil
			}
			mu.Lock()
			into[id] = json.RawMessage(data)
			mu.Unlock()
			return nil
		})
	}
	for _, id := range requestIDs {
		fetch(model.KindRequest, id, res.Requests)
	}
	for _, id := range impIDs {
		fetch(model.KindImp, id, res.Imps)
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// getObject returns nil data without error when the object does not exist.
func (f *S3Fetcher) getObject(ctx context.Context, key string) ([]byte, error) {
	obj, err := f.mc.GetObject(ctx, f.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, fmt.Errorf("get object %s: %w", key, err)
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		if minio.ToErrorResponse(err).Code == noSuchKey {
			return nil, nil
		}
		return nil, fmt.Errorf("read object %s: %w", key, err)
	}
	return data, nil
}

func objectKey(prefix, kind, id string) string {
	dir := "requests"
	if kind == model.KindImp {
		dir = "imps"
	}
	return path.Join(prefix, dir, id+".json")
}
