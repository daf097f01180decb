package snapshotstore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/nishisan-dev/redlet/internal/store"
)

// latestObject is the fixed object name holding the most recent snapshot;
// Save additionally writes a timestamped copy so older snapshots remain
// retrievable out-of-band.
const latestObject = "latest.snapshot"

const s3RequestTimeout = 60 * time.Second

// S3Store is the remote snapshot archival backend: snapshot blobs are put
// to a bucket under a configurable prefix.
type S3Store struct {
	client *s3.Client
	bucket string
	prefix string
	mode   CompressionMode
}

// OpenS3Store builds an S3-backed snapshot store. accessKey/secretKey are
// optional; when empty the SDK's default credential chain applies.
func OpenS3Store(ctx context.Context, bucket, region, prefix, accessKey, secretKey string) (*S3Store, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(region),
	}
	if accessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(accessKey, secretKey, ""),
		))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("loading AWS config: %w", err)
	}
	return &S3Store{
		client: s3.NewFromConfig(cfg),
		bucket: bucket,
		prefix: prefix,
		mode:   CompressionGzip,
	}, nil
}

// Close satisfies the snapshot-store contract; the S3 client holds no
// resources needing teardown.
func (s *S3Store) Close() error { return nil }

func (s *S3Store) key(name string) string {
	if s.prefix == "" {
		return name
	}
	return path.Join(s.prefix, name)
}

// Save encodes snaps and uploads the blob, once under the fixed "latest"
// name and once under a timestamped name.
func (s *S3Store) Save(snaps []store.Snapshot) error {
	blob, err := Encode(s.mode, snaps)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	stamped := time.Now().UTC().Format("2006-01-02T15-04-05") + ".snapshot"
	for _, name := range []string{latestObject, stamped} {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(s.key(name)),
			Body:   bytes.NewReader(blob),
		})
		if err != nil {
			return fmt.Errorf("uploading snapshot %s: %w", name, err)
		}
	}
	return nil
}

// Load fetches and decodes the "latest" snapshot object, ok=false when the
// object does not exist yet.
func (s *S3Store) Load() (snaps []store.Snapshot, ok bool, err error) {
	ctx, cancel := context.WithTimeout(context.Background(), s3RequestTimeout)
	defer cancel()

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(s.key(latestObject)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("fetching snapshot: %w", err)
	}
	defer out.Body.Close()

	blob, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, false, fmt.Errorf("reading snapshot body: %w", err)
	}
	snaps, err = Decode(blob)
	if err != nil {
		return nil, false, err
	}
	return snaps, true, nil
}
