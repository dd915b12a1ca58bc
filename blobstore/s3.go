package blobstore

import (
	"bytes"
	"context"
	"io"
	"mime"
	"path"
	"strings"

	"articlehub/common"
	"articlehub/types"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const listPageSize = 1000

// ObjectClient is the subset of common.S3 the blob store needs.
type ObjectClient interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, opts common.PutOptions) error
	Get(ctx context.Context, bucket, key string) (io.ReadCloser, error)
	Exists(ctx context.Context, bucket, key string) (bool, error)
	Delete(ctx context.Context, bucket, key string) error
	List(ctx context.Context, bucket, prefix string, maxKeys int32, continuationToken *string) (*s3.ListObjectsV2Output, error)
}

// S3Store keeps blobs in an S3 bucket under an optional key prefix. Keys
// handed back to callers never include the prefix.
type S3Store struct {
	client ObjectClient
	bucket string
	prefix string
	newKey func(ns Namespace, name string) string
}

// NewS3Store returns a bucket-backed store.
func NewS3Store(client ObjectClient, bucket, prefix string) *S3Store {
	prefix = strings.Trim(prefix, "/")
	if prefix != "" {
		prefix += "/"
	}
	return &S3Store{client: client, bucket: bucket, prefix: prefix, newKey: NewKey}
}

func (s *S3Store) Put(ctx context.Context, ns Namespace, name string, data []byte) (string, error) {
	if err := checkNamespace(ns); err != nil {
		return "", err
	}

	key := s.newKey(ns, name)
	err := s.client.Put(ctx, s.bucket, s.prefix+key, bytes.NewReader(data), common.PutOptions{
		ContentType: mime.TypeByExtension(path.Ext(key)),
		IfAbsent:    true,
	})
	if common.IsPreconditionFailed(err) {
		return "", exists(key)
	}
	if err != nil {
		return "", types.StorageError("put blob", err)
	}
	return key, nil
}

func (s *S3Store) Get(ctx context.Context, key string) ([]byte, error) {
	if err := ValidateKey(key); err != nil {
		return nil, err
	}

	body, err := s.client.Get(ctx, s.bucket, s.prefix+key)
	if common.IsNotFound(err) {
		return nil, notFound(key)
	}
	if err != nil {
		return nil, types.StorageError("get blob", err)
	}
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		return nil, types.StorageError("read blob", err)
	}
	return data, nil
}

// Delete checks for the object first because S3 deletes are idempotent and
// would otherwise never report a missing key.
func (s *S3Store) Delete(ctx context.Context, key string) error {
	if err := ValidateKey(key); err != nil {
		return err
	}

	ok, err := s.client.Exists(ctx, s.bucket, s.prefix+key)
	if err != nil {
		return types.StorageError("head blob", err)
	}
	if !ok {
		return notFound(key)
	}
	if err := s.client.Delete(ctx, s.bucket, s.prefix+key); err != nil {
		return types.StorageError("delete blob", err)
	}
	return nil
}

func (s *S3Store) List(ctx context.Context, ns Namespace) ([]Object, error) {
	if err := checkNamespace(ns); err != nil {
		return nil, err
	}

	var (
		objects []Object
		token   *string
	)
	for {
		out, err := s.client.List(ctx, s.bucket, s.prefix+string(ns)+"/", listPageSize, token)
		if err != nil {
			return nil, types.StorageError("list blobs", err)
		}
		for _, obj := range out.Contents {
			key := strings.TrimPrefix(aws.ToString(obj.Key), s.prefix)
			if ValidateKey(key) != nil {
				continue
			}
			objects = append(objects, Object{
				Key:      key,
				Size:     aws.ToInt64(obj.Size),
				Modified: aws.ToTime(obj.LastModified),
			})
		}
		if !aws.ToBool(out.IsTruncated) || out.NextContinuationToken == nil {
			return objects, nil
		}
		token = out.NextContinuationToken
	}
}
