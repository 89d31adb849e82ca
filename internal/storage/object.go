package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/hotnsoursoup/KlipMapper-sub000/internal/anchor"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/config"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/debug"
	amerrors "github.com/hotnsoursoup/KlipMapper-sub000/internal/errors"
	"github.com/hotnsoursoup/KlipMapper-sub000/internal/types"
)

// ErrObjectNotFound is returned by ObjectStore.Get for a missing key
var ErrObjectNotFound = errors.New("object not found")

// ObjectStore is the part of an S3-compatible bucket the object sink uses
type ObjectStore interface {
	Put(ctx context.Context, key string, content []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Remove(ctx context.Context, key string) error
	List(ctx context.Context, prefix string) ([]string, error)
}

// MinioStore is an ObjectStore on a MinIO or S3 bucket
type MinioStore struct {
	client *minio.Client
	bucket string
	region string

	initOnce sync.Once
	initErr  error
}

// NewMinioStore creates a client; the bucket is created on first use
func NewMinioStore(cfg config.ObjectStore) (*MinioStore, error) {
	endpoint := strings.TrimSpace(cfg.Endpoint)
	if endpoint == "" {
		return nil, errors.New("object store endpoint is required")
	}
	access, secret := strings.TrimSpace(cfg.AccessKey), strings.TrimSpace(cfg.SecretKey)
	if access == "" || secret == "" {
		return nil, errors.New("object store access key and secret key are required")
	}
	bucket := strings.TrimSpace(cfg.Bucket)
	if bucket == "" {
		return nil, errors.New("object store bucket is required")
	}
	region := strings.TrimSpace(cfg.Region)
	if region == "" {
		region = "us-east-1"
	}
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(access, secret, ""),
		Secure: cfg.UseSSL,
		Region: region,
	})
	if err != nil {
		return nil, fmt.Errorf("init object store client: %w", err)
	}
	return &MinioStore{client: client, bucket: bucket, region: region}, nil
}

func (m *MinioStore) ensureBucket(ctx context.Context) error {
	m.initOnce.Do(func() {
		exists, err := m.client.BucketExists(ctx, m.bucket)
		if err != nil {
			m.initErr = err
			return
		}
		if !exists {
			m.initErr = m.client.MakeBucket(ctx, m.bucket, minio.MakeBucketOptions{Region: m.region})
		}
	})
	return m.initErr
}

func (m *MinioStore) Put(ctx context.Context, key string, content []byte) error {
	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	_, err := m.client.PutObject(ctx, m.bucket, key, bytes.NewReader(content), int64(len(content)),
		minio.PutObjectOptions{ContentType: "application/json"})
	return err
}

func (m *MinioStore) Get(ctx context.Context, key string) ([]byte, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	obj, err := m.client.GetObject(ctx, m.bucket, key, minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	data, err := io.ReadAll(obj)
	if err != nil {
		if code := minio.ToErrorResponse(err).Code; code == "NoSuchKey" || code == "NoSuchBucket" {
			return nil, ErrObjectNotFound
		}
		return nil, err
	}
	return data, nil
}

func (m *MinioStore) Remove(ctx context.Context, key string) error {
	if err := m.ensureBucket(ctx); err != nil {
		return fmt.Errorf("ensure bucket: %w", err)
	}
	return m.client.RemoveObject(ctx, m.bucket, key, minio.RemoveObjectOptions{})
}

func (m *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	if err := m.ensureBucket(ctx); err != nil {
		return nil, fmt.Errorf("ensure bucket: %w", err)
	}
	var keys []string
	for obj := range m.client.ListObjects(ctx, m.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		if obj.Key != "" {
			keys = append(keys, obj.Key)
		}
	}
	sort.Strings(keys)
	return keys, nil
}

const objectExt = ".json"

// ObjectSink stores each header as a JSON object at <project>/<path>.json
type ObjectSink struct {
	store   ObjectStore
	project string
}

// NewObjectSink creates an object sink over store
func NewObjectSink(store ObjectStore, project string) *ObjectSink {
	return &ObjectSink{store: store, project: project}
}

func (s *ObjectSink) Name() string { return "object" }

// Key returns the object key of a source path
func (s *ObjectSink) Key(path string) string {
	return strings.TrimSuffix(s.project, "/") + "/" + strings.TrimLeft(path, "/") + objectExt
}

func (s *ObjectSink) PutAnchor(ctx context.Context, fileID string, h *types.AnchorHeader) error {
	data, err := json.Marshal(h)
	if err != nil {
		return amerrors.NewCodecError("encode", h.Path(), err)
	}
	key := s.Key(PathOf(fileID))
	if err := s.store.Put(ctx, key, data); err != nil {
		return amerrors.NewIoError("put", key, err)
	}
	debug.LogStore("object put %s (%d bytes)", key, len(data))
	return nil
}

func (s *ObjectSink) Get(ctx context.Context, path string) (*types.AnchorHeader, error) {
	key := s.Key(path)
	data, err := s.store.Get(ctx, key)
	if errors.Is(err, ErrObjectNotFound) {
		return nil, notFound(path)
	}
	if err != nil {
		return nil, amerrors.NewIoError("get", key, err)
	}
	var h types.AnchorHeader
	if err := json.Unmarshal(data, &h); err != nil {
		return nil, amerrors.NewCodecError("decode", key, err)
	}
	if err := anchor.CheckIntegrity(&h); err != nil {
		return nil, amerrors.NewCodecError("decode", key, err)
	}
	return &h, nil
}

func (s *ObjectSink) Delete(ctx context.Context, fileID string) error {
	key := s.Key(PathOf(fileID))
	if err := s.store.Remove(ctx, key); err != nil {
		return amerrors.NewIoError("remove", key, err)
	}
	return nil
}

// List returns the file ids under project; an empty project means the
// sink's own
func (s *ObjectSink) List(ctx context.Context, project string) ([]string, error) {
	if project == "" {
		project = s.project
	}
	prefix := strings.TrimSuffix(project, "/") + "/"
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, amerrors.NewIoError("list", prefix, err)
	}
	ids := make([]string, 0, len(keys))
	for _, k := range keys {
		if !strings.HasSuffix(k, objectExt) {
			continue
		}
		ids = append(ids, anchor.FileID(strings.TrimSuffix(strings.TrimPrefix(k, prefix), objectExt)))
	}
	return ids, nil
}
