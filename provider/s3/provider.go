package s3

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/mwantia/unistore/data"
	"github.com/mwantia/unistore/provider"
)

// S3Provider exposes an S3 bucket (or a prefix within it) as a read-only
// content layer. Packaged plugin trees are uploaded once by build tooling
// and consumed here; Store and Remove always fail with data.ErrReadOnly.
//
// Object keys mirror tree paths; keys ending in ".yaml" or ".yml" load as
// documents, everything else as binary content.
type S3Provider struct {
	mu sync.RWMutex

	id         string
	client     *minio.Client
	bucketName string
	prefix     string
}

func NewS3Provider(id, endpoint, bucketName, prefix, accessKey, secretKey string, useSsl bool) (*S3Provider, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSsl,
	})
	if err != nil {
		return nil, err
	}

	return &S3Provider{
		id:         id,
		client:     client,
		bucketName: bucketName,
		prefix:     prefix,
	}, nil
}

func (sp *S3Provider) ID() string {
	return sp.id
}

// Open verifies the bucket exists and is reachable.
func (sp *S3Provider) Open(ctx context.Context) error {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	exists, err := sp.client.BucketExists(ctx, sp.bucketName)
	if err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("%w: bucket %s", data.ErrMountFailed, sp.bucketName)
	}

	return nil
}

func (sp *S3Provider) Close(ctx context.Context) error {
	return nil
}

func (sp *S3Provider) Lookup(ctx context.Context, path data.Path) (*data.Metadata, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	if path.IsIndex() {
		// An index position exists when anything lives below it
		opts := minio.ListObjectsOptions{Prefix: sp.key(path) + "/", MaxKeys: 1}
		for object := range sp.client.ListObjects(ctx, sp.bucketName, opts) {
			if object.Err != nil {
				return nil, object.Err
			}
			return data.NewMetadata(path, sp.id, data.KindIndex, object.LastModified), nil
		}
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	info, err := sp.client.StatObject(ctx, sp.bucketName, sp.key(path), minio.StatObjectOptions{})
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
		}
		return nil, err
	}

	return data.NewMetadata(path, sp.id, objectKind(path), info.LastModified), nil
}

func (sp *S3Provider) LoadDocument(ctx context.Context, path data.Path) (data.Document, *data.Metadata, error) {
	raw, meta, err := sp.load(ctx, path)
	if err != nil {
		return nil, nil, err
	}

	doc, err := data.DecodeDocument(raw)
	if err != nil {
		return nil, nil, err
	}

	meta.Kind = data.KindObject
	return doc, meta, nil
}

func (sp *S3Provider) LoadBinary(ctx context.Context, path data.Path) ([]byte, *data.Metadata, error) {
	return sp.load(ctx, path)
}

func (sp *S3Provider) load(ctx context.Context, path data.Path) ([]byte, *data.Metadata, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	object, err := sp.client.GetObject(ctx, sp.bucketName, sp.key(path), minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, err
	}
	defer object.Close()

	raw, err := io.ReadAll(object)
	if err != nil {
		if minio.ToErrorResponse(err).Code == "NoSuchKey" {
			return nil, nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
		}
		return nil, nil, err
	}

	info, err := object.Stat()
	if err != nil {
		return nil, nil, err
	}

	return raw, data.NewMetadata(path, sp.id, objectKind(path), info.LastModified), nil
}

func (sp *S3Provider) Store(ctx context.Context, path data.Path, doc data.Document) error {
	return fmt.Errorf("%w: %s", data.ErrReadOnly, sp.id)
}

func (sp *S3Provider) StoreBinary(ctx context.Context, path data.Path, raw []byte) error {
	return fmt.Errorf("%w: %s", data.ErrReadOnly, sp.id)
}

func (sp *S3Provider) Remove(ctx context.Context, path data.Path) error {
	return fmt.Errorf("%w: %s", data.ErrReadOnly, sp.id)
}

func (sp *S3Provider) List(ctx context.Context, path data.Path) (*data.Index, error) {
	sp.mu.RLock()
	defer sp.mu.RUnlock()

	prefix := sp.key(path)
	if prefix != "" {
		prefix += "/"
	}

	index := data.NewIndex()
	found := false

	opts := minio.ListObjectsOptions{Prefix: prefix}
	for object := range sp.client.ListObjects(ctx, sp.bucketName, opts) {
		if object.Err != nil {
			return nil, object.Err
		}
		found = true

		rest := strings.TrimPrefix(object.Key, prefix)
		if rest == "" {
			continue
		}
		if strings.HasSuffix(rest, "/") {
			index.AddChild(strings.TrimSuffix(rest, "/"))
		} else {
			index.AddObject(rest)
		}
	}

	if !found && !path.IsRoot() {
		return nil, fmt.Errorf("%w: %s", data.ErrNotFound, path)
	}

	return index, nil
}

func (sp *S3Provider) Query(ctx context.Context, query *provider.Query) (*provider.Cursor, error) {
	return provider.NewCursor(func() ([]*data.Metadata, error) {
		sp.mu.RLock()
		defer sp.mu.RUnlock()

		prefix := sp.key(query.Prefix)
		if prefix != "" {
			prefix += "/"
		}

		var metas []*data.Metadata
		opts := minio.ListObjectsOptions{Prefix: prefix, Recursive: true}
		for object := range sp.client.ListObjects(ctx, sp.bucketName, opts) {
			if object.Err != nil {
				return nil, object.Err
			}

			rest := strings.TrimPrefix(object.Key, sp.prefix)
			path, err := data.ParsePath(rest)
			if err != nil || path.IsIndex() {
				continue
			}

			meta := data.NewMetadata(path, sp.id, objectKind(path), object.LastModified)
			if query.Matches(meta) {
				metas = append(metas, meta)
			}
		}
		return metas, nil
	}), nil
}

// key maps a relative tree path onto the bucket prefix.
func (sp *S3Provider) key(path data.Path) string {
	joined := strings.TrimSuffix(strings.TrimPrefix(path.String(), "/"), "/")
	if sp.prefix == "" {
		return joined
	}
	if joined == "" {
		return strings.TrimSuffix(sp.prefix, "/")
	}
	return strings.TrimSuffix(sp.prefix, "/") + "/" + joined
}

func objectKind(path data.Path) data.Kind {
	name := strings.ToLower(path.LastName())
	if strings.HasSuffix(name, ".yaml") || strings.HasSuffix(name, ".yml") {
		return data.KindObject
	}
	return data.KindBinary
}
