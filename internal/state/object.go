package state

import (
	"context"
	"errors"
	"path"
	"strings"

	"github.com/imamik/kubestrap/internal/platform/s3"
)

// ObjectClient is the subset of the S3 client used by ObjectStore.
// GetObject must return an error matching s3.ErrNotFound for missing keys.
type ObjectClient interface {
	PutObject(ctx context.Context, bucket, key string, data []byte) error
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	ListObjects(ctx context.Context, bucket, prefix string) ([]string, error)
	DeleteObject(ctx context.Context, bucket, key string) error
}

// ObjectStore keeps one record object per phase in an S3-compatible bucket.
// A PutObject either fully replaces the object or leaves the old one in place.
type ObjectStore struct {
	client ObjectClient
	bucket string
	prefix string
	opts   options

	// OnCorrupt is called for objects that cannot be decoded.
	OnCorrupt func(key string, err error)
}

// NewObjectStore returns a store writing to bucket under prefix.
func NewObjectStore(client ObjectClient, bucket, prefix string, opts ...Option) (*ObjectStore, error) {
	if client == nil {
		return nil, errors.New("object client is required")
	}
	if strings.TrimSpace(bucket) == "" {
		return nil, errors.New("bucket is required")
	}
	return &ObjectStore{
		client: client,
		bucket: bucket,
		prefix: strings.Trim(prefix, "/"),
		opts:   newOptions(opts),
	}, nil
}

func (s *ObjectStore) key(phase string) string {
	if s.prefix == "" {
		return phase + recordExt
	}
	return path.Join(s.prefix, phase+recordExt)
}

func (s *ObjectStore) listPrefix() string {
	if s.prefix == "" {
		return ""
	}
	return s.prefix + "/"
}

// RecordStart implements Store.
func (s *ObjectStore) RecordStart(ctx context.Context, phase string) error {
	if err := validatePhaseID(phase); err != nil {
		return err
	}
	rec, err := s.read(ctx, phase)
	if err != nil {
		return err
	}
	return s.write(ctx, nextStart(rec, phase, s.opts.runID, s.opts.now()))
}

// RecordResult implements Store.
func (s *ObjectStore) RecordResult(ctx context.Context, phase string, result Result) error {
	if err := validatePhaseID(phase); err != nil {
		return err
	}
	rec, err := s.read(ctx, phase)
	if err != nil {
		return err
	}
	return s.write(ctx, withResult(rec, phase, s.opts.runID, result, s.opts.now()))
}

// Load implements Store.
func (s *ObjectStore) Load(ctx context.Context) (map[string]Record, error) {
	keys, err := s.client.ListObjects(ctx, s.bucket, s.listPrefix())
	if err != nil {
		return nil, unavailable("list records", err)
	}
	out := make(map[string]Record, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, s.listPrefix())
		if strings.Contains(name, "/") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		phase := strings.TrimSuffix(name, recordExt)
		rec, err := s.read(ctx, phase)
		if err != nil {
			return nil, err
		}
		if rec.Phase == "" {
			continue
		}
		out[phase] = rec
	}
	return out, nil
}

// Reset implements Store.
func (s *ObjectStore) Reset(ctx context.Context, phases ...string) error {
	if len(phases) == 0 {
		recs, err := s.Load(ctx)
		if err != nil {
			return err
		}
		for p := range recs {
			phases = append(phases, p)
		}
	}
	for _, p := range phases {
		if err := validatePhaseID(p); err != nil {
			return err
		}
		if err := s.client.DeleteObject(ctx, s.bucket, s.key(p)); err != nil && !errors.Is(err, s3.ErrNotFound) {
			return unavailable("delete record", err)
		}
	}
	return nil
}

func (s *ObjectStore) read(ctx context.Context, phase string) (Record, error) {
	key := s.key(phase)
	data, err := s.client.GetObject(ctx, s.bucket, key)
	if err != nil {
		if errors.Is(err, s3.ErrNotFound) {
			return Record{}, nil
		}
		return Record{}, unavailable("get record", err)
	}
	rec, err := decodeRecord(phase, data)
	if err != nil {
		if s.OnCorrupt != nil {
			s.OnCorrupt(key, err)
		}
		return Record{}, nil
	}
	return rec, nil
}

func (s *ObjectStore) write(ctx context.Context, rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := s.client.PutObject(ctx, s.bucket, s.key(rec.Phase), data); err != nil {
		return unavailable("put record", err)
	}
	return nil
}
