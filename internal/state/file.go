package state

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// FileStore stores one YAML record per phase in a directory.
type FileStore struct {
	dir  string
	opts options

	// OnCorrupt is called for record files that cannot be decoded. Such
	// records are skipped, which makes the phase run again.
	OnCorrupt func(path string, err error)
}

// NewFileStore returns a FileStore rooted at dir. The directory is created on first write.
func NewFileStore(dir string, opts ...Option) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, errors.New("state directory is required")
	}
	return &FileStore{dir: dir, opts: newOptions(opts)}, nil
}

// Dir returns the directory holding the records.
func (s *FileStore) Dir() string {
	return s.dir
}

func (s *FileStore) path(phase string) string {
	return filepath.Join(s.dir, phase+recordExt)
}

// RecordStart implements Store.
func (s *FileStore) RecordStart(_ context.Context, phase string) error {
	if err := validatePhaseID(phase); err != nil {
		return err
	}
	rec, err := s.read(phase)
	if err != nil {
		return err
	}
	return s.write(nextStart(rec, phase, s.opts.runID, s.opts.now()))
}

// RecordResult implements Store.
func (s *FileStore) RecordResult(_ context.Context, phase string, result Result) error {
	if err := validatePhaseID(phase); err != nil {
		return err
	}
	rec, err := s.read(phase)
	if err != nil {
		return err
	}
	return s.write(withResult(rec, phase, s.opts.runID, result, s.opts.now()))
}

// Load implements Store.
func (s *FileStore) Load(_ context.Context) (map[string]Record, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]Record{}, nil
		}
		return nil, unavailable("read state directory", err)
	}

	out := make(map[string]Record, len(entries))
	for _, e := range entries {
		name := e.Name()
		// Temporary files from interrupted writes start with a dot.
		if e.IsDir() || strings.HasPrefix(name, ".") || !strings.HasSuffix(name, recordExt) {
			continue
		}
		phase := strings.TrimSuffix(name, recordExt)
		rec, err := s.read(phase)
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
func (s *FileStore) Reset(ctx context.Context, phases ...string) error {
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
		if err := os.Remove(s.path(p)); err != nil && !os.IsNotExist(err) {
			return unavailable("remove record", err)
		}
	}
	if err := syncDir(s.dir); err != nil {
		return unavailable("sync state directory", err)
	}
	return nil
}

// read returns the stored record, or a zero Record when none exists or the
// file is corrupt.
func (s *FileStore) read(phase string) (Record, error) {
	path := s.path(phase)
	// #nosec G304
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, unavailable("read record", err)
	}
	rec, err := decodeRecord(phase, data)
	if err != nil {
		if s.OnCorrupt != nil {
			s.OnCorrupt(path, err)
		}
		return Record{}, nil
	}
	return rec, nil
}

func (s *FileStore) write(rec Record) error {
	data, err := encodeRecord(rec)
	if err != nil {
		return err
	}
	if err := writeFileAtomic(s.path(rec.Phase), data, 0o600); err != nil {
		return unavailable("write record", err)
	}
	return nil
}

// writeFileAtomic writes data to a temporary file in the same directory,
// syncs it, renames it over path and syncs the directory.
func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	committed := false
	defer func() {
		_ = tmp.Close()
		if !committed {
			_ = os.Remove(tmpName)
		}
	}()

	if _, err := tmp.Write(data); err != nil {
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Chmod(perm); err != nil {
		return err
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return err
	}
	committed = true
	return syncDir(dir)
}

func syncDir(dir string) error {
	f, err := os.Open(dir) // #nosec G304
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	defer func() { _ = f.Close() }()
	return f.Sync()
}
