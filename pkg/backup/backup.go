package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

const (
	namePrefix = "backup-"
	nameSuffix = ".json"
	nameLayout = "20060102-150405.000"
)

var ErrNoBackups = errors.New("no backups available")

// Snapshot is the content of one backup file: keyed JSON records plus
// free-form metadata.
type Snapshot struct {
	Version   string                     `json:"version"`
	Timestamp time.Time                  `json:"timestamp"`
	Records   map[string]json.RawMessage `json:"records"`
	Metadata  map[string]interface{}     `json:"metadata,omitempty"`
}

// Storage is where backup files live.
type Storage interface {
	Save(ctx context.Context, name string, data io.Reader) error
	Load(ctx context.Context, name string) (io.ReadCloser, error)
	List(ctx context.Context, prefix string) ([]string, error)
	Delete(ctx context.Context, name string) error
}

type Service struct {
	storage Storage
	version string
	now     func() time.Time
}

// NewService creates a backup service writing to storage.
func NewService(storage Storage, version string) *Service {
	return &Service{
		storage: storage,
		version: version,
		now:     time.Now,
	}
}

// Create stamps and stores snap, returning the backup name. Names sort
// in creation order.
func (s *Service) Create(ctx context.Context, snap *Snapshot) (string, error) {
	snap.Version = s.version
	snap.Timestamp = s.now().UTC()
	if snap.Records == nil {
		snap.Records = map[string]json.RawMessage{}
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return "", fmt.Errorf("marshal backup: %w", err)
	}

	name := namePrefix + snap.Timestamp.Format(nameLayout) + nameSuffix
	if err := s.storage.Save(ctx, name, bytes.NewReader(data)); err != nil {
		return "", fmt.Errorf("save backup %s: %w", name, err)
	}
	return name, nil
}

// Load reads and decodes the named snapshot.
func (s *Service) Load(ctx context.Context, name string) (*Snapshot, error) {
	r, err := s.storage.Load(ctx, name)
	if err != nil {
		return nil, fmt.Errorf("load backup %s: %w", name, err)
	}
	defer r.Close()

	var snap Snapshot
	if err := json.NewDecoder(r).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode backup %s: %w", name, err)
	}
	if snap.Version == "" {
		return nil, fmt.Errorf("invalid backup %s: missing version", name)
	}
	return &snap, nil
}

// Latest loads the newest backup. It returns ErrNoBackups when storage
// holds none.
func (s *Service) Latest(ctx context.Context) (*Snapshot, string, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, "", err
	}
	if len(names) == 0 {
		return nil, "", ErrNoBackups
	}
	name := names[len(names)-1]
	snap, err := s.Load(ctx, name)
	if err != nil {
		return nil, "", err
	}
	return snap, name, nil
}

// List returns backup names, oldest first.
func (s *Service) List(ctx context.Context) ([]string, error) {
	names, err := s.storage.List(ctx, namePrefix)
	if err != nil {
		return nil, fmt.Errorf("list backups: %w", err)
	}
	out := names[:0]
	for _, name := range names {
		if strings.HasSuffix(name, nameSuffix) {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out, nil
}

// Prune deletes all but the newest keep backups and returns what it
// removed. Deletion stops at the first failure.
func (s *Service) Prune(ctx context.Context, keep int) ([]string, error) {
	names, err := s.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(names) <= keep {
		return nil, nil
	}

	var deleted []string
	for _, name := range names[:len(names)-keep] {
		if err := s.storage.Delete(ctx, name); err != nil {
			return deleted, fmt.Errorf("delete backup %s: %w", name, err)
		}
		deleted = append(deleted, name)
	}
	return deleted, nil
}

// ParseName returns the creation time encoded in a backup name.
func ParseName(name string) (time.Time, error) {
	if !strings.HasPrefix(name, namePrefix) || !strings.HasSuffix(name, nameSuffix) {
		return time.Time{}, fmt.Errorf("not a backup name: %q", name)
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, namePrefix), nameSuffix)
	return time.Parse(nameLayout, stamp)
}
