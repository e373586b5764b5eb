package storage

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/afero"

	"github.com/gnowmil/peacefair-energy/internal/core/domain"
	"github.com/gnowmil/peacefair-energy/internal/core/port"
)

// FileBaselineStore keeps one JSON file per device under a base
// directory. Writes go through a temp file and rename so a crash cannot
// leave a half-written record.
type FileBaselineStore struct {
	fs  afero.Fs
	dir string
}

var _ port.BaselineStore = (*FileBaselineStore)(nil)

func NewFileBaselineStore(fs afero.Fs, dir string) (*FileBaselineStore, error) {
	if err := fs.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("baseline store: create dir %s: %w", dir, err)
	}
	return &FileBaselineStore{fs: fs, dir: dir}, nil
}

func (s *FileBaselineStore) Load(device domain.DeviceID) (*domain.BaselineRecord, error) {
	data, err := afero.ReadFile(s.fs, s.path(device))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("baseline store: read %s: %w", device, err)
	}
	var record domain.BaselineRecord
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, fmt.Errorf("baseline store: decode %s: %w", device, err)
	}
	return &record, nil
}

func (s *FileBaselineStore) Save(device domain.DeviceID, record domain.BaselineRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("baseline store: encode %s: %w", device, err)
	}
	tmp := s.path(device) + ".tmp"
	if err := afero.WriteFile(s.fs, tmp, data, 0o644); err != nil {
		return fmt.Errorf("baseline store: write %s: %w", device, err)
	}
	if err := s.fs.Rename(tmp, s.path(device)); err != nil {
		return fmt.Errorf("baseline store: rename %s: %w", device, err)
	}
	return nil
}

func (s *FileBaselineStore) Delete(device domain.DeviceID) error {
	if err := s.fs.Remove(s.path(device)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("baseline store: delete %s: %w", device, err)
	}
	return nil
}

func (s *FileBaselineStore) path(device domain.DeviceID) string {
	return filepath.Join(s.dir, string(device)+".json")
}
