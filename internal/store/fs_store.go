package store

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/cwbudde/kernelbind/internal/logging"
)

// FSStore keeps one JSON file per profile under <baseDir>/profiles/.
//
// Writes go through a temp file and a rename, so concurrent readers never
// see a partial profile and no locking is needed.
type FSStore struct {
	baseDir string
	log     *logrus.Entry
}

// NewFSStore creates a filesystem store rooted at baseDir, creating the
// directory if needed.
func NewFSStore(baseDir string) (*FSStore, error) {
	if err := os.MkdirAll(baseDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create base directory: %w", err)
	}
	return &FSStore{
		baseDir: baseDir,
		log:     logging.Component("store"),
	}, nil
}

func (fs *FSStore) profileDir() string {
	return filepath.Join(fs.baseDir, "profiles")
}

func (fs *FSStore) profilePath(key string) string {
	return filepath.Join(fs.profileDir(), key+".json")
}

// SaveProfile validates p and writes it atomically.
func (fs *FSStore) SaveProfile(p *Profile) error {
	if p == nil {
		return fmt.Errorf("profile cannot be nil")
	}
	if err := p.Validate(); err != nil {
		return err
	}
	if err := os.MkdirAll(fs.profileDir(), 0o755); err != nil {
		return fmt.Errorf("failed to create profile directory: %w", err)
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize profile: %w", err)
	}

	key := p.Key()
	finalPath := fs.profilePath(key)
	tempPath := finalPath + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return fmt.Errorf("failed to write temp profile file: %w", err)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("failed to rename profile file: %w", err)
	}

	fs.log.WithFields(logrus.Fields{"key": key, "path": finalPath}).Debug("profile saved")
	return nil
}

// LoadProfile reads the profile stored under key.
func (fs *FSStore) LoadProfile(key string) (*Profile, error) {
	if key == "" {
		return nil, fmt.Errorf("key cannot be empty")
	}

	data, err := os.ReadFile(fs.profilePath(key))
	if os.IsNotExist(err) {
		return nil, &NotFoundError{Key: key}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile file: %w", err)
	}

	var p Profile
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("failed to deserialize profile: %w", err)
	}
	return &p, nil
}

// ListProfiles returns all readable profiles ordered by key.
func (fs *FSStore) ListProfiles() ([]*Profile, error) {
	entries, err := os.ReadDir(fs.profileDir())
	if os.IsNotExist(err) {
		return []*Profile{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read profile directory: %w", err)
	}

	profiles := []*Profile{}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		key := strings.TrimSuffix(name, ".json")
		p, err := fs.LoadProfile(key)
		if err != nil {
			fs.log.WithError(err).WithField("key", key).Warn("skipping unreadable profile")
			continue
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool { return profiles[i].Key() < profiles[j].Key() })
	return profiles, nil
}

// DeleteProfile removes the profile stored under key.
func (fs *FSStore) DeleteProfile(key string) error {
	if key == "" {
		return fmt.Errorf("key cannot be empty")
	}
	path := fs.profilePath(key)
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return &NotFoundError{Key: key}
		}
		return fmt.Errorf("failed to remove profile: %w", err)
	}
	fs.log.WithField("key", key).Debug("profile deleted")
	return nil
}
