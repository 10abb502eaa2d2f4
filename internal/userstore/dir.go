package userstore

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/metalhouse/fleshrecord/internal/domain"
)

// DirStore implements Store over a directory of <userID>.json documents.
// Profiles are loaded fresh on every Get so a scheduler tick always sees an
// up-to-date snapshot; there is no cache to invalidate.
type DirStore struct {
	dir string
}

// Open creates the config directory if needed and returns a DirStore.
func Open(dir string) (*DirStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &DirStore{dir: dir}, nil
}

func (s *DirStore) path(userID string) string {
	return filepath.Join(s.dir, userID+".json")
}

// validUserID rejects ids that could escape the config directory.
func validUserID(userID string) bool {
	if userID == "" || userID == "." || userID == ".." {
		return false
	}
	return !strings.ContainsAny(userID, `/\`)
}

// Get loads and validates one user profile. Unknown users yield
// domain.ErrUserNotFound wrapped in a ConfigError-free error; malformed or
// invalid documents yield a *domain.ConfigError.
func (s *DirStore) Get(userID string) (*domain.UserProfile, error) {
	if !validUserID(userID) {
		return nil, &domain.ConfigError{UserID: userID, Err: errors.New("invalid user id")}
	}
	raw, err := os.ReadFile(s.path(userID))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrUserNotFound, userID)
		}
		return nil, &domain.ConfigError{UserID: userID, Err: err}
	}

	var profile domain.UserProfile
	// Default true: the field predates notification opt-out and older
	// documents omit it.
	profile.NotificationEnabled = true
	if err := json.Unmarshal(raw, &profile); err != nil {
		return nil, &domain.ConfigError{UserID: userID, Err: err}
	}
	profile.UserID = userID
	if err := profile.Validate(); err != nil {
		return nil, &domain.ConfigError{UserID: userID, Err: err}
	}
	return &profile, nil
}

// List returns all configured user ids in sorted order.
func (s *DirStore) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, err
	}
	var ids []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		ids = append(ids, strings.TrimSuffix(e.Name(), ".json"))
	}
	sort.Strings(ids)
	return ids, nil
}

// Save validates and writes a profile. The write goes through a temp file and
// rename so a crash never leaves a truncated document behind.
func (s *DirStore) Save(profile *domain.UserProfile) error {
	if profile == nil {
		return errors.New("nil profile")
	}
	if !validUserID(profile.UserID) {
		return &domain.ConfigError{UserID: profile.UserID, Err: errors.New("invalid user id")}
	}
	if err := profile.Validate(); err != nil {
		return &domain.ConfigError{UserID: profile.UserID, Err: err}
	}

	raw, err := json.MarshalIndent(profile, "", "  ")
	if err != nil {
		return err
	}
	tmp := s.path(profile.UserID) + ".tmp"
	if err := os.WriteFile(tmp, raw, 0o600); err != nil {
		return err
	}
	return os.Rename(tmp, s.path(profile.UserID))
}

// Delete removes a user's document. Deleting an unknown user is not an error.
func (s *DirStore) Delete(userID string) error {
	if !validUserID(userID) {
		return &domain.ConfigError{UserID: userID, Err: errors.New("invalid user id")}
	}
	err := os.Remove(s.path(userID))
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
