package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

const (
	profileFile = "profile.json"
)

// Profile is the persisted CLI identity and study cursor.
type Profile struct {
	// UserID is the learner every CLI command acts for unless --user is given.
	UserID string `json:"user_id"`

	// SessionID is the study session the TUI was last working through.
	SessionID string `json:"session_id,omitempty"`

	// Position is the index of the next unanswered item in SessionID.
	Position int `json:"position,omitempty"`
}

// LoadProfile loads the profile from a target .drills/profile.json.
// Returns nil, nil if no profile exists yet.
func (m *Manager) LoadProfile(overrideDir string) (*Profile, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filepath.Join(dir, profileFile))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading profile: %w", err)
	}

	p := &Profile{}
	if err := json.Unmarshal(data, p); err != nil {
		return nil, fmt.Errorf("parsing profile: %w", err)
	}

	return p, nil
}

// SaveProfile persists the profile to a target .drills/profile.json.
func (m *Manager) SaveProfile(p *Profile, overrideDir string) error {
	if p == nil {
		return errors.New("cannot save nil profile")
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling profile: %w", err)
	}

	if err := os.WriteFile(filepath.Join(dir, profileFile), data, 0o600); err != nil {
		return fmt.Errorf("writing profile: %w", err)
	}

	return nil
}

// ClearCursor forgets the study position but keeps the user.
// Returns nil if no profile exists.
func (m *Manager) ClearCursor(overrideDir string) error {
	p, err := m.LoadProfile(overrideDir)
	if err != nil || p == nil {
		return err
	}

	p.SessionID = ""
	p.Position = 0
	return m.SaveProfile(p, overrideDir)
}
