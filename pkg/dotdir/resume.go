package dotdir

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"
)

const (
	resumeFile = "resume.json"
)

// ResumeState records the chat a previous session ended on.
type ResumeState struct {
	// ChatID is the backend identifier of the chat.
	ChatID string `json:"chatId"`

	Title string `json:"title,omitempty"`

	// Model is the model the chat was last sent with.
	Model string `json:"model,omitempty"`

	SavedAt time.Time `json:"savedAt"`
}

// LoadResumeState loads the resume state from a target .smriti/resume.json.
// Returns nil, nil if no resume state exists.
// If overrideDir is non-empty, it is used instead of the default location.
func (m *Manager) LoadResumeState(overrideDir string) (*ResumeState, error) {
	path, err := m.Path(overrideDir, resumeFile)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading resume state: %w", err)
	}

	state := &ResumeState{}
	if err := json.Unmarshal(data, state); err != nil {
		return nil, fmt.Errorf("parsing resume state: %w", err)
	}
	if state.ChatID == "" {
		return nil, nil
	}

	return state, nil
}

// SaveResumeState persists the resume state to a target .smriti/resume.json.
func (m *Manager) SaveResumeState(state *ResumeState, overrideDir string) error {
	if state == nil {
		return errors.New("cannot save nil resume state")
	}
	if state.ChatID == "" {
		return errors.New("cannot save resume state without a chat id")
	}

	path, err := m.Path(overrideDir, resumeFile)
	if err != nil {
		return err
	}

	data, err := json.MarshalIndent(state, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling resume state: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing resume state: %w", err)
	}

	return nil
}

// ClearResumeState removes the resume state file so the next session starts a
// new chat. Returns nil if the file doesn't exist.
func (m *Manager) ClearResumeState(overrideDir string) error {
	path, err := m.Path(overrideDir, resumeFile)
	if err != nil {
		return err
	}

	if err := os.Remove(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("removing resume state: %w", err)
	}

	return nil
}
