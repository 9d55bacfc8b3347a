// Package dotdir finds the smriti directory, either ./.smriti or ~/.smriti,
// and owns the resume state kept there: the backend chat the last
// "smriti chat" session ended on, so "smriti chat --continue" can pick it up.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

// dirName is where smriti keeps its config, resume state, log and cache.
const dirName = ".smriti"

// Manager resolves the smriti directory. It is stateless; every call looks
// at the filesystem again.
type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target resolves the smriti directory, creating it if needed, and returns
// its absolute path. A non-empty overrideDir (the --config-dir flag) is used
// as is. Otherwise a .smriti/ in the working directory wins over ~/.smriti/.
func (m *Manager) Target(overrideDir string) (string, error) {
	var dir string

	switch {
	case overrideDir != "":
		dir = overrideDir

	case m.localDirExists():
		cwd, err := os.Getwd()
		if err != nil {
			return "", fmt.Errorf("getting current directory: %w", err)
		}
		dir = filepath.Join(cwd, dirName)

	default:
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("getting home directory: %w", err)
		}
		dir = filepath.Join(home, dirName)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating smriti directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// Path returns the absolute path of name inside the resolved smriti
// directory. The file itself may not exist yet.
func (m *Manager) Path(overrideDir, name string) (string, error) {
	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, name), nil
}

func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
