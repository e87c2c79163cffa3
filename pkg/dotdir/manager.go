// Package dotdir manages the .notevec/ and ~/.notevec directories, which hold
// config.toml and the default sqlite-vec database.
package dotdir

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	// dirName is the name of the notevec directory.
	dirName = ".notevec"

	// dbFile is the default sqlite-vec database file inside the directory.
	dbFile = "notevec.sqlite"

	// logFile is the default JSON log file of the serve command.
	logFile = "notevec.log"
)

type Manager struct{}

func NewManager() *Manager {
	return &Manager{}
}

// Target returns the target absolute path to a .notevec/ directory.
// Order of precedence is as follows:
//  1. Provided override
//  2. Local ./.notevec/ dir
//  3. Home ~/.notevec/ dir, created if missing
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
		return "", fmt.Errorf("creating notevec directory %s: %w", dir, err)
	}

	return filepath.Abs(dir)
}

// DBPath returns dbLocation when set, otherwise the default database file
// inside the resolved .notevec/ directory.
func (m *Manager) DBPath(dbLocation, overrideDir string) (string, error) {
	if dbLocation != "" {
		return dbLocation, nil
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, dbFile), nil
}

// LogPath returns logLocation when it is absolute, otherwise logLocation (or
// the default log file) inside the resolved .notevec/ directory.
func (m *Manager) LogPath(logLocation, overrideDir string) (string, error) {
	if filepath.IsAbs(logLocation) {
		return logLocation, nil
	}
	if logLocation == "" {
		logLocation = logFile
	}

	dir, err := m.Target(overrideDir)
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, logLocation), nil
}

// localDirExists checks whether a .notevec/ directory exists in the current
// working directory.
func (m *Manager) localDirExists() bool {
	cwd, err := os.Getwd()
	if err != nil {
		return false
	}

	info, err := os.Stat(filepath.Join(cwd, dirName))
	return err == nil && info.IsDir()
}
