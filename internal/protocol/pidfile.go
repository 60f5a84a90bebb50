package protocol

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// PidFileName is the discovery document under .fuel/. Clients read it
// to find the daemon's endpoint; startup uses it as the
// single-instance lock.
const PidFileName = "consume-runner.pid"

// PidFile is the JSON document the daemon writes on startup.
type PidFile struct {
	PID       int       `json:"pid"`
	Port      int       `json:"port"`
	StartedAt time.Time `json:"started_at"`
}

// PidFilePath returns the document's location for a project.
func PidFilePath(projectDir string) string {
	return filepath.Join(projectDir, ".fuel", PidFileName)
}

// ReadPidFile loads the document. A missing file returns os.ErrNotExist.
func ReadPidFile(projectDir string) (PidFile, error) {
	raw, err := os.ReadFile(PidFilePath(projectDir))
	if err != nil {
		return PidFile{}, err
	}
	var pf PidFile
	if err := json.Unmarshal(raw, &pf); err != nil {
		return PidFile{}, fmt.Errorf("parsing %s: %w", PidFileName, err)
	}
	return pf, nil
}

// WritePidFile records the daemon's pid and port.
func WritePidFile(projectDir string, pf PidFile) error {
	raw, err := json.Marshal(pf)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", PidFileName, err)
	}
	path := PidFilePath(projectDir)
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(path), err)
	}
	if err := os.WriteFile(path, raw, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", PidFileName, err)
	}
	return nil
}

// RemovePidFile deletes the document; missing is not an error.
func RemovePidFile(projectDir string) error {
	err := os.Remove(PidFilePath(projectDir))
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	return nil
}
