package daemon

import (
	"encoding/json"
	"os"
	"strings"
)

// Startup states written to the status file.
const (
	StartupReady = "ready"
	StartupError = "error"
)

// StatusFile tells the process that launched the daemon how startup went.
type StatusFile struct {
	Status string `json:"status"`
	PID    int    `json:"pid,omitempty"`
	Error  string `json:"error,omitempty"`
}

// WriteStatusReady records a successful startup.
func WriteStatusReady(path string) error {
	return writeStatus(path, StatusFile{Status: StartupReady, PID: os.Getpid()})
}

// WriteStatusError records a failed startup.
func WriteStatusError(path string, err error) error {
	return writeStatus(path, StatusFile{Status: StartupError, Error: err.Error()})
}

func writeStatus(path string, status StatusFile) error {
	data, err := json.Marshal(status)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// RemoveStatus removes the status file.
func RemoveStatus(path string) error {
	return os.Remove(path)
}

// StatusPath derives the status file from the socket path, so the client
// finds it knowing only the socket.
func StatusPath(socketPath string) string {
	return strings.TrimSuffix(socketPath, ".sock") + ".status"
}
