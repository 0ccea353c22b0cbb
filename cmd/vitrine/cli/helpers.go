package cli

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/vitrinehq/vitrine/internal/config"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// defaultDataDir returns VITRINE_DATA_DIR or ~/.vitrine.
func defaultDataDir() string {
	if envDir := os.Getenv("VITRINE_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".vitrine")
}

// resolveDataDir returns the directory holding the PID and log files.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	return defaultDataDir()
}

// openStore opens the configured credential store.
func openStore(s config.Settings) (*config.Store, error) {
	store, err := config.Open(s.Database)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return store, nil
}

// randomSecret returns a hex-encoded 32-byte secret.
func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// --- PID file management ---

func pidFilePath() string {
	return filepath.Join(resolveDataDir(), "vitrine.pid")
}

func writePID(pid int) error {
	dir := resolveDataDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}
	return os.WriteFile(pidFilePath(), []byte(strconv.Itoa(pid)), 0644)
}

func readPID() (int, error) {
	data, err := os.ReadFile(pidFilePath())
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePID() {
	os.Remove(pidFilePath())
}

func logFilePath() string {
	return filepath.Join(resolveDataDir(), "vitrine.log")
}

// versionString returns a display version string.
func versionString() string {
	if appVersion == "" || appVersion == "dev" {
		return "dev"
	}
	if strings.HasPrefix(appVersion, "v") {
		return appVersion
	}
	return "v" + appVersion
}
