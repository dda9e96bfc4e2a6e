package cli

import (
	"os"
	"strings"

	"github.com/spf13/viper"

	"github.com/tonbeats/tonbeats/internal/storage"
)

// dataDir holds the --data-dir persistent flag value (set on root command).
var dataDir string

// resolveDataDir returns the data directory from --data-dir flag,
// TONBEATS_DATA_DIR env var, or ~/.tonbeats as fallback.
func resolveDataDir() string {
	if dataDir != "" {
		return dataDir
	}
	if envDir := os.Getenv("TONBEATS_DATA_DIR"); envDir != "" {
		return envDir
	}
	home, _ := os.UserHomeDir()
	return home + "/.tonbeats"
}

// openStore opens the configured storage backend. With the default sqlite
// driver the database lives under the data directory.
func openStore() (*storage.Store, error) {
	driver := viper.GetString("storage.driver")
	if driver == "" {
		driver = "sqlite"
	}
	dsn := viper.GetString("storage.dsn")
	if driver == "sqlite" && dsn == "" {
		dsn = resolveDataDir()
	}
	return storage.Open(driver, dsn)
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
