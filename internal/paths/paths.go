// Package paths resolves the configuration, data and audit directories.
//
// Every resolver follows the same precedence: explicit flag, then the
// configuration file where one applies, then the environment, then a
// directory relative to the working directory.
package paths

import (
	"os"
	"path/filepath"
)

// CWD-relative default directory names.
const (
	DefaultConfigDirName = ".piilink"
	DefaultDataDirName   = ".piilink-db"
	DefaultAuditDirName  = "audit_logs"
	ConfigFileName       = "config.yaml"
)

// Environment variable names for directory overrides.
const (
	EnvConfigDir = "PIILINK_CONFIG_DIR"
	EnvDataDir   = "PIILINK_DATA_DIR"
)

// getwd is replaced in tests.
var getwd = os.Getwd

// ResolveConfigDir returns the configuration directory:
// flag > PIILINK_CONFIG_DIR > $CWD/.piilink.
func ResolveConfigDir(flag string) (string, error) {
	return resolve(flag, "", EnvConfigDir, DefaultConfigDirName)
}

// ResolveDataDir returns the data directory:
// flag > config data_dir > PIILINK_DATA_DIR > $CWD/.piilink-db.
func ResolveDataDir(flag, configValue string) (string, error) {
	return resolve(flag, configValue, EnvDataDir, DefaultDataDirName)
}

// ResolveAuditDir returns the configured audit directory, or audit_logs
// inside dataDir.
func ResolveAuditDir(configValue, dataDir string) (string, error) {
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	return filepath.Join(dataDir, DefaultAuditDirName), nil
}

// ConfigFile returns the path of the configuration file in configDir.
func ConfigFile(configDir string) string {
	return filepath.Join(configDir, ConfigFileName)
}

func resolve(flag, configValue, env, defaultName string) (string, error) {
	if flag != "" {
		return filepath.Abs(flag)
	}
	if configValue != "" {
		return filepath.Abs(configValue)
	}
	if v := os.Getenv(env); v != "" {
		return filepath.Abs(v)
	}
	cwd, err := getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, defaultName), nil
}
