// Package config loads walletkeys settings from YAML with environment
// overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/joncooperworks/walletkeys/crypto"
	"github.com/joncooperworks/walletkeys/crypto/encrypter"
	"github.com/joncooperworks/walletkeys/crypto/keystore"
	"github.com/joncooperworks/walletkeys/storage/sqlkv"
)

// Storage areas the CLI can place a backend on.
const (
	StorageMemory    = "memory"
	StorageKeyring   = "keyring"
	StorageSQL       = "sql"
	StorageFirestore = "firestore"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid config")

// KeyringConfig configures the OS credential store.
type KeyringConfig struct {
	ServiceName     string   `yaml:"service_name"`
	AllowedBackends []string `yaml:"allowed_backends"`
	KeychainName    string   `yaml:"keychain_name"`
	FileDir         string   `yaml:"file_dir"`

	// Populated from WALLETKEYS_KEYRING_PASSWORD.
	FilePassword string `yaml:"-"`
}

// SQLConfig configures the SQL storage area.
type SQLConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
	Table  string `yaml:"table"`
}

// FirestoreConfig configures the Firestore storage area.
type FirestoreConfig struct {
	ProjectID  string `yaml:"project_id"`
	Collection string `yaml:"collection"`
}

// Config is the complete walletkeys configuration.
type Config struct {
	Backend          string              `yaml:"backend"`
	Storage          string              `yaml:"storage"`
	Namespace        string              `yaml:"namespace"`
	DefaultEncrypter string              `yaml:"default_encrypter"`
	Scrypt           crypto.ScryptParams `yaml:"scrypt"`
	Keyring          KeyringConfig       `yaml:"keyring"`
	SQL              SQLConfig           `yaml:"sql"`
	Firestore        FirestoreConfig     `yaml:"firestore"`
	Plugins          []string            `yaml:"plugins"`
	LogLevel         string              `yaml:"log_level"`
}

// Default returns the configuration used when no file is given: an
// extension-style store on the OS keyring, encrypted with Scrypt.
func Default() *Config {
	return &Config{
		Backend:          "extension",
		Storage:          StorageKeyring,
		Namespace:        keystore.DefaultNamespace,
		DefaultEncrypter: encrypter.ScryptName,
		Scrypt:           crypto.DefaultScryptParams,
		Keyring:          KeyringConfig{ServiceName: "walletkeys"},
		SQL:              SQLConfig{Driver: "postgres", Table: sqlkv.DefaultTable},
		Firestore:        FirestoreConfig{Collection: "walletkeys"},
		LogLevel:         "info",
	}
}

// Load reads the YAML file at path over Default, applies environment
// overrides and validates the result. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file at %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	}

	ApplyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides replaces fields with any WALLETKEYS_* environment
// variables that are set.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("WALLETKEYS_BACKEND"); v != "" {
		cfg.Backend = v
	}
	if v := os.Getenv("WALLETKEYS_STORAGE"); v != "" {
		cfg.Storage = v
	}
	if v := os.Getenv("WALLETKEYS_NAMESPACE"); v != "" {
		cfg.Namespace = v
	}
	if v := os.Getenv("WALLETKEYS_DSN"); v != "" {
		cfg.SQL.DSN = v
	}
	if v := os.Getenv("WALLETKEYS_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("WALLETKEYS_KEYRING_PASSWORD"); v != "" {
		cfg.Keyring.FilePassword = v
	}
	if v := os.Getenv("GCP_PROJECT_ID"); v != "" {
		cfg.Firestore.ProjectID = v
	}
}

// Validate checks that the configuration describes a usable store.
func (c *Config) Validate() error {
	var problems []string

	if _, err := keystore.GetKeyStoreFactory(c.Backend); err != nil {
		problems = append(problems, fmt.Sprintf("unknown backend %q", c.Backend))
	}
	if c.Namespace == "" {
		problems = append(problems, "namespace is empty")
	} else if err := keystore.ValidateNamespace(c.Namespace); err != nil {
		problems = append(problems, err.Error())
	}
	if err := c.Scrypt.Validate(); err != nil {
		problems = append(problems, err.Error())
	}
	if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
		problems = append(problems, fmt.Sprintf("unknown log_level %q", c.LogLevel))
	}

	switch c.Storage {
	case StorageMemory, StorageKeyring:
	case StorageSQL:
		if c.SQL.DSN == "" {
			problems = append(problems, "sql.dsn is required for sql storage")
		}
		if c.SQL.Driver == "" {
			problems = append(problems, "sql.driver is required for sql storage")
		}
	case StorageFirestore:
		if c.Firestore.ProjectID == "" {
			problems = append(problems, "firestore.project_id is required for firestore storage")
		}
		if c.Firestore.Collection == "" {
			problems = append(problems, "firestore.collection is required for firestore storage")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown storage %q", c.Storage))
	}

	if c.Backend == "memory" && c.Storage != StorageMemory {
		problems = append(problems, "the memory backend cannot persist to "+c.Storage)
	}

	if len(problems) > 0 {
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// KeyringOptions converts the keyring section for keystore.OpenKeyringStorage.
func (c *Config) KeyringOptions() keystore.KeyringConfig {
	return keystore.KeyringConfig{
		ServiceName:     c.Keyring.ServiceName,
		AllowedBackends: c.Keyring.AllowedBackends,
		KeychainName:    c.Keyring.KeychainName,
		FileDir:         c.Keyring.FileDir,
		FilePassword:    c.Keyring.FilePassword,
	}
}
