package backend

import (
	"errors"
	"fmt"
	"time"

	"tani/internal/config"
)

type BackendType string

const (
	RemoteBackend BackendType = "remote"
	MemoryBackend BackendType = "memory"
)

func (t BackendType) IsValid() bool {
	return t == RemoteBackend || t == MemoryBackend
}

func (t BackendType) String() string {
	return string(t)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// Remote
	BaaSURL string
	AnonKey string
	Timeout time.Duration

	// Memory: optional superadmin account created at start
	SeedEmail    string
	SeedPassword string
}

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, errors.New("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s", appConfig.DataBackend)
	}

	return Config{
		Type:         backendType,
		BaaSURL:      appConfig.BaaSURL,
		AnonKey:      appConfig.BaaSAnonKey,
		Timeout:      appConfig.RequestTimeout,
		SeedEmail:    appConfig.SeedEmail,
		SeedPassword: appConfig.SeedPassword,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case RemoteBackend:
		if c.BaaSURL == "" {
			return errors.New("backend URL is required for remote backend")
		}
		if c.AnonKey == "" {
			return errors.New("anon key is required for remote backend")
		}
	case MemoryBackend:
		if (c.SeedEmail == "") != (c.SeedPassword == "") {
			return errors.New("seed email and seed password must be set together")
		}
	}

	return nil
}

// GetBackendTypeStrings returns all valid backend type strings
func GetBackendTypeStrings() []string {
	return []string{RemoteBackend.String(), MemoryBackend.String()}
}
