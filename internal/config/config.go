package config

import (
	"fmt"
	"strings"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

type Config interface {
	EnvConfig
	SecurityConfig
	SessionConfig
	StorageConfig
	ReportConfig
}

type mainConfig struct {
	EnvVars
	Security
	Session
	Storage
	Report
}

// New returns configuration read from the environment only
func New() Config {
	cfg, _ := newConfig(lookup{})
	return cfg
}

// Load returns configuration read from the environment, falling back to the
// YAML file at path when it is not empty.
func Load(path string) (Config, error) {
	values := lookup{}
	if path != "" {
		var err error
		if values, err = readFile(path); err != nil {
			return nil, err
		}
	}
	return newConfig(values)
}

func newConfig(values lookup) (Config, error) {
	// Development servers get a throwaway signing key so sessions work out of the box
	if values.get(secretKeyVar, "") == "" && isDev(values.get(envVar, defaultEnv)) {
		secret, err := gonanoid.New(50)
		if err != nil {
			return nil, fmt.Errorf("generate development secret: %w", err)
		}
		values[secretKeyVar] = secret
		values[secretGeneratedKey] = "true"
	}

	return mainConfig{
		EnvVars:  EnvVars{values: values},
		Security: Security{values: values},
		Session:  Session{values: values},
		Storage:  Storage{values: values},
		Report:   Report{values: values},
	}, nil
}

// Validate reports settings the server cannot start with
func Validate(cfg Config) error {
	var problems []string
	if cfg.GetSecretKey() == "" {
		problems = append(problems, secretKeyVar+" is required outside DEV")
	}
	switch cfg.GetSessionBackend() {
	case BackendMemory, BackendDB, BackendRedis:
	case BackendPostgres:
		if cfg.GetPostgresURL() == "" {
			problems = append(problems, postgresURLVar+" is required for the postgres session backend")
		}
	default:
		problems = append(problems, fmt.Sprintf("unknown %s %q", sessionBackendVar, cfg.GetSessionBackend()))
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
