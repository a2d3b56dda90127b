package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	portEnvVar   = "PORT"
	appNameVar   = "APP_NAME"
	folderEnvVar = "FOLDER"
	envVar       = "ENV"
	timeZoneVar  = "TIME_ZONE"

	defaultEnv = "DEV"
)

type EnvConfig interface {
	GetPort() string
	GetAppName() string
	GetDataFolder() string
	GetEnv() string
	IsDev() bool
	GetTimeZone() string
	GetLocation() *time.Location
}

type EnvVars struct {
	values lookup
}

var _ EnvConfig = EnvVars{}

func (e EnvVars) GetPort() string {
	port := e.values.get(portEnvVar, "8080")
	if !strings.HasPrefix(port, ":") {
		port = fmt.Sprintf(":%s", port)
	}
	return port
}

func (e EnvVars) GetAppName() string {
	return e.values.get(appNameVar, "CDA Inspecciones")
}

func (e EnvVars) GetDataFolder() string {
	return e.values.get(folderEnvVar, "./data")
}

func (e EnvVars) GetEnv() string {
	return e.values.get(envVar, defaultEnv)
}

func (e EnvVars) IsDev() bool {
	return isDev(e.GetEnv())
}

func (e EnvVars) GetTimeZone() string {
	return e.values.get(timeZoneVar, "America/Bogota")
}

// GetLocation loads the configured zone, falling back to UTC when the zone
// database does not know it.
func (e EnvVars) GetLocation() *time.Location {
	loc, err := time.LoadLocation(e.GetTimeZone())
	if err != nil {
		return time.UTC
	}
	return loc
}

func isDev(env string) bool {
	return strings.EqualFold(env, defaultEnv)
}

func GetEnv(envVar, defaultValue string) string {
	value := os.Getenv(envVar)
	if value == "" {
		return defaultValue
	}
	return value
}

// lookup holds values from the config file, keyed by environment variable name.
// Environment variables take precedence.
type lookup map[string]string

func (l lookup) get(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	if value := l[key]; value != "" {
		return value
	}
	return defaultValue
}

func (l lookup) getInt(key string, defaultValue int) int {
	n, err := strconv.Atoi(l.get(key, ""))
	if err != nil {
		return defaultValue
	}
	return n
}

func (l lookup) getBool(key string, defaultValue bool) bool {
	b, err := strconv.ParseBool(l.get(key, ""))
	if err != nil {
		return defaultValue
	}
	return b
}

// getSeconds reads a whole number of seconds or a Go duration string
func (l lookup) getSeconds(key string, defaultValue time.Duration) time.Duration {
	raw := l.get(key, "")
	if raw == "" {
		return defaultValue
	}
	if n, err := strconv.Atoi(raw); err == nil && n > 0 {
		return time.Duration(n) * time.Second
	}
	if d, err := time.ParseDuration(raw); err == nil && d > 0 {
		return d
	}
	return defaultValue
}
