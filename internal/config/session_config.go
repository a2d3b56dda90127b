package config

import "time"

const (
	sessionBackendVar  = "SESSION_BACKEND"
	sessionMatchVar    = "SESSION_MATCH"
	sweepScheduleVar   = "SESSION_SWEEP_SCHEDULE"
	sessionLockTTLVar  = "SESSION_LOCK_TTL"
	sessionRetainedVar = "SESSION_REDIS_RETENTION"
)

// Session store backends
const (
	BackendMemory   = "memory"
	BackendDB       = "db"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

type SessionConfig interface {
	GetSessionBackend() string
	GetSessionMatch() string
	GetSweepSchedule() string
	GetSessionLockTTL() time.Duration
	GetRedisRetention() time.Duration
}

type Session struct {
	values lookup
}

var _ SessionConfig = Session{}

func (s Session) GetSessionBackend() string {
	return s.values.get(sessionBackendVar, BackendDB)
}

// GetSessionMatch names the ownership strategy: "decoded" or the deprecated "substring"
func (s Session) GetSessionMatch() string {
	return s.values.get(sessionMatchVar, "decoded")
}

func (s Session) GetSweepSchedule() string {
	return s.values.get(sweepScheduleVar, "@every 15m")
}

func (s Session) GetSessionLockTTL() time.Duration {
	return s.values.getSeconds(sessionLockTTLVar, 10*time.Second)
}

// GetRedisRetention is how long Redis keeps a record past its expiry
func (s Session) GetRedisRetention() time.Duration {
	return s.values.getSeconds(sessionRetainedVar, 24*time.Hour)
}
