package config

import "path/filepath"

const (
	databasePathVar  = "DATABASE_PATH"
	redisAddrVar     = "REDIS_ADDR"
	redisPasswordVar = "REDIS_PASSWORD"
	redisDBVar       = "REDIS_DB"
	postgresURLVar   = "POSTGRES_URL"
	mediaRootVar     = "MEDIA_ROOT"
	wkhtmltopdfVar   = "WKHTMLTOPDF_PATH"
)

type StorageConfig interface {
	GetDatabasePath() string
	GetRedisAddr() string
	GetRedisPassword() string
	GetRedisDB() int
	GetPostgresURL() string
	GetMediaRoot() string
}

type ReportConfig interface {
	GetWkhtmltopdfPath() string
}

type Storage struct {
	values lookup
}

var _ StorageConfig = Storage{}

func (s Storage) dataFolder() string {
	return s.values.get(folderEnvVar, "./data")
}

func (s Storage) GetDatabasePath() string {
	return s.values.get(databasePathVar, filepath.Join(s.dataFolder(), "db.sqlite3"))
}

func (s Storage) GetRedisAddr() string {
	return s.values.get(redisAddrVar, "localhost:6379")
}

func (s Storage) GetRedisPassword() string {
	return s.values.get(redisPasswordVar, "")
}

func (s Storage) GetRedisDB() int {
	return s.values.getInt(redisDBVar, 0)
}

func (s Storage) GetPostgresURL() string {
	return s.values.get(postgresURLVar, "")
}

func (s Storage) GetMediaRoot() string {
	return s.values.get(mediaRootVar, filepath.Join(s.dataFolder(), "media"))
}

type Report struct {
	values lookup
}

var _ ReportConfig = Report{}

func (r Report) GetWkhtmltopdfPath() string {
	return r.values.get(wkhtmltopdfVar, "/usr/bin/wkhtmltopdf")
}
