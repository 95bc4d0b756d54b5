package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"

	"github.com/sharedcode/profiles/aws_s3"
	"github.com/sharedcode/profiles/cassandra"
	"github.com/sharedcode/profiles/database"
	"github.com/sharedcode/profiles/redis"
	"github.com/sharedcode/profiles/restapi"
)

// Config holds the profiled service configuration.
type Config struct {
	Listen       string `env:"PROFILES_LISTEN" envDefault:":8080"`
	StoreName    string `env:"PROFILES_STORE_NAME" envDefault:"PlayerData"`
	TemplateFile string `env:"PROFILES_TEMPLATE_FILE"`
	// ValidationRule is a CEL expression over "profile" every saved payload must satisfy.
	ValidationRule string `env:"PROFILES_VALIDATION_RULE"`

	DatabaseType string        `env:"PROFILES_DATABASE_TYPE" envDefault:"standalone"`
	BlobBackend  string        `env:"PROFILES_BLOB_BACKEND"`
	LockTTL      time.Duration `env:"PROFILES_LOCK_TTL" envDefault:"2m"`
	Autosave     time.Duration `env:"PROFILES_AUTOSAVE_INTERVAL" envDefault:"1m"`

	RedisAddress  string `env:"PROFILES_REDIS_ADDRESS" envDefault:"localhost:6379"`
	RedisPassword string `env:"PROFILES_REDIS_PASSWORD"`
	RedisURL      string `env:"PROFILES_REDIS_URL"`

	StoragePath string `env:"PROFILES_STORAGE_PATH"`

	CassandraHosts    []string `env:"PROFILES_CASSANDRA_HOSTS" envSeparator:"," envDefault:"localhost:9042"`
	CassandraKeyspace string   `env:"PROFILES_CASSANDRA_KEYSPACE" envDefault:"profiles"`

	S3Endpoint     string `env:"PROFILES_S3_ENDPOINT"`
	S3Region       string `env:"PROFILES_S3_REGION" envDefault:"us-east-1"`
	S3Username     string `env:"PROFILES_S3_USERNAME"`
	S3Password     string `env:"PROFILES_S3_PASSWORD"`
	S3BucketPrefix string `env:"PROFILES_S3_BUCKET_PREFIX" envDefault:"profiles-"`

	Auth restapi.Config
}

// parseConfig reads the environment, then lets args override the most used settings.
func parseConfig(fs *flag.FlagSet, args []string) (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse env: %w", err)
	}
	fs.StringVar(&cfg.Listen, "listen", cfg.Listen, "HTTP listen address")
	fs.StringVar(&cfg.StoreName, "store", cfg.StoreName, "Profile store name")
	fs.StringVar(&cfg.TemplateFile, "template", cfg.TemplateFile, "JSON file holding the default profile")
	fs.StringVar(&cfg.DatabaseType, "db-type", cfg.DatabaseType, "standalone or clustered")
	fs.StringVar(&cfg.BlobBackend, "blob", cfg.BlobBackend, "memory, fs, redis, cassandra or s3")
	fs.StringVar(&cfg.StoragePath, "storage-path", cfg.StoragePath, "Base folder of the fs backend")
	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// databaseOptions translates cfg into the options of database.NewDatabase.
func (cfg Config) databaseOptions() (database.DatabaseOptions, error) {
	dt, err := database.ParseDatabaseType(cfg.DatabaseType)
	if err != nil {
		return database.DatabaseOptions{}, err
	}
	bb, err := database.ParseBlobBackend(cfg.BlobBackend)
	if err != nil {
		return database.DatabaseOptions{}, err
	}
	return database.DatabaseOptions{
		Type:        dt,
		Blob:        bb,
		StoragePath: cfg.StoragePath,
		Redis: redis.Options{
			Address:  cfg.RedisAddress,
			Password: cfg.RedisPassword,
		},
		RedisURL: cfg.RedisURL,
		Cassandra: cassandra.Config{
			ClusterHosts: cfg.CassandraHosts,
			Keyspace:     cfg.CassandraKeyspace,
		},
		S3: aws_s3.Config{
			HostEndpointUrl: cfg.S3Endpoint,
			Region:          cfg.S3Region,
			Username:        cfg.S3Username,
			Password:        cfg.S3Password,
			UsePathStyle:    cfg.S3Endpoint != "",
		},
		S3BucketPrefix: cfg.S3BucketPrefix,
		LockTTL:        cfg.LockTTL,
	}, nil
}

// template returns the default profile, read from TemplateFile when set.
func (cfg Config) template() (map[string]any, error) {
	t := map[string]any{}
	if cfg.TemplateFile == "" {
		return t, nil
	}
	ba, err := os.ReadFile(cfg.TemplateFile)
	if err != nil {
		return nil, fmt.Errorf("read template: %w", err)
	}
	if err := json.Unmarshal(ba, &t); err != nil {
		return nil, fmt.Errorf("template %s is not a JSON object: %w", cfg.TemplateFile, err)
	}
	if t == nil {
		return nil, fmt.Errorf("template %s is null", cfg.TemplateFile)
	}
	return t, nil
}
