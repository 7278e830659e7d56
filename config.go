package main

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

type AppConfig struct {
	DevMode    bool             `yaml:"dev_mode"`
	Web        WebConfig        `yaml:"web"`
	Admin      AdminConfig      `yaml:"admin"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Cloudinary CloudinaryConfig `yaml:"cloudinary"`
	Upload     UploadConfig     `yaml:"upload"`
	Logger     LogConfig        `yaml:"logger"`
}

type WebConfig struct {
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"`
	BodyLimit       string        `yaml:"body_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

type AdminConfig struct {
	Token    string `yaml:"token"`
	Password string `yaml:"password"`
}

type DatabaseConfig struct {
	Type     string `yaml:"type"` // memory, mysql or postgres
	DSN      string `yaml:"dsn"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Passwd   string `yaml:"passwd"`
	Name     string `yaml:"name"`
	MaxConn  int    `yaml:"max_conn"`
	IdleConn int    `yaml:"idle_conn"`
	TiDBCA   string `yaml:"tidb_ca"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type CloudinaryConfig struct {
	URL          string `yaml:"url"`
	CloudName    string `yaml:"cloud_name"`
	APIKey       string `yaml:"api_key"`
	APISecret    string `yaml:"api_secret"`
	UploadPreset string `yaml:"upload_preset"`
	UploadPrefix string `yaml:"upload_prefix"`
}

// Configured reports whether enough is set to reach Cloudinary.
func (c CloudinaryConfig) Configured() bool {
	return c.URL != "" || c.CloudName != ""
}

type UploadConfig struct {
	Folder   string        `yaml:"folder"`
	Timeout  time.Duration `yaml:"timeout"`
	MaxBytes int           `yaml:"max_bytes"`
	NodeID   int64         `yaml:"node_id"`
}

type LogConfig struct {
	Mode       string `yaml:"mode"` // production or development
	FileEnable bool   `yaml:"file_enable"`
	Filename   string `yaml:"filename"`
}

func defaultConfig() *AppConfig {
	return &AppConfig{
		Web: WebConfig{
			Host:            "0.0.0.0",
			Port:            3000,
			BodyLimit:       "50M",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			Type:     "memory",
			MaxConn:  25,
			IdleConn: 25,
		},
		Redis: RedisConfig{TTL: 5 * time.Minute},
		Upload: UploadConfig{
			Folder:   "parfum",
			Timeout:  30 * time.Second,
			MaxBytes: 25 << 20,
		},
		Logger: LogConfig{Mode: "development", Filename: "logs/parfum.log"},
	}
}

// LoadEnv loads .env.local when APP_ENV is "local".
func LoadEnv() error {
	appEnv := os.Getenv("APP_ENV")
	if appEnv == "" {
		appEnv = "development"
		os.Setenv("APP_ENV", appEnv)
	}
	if appEnv != "local" {
		return nil
	}
	return errors.Wrap(godotenv.Load(".env.local"), "load .env.local")
}

// LoadConfig reads the optional YAML file at path and applies environment
// overrides on top of it.
func LoadConfig(path string) (*AppConfig, error) {
	cfg := defaultConfig()
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, errors.Wrap(err, "read config file")
		}
		if err := yaml.Unmarshal(b, cfg); err != nil {
			return nil, errors.Wrap(err, "parse config file")
		}
	}
	applyEnv(cfg, os.LookupEnv)
	normalize(cfg)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

type lookupFunc func(key string) (string, bool)

func applyEnv(cfg *AppConfig, lookup lookupFunc) {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = cast.ToInt(v)
		}
	}
	dur := func(key string, dst *time.Duration) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = cast.ToDuration(v)
		}
	}

	if v, ok := lookup("DEV_MODE"); ok && v != "" {
		cfg.DevMode = cast.ToBool(strings.ToLower(v))
	}
	str("WEB_HOST", &cfg.Web.Host)
	num("API_PORT", &cfg.Web.Port)
	str("WEB_BASE_PATH", &cfg.Web.BasePath)
	str("BODY_LIMIT", &cfg.Web.BodyLimit)

	str("ADMIN_TOKEN", &cfg.Admin.Token)
	str("ADMIN_PASSWORD", &cfg.Admin.Password)

	str("DB_TYPE", &cfg.Database.Type)
	if v, ok := lookup("MYSQL_DSN"); ok && v != "" {
		cfg.Database.Type = dialectMySQL
		cfg.Database.DSN = v
	}
	if v, ok := lookup("DATABASE_URL"); ok && v != "" {
		cfg.Database.Type = dialectPostgres
		cfg.Database.DSN = v
	}
	str("DB_HOST", &cfg.Database.Host)
	num("DB_PORT", &cfg.Database.Port)
	str("DB_USER", &cfg.Database.User)
	str("DB_PASSWORD", &cfg.Database.Passwd)
	str("DB_NAME", &cfg.Database.Name)
	str("TIDB_CA", &cfg.Database.TiDBCA)

	str("REDIS_ADDR", &cfg.Redis.Addr)
	str("REDIS_PASSWORD", &cfg.Redis.Password)
	num("REDIS_DB", &cfg.Redis.DB)
	dur("CACHE_TTL", &cfg.Redis.TTL)

	str("CLOUDINARY_URL", &cfg.Cloudinary.URL)
	str("CLOUDINARY_CLOUD_NAME", &cfg.Cloudinary.CloudName)
	str("CLOUDINARY_API_KEY", &cfg.Cloudinary.APIKey)
	str("CLOUDINARY_API_SECRET", &cfg.Cloudinary.APISecret)
	str("CLOUDINARY_UPLOAD_PRESET", &cfg.Cloudinary.UploadPreset)
	str("CLOUDINARY_FOLDER", &cfg.Upload.Folder)
	dur("UPLOAD_TIMEOUT", &cfg.Upload.Timeout)
	num("UPLOAD_MAX_BYTES", &cfg.Upload.MaxBytes)

	str("LOG_MODE", &cfg.Logger.Mode)
	if v, ok := lookup("LOG_FILE"); ok && v != "" {
		cfg.Logger.FileEnable = true
		cfg.Logger.Filename = v
	}
}

func normalize(cfg *AppConfig) {
	cfg.Database.Type = strings.ToLower(strings.TrimSpace(cfg.Database.Type))
	if cfg.Database.Type == "" {
		cfg.Database.Type = "memory"
	}
	if cfg.DevMode {
		cfg.Database.Type = "memory"
	}
	bp := strings.TrimRight(strings.TrimSpace(cfg.Web.BasePath), "/")
	if bp != "" && !strings.HasPrefix(bp, "/") {
		bp = "/" + bp
	}
	cfg.Web.BasePath = bp
	if cfg.Database.Port == 0 {
		switch cfg.Database.Type {
		case dialectMySQL:
			cfg.Database.Port = 3306
		case dialectPostgres:
			cfg.Database.Port = 5432
		}
	}
	// the password gate falls back to the admin token
	if cfg.Admin.Password == "" {
		cfg.Admin.Password = cfg.Admin.Token
	}
}

func (cfg *AppConfig) validate() error {
	switch cfg.Database.Type {
	case "memory", dialectMySQL, dialectPostgres:
	default:
		return errors.Errorf("unsupported database type %q", cfg.Database.Type)
	}
	if cfg.DevMode {
		return nil
	}
	if cfg.Database.Type == "memory" || !cfg.Cloudinary.Configured() {
		return errors.New("a database (MYSQL_DSN, DATABASE_URL or DB_TYPE) and Cloudinary (CLOUDINARY_URL or CLOUDINARY_CLOUD_NAME) must be configured, or set DEV_MODE=true to run without external services")
	}
	return nil
}
