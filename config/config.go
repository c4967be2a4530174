package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

const defaultConfigPath = "./config/config.yml"

type (
	// Config -.
	Config struct {
		App      `yaml:"app"`
		Server   `yaml:"server"`
		Log      `yaml:"logger"`
		Storage  `yaml:"storage"`
		Pipeline `yaml:"pipeline"`
		Verifier `yaml:"verifier"`
		MYSQL    `yaml:"mysql"`
		RMQ      `yaml:"rabbitmq"`
		OTEL     `yaml:"otel"`
	}

	// App -.
	App struct {
		Name    string `env-required:"true" yaml:"name"    env:"APP_NAME"`
		Version string `env-required:"true" yaml:"version" env:"APP_VERSION"`
	}

	// Server -.
	Server struct {
		Port        string `env-required:"true" yaml:"port"          env:"HTTP_PORT"`
		MaxUploadMB int64  `env-default:"32"    yaml:"max_upload_mb" env:"HTTP_MAX_UPLOAD_MB"`
	}

	// Log -.
	Log struct {
		Level string `env-required:"true" yaml:"log_level"   env:"LOG_LEVEL"`
	}

	// Storage selects where identity-keyed sounds end up.
	Storage struct {
		Backend   string `env-default:"fs"        yaml:"backend"    env:"STORAGE_BACKEND"`
		Root      string `env-default:"userSound" yaml:"root"       env:"STORAGE_ROOT"`
		Bucket    string `yaml:"bucket"     env:"STORAGE_S3_BUCKET"`
		Endpoint  string `yaml:"endpoint"   env:"STORAGE_S3_ENDPOINT"`
		Region    string `env-default:"us-east-1" yaml:"region"     env:"STORAGE_S3_REGION"`
		AccessKey string `yaml:"access_key" env:"STORAGE_S3_ACCESS_KEY"`
		SecretKey string `yaml:"secret_key" env:"STORAGE_S3_SECRET_KEY"`
	}

	// Pipeline -.
	Pipeline struct {
		WorkDir      string        `yaml:"work_dir"      env:"PIPELINE_WORK_DIR"`
		StageTimeout time.Duration `env-default:"30s" yaml:"stage_timeout" env:"PIPELINE_STAGE_TIMEOUT"`
		FFmpegPath   string        `yaml:"ffmpeg_path"   env:"PIPELINE_FFMPEG_PATH"`
	}

	// Verifier -.
	Verifier struct {
		Mode      string        `env-default:"spectral" yaml:"mode"      env:"VERIFIER_MODE"`
		URL       string        `yaml:"url"       env:"VERIFIER_URL"`
		Timeout   time.Duration `env-default:"60s"      yaml:"timeout"   env:"VERIFIER_TIMEOUT"`
		Threshold float64       `env-default:"0.9"      yaml:"threshold" env:"VERIFIER_THRESHOLD"`
	}

	// MYSQL -.
	MYSQL struct {
		Host     string `yaml:"host"     env:"MYSQL_HOST"`
		Port     string `yaml:"port"     env:"MYSQL_PORT"`
		Username string `yaml:"username" env:"MYSQL_USERNAME"`
		Password string `yaml:"password" env:"MYSQL_PASSWORD"`
		Dbname   string `yaml:"dbname"   env:"MYSQL_DBNAME"`
	}

	// RMQ -.
	RMQ struct {
		Exchange string `env-default:"voice_verification" yaml:"exchange" env:"RMQ_EXCHANGE"`
		Queue    string `env-default:"verification_events" yaml:"queue"   env:"RMQ_QUEUE"`
		URL      string `env-required:"false" yaml:"url" env:"RMQ_URL"`
	}

	OTEL struct {
		Exporter       string `env-default:"none" yaml:"exporter"        env:"OTEL_EXPORTER"`
		JaegerEndpoint string `yaml:"jaeger_endpoint" env:"JAEGER_ENDPOINT"`
		OTLPEndpoint   string `yaml:"otlp_endpoint"   env:"OTLP_ENDPOINT"`
	}
)

// NewConfig returns app config.
func NewConfig() (*Config, error) {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = defaultConfigPath
	}
	return Load(path)
}

// Load reads the yaml file at path and applies environment overrides.
func Load(path string) (*Config, error) {
	cfg := &Config{}

	err := cleanenv.ReadConfig(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	return cfg, nil
}
