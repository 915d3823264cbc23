package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"   validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Engine   EngineConfig   `mapstructure:"engine"   validate:"required"`
	Vision   VisionConfig   `mapstructure:"vision"`
	Storage  StorageConfig  `mapstructure:"storage"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// EngineConfig tunes the batch engine: how many tasks one worker-loop
// invocation claims, how many continuations a job start fans out, the
// stuck-task timeout, and the per-item retry policy.
type EngineConfig struct {
	BatchSize           int `mapstructure:"batch_size"             validate:"required,gte=1,lte=50"`
	InitialWorkers      int `mapstructure:"initial_workers"        validate:"required,gte=1,lte=32"`
	StuckTaskAgeSeconds int `mapstructure:"stuck_task_age_seconds" validate:"required,gte=30"`
	HandlerTimeoutSecs  int `mapstructure:"handler_timeout_seconds" validate:"required,gte=1"`
	MaxAttempts         int `mapstructure:"max_attempts"           validate:"required,gte=1,lte=10"`
	RetryBaseDelayMS    int `mapstructure:"retry_base_delay_ms"    validate:"required,gte=1"`
}

// StuckTaskAge returns the stuck-task timeout as a duration.
func (c EngineConfig) StuckTaskAge() time.Duration {
	return time.Duration(c.StuckTaskAgeSeconds) * time.Second
}

// HandlerTimeout returns the per-item handler timeout as a duration.
func (c EngineConfig) HandlerTimeout() time.Duration {
	return time.Duration(c.HandlerTimeoutSecs) * time.Second
}

// RetryBaseDelay returns the base delay between retry attempts.
func (c EngineConfig) RetryBaseDelay() time.Duration {
	return time.Duration(c.RetryBaseDelayMS) * time.Millisecond
}

// VisionConfig contains settings for the image classification API.
// When the API key is empty the photo-audit job kind is not registered.
type VisionConfig struct {
	GeminiAPIKey string `mapstructure:"gemini_api_key"`
	ModelName    string `mapstructure:"model_name"`
}

// Enabled reports whether the vision classifier is configured.
func (c VisionConfig) Enabled() bool {
	return c.GeminiAPIKey != ""
}

// StorageConfig contains settings for the object store used to rehost
// fetched listing photos. Endpoint is set for S3-compatible services.
type StorageConfig struct {
	Bucket          string `mapstructure:"bucket"`
	Region          string `mapstructure:"region"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	Endpoint        string `mapstructure:"endpoint"`
	PublicBaseURL   string `mapstructure:"public_base_url"`
}

// Enabled reports whether the blob uploader is configured.
func (c StorageConfig) Enabled() bool {
	return c.Bucket != ""
}
