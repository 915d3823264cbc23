// Package config defines the application's configuration structure and
// loads it from environment variables and optional config files, with
// struct-tag validation of the result.
package config
