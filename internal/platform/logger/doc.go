// Package logger configures the application's structured JSON logging and
// provides context-based logger propagation across request and job boundaries.
package logger
