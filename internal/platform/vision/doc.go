// Package vision provides the image classification client used by the
// photo-audit job kind. It wraps the Gemini API behind a circuit breaker
// and maps API failures into the transient/permanent split the batch
// engine's retry logic understands.
package vision
