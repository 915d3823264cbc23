package vision

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nvasquez/dirbatch-api/internal/config"
	"github.com/nvasquez/dirbatch-api/internal/engine"
	"github.com/sony/gobreaker"
	"google.golang.org/genai"
)

// heroAuditPrompt asks the model for a strict JSON verdict on whether a
// listing photo is usable as a directory hero image.
const heroAuditPrompt = `You are reviewing a photo for a business directory listing.
Decide whether it is suitable as the listing's hero image. Reject photos that
are blurry, contain readable personal information, are screenshots, contain
watermarks covering the subject, or do not show the business or its products.

Respond with JSON only, no prose, in exactly this shape:
{"approved": true or false, "reason": "one short sentence"}`

// Classification is a single photo verdict.
type Classification struct {
	Approved bool   `json:"approved"`
	Reason   string `json:"reason"`
}

// Classifier scores a photo for hero-image suitability.
type Classifier interface {
	ClassifyPhoto(ctx context.Context, image []byte, mimeType string) (*Classification, error)
}

// GeminiClassifier implements Classifier using Google's Gemini API. All
// calls go through a circuit breaker: while the breaker is open, calls fail
// fast as transient errors instead of spending every task's retry budget on
// a hard outage.
type GeminiClassifier struct {
	logger  *slog.Logger
	client  *genai.Client
	model   string
	breaker *gobreaker.CircuitBreaker
}

// NewGeminiClassifier creates a classifier from the vision configuration.
func NewGeminiClassifier(ctx context.Context, logger *slog.Logger, cfg config.VisionConfig) (*GeminiClassifier, error) {
	if logger == nil {
		return nil, errors.New("logger cannot be nil")
	}
	if cfg.GeminiAPIKey == "" {
		return nil, fmt.Errorf("%w: gemini API key cannot be empty", ErrInvalidConfig)
	}
	if cfg.ModelName == "" {
		return nil, fmt.Errorf("%w: model name cannot be empty", ErrInvalidConfig)
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.GeminiAPIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create Gemini client: %v", ErrInvalidConfig, err)
	}

	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "vision-api",
		MaxRequests: 100,
		Interval:    5 * time.Second,
		Timeout:     3 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			failureRatio := float64(counts.TotalFailures) / float64(counts.Requests)
			return counts.Requests >= 3 && failureRatio >= 0.6
		},
	})

	return &GeminiClassifier{
		logger:  logger,
		client:  client,
		model:   cfg.ModelName,
		breaker: breaker,
	}, nil
}

// ClassifyPhoto submits the image and returns the model's verdict. Overload
// and outage conditions come back wrapped as transient errors so the caller's
// retry policy applies; malformed responses and blocked content are permanent.
func (c *GeminiClassifier) ClassifyPhoto(ctx context.Context, image []byte, mimeType string) (*Classification, error) {
	if len(image) == 0 {
		return nil, ErrEmptyImage
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				genai.NewPartFromBytes(image, mimeType),
				genai.NewPartFromText(heroAuditPrompt),
			},
		},
	}

	genConfig := &genai.GenerateContentConfig{
		Temperature:      genai.Ptr(float32(0.1)),
		ResponseMIMEType: "application/json",
	}

	result, err := c.breaker.Execute(func() (interface{}, error) {
		return c.client.Models.GenerateContent(ctx, c.model, contents, genConfig)
	})
	if err != nil {
		mapped := classifyAPIError(err)
		c.logger.ErrorContext(ctx, "vision API call failed",
			"model", c.model,
			"transient", engine.IsTransient(mapped),
			"error", err)
		return nil, mapped
	}

	resp, ok := result.(*genai.GenerateContentResponse)
	if !ok || resp == nil {
		return nil, fmt.Errorf("%w: nil response", ErrInvalidResponse)
	}

	classification, err := parseClassification(resp.Text())
	if err != nil {
		c.logger.WarnContext(ctx, "vision API returned unparseable verdict",
			"model", c.model,
			"error", err)
		return nil, err
	}
	return classification, nil
}

// transientAPICodes are the vision API statuses worth retrying: rate limits
// and server-side failures.
var transientAPICodes = map[int]bool{
	429: true,
	500: true,
	502: true,
	503: true,
	504: true,
}

// classifyAPIError maps an API call failure onto the engine's retry
// taxonomy. Breaker rejections are transient: the backoff delay gives the
// breaker time to close again.
func classifyAPIError(err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return engine.Transient(fmt.Errorf("vision API circuit open: %w", err))
	}

	var apiErr genai.APIError
	if errors.As(err, &apiErr) && transientAPICodes[apiErr.Code] {
		return engine.Transient(fmt.Errorf("vision API overloaded (status %d): %w", apiErr.Code, err))
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return engine.Transient(err)
	}

	return fmt.Errorf("vision API call failed: %w", err)
}

// parseClassification decodes the model's JSON verdict. The approved field
// must be present; a reason is required for rejections so the audit trail
// explains itself.
func parseClassification(text string) (*Classification, error) {
	cleaned := stripCodeFence(text)
	if cleaned == "" {
		return nil, fmt.Errorf("%w: empty response text", ErrInvalidResponse)
	}

	var raw struct {
		Approved *bool  `json:"approved"`
		Reason   string `json:"reason"`
	}
	if err := json.Unmarshal([]byte(cleaned), &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidResponse, err)
	}
	if raw.Approved == nil {
		return nil, fmt.Errorf("%w: missing approved field", ErrInvalidResponse)
	}

	classification := &Classification{
		Approved: *raw.Approved,
		Reason:   strings.TrimSpace(raw.Reason),
	}
	if !classification.Approved && classification.Reason == "" {
		return nil, fmt.Errorf("%w: rejection without a reason", ErrInvalidResponse)
	}
	return classification, nil
}

// stripCodeFence removes a markdown code fence the model sometimes wraps
// around its JSON despite the response MIME type.
func stripCodeFence(text string) string {
	trimmed := strings.TrimSpace(text)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```json")
	trimmed = strings.TrimPrefix(trimmed, "```")
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// Compile-time check that GeminiClassifier satisfies Classifier.
var _ Classifier = (*GeminiClassifier)(nil)
