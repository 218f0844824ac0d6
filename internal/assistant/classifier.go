package assistant

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/dealhound/dealhound/internal/llm"
	"github.com/dealhound/dealhound/pkg/logging"
)

const (
	classifierAttempts    = 2
	classifierTemperature = 0.1

	keywordConfidence  = 0.8
	fallbackConfidence = 0.6
	defaultConfidence  = 0.4
)

// completer is the slice of the gateway the classifier needs.
type completer interface {
	Complete(ctx context.Context, req llm.Request) (llm.Completion, error)
}

// Classifier decides intent and model complexity for a query. Cheap tiers
// first: canned FAQ patterns, then keyword matching, and only then a model
// call. Every path terminates in a usable classification; the classifier
// never returns an error to its caller.
type Classifier struct {
	gateway   completer
	model     string
	maxTokens int
	logger    *logging.Logger
	sleep     func(ctx context.Context, d time.Duration) error
}

func NewClassifier(gateway completer, model string, maxTokens int, logger *logging.Logger) *Classifier {
	if maxTokens <= 0 {
		// Generous budget: reasoning models burn tokens on thinking before
		// emitting the JSON.
		maxTokens = 2048
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Classifier{
		gateway:   gateway,
		model:     model,
		maxTokens: maxTokens,
		logger:    logger,
		sleep: func(ctx context.Context, d time.Duration) error {
			timer := time.NewTimer(d)
			defer timer.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-timer.C:
				return nil
			}
		},
	}
}

// Classify runs the tiered classification. Regex-extracted entities are
// always present in the result; model-extracted entities overlay them.
func (c *Classifier) Classify(ctx context.Context, message string) Classification {
	return c.classify(ctx, message, false)
}

// ClassifyForced skips the FAQ and keyword tiers and asks the model directly.
// The fallback chain past the model tier is unchanged.
func (c *Classifier) ClassifyForced(ctx context.Context, message string) Classification {
	return c.classify(ctx, message, true)
}

func (c *Classifier) classify(ctx context.Context, message string, force bool) Classification {
	extracted := ExtractEntities(message)

	if result, ok := checkFAQ(message); ok && !force {
		result.Entities = extracted
		return result
	}

	if intent, ok := matchKeywords(message); ok && !force {
		complexity := ComplexitySimple
		if isComplexQuery(message) {
			complexity = ComplexityComplex
		}
		return Classification{
			Intent:     intent,
			Complexity: complexity,
			Entities:   extracted,
			Confidence: keywordConfidence,
			Source:     "keyword",
		}
	}

	result, err := c.classifyWithModel(ctx, message)
	if err == nil {
		result.Entities = extracted.merge(result.Entities)
		return result
	}
	c.logger.Warn("model classification failed, using keyword fallback", "error", err)

	// Reduced-confidence keyword pass; the earlier pass required a unique
	// match, this one takes the first intent that matches in a fixed scan
	// order so repeat calls agree.
	for _, intent := range keywordIntentOrder {
		for _, p := range intentKeywords[intent] {
			if p.MatchString(message) {
				return Classification{
					Intent:     intent,
					Complexity: ComplexitySimple,
					Entities:   extracted,
					Confidence: fallbackConfidence,
					Source:     "keyword_fallback:" + err.Error(),
				}
			}
		}
	}

	return Classification{
		Intent:     IntentSearch,
		Complexity: ComplexitySimple,
		Entities:   extracted,
		Confidence: defaultConfidence,
		Source:     "default",
	}
}

// classifyWithModel calls the cheap model with backoff between attempts.
func (c *Classifier) classifyWithModel(ctx context.Context, message string) (Classification, error) {
	var lastErr error
	for attempt := 1; attempt <= classifierAttempts; attempt++ {
		if attempt > 1 {
			// Backoff scales with the attempt that just failed: 500ms after
			// the first failure, 1s after the second.
			if err := c.sleep(ctx, time.Duration(attempt-1)*500*time.Millisecond); err != nil {
				return Classification{}, err
			}
		}
		completion, err := c.gateway.Complete(ctx, llm.Request{
			Model:       c.model,
			Messages:    []llm.Message{{Role: llm.RoleUser, Content: fmt.Sprintf(classificationPrompt, message)}},
			MaxTokens:   c.maxTokens,
			Temperature: classifierTemperature,
		})
		if err != nil {
			lastErr = err
			continue
		}
		result, err := parseClassification(completion.Content)
		if err != nil {
			lastErr = err
			continue
		}
		result.Source = "model"
		return result, nil
	}
	return Classification{}, lastErr
}

func parseClassification(raw string) (Classification, error) {
	candidate := sanitizeModelJSON(raw)
	if candidate == "" {
		return Classification{}, fmt.Errorf("empty classification response")
	}

	var parsed struct {
		Intent     string   `json:"intent"`
		Complexity string   `json:"complexity"`
		Entities   Entities `json:"entities"`
		Confidence float64  `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(candidate), &parsed); err != nil {
		return Classification{}, fmt.Errorf("unparseable classification: %w", err)
	}

	intent := strings.ToLower(strings.TrimSpace(parsed.Intent))
	if !validIntent(intent) {
		return Classification{}, fmt.Errorf("unknown intent %q", parsed.Intent)
	}
	complexity := ComplexitySimple
	if Complexity(parsed.Complexity) == ComplexityComplex {
		complexity = ComplexityComplex
	}
	confidence := parsed.Confidence
	if confidence <= 0 || confidence > 1 {
		confidence = 0.5
	}
	return Classification{
		Intent:     Intent(intent),
		Complexity: complexity,
		Entities:   parsed.Entities,
		Confidence: confidence,
	}, nil
}
