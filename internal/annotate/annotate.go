// Package annotate is the ML annotation cache: emotion, theme, and
// NER classifiers sharing one (entity_id, model_type) cache contract
// over the store's annotation table.
package annotate

import (
	"context"
	"encoding/json"

	"github.com/florinutz/narra-core/internal/corelog"
	"github.com/florinutz/narra-core/internal/corerr"
	"github.com/florinutz/narra-core/internal/model"
	"github.com/florinutz/narra-core/internal/store"
	"go.uber.org/zap"
)

const (
	modelTypeEmotion = "emotion"
	modelTypeTheme   = "theme"
	modelTypeNER     = "ner"
)

// EmotionScore is one GoEmotions label's sigmoid activation.
type EmotionScore struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// EmotionClassifier is a multi-label sigmoid classifier over a fixed
// 28-label emotion taxonomy.
type EmotionClassifier interface {
	Classify(ctx context.Context, text string) ([]EmotionScore, error)
	IsAvailable() bool
	ModelVersion() string
}

// ThemeScore is one narrative theme's NLI-entailment score.
type ThemeScore struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// ThemeClassifier scores text against a theme list via NLI entailment
// over "This text is about {theme}." hypotheses.
type ThemeClassifier interface {
	Classify(ctx context.Context, text string, labels []string) ([]ThemeScore, error)
	IsAvailable() bool
	ModelVersion() string
}

// NERSpan is one typed, byte-offset-anchored named-entity span.
type NERSpan struct {
	Text  string  `json:"text"`
	Label string  `json:"label"`
	Start int     `json:"start"`
	End   int     `json:"end"`
	Score float32 `json:"score"`
}

// NERClassifier produces BIO-tagged spans over text.
type NERClassifier interface {
	Classify(ctx context.Context, text string) ([]NERSpan, error)
	IsAvailable() bool
	ModelVersion() string
}

// DefaultThemes is the narrative-theme list used when the caller
// supplies none. Caller-supplied labels bypass the cache entirely.
var DefaultThemes = []string{
	"betrayal", "redemption", "coming of age", "sacrifice", "revenge",
	"forbidden love", "power and corruption", "identity", "survival",
	"found family", "loss and grief", "justice",
}

// Cache composes the three classifiers with the store's annotation
// table, implementing the shared get(entity_id, text, ...) -> output
// fast-path/recompute contract.
type Cache struct {
	store   *store.Store
	emotion EmotionClassifier
	theme   ThemeClassifier
	ner     NERClassifier
	log     *zap.SugaredLogger
}

func NewCache(s *store.Store, emotion EmotionClassifier, theme ThemeClassifier, ner NERClassifier) *Cache {
	return &Cache{store: s, emotion: emotion, theme: theme, ner: ner, log: corelog.Sugar()}
}

// cachedOutput returns a non-stale, version-matching annotation's raw
// output, or (nil, false) when the cache must be recomputed.
func (c *Cache) cachedOutput(entityID, modelType, version string) ([]byte, bool) {
	a, err := c.store.GetAnnotation(entityID, modelType)
	if err != nil || a == nil {
		return nil, false
	}
	if a.Stale || a.ModelVersion != version {
		return nil, false
	}
	return a.Output, true
}

func (c *Cache) writeCache(entityID, modelType, version string, output []byte) {
	err := c.store.UpsertAnnotation(&model.Annotation{
		EntityID:     entityID,
		ModelType:    modelType,
		ModelVersion: version,
		Output:       output,
		Stale:        false,
	})
	if err != nil {
		c.log.Warnw("annotation cache write failed", "entity_id", entityID, "model_type", modelType, "error", err)
	}
}

// Emotion returns entityID's cached emotion scores, recomputing on a
// cache miss or stale/version-mismatched entry.
func (c *Cache) Emotion(ctx context.Context, entityID, text string) ([]EmotionScore, error) {
	if !c.emotion.IsAvailable() {
		return nil, corerr.ServiceUnavailable("emotion classifier not loaded")
	}
	version := c.emotion.ModelVersion()
	if raw, ok := c.cachedOutput(entityID, modelTypeEmotion, version); ok {
		var scores []EmotionScore
		if err := json.Unmarshal(raw, &scores); err == nil {
			return scores, nil
		}
	}
	scores, err := c.emotion.Classify(ctx, text)
	if err != nil {
		return nil, corerr.Compute(err, "classify emotion for %s", entityID)
	}
	if raw, err := json.Marshal(scores); err == nil {
		c.writeCache(entityID, modelTypeEmotion, version, raw)
	}
	return scores, nil
}

// Theme returns entityID's cached theme scores against DefaultThemes.
// A non-empty labels argument always recomputes and never touches the
// cache.
func (c *Cache) Theme(ctx context.Context, entityID, text string, labels []string) ([]ThemeScore, error) {
	if !c.theme.IsAvailable() {
		return nil, corerr.ServiceUnavailable("theme classifier not loaded")
	}
	if len(labels) > 0 {
		scores, err := c.theme.Classify(ctx, text, labels)
		if err != nil {
			return nil, corerr.Compute(err, "classify custom themes for %s", entityID)
		}
		return scores, nil
	}

	version := c.theme.ModelVersion()
	if raw, ok := c.cachedOutput(entityID, modelTypeTheme, version); ok {
		var scores []ThemeScore
		if err := json.Unmarshal(raw, &scores); err == nil {
			return scores, nil
		}
	}
	scores, err := c.theme.Classify(ctx, text, DefaultThemes)
	if err != nil {
		return nil, corerr.Compute(err, "classify theme for %s", entityID)
	}
	if raw, err := json.Marshal(scores); err == nil {
		c.writeCache(entityID, modelTypeTheme, version, raw)
	}
	return scores, nil
}

// NER returns entityID's cached named-entity spans.
func (c *Cache) NER(ctx context.Context, entityID, text string) ([]NERSpan, error) {
	if !c.ner.IsAvailable() {
		return nil, corerr.ServiceUnavailable("NER classifier not loaded")
	}
	version := c.ner.ModelVersion()
	if raw, ok := c.cachedOutput(entityID, modelTypeNER, version); ok {
		var spans []NERSpan
		if err := json.Unmarshal(raw, &spans); err == nil {
			return spans, nil
		}
	}
	spans, err := c.ner.Classify(ctx, text)
	if err != nil {
		return nil, corerr.Compute(err, "classify NER for %s", entityID)
	}
	if raw, err := json.Marshal(spans); err == nil {
		c.writeCache(entityID, modelTypeNER, version, raw)
	}
	return spans, nil
}
