package annotate

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/florinutz/narra-core/internal/corerr"
)

const (
	themeMaxSeqLen    = 384
	themeThreshold    = 0.5
	// entailment is output index 2 in the MNLI 3-class convention
	// (contradiction, neutral, entailment) this model was trained on.
	entailmentIndex = 2
)

// LocalThemeClassifier is an ONNX NLI sequence-pair classifier: each
// (text, "This text is about {theme}.") pair is scored by softmax
// entailment probability.
type LocalThemeClassifier struct {
	sessMu    sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	version   string
}

func NewLocalThemeClassifier(modelDir, ortLibPath string, numThreads int) (*LocalThemeClassifier, error) {
	session, tokenizer, err := loadClassifierSession(modelDir, ortLibPath, numThreads)
	if err != nil {
		return nil, err
	}
	return &LocalThemeClassifier{session: session, tokenizer: tokenizer, version: "nli-theme-onnx-v1"}, nil
}

func (l *LocalThemeClassifier) Close() {
	if l.session != nil {
		l.session.Destroy()
	}
	if l.tokenizer != nil {
		l.tokenizer.Close()
	}
}

func (l *LocalThemeClassifier) IsAvailable() bool    { return l.session != nil && l.tokenizer != nil }
func (l *LocalThemeClassifier) ModelVersion() string { return l.version }

func (l *LocalThemeClassifier) Classify(ctx context.Context, text string, labels []string) ([]ThemeScore, error) {
	if !l.IsAvailable() {
		return nil, corerr.ServiceUnavailable("theme classifier not loaded")
	}
	var out []ThemeScore
	for _, label := range labels {
		hypothesis := fmt.Sprintf("This text is about %s.", label)
		probs, err := runPairClassifier(&l.sessMu, l.session, l.tokenizer, text, hypothesis, themeMaxSeqLen)
		if err != nil {
			return nil, err
		}
		if entailmentIndex >= len(probs) {
			continue
		}
		score := probs[entailmentIndex]
		if score >= themeThreshold {
			out = append(out, ThemeScore{Label: label, Score: score})
		}
	}
	return out, nil
}

// NoopThemeClassifier is the always-unavailable test double.
type NoopThemeClassifier struct{}

func (NoopThemeClassifier) Classify(ctx context.Context, text string, labels []string) ([]ThemeScore, error) {
	return nil, corerr.ServiceUnavailable("theme classifier not loaded")
}
func (NoopThemeClassifier) IsAvailable() bool    { return false }
func (NoopThemeClassifier) ModelVersion() string { return "noop" }

// runPairClassifier tokenizes a (premise, hypothesis) pair, marking
// hypothesis tokens with token_type_ids=1, and returns the
// softmax-normalized class probabilities.
func runPairClassifier(sessMu *sync.Mutex, session *ort.DynamicAdvancedSession, tokenizer *tokenizers.Tokenizer, premise, hypothesis string, maxSeqLen int) ([]float32, error) {
	premiseEnc := tokenizer.EncodeWithOptions(premise, true, tokenizers.WithReturnAttentionMask())
	hypothesisEnc := tokenizer.EncodeWithOptions(hypothesis, true, tokenizers.WithReturnAttentionMask())

	ids := append(append([]uint32{}, premiseEnc.IDs...), hypothesisEnc.IDs...)
	if len(ids) > maxSeqLen {
		ids = ids[:maxSeqLen]
	}
	seqLen := len(ids)
	if seqLen == 0 {
		return nil, fmt.Errorf("pair tokenized to zero length")
	}

	flatIDs := make([]int64, seqLen)
	flatMask := make([]int64, seqLen)
	flatType := make([]int64, seqLen)
	premiseLen := len(premiseEnc.IDs)
	for i, v := range ids {
		flatIDs[i] = int64(v)
		flatMask[i] = 1
		if i >= premiseLen {
			flatType[i] = 1
		}
	}

	shape := ort.NewShape(1, int64(seqLen))
	inputIDs, err := ort.NewTensor(shape, flatIDs)
	if err != nil {
		return nil, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer inputIDs.Destroy()
	attnMask, err := ort.NewTensor(shape, flatMask)
	if err != nil {
		return nil, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer attnMask.Destroy()
	typeIDs, err := ort.NewTensor(shape, flatType)
	if err != nil {
		return nil, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeIDs.Destroy()

	sessMu.Lock()
	inputs := []ort.Value{inputIDs, attnMask, typeIDs}
	outputs := []ort.Value{nil}
	err = session.Run(inputs, outputs)
	sessMu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("session run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	logitsTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type, want *Tensor[float32]")
	}
	return softmax(logitsTensor.GetData()), nil
}

func softmax(logits []float32) []float32 {
	if len(logits) == 0 {
		return nil
	}
	max := logits[0]
	for _, v := range logits {
		if v > max {
			max = v
		}
	}
	sum := 0.0
	exps := make([]float64, len(logits))
	for i, v := range logits {
		e := math.Exp(float64(v - max))
		exps[i] = e
		sum += e
	}
	out := make([]float32, len(logits))
	for i, e := range exps {
		out[i] = float32(e / sum)
	}
	return out
}
