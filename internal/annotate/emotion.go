package annotate

import (
	"context"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/florinutz/narra-core/internal/corerr"
)

const emotionMaxSeqLen = 256

// goEmotionsLabels is the fixed 28-label GoEmotions taxonomy, in the
// index order the classification head outputs logits in.
var goEmotionsLabels = []string{
	"admiration", "amusement", "anger", "annoyance", "approval", "caring",
	"confusion", "curiosity", "desire", "disappointment", "disapproval",
	"disgust", "embarrassment", "excitement", "fear", "gratitude", "grief",
	"joy", "love", "nervousness", "optimism", "pride", "realization",
	"relief", "remorse", "sadness", "surprise", "neutral",
}

const emotionActivationThreshold = 0.3

// LocalEmotionClassifier is an ONNX sequence-classification model
// producing one sigmoid activation per GoEmotions label.
type LocalEmotionClassifier struct {
	sessMu    sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	version   string
}

func NewLocalEmotionClassifier(modelDir, ortLibPath string, numThreads int) (*LocalEmotionClassifier, error) {
	session, tokenizer, err := loadClassifierSession(modelDir, ortLibPath, numThreads)
	if err != nil {
		return nil, err
	}
	return &LocalEmotionClassifier{session: session, tokenizer: tokenizer, version: "goemotions-onnx-v1"}, nil
}

func (l *LocalEmotionClassifier) Close() {
	if l.session != nil {
		l.session.Destroy()
	}
	if l.tokenizer != nil {
		l.tokenizer.Close()
	}
}

func (l *LocalEmotionClassifier) IsAvailable() bool { return l.session != nil && l.tokenizer != nil }
func (l *LocalEmotionClassifier) ModelVersion() string { return l.version }

func (l *LocalEmotionClassifier) Classify(ctx context.Context, text string) ([]EmotionScore, error) {
	if !l.IsAvailable() {
		return nil, corerr.ServiceUnavailable("emotion classifier not loaded")
	}
	logits, err := runSingleSequenceClassifier(&l.sessMu, l.session, l.tokenizer, text, emotionMaxSeqLen)
	if err != nil {
		return nil, err
	}
	if len(logits) != len(goEmotionsLabels) {
		return nil, fmt.Errorf("emotion model produced %d logits, want %d", len(logits), len(goEmotionsLabels))
	}
	var out []EmotionScore
	for i, label := range goEmotionsLabels {
		score := sigmoid(logits[i])
		if score >= emotionActivationThreshold {
			out = append(out, EmotionScore{Label: label, Score: score})
		}
	}
	return out, nil
}

// NoopEmotionClassifier is the always-unavailable test double.
type NoopEmotionClassifier struct{}

func (NoopEmotionClassifier) Classify(ctx context.Context, text string) ([]EmotionScore, error) {
	return nil, corerr.ServiceUnavailable("emotion classifier not loaded")
}
func (NoopEmotionClassifier) IsAvailable() bool     { return false }
func (NoopEmotionClassifier) ModelVersion() string  { return "noop" }

func loadClassifierSession(modelDir, ortLibPath string, numThreads int) (*ort.DynamicAdvancedSession, *tokenizers.Tokenizer, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenPath := filepath.Join(modelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, nil, corerr.ServiceUnavailable(fmt.Sprintf("classifier model not found at %s", modelPath))
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, nil, corerr.ServiceUnavailable(fmt.Sprintf("tokenizer not found at %s", tokenPath))
	}

	if ortLibPath != "" {
		ort.SetSharedLibraryPath(ortLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, nil, fmt.Errorf("set inter-op threads: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"logits"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, nil, fmt.Errorf("create onnx session: %w", err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, nil, fmt.Errorf("load tokenizer: %w", err)
	}
	return session, tk, nil
}

// runSingleSequenceClassifier tokenizes one text and returns its raw
// per-class logits from a sequence-classification head, serializing
// the Run call under sessMu.
func runSingleSequenceClassifier(sessMu *sync.Mutex, session *ort.DynamicAdvancedSession, tokenizer *tokenizers.Tokenizer, text string, maxSeqLen int) ([]float32, error) {
	enc := tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
	ids := enc.IDs
	if len(ids) > maxSeqLen {
		ids = ids[:maxSeqLen]
	}
	seqLen := len(ids)
	if seqLen == 0 {
		return nil, fmt.Errorf("input tokenized to zero length")
	}

	flatIDs := make([]int64, seqLen)
	flatMask := make([]int64, seqLen)
	flatType := make([]int64, seqLen)
	for i, v := range ids {
		flatIDs[i] = int64(v)
		flatMask[i] = 1
	}
	if len(enc.AttentionMask) >= seqLen {
		for i := range flatMask {
			flatMask[i] = int64(enc.AttentionMask[i])
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
	data := logitsTensor.GetData()
	out := make([]float32, len(data))
	copy(out, data)
	return out, nil
}

func sigmoid(x float32) float32 {
	return float32(1 / (1 + math.Exp(-float64(x))))
}
