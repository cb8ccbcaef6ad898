package annotate

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/florinutz/narra-core/internal/corerr"
)

const nerMaxSeqLen = 256

// nerLabels is the BIO tag set this model's classification head
// outputs logits over, in index order.
var nerLabels = []string{
	"O",
	"B-PER", "I-PER",
	"B-LOC", "I-LOC",
	"B-ORG", "I-ORG",
	"B-MISC", "I-MISC",
}

// LocalNERClassifier is an ONNX token-classification model: one
// logit vector per input token, BIO-decoded into typed spans with
// byte offsets via the tokenizer's offset mapping.
type LocalNERClassifier struct {
	sessMu    sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	version   string
}

func NewLocalNERClassifier(modelDir, ortLibPath string, numThreads int) (*LocalNERClassifier, error) {
	session, tokenizer, err := loadClassifierSession(modelDir, ortLibPath, numThreads)
	if err != nil {
		return nil, err
	}
	return &LocalNERClassifier{session: session, tokenizer: tokenizer, version: "ner-bio-onnx-v1"}, nil
}

func (l *LocalNERClassifier) Close() {
	if l.session != nil {
		l.session.Destroy()
	}
	if l.tokenizer != nil {
		l.tokenizer.Close()
	}
}

func (l *LocalNERClassifier) IsAvailable() bool    { return l.session != nil && l.tokenizer != nil }
func (l *LocalNERClassifier) ModelVersion() string { return l.version }

func (l *LocalNERClassifier) Classify(ctx context.Context, text string) ([]NERSpan, error) {
	if !l.IsAvailable() {
		return nil, corerr.ServiceUnavailable("NER classifier not loaded")
	}

	enc := l.tokenizer.EncodeWithOptions(text, true,
		tokenizers.WithReturnAttentionMask(),
		tokenizers.WithReturnOffsets(),
	)
	ids := enc.IDs
	if len(ids) > nerMaxSeqLen {
		ids = ids[:nerMaxSeqLen]
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

	l.sessMu.Lock()
	inputs := []ort.Value{inputIDs, attnMask, typeIDs}
	outputs := []ort.Value{nil}
	err = l.session.Run(inputs, outputs)
	l.sessMu.Unlock()
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
	numLabels := len(nerLabels)
	if len(data) < seqLen*numLabels {
		return nil, fmt.Errorf("logits length %d too short for %d tokens x %d labels", len(data), seqLen, numLabels)
	}

	offsets := enc.Offsets
	perToken := make([]tokenPrediction, seqLen)
	for i := 0; i < seqLen; i++ {
		probs := softmax(data[i*numLabels : (i+1)*numLabels])
		best, bestScore := 0, float32(0)
		for j, p := range probs {
			if p > bestScore {
				bestScore, best = p, j
			}
		}
		perToken[i] = tokenPrediction{label: nerLabels[best], score: bestScore}
		if i < len(offsets) {
			perToken[i].start = int(offsets[i][0])
			perToken[i].end = int(offsets[i][1])
		}
	}
	return decodeBIOSpans(text, perToken), nil
}

type tokenPrediction struct {
	label string
	score float32
	start int
	end   int
}

// decodeBIOSpans merges consecutive B-X/I-X token predictions into
// typed spans anchored on byte offsets, skipping "O" and zero-width
// special-token offsets.
func decodeBIOSpans(text string, preds []tokenPrediction) []NERSpan {
	var out []NERSpan
	var current *NERSpan
	var currentScoreSum float32
	var currentScoreCount int

	flush := func() {
		if current == nil {
			return
		}
		current.Score = currentScoreSum / float32(currentScoreCount)
		current.Text = safeSlice(text, current.Start, current.End)
		out = append(out, *current)
		current = nil
		currentScoreSum, currentScoreCount = 0, 0
	}

	for _, p := range preds {
		if p.end == p.start {
			continue // special token, no text span
		}
		entityType, prefix := splitBIOLabel(p.label)
		switch prefix {
		case "B":
			flush()
			current = &NERSpan{Label: entityType, Start: p.start, End: p.end}
			currentScoreSum, currentScoreCount = p.score, 1
		case "I":
			if current != nil && current.Label == entityType {
				current.End = p.end
				currentScoreSum += p.score
				currentScoreCount++
			} else {
				flush()
				current = &NERSpan{Label: entityType, Start: p.start, End: p.end}
				currentScoreSum, currentScoreCount = p.score, 1
			}
		default:
			flush()
		}
	}
	flush()
	return out
}

func splitBIOLabel(label string) (entityType, prefix string) {
	if label == "O" || label == "" {
		return "", "O"
	}
	parts := strings.SplitN(label, "-", 2)
	if len(parts) != 2 {
		return label, "B"
	}
	return parts[1], parts[0]
}

func safeSlice(s string, start, end int) string {
	if start < 0 || end > len(s) || start > end {
		return ""
	}
	return s[start:end]
}

// NoopNERClassifier is the always-unavailable test double.
type NoopNERClassifier struct{}

func (NoopNERClassifier) Classify(ctx context.Context, text string) ([]NERSpan, error) {
	return nil, corerr.ServiceUnavailable("NER classifier not loaded")
}
func (NoopNERClassifier) IsAvailable() bool    { return false }
func (NoopNERClassifier) ModelVersion() string { return "noop" }
