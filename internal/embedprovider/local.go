package embedprovider

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
	"github.com/florinutz/narra-core/internal/model"
)

const (
	// maxSeqLen caps attention-matrix cost; composite text is already
	// truncated to ~200 whitespace tokens before it reaches here, so
	// 256 wordpiece tokens covers it with headroom.
	maxSeqLen = 256
	// embeddingDim is BGE-small-en-v1.5's output width.
	embeddingDim = 384
	// inferenceBatchSize bounds one ONNX Run call's memory footprint.
	inferenceBatchSize = 4

	// bgeQueryPrefix is prepended to queries (never to documents) for
	// BGE-small-en-v1.5's asymmetric retrieval convention.
	bgeQueryPrefix = "Represent this sentence for searching relevant passages: "
)

// Local is an ONNX-Runtime-backed Provider over a BGE-small-en-v1.5-
// shaped model. A single session serves all callers; sessMu serializes
// Run calls since the runtime's advanced session is not safe for
// concurrent inference in this binding.
type Local struct {
	sessMu    sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
	modelName string
}

// NewLocal loads model.onnx and tokenizer.json from modelDir. ortLibPath
// points at onnxruntime's shared library; empty uses the system default.
// numThreads <= 0 selects min(4, NumCPU).
func NewLocal(modelDir, ortLibPath string, numThreads int) (*Local, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenPath := filepath.Join(modelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, corerr.ServiceUnavailable(fmt.Sprintf("embedding model not found at %s", modelPath))
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, corerr.ServiceUnavailable(fmt.Sprintf("tokenizer not found at %s", tokenPath))
	}

	if ortLibPath != "" {
		ort.SetSharedLibraryPath(ortLibPath)
	}
	if err := ort.InitializeEnvironment(); err != nil {
		return nil, fmt.Errorf("init onnxruntime: %w", err)
	}

	if numThreads <= 0 {
		numThreads = runtime.NumCPU()
		if numThreads > 4 {
			numThreads = 4
		}
	}

	opts, err := ort.NewSessionOptions()
	if err != nil {
		return nil, fmt.Errorf("session options: %w", err)
	}
	defer opts.Destroy()
	if err := opts.SetIntraOpNumThreads(numThreads); err != nil {
		return nil, fmt.Errorf("set intra-op threads: %w", err)
	}
	if err := opts.SetInterOpNumThreads(1); err != nil {
		return nil, fmt.Errorf("set inter-op threads: %w", err)
	}

	inputNames := []string{"input_ids", "attention_mask", "token_type_ids"}
	outputNames := []string{"last_hidden_state"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	return &Local{session: session, tokenizer: tk, modelName: "bge-small-en-v1.5"}, nil
}

// Close releases the ONNX session and tokenizer.
func (l *Local) Close() {
	if l.session != nil {
		l.session.Destroy()
	}
	if l.tokenizer != nil {
		l.tokenizer.Close()
	}
}

func (l *Local) Dimensions() int   { return embeddingDim }
func (l *Local) IsAvailable() bool { return l.session != nil && l.tokenizer != nil }
func (l *Local) Name() string      { return "local-onnx" }
func (l *Local) ModelName() string { return l.modelName }

// EmbedOne embeds a single document text (no instruction prefix — use
// this for entity composites, never for search queries).
func (l *Local) EmbedOne(ctx context.Context, text string) (model.Vector, error) {
	vecs, err := l.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds document texts in chunks of inferenceBatchSize,
// processed one after another; each chunk is one serialized ONNX Run
// call.
func (l *Local) EmbedBatch(ctx context.Context, texts []string) ([]model.Vector, error) {
	if !l.IsAvailable() {
		return nil, corerr.ServiceUnavailable("local embedding provider not loaded")
	}
	out := make([]model.Vector, 0, len(texts))
	for i := 0; i < len(texts); i += inferenceBatchSize {
		end := i + inferenceBatchSize
		if end > len(texts) {
			end = len(texts)
		}
		chunk, err := l.runInference(texts[i:end])
		if err != nil {
			return nil, corerr.Compute(err, "embedding batch [%d:%d]", i, end)
		}
		out = append(out, chunk...)
	}
	return out, nil
}

// EmbedQuery embeds a query string with the BGE asymmetric-retrieval
// instruction prefix. Search code must call this, never EmbedOne, for
// query-side vectors.
func (l *Local) EmbedQuery(ctx context.Context, query string) (model.Vector, error) {
	return l.EmbedOne(ctx, bgeQueryPrefix+query)
}

type tokenizedText struct {
	ids  []int64
	mask []int64
}

func (l *Local) tokenizeBatch(texts []string) ([]tokenizedText, int) {
	all := make([]tokenizedText, len(texts))
	maxLen := 0
	for i, text := range texts {
		enc := l.tokenizer.EncodeWithOptions(text, true, tokenizers.WithReturnAttentionMask())
		ids := enc.IDs
		if len(ids) > maxSeqLen {
			ids = ids[:maxSeqLen]
		}
		ids64 := make([]int64, len(ids))
		mask64 := make([]int64, len(ids))
		for j, v := range ids {
			ids64[j] = int64(v)
			mask64[j] = 1
		}
		if len(enc.AttentionMask) >= len(ids) {
			for j := range ids64 {
				mask64[j] = int64(enc.AttentionMask[j])
			}
		}
		all[i] = tokenizedText{ids: ids64, mask: mask64}
		if len(ids64) > maxLen {
			maxLen = len(ids64)
		}
	}
	return all, maxLen
}

// runInference executes one ONNX Run call for up to inferenceBatchSize
// texts, pooling the CLS token and L2-normalizing each output vector.
func (l *Local) runInference(texts []string) ([]model.Vector, error) {
	batchSize := len(texts)
	all, maxLen := l.tokenizeBatch(texts)
	if maxLen == 0 {
		return nil, fmt.Errorf("all inputs tokenized to zero length")
	}

	flatIDs := make([]int64, batchSize*maxLen)
	flatMask := make([]int64, batchSize*maxLen)
	flatType := make([]int64, batchSize*maxLen)
	for i, enc := range all {
		copy(flatIDs[i*maxLen:], enc.ids)
		copy(flatMask[i*maxLen:], enc.mask)
	}
	shape := ort.NewShape(int64(batchSize), int64(maxLen))

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

	hiddenTensor, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output type, want *Tensor[float32]")
	}
	hidden := hiddenTensor.GetData()
	seqLen := int(hiddenTensor.GetShape()[1])

	vecs := make([]model.Vector, batchSize)
	for i := 0; i < batchSize; i++ {
		vec := make(model.Vector, embeddingDim)
		base := i * seqLen * embeddingDim
		copy(vec, hidden[base:base+embeddingDim])
		l2Normalize(vec)
		vecs[i] = vec
	}
	return vecs, nil
}

func l2Normalize(v model.Vector) {
	var sumSq float64
	for _, x := range v {
		sumSq += float64(x) * float64(x)
	}
	norm := math.Sqrt(sumSq)
	if norm < 1e-10 {
		return
	}
	inv := float32(1.0 / norm)
	for i := range v {
		v[i] *= inv
	}
}
