package embedprovider

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/daulet/tokenizers"
	ort "github.com/yalue/onnxruntime_go"

	"github.com/florinutz/narra-core/internal/corerr"
)

// maxRerankSeqLen caps the query+passage pair length fed to the
// cross-encoder; pairs are naturally shorter than single-document
// embedding inputs since both sides are already-truncated composites.
const maxRerankSeqLen = 384

// LocalCrossEncoder scores (query, passage) pairs with a sequence-
// classification ONNX model (logits -> relevance score). One session
// serves all callers; sessMu serializes Run calls.
type LocalCrossEncoder struct {
	sessMu    sync.Mutex
	session   *ort.DynamicAdvancedSession
	tokenizer *tokenizers.Tokenizer
}

// NewLocalCrossEncoder loads model.onnx and tokenizer.json from
// modelDir, the same layout convention as NewLocal.
func NewLocalCrossEncoder(modelDir, ortLibPath string, numThreads int) (*LocalCrossEncoder, error) {
	modelPath := filepath.Join(modelDir, "model.onnx")
	tokenPath := filepath.Join(modelDir, "tokenizer.json")

	if _, err := os.Stat(modelPath); err != nil {
		return nil, corerr.ServiceUnavailable(fmt.Sprintf("cross-encoder model not found at %s", modelPath))
	}
	if _, err := os.Stat(tokenPath); err != nil {
		return nil, corerr.ServiceUnavailable(fmt.Sprintf("cross-encoder tokenizer not found at %s", tokenPath))
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
	outputNames := []string{"logits"}
	session, err := ort.NewDynamicAdvancedSession(modelPath, inputNames, outputNames, opts)
	if err != nil {
		return nil, fmt.Errorf("create onnx session: %w", err)
	}

	tk, err := tokenizers.FromFile(tokenPath)
	if err != nil {
		session.Destroy()
		return nil, fmt.Errorf("load tokenizer: %w", err)
	}

	return &LocalCrossEncoder{session: session, tokenizer: tk}, nil
}

// Close releases the ONNX session and tokenizer.
func (c *LocalCrossEncoder) Close() {
	if c.session != nil {
		c.session.Destroy()
	}
	if c.tokenizer != nil {
		c.tokenizer.Close()
	}
}

func (c *LocalCrossEncoder) IsAvailable() bool { return c.session != nil && c.tokenizer != nil }

// Rerank scores every (query, texts[i]) pair and returns results
// sorted by descending score. Tokenization and pair-building for each
// candidate run concurrently on the bounded pool; only the ONNX Run
// call itself is serialized through sessMu.
func (c *LocalCrossEncoder) Rerank(ctx context.Context, query string, texts []string) ([]RerankResult, error) {
	if !c.IsAvailable() {
		return nil, corerr.ServiceUnavailable("cross-encoder not loaded")
	}

	scores, err := runBatched(ctx, texts, func(_ context.Context, text string) (float32, error) {
		return c.scorePair(query, text)
	})
	if err != nil {
		return nil, corerr.Compute(err, "cross-encoder rerank")
	}

	results := make([]RerankResult, len(texts))
	for i, s := range scores {
		results[i] = RerankResult{Index: i, Score: s}
	}
	sort.Slice(results, func(i, j int) bool { return results[i].Score > results[j].Score })
	return results, nil
}

func (c *LocalCrossEncoder) scorePair(query, passage string) (float32, error) {
	enc := c.tokenizer.EncodeWithOptions(query, false, tokenizers.WithReturnAttentionMask())
	passageEnc := c.tokenizer.EncodeWithOptions(passage, false, tokenizers.WithReturnAttentionMask())

	ids := append([]uint32{}, enc.IDs...)
	ids = append(ids, passageEnc.IDs...)
	if len(ids) > maxRerankSeqLen {
		ids = ids[:maxRerankSeqLen]
	}

	ids64 := make([]int64, len(ids))
	mask64 := make([]int64, len(ids))
	type64 := make([]int64, len(ids))
	for i, v := range ids {
		ids64[i] = int64(v)
		mask64[i] = 1
		if i >= len(enc.IDs) {
			type64[i] = 1
		}
	}

	shape := ort.NewShape(1, int64(len(ids64)))
	idsT, err := ort.NewTensor(shape, ids64)
	if err != nil {
		return 0, fmt.Errorf("input_ids tensor: %w", err)
	}
	defer idsT.Destroy()
	maskT, err := ort.NewTensor(shape, mask64)
	if err != nil {
		return 0, fmt.Errorf("attention_mask tensor: %w", err)
	}
	defer maskT.Destroy()
	typeT, err := ort.NewTensor(shape, type64)
	if err != nil {
		return 0, fmt.Errorf("token_type_ids tensor: %w", err)
	}
	defer typeT.Destroy()

	c.sessMu.Lock()
	inputs := []ort.Value{idsT, maskT, typeT}
	outputs := []ort.Value{nil}
	err = c.session.Run(inputs, outputs)
	c.sessMu.Unlock()
	if err != nil {
		return 0, fmt.Errorf("session run: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	logits, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return 0, fmt.Errorf("unexpected output type, want *Tensor[float32]")
	}
	data := logits.GetData()
	if len(data) == 0 {
		return 0, fmt.Errorf("empty logits")
	}
	return data[0], nil
}
