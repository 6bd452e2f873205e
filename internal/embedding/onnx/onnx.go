//go:build onnx

// Package onnx runs all-MiniLM-L6-v2 locally through ONNX Runtime.
// Build with -tags onnx; importing the package registers the "onnx" provider.
package onnx

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"

	ort "github.com/yalue/onnxruntime_go"

	"github.com/rcliao/assoc-memory/internal/embedding"
)

const (
	defaultDims = 384
	maxSeqLen   = 128

	clsToken = 101
	sepToken = 102
	unkToken = 100
)

func init() {
	embedding.Register("onnx", func(cfg embedding.Config) (embedding.Embedder, error) {
		return New(cfg)
	})
}

// Embedder generates embeddings with a local BERT-style ONNX model.
// The runtime, tokenizer and session are loaded by Init, not New.
type Embedder struct {
	cfg  embedding.Config
	dims int

	mu      sync.Mutex // ONNX sessions are not safe for concurrent Run
	session *ort.DynamicAdvancedSession
	vocab   map[string]int
}

// New validates cfg. Call Init before Embed.
func New(cfg embedding.Config) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("onnx: model path is required")
	}
	if cfg.TokenizerPath == "" {
		return nil, fmt.Errorf("onnx: tokenizer path is required")
	}
	dims := cfg.Dimensions
	if dims == 0 {
		dims = defaultDims
	}
	return &Embedder{cfg: cfg, dims: dims}, nil
}

// Init loads the shared library, tokenizer vocabulary and inference session.
func (e *Embedder) Init(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session != nil {
		return nil
	}

	if e.cfg.LibraryPath != "" {
		ort.SetSharedLibraryPath(e.cfg.LibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return fmt.Errorf("initialize onnx runtime: %w", err)
		}
	}

	vocab, err := loadVocab(e.cfg.TokenizerPath)
	if err != nil {
		return fmt.Errorf("load tokenizer: %w", err)
	}

	session, err := ort.NewDynamicAdvancedSession(e.cfg.ModelPath,
		[]string{"input_ids", "attention_mask", "token_type_ids"},
		[]string{"last_hidden_state"},
		nil,
	)
	if err != nil {
		return fmt.Errorf("create onnx session: %w", err)
	}

	e.vocab = vocab
	e.session = session
	return nil
}

func (e *Embedder) Embed(ctx context.Context, text string) (embedding.Vector, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil, embedding.ErrEmbeddingUnavailable
	}

	tokens := e.tokenize(text)
	if len(tokens) > maxSeqLen-2 {
		tokens = tokens[:maxSeqLen-2]
	}

	inputIDs := make([]int64, maxSeqLen)
	attention := make([]int64, maxSeqLen)
	typeIDs := make([]int64, maxSeqLen)

	inputIDs[0], attention[0] = clsToken, 1
	for i, tok := range tokens {
		inputIDs[i+1], attention[i+1] = tok, 1
	}
	end := len(tokens) + 1
	inputIDs[end], attention[end] = sepToken, 1

	shape := ort.NewShape(1, maxSeqLen)
	var inputs []ort.Value
	for _, data := range [][]int64{inputIDs, attention, typeIDs} {
		t, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create tensor: %w", err)
		}
		defer t.Destroy()
		inputs = append(inputs, t)
	}

	outputs := []ort.Value{nil}
	if err := e.session.Run(inputs, outputs); err != nil {
		return nil, fmt.Errorf("onnx inference: %w", err)
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				o.Destroy()
			}
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type")
	}
	return meanPool(out.GetData(), out.GetShape(), attention, e.dims)
}

func (e *Embedder) Dims() int { return e.dims }

// Close destroys the session.
func (e *Embedder) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.session == nil {
		return nil
	}
	err := e.session.Destroy()
	e.session = nil
	return err
}

// meanPool reduces [1, seq, hidden] to [hidden] over attended tokens.
// Already-pooled [1, hidden] outputs are returned as is.
func meanPool(data []float32, shape ort.Shape, attention []int64, dims int) (embedding.Vector, error) {
	switch len(shape) {
	case 2:
		if len(data) < dims {
			return nil, fmt.Errorf("output dimension mismatch: got %d, expected %d", len(data), dims)
		}
		out := make(embedding.Vector, dims)
		copy(out, data[:dims])
		return out, nil
	case 3:
		seqLen, hidden := int(shape[1]), int(shape[2])
		if hidden != dims {
			return nil, fmt.Errorf("hidden size mismatch: got %d, expected %d", hidden, dims)
		}
		out := make(embedding.Vector, dims)
		var attended float32
		for i := 0; i < seqLen; i++ {
			if attention[i] == 0 {
				continue
			}
			attended++
			row := data[i*hidden : (i+1)*hidden]
			for j, v := range row {
				out[j] += v
			}
		}
		for j := range out {
			out[j] /= attended
		}
		return out, nil
	}
	return nil, fmt.Errorf("unexpected output shape: %v", shape)
}

func loadVocab(path string) (map[string]int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var tok struct {
		Model struct {
			Vocab map[string]int `json:"vocab"`
		} `json:"model"`
	}
	if err := json.Unmarshal(data, &tok); err != nil {
		return nil, err
	}
	if len(tok.Model.Vocab) == 0 {
		return nil, fmt.Errorf("empty vocabulary in %s", path)
	}
	return tok.Model.Vocab, nil
}

// tokenize is a lower-casing WordPiece tokenizer: whole words when present
// in the vocabulary, otherwise greedy longest-prefix subwords.
func (e *Embedder) tokenize(text string) []int64 {
	var ids []int64
	for _, word := range strings.Fields(strings.ToLower(text)) {
		word = strings.Trim(word, ".,!?;:\"'()[]")
		if word == "" {
			continue
		}
		if id, ok := e.vocab[word]; ok {
			ids = append(ids, int64(id))
			continue
		}
		ids = append(ids, e.wordPiece(word)...)
	}
	return ids
}

func (e *Embedder) wordPiece(word string) []int64 {
	var ids []int64
	for start := 0; start < len(word); {
		end := len(word)
		matched := false
		for ; end > start; end-- {
			piece := word[start:end]
			if start > 0 {
				piece = "##" + piece
			}
			if id, ok := e.vocab[piece]; ok {
				ids = append(ids, int64(id))
				matched = true
				break
			}
		}
		if !matched {
			ids = append(ids, unkToken)
			end = start + 1
		}
		start = end
	}
	return ids
}
