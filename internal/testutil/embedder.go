package testutil

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sync"
)

// MockEmbedder provides deterministic embedding vectors for testing.
//
// By default, it generates a deterministic unit vector from the input text
// using SHA-256. Explicit mappings can be added for precise cosine
// similarity control.
//
// Thread-safe for concurrent use.
type MockEmbedder struct {
	mu      sync.Mutex
	vectors map[string][]float32
	calls   []string
	dim     int
}

// NewMockEmbedder creates a mock embedder with the given vector dimensions.
func NewMockEmbedder(dim int) *MockEmbedder {
	return &MockEmbedder{
		vectors: make(map[string][]float32),
		dim:     dim,
	}
}

// SetVector registers an explicit vector for a given input string.
// Use this to control exact cosine similarity between test inputs.
func (e *MockEmbedder) SetVector(text string, vec []float32) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.vectors[text] = vec
}

// Calls returns a copy of all embedded inputs, in order.
func (e *MockEmbedder) Calls() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	cp := make([]string, len(e.calls))
	copy(cp, e.calls)
	return cp
}

// Embed returns the registered vector for text, or a deterministic
// SHA-256-derived unit vector when none is registered.
func (e *MockEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.calls = append(e.calls, text)

	if vec, ok := e.vectors[text]; ok {
		cp := make([]float32, len(vec))
		copy(cp, vec)
		return cp, nil
	}
	return deterministicVector(text, e.dim), nil
}

// deterministicVector derives a normalized vector from text. The same text
// always produces the same vector; different texts almost never collide.
func deterministicVector(text string, dim int) []float32 {
	seed := sha256.Sum256([]byte(text))

	vec := make([]float32, dim)
	var norm float64
	for i := range vec {
		// Re-hash the seed with the index to stretch 32 bytes over dim values.
		var buf [40]byte
		copy(buf[:32], seed[:])
		binary.BigEndian.PutUint64(buf[32:], uint64(i))
		h := sha256.Sum256(buf[:])

		v := float32(int32(binary.BigEndian.Uint32(h[:4]))) / float32(math.MaxInt32)
		vec[i] = v
		norm += float64(v) * float64(v)
	}

	norm = math.Sqrt(norm)
	if norm == 0 {
		return vec
	}
	for i := range vec {
		vec[i] = float32(float64(vec[i]) / norm)
	}
	return vec
}
