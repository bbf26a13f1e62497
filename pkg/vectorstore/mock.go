package vectorstore

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// DefaultMockDimensions is the size of vectors produced by the "mock" provider
const DefaultMockDimensions = 256

// MockEmbedder is a deterministic embedder for tests and offline use.
// Each word is hashed into a bucket, so texts sharing words score as similar.
type MockEmbedder struct {
	dims int
}

// NewMockEmbedder creates a mock embedder producing vectors of the given size
func NewMockEmbedder(dimensions int) *MockEmbedder {
	if dimensions <= 0 {
		dimensions = DefaultMockDimensions
	}
	return &MockEmbedder{dims: dimensions}
}

// EmbedText generates a normalized bag-of-words vector
func (me *MockEmbedder) EmbedText(ctx context.Context, text string) ([]float32, error) {
	if err := validateText(text); err != nil {
		return nil, err
	}

	embedding := make([]float32, me.dims)
	for _, word := range tokenize(text) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(word))
		embedding[h.Sum32()%uint32(me.dims)] += 1
	}

	var sum float32
	for _, v := range embedding {
		sum += v * v
	}
	if sum == 0 {
		// text without words still needs a valid unit vector
		embedding[0] = 1
		return embedding, nil
	}
	n := float32(math.Sqrt(float64(sum)))
	for i := range embedding {
		embedding[i] /= n
	}
	return embedding, nil
}

// EmbedTexts generates mock embeddings for multiple texts
func (me *MockEmbedder) EmbedTexts(ctx context.Context, texts []string) ([][]float32, error) {
	if err := validateBatch(texts); err != nil {
		return nil, err
	}

	out := make([][]float32, len(texts))
	for i, text := range texts {
		v, err := me.EmbedText(ctx, text)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the embedding dimensions
func (me *MockEmbedder) Dimensions() int {
	return me.dims
}

// tokenize lowercases, strips accents and splits on anything that is not a letter or digit
func tokenize(text string) []string {
	fold := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	folded, _, err := transform.String(fold, strings.ToLower(text))
	if err != nil {
		folded = strings.ToLower(text)
	}
	return strings.FieldsFunc(folded, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}
