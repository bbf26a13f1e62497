package retrieval

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"github.com/killallgit/normachat/pkg/norma"
	"github.com/killallgit/normachat/pkg/vectorstore"
)

// ChunkConfig controls how norma text is split before indexing
type ChunkConfig struct {
	ChunkSize    int
	ChunkOverlap int
}

// NewSplitter builds a recursive character splitter tuned for legal text:
// articles and paragraphs are preferred break points.
func NewSplitter(cfg ChunkConfig) textsplitter.TextSplitter {
	if cfg.ChunkSize <= 0 {
		cfg.ChunkSize = 1000
	}
	if cfg.ChunkOverlap < 0 || cfg.ChunkOverlap >= cfg.ChunkSize {
		cfg.ChunkOverlap = cfg.ChunkSize / 5
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(cfg.ChunkSize),
		textsplitter.WithChunkOverlap(cfg.ChunkOverlap),
		textsplitter.WithSeparators([]string{"\nARTICULO ", "\nArtículo ", "\n\n", "\n", ". ", " ", ""}),
	)
}

// ChunkID is the document id of chunk i of a norma
func ChunkID(normaID int64, i int) string {
	return fmt.Sprintf("%d-%d", normaID, i)
}

// NormaDocuments splits a norma into indexable chunks.
// The first chunk is prefixed with the norma's display name so titles are searchable.
func NormaDocuments(n norma.Norma, splitter textsplitter.TextSplitter) ([]vectorstore.Document, error) {
	text := strings.TrimSpace(n.Text)
	if text == "" {
		text = strings.TrimSpace(n.Summary)
	}
	if text == "" {
		return nil, fmt.Errorf("norma %d has no text to index", n.ID)
	}

	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("splitting norma %d: %w", n.ID, err)
	}

	title := n.DisplayName()
	docs := make([]vectorstore.Document, 0, len(chunks))
	for i, chunk := range chunks {
		chunk = strings.TrimSpace(chunk)
		if chunk == "" {
			continue
		}
		if i == 0 && title != "" {
			chunk = title + "\n" + chunk
		}
		docs = append(docs, vectorstore.Document{
			ID:      ChunkID(n.ID, len(docs)),
			Content: chunk,
			Metadata: map[string]any{
				vectorstore.MetaNormaID: n.ID,
				vectorstore.MetaTitle:   title,
				vectorstore.MetaSource:  n.Source,
				vectorstore.MetaChunk:   len(docs),
			},
		})
	}
	return docs, nil
}

// NormaID reads the norma id stored on a chunk.
// chromem returns metadata as strings, freshly built documents carry int64.
func NormaID(doc vectorstore.Document) (int64, bool) {
	switch v := doc.Metadata[vectorstore.MetaNormaID].(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	case string:
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			return id, true
		}
	}
	// chunks stored without metadata still carry the norma in their id
	if id, _, err := vectorstore.ParseChunkID(doc.ID); err == nil {
		return id, true
	}
	return 0, false
}
