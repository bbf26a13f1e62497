package retrieval

import (
	"context"
	"fmt"
	"strings"

	"github.com/killallgit/normachat/pkg/norma"
	"github.com/killallgit/normachat/pkg/vectorstore"
)

// Augmenter builds prompts that ground the question in retrieved normas
type Augmenter struct {
	retriever *Retriever
	config    AugmenterConfig
}

// AugmenterConfig contains configuration for the augmenter
type AugmenterConfig struct {
	// Template receives the context and the question, in that order
	Template string

	// MaxContextLength limits the context size in characters
	MaxContextLength int

	// IncludeScores adds the similarity score to each source
	IncludeScores bool
}

// DefaultTemplate is the prompt used when none is configured
const DefaultTemplate = `Sos un asistente especializado en legislación argentina. Respondé la pregunta usando solamente el contexto provisto. Citá las fuentes con su etiqueta [Norma N]. Si el contexto no alcanza para responder, decilo.

Contexto:
%s

Pregunta: %s

Respuesta:`

// NoContext is placed in the prompt when retrieval finds nothing
const NoContext = "No se encontraron normas relevantes."

// NewAugmenter creates a new augmenter
func NewAugmenter(retriever *Retriever, config AugmenterConfig) *Augmenter {
	if config.Template == "" {
		config.Template = DefaultTemplate
	}
	if config.MaxContextLength <= 0 {
		config.MaxContextLength = 4000
	}
	return &Augmenter{retriever: retriever, config: config}
}

// AugmentResult contains the result of prompt augmentation
type AugmentResult struct {
	OriginalPrompt  string
	AugmentedPrompt string
	Context         string
	Results         []vectorstore.Result

	// NormaIDs are the distinct normas whose chunks made it into the context
	NormaIDs []int64
}

// AugmentPrompt returns the question wrapped with retrieved context
func (a *Augmenter) AugmentPrompt(ctx context.Context, prompt string) (string, error) {
	res, err := a.AugmentWithDetails(ctx, prompt)
	if err != nil {
		return "", err
	}
	return res.AugmentedPrompt, nil
}

// AugmentWithDetails retrieves, formats and applies the template
func (a *Augmenter) AugmentWithDetails(ctx context.Context, prompt string) (*AugmentResult, error) {
	results, err := a.retriever.RetrieveWithScores(ctx, prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to retrieve context: %w", err)
	}

	context, used := a.formatContext(results)

	ids := make([]int64, 0, len(used))
	for _, r := range used {
		if id, ok := NormaID(r.Document); ok {
			ids = append(ids, id)
		}
	}

	return &AugmentResult{
		OriginalPrompt:  prompt,
		AugmentedPrompt: fmt.Sprintf(a.config.Template, context, prompt),
		Context:         context,
		Results:         used,
		NormaIDs:        norma.UniqueIDs(ids),
	}, nil
}

// GetContext retrieves and formats context without applying the template
func (a *Augmenter) GetContext(ctx context.Context, query string) (string, error) {
	results, err := a.retriever.RetrieveWithScores(ctx, query)
	if err != nil {
		return "", fmt.Errorf("failed to retrieve context: %w", err)
	}
	context, _ := a.formatContext(results)
	return context, nil
}

// formatContext renders sources until MaxContextLength is reached.
// The first source is truncated if it alone is too long; later ones are dropped whole.
func (a *Augmenter) formatContext(results []vectorstore.Result) (string, []vectorstore.Result) {
	if len(results) == 0 {
		return NoContext, nil
	}

	var b strings.Builder
	used := make([]vectorstore.Result, 0, len(results))
	for _, result := range results {
		part := a.formatSource(result)
		if b.Len() > 0 {
			part = "\n\n" + part
		}

		if b.Len()+len(part) > a.config.MaxContextLength {
			if b.Len() == 0 {
				b.WriteString(truncateRunes(part, a.config.MaxContextLength) + "...")
				used = append(used, result)
			}
			break
		}
		b.WriteString(part)
		used = append(used, result)
	}
	return b.String(), used
}

func (a *Augmenter) formatSource(result vectorstore.Result) string {
	var header strings.Builder
	if id, ok := NormaID(result.Document); ok {
		fmt.Fprintf(&header, "[Norma %d]", id)
	} else {
		fmt.Fprintf(&header, "[%s]", result.Document.ID)
	}
	if title, ok := result.Document.Metadata[vectorstore.MetaTitle].(string); ok && title != "" {
		header.WriteString(" " + title)
	}
	if a.config.IncludeScores {
		fmt.Fprintf(&header, " (relevancia %.2f)", result.Score)
	}
	return header.String() + "\n" + result.Document.Content
}

// truncateRunes cuts s to at most n bytes without splitting a rune
func truncateRunes(s string, n int) string {
	if len(s) <= n {
		return s
	}
	cut := 0
	for i := range s {
		if i > n {
			break
		}
		cut = i
	}
	return s[:cut]
}
