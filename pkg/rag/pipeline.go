package rag

import (
	"context"
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/llms"

	"github.com/killallgit/normachat/pkg/logger"
	"github.com/killallgit/normachat/pkg/retrieval"
	"github.com/killallgit/normachat/pkg/vectorstore"
)

// Source is a retrieved chunk that grounded an answer
type Source struct {
	NormaID int64
	Title   string
	Score   float32
}

// Answer is the model's reply together with the normas it was grounded on
type Answer struct {
	Text     string
	NormaIDs []int64
	Sources  []Source
}

// Pipeline retrieves context, builds the prompt and asks the model.
// There is no re-ranking and no caching of answers.
type Pipeline struct {
	augmenter *retrieval.Augmenter
	model     llms.Model
}

// NewPipeline creates a pipeline
func NewPipeline(augmenter *retrieval.Augmenter, model llms.Model) *Pipeline {
	return &Pipeline{augmenter: augmenter, model: model}
}

// Ask answers question in one call
func (p *Pipeline) Ask(ctx context.Context, question string) (*Answer, error) {
	return p.AskStream(ctx, question, nil)
}

// AskStream answers question, passing each generated chunk to onChunk when it is not nil.
// An error from onChunk aborts generation.
func (p *Pipeline) AskStream(ctx context.Context, question string, onChunk func(chunk string) error) (*Answer, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, fmt.Errorf("question is empty")
	}

	aug, err := p.augmenter.AugmentWithDetails(ctx, question)
	if err != nil {
		return nil, err
	}
	logger.Debug("rag: %d sources, %d normas, prompt %d chars", len(aug.Results), len(aug.NormaIDs), len(aug.AugmentedPrompt))

	var opts []llms.CallOption
	if onChunk != nil {
		opts = append(opts, llms.WithStreamingFunc(func(ctx context.Context, chunk []byte) error {
			return onChunk(string(chunk))
		}))
	}

	text, err := llms.GenerateFromSinglePrompt(ctx, p.model, aug.AugmentedPrompt, opts...)
	if err != nil {
		return nil, fmt.Errorf("generation failed: %w", err)
	}

	answer := &Answer{Text: text, NormaIDs: aug.NormaIDs}
	for _, r := range aug.Results {
		id, _ := retrieval.NormaID(r.Document)
		title, _ := r.Document.Metadata[vectorstore.MetaTitle].(string)
		answer.Sources = append(answer.Sources, Source{NormaID: id, Title: title, Score: r.Score})
	}
	return answer, nil
}
