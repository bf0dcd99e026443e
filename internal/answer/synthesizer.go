// Package answer turns retrieval hits into a grounded natural-language
// answer with cited sources.
package answer

import (
	"context"
	"fmt"
	"strings"

	"github.com/paperlens-ai/paperlens/internal/llm"
	"github.com/paperlens-ai/paperlens/internal/retrieval"
)

const excerptRunes = 100

// Source cites one retrieved record used to ground the answer.
type Source struct {
	DocumentID string  `json:"document_id"`
	RecordID   string  `json:"record_id"`
	Filename   string  `json:"filename"`
	Page       int     `json:"page"`
	Excerpt    string  `json:"excerpt"`
	Similarity float64 `json:"similarity"`
}

// Synthesizer assembles a bounded context from hits and asks the model.
type Synthesizer struct {
	chat   llm.ChatModel
	model  string
	budget int // max characters of assembled context
}

// NewSynthesizer creates a Synthesizer. budget <= 0 selects a default.
func NewSynthesizer(chat llm.ChatModel, model string, budget int) *Synthesizer {
	if budget <= 0 {
		budget = 12000
	}
	return &Synthesizer{chat: chat, model: model, budget: budget}
}

// Synthesize builds the context from the hits, best first, dropping the
// lowest-similarity hits when the budget is exceeded, and generates the
// answer. With zero hits it still generates, telling the model no relevant
// content was found, and returns no sources.
func (s *Synthesizer) Synthesize(ctx context.Context, question string, hits []retrieval.Hit) (string, []Source, error) {
	included, contextText := s.assembleContext(hits)

	prompt := s.buildPrompt(question, contextText)
	text, err := s.chat.Complete(ctx, s.model, []llm.ContentPart{llm.TextPart(prompt)})
	if err != nil {
		return "", nil, fmt.Errorf("generate answer: %w", err)
	}

	sources := make([]Source, 0, len(included))
	for _, hit := range included {
		sources = append(sources, Source{
			DocumentID: hit.Candidate.DocumentID.String(),
			RecordID:   hit.Candidate.RecordID,
			Filename:   hit.Candidate.Filename,
			Page:       hit.Candidate.Page,
			Excerpt:    excerpt(hit.Candidate.Content),
			Similarity: hit.Similarity,
		})
	}

	return strings.TrimSpace(text), sources, nil
}

// assembleContext keeps hits in ranked order until the character budget is
// reached. The top hit is always included, truncated if it alone exceeds
// the budget.
func (s *Synthesizer) assembleContext(hits []retrieval.Hit) ([]retrieval.Hit, string) {
	var (
		included []retrieval.Hit
		sb       strings.Builder
	)

	for _, hit := range hits {
		snippet := fmt.Sprintf("[%s, page %d]\n%s", hit.Candidate.Filename, hit.Candidate.Page, hit.Candidate.Content)

		if sb.Len() == 0 && len(snippet) > s.budget {
			snippet = snippet[:s.budget]
			sb.WriteString(snippet)
			included = append(included, hit)
			break
		}

		sep := 0
		if sb.Len() > 0 {
			sep = 2
		}
		if sb.Len()+sep+len(snippet) > s.budget {
			break
		}
		if sep > 0 {
			sb.WriteString("\n\n")
		}
		sb.WriteString(snippet)
		included = append(included, hit)
	}

	return included, sb.String()
}

func (s *Synthesizer) buildPrompt(question, contextText string) string {
	if contextText == "" {
		return fmt.Sprintf(`You are a document assistant. No relevant content was found in the ingested documents for the question below. Say so clearly, and do not invent document contents.

Question: %s`, question)
	}

	return fmt.Sprintf(`You are a document assistant. Answer the question using ONLY the document excerpts below. Each excerpt is labeled with its source file and page; mention the source when it supports your answer. If the excerpts do not contain the answer, say so.

Excerpts:
%s

Question: %s`, contextText, question)
}

func excerpt(content string) string {
	runes := []rune(content)
	if len(runes) <= excerptRunes {
		return content
	}
	return string(runes[:excerptRunes]) + "..."
}
