package extract

import (
	"context"
	"fmt"

	"github.com/paperlens-ai/paperlens/internal/llm"
	"github.com/paperlens-ai/paperlens/internal/pdf"
)

// VisionModel produces raw structured-extraction output for a batch of
// rendered pages.
type VisionModel interface {
	ExtractBatch(ctx context.Context, pages []pdf.Page) (string, error)
}

// VisionClient adapts the chat completions client to batch extraction by
// attaching page JPEGs as image parts.
type VisionClient struct {
	chat  llm.ChatModel
	model string
}

var _ VisionModel = (*VisionClient)(nil)

// NewVisionClient creates a vision extraction client.
func NewVisionClient(chat llm.ChatModel, model string) *VisionClient {
	return &VisionClient{chat: chat, model: model}
}

// ExtractBatch sends the prompt plus one image part per page.
func (v *VisionClient) ExtractBatch(ctx context.Context, pages []pdf.Page) (string, error) {
	if len(pages) == 0 {
		return "", fmt.Errorf("no pages in batch")
	}

	parts := make([]llm.ContentPart, 0, len(pages)+1)
	parts = append(parts, llm.TextPart(extractionPrompt(len(pages))))
	for _, page := range pages {
		parts = append(parts, llm.JPEGPart(page.JPEG))
	}

	return v.chat.Complete(ctx, v.model, parts)
}
