package ai

import (
	"context"
	"encoding/base64"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

// VisionOCR reads text out of document images using the Vision API.
type VisionOCR struct {
	client CompletionClient
	model  string
	logger *zap.Logger
}

// NewVisionOCR creates an OCR reader around an existing completion client.
func NewVisionOCR(client CompletionClient, model string, logger *zap.Logger) *VisionOCR {
	return &VisionOCR{
		client: client,
		model:  model,
		logger: logger,
	}
}

// ImageText transcribes the text content of a single document image.
// contentType must be image/jpeg or image/png.
func (v *VisionOCR) ImageText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	base64Img := base64.StdEncoding.EncodeToString(imageData)

	resp, err := v.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       v.model,
		MaxTokens:   4096,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: "You are an OCR engine for business documents. Transcribe all visible text exactly as it appears, preserving line structure. Output plain text only, no commentary.",
			},
			{
				Role: openai.ChatMessageRoleUser,
				MultiContent: []openai.ChatMessagePart{
					{
						Type: openai.ChatMessagePartTypeText,
						Text: "Transcribe every piece of text in this document image.",
					},
					{
						Type: openai.ChatMessagePartTypeImageURL,
						ImageURL: &openai.ChatMessageImageURL{
							URL:    fmt.Sprintf("data:%s;base64,%s", contentType, base64Img),
							Detail: openai.ImageURLDetailHigh,
						},
					},
				},
			},
		},
	})
	if err != nil {
		v.logger.Warn("Vision OCR call failed", zap.Error(err))
		return "", fmt.Errorf("vision OCR failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from vision OCR")
	}

	return resp.Choices[0].Message.Content, nil
}
