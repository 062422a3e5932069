package ai

import (
	"context"
	"encoding/json"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/saveapenny/procurement-workflow/internal/models"
)

// CompletionClient is the slice of the OpenAI client the structurer needs.
// *openai.Client satisfies it; tests inject a deterministic double.
type CompletionClient interface {
	CreateChatCompletion(ctx context.Context, req openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// Config holds model parameters and the buyer identity stamped onto
// generated purchase orders.
type Config struct {
	Model           string
	Temperature     float32
	MaxTokens       int
	BuyerName       string
	BuyerContact    string
	DeliveryAddress string
}

// Structurer turns extracted document text into schema-conformant metadata
// via the AI structuring capability. Every call returns either a structured
// object or a failure-tagged object of the same shape; it never returns an
// error to the workflow. Output is not deterministic across identical
// inputs, so callers must not assume idempotence or auto-retry.
type Structurer struct {
	client CompletionClient
	cfg    Config
	logger *zap.Logger
}

// NewStructurer creates a structurer around an explicitly constructed client.
func NewStructurer(client CompletionClient, cfg Config, logger *zap.Logger) *Structurer {
	return &Structurer{
		client: client,
		cfg:    cfg,
		logger: logger,
	}
}

const rawTextLimit = 500

func rawPrefix(text string) string {
	if len(text) > rawTextLimit {
		return text[:rawTextLimit]
	}
	return text
}

// StructureProforma extracts vendor, line items, totals and terms from
// proforma text.
func (s *Structurer) StructureProforma(ctx context.Context, text string) *models.ProformaMetadata {
	content, err := s.complete(ctx, proformaSystemPrompt, buildProformaPrompt(text))
	if err != nil {
		s.logger.Warn("Proforma structuring failed", zap.Error(err))
		return &models.ProformaMetadata{Extracted: false, Error: err.Error(), RawText: rawPrefix(text)}
	}

	var meta models.ProformaMetadata
	if err := json.Unmarshal([]byte(content), &meta); err != nil {
		s.logger.Warn("Proforma structuring returned malformed JSON",
			zap.Error(err),
			zap.Int("content_length", len(content)))
		return &models.ProformaMetadata{Extracted: false, Error: fmt.Sprintf("malformed structuring response: %v", err), RawText: rawPrefix(text)}
	}

	meta.Extracted = true
	meta.Error = ""
	meta.RawText = rawPrefix(text)
	return &meta
}

// GeneratePO produces purchase order metadata from the approved request
// snapshot and whatever proforma metadata exists, possibly failure-tagged.
func (s *Structurer) GeneratePO(ctx context.Context, snapshot models.RequestSnapshot, proforma *models.ProformaMetadata) *models.POMetadata {
	prompt, err := buildPOPrompt(snapshot, proforma, s.cfg.BuyerName, s.cfg.BuyerContact, s.cfg.DeliveryAddress)
	if err != nil {
		return &models.POMetadata{Generated: false, Error: err.Error()}
	}

	content, err := s.complete(ctx, poSystemPrompt, prompt)
	if err != nil {
		s.logger.Warn("PO generation failed", zap.Error(err))
		return &models.POMetadata{Generated: false, Error: err.Error()}
	}

	var po models.POMetadata
	if err := json.Unmarshal([]byte(content), &po); err != nil {
		s.logger.Warn("PO generation returned malformed JSON", zap.Error(err))
		return &models.POMetadata{Generated: false, Error: fmt.Sprintf("malformed structuring response: %v", err)}
	}

	po.Generated = true
	po.Error = ""
	return &po
}

// ValidateReceipt compares extracted receipt text against the generated
// purchase order and returns a structured verdict.
func (s *Structurer) ValidateReceipt(ctx context.Context, receiptText string, po *models.POMetadata) *models.ReceiptValidation {
	prompt, err := buildReceiptValidationPrompt(receiptText, po)
	if err != nil {
		return &models.ReceiptValidation{Validated: false, Error: err.Error(), ReceiptText: rawPrefix(receiptText)}
	}

	content, err := s.complete(ctx, receiptSystemPrompt, prompt)
	if err != nil {
		s.logger.Warn("Receipt validation failed", zap.Error(err))
		return &models.ReceiptValidation{Validated: false, Error: err.Error(), ReceiptText: rawPrefix(receiptText)}
	}

	var result models.ReceiptValidation
	if err := json.Unmarshal([]byte(content), &result); err != nil {
		s.logger.Warn("Receipt validation returned malformed JSON", zap.Error(err))
		return &models.ReceiptValidation{Validated: false, Error: fmt.Sprintf("malformed structuring response: %v", err), ReceiptText: rawPrefix(receiptText)}
	}

	result.Validated = true
	result.Error = ""
	result.ReceiptText = rawPrefix(receiptText)
	return &result
}

// complete runs one chat completion in JSON mode and returns the raw content.
func (s *Structurer) complete(ctx context.Context, system, user string) (string, error) {
	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       s.cfg.Model,
		Temperature: s.cfg.Temperature,
		MaxTokens:   s.cfg.MaxTokens,
		Messages: []openai.ChatCompletionMessage{
			{
				Role:    openai.ChatMessageRoleSystem,
				Content: system,
			},
			{
				Role:    openai.ChatMessageRoleUser,
				Content: user,
			},
		},
		ResponseFormat: &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		},
	})
	if err != nil {
		return "", fmt.Errorf("structuring call failed: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("no response from structuring capability")
	}
	return resp.Choices[0].Message.Content, nil
}
