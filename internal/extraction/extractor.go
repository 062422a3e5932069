package extraction

import (
	"context"
	"strings"

	"github.com/gen2brain/go-fitz"
	"go.uber.org/zap"
)

// Accepted document content types.
const (
	ContentTypePDF  = "application/pdf"
	ContentTypeJPEG = "image/jpeg"
	ContentTypePNG  = "image/png"
)

// AcceptedContentType reports whether ct is an uploadable document type.
func AcceptedContentType(ct string) bool {
	switch ct {
	case ContentTypePDF, ContentTypeJPEG, ContentTypePNG:
		return true
	}
	return false
}

// ImageOCR transcribes text out of a document image.
type ImageOCR interface {
	ImageText(ctx context.Context, imageData []byte, contentType string) (string, error)
}

// Extractor turns a document blob into plain text. It dispatches on content
// type: PDFs go through mupdf text extraction, images through OCR, and any
// other type yields empty text. Extraction failures also yield empty text;
// they are logged and never surfaced to the workflow.
type Extractor struct {
	ocr    ImageOCR
	logger *zap.Logger
}

// NewExtractor creates a text extractor.
func NewExtractor(ocr ImageOCR, logger *zap.Logger) *Extractor {
	return &Extractor{
		ocr:    ocr,
		logger: logger,
	}
}

// Text extracts text from a document blob. Always returns a string, possibly
// empty; never an error.
func (e *Extractor) Text(ctx context.Context, data []byte, contentType string) string {
	switch contentType {
	case ContentTypePDF:
		return e.pdfText(data)
	case ContentTypeJPEG, ContentTypePNG:
		return e.imageText(ctx, data, contentType)
	default:
		e.logger.Debug("Unsupported document type, skipping extraction",
			zap.String("content_type", contentType))
		return ""
	}
}

func (e *Extractor) pdfText(data []byte) string {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		e.logger.Warn("Failed to open PDF for text extraction", zap.Error(err))
		return ""
	}
	defer doc.Close()

	var sb strings.Builder
	for page := 0; page < doc.NumPage(); page++ {
		text, err := doc.Text(page)
		if err != nil {
			e.logger.Warn("Failed to extract text from PDF page",
				zap.Int("page", page),
				zap.Error(err))
			continue
		}
		sb.WriteString(text)
	}

	return strings.TrimSpace(sb.String())
}

func (e *Extractor) imageText(ctx context.Context, data []byte, contentType string) string {
	text, err := e.ocr.ImageText(ctx, data, contentType)
	if err != nil {
		e.logger.Warn("Image OCR failed", zap.Error(err))
		return ""
	}
	return strings.TrimSpace(text)
}
