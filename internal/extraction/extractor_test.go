package extraction

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type mockOCR struct {
	imageTextFunc func(ctx context.Context, imageData []byte, contentType string) (string, error)
}

func (m *mockOCR) ImageText(ctx context.Context, imageData []byte, contentType string) (string, error) {
	if m.imageTextFunc != nil {
		return m.imageTextFunc(ctx, imageData, contentType)
	}
	return "ocr text", nil
}

func TestAcceptedContentType(t *testing.T) {
	tests := []struct {
		contentType string
		want        bool
	}{
		{"application/pdf", true},
		{"image/jpeg", true},
		{"image/png", true},
		{"image/gif", false},
		{"text/plain", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.contentType, func(t *testing.T) {
			assert.Equal(t, tt.want, AcceptedContentType(tt.contentType))
		})
	}
}

func TestExtractor_Text_ImagesGoThroughOCR(t *testing.T) {
	var gotContentType string
	ocr := &mockOCR{imageTextFunc: func(ctx context.Context, imageData []byte, contentType string) (string, error) {
		gotContentType = contentType
		return "Receipt total: 42.00", nil
	}}
	e := NewExtractor(ocr, zap.NewNop())

	text := e.Text(context.Background(), []byte{0x89, 0x50, 0x4e, 0x47}, ContentTypePNG)

	assert.Equal(t, "Receipt total: 42.00", text)
	assert.Equal(t, ContentTypePNG, gotContentType)
}

func TestExtractor_Text_OCRFailureYieldsEmpty(t *testing.T) {
	ocr := &mockOCR{imageTextFunc: func(ctx context.Context, imageData []byte, contentType string) (string, error) {
		return "", errors.New("vision unavailable")
	}}
	e := NewExtractor(ocr, zap.NewNop())

	assert.Empty(t, e.Text(context.Background(), []byte("img"), ContentTypeJPEG))
}

func TestExtractor_Text_UnknownTypeYieldsEmpty(t *testing.T) {
	e := NewExtractor(&mockOCR{}, zap.NewNop())

	assert.Empty(t, e.Text(context.Background(), []byte("hello"), "text/plain"))
}

func TestExtractor_Text_CorruptPDFYieldsEmpty(t *testing.T) {
	e := NewExtractor(&mockOCR{}, zap.NewNop())

	assert.Empty(t, e.Text(context.Background(), []byte("not a pdf"), ContentTypePDF))
}
