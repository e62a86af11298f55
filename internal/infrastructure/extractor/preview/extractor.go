package preview

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
	"github.com/kirillkom/email-analyzer/internal/core/ports"
)

const defaultMaxChars = 280

// Extractor builds a short plain-text excerpt of a spooled file so the form
// can show what was picked. It never blocks the selection itself.
type Extractor struct {
	storage  ports.ObjectStorage
	maxChars int
}

func NewExtractor(storage ports.ObjectStorage, maxChars int) *Extractor {
	if maxChars <= 0 {
		maxChars = defaultMaxChars
	}
	return &Extractor{storage: storage, maxChars: maxChars}
}

func (e *Extractor) Preview(ctx context.Context, ref domain.FileRef) (string, error) {
	reader, err := e.storage.Open(ctx, ref.Key)
	if err != nil {
		return "", fmt.Errorf("open selected file: %w", err)
	}
	defer reader.Close()

	var text string
	if strings.EqualFold(filepath.Ext(ref.Name), ".pdf") {
		text, err = e.pdfText(reader)
	} else {
		text, err = e.plainText(reader, ref.Name)
	}
	if err != nil {
		return "", err
	}
	return truncate(collapseSpaces(text), e.maxChars), nil
}

func (e *Extractor) plainText(reader io.Reader, name string) (string, error) {
	limit := int64(e.maxChars * utf8.UTFMax)
	raw, err := io.ReadAll(io.LimitReader(reader, limit))
	if err != nil {
		return "", fmt.Errorf("read selected file: %w", err)
	}
	if int64(len(raw)) == limit {
		raw = trimPartialRune(raw)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("unsupported binary format: %s", name)
	}
	return string(raw), nil
}

func (e *Extractor) pdfText(reader io.Reader) (text string, err error) {
	raw, err := io.ReadAll(reader)
	if err != nil {
		return "", fmt.Errorf("read selected file: %w", err)
	}

	// The pdf package panics on some malformed inputs.
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("parse pdf: %v", r)
		}
	}()

	doc, err := pdf.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		return "", fmt.Errorf("parse pdf: %w", err)
	}
	plain, err := doc.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	limit := int64(e.maxChars * utf8.UTFMax)
	out, err := io.ReadAll(io.LimitReader(plain, limit))
	if err != nil {
		return "", fmt.Errorf("extract pdf text: %w", err)
	}
	return string(trimPartialRune(out)), nil
}

func trimPartialRune(raw []byte) []byte {
	for i := 0; i < utf8.UTFMax-1 && len(raw) > 0 && !utf8.Valid(raw); i++ {
		raw = raw[:len(raw)-1]
	}
	return raw
}

func collapseSpaces(text string) string {
	return strings.Join(strings.Fields(text), " ")
}

func truncate(text string, maxChars int) string {
	if utf8.RuneCountInString(text) <= maxChars {
		return text
	}
	runes := []rune(text)
	return strings.TrimSpace(string(runes[:maxChars])) + "…"
}
