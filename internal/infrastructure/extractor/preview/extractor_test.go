package preview

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/kirillkom/email-analyzer/internal/core/domain"
)

type storageFake struct {
	objects map[string][]byte
}

func (f storageFake) Save(context.Context, string, io.Reader) (int64, error) { return 0, nil }

func (f storageFake) Open(_ context.Context, key string) (io.ReadCloser, error) {
	return io.NopCloser(bytes.NewReader(f.objects[key])), nil
}

func (f storageFake) Delete(context.Context, string) error { return nil }

func TestPreviewPlainText(t *testing.T) {
	storage := storageFake{objects: map[string][]byte{
		"k": []byte("Olá,\n\n  preciso   de ajuda com o sistema.\r\n"),
	}}
	extractor := NewExtractor(storage, 100)

	got, err := extractor.Preview(context.Background(), domain.FileRef{Key: "k", Name: "mail.txt"})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if got != "Olá, preciso de ajuda com o sistema." {
		t.Fatalf("unexpected preview %q", got)
	}
}

func TestPreviewTruncatesByRunes(t *testing.T) {
	storage := storageFake{objects: map[string][]byte{
		"k": []byte(strings.Repeat("ção ", 50)),
	}}
	extractor := NewExtractor(storage, 10)

	got, err := extractor.Preview(context.Background(), domain.FileRef{Key: "k", Name: "mail.txt"})
	if err != nil {
		t.Fatalf("Preview() error = %v", err)
	}
	if got != "ção ção çã…" {
		t.Fatalf("unexpected preview %q", got)
	}
}

func TestPreviewRejectsBinary(t *testing.T) {
	storage := storageFake{objects: map[string][]byte{
		"k": {0xff, 0xfe, 0x00, 0x81},
	}}
	extractor := NewExtractor(storage, 50)

	if _, err := extractor.Preview(context.Background(), domain.FileRef{Key: "k", Name: "mail.txt"}); err == nil {
		t.Fatalf("expected error for binary content")
	}
}

func TestPreviewMalformedPDF(t *testing.T) {
	storage := storageFake{objects: map[string][]byte{
		"k": []byte("%PDF-1.4 definitely not a pdf"),
	}}
	extractor := NewExtractor(storage, 50)

	if _, err := extractor.Preview(context.Background(), domain.FileRef{Key: "k", Name: "mail.PDF"}); err == nil {
		t.Fatalf("expected error for malformed pdf")
	}
}
