package conduit

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/docvellum/vellum/abi"
)

func TestRunClassifiesPDF(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	content := append([]byte("%PDF-1.4\n"), bytes.Repeat([]byte{0}, 32)...)
	if err := os.WriteFile(path, content, 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := Run(path, true)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Kind != abi.ContentPDF {
		t.Fatalf("Kind = %v, want pdf", result.Kind)
	}
	if result.Validation != abi.ValidationOK {
		t.Fatalf("Validation = %v, want ok", result.Validation)
	}
	if result.GetSHA256() == "" {
		t.Fatal("expected a content hash to be computed")
	}
}

func TestRunRejectsTooSmall(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.pdf")
	if err := os.WriteFile(path, []byte("%PD"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := Run(path, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Validation != abi.ValidationTooSmall && result.Validation != abi.ValidationBadMagic {
		t.Fatalf("Validation = %v, want too_small or bad_magic for a truncated header", result.Validation)
	}
}

func TestRunClassifiesUnknown(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "doc.bin")
	if err := os.WriteFile(path, bytes.Repeat([]byte{0xFF, 0x00, 0x13, 0x37}, 8), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	result, err := Run(path, false)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.Kind != abi.ContentUnknown {
		t.Fatalf("Kind = %v, want unknown", result.Kind)
	}
	if result.Validation != abi.ValidationBadMagic {
		t.Fatalf("Validation = %v, want bad_magic", result.Validation)
	}
}

func TestRunMissingFile(t *testing.T) {
	_, err := Run("/nonexistent/path/doc.pdf", false)
	if err == nil {
		t.Fatal("expected an error for a missing file")
	}
}

func TestHashFileDeterministic(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	if err := os.WriteFile(path, []byte("hello world"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	h1, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	h2, err := HashFile(path)
	if err != nil {
		t.Fatalf("HashFile: %v", err)
	}
	if h1 != h2 {
		t.Fatalf("HashFile not deterministic: %q vs %q", h1, h2)
	}
	if len(h1) != 64 {
		t.Fatalf("HashFile length = %d, want 64", len(h1))
	}
}
