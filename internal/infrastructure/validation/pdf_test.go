package validation

import (
	"bytes"
	"errors"
	"fmt"
	"testing"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

// minimalPDF builds a one-page document with a correct xref table.
func minimalPDF() []byte {
	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] >>",
	}
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

func request(name string, content []byte) domain.UploadRequest {
	return domain.UploadRequest{Filename: name, Content: content}
}

func TestPDFValidatorRejectsWrongType(t *testing.T) {
	v := NewPDFValidator(10, false)

	err := v.ValidateUpload(request("ies.docx", minimalPDF()))
	if failure := domain.AsFailure(err); failure == nil || failure.Code != domain.CodeInvalidFileType {
		t.Fatalf("expected invalid file type for extension, got %v", err)
	}

	err = v.ValidateUpload(request("ies.pdf", []byte("PK\x03\x04 zip content")))
	if failure := domain.AsFailure(err); failure == nil || failure.Code != domain.CodeInvalidFileType {
		t.Fatalf("expected invalid file type for magic bytes, got %v", err)
	}
}

func TestPDFValidatorEnforcesSizeLimit(t *testing.T) {
	v := NewPDFValidator(1, false)
	content := append([]byte("%PDF-1.7\n"), make([]byte, 1<<20)...)

	err := v.ValidateUpload(request("IES.PDF", content))
	failure := domain.AsFailure(err)
	if failure == nil || failure.Code != domain.CodeFileTooLarge || failure.Retryable {
		t.Fatalf("expected non-retryable file too large, got %v", err)
	}
	if !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input kind")
	}
	if v.MaxBytes() != 1<<20 {
		t.Fatalf("unexpected max bytes %d", v.MaxBytes())
	}
}

func TestPDFValidatorStrictModeReadsPages(t *testing.T) {
	v := NewPDFValidator(10, true)

	if err := v.ValidateUpload(request("ies.pdf", minimalPDF())); err != nil {
		t.Fatalf("expected valid one-page pdf, got %v", err)
	}

	err := v.ValidateUpload(request("ies.pdf", []byte("%PDF-1.4\ngarbage without xref")))
	if failure := domain.AsFailure(err); failure == nil || failure.Code != domain.CodeInvalidFileType {
		t.Fatalf("expected unreadable pdf to be rejected, got %v", err)
	}

	if err := NewPDFValidator(10, false).ValidateUpload(request("ies.pdf", []byte("%PDF-1.4\ngarbage"))); err != nil {
		t.Fatalf("lenient mode only checks magic bytes, got %v", err)
	}
}
