package validation

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"

	"github.com/kirillkom/autofund-client/internal/core/domain"
)

var pdfMagic = []byte("%PDF-")

// PDFValidator rejects documents the backend would refuse before any
// bytes are sent.
type PDFValidator struct {
	maxBytes int64
	strict   bool
}

func NewPDFValidator(maxMB int, strict bool) *PDFValidator {
	if maxMB <= 0 {
		maxMB = 10
	}
	return &PDFValidator{maxBytes: int64(maxMB) << 20, strict: strict}
}

func (v *PDFValidator) MaxBytes() int64 {
	return v.maxBytes
}

func (v *PDFValidator) ValidateUpload(req domain.UploadRequest) error {
	if !strings.EqualFold(filepath.Ext(req.Filename), ".pdf") {
		return domain.NewFailure(domain.CodeInvalidFileType, 0, "only PDF documents are accepted", false)
	}
	if len(req.Content) == 0 {
		return domain.NewFailure(domain.CodeValidation, 0, "document is empty", false)
	}
	if int64(len(req.Content)) > v.maxBytes {
		return domain.NewFailure(domain.CodeFileTooLarge, 0,
			fmt.Sprintf("document exceeds %d MB", v.maxBytes>>20), false)
	}
	if !bytes.HasPrefix(req.Content, pdfMagic) {
		return domain.NewFailure(domain.CodeInvalidFileType, 0, "document is not a PDF", false)
	}
	if v.strict {
		pages, err := countPages(req.Content)
		if err != nil {
			return domain.NewFailure(domain.CodeInvalidFileType, 0, "document cannot be read as PDF", false).WithCause(err)
		}
		if pages < 1 {
			return domain.NewFailure(domain.CodeInvalidFileType, 0, "document has no pages", false)
		}
	}
	return nil
}

// countPages opens the document with the pdf reader, which panics on some
// malformed inputs.
func countPages(content []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("read pdf: %v", r)
		}
	}()
	reader, err := pdf.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return 0, fmt.Errorf("read pdf: %w", err)
	}
	return reader.NumPage(), nil
}
