package internal

import (
	"bytes"
	"fmt"
	"io"
	"path/filepath"

	"github.com/ledongthuc/pdf"
	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
	pdftypes "github.com/pdfcpu/pdfcpu/pkg/pdfcpu/types"
)

// ValidatePDF runs a structural check on the file without modifying it.
func ValidatePDF(path string) error {
	if err := api.ValidateFile(path, api.LoadConfiguration()); err != nil {
		return fmt.Errorf("invalid pdf %s: %w", filepath.Base(path), err)
	}
	return nil
}

// CropHeaderFooter writes a copy of the PDF at in to out with the top and
// bottom bands removed. Sizes are in points (1 pt = 1/72 inch).
func CropHeaderFooter(in, out string, top, bottom float64) error {
	cropStr := fmt.Sprintf("%.2f 0 %.2f 0", top, bottom)
	box, err := model.ParseBox(cropStr, pdftypes.POINTS)
	if err != nil {
		return fmt.Errorf("failed to parse crop box: %w", err)
	}
	if err := api.CropFile(in, out, []string{"1-"}, box, api.LoadConfiguration()); err != nil {
		return fmt.Errorf("failed to crop pdf: %w", err)
	}
	return nil
}

// ExtractPDFText returns the plain text of every page concatenated.
func ExtractPDFText(path string) (string, error) {
	f, rdr, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open pdf: %w", err)
	}
	defer f.Close()

	b, err := rdr.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("failed to read pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, b); err != nil {
		return "", fmt.Errorf("failed to buffer pdf text: %w", err)
	}
	return buf.String(), nil
}
