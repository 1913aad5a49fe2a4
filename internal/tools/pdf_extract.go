package tools

import (
	"bytes"
	"fmt"
	"strings"

	pdfx "github.com/ledongthuc/pdf"
)

// pdfText extracts plain text from the first maxPages pages of a PDF.
func pdfText(buf []byte, maxPages int) (string, error) {
	r, err := pdfx.NewReader(bytes.NewReader(buf), int64(len(buf)))
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	total := r.NumPage()
	pages := total
	if maxPages > 0 && pages > maxPages {
		pages = maxPages
	}
	var out strings.Builder
	for i := 1; i <= pages; i++ {
		p := r.Page(i)
		if p.V.IsNull() {
			continue
		}
		txt, err := p.GetPlainText(nil)
		if err != nil {
			continue
		}
		if t := strings.TrimSpace(txt); t != "" {
			fmt.Fprintf(&out, "--- Page %d ---\n%s\n\n", i, t)
		}
	}
	if pages < total {
		fmt.Fprintf(&out, "(%d of %d pages shown)", pages, total)
	}
	return strings.TrimSpace(out.String()), nil
}
