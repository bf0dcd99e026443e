// Package pdf validates uploaded PDFs and renders pages to JPEG images
// for the vision model.
package pdf

import (
	"bytes"
	"context"
	"fmt"
	"image/jpeg"
	"path/filepath"
	"strings"

	"github.com/gen2brain/go-fitz"
)

var pdfMagic = []byte("%PDF-")

// Page holds a single rendered page.
type Page struct {
	Number int // 1-based absolute page number
	JPEG   []byte
	Width  int
	Height int
}

// Validate checks that the upload looks like a PDF before opening it.
func Validate(filename string, data []byte) error {
	if strings.TrimSpace(filename) == "" {
		return fmt.Errorf("filename is empty")
	}

	if ext := strings.ToLower(filepath.Ext(filename)); ext != ".pdf" {
		return fmt.Errorf("unsupported file type %q, only .pdf is accepted", ext)
	}

	if len(data) == 0 {
		return fmt.Errorf("uploaded file is empty")
	}

	if !bytes.HasPrefix(data, pdfMagic) {
		return fmt.Errorf("file does not start with a PDF header")
	}

	return nil
}

// Document wraps an open PDF.
type Document struct {
	doc   *fitz.Document
	pages int
}

// Open parses a PDF from memory.
func Open(data []byte) (*Document, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	pages := doc.NumPage()
	if pages == 0 {
		doc.Close()
		return nil, fmt.Errorf("pdf has no pages")
	}

	return &Document{doc: doc, pages: pages}, nil
}

// PageCount returns the number of pages.
func (d *Document) PageCount() int {
	return d.pages
}

// RenderRange renders pages start..end (1-based, inclusive) to JPEG.
func (d *Document) RenderRange(ctx context.Context, start, end, quality int) ([]Page, error) {
	if start < 1 || end > d.pages || start > end {
		return nil, fmt.Errorf("page range %d-%d out of bounds (1-%d)", start, end, d.pages)
	}
	if quality < 1 || quality > 100 {
		quality = jpeg.DefaultQuality
	}

	pages := make([]Page, 0, end-start+1)
	for num := start; num <= end; num++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		img, err := d.doc.Image(num - 1)
		if err != nil {
			return nil, fmt.Errorf("render page %d: %w", num, err)
		}

		var buf bytes.Buffer
		if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: quality}); err != nil {
			return nil, fmt.Errorf("encode page %d: %w", num, err)
		}

		bounds := img.Bounds()
		pages = append(pages, Page{
			Number: num,
			JPEG:   buf.Bytes(),
			Width:  bounds.Dx(),
			Height: bounds.Dy(),
		})
	}

	return pages, nil
}

// Close releases the underlying document.
func (d *Document) Close() {
	if d.doc != nil {
		d.doc.Close()
		d.doc = nil
	}
}
