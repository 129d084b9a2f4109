package document

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"
	"github.com/skip2/go-qrcode"
)

//go:generate go run go.uber.org/mock/mockgen@v0.4.0 -source=renderer.go -destination=../mocks/document.go -package=mocks

// Renderer turns a finalized record into a downloadable file.
type Renderer interface {
	Render(ctx context.Context, rec Record) (*File, error)
}

type Field struct {
	Label string
	Value string
}

type Table struct {
	Header []string
	Rows   [][]string
}

// Record is the snapshot a renderer receives. It carries presentation-ready
// strings only.
type Record struct {
	Name     string // file name without extension
	Title    string
	Subtitle string
	Fields   []Field
	Table    *Table
	Footer   string
	// Verify, when set, is printed as a QR code next to the footer so the
	// document can be checked against the clinic's records.
	Verify string
}

type File struct {
	Name        string
	ContentType string
	Data        []byte
}

type PDFRenderer struct {
	clinicName string
	now        func() time.Time
}

func NewPDFRenderer(clinicName string) *PDFRenderer {
	return &PDFRenderer{clinicName: clinicName, now: time.Now}
}

func (r *PDFRenderer) Render(ctx context.Context, rec Record) (*File, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if rec.Title == "" {
		return nil, fmt.Errorf("record has no title")
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetAutoPageBreak(true, 15)
	pdf.SetTitle(rec.Title, true)
	pdf.AddPage()
	tr := pdf.UnicodeTranslatorFromDescriptor("")

	pdf.SetFont("Helvetica", "B", 14)
	pdf.CellFormat(0, 10, tr(r.clinicName), "", 1, "C", false, 0, "")
	pdf.SetFont("Helvetica", "B", 12)
	pdf.CellFormat(0, 8, tr(rec.Title), "", 1, "C", false, 0, "")
	if rec.Subtitle != "" {
		pdf.SetFont("Helvetica", "", 10)
		pdf.CellFormat(0, 6, tr(rec.Subtitle), "", 1, "C", false, 0, "")
	}
	pdf.Ln(4)

	for _, f := range rec.Fields {
		pdf.SetFont("Helvetica", "B", 10)
		pdf.CellFormat(50, 8, tr(f.Label), "1", 0, "", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		pdf.MultiCell(0, 8, tr(f.Value), "1", "", false)
	}

	if rec.Table != nil && len(rec.Table.Header) > 0 {
		pdf.Ln(4)
		width := 180.0 / float64(len(rec.Table.Header))
		pdf.SetFont("Helvetica", "B", 10)
		pdf.SetFillColor(240, 240, 240)
		for _, h := range rec.Table.Header {
			pdf.CellFormat(width, 8, tr(h), "1", 0, "", true, 0, "")
		}
		pdf.Ln(-1)
		pdf.SetFont("Helvetica", "", 10)
		for _, row := range rec.Table.Rows {
			for i := range rec.Table.Header {
				cell := ""
				if i < len(row) {
					cell = row[i]
				}
				pdf.CellFormat(width, 8, tr(cell), "1", 0, "", false, 0, "")
			}
			pdf.Ln(-1)
		}
	}

	pdf.Ln(8)
	if rec.Verify != "" {
		if err := drawQR(pdf, rec.Verify); err != nil {
			return nil, err
		}
	}
	pdf.SetFont("Helvetica", "I", 9)
	if rec.Footer != "" {
		pdf.MultiCell(0, 5, tr(rec.Footer), "", "L", false)
	}
	pdf.CellFormat(0, 6, fmt.Sprintf("Generated %s", r.now().UTC().Format(time.RFC3339)), "", 1, "R", false, 0, "")

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("write pdf: %w", err)
	}

	return &File{
		Name:        fileName(rec.Name),
		ContentType: "application/pdf",
		Data:        buf.Bytes(),
	}, nil
}

func drawQR(pdf *fpdf.Fpdf, content string) error {
	png, err := qrcode.Encode(content, qrcode.Medium, 256)
	if err != nil {
		return fmt.Errorf("encode qr: %w", err)
	}

	opts := fpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("verify", opts, bytes.NewReader(png))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("register qr: %w", err)
	}

	y := pdf.GetY()
	pdf.ImageOptions("verify", 15, y, 30, 30, false, opts, 0, "")
	pdf.SetY(y + 32)
	return nil
}

func fileName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		name = "document"
	}
	name = strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		}
		return '_'
	}, name)
	return name + ".pdf"
}
