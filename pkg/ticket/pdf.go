package ticket

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/phpdave11/gofpdf"
)

// Document is the data printed on a ticket
type Document struct {
	BookingReference string
	PassengerName    string
	PassengerPhone   string
	AgencyName       string
	Route            string
	Departure        string
	PickupPoint      string
	DropPoint        string
	NumberOfSeats    int
	TotalAmount      float64
	Currency         string
	QRPayload        string
}

// PDFRenderer writes ticket documents into a directory
type PDFRenderer struct {
	outputDir string
}

// NewPDFRenderer creates a renderer writing into outputDir
func NewPDFRenderer(outputDir string) *PDFRenderer {
	return &PDFRenderer{outputDir: outputDir}
}

// Render writes the document to <outputDir>/TICKET_<reference>.pdf and returns the path
func (r *PDFRenderer) Render(doc Document) (string, error) {
	content, err := BuildPDF(doc)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create ticket directory: %w", err)
	}

	path := filepath.Join(r.outputDir, "TICKET_"+safeFilenamePart(doc.BookingReference)+".pdf")
	if err := os.WriteFile(path, content, 0o644); err != nil {
		return "", fmt.Errorf("failed to write ticket: %w", err)
	}
	return path, nil
}

// BuildPDF lays out a single-page A4 ticket
func BuildPDF(doc Document) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("E-Ticket "+doc.BookingReference, false)
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, "E-TICKET")
	pdf.Ln(12)

	if doc.AgencyName != "" {
		pdf.SetFont("Helvetica", "B", 13)
		pdf.Cell(0, 8, latin1(doc.AgencyName))
		pdf.Ln(10)
	}

	pdf.SetFont("Helvetica", "", 12)
	lines := []string{
		fmt.Sprintf("Booking reference : %s", doc.BookingReference),
		fmt.Sprintf("Passenger         : %s", safe(doc.PassengerName)),
		fmt.Sprintf("Phone             : %s", safe(doc.PassengerPhone)),
		fmt.Sprintf("Route             : %s", safe(doc.Route)),
		fmt.Sprintf("Departure         : %s", safe(doc.Departure)),
		fmt.Sprintf("Pickup            : %s", safe(doc.PickupPoint)),
		fmt.Sprintf("Drop-off          : %s", safe(doc.DropPoint)),
		fmt.Sprintf("Seats             : %d", doc.NumberOfSeats),
		fmt.Sprintf("Total             : %.2f %s", doc.TotalAmount, doc.Currency),
	}
	for _, s := range lines {
		pdf.Cell(0, 7, latin1(s))
		pdf.Ln(7)
	}

	pdf.Ln(6)
	pdf.SetFont("Courier", "", 9)
	pdf.MultiCell(0, 5, latin1(doc.QRPayload), "1", "", false)

	pdf.Ln(6)
	pdf.SetFont("Helvetica", "I", 10)
	pdf.MultiCell(0, 6, "Present this ticket when boarding. It can be scanned once.", "", "", false)
	pdf.Cell(0, 6, "Issued "+time.Now().Format("2006-01-02 15:04"))

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("failed to render ticket: %w", err)
	}
	return buf.Bytes(), nil
}

// core fonts are cp1252; "→" in route names is not representable
func latin1(s string) string {
	return strings.ReplaceAll(s, "→", "->")
}

var filenameRe = regexp.MustCompile(`[^A-Za-z0-9_-]+`)

func safe(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func safeFilenamePart(s string) string {
	return filenameRe.ReplaceAllString(s, "_")
}
