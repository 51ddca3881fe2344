package report

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"example.com/cbfconv/internal/common"
	"example.com/cbfconv/internal/diag"
)

// SaveSessionPDF renders the session report into a PDF document with an
// embedded QR code of the input file hash.
func SaveSessionPDF(s Session, out string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Capture Session Report", false)
	pdf.SetAuthor("cbfctl", false)
	pdf.SetCreator("cbfctl", false)
	pdf.SetMargins(15, 20, 15)
	pdf.SetAutoPageBreak(true, 20)
	pdf.AddPage()

	addPDFTitle(pdf, "Capture Session Report")
	addHashQR(pdf, s.Sha256)
	addSummarySection(pdf, s)
	addParameterSection(pdf, s.Parameters)
	addFindingsSection(pdf, s.Findings)

	if pdf.Err() {
		return pdf.Error()
	}
	return pdf.OutputFileAndClose(out)
}

func addPDFTitle(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Helvetica", "B", 18)
	pdf.Cell(0, 10, title)
	pdf.Ln(12)
}

func addHashQR(pdf *gofpdf.Fpdf, hash string) {
	png, err := FileHashToQR(hash, 256)
	if err != nil {
		return
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("filehash", opts, bytes.NewReader(png))
	pageW, _ := pdf.GetPageSize()
	pdf.ImageOptions("filehash", pageW-45, 15, 30, 30, false, opts, 0, "")
}

func addSummarySection(pdf *gofpdf.Fpdf, s Session) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Summary")
	pdf.Ln(8)

	pdf.SetFont("Helvetica", "", 11)
	items := []struct {
		label string
		value string
	}{
		{label: "Input", value: s.Input},
		{label: "SHA-256", value: shortHash(s.Sha256)},
		{label: "Size", value: common.FormatBytes(s.SizeBytes)},
		{label: "Module", value: moduleLabel(s)},
		{label: "Records", value: recordLabel(s)},
		{label: "Samples", value: strconv.Itoa(s.Samples)},
		{label: "Time Range", value: fmt.Sprintf("%g s to %g s", s.FirstTimestamp, s.LastTimestamp)},
		{label: "Errors / Warnings", value: fmt.Sprintf("%d / %d", s.Errors(), s.Warnings())},
	}
	if s.Fault != "" {
		items = append(items, struct {
			label string
			value string
		}{label: "Fault", value: s.Fault})
	}
	for _, item := range items {
		pdf.CellFormat(45, 6, item.label, "", 0, "L", false, 0, "")
		pdf.MultiCell(0, 6, item.value, "", "L", false)
	}
	pdf.Ln(4)
}

func addParameterSection(pdf *gofpdf.Fpdf, params []ParameterInfo) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Parameters")
	pdf.Ln(9)

	headers := []string{"#", "PID", "Name", "Unit", "Scale", "Offset", "Known", "Samples"}
	widths := []float64{10, 14, 66, 20, 18, 18, 16, 18}

	pdf.SetFillColor(240, 240, 240)
	pdf.SetFont("Helvetica", "B", 10)
	for i, h := range headers {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "L", true, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Helvetica", "", 9)
	lineHeight := 5.0
	for _, p := range params {
		pid := "-"
		if p.HasPID {
			pid = fmt.Sprintf("0x%02X", p.PID)
		}
		scale, offset := "-", "-"
		if p.Known {
			scale = strconv.FormatFloat(p.Scale, 'g', -1, 64)
			offset = strconv.FormatFloat(p.Offset, 'g', -1, 64)
		}
		values := []string{
			strconv.Itoa(p.Index),
			pid,
			emptyFallback(p.Name, "-"),
			emptyFallback(p.Unit, "-"),
			scale,
			offset,
			yesNo(p.Known),
			strconv.Itoa(p.Samples),
		}
		renderTableRow(pdf, widths, values, lineHeight)
	}
	pdf.Ln(4)
}

func addFindingsSection(pdf *gofpdf.Fpdf, findings []diag.Finding) {
	pdf.SetFont("Helvetica", "B", 12)
	pdf.Cell(0, 8, "Findings")
	pdf.Ln(9)

	if len(findings) == 0 {
		pdf.SetFont("Helvetica", "", 11)
		pdf.MultiCell(0, 6, "No findings recorded.", "", "L", false)
		return
	}

	for i, f := range findings {
		pdf.SetFont("Helvetica", "B", 10)
		header := fmt.Sprintf("%d. %s (%s)", i+1, f.Kind, severityLabel(f.Severity))
		pdf.MultiCell(0, 5, header, "", "L", false)

		if msg := strings.TrimSpace(f.Message); msg != "" {
			pdf.SetFont("Helvetica", "", 10)
			pdf.MultiCell(0, 5, msg, "", "L", false)
		}

		if meta := findingMetadata(f); meta != "" {
			pdf.SetFont("Helvetica", "", 9)
			pdf.MultiCell(0, 4, meta, "", "L", false)
		}

		pdf.Ln(2)
	}
}

func renderTableRow(pdf *gofpdf.Fpdf, widths []float64, values []string, lineHeight float64) {
	xStart := pdf.GetX()
	yStart := pdf.GetY()
	maxLines := 1
	splitCols := make([][]string, len(values))
	for i, val := range values {
		text := strings.TrimSpace(val)
		if text == "" {
			text = "-"
		}
		lines := pdf.SplitText(text, widths[i]-2)
		if len(lines) == 0 {
			lines = []string{""}
		}
		splitCols[i] = lines
		if len(lines) > maxLines {
			maxLines = len(lines)
		}
	}
	rowHeight := float64(maxLines) * lineHeight
	x := xStart
	for i, lines := range splitCols {
		pdf.SetXY(x, yStart)
		cellText := strings.Join(lines, "\n")
		pdf.MultiCell(widths[i], lineHeight, cellText, "1", "L", false)
		x += widths[i]
	}
	pdf.SetXY(xStart, yStart+rowHeight)
}

func moduleLabel(s Session) string {
	parts := make([]string, 0, 2)
	if s.Program != "" {
		parts = append(parts, s.Program)
	}
	if s.Mode != "" {
		parts = append(parts, s.Mode)
	}
	label := strings.Join(parts, " / ")
	if label == "" {
		return string(s.Family)
	}
	return fmt.Sprintf("%s (%s)", label, s.Family)
}

func recordLabel(s Session) string {
	if !s.TrailerFound {
		return fmt.Sprintf("%d (no trailer)", s.Records)
	}
	if uint32(s.Records) != s.DeclaredRecords {
		return fmt.Sprintf("%d (trailer declares %d)", s.Records, s.DeclaredRecords)
	}
	return strconv.Itoa(s.Records)
}

func shortHash(hash string) string {
	if len(hash) > 16 {
		return hash[:16] + "..."
	}
	return hash
}

func severityLabel(sev diag.Severity) string {
	if s := strings.TrimSpace(string(sev)); s != "" {
		return s
	}
	return "UNKNOWN"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}

func emptyFallback(val, fallback string) string {
	if strings.TrimSpace(val) == "" {
		return fallback
	}
	return val
}

func findingMetadata(f diag.Finding) string {
	parts := make([]string, 0, 3)
	if f.Offset != 0 {
		parts = append(parts, fmt.Sprintf("Offset 0x%X", f.Offset))
	}
	if f.Timestamp != nil {
		parts = append(parts, fmt.Sprintf("Timestamp %gs", *f.Timestamp))
	}
	if f.Parameter != "" {
		parts = append(parts, "Parameter "+f.Parameter)
	}
	if len(parts) == 0 {
		return ""
	}
	return strings.Join(parts, ", ")
}
