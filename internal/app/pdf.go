package app

import (
	"bufio"
	"regexp"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"

	"github.com/hyperifyio/goanswer/internal/orchestrate"
)

var bareURLRe = regexp.MustCompile(`https?://[^\s)\]>,]+`)

// WriteAnswerPDF renders a research outcome as a minimal PDF: the question
// as a heading, the answer body with bare URLs turned into clickable links,
// and a numbered sources section.
func WriteAnswerPDF(out *orchestrate.Outcome, outPath string) error {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.AddPage()

	pdf.SetFont("Helvetica", "B", 14)
	pdf.MultiCell(0, 8, out.Query, "", "L", false)
	pdf.Ln(4)

	pdf.SetFont("Helvetica", "", 11)
	scanner := bufio.NewScanner(strings.NewReader(out.Answer))
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			pdf.Ln(5)
			continue
		}
		writeLineWithLinks(pdf, line)
		pdf.Ln(6)
	}

	if len(out.Links) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Helvetica", "B", 12)
		pdf.CellFormat(0, 8, "Sources", "", 1, "L", false, 0, "")
		pdf.SetFont("Helvetica", "", 10)
		for i, l := range out.Links {
			label := l.Title
			if label == "" {
				label = l.URL
			}
			pdf.Write(5, strconv.Itoa(i+1)+". ")
			pdf.WriteLinkString(5, label, l.URL)
			pdf.Ln(6)
		}
	}

	return pdf.OutputFileAndClose(outPath)
}

// writeLineWithLinks writes text segments and clickable spans for any bare
// URL in the line.
func writeLineWithLinks(pdf *gofpdf.Fpdf, line string) {
	matches := bareURLRe.FindAllStringIndex(line, -1)
	if len(matches) == 0 {
		pdf.MultiCell(0, 5, line, "", "L", false)
		return
	}
	pos := 0
	for _, m := range matches {
		if m[0] > pos {
			pdf.Write(5, line[pos:m[0]])
		}
		url := line[m[0]:m[1]]
		pdf.WriteLinkString(5, url, url)
		pos = m[1]
	}
	if pos < len(line) {
		pdf.Write(5, line[pos:])
	}
}
