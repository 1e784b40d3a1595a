package pdfextract

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"slices"
	"strings"

	"github.com/ledongthuc/pdf"
)

// Kinds of element the layout pass can tell apart from text runs alone.
const (
	KindTitle     = "title"
	KindParagraph = "paragraph"
	KindListItem  = "list_item"
)

const (
	titleFontRatio   = 1.25
	maxTitleRunes    = 120
	paragraphGapRate = 1.8
)

var listMarker = regexp.MustCompile(`^(?:[-•*▪◦]\s+|\d{1,3}[.)]\s+|[a-z][.)]\s+)`)

// ErrNoText is returned for PDFs without any extractable text layer.
var ErrNoText = errors.New("pdf has no extractable text")

// Element is one block of text located on a page. Box is [x1, y1, x2, y2]
// in PDF user space.
type Element struct {
	ID   string
	Kind string
	Text string
	Page int
	Box  [4]float64
}

// Document is the extracted text layer of a PDF.
type Document struct {
	Text     string
	Elements []Element
	Pages    int
}

// Line is a row of text runs sharing a baseline.
type Line struct {
	Text     string
	X1, X2   float64
	Y        float64
	FontSize float64
}

// Extract reads the entire content of r and splits every page into titles,
// paragraphs and list items.
func Extract(r io.Reader) (*Document, error) {
	b, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	if len(b) == 0 {
		return nil, ErrNoText
	}
	pdfReader, err := pdf.NewReader(bytes.NewReader(b), int64(len(b)))
	if err != nil {
		return nil, fmt.Errorf("open pdf failed: %w", err)
	}

	pages := make(map[int][]Line)
	var all []Line
	numPages := pdfReader.NumPage()
	for i := 1; i <= numPages; i++ {
		page := pdfReader.Page(i)
		if page.V.IsNull() {
			continue
		}
		rows, err := page.GetTextByRow()
		if err != nil {
			return nil, fmt.Errorf("read page %d failed: %w", i, err)
		}
		lines := rowsToLines(rows)
		pages[i] = lines
		all = append(all, lines...)
	}

	body := BodyFontSize(all)
	doc := &Document{Pages: numPages}
	var text strings.Builder
	for i := 1; i <= numPages; i++ {
		for _, el := range GroupLines(i, pages[i], body) {
			doc.Elements = append(doc.Elements, el)
			if text.Len() > 0 {
				text.WriteString("\n")
			}
			text.WriteString(el.Text)
		}
	}
	if len(doc.Elements) == 0 {
		return nil, ErrNoText
	}
	doc.Text = text.String()
	return doc, nil
}

func rowsToLines(rows pdf.Rows) []Line {
	lines := make([]Line, 0, len(rows))
	for _, row := range rows {
		var (
			sb   strings.Builder
			line Line
		)
		for i, t := range row.Content {
			if i == 0 {
				line.X1, line.X2, line.Y = t.X, t.X+t.W, t.Y
			}
			line.X1 = min(line.X1, t.X)
			line.X2 = max(line.X2, t.X+t.W)
			line.FontSize = max(line.FontSize, t.FontSize)
			sb.WriteString(t.S)
		}
		line.Text = strings.Join(strings.Fields(sb.String()), " ")
		if line.Text == "" {
			continue
		}
		lines = append(lines, line)
	}
	// rows come bottom-up in some producers
	slices.SortStableFunc(lines, func(a, b Line) int {
		switch {
		case a.Y > b.Y:
			return -1
		case a.Y < b.Y:
			return 1
		default:
			return 0
		}
	})
	return lines
}

// BodyFontSize is the most common font size, rounded to half points.
func BodyFontSize(lines []Line) float64 {
	counts := make(map[float64]int)
	best, bestN := 0.0, 0
	for _, l := range lines {
		size := float64(int(l.FontSize*2+0.5)) / 2
		counts[size]++
		if n := counts[size]; n > bestN || (n == bestN && size < best) {
			best, bestN = size, n
		}
	}
	return best
}

// GroupLines merges the lines of one page, top to bottom, into elements.
// A line set noticeably larger than the body text is a title; a line
// starting with a bullet or enumerator opens a list item; other lines join
// the current block while the vertical gap stays small.
func GroupLines(page int, lines []Line, bodySize float64) []Element {
	var (
		out     []Element
		current *Element
		lastY   float64
		lastFS  float64
	)
	flush := func() {
		if current != nil {
			current.ID = fmt.Sprintf("p%d-e%d", page, len(out)+1)
			out = append(out, *current)
			current = nil
		}
	}
	for _, l := range lines {
		kind := KindParagraph
		switch {
		case bodySize > 0 && l.FontSize >= bodySize*titleFontRatio && len([]rune(l.Text)) <= maxTitleRunes:
			kind = KindTitle
		case listMarker.MatchString(l.Text):
			kind = KindListItem
		}

		joins := current != nil &&
			current.Kind == kind &&
			kind != KindListItem &&
			lastY-l.Y <= paragraphGapRate*max(l.FontSize, lastFS, 1)
		if !joins && current != nil && current.Kind == KindListItem && kind == KindParagraph &&
			l.X1 > current.Box[0] && lastY-l.Y <= paragraphGapRate*max(l.FontSize, lastFS, 1) {
			// indented continuation of a list item
			joins = true
		}

		if joins {
			current.Text += " " + l.Text
			current.Box[0] = min(current.Box[0], l.X1)
			current.Box[1] = min(current.Box[1], l.Y)
			current.Box[2] = max(current.Box[2], l.X2)
		} else {
			flush()
			current = &Element{
				Kind: kind,
				Text: l.Text,
				Page: page,
				Box:  [4]float64{l.X1, l.Y, l.X2, l.Y + l.FontSize},
			}
		}
		lastY, lastFS = l.Y, l.FontSize
	}
	flush()
	return out
}
