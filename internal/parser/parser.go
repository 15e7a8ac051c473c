package parser

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"pdf-chat/internal/models"

	"github.com/ledongthuc/pdf"
	"github.com/nguyenthenguyen/docx"
	"github.com/rs/zerolog/log"
	"github.com/tealeg/xlsx"
	"github.com/xuri/excelize/v2"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

var slideNameRegex = regexp.MustCompile(`^ppt/slides/slide(\d+)\.xml$`)

// SupportedExtensions lists the file types ExtractFile understands
var SupportedExtensions = []string{".pdf", ".docx", ".pptx", ".xlsx", ".xlsm", ".xltx", ".md", ".markdown", ".txt"}

// ExtractFile reads the document at filePath and returns the text of every
// non-empty page in document order.
func ExtractFile(filePath string) ([]models.PageText, error) {
	var (
		texts []string
		err   error
	)

	ext := strings.ToLower(filepath.Ext(filePath))
	switch ext {
	case ".pdf":
		f, err := os.Open(filePath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrIngestion, err)
		}
		defer f.Close()

		stat, err := f.Stat()
		if err != nil {
			return nil, fmt.Errorf("%w: %w", models.ErrIngestion, err)
		}
		return ExtractPDF(f, stat.Size())
	case ".docx":
		texts, err = parseDOCX(filePath)
	case ".pptx":
		texts, err = parsePPTX(filePath)
	case ".xlsx":
		texts, err = parseXLSX(filePath)
	case ".xlsm", ".xltx":
		texts, err = parseExcelize(filePath)
	case ".md", ".markdown":
		texts, err = parseMarkdown(filePath)
	case ".txt":
		texts, err = parseText(filePath)
	default:
		return nil, fmt.Errorf("%w: unsupported file format: %q", models.ErrIngestion, ext)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIngestion, err)
	}

	pages := collectPages(texts)
	log.Debug().Str("file", filepath.Base(filePath)).Int("pages", len(pages)).Msg("Extracted document")
	return pages, nil
}

// ExtractPDF returns the plain text of every non-empty page of the PDF in r.
func ExtractPDF(r io.ReaderAt, size int64) (pages []models.PageText, err error) {
	// the pdf reader panics on some malformed content streams
	defer func() {
		if rec := recover(); rec != nil {
			pages = nil
			err = fmt.Errorf("%w: malformed pdf: %v", models.ErrIngestion, rec)
		}
	}()

	reader, err := pdf.NewReader(r, size)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrIngestion, err)
	}

	numPages := reader.NumPage()
	texts := make([]string, numPages)
	for i := 1; i <= numPages; i++ {
		page := reader.Page(i)
		if page.V.IsNull() || page.V.Key("Contents").IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			return nil, fmt.Errorf("%w: page %d: %w", models.ErrIngestion, i, err)
		}
		texts[i-1] = pageText
	}

	pages = collectPages(texts)
	log.Debug().Int("total_pages", numPages).Int("pages", len(pages)).Msg("Extracted pdf")
	return pages, nil
}

// collectPages numbers texts by position and drops the blank ones
func collectPages(texts []string) []models.PageText {
	var pages []models.PageText
	for i, t := range texts {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		pages = append(pages, models.PageText{Text: t, Page: i + 1})
	}
	return pages
}

// docx pages are separated by explicit page breaks
func parseDOCX(filePath string) ([]string, error) {
	r, err := docx.ReadDocxFile(filePath)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	content := r.Editable().GetContent()
	return extractXMLText(strings.NewReader(content), "p", func(el xml.StartElement) bool {
		if el.Name.Local != "br" {
			return false
		}
		for _, attr := range el.Attr {
			if attr.Name.Local == "type" && attr.Value == "page" {
				return true
			}
		}
		return false
	})
}

func parsePPTX(filePath string) ([]string, error) {
	f, err := zip.OpenReader(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	type slide struct {
		num  int
		file *zip.File
	}
	var slides []slide
	for _, file := range f.File {
		m := slideNameRegex.FindStringSubmatch(file.Name)
		if m == nil {
			continue
		}
		num, _ := strconv.Atoi(m[1])
		slides = append(slides, slide{num: num, file: file})
	}
	sort.Slice(slides, func(i, j int) bool { return slides[i].num < slides[j].num })

	texts := make([]string, len(slides))
	for i, s := range slides {
		rc, err := s.file.Open()
		if err != nil {
			return nil, err
		}
		slideText, err := extractXMLText(rc, "p", nil)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("slide %d: %w", s.num, err)
		}
		texts[i] = strings.Join(slideText, "\n")
	}
	return texts, nil
}

// extractXMLText collects the character data of every <t> element in an
// office XML part. paragraph ends become newlines and isPageBreak, when set,
// starts a new page.
func extractXMLText(r io.Reader, paragraph string, isPageBreak func(xml.StartElement) bool) ([]string, error) {
	var (
		pages  []string
		page   strings.Builder
		inText bool
	)

	decoder := xml.NewDecoder(r)
	for {
		tok, err := decoder.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}

		switch el := tok.(type) {
		case xml.StartElement:
			switch {
			case el.Name.Local == "t":
				inText = true
			case el.Name.Local == "tab":
				page.WriteString("\t")
			case isPageBreak != nil && isPageBreak(el):
				pages = append(pages, page.String())
				page.Reset()
			}
		case xml.EndElement:
			switch el.Name.Local {
			case "t":
				inText = false
			case paragraph:
				page.WriteString("\n")
			}
		case xml.CharData:
			if inText {
				page.Write(el)
			}
		}
	}
	return append(pages, page.String()), nil
}

func parseXLSX(filePath string) ([]string, error) {
	f, err := xlsx.OpenFile(filePath)
	if err != nil {
		return nil, err
	}

	texts := make([]string, 0, len(f.Sheets))
	for _, sheet := range f.Sheets {
		var rows [][]string
		for _, row := range sheet.Rows {
			if row == nil {
				continue
			}
			var cells []string
			for _, cell := range row.Cells {
				cells = append(cells, cell.String())
			}
			rows = append(rows, cells)
		}
		texts = append(texts, sheetText(sheet.Name, rows))
	}
	return texts, nil
}

func parseExcelize(filePath string) ([]string, error) {
	f, err := excelize.OpenFile(filePath)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var texts []string
	for _, sheetName := range f.GetSheetList() {
		rows, err := f.GetRows(sheetName)
		if err != nil {
			return nil, fmt.Errorf("sheet %s: %w", sheetName, err)
		}
		texts = append(texts, sheetText(sheetName, rows))
	}
	return texts, nil
}

// sheetText renders rows tab separated under a sheet header. Sheets without
// any cell value render empty so they are dropped as blank pages.
func sheetText(name string, rows [][]string) string {
	var body strings.Builder
	for _, row := range rows {
		line := strings.TrimRight(strings.Join(row, "\t"), "\t ")
		if line == "" {
			continue
		}
		body.WriteString(line + "\n")
	}
	if body.Len() == 0 {
		return ""
	}
	return fmt.Sprintf("Sheet: %s\n%s", name, body.String())
}

// markdown is reduced to its plain text on a single page
func parseMarkdown(filePath string) ([]string, error) {
	src, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return []string{markdownToText(src)}, nil
}

func markdownToText(src []byte) string {
	doc := goldmark.New().Parser().Parse(text.NewReader(src))

	var buf bytes.Buffer
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if !entering {
				return ast.WalkContinue, nil
			}
			buf.Write(node.Segment.Value(src))
			if node.SoftLineBreak() || node.HardLineBreak() {
				buf.WriteByte('\n')
			}
		case *ast.String:
			if entering {
				buf.Write(node.Value)
			}
		case *ast.AutoLink:
			if entering {
				buf.Write(node.URL(src))
			}
		case *ast.FencedCodeBlock, *ast.CodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					seg := lines.At(i)
					buf.Write(seg.Value(src))
				}
				buf.WriteByte('\n')
			}
			return ast.WalkSkipChildren, nil
		default:
			if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
				buf.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(buf.String())
}

// plain text pages are separated by form feeds
func parseText(filePath string) ([]string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, err
	}
	return strings.Split(string(data), "\f"), nil
}
