package extractor

import (
	"archive/zip"
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"path"
	"sort"
	"strings"
)

// extractDOCX reads paragraph and table text from word/document.xml.
func extractDOCX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: docx: %v", ErrExtractionFailed, err)
	}

	content, err := readZipFile(reader, "word/document.xml")
	if err != nil {
		return "", fmt.Errorf("%w: docx: %v", ErrExtractionFailed, err)
	}
	if content == nil {
		return "", fmt.Errorf("%w: docx: missing word/document.xml", ErrExtractionFailed)
	}

	var doc wordDocument
	if err := xml.Unmarshal(content, &doc); err != nil {
		return "", fmt.Errorf("%w: docx: %v", ErrExtractionFailed, err)
	}

	var parts []string
	for _, para := range doc.Body.Paragraphs {
		if text := para.text(); text != "" {
			parts = append(parts, text)
		}
	}
	for _, table := range doc.Body.Tables {
		for _, row := range table.Rows {
			var cells []string
			for _, cell := range row.Cells {
				var cellParts []string
				for _, para := range cell.Paragraphs {
					if text := para.text(); text != "" {
						cellParts = append(cellParts, text)
					}
				}
				cells = append(cells, strings.Join(cellParts, " "))
			}
			rowText := strings.Join(cells, " | ")
			if strings.TrimSpace(strings.ReplaceAll(rowText, "|", "")) != "" {
				parts = append(parts, rowText)
			}
		}
	}
	return strings.Join(parts, "\n"), nil
}

// wordDocument mirrors the structure of word/document.xml.
type wordDocument struct {
	Body struct {
		Paragraphs []wordParagraph `xml:"p"`
		Tables     []wordTable     `xml:"tbl"`
	} `xml:"body"`
}

type wordParagraph struct {
	Runs []struct {
		Text []struct {
			Content string `xml:",chardata"`
		} `xml:"t"`
	} `xml:"r"`
}

func (p wordParagraph) text() string {
	var b strings.Builder
	for _, run := range p.Runs {
		for _, t := range run.Text {
			b.WriteString(t.Content)
		}
	}
	return strings.TrimSpace(b.String())
}

type wordTable struct {
	Rows []struct {
		Cells []struct {
			Paragraphs []wordParagraph `xml:"p"`
		} `xml:"tc"`
	} `xml:"tr"`
}

// extractPPTX reads slide text, tables and speaker notes from a PPTX archive.
// Slide shape text lives in <a:t> elements; notes slides are prefixed with
// "[Notes]" so retrieval can tell them apart.
func extractPPTX(data []byte) (string, error) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("%w: pptx: %v", ErrExtractionFailed, err)
	}

	var slides, notes []string
	for _, file := range reader.File {
		dir, base := path.Split(file.Name)
		switch {
		case dir == "ppt/slides/" && strings.HasPrefix(base, "slide") && strings.HasSuffix(base, ".xml"):
			slides = append(slides, file.Name)
		case dir == "ppt/notesSlides/" && strings.HasPrefix(base, "notesSlide") && strings.HasSuffix(base, ".xml"):
			notes = append(notes, file.Name)
		}
	}
	sort.Strings(slides)
	sort.Strings(notes)

	var parts []string
	for _, name := range slides {
		content, err := readZipFile(reader, name)
		if err != nil || content == nil {
			continue
		}
		if text := drawingText(content); text != "" {
			parts = append(parts, text)
		}
	}
	for _, name := range notes {
		content, err := readZipFile(reader, name)
		if err != nil || content == nil {
			continue
		}
		if text := drawingText(content); text != "" {
			parts = append(parts, "[Notes] "+text)
		}
	}
	return strings.Join(parts, "\n"), nil
}

// drawingText collects the character data of every <a:t> element. Token
// scanning keeps this independent of XML namespace prefixes.
func drawingText(content []byte) string {
	decoder := xml.NewDecoder(bytes.NewReader(content))
	var parts []string
	var inText bool
	var current strings.Builder
	for {
		token, err := decoder.Token()
		if err != nil {
			break
		}
		switch t := token.(type) {
		case xml.StartElement:
			if t.Name.Local == "t" {
				inText = true
				current.Reset()
			}
		case xml.CharData:
			if inText {
				current.Write(t)
			}
		case xml.EndElement:
			if t.Name.Local == "t" && inText {
				inText = false
				if s := strings.TrimSpace(current.String()); s != "" {
					parts = append(parts, s)
				}
			}
		}
	}
	return strings.Join(parts, "\n")
}

func readZipFile(reader *zip.Reader, name string) ([]byte, error) {
	for _, file := range reader.File {
		if file.Name != name {
			continue
		}
		rc, err := file.Open()
		if err != nil {
			return nil, err
		}
		defer rc.Close()
		return io.ReadAll(rc)
	}
	return nil, nil
}
