package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"drive-csv-ingest/models"
	"drive-csv-ingest/utils"
)

const byteOrderMark = "\ufeff"

// fallbackDelimiters are tried in order when the comma header has fewer than
// two cells.
var fallbackDelimiters = []rune{';', '\t'}

// ParseError means the content has no usable header row.
type ParseError struct {
	Reason string
}

func (e *ParseError) Error() string {
	return "csv: " + e.Reason
}

func (e *ParseError) Is(target error) bool {
	var t *ParseError
	return errors.As(target, &t)
}

// RowError reports a data line the cell splitter could not make sense of.
// The line is skipped; iteration continues.
type RowError struct {
	Line int
	Err  error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("csv: line %d: %v", e.Line, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// CSVParser turns downloaded bytes into a header and a sequence of raw rows.
type CSVParser struct {
	logger *utils.Logger
}

// NewCSVParser creates a CSVParser with the given logger.
func NewCSVParser(logger *utils.Logger) *CSVParser {
	return &CSVParser{logger: logger}
}

// CSVDocument is a parsed header plus the data lines still to be split.
// Rows can be iterated any number of times with the same result.
type CSVDocument struct {
	Headers   []string
	Delimiter rune

	lines []sourceLine
}

type sourceLine struct {
	number int
	text   string
}

// Parse splits content on line feeds, drops blank lines, and reads the first
// remaining line as the header row.
func (p *CSVParser) Parse(content []byte) (*CSVDocument, error) {
	var lines []sourceLine
	for i, raw := range strings.Split(string(content), "\n") {
		text := strings.TrimSuffix(raw, "\r")
		if strings.TrimSpace(strings.TrimPrefix(text, byteOrderMark)) == "" {
			continue
		}
		lines = append(lines, sourceLine{number: i + 1, text: text})
	}
	if len(lines) == 0 {
		return nil, &ParseError{Reason: "no header row: content is empty or blank"}
	}

	headerLine := strings.TrimPrefix(lines[0].text, byteOrderMark)
	delimiter := ','
	headers, err := splitLine(headerLine, delimiter)
	if err != nil || len(headers) < 2 {
		for _, d := range fallbackDelimiters {
			alt, altErr := splitLine(headerLine, d)
			if altErr == nil && len(alt) >= 2 {
				headers, err, delimiter = alt, nil, d
				break
			}
		}
	}
	if err != nil {
		return nil, &ParseError{Reason: fmt.Sprintf("unreadable header row: %v", err)}
	}

	for i, h := range headers {
		headers[i] = strings.TrimSpace(strings.ReplaceAll(h, byteOrderMark, ""))
	}

	if p.logger != nil {
		p.logger.Info("[parser] %d headers, %d data lines, delimiter %q", len(headers), len(lines)-1, delimiter)
		p.logger.Debug("[parser] headers: %s", strings.Join(headers, ", "))
	}

	return &CSVDocument{
		Headers:   headers,
		Delimiter: delimiter,
		lines:     lines[1:],
	}, nil
}

// Len returns the number of non-blank data lines.
func (d *CSVDocument) Len() int {
	return len(d.lines)
}

// Rows returns a fresh iterator positioned before the first data line.
func (d *CSVDocument) Rows() *RowIterator {
	return &RowIterator{doc: d}
}

// RowIterator yields one RawRow per data line.
type RowIterator struct {
	doc *CSVDocument
	pos int
}

// Next returns the next row. A *RowError means that line was malformed and
// the caller may keep going; io.EOF means there are no more lines.
func (it *RowIterator) Next() (models.RawRow, error) {
	if it.pos >= len(it.doc.lines) {
		return models.RawRow{}, io.EOF
	}
	line := it.doc.lines[it.pos]
	it.pos++

	cells, err := splitLine(line.text, it.doc.Delimiter)
	if err != nil {
		return models.RawRow{Line: line.number}, &RowError{Line: line.number, Err: err}
	}
	return models.RawRow{Line: line.number, Cells: cells}, nil
}

// splitLine splits one line into cells, honoring quoted fields that contain
// the delimiter.
func splitLine(line string, delimiter rune) ([]string, error) {
	r := csv.NewReader(strings.NewReader(line))
	r.Comma = delimiter
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	cells, err := r.Read()
	if err == io.EOF {
		return nil, errors.New("no cells")
	}
	return cells, err
}
