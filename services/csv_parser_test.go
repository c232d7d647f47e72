package services

import (
	"errors"
	"io"
	"reflect"
	"testing"

	"drive-csv-ingest/models"
	"drive-csv-ingest/utils"
)

func collect(t *testing.T, doc *CSVDocument) []models.RawRow {
	t.Helper()
	var rows []models.RawRow
	it := doc.Rows()
	for {
		row, err := it.Next()
		if err == io.EOF {
			return rows
		}
		if err != nil {
			t.Fatalf("Next: unexpected error %v", err)
		}
		rows = append(rows, row)
	}
}

func TestParseHeadersAndRows(t *testing.T) {
	p := NewCSVParser(utils.NewDiscardLogger())
	content := "\ufeff Ad ID , Make \r\n\r\n123,Toyota\r\n   \n456,\"Mercedes, Benz\"\n"

	doc, err := p.Parse([]byte(content))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if want := []string{"Ad ID", "Make"}; !reflect.DeepEqual(doc.Headers, want) {
		t.Errorf("Headers: got %q, want %q", doc.Headers, want)
	}
	if doc.Len() != 2 {
		t.Errorf("Len: got %d, want 2", doc.Len())
	}

	rows := collect(t, doc)
	if len(rows) != 2 {
		t.Fatalf("rows: got %d, want 2", len(rows))
	}
	if rows[0].Line != 3 {
		t.Errorf("first row line: got %d, want 3", rows[0].Line)
	}
	if got := rows[1].Cells[1]; got != "Mercedes, Benz" {
		t.Errorf("quoted cell: got %q, want %q", got, "Mercedes, Benz")
	}
}

func TestParseEmptyContent(t *testing.T) {
	p := NewCSVParser(utils.NewDiscardLogger())

	for _, content := range []string{"", "\n\n", "  \r\n\t\n", "\ufeff\n"} {
		_, err := p.Parse([]byte(content))
		var pe *ParseError
		if !errors.As(err, &pe) {
			t.Errorf("Parse(%q): got %v, want *ParseError", content, err)
		}
	}
}

func TestParseHeaderOnly(t *testing.T) {
	p := NewCSVParser(utils.NewDiscardLogger())
	doc, err := p.Parse([]byte("Ad ID,Make\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if rows := collect(t, doc); len(rows) != 0 {
		t.Errorf("rows: got %d, want 0", len(rows))
	}
}

func TestParseDelimiterFallback(t *testing.T) {
	p := NewCSVParser(utils.NewDiscardLogger())

	tests := []struct {
		name    string
		content string
		want    rune
	}{
		{"comma", "a,b\n1,2\n", ','},
		{"semicolon", "a;b\n1;2\n", ';'},
		{"tab", "a\tb\n1\t2\n", '\t'},
	}
	for _, tt := range tests {
		doc, err := p.Parse([]byte(tt.content))
		if err != nil {
			t.Fatalf("%s: Parse: %v", tt.name, err)
		}
		if doc.Delimiter != tt.want {
			t.Errorf("%s: delimiter got %q, want %q", tt.name, doc.Delimiter, tt.want)
		}
		rows := collect(t, doc)
		if len(rows) != 1 || len(rows[0].Cells) != 2 {
			t.Errorf("%s: rows got %v", tt.name, rows)
		}
	}
}

func TestParseShortAndLongRows(t *testing.T) {
	p := NewCSVParser(utils.NewDiscardLogger())
	doc, err := p.Parse([]byte("a,b,c\n1\n1,2,3,4\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	rows := collect(t, doc)
	if len(rows[0].Cells) != 1 || len(rows[1].Cells) != 4 {
		t.Errorf("cell counts: got %d and %d, want 1 and 4", len(rows[0].Cells), len(rows[1].Cells))
	}
	if _, ok := rows[0].Cell(2); ok {
		t.Error("Cell(2) on a short row should report absent")
	}
}

func TestParseRestartable(t *testing.T) {
	p := NewCSVParser(utils.NewDiscardLogger())
	content := []byte("id,name\n1,x\n2,y\n3,\"z\"\n")

	doc, err := p.Parse(content)
	if err != nil {
		t.Fatal(err)
	}
	first := collect(t, doc)
	second := collect(t, doc)
	if !reflect.DeepEqual(first, second) {
		t.Errorf("iterations differ: %v vs %v", first, second)
	}

	again, _ := p.Parse(content)
	if !reflect.DeepEqual(first, collect(t, again)) {
		t.Error("re-parsing the same bytes produced different rows")
	}
}
