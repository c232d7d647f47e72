package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
)

// CSVRejectWriter records rows that were not ingested, with the reason,
// so they can be inspected offline. The file is created on the first reject.
type CSVRejectWriter struct {
	path   string
	file   *os.File
	writer *csv.Writer
	count  int
}

// NewCSVRejectWriter prepares a writer for path. Nothing is created until a
// row is rejected. Intermediate directories are created automatically.
func NewCSVRejectWriter(path string) *CSVRejectWriter {
	return &CSVRejectWriter{path: path}
}

func (c *CSVRejectWriter) open(headers []string) error {
	if err := os.MkdirAll(filepath.Dir(c.path), 0755); err != nil {
		return fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(c.path)
	if err != nil {
		return fmt.Errorf("csv: create file %q: %w", c.path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(append([]string{"line", "reason"}, headers...)); err != nil {
		_ = f.Close()
		return fmt.Errorf("csv: write header: %w", err)
	}

	c.file, c.writer = f, w
	return nil
}

// WriteReject appends one rejected row. Cells are written as parsed; a short
// row stays short.
func (c *CSVRejectWriter) WriteReject(line int, reason string, headers []string, cells []string) error {
	if c.writer == nil {
		if err := c.open(headers); err != nil {
			return err
		}
	}

	row := append([]string{strconv.Itoa(line), reason}, cells...)
	if err := c.writer.Write(row); err != nil {
		return fmt.Errorf("csv: write row: %w", err)
	}
	c.count++

	c.writer.Flush()
	return c.writer.Error()
}

// Count returns how many rows were written.
func (c *CSVRejectWriter) Count() int {
	return c.count
}

// Path returns the destination path.
func (c *CSVRejectWriter) Path() string {
	return c.path
}

// Close flushes and closes the underlying file, if one was opened.
func (c *CSVRejectWriter) Close() error {
	if c.writer == nil {
		return nil
	}
	c.writer.Flush()
	return c.file.Close()
}
