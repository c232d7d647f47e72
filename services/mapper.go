package services

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"drive-csv-ingest/models"
	"drive-csv-ingest/utils"
)

var (
	integerRegexp = regexp.MustCompile(`^[+-]?\d+$`)
	decimalRegexp = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)$`)
	// groupedRegexp matches thousands-grouped numbers such as "45,000.50"
	groupedRegexp = regexp.MustCompile(`^[+-]?\d{1,3}(,\d{3})+(\.\d+)?$`)
	snakeRegexp   = regexp.MustCompile(`[^a-z0-9]+`)
)

// timestampLayouts are only consulted in strict mode.
var timestampLayouts = []string{
	time.RFC3339,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02 15:04",
	"2006-01-02",
	"01/02/2006 15:04:05",
	"01/02/2006 15:04",
	"01/02/2006",
}

// Rejection explains why a row produced no CarListing.
type Rejection struct {
	Line   int
	Reason string
}

func (r *Rejection) String() string {
	return fmt.Sprintf("line %d: %s", r.Line, r.Reason)
}

// RecordMapper transforms raw CSV rows into CarListings.
type RecordMapper struct {
	logger   *utils.Logger
	mappings []FieldMapping
	strict   bool
}

// NewRecordMapper creates a tolerant RecordMapper over DefaultMappings.
func NewRecordMapper(logger *utils.Logger) *RecordMapper {
	return &RecordMapper{logger: logger, mappings: DefaultMappings()}
}

// WithStrict returns a copy of m that also rejects rows with a wrong cell
// count, non-numeric numeric cells, and unrecognised timestamps.
func (m *RecordMapper) WithStrict(strict bool) *RecordMapper {
	c := *m
	c.strict = strict
	return &c
}

type slot struct {
	index   int
	mapping *FieldMapping
}

// Binding is a RecordMapper resolved against one header row.
type Binding struct {
	mapper   *RecordMapper
	width    int
	slots    []slot
	Unmapped []string
	Missing  []string
}

// Bind resolves headers to mappings. A header matches a mapping when it is
// equal to the mapping's Header, or when its lower_snake_case form equals the
// snake form of the Header or the destination Column.
func (m *RecordMapper) Bind(headers []string) *Binding {
	lookup := make(map[string]*FieldMapping, len(m.mappings)*3)
	for i := range m.mappings {
		fm := &m.mappings[i]
		for _, key := range []string{fm.Header, snake(fm.Header), fm.Column} {
			if _, taken := lookup[key]; !taken {
				lookup[key] = fm
			}
		}
	}

	b := &Binding{mapper: m, width: len(headers)}
	bound := make(map[*FieldMapping]bool, len(m.mappings))
	for i, h := range headers {
		fm, ok := lookup[h]
		if !ok {
			fm, ok = lookup[snake(h)]
		}
		if !ok || bound[fm] {
			b.Unmapped = append(b.Unmapped, h)
			continue
		}
		bound[fm] = true
		b.slots = append(b.slots, slot{index: i, mapping: fm})
	}

	for i := range m.mappings {
		if !bound[&m.mappings[i]] {
			b.Missing = append(b.Missing, m.mappings[i].Column)
		}
	}

	if m.logger != nil {
		if len(b.Unmapped) > 0 {
			m.logger.Warn("[mapper] Ignoring %d unmapped columns: %s", len(b.Unmapped), strings.Join(b.Unmapped, ", "))
		}
		for _, col := range b.Missing {
			if col == "ad_id" {
				m.logger.Warn("[mapper] No Ad ID column in header row; every row will be rejected")
			}
		}
		m.logger.Debug("[mapper] %d columns bound, %d absent from sheet", len(b.slots), len(b.Missing))
	}
	return b
}

// Map builds a CarListing from row. Cells beyond the row's length are
// treated as absent. It never fails on malformed values: they become NULL,
// or, in strict mode, a Rejection. A row without an ad_id is always rejected.
func (b *Binding) Map(row models.RawRow) (*models.CarListing, *Rejection) {
	strict := b.mapper.strict
	if strict && len(row.Cells) != b.width {
		return nil, &Rejection{Line: row.Line,
			Reason: fmt.Sprintf("expected %d cells, got %d", b.width, len(row.Cells))}
	}

	listing := &models.CarListing{}
	for _, s := range b.slots {
		raw, _ := row.Cell(s.index)
		value := strings.TrimSpace(raw)
		fm := s.mapping

		switch fm.Kind {
		case KindText:
			fm.setText(listing, nullable(value))

		case KindTimestamp:
			if strict && value != "" && !isTimestamp(value) {
				return nil, &Rejection{Line: row.Line,
					Reason: fmt.Sprintf("%s: %q is not a recognised timestamp", fm.Column, value)}
			}
			fm.setText(listing, nullable(value))

		case KindBoolean:
			fm.setBool(listing, strings.EqualFold(value, "TRUE"))

		case KindInteger:
			n, ok := parseInteger(value, fm.Bits)
			if !ok && strict && value != "" {
				return nil, &Rejection{Line: row.Line,
					Reason: fmt.Sprintf("%s: %q is not an integer in column range", fm.Column, value)}
			}
			if ok {
				fm.setInt(listing, &n)
			} else {
				fm.setInt(listing, nil)
			}

		case KindDecimal:
			d, ok := parseDecimal(value)
			if !ok && strict && value != "" {
				return nil, &Rejection{Line: row.Line,
					Reason: fmt.Sprintf("%s: %q is not a number", fm.Column, value)}
			}
			if ok {
				fm.setText(listing, &d)
			} else {
				fm.setText(listing, nil)
			}
		}
	}

	if strings.TrimSpace(listing.AdID) == "" {
		return nil, &Rejection{Line: row.Line, Reason: "missing ad_id"}
	}
	return listing, nil
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func ungroup(s string) string {
	if groupedRegexp.MatchString(s) {
		return strings.ReplaceAll(s, ",", "")
	}
	return s
}

// parseInteger accepts plain or thousands-grouped integers that fit in bits.
// "  123  " → 123, "12,500" → 12500, "N/A" → not ok
func parseInteger(s string, bits int) (int64, bool) {
	if bits <= 0 || bits > 64 {
		bits = 64
	}
	s = ungroup(s)
	if !integerRegexp.MatchString(s) {
		return 0, false
	}
	n, err := strconv.ParseInt(s, 10, bits)
	if err != nil {
		return 0, false
	}
	return n, true
}

// parseDecimal validates a decimal and returns it as digits, unchanged apart
// from grouping commas and a leading plus sign.
// "45,000.50" → "45000.50", "AED 45000" → not ok
func parseDecimal(s string) (string, bool) {
	s = ungroup(s)
	if !decimalRegexp.MatchString(s) {
		return "", false
	}
	return strings.TrimPrefix(s, "+"), true
}

func isTimestamp(s string) bool {
	for _, layout := range timestampLayouts {
		if _, err := time.Parse(layout, s); err == nil {
			return true
		}
	}
	return false
}

// snake converts a header such as "No. of Cylinders" to "no_of_cylinders".
func snake(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.Trim(snakeRegexp.ReplaceAllString(s, "_"), "_")
}
