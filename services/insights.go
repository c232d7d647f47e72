package services

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"drive-csv-ingest/models"
	"drive-csv-ingest/utils"
)

// InsightReport summarises the listings accepted during one run.
type InsightReport struct {
	TotalListings      int
	PricedListings     int
	AveragePrice       float64
	MinPrice           float64
	MaxPrice           float64
	MostExpensive      *models.CarListing
	ListingsByMake     map[string]int
	ListingsByLocation map[string]int
}

// InsightService accumulates run statistics one listing at a time.
type InsightService struct {
	logger *utils.Logger
	report *InsightReport
	total  float64
}

func NewInsightService(logger *utils.Logger) *InsightService {
	return &InsightService{
		logger: logger,
		report: &InsightReport{
			ListingsByMake:     make(map[string]int),
			ListingsByLocation: make(map[string]int),
		},
	}
}

// Observe folds l into the running report.
func (s *InsightService) Observe(l *models.CarListing) {
	r := s.report
	r.TotalListings++

	if l.Make != nil {
		r.ListingsByMake[*l.Make]++
	}
	if l.Location != nil {
		r.ListingsByLocation[*l.Location]++
	}

	price, ok := priceOf(l)
	if !ok {
		return
	}
	r.PricedListings++
	s.total += price
	if r.PricedListings == 1 || price < r.MinPrice {
		r.MinPrice = price
	}
	if r.PricedListings == 1 || price > r.MaxPrice {
		r.MaxPrice = price
		r.MostExpensive = l
	}
}

// Report returns the statistics gathered so far.
func (s *InsightService) Report() *InsightReport {
	r := *s.report
	if r.PricedListings > 0 {
		r.AveragePrice = round2(s.total / float64(r.PricedListings))
		r.MinPrice = round2(r.MinPrice)
		r.MaxPrice = round2(r.MaxPrice)
	}
	return &r
}

// Generate is a convenience for reporting on a complete slice.
func (s *InsightService) Generate(listings []*models.CarListing) *InsightReport {
	for _, l := range listings {
		s.Observe(l)
	}
	return s.Report()
}

// Print writes the run summary and insights to w.
func (s *InsightService) Print(w io.Writer, res *Result) {
	sep := strings.Repeat("═", 54)
	thin := strings.Repeat("─", 54)

	fmt.Fprintf(w, "\n\033[1;35m%s\033[0m\n", sep)
	fmt.Fprintf(w, "\033[1;35m  📊 CSV INGESTION SUMMARY\033[0m\n")
	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)

	fmt.Fprintf(w, "\033[1;33m  Run\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if res.File != nil {
		fmt.Fprintf(w, "  File                   : \033[1m%s\033[0m (%s)\n", truncate(res.File.Name, 40), res.File.ID)
		fmt.Fprintf(w, "  Modified               : %s\n", res.File.ModifiedTime.Format("2006-01-02 15:04:05 MST"))
	}
	fmt.Fprintf(w, "  Bytes downloaded       : %d\n", res.Bytes)
	fmt.Fprintf(w, "  Data rows              : %d\n", res.TotalRows)
	fmt.Fprintf(w, "  Processed              : \033[1;32m%d\033[0m (inserted %d, already present %d)\n",
		res.Processed, res.Inserted, res.Ignored)
	fmt.Fprintf(w, "  Skipped                : \033[1;31m%d\033[0m (%d failed batches)\n", res.Skipped, res.FailedBatches)
	fmt.Fprintf(w, "  Rejected               : %d\n", res.Rejected)
	fmt.Fprintf(w, "  Malformed              : %d\n", res.Malformed)
	fmt.Fprintf(w, "  Repeated ad_id in file : %d\n", res.Duplicates)
	if res.TableSize >= 0 {
		fmt.Fprintf(w, "  Rows in table          : %d\n", res.TableSize)
	}
	if res.DryRun {
		fmt.Fprintf(w, "  \033[1;33mDry run: nothing was written\033[0m\n")
	}
	fmt.Fprintln(w)

	r := res.Insights
	if r == nil {
		fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
		return
	}

	fmt.Fprintf(w, "\033[1;33m  Price Statistics\033[0m\n")
	fmt.Fprintf(w, "  %s\n", thin)
	if r.PricedListings > 0 {
		fmt.Fprintf(w, "  Average price : \033[1;32m%.2f\033[0m\n", r.AveragePrice)
		fmt.Fprintf(w, "  Minimum price : \033[1;32m%.2f\033[0m\n", r.MinPrice)
		fmt.Fprintf(w, "  Maximum price : \033[1;32m%.2f\033[0m\n", r.MaxPrice)
	} else {
		fmt.Fprintf(w, "  No price data available\n")
	}
	fmt.Fprintln(w)

	if m := r.MostExpensive; m != nil {
		fmt.Fprintf(w, "\033[1;33m  Most Expensive Listing\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		fmt.Fprintf(w, "  %s\n", truncate(deref(m.Title, m.AdID), 50))
		fmt.Fprintf(w, "  Make     : %s %s\n", deref(m.Make, "?"), deref(m.Model, ""))
		fmt.Fprintf(w, "  Location : %s\n", deref(m.Location, "?"))
		fmt.Fprintf(w, "  Price    : \033[1;31m%s\033[0m\n", deref(m.Price, "?"))
		fmt.Fprintln(w)
	}

	printCounts(w, "Top Makes", r.ListingsByMake, 5, thin)
	printCounts(w, "Listings by Location", r.ListingsByLocation, 10, thin)

	if len(res.TopMakes) > 0 {
		fmt.Fprintf(w, "\033[1;33m  Top Makes in Table\033[0m\n")
		fmt.Fprintf(w, "  %s\n", thin)
		for i, mc := range res.TopMakes {
			fmt.Fprintf(w, "  \033[1m%d.\033[0m %-40s %d\n", i+1, truncate(mc.Make, 38), mc.Count)
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "\033[1;35m%s\033[0m\n\n", sep)
}

type labelCount struct {
	label string
	count int
}

// sortedCounts orders counts descending, then by label.
func sortedCounts(counts map[string]int) []labelCount {
	out := make([]labelCount, 0, len(counts))
	for k, v := range counts {
		out = append(out, labelCount{k, v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].count != out[j].count {
			return out[i].count > out[j].count
		}
		return out[i].label < out[j].label
	})
	return out
}

func printCounts(w io.Writer, title string, counts map[string]int, limit int, thin string) {
	fmt.Fprintf(w, "\033[1;33m  %s\033[0m\n", title)
	fmt.Fprintf(w, "  %s\n", thin)
	if len(counts) == 0 {
		fmt.Fprintf(w, "  No data\n\n")
		return
	}
	for i, lc := range sortedCounts(counts) {
		if i == limit {
			break
		}
		bar := strings.Repeat("█", min(lc.count, 30))
		fmt.Fprintf(w, "  %-30s %s (%d)\n", truncate(lc.label, 28), bar, lc.count)
	}
	fmt.Fprintln(w)
}

func priceOf(l *models.CarListing) (float64, bool) {
	if l.Price == nil {
		return 0, false
	}
	p, err := strconv.ParseFloat(*l.Price, 64)
	if err != nil || p <= 0 {
		return 0, false
	}
	return p, true
}

func deref(s *string, fallback string) string {
	if s == nil {
		return fallback
	}
	return *s
}

func round2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}

// truncate shortens s to at most max runes.
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max-3]) + "..."
}
