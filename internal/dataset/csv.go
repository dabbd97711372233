package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// DefaultCSV is the data.gov.sg export the store is normally built from.
const DefaultCSV = "ResaleflatpricesbasedonregistrationdatefromJan2017onwards.csv"

var ErrMissingColumn = errors.New("missing column")

var columns = []string{
	"month", "town", "flat_type", "block", "street_name", "storey_range",
	"floor_area_sqm", "flat_model", "lease_commence_date", "remaining_lease",
	"resale_price",
}

type Transaction struct {
	Month             string
	Year              int
	Town              string
	FlatType          string
	Block             string
	StreetName        string
	StoreyRange       string
	FloorAreaSqm      float64
	FlatModel         string
	LeaseCommenceDate int
	RemainingLease    string
	ResalePrice       float64
}

func ReadCSVFile(path string) ([]Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset: %w", err)
	}
	defer f.Close()
	return ReadCSV(f)
}

// ReadCSV parses the resale export. Columns are located by header name.
func ReadCSV(r io.Reader) ([]Transaction, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, h := range header {
		idx[strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))] = i
	}
	for _, c := range columns {
		if _, ok := idx[c]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, c)
		}
	}

	var out []Transaction
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		tx, err := parseRecord(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, tx)
	}
	return out, nil
}

func parseRecord(rec []string, idx map[string]int) (Transaction, error) {
	get := func(c string) string { return strings.TrimSpace(rec[idx[c]]) }

	month := get("month")
	if len(month) < 7 {
		return Transaction{}, fmt.Errorf("bad month %q", month)
	}
	year, err := strconv.Atoi(month[:4])
	if err != nil {
		return Transaction{}, fmt.Errorf("bad month %q: %w", month, err)
	}
	area, err := strconv.ParseFloat(get("floor_area_sqm"), 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("bad floor_area_sqm: %w", err)
	}
	price, err := strconv.ParseFloat(get("resale_price"), 64)
	if err != nil {
		return Transaction{}, fmt.Errorf("bad resale_price: %w", err)
	}
	lease, _ := strconv.Atoi(get("lease_commence_date"))

	return Transaction{
		Month:             month,
		Year:              year,
		Town:              strings.ToUpper(get("town")),
		FlatType:          strings.ToUpper(get("flat_type")),
		Block:             get("block"),
		StreetName:        get("street_name"),
		StoreyRange:       strings.ToUpper(get("storey_range")),
		FloorAreaSqm:      area,
		FlatModel:         get("flat_model"),
		LeaseCommenceDate: lease,
		RemainingLease:    get("remaining_lease"),
		ResalePrice:       price,
	}, nil
}
