// Package dataset holds the HDB resale transactions and answers structured
// queries over them. The query connection is read-only.
package dataset

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/sahilm/fuzzy"
	_ "modernc.org/sqlite"

	"github.com/BerylCAtieno/hdb-resale-agent/internal/models"
)

var ErrNoData = errors.New("no matching transactions")

const schema = `
CREATE TABLE IF NOT EXISTS transactions (
	month TEXT NOT NULL,
	year INTEGER NOT NULL,
	town TEXT NOT NULL,
	flat_type TEXT NOT NULL,
	block TEXT,
	street_name TEXT,
	storey_range TEXT,
	floor_area_sqm REAL NOT NULL,
	flat_model TEXT,
	lease_commence_date INTEGER,
	remaining_lease TEXT,
	resale_price REAL NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_tx_town_year ON transactions(town, year);
CREATE INDEX IF NOT EXISTS idx_tx_year ON transactions(year);
`

// Store keeps a write handle only for the initial import; every query goes
// through the read-only handle.
type Store struct {
	writeDB *sql.DB
	readDB  *sql.DB

	mu         sync.RWMutex
	towns      []string
	flatTypes  []string
	firstMonth string
	lastMonth  string
}

// Result is the answer to one query.
type Result struct {
	Query        Query              `json:"query"`
	Broadened    bool               `json:"broadened"`
	Statistics   []models.Statistic `json:"statistics"`
	Transactions int                `json:"transactions"`
}

// Open opens (or creates) a store. An empty path creates a private
// in-memory database.
func Open(path string) (*Store, error) {
	var writeDSN, readDSN string
	if path == "" {
		name := "resale-" + uuid.NewString()
		writeDSN = "file:" + name + "?mode=memory&cache=shared"
		readDSN = writeDSN + "&_pragma=query_only(1)"
	} else {
		writeDSN = path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
		readDSN = path + "?mode=ro&_pragma=query_only(1)&_pragma=busy_timeout(1000)"
	}

	writeDB, err := sql.Open("sqlite", writeDSN)
	if err != nil {
		return nil, fmt.Errorf("failed to open dataset db: %w", err)
	}
	writeDB.SetMaxOpenConns(1)
	if _, err := writeDB.Exec(schema); err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}

	readDB, err := sql.Open("sqlite", readDSN)
	if err != nil {
		writeDB.Close()
		return nil, fmt.Errorf("failed to open read-only dataset db: %w", err)
	}

	s := &Store{writeDB: writeDB, readDB: readDB}
	if err := s.refreshVocabulary(context.Background()); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return errors.Join(s.readDB.Close(), s.writeDB.Close())
}

// Count returns the number of stored transactions.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.readDB.QueryRowContext(ctx, `SELECT COUNT(*) FROM transactions`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// Import replaces the stored transactions.
func (s *Store) Import(ctx context.Context, txs []Transaction) error {
	tx, err := s.writeDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin import: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM transactions`); err != nil {
		return fmt.Errorf("failed to clear transactions: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO transactions
		(month, year, town, flat_type, block, street_name, storey_range, floor_area_sqm, flat_model, lease_commence_date, remaining_lease, resale_price)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, t := range txs {
		if _, err := stmt.ExecContext(ctx, t.Month, t.Year, t.Town, t.FlatType, t.Block, t.StreetName,
			t.StoreyRange, t.FloorAreaSqm, t.FlatModel, t.LeaseCommenceDate, t.RemainingLease, t.ResalePrice); err != nil {
			return fmt.Errorf("failed to insert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit import: %w", err)
	}

	log.Info().Int("transactions", len(txs)).Msg("dataset imported")
	return s.refreshVocabulary(ctx)
}

// ImportCSV loads the export at path when the store is empty.
func (s *Store) ImportCSV(ctx context.Context, path string) error {
	n, err := s.Count(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		log.Debug().Int("transactions", n).Msg("dataset already loaded")
		return nil
	}
	txs, err := ReadCSVFile(path)
	if err != nil {
		return err
	}
	return s.Import(ctx, txs)
}

func (s *Store) refreshVocabulary(ctx context.Context) error {
	towns, err := s.distinct(ctx, "town")
	if err != nil {
		return err
	}
	flatTypes, err := s.distinct(ctx, "flat_type")
	if err != nil {
		return err
	}

	var first, last sql.NullString
	if err := s.readDB.QueryRowContext(ctx, `SELECT MIN(month), MAX(month) FROM transactions`).Scan(&first, &last); err != nil {
		return fmt.Errorf("failed to read dataset range: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.towns, s.flatTypes = towns, flatTypes
	s.firstMonth, s.lastMonth = first.String, last.String
	return nil
}

func (s *Store) distinct(ctx context.Context, column string) ([]string, error) {
	rows, err := s.readDB.QueryContext(ctx, `SELECT DISTINCT `+column+` FROM transactions ORDER BY 1`)
	if err != nil {
		return nil, fmt.Errorf("failed to list %s values: %w", column, err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var v string
		if err := rows.Scan(&v); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Range describes the covered period, e.g. "2017-01 to 2024-10".
func (s *Store) Range() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.firstMonth == "" {
		return "no transactions loaded"
	}
	return s.firstMonth + " to " + s.lastMonth
}

// Resolve maps free-form town and flat type names onto stored values.
func (s *Store) Resolve(q Query) Query {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q.Towns = resolveNames(q.Towns, s.towns)
	q.FlatTypes = resolveNames(q.FlatTypes, s.flatTypes)
	q.StoreyRanges = upperAll(q.StoreyRanges)
	q.FlatModels = upperAll(q.FlatModels)
	return q
}

func upperAll(vals []string) []string {
	if len(vals) == 0 {
		return nil
	}
	out := make([]string, len(vals))
	for i, v := range vals {
		out[i] = strings.ToUpper(strings.TrimSpace(v))
	}
	return out
}

func resolveNames(names, known []string) []string {
	if len(names) == 0 {
		return nil
	}
	seen := make(map[string]bool)
	var out []string
	for _, name := range names {
		n := strings.ToUpper(strings.TrimSpace(strings.ReplaceAll(name, "-", " ")))
		match := ""
		for _, k := range known {
			if k == n {
				match = k
				break
			}
		}
		if match == "" && n != "" {
			if found := fuzzy.Find(n, known); len(found) > 0 {
				match = found[0].Str
			}
		}
		if match == "" {
			// kept verbatim so the query matches nothing instead of everything
			log.Debug().Str("name", name).Msg("unknown filter value")
			match = n
		}
		if !seen[match] {
			seen[match] = true
			out = append(out, match)
		}
	}
	return out
}

// Run executes a query. It returns ErrNoData when nothing matches.
func (s *Store) Run(ctx context.Context, q Query) (*Result, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	where, args := whereClause(q)
	label := groupExpr(q.GroupBy)

	var stats []models.Statistic
	var err error
	if q.Metric == MetricMedianPrice {
		stats, err = s.medians(ctx, label, where, args)
	} else {
		stats, err = s.aggregate(ctx, q.Metric, label, where, args)
	}
	if err != nil {
		return nil, err
	}

	total := 0
	for _, st := range stats {
		total += st.Count
	}
	if total == 0 {
		return nil, ErrNoData
	}

	return &Result{Query: q, Statistics: stats, Transactions: total}, nil
}

func (s *Store) aggregate(ctx context.Context, m Metric, label, where string, args []any) ([]models.Statistic, error) {
	query := fmt.Sprintf(`SELECT %s AS label, %s AS value, COUNT(*) AS n FROM transactions%s GROUP BY label ORDER BY label`,
		label, aggExpr(m), where)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	var stats []models.Statistic
	for rows.Next() {
		var st models.Statistic
		var value float64
		if err := rows.Scan(&st.Label, &value, &st.Count); err != nil {
			return nil, fmt.Errorf("failed to scan statistic: %w", err)
		}
		st.Value = round2(value)
		stats = append(stats, st)
	}
	return stats, rows.Err()
}

func (s *Store) medians(ctx context.Context, label, where string, args []any) ([]models.Statistic, error) {
	query := fmt.Sprintf(`SELECT %s AS label, resale_price FROM transactions%s ORDER BY label, resale_price`, label, where)

	rows, err := s.readDB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query transactions: %w", err)
	}
	defer rows.Close()

	groups := make(map[string][]float64)
	var order []string
	for rows.Next() {
		var l string
		var p float64
		if err := rows.Scan(&l, &p); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		if _, ok := groups[l]; !ok {
			order = append(order, l)
		}
		groups[l] = append(groups[l], p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	stats := make([]models.Statistic, 0, len(order))
	for _, l := range order {
		stats = append(stats, models.Statistic{Label: l, Value: round2(Median(groups[l])), Count: len(groups[l])})
	}
	return stats, nil
}

// Median of an unsorted slice; 0 for an empty one.
func Median(vals []float64) float64 {
	if len(vals) == 0 {
		return 0
	}
	sorted := append([]float64(nil), vals...)
	sort.Float64s(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

func aggExpr(m Metric) string {
	switch m {
	case MetricMinPrice:
		return "MIN(resale_price)"
	case MetricMaxPrice:
		return "MAX(resale_price)"
	case MetricCount:
		return "COUNT(*)"
	case MetricAvgPricePerSqm:
		return "AVG(resale_price / floor_area_sqm)"
	}
	return "AVG(resale_price)"
}

func groupExpr(g GroupBy) string {
	switch g {
	case GroupYear:
		return "CAST(year AS TEXT)"
	case GroupMonth:
		return "month"
	case GroupTown:
		return "town"
	case GroupFlatType:
		return "flat_type"
	case GroupStoreyRange:
		return "storey_range"
	}
	return "'all'"
}

func whereClause(q Query) (string, []any) {
	var conds []string
	var args []any

	in := func(column string, vals []string) {
		if len(vals) == 0 {
			return
		}
		conds = append(conds, column+" IN ("+strings.TrimSuffix(strings.Repeat("?,", len(vals)), ",")+")")
		for _, v := range vals {
			args = append(args, v)
		}
	}
	in("town", q.Towns)
	in("flat_type", q.FlatTypes)
	in("UPPER(flat_model)", q.FlatModels)
	in("storey_range", q.StoreyRanges)

	if q.FromYear != 0 {
		conds = append(conds, "year >= ?")
		args = append(args, q.FromYear)
	}
	if q.ToYear != 0 {
		conds = append(conds, "year <= ?")
		args = append(args, q.ToYear)
	}
	if q.MinFloorArea > 0 {
		conds = append(conds, "floor_area_sqm >= ?")
		args = append(args, q.MinFloorArea)
	}
	if q.MaxFloorArea > 0 {
		conds = append(conds, "floor_area_sqm <= ?")
		args = append(args, q.MaxFloorArea)
	}
	if q.Metric == MetricAvgPricePerSqm {
		// rows without a floor area have no price per sqm
		conds = append(conds, "floor_area_sqm > 0")
	}

	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
