// Package store provides a SQLite-backed cache for attribute documents and budget snapshots.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/theirongolddev/budgetscope/internal/address"
	"github.com/theirongolddev/budgetscope/internal/model"

	_ "modernc.org/sqlite" // register sqlite driver
)

// timeLayout is fixed-width so stored timestamps sort lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Cache provides SQLite-backed caching. It is safe for concurrent use.
type Cache struct {
	db *sql.DB
}

// Open opens or creates the cache database at the given path.
func Open(dbPath string) (*Cache, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("creating cache dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("opening cache db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &Cache{db: db}, nil
}

// Close closes the cache database.
func (c *Cache) Close() error {
	return c.db.Close()
}

// Document is a cached approved amount read from an attribute document.
type Document struct {
	URI            string
	ApprovedAmount uint64
	FetchedAt      time.Time
}

// GetDocument returns the cached document for uri if it is younger than maxAge.
// A zero maxAge accepts any age.
func (c *Cache) GetDocument(uri string, maxAge time.Duration) (Document, bool, error) {
	var amount, fetched string
	err := c.db.QueryRow("SELECT approved_amount, fetched_at FROM documents WHERE uri = ?", uri).
		Scan(&amount, &fetched)
	if errors.Is(err, sql.ErrNoRows) {
		return Document{}, false, nil
	}
	if err != nil {
		return Document{}, false, err
	}

	doc := Document{URI: uri}
	if doc.ApprovedAmount, err = strconv.ParseUint(amount, 10, 64); err != nil {
		return Document{}, false, fmt.Errorf("store: corrupt amount for %s: %w", uri, err)
	}
	doc.FetchedAt, _ = time.Parse(timeLayout, fetched)

	if maxAge > 0 && time.Since(doc.FetchedAt) > maxAge {
		return doc, false, nil
	}
	return doc, true, nil
}

// PutDocument stores or replaces the cached document.
func (c *Cache) PutDocument(doc Document) error {
	if doc.FetchedAt.IsZero() {
		doc.FetchedAt = time.Now()
	}
	_, err := c.db.Exec(`INSERT OR REPLACE INTO documents (uri, approved_amount, fetched_at)
		VALUES (?, ?, ?)`,
		doc.URI, strconv.FormatUint(doc.ApprovedAmount, 10), doc.FetchedAt.UTC().Format(timeLayout))
	return err
}

// DeleteDocument removes a cached document.
func (c *Cache) DeleteDocument(uri string) error {
	_, err := c.db.Exec("DELETE FROM documents WHERE uri = ?", uri)
	return err
}

// DocumentCount returns the number of cached documents.
func (c *Cache) DocumentCount() (int, error) {
	var count int
	err := c.db.QueryRow("SELECT COUNT(*) FROM documents").Scan(&count)
	return count, err
}

// Snapshot is the recorded outcome of one budget load.
type Snapshot struct {
	RunID        string             `json:"run_id"`
	Budget       address.Address    `json:"budget"`
	Collection   address.Address    `json:"collection"`
	TakenAt      time.Time          `json:"taken_at"`
	ExpenseCount uint32             `json:"expense_count"`
	Totals       model.BudgetTotals `json:"totals"`
	Skipped      int                `json:"skipped"`
}

// NewSnapshot summarizes a report for storage.
func NewSnapshot(runID string, r *model.BudgetReport, takenAt time.Time) Snapshot {
	return Snapshot{
		RunID:        runID,
		Budget:       r.Address,
		Collection:   r.Budget.Collection,
		TakenAt:      takenAt,
		ExpenseCount: r.Budget.ExpenseCount,
		Totals:       r.Totals,
		Skipped:      len(r.Skipped),
	}
}

// SaveSnapshot appends a snapshot.
func (c *Cache) SaveSnapshot(s Snapshot) error {
	t := s.Totals
	_, err := c.db.Exec(`INSERT INTO snapshots
		(run_id, budget, collection, taken_at, expense_count,
		 total_approved, total_spent, total_remaining, total_overage,
		 reconciled, warnings, over_budget, suspicious, stale, skipped)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		s.RunID, s.Budget.String(), s.Collection.String(), s.TakenAt.UTC().Format(timeLayout), s.ExpenseCount,
		u64(t.TotalApproved), u64(t.TotalSpent), u64(t.TotalRemaining), u64(t.TotalOverage),
		t.Reconciled, t.Warnings, t.OverBudget, t.Suspicious, t.Stale, s.Skipped,
	)
	return err
}

// Snapshots returns up to limit snapshots of budget, newest first.
// A non-positive limit returns all of them.
func (c *Cache) Snapshots(budget address.Address, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := c.db.Query(`SELECT
		run_id, collection, taken_at, expense_count,
		total_approved, total_spent, total_remaining, total_overage,
		reconciled, warnings, over_budget, suspicious, stale, skipped
		FROM snapshots WHERE budget = ? ORDER BY taken_at DESC, id DESC LIMIT ?`,
		budget.String(), limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []Snapshot
	for rows.Next() {
		s := Snapshot{Budget: budget}
		var collection, takenAt string
		var approved, spent, remaining, overage string
		err := rows.Scan(
			&s.RunID, &collection, &takenAt, &s.ExpenseCount,
			&approved, &spent, &remaining, &overage,
			&s.Totals.Reconciled, &s.Totals.Warnings, &s.Totals.OverBudget,
			&s.Totals.Suspicious, &s.Totals.Stale, &s.Skipped,
		)
		if err != nil {
			return nil, err
		}
		if s.Collection, err = address.Parse(collection); err != nil {
			return nil, fmt.Errorf("store: corrupt snapshot: %w", err)
		}
		s.TakenAt, _ = time.Parse(timeLayout, takenAt)

		for _, f := range []struct {
			src string
			dst *uint64
		}{
			{approved, &s.Totals.TotalApproved},
			{spent, &s.Totals.TotalSpent},
			{remaining, &s.Totals.TotalRemaining},
			{overage, &s.Totals.TotalOverage},
		} {
			if *f.dst, err = strconv.ParseUint(f.src, 10, 64); err != nil {
				return nil, fmt.Errorf("store: corrupt snapshot amount: %w", err)
			}
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

// PruneSnapshots keeps the newest keep snapshots per budget.
func (c *Cache) PruneSnapshots(keep int) (int64, error) {
	res, err := c.db.Exec(`DELETE FROM snapshots WHERE id IN (
		SELECT id FROM (
			SELECT id, ROW_NUMBER() OVER (PARTITION BY budget ORDER BY taken_at DESC, id DESC) AS rn
			FROM snapshots
		) WHERE rn > ?)`, keep)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func u64(v uint64) string {
	return strconv.FormatUint(v, 10)
}
