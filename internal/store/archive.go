package store

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/debtline/line-engine/internal/amount"
	"github.com/debtline/line-engine/internal/model"
)

// Archive persists append-only snapshots of merged lines to PostgreSQL.
// The in-memory aggregate store stays the source of truth for the
// session; the archive is history only and is never read back into the
// store. Monetary values are stored as NUMERIC for exact precision.
type Archive struct {
	pool *pgxpool.Pool
}

// NewArchive creates a PostgreSQL-backed line snapshot archive.
func NewArchive(pool *pgxpool.Pool) *Archive {
	return &Archive{pool: pool}
}

// LineSnapshot is one archived state of a line at merge time.
type LineSnapshot struct {
	ID              string        `json:"id"`
	LineID          string        `json:"line_id"`
	Status          string        `json:"status"`
	Principal       amount.Amount `json:"principal"`
	Deposit         amount.Amount `json:"deposit"`
	CollateralValue amount.Amount `json:"collateral_value"`
	CapturedAt      time.Time     `json:"captured_at"`
}

// SaveLineSnapshot appends a snapshot of a merged line.
func (a *Archive) SaveLineSnapshot(ctx context.Context, line model.SecuredLine, collateralValue amount.Amount) error {
	_, err := a.pool.Exec(ctx,
		`INSERT INTO line_snapshots (id, line_id, status, principal, deposit, collateral_value, captured_at)
		 VALUES ($1, $2, $3, $4::NUMERIC, $5::NUMERIC, $6::NUMERIC, $7)`,
		uuid.New().String(), line.ID, string(line.Status),
		line.Principal.String(), line.Deposit.String(), collateralValue.String(),
		time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("archive line %s: %w", line.ID, err)
	}
	return nil
}

// ListLineSnapshots returns a line's snapshots, newest first.
func (a *Archive) ListLineSnapshots(ctx context.Context, lineID string) ([]LineSnapshot, error) {
	rows, err := a.pool.Query(ctx,
		`SELECT id, line_id, status,
		        principal::TEXT, deposit::TEXT, collateral_value::TEXT,
		        captured_at
		 FROM line_snapshots WHERE line_id = $1 ORDER BY captured_at DESC`, lineID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snapshots []LineSnapshot
	for rows.Next() {
		var s LineSnapshot
		var principal, deposit, collateralValue string
		if err := rows.Scan(&s.ID, &s.LineID, &s.Status,
			&principal, &deposit, &collateralValue,
			&s.CapturedAt); err != nil {
			return nil, err
		}
		s.Principal = amount.ParseOrZero(principal, amount.UsdDecimals)
		s.Deposit = amount.ParseOrZero(deposit, amount.UsdDecimals)
		s.CollateralValue = amount.ParseOrZero(collateralValue, amount.UsdDecimals)
		snapshots = append(snapshots, s)
	}
	return snapshots, rows.Err()
}
