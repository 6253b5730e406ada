package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/campusvolt/prepaid-engine/internal/db"
	"github.com/campusvolt/prepaid-engine/internal/store"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Tx is an alias for pgx.Tx
type Tx = pgx.Tx

const meterColumns = `
	id, meter_code, user_id, block, house_unit, category,
	balance_kwh, energy_kwh, monthly_units_bought, status,
	low_threshold_kwh, low_alerted, version, created_at
`

// Repository is the Postgres-backed store. Meter mutations use optimistic
// CAS on the version column (ApplyMeter) or a row lock inside a transaction
// (PurchaseTopup, RedeemToken); both keep the critical section to a single
// read-compute-write cycle.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new repository
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func scanMeter(row pgx.Row) (*db.Meter, error) {
	var m db.Meter
	err := row.Scan(
		&m.ID,
		&m.MeterCode,
		&m.UserID,
		&m.Block,
		&m.HouseUnit,
		&m.Category,
		&m.BalanceKwh,
		&m.EnergyKwh,
		&m.MonthlyUnitsBought,
		&m.Status,
		&m.LowThresholdKwh,
		&m.LowAlerted,
		&m.Version,
		&m.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMeter registers a meter row. A duplicate meter_code surfaces as
// store.ErrMeterExists.
func (r *Repository) CreateMeter(ctx context.Context, m *db.Meter) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO meters (
			id, meter_code, user_id, block, house_unit, category,
			balance_kwh, energy_kwh, monthly_units_bought, status,
			low_threshold_kwh, low_alerted, version, created_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`

	_, err := r.pool.Exec(ctx, query,
		m.ID, m.MeterCode, m.UserID, m.Block, m.HouseUnit, m.Category,
		m.BalanceKwh, m.EnergyKwh, m.MonthlyUnitsBought, m.Status,
		m.LowThresholdKwh, m.LowAlerted, m.Version, m.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrMeterExists
		}
		return storeErr("failed to create meter", err)
	}
	return nil
}

// GetMeter loads a meter by id.
func (r *Repository) GetMeter(ctx context.Context, id uuid.UUID) (*db.Meter, error) {
	return r.getMeter(ctx, r.pool, id, "")
}

func (r *Repository) getMeter(ctx context.Context, q rowQuerier, id uuid.UUID, lock string) (*db.Meter, error) {
	query := `SELECT ` + meterColumns + ` FROM meters WHERE id = $1 ` + lock

	m, err := scanMeter(q.QueryRow(ctx, query, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMeterNotFound
		}
		return nil, storeErr("failed to query meter", err)
	}
	return m, nil
}

// GetMeterByCode loads a meter by its human meter code.
func (r *Repository) GetMeterByCode(ctx context.Context, code string) (*db.Meter, error) {
	query := `SELECT ` + meterColumns + ` FROM meters WHERE meter_code = $1`

	m, err := scanMeter(r.pool.QueryRow(ctx, query, code))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrMeterNotFound
		}
		return nil, storeErr("failed to query meter by code", err)
	}
	return m, nil
}

// ListMeters returns all meters, newest first, for simulator fan-out and
// the admin tracking view.
func (r *Repository) ListMeters(ctx context.Context) ([]db.Meter, error) {
	query := `SELECT ` + meterColumns + ` FROM meters ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storeErr("failed to list meters", err)
	}
	defer rows.Close()

	var meters []db.Meter
	for rows.Next() {
		m, err := scanMeter(rows)
		if err != nil {
			return nil, storeErr("failed to scan meter", err)
		}
		meters = append(meters, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("meter rows iteration error", err)
	}
	return meters, nil
}

// ApplyMeter runs mutate under optimistic CAS on the version column. After
// store.MaxApplyAttempts lost races it gives up with store.ErrConflict.
func (r *Repository) ApplyMeter(ctx context.Context, id uuid.UUID, mutate func(*db.Meter) error) (*db.Meter, error) {
	for attempt := 0; attempt < store.MaxApplyAttempts; attempt++ {
		current, err := r.getMeter(ctx, r.pool, id, "")
		if err != nil {
			return nil, err
		}

		next := *current
		if err := mutate(&next); err != nil {
			return nil, err
		}
		next.Version = current.Version + 1

		tag, err := r.updateMeter(ctx, r.pool, &next, current.Version)
		if err != nil {
			return nil, err
		}
		if tag.RowsAffected() == 1 {
			return &next, nil
		}
		// Lost the race; reload and retry.
	}
	return nil, store.ErrConflict
}

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

func (r *Repository) updateMeter(ctx context.Context, e execer, m *db.Meter, expectVersion int64) (pgconn.CommandTag, error) {
	query := `
		UPDATE meters
		SET balance_kwh = $1, energy_kwh = $2, monthly_units_bought = $3,
		    status = $4, low_threshold_kwh = $5, low_alerted = $6, version = $7
		WHERE id = $8 AND version = $9
	`

	tag, err := e.Exec(ctx, query,
		m.BalanceKwh, m.EnergyKwh, m.MonthlyUnitsBought,
		m.Status, m.LowThresholdKwh, m.LowAlerted, m.Version,
		m.ID, expectVersion,
	)
	if err != nil {
		return tag, storeErr("failed to update meter", err)
	}
	return tag, nil
}

// PurchaseTopup applies a meter mutation and records the topup it returns in
// a single transaction. The meter row is locked for the duration, which is
// one read-compute-write cycle. A token_code collision rolls the attempt
// back and re-runs mutate so the service re-mints.
func (r *Repository) PurchaseTopup(ctx context.Context, id uuid.UUID, mutate func(*db.Meter) (*db.Topup, error)) (*db.Meter, *db.Topup, error) {
	for attempt := 0; attempt < store.MaxMintAttempts; attempt++ {
		meter, topup, err := r.purchaseOnce(ctx, id, mutate)
		if err != nil {
			if errors.Is(err, store.ErrDuplicateCode) {
				continue
			}
			return nil, nil, err
		}
		return meter, topup, nil
	}
	return nil, nil, store.ErrDuplicateCode
}

func (r *Repository) purchaseOnce(ctx context.Context, id uuid.UUID, mutate func(*db.Meter) (*db.Topup, error)) (*db.Meter, *db.Topup, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, storeErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	current, err := r.getMeter(ctx, tx, id, "FOR UPDATE")
	if err != nil {
		return nil, nil, err
	}

	next := *current
	topup, err := mutate(&next)
	if err != nil {
		return nil, nil, err
	}
	next.Version = current.Version + 1

	if _, err := r.updateMeter(ctx, tx, &next, current.Version); err != nil {
		return nil, nil, err
	}

	if topup.ID == uuid.Nil {
		topup.ID = uuid.New()
	}
	if topup.CreatedAt.IsZero() {
		topup.CreatedAt = time.Now()
	}

	insertQuery := `
		INSERT INTO topups (id, meter_id, amount_paid, kwh_bought, token_code, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`
	if _, err := tx.Exec(ctx, insertQuery,
		topup.ID, topup.MeterID, topup.AmountPaid, topup.KwhBought, topup.TokenCode, topup.CreatedAt,
	); err != nil {
		if isUniqueViolation(err) {
			return nil, nil, store.ErrDuplicateCode
		}
		return nil, nil, storeErr("failed to insert topup", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, storeErr("failed to commit topup", err)
	}
	return &next, topup, nil
}

// CreateToken mints an unused token row; token_code carries a unique index.
func (r *Repository) CreateToken(ctx context.Context, t *db.Token) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO tokens (id, token_code, amount_kwh, status, meter_id, used_at, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`

	_, err := r.pool.Exec(ctx, query,
		t.ID, t.TokenCode, t.AmountKwh, t.Status, t.MeterID, t.UsedAt, t.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return store.ErrDuplicateCode
		}
		return storeErr("failed to create token", err)
	}
	return nil
}

// GetToken loads a token by code.
func (r *Repository) GetToken(ctx context.Context, code string) (*db.Token, error) {
	query := `
		SELECT id, token_code, amount_kwh, status, meter_id, used_at, created_at
		FROM tokens
		WHERE token_code = $1
	`

	var t db.Token
	err := r.pool.QueryRow(ctx, query, code).Scan(
		&t.ID, &t.TokenCode, &t.AmountKwh, &t.Status, &t.MeterID, &t.UsedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, store.ErrTokenNotFound
		}
		return nil, storeErr("failed to query token", err)
	}
	return &t, nil
}

// RedeemToken flips the token unused -> used and credits the meter in one
// transaction. The conditional UPDATE on status guarantees exactly one of
// two concurrent redemptions wins.
func (r *Repository) RedeemToken(ctx context.Context, code string, meterID uuid.UUID, at time.Time) (*db.Token, *db.Meter, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, nil, storeErr("failed to begin transaction", err)
	}
	defer tx.Rollback(ctx)

	flipQuery := `
		UPDATE tokens
		SET status = $1, meter_id = $2, used_at = $3
		WHERE token_code = $4 AND status = $5
		RETURNING id, token_code, amount_kwh, status, meter_id, used_at, created_at
	`

	var t db.Token
	err = tx.QueryRow(ctx, flipQuery, db.TokenUsed, meterID, at, code, db.TokenUnused).Scan(
		&t.ID, &t.TokenCode, &t.AmountKwh, &t.Status, &t.MeterID, &t.UsedAt, &t.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a consumed token from a missing one.
			var status string
			probeErr := r.pool.QueryRow(ctx, `SELECT status FROM tokens WHERE token_code = $1`, code).Scan(&status)
			if probeErr != nil {
				if errors.Is(probeErr, pgx.ErrNoRows) {
					return nil, nil, store.ErrTokenNotFound
				}
				return nil, nil, storeErr("failed to probe token", probeErr)
			}
			return nil, nil, store.ErrTokenAlreadyUsed
		}
		return nil, nil, storeErr("failed to redeem token", err)
	}

	current, err := r.getMeter(ctx, tx, meterID, "FOR UPDATE")
	if err != nil {
		return nil, nil, err
	}

	next := *current
	next.Credit(t.AmountKwh)
	next.Version = current.Version + 1

	if _, err := r.updateMeter(ctx, tx, &next, current.Version); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, nil, storeErr("failed to commit redemption", err)
	}
	return &t, &next, nil
}

// InsertReading appends a telemetry reading.
func (r *Repository) InsertReading(ctx context.Context, reading *db.Reading) error {
	if reading.ID == uuid.Nil {
		reading.ID = uuid.New()
	}
	if reading.CreatedAt.IsZero() {
		reading.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO readings (id, meter_id, voltage, current, power, energy_kwh, balance_kwh, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err := r.pool.Exec(ctx, query,
		reading.ID, reading.MeterID, reading.Voltage, reading.Current,
		reading.Power, reading.EnergyKwh, reading.BalanceKwh, reading.CreatedAt,
	)
	if err != nil {
		return storeErr("failed to insert reading", err)
	}
	return nil
}

// InsertAlert appends a typed alert.
func (r *Repository) InsertAlert(ctx context.Context, a *db.Alert) error {
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO alerts (id, meter_id, type, message, is_resolved, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		a.ID, a.MeterID, a.Type, a.Message, a.IsResolved, a.CreatedAt,
	)
	if err != nil {
		return storeErr("failed to insert alert", err)
	}
	return nil
}

// InsertNotification appends an admin-console notification.
func (r *Repository) InsertNotification(ctx context.Context, n *db.Notification) error {
	if n.ID == uuid.Nil {
		n.ID = uuid.New()
	}
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}

	query := `
		INSERT INTO notifications (id, type, title, message, link, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`

	_, err := r.pool.Exec(ctx, query,
		n.ID, n.Type, n.Title, n.Message, n.Link, n.CreatedAt,
	)
	if err != nil {
		return storeErr("failed to insert notification", err)
	}
	return nil
}

// ListTopups returns all topups, newest first.
func (r *Repository) ListTopups(ctx context.Context) ([]db.Topup, error) {
	query := `
		SELECT id, meter_id, amount_paid, kwh_bought, token_code, created_at
		FROM topups
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storeErr("failed to list topups", err)
	}
	defer rows.Close()

	var topups []db.Topup
	for rows.Next() {
		var t db.Topup
		if err := rows.Scan(&t.ID, &t.MeterID, &t.AmountPaid, &t.KwhBought, &t.TokenCode, &t.CreatedAt); err != nil {
			return nil, storeErr("failed to scan topup", err)
		}
		topups = append(topups, t)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("topup rows iteration error", err)
	}
	return topups, nil
}

// ListAlerts returns all alerts, newest first.
func (r *Repository) ListAlerts(ctx context.Context) ([]db.Alert, error) {
	query := `
		SELECT id, meter_id, type, message, is_resolved, created_at
		FROM alerts
		ORDER BY created_at DESC
	`

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, storeErr("failed to list alerts", err)
	}
	defer rows.Close()

	var alerts []db.Alert
	for rows.Next() {
		var a db.Alert
		if err := rows.Scan(&a.ID, &a.MeterID, &a.Type, &a.Message, &a.IsResolved, &a.CreatedAt); err != nil {
			return nil, storeErr("failed to scan alert", err)
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("alert rows iteration error", err)
	}
	return alerts, nil
}

// RecentReadings returns the latest readings for a meter.
func (r *Repository) RecentReadings(ctx context.Context, meterID uuid.UUID, limit int) ([]db.Reading, error) {
	query := `
		SELECT id, meter_id, voltage, current, power, energy_kwh, balance_kwh, created_at
		FROM readings
		WHERE meter_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`

	rows, err := r.pool.Query(ctx, query, meterID, limit)
	if err != nil {
		return nil, storeErr("failed to query recent readings", err)
	}
	defer rows.Close()

	var readings []db.Reading
	for rows.Next() {
		var rd db.Reading
		if err := rows.Scan(&rd.ID, &rd.MeterID, &rd.Voltage, &rd.Current, &rd.Power, &rd.EnergyKwh, &rd.BalanceKwh, &rd.CreatedAt); err != nil {
			return nil, storeErr("failed to scan reading", err)
		}
		readings = append(readings, rd)
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("reading rows iteration error", err)
	}
	return readings, nil
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505"
}

func storeErr(op string, err error) error {
	return fmt.Errorf("%s: %w", op, errors.Join(store.ErrStoreUnavailable, err))
}

var _ store.Store = (*Repository)(nil)
