package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"CoinSentry/internal/domain/models"
	domrepo "CoinSentry/internal/domain/repository"
	"CoinSentry/pkg/clickhouse"
)

// Table names used by the gateway.
const (
	tableObservations = "observations"
	tableSnapshots    = "metric_snapshots"
	tableAlerts       = "alerts"
)

// ClickHouseGateway implements the durable store over ClickHouse. Writes are
// chunked multi-row inserts; the alerts table is a ReplacingMergeTree so
// re-archiving the same alert (e.g. a topic replay) deduplicates at merge.
type ClickHouseGateway struct {
	client *clickhouse.Client
	db     *sql.DB
}

// NewClickHouseGateway creates the gateway over an established client.
func NewClickHouseGateway(client *clickhouse.Client) domrepo.Gateway {
	return &ClickHouseGateway{client: client, db: client.DB()}
}

func (g *ClickHouseGateway) Init(ctx context.Context) error {
	return g.client.InitSchema(ctx, []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol   String,
			exchange String,
			price    Float64,
			volume   Float64,
			ts       DateTime64(3)
		) ENGINE = MergeTree ORDER BY (symbol, ts)`, tableObservations),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			symbol                 String,
			ts                     DateTime64(3),
			price_change_15m       Float64,
			volume_change_15m      Float64,
			price_change_30m_prior Float64,
			momentum               Float64,
			volatility_ratio       Float64
		) ENGINE = MergeTree ORDER BY (symbol, ts)`, tableSnapshots),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			entity_id   String,
			metric      String,
			value       Float64,
			z_score     Float64,
			severity    String,
			detected_at DateTime64(3)
		) ENGINE = ReplacingMergeTree ORDER BY (entity_id, metric, detected_at)`, tableAlerts),
	})
}

func (g *ClickHouseGateway) SaveObservations(ctx context.Context, obs []*models.Observation) error {
	if len(obs) == 0 {
		return nil
	}
	// Chunk size tuned to keep one INSERT round-trip per polling cycle in
	// the common case.
	const chunkSize = 2000
	for start := 0; start < len(obs); start += chunkSize {
		end := start + chunkSize
		if end > len(obs) {
			end = len(obs)
		}
		values := make([]string, 0, end-start)
		args := make([]interface{}, 0, (end-start)*5)
		for _, o := range obs[start:end] {
			if o == nil || o.Symbol == "" || o.Timestamp == 0 {
				continue
			}
			values = append(values, "(?, ?, ?, ?, ?)")
			args = append(args, o.Symbol, o.Exchange, o.Price, o.Volume, o.Time())
		}
		if len(values) == 0 {
			continue
		}
		q := fmt.Sprintf("INSERT INTO %s (symbol, exchange, price, volume, ts) VALUES %s",
			tableObservations, strings.Join(values, ","))
		if _, err := g.db.ExecContext(ctx, q, args...); err != nil {
			return fmt.Errorf("save observations: %w", err)
		}
	}
	return nil
}

func (g *ClickHouseGateway) SaveSnapshot(ctx context.Context, s *models.MetricSnapshot) error {
	if s == nil || s.Symbol == "" {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s
		(symbol, ts, price_change_15m, volume_change_15m, price_change_30m_prior, momentum, volatility_ratio)
		VALUES (?, ?, ?, ?, ?, ?, ?)`, tableSnapshots)
	_, err := g.db.ExecContext(ctx, q,
		s.Symbol, s.Time(),
		s.PriceChange15m, s.VolumeChange15m, s.PriceChange30mPrev,
		s.Momentum, s.VolatilityRatio)
	if err != nil {
		return fmt.Errorf("save snapshot: %w", err)
	}
	return nil
}

func (g *ClickHouseGateway) SaveAlert(ctx context.Context, a *models.AnomalyRecord) error {
	if a == nil || a.EntityID == "" {
		return nil
	}
	q := fmt.Sprintf(`INSERT INTO %s
		(entity_id, metric, value, z_score, severity, detected_at)
		VALUES (?, ?, ?, ?, ?, ?)`, tableAlerts)
	_, err := g.db.ExecContext(ctx, q,
		a.EntityID, a.Metric, a.Value, a.ZScore, a.Severity, time.UnixMilli(a.DetectedAt))
	if err != nil {
		return fmt.Errorf("save alert: %w", err)
	}
	return nil
}

// GetLatest returns the most recent snapshot for symbol, or nil when the
// symbol has never been persisted.
func (g *ClickHouseGateway) GetLatest(ctx context.Context, symbol string) (*models.MetricSnapshot, error) {
	q := fmt.Sprintf(`SELECT symbol, ts, price_change_15m, volume_change_15m,
		price_change_30m_prior, momentum, volatility_ratio
		FROM %s WHERE symbol = ? ORDER BY ts DESC LIMIT 1`, tableSnapshots)
	row := g.db.QueryRowContext(ctx, q, symbol)
	s, err := scanSnapshot(row.Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get latest %s: %w", symbol, err)
	}
	return s, nil
}

func (g *ClickHouseGateway) GetWindow(ctx context.Context, symbol string, since time.Time, limit int) ([]*models.MetricSnapshot, error) {
	if limit <= 0 {
		limit = 100
	}
	q := fmt.Sprintf(`SELECT symbol, ts, price_change_15m, volume_change_15m,
		price_change_30m_prior, momentum, volatility_ratio
		FROM %s WHERE symbol = ? AND ts >= ? ORDER BY ts ASC LIMIT ?`, tableSnapshots)
	rows, err := g.db.QueryContext(ctx, q, symbol, since, limit)
	if err != nil {
		return nil, fmt.Errorf("get window %s: %w", symbol, err)
	}
	defer rows.Close()

	var out []*models.MetricSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (g *ClickHouseGateway) GetAlerts(ctx context.Context, metric, severity string, limit int) ([]*models.AnomalyRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	var conds []string
	var args []interface{}
	if metric != "" {
		conds = append(conds, "metric = ?")
		args = append(args, metric)
	}
	if severity != "" {
		conds = append(conds, "severity = ?")
		args = append(args, severity)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	q := fmt.Sprintf(`SELECT entity_id, metric, value, z_score, severity, detected_at
		FROM %s%s ORDER BY detected_at DESC, abs(z_score) DESC LIMIT ?`, tableAlerts, where)
	args = append(args, limit)

	rows, err := g.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("get alerts: %w", err)
	}
	defer rows.Close()

	var out []*models.AnomalyRecord
	for rows.Next() {
		var a models.AnomalyRecord
		var ts time.Time
		if err := rows.Scan(&a.EntityID, &a.Metric, &a.Value, &a.ZScore, &a.Severity, &ts); err != nil {
			return nil, err
		}
		a.DetectedAt = ts.UnixMilli()
		out = append(out, &a)
	}
	return out, rows.Err()
}

// CleanupOlderThan drops rows past the retention horizon from every table.
// ClickHouse mutations apply asynchronously, so the delete is best-effort.
func (g *ClickHouseGateway) CleanupOlderThan(ctx context.Context, retention time.Duration) error {
	cutoff := time.Now().Add(-retention)
	for _, t := range []struct{ table, col string }{
		{tableObservations, "ts"},
		{tableSnapshots, "ts"},
		{tableAlerts, "detected_at"},
	} {
		q := fmt.Sprintf("ALTER TABLE %s DELETE WHERE %s < ?", t.table, t.col)
		if _, err := g.db.ExecContext(ctx, q, cutoff); err != nil {
			return fmt.Errorf("cleanup %s: %w", t.table, err)
		}
	}
	return nil
}

func (g *ClickHouseGateway) Health(ctx context.Context) error {
	return g.db.PingContext(ctx)
}

func (g *ClickHouseGateway) Close() error {
	return nil // pool owned by pkg client
}

func scanSnapshot(scan func(...interface{}) error) (*models.MetricSnapshot, error) {
	var s models.MetricSnapshot
	var ts time.Time
	if err := scan(&s.Symbol, &ts,
		&s.PriceChange15m, &s.VolumeChange15m, &s.PriceChange30mPrev,
		&s.Momentum, &s.VolatilityRatio); err != nil {
		return nil, err
	}
	s.Timestamp = ts.UnixMilli()
	return &s, nil
}
