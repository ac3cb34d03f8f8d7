package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"OptionPulse/internal/domain/models"
)

const (
	signalTable   = "signal_events"
	snapshotTable = "market_snapshots"
)

// Schema returns the idempotent DDL for the durable logs.
func Schema() []string {
	return []string{
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			ts        DateTime64(3),
			username  String,
			position  String,
			strike    Float64,
			ltp       Float64,
			delta     Float64,
			vega      Float64,
			theta     Float64,
			gamma     Float64
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(ts)
		ORDER BY (username, ts)`, signalTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			poll_ts      DateTime64(3),
			username     String,
			seq          UInt64,
			underlying   Float64,
			open_price   Float64,
			atm_strike   Float64,
			expiry       String,
			option_count UInt16,
			payload      String
		) ENGINE = MergeTree()
		PARTITION BY toYYYYMM(poll_ts)
		ORDER BY (username, poll_ts, seq)`, snapshotTable),
	}
}

// ClickHouseSignalLog records fired signals in the signal_events table.
type ClickHouseSignalLog struct {
	db *sql.DB
}

func NewClickHouseSignalLog(db *sql.DB) *ClickHouseSignalLog {
	return &ClickHouseSignalLog{db: db}
}

func (s *ClickHouseSignalLog) Append(ctx context.Context, ev *models.SignalEvent) error {
	if ev == nil || ev.Username == "" {
		return fmt.Errorf("signal event missing username")
	}
	q := fmt.Sprintf("INSERT INTO %s (ts, username, position, strike, ltp, delta, vega, theta, gamma) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)", signalTable)
	_, err := s.db.ExecContext(ctx, q,
		ev.Timestamp,
		ev.Username,
		string(ev.Position),
		ev.StrikePrice,
		ev.StrikeLTP,
		ev.Delta,
		ev.Vega,
		ev.Theta,
		ev.Gamma,
	)
	return err
}

func (s *ClickHouseSignalLog) List(ctx context.Context, username string, from, to time.Time, limit int) ([]*models.SignalEvent, error) {
	if limit <= 0 {
		limit = 500
	}
	q := fmt.Sprintf("SELECT ts, username, position, strike, ltp, delta, vega, theta, gamma FROM %s WHERE username = ? AND ts >= ? AND ts <= ? ORDER BY ts DESC LIMIT ?", signalTable)
	rows, err := s.db.QueryContext(ctx, q, username, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*models.SignalEvent
	for rows.Next() {
		var ev models.SignalEvent
		var pos string
		if err := rows.Scan(&ev.Timestamp, &ev.Username, &pos, &ev.StrikePrice, &ev.StrikeLTP, &ev.Delta, &ev.Vega, &ev.Theta, &ev.Gamma); err != nil {
			return nil, err
		}
		ev.Position = models.Position(pos)
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func (s *ClickHouseSignalLog) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSignalLog) Close() error {
	return nil // pool owned by pkg client
}

// ClickHouseSnapshotLog stores each published snapshot: indexed columns for
// range queries plus the full JSON payload for export.
type ClickHouseSnapshotLog struct {
	db *sql.DB
}

func NewClickHouseSnapshotLog(db *sql.DB) *ClickHouseSnapshotLog {
	return &ClickHouseSnapshotLog{db: db}
}

func (s *ClickHouseSnapshotLog) Init(ctx context.Context) error {
	for _, stmt := range Schema() {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

func (s *ClickHouseSnapshotLog) Store(ctx context.Context, snap *models.PublishedSnapshot) error {
	return s.StoreBatch(ctx, []*models.PublishedSnapshot{snap})
}

func (s *ClickHouseSnapshotLog) StoreBatch(ctx context.Context, snaps []*models.PublishedSnapshot) error {
	if len(snaps) == 0 {
		return nil
	}

	values := make([]string, 0, len(snaps))
	args := make([]interface{}, 0, len(snaps)*9)
	for _, snap := range snaps {
		if snap == nil || snap.Username == "" {
			continue
		}
		payload, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("marshal snapshot %d: %w", snap.Sequence, err)
		}
		values = append(values, "(?, ?, ?, ?, ?, ?, ?, ?, ?)")
		args = append(args,
			snap.PollTimestamp,
			snap.Username,
			snap.Sequence,
			snap.UnderlyingPrice,
			snap.OpenPrice,
			snap.ATMStrike,
			snap.ExpiryDate,
			uint16(snap.OptionCount),
			string(payload),
		)
	}
	if len(values) == 0 {
		return nil
	}

	q := fmt.Sprintf("INSERT INTO %s (poll_ts, username, seq, underlying, open_price, atm_strike, expiry, option_count, payload) VALUES %s",
		snapshotTable, strings.Join(values, ","))
	_, err := s.db.ExecContext(ctx, q, args...)
	return err
}

func (s *ClickHouseSnapshotLog) Query(ctx context.Context, username string, from, to time.Time, limit int) ([]*models.PublishedSnapshot, error) {
	if limit <= 0 {
		limit = 1000
	}
	q := fmt.Sprintf("SELECT payload FROM %s WHERE username = ? AND poll_ts >= ? AND poll_ts <= ? ORDER BY poll_ts ASC LIMIT ?", snapshotTable)
	rows, err := s.db.QueryContext(ctx, q, username, from, to, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var snaps []*models.PublishedSnapshot
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, err
		}
		var snap models.PublishedSnapshot
		if err := json.Unmarshal([]byte(payload), &snap); err != nil {
			return nil, fmt.Errorf("unmarshal snapshot payload: %w", err)
		}
		snaps = append(snaps, &snap)
	}
	return snaps, rows.Err()
}

func (s *ClickHouseSnapshotLog) Health(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *ClickHouseSnapshotLog) Close() error {
	return nil // pool owned by pkg client
}
