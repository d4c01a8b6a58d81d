package database

import (
	"fmt"
	"time"

	"github.com/arijanluiken/tradescript/pkg/exchanges"
)

// SaveKlines upserts bars into the kline cache
func (db *DB) SaveKlines(exchange, symbol, interval string, klines []*exchanges.Kline) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT OR REPLACE INTO klines
		(exchange, symbol, interval, open_time, open, high, low, close, volume)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare kline insert: %w", err)
	}
	defer stmt.Close()

	for _, k := range klines {
		if _, err := stmt.Exec(exchange, symbol, interval, k.Timestamp.UnixMilli(),
			k.Open, k.High, k.Low, k.Close, k.Volume); err != nil {
			return fmt.Errorf("failed to save kline: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit klines: %w", err)
	}
	return nil
}

// GetKlines returns up to limit of the newest cached bars, oldest first
func (db *DB) GetKlines(exchange, symbol, interval string, limit int) ([]*exchanges.Kline, error) {
	query := `SELECT open_time, open, high, low, close, volume FROM (
			SELECT * FROM klines
			WHERE exchange = ? AND symbol = ? AND interval = ?
			ORDER BY open_time DESC
			LIMIT ?
		) ORDER BY open_time ASC`

	rows, err := db.conn.Query(query, exchange, symbol, interval, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query klines: %w", err)
	}
	defer rows.Close()

	var klines []*exchanges.Kline
	for rows.Next() {
		var openTime int64
		k := &exchanges.Kline{Symbol: symbol, Interval: interval}
		if err := rows.Scan(&openTime, &k.Open, &k.High, &k.Low, &k.Close, &k.Volume); err != nil {
			return nil, fmt.Errorf("failed to scan kline: %w", err)
		}
		k.Timestamp = time.UnixMilli(openTime)
		klines = append(klines, k)
	}
	return klines, rows.Err()
}
