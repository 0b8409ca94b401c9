package canonical

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"partlogic/searchservice/internal/domain"
)

// priceAlertWindow bounds how far back a snapshot may be and still
// satisfy an alert. Stale prices should not fire alerts.
const priceAlertWindow = 7 * 24 * time.Hour

// CreatePriceAlert registers an alert on a part number. The alert stays
// pending until a recent snapshot at or below the target price shows up.
func (s *Store) CreatePriceAlert(ctx context.Context, alert domain.PriceAlert) (domain.PriceAlert, error) {
	alert.PartNumber = NormalizePartNumberValue(alert.PartNumber)
	if alert.PartNumber == "" {
		return domain.PriceAlert{}, errors.New("part number is required")
	}
	if alert.TargetPrice <= 0 {
		return domain.PriceAlert{}, errors.New("target price must be positive")
	}
	alert.Brand = strings.TrimSpace(alert.Brand)
	alert.SavedSearchID = strings.TrimSpace(alert.SavedSearchID)
	if alert.CreatedAt.IsZero() {
		alert.CreatedAt = time.Now().UTC()
	}

	var savedSearchID any
	if alert.SavedSearchID != "" {
		savedSearchID = alert.SavedSearchID
	}
	result, err := s.db.ExecContext(ctx,
		`INSERT INTO price_alerts (saved_search_id, part_number, brand, target_price, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		savedSearchID, alert.PartNumber, alert.Brand, alert.TargetPrice,
		alert.CreatedAt.Format(timeFormat))
	if err != nil {
		return domain.PriceAlert{}, fmt.Errorf("insert price alert: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return domain.PriceAlert{}, err
	}
	alert.ID = id
	return alert, nil
}

func (s *Store) ListPriceAlerts(ctx context.Context, pendingOnly bool) ([]domain.PriceAlert, error) {
	query := `SELECT id, saved_search_id, part_number, brand, target_price, current_lowest,
			triggered, triggered_at, source, created_at
		 FROM price_alerts`
	if pendingOnly {
		query += ` WHERE triggered = 0`
	}
	query += ` ORDER BY created_at DESC, id DESC`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	alerts := make([]domain.PriceAlert, 0)
	for rows.Next() {
		alert, err := scanPriceAlert(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, alert)
	}
	return alerts, rows.Err()
}

func (s *Store) DeletePriceAlert(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM price_alerts WHERE id = ?`, id)
	if err != nil {
		return err
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// CheckPriceAlerts compares each pending alert against the lowest
// snapshot for its part number inside the alert window and fires the
// ones that were met. Returns the alerts triggered by this pass.
// Already-triggered alerts never fire again.
func (s *Store) CheckPriceAlerts(ctx context.Context) ([]domain.PriceAlert, error) {
	pending, err := s.ListPriceAlerts(ctx, true)
	if err != nil {
		return nil, err
	}

	cutoff := time.Now().UTC().Add(-priceAlertWindow).Format(timeFormat)
	triggered := make([]domain.PriceAlert, 0)
	for _, alert := range pending {
		query := `SELECT price, source FROM price_snapshots
			 WHERE part_number = ? AND price > 0 AND captured_at >= ?`
		args := []any{alert.PartNumber, cutoff}
		if alert.Brand != "" {
			query += ` AND brand = ? COLLATE NOCASE`
			args = append(args, alert.Brand)
		}
		query += ` ORDER BY price ASC LIMIT 1`

		var lowest float64
		var source string
		err := s.db.QueryRowContext(ctx, query, args...).Scan(&lowest, &source)
		if errors.Is(err, sql.ErrNoRows) {
			continue
		}
		if err != nil {
			return triggered, err
		}
		if lowest > alert.TargetPrice {
			continue
		}

		now := time.Now().UTC()
		result, err := s.db.ExecContext(ctx,
			`UPDATE price_alerts SET triggered = 1, triggered_at = ?, current_lowest = ?, source = ?
			 WHERE id = ? AND triggered = 0`,
			now.Format(timeFormat), lowest, source, alert.ID)
		if err != nil {
			return triggered, fmt.Errorf("trigger price alert %d: %w", alert.ID, err)
		}
		if affected, _ := result.RowsAffected(); affected == 0 {
			continue
		}
		alert.Triggered = true
		alert.TriggeredAt = &now
		alert.CurrentLowest = &lowest
		alert.Source = source
		triggered = append(triggered, alert)
	}
	return triggered, nil
}

// RunPriceAlertChecker evaluates pending alerts on a fixed interval
// until the context is canceled.
func (s *Store) RunPriceAlertChecker(ctx context.Context, interval time.Duration, logger *slog.Logger) {
	if interval <= 0 {
		interval = 30 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			fired, err := s.CheckPriceAlerts(ctx)
			if err != nil {
				logger.Warn("price alert check failed", slog.Any("error", err))
				continue
			}
			for _, alert := range fired {
				logger.Info("price alert triggered",
					slog.Int64("alertId", alert.ID),
					slog.String("partNumber", alert.PartNumber),
					slog.Float64("targetPrice", alert.TargetPrice),
					slog.Float64("lowest", *alert.CurrentLowest),
					slog.String("source", alert.Source),
				)
			}
		}
	}
}

func scanPriceAlert(row rowScanner) (domain.PriceAlert, error) {
	var alert domain.PriceAlert
	var savedSearchID sql.NullString
	var currentLowest sql.NullFloat64
	var triggered int
	var triggeredAt sql.NullString
	var createdAt string
	err := row.Scan(&alert.ID, &savedSearchID, &alert.PartNumber, &alert.Brand, &alert.TargetPrice,
		&currentLowest, &triggered, &triggeredAt, &alert.Source, &createdAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return domain.PriceAlert{}, ErrNotFound
		}
		return domain.PriceAlert{}, err
	}
	alert.SavedSearchID = savedSearchID.String
	if currentLowest.Valid {
		value := currentLowest.Float64
		alert.CurrentLowest = &value
	}
	alert.Triggered = triggered != 0
	if triggeredAt.Valid {
		if parsed, err := time.Parse(timeFormat, triggeredAt.String); err == nil {
			alert.TriggeredAt = &parsed
		}
	}
	alert.CreatedAt, _ = time.Parse(timeFormat, createdAt)
	return alert, nil
}
