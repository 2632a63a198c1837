package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	domain "github.com/oshokin/presence-alarm/internal/domain/presence"
)

const networkColumns = `id, name, first_seen_at, last_seen_at, alerting_delay_seconds, email, active_alarm_id`

// GetOrCreateNetwork implements Repository.
func (r *SQLRepository) GetOrCreateNetwork(
	ctx context.Context,
	seed *domain.Network,
) (*domain.Network, bool, error) {
	network, err := r.FindNetwork(ctx, seed.Name)
	if err == nil {
		return network, false, nil
	}

	if !errors.Is(err, ErrNotFound) {
		return nil, false, err
	}

	res, err := r.exec(ctx,
		`INSERT INTO networks (name, first_seen_at, last_seen_at, alerting_delay_seconds, email)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (name) DO NOTHING`,
		seed.Name,
		utc(seed.FirstSeenAt),
		utc(seed.LastSeenAt),
		int64(seed.AlertingDelay/time.Second),
		seed.Email,
	)
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert network %q: %w", seed.Name, err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return nil, false, fmt.Errorf("failed to insert network %q: %w", seed.Name, err)
	}

	network, err = r.FindNetwork(ctx, seed.Name)
	if err != nil {
		return nil, false, err
	}

	return network, affected > 0, nil
}

// FindNetwork implements Repository.
func (r *SQLRepository) FindNetwork(ctx context.Context, name string) (*domain.Network, error) {
	row := r.queryRow(ctx, `SELECT `+networkColumns+` FROM networks WHERE name = ?`, name)

	network, err := scanNetwork(row)
	if err != nil {
		return nil, fmt.Errorf("failed to find network %q: %w", name, notFound(err))
	}

	return network, nil
}

// ListNetworks implements Repository.
func (r *SQLRepository) ListNetworks(ctx context.Context) ([]*domain.Network, error) {
	rows, err := r.query(ctx, `SELECT `+networkColumns+` FROM networks ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	defer rows.Close()

	var result []*domain.Network

	for rows.Next() {
		network, scanErr := scanNetwork(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("failed to scan network: %w", scanErr)
		}

		result = append(result, network)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}

	return result, nil
}

// SaveNetwork implements Repository.
func (r *SQLRepository) SaveNetwork(ctx context.Context, network *domain.Network) error {
	if network.ID == 0 {
		id, err := r.insert(ctx,
			`INSERT INTO networks (name, first_seen_at, last_seen_at, alerting_delay_seconds, email, active_alarm_id)
			VALUES (?, ?, ?, ?, ?, ?)`,
			network.Name,
			utc(network.FirstSeenAt),
			utc(network.LastSeenAt),
			int64(network.AlertingDelay/time.Second),
			network.Email,
			nullID(network.ActiveAlarmID),
		)
		if err != nil {
			return fmt.Errorf("failed to insert network %q: %w", network.Name, err)
		}

		network.ID = id

		return nil
	}

	_, err := r.exec(ctx,
		`UPDATE networks
		SET last_seen_at = ?, alerting_delay_seconds = ?, email = ?, active_alarm_id = ?
		WHERE id = ?`,
		utc(network.LastSeenAt),
		int64(network.AlertingDelay/time.Second),
		network.Email,
		nullID(network.ActiveAlarmID),
		network.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update network %q: %w", network.Name, err)
	}

	return nil
}

func scanNetwork(s scanner) (*domain.Network, error) {
	var (
		n            domain.Network
		delaySeconds int64
		activeAlarm  sql.NullInt64
	)

	err := s.Scan(
		&n.ID,
		&n.Name,
		&n.FirstSeenAt,
		&n.LastSeenAt,
		&delaySeconds,
		&n.Email,
		&activeAlarm,
	)
	if err != nil {
		return nil, err
	}

	n.FirstSeenAt = n.FirstSeenAt.UTC()
	n.LastSeenAt = n.LastSeenAt.UTC()
	n.AlertingDelay = time.Duration(delaySeconds) * time.Second
	n.ActiveAlarmID = idPtr(activeAlarm)

	return &n, nil
}
