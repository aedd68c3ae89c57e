package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/betbot/copycat/internal/domain"
)

// UpsertWalletPending registers a wallet in pending-baseline state.
// Returns true if the wallet was newly inserted; an existing row
// (whatever its status) is left untouched.
func (s *Store) UpsertWalletPending(ctx context.Context, address string) (bool, error) {
	now := nowRFC3339()
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO watched_wallets (address, baseline_watermark, status, created_at, updated_at)
VALUES (?, 0, ?, ?, ?)
`, address, string(domain.WalletStatusPendingBaseline), now, now)
	if err != nil {
		return false, fmt.Errorf("upsert wallet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// ActivateWallet sets the baseline watermark and flips the wallet to
// active. Called only after the baseline snapshot has been persisted,
// so a crash in between leaves the wallet pending and the snapshot is
// redone on the next cycle (idempotent via trade-key dedup).
func (s *Store) ActivateWallet(ctx context.Context, address string, watermark int64) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE watched_wallets
SET baseline_watermark=?, status=?, updated_at=?
WHERE address=?
`, watermark, string(domain.WalletStatusActive), nowRFC3339(), address)
	if err != nil {
		return fmt.Errorf("activate wallet: %w", err)
	}
	return nil
}

// ResetWalletBaseline moves a wallet back to pending-baseline so the
// next reconcile cycle takes a fresh snapshot. Used for re-added
// wallets that were previously deactivated.
func (s *Store) ResetWalletBaseline(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE watched_wallets
SET baseline_watermark=0, status=?, updated_at=?
WHERE address=?
`, string(domain.WalletStatusPendingBaseline), nowRFC3339(), address)
	if err != nil {
		return fmt.Errorf("reset wallet baseline: %w", err)
	}
	return nil
}

// DeactivateWallet marks a wallet inactive. Its seen_trades history is
// kept so trades are not re-copied if the wallet comes back.
func (s *Store) DeactivateWallet(ctx context.Context, address string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE watched_wallets SET status=?, updated_at=? WHERE address=?
`, string(domain.WalletStatusInactive), nowRFC3339(), address)
	if err != nil {
		return fmt.Errorf("deactivate wallet: %w", err)
	}
	return nil
}

// GetWallet returns the wallet row, or nil if unknown.
func (s *Store) GetWallet(ctx context.Context, address string) (*domain.WatchedWallet, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT address, baseline_watermark, status FROM watched_wallets WHERE address=?
`, address)
	var w domain.WatchedWallet
	var status string
	if err := row.Scan(&w.Address, &w.BaselineWatermark, &status); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	w.Status = domain.WalletStatus(status)
	return &w, nil
}

// ListWallets returns all persisted wallets.
func (s *Store) ListWallets(ctx context.Context) ([]domain.WatchedWallet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT address, baseline_watermark, status FROM watched_wallets ORDER BY address
`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WatchedWallet
	for rows.Next() {
		var w domain.WatchedWallet
		var status string
		if err := rows.Scan(&w.Address, &w.BaselineWatermark, &status); err != nil {
			return nil, err
		}
		w.Status = domain.WalletStatus(status)
		out = append(out, w)
	}
	return out, rows.Err()
}

// ListActiveWallets returns wallets eligible for discovery.
func (s *Store) ListActiveWallets(ctx context.Context) ([]domain.WatchedWallet, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT address, baseline_watermark, status FROM watched_wallets WHERE status=? ORDER BY address
`, string(domain.WalletStatusActive))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.WatchedWallet
	for rows.Next() {
		var w domain.WatchedWallet
		var status string
		if err := rows.Scan(&w.Address, &w.BaselineWatermark, &status); err != nil {
			return nil, err
		}
		w.Status = domain.WalletStatus(status)
		out = append(out, w)
	}
	return out, rows.Err()
}
