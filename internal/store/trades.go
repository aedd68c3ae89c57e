package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/betbot/copycat/internal/domain"
)

// SeenTrade is one persisted dedup record.
type SeenTrade struct {
	TradeKey      string
	WalletAddress string
	State         domain.ExecutionState
	OrderID       string
	RawJSON       string
}

// InsertTradeIfAbsent atomically claims a trade key. Returns true if
// this call inserted the row (the caller owns the trade), false if the
// key was already present. This is the only dedup gate in the system;
// INSERT OR IGNORE on the primary key makes concurrent claims safe.
func (s *Store) InsertTradeIfAbsent(ctx context.Context, tradeKey, wallet string, state domain.ExecutionState, rawJSON string) (bool, error) {
	now := nowRFC3339()
	res, err := s.db.ExecContext(ctx, `
INSERT OR IGNORE INTO seen_trades (trade_key, wallet_address, execution_state, order_id, raw_json, discovered_at, updated_at)
VALUES (?,?,?,NULL,?,?,?)
`, tradeKey, wallet, string(state), rawJSON, now, now)
	if err != nil {
		return false, fmt.Errorf("insert trade: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// UpdateTradeState advances the execution state of a seen trade.
func (s *Store) UpdateTradeState(ctx context.Context, tradeKey string, state domain.ExecutionState) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE seen_trades SET execution_state=?, updated_at=? WHERE trade_key=?
`, string(state), nowRFC3339(), tradeKey)
	if err != nil {
		return fmt.Errorf("update trade state: %w", err)
	}
	return nil
}

// UpdateTradeOrder advances the state and records the exchange order id,
// so a restart can recheck in-flight orders.
func (s *Store) UpdateTradeOrder(ctx context.Context, tradeKey string, state domain.ExecutionState, orderID string) error {
	_, err := s.db.ExecContext(ctx, `
UPDATE seen_trades SET execution_state=?, order_id=?, updated_at=? WHERE trade_key=?
`, string(state), orderID, nowRFC3339(), tradeKey)
	if err != nil {
		return fmt.Errorf("update trade order: %w", err)
	}
	return nil
}

// GetTrade returns the seen-trade row, or nil if the key is unknown.
func (s *Store) GetTrade(ctx context.Context, tradeKey string) (*SeenTrade, error) {
	row := s.db.QueryRowContext(ctx, `
SELECT trade_key, wallet_address, execution_state, order_id, raw_json
FROM seen_trades WHERE trade_key=?
`, tradeKey)
	t, err := scanSeenTrade(row.Scan)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return t, nil
}

// ListTradesByState returns seen trades in the given state, oldest first.
// Used on startup to recover rows the previous process left non-terminal.
func (s *Store) ListTradesByState(ctx context.Context, state domain.ExecutionState) ([]SeenTrade, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT trade_key, wallet_address, execution_state, order_id, raw_json
FROM seen_trades WHERE execution_state=? ORDER BY discovered_at
`, string(state))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []SeenTrade
	for rows.Next() {
		t, err := scanSeenTrade(rows.Scan)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

// CountTradesByWallet returns how many trades are recorded for a wallet.
func (s *Store) CountTradesByWallet(ctx context.Context, wallet string) (int, error) {
	row := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seen_trades WHERE wallet_address=?`, wallet)
	var n int
	if err := row.Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func scanSeenTrade(scan func(dest ...any) error) (*SeenTrade, error) {
	var t SeenTrade
	var state string
	var orderID, rawJSON sql.NullString
	if err := scan(&t.TradeKey, &t.WalletAddress, &state, &orderID, &rawJSON); err != nil {
		return nil, err
	}
	t.State = domain.ExecutionState(state)
	if orderID.Valid {
		t.OrderID = orderID.String
	}
	if rawJSON.Valid {
		t.RawJSON = rawJSON.String
	}
	return &t, nil
}
