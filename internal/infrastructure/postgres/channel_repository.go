package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chanhub/chansync/internal/domain/channel"
	"github.com/chanhub/chansync/internal/p2p/protocol"
)

// ChannelRepository implements channel.Repository for one local identity.
// Both parties of a channel share its address, so every row is scoped by
// owner. The full state is kept as JSONB; the other columns exist for
// lookups and the nonce regression check.
type ChannelRepository struct {
	pool  *pgxpool.Pool
	owner string
}

func NewChannelRepository(pool *pgxpool.Pool, owner string) *ChannelRepository {
	return &ChannelRepository{pool: pool, owner: owner}
}

func (r *ChannelRepository) GetChannelState(ctx context.Context, channelAddress string) (*protocol.ChannelState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT state FROM channels WHERE owner=$1 AND channel_address=$2
	`, r.owner, normalizeAddress(channelAddress))
	return scanChannelState(row)
}

// SaveChannelState upserts the state and records its latest update in one
// transaction. The row is locked so a concurrent writer cannot slip in a
// lower nonce.
func (r *ChannelRepository) SaveChannelState(ctx context.Context, state *protocol.ChannelState) error {
	payload, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("marshal channel state: %w", err)
	}
	address := normalizeAddress(state.ChannelAddress)

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx)

	var current int64
	err = tx.QueryRow(ctx, `
		SELECT nonce FROM channels WHERE owner=$1 AND channel_address=$2 FOR UPDATE
	`, r.owner, address).Scan(&current)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
	case err != nil:
		return err
	case uint64(current) > state.Nonce:
		return channel.ErrNonceRegression
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO channels (owner, channel_address, alice, bob, chain_id, nonce, state)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (owner, channel_address) DO UPDATE
		SET nonce=EXCLUDED.nonce, state=EXCLUDED.state, updated_at=NOW()
	`, r.owner, address, state.Alice, state.Bob, int64(state.ChainID), int64(state.Nonce), payload); err != nil {
		return err
	}

	if !state.LatestUpdate.IsEmpty() {
		updatePayload, err := json.Marshal(state.LatestUpdate)
		if err != nil {
			return fmt.Errorf("marshal channel update: %w", err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO channel_updates (owner, channel_address, nonce, update_type, from_identifier, payload)
			VALUES ($1,$2,$3,$4,$5,$6)
			ON CONFLICT (owner, channel_address, nonce) DO NOTHING
		`, r.owner, address, int64(state.LatestUpdate.Nonce), string(state.LatestUpdate.Type),
			state.LatestUpdate.FromIdentifier, updatePayload); err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

func (r *ChannelRepository) GetChannelStates(ctx context.Context) ([]*protocol.ChannelState, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT state FROM channels WHERE owner=$1 ORDER BY channel_address
	`, r.owner)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*protocol.ChannelState
	for rows.Next() {
		state, err := scanChannelState(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, state)
	}
	return out, rows.Err()
}

func (r *ChannelRepository) GetChannelStateByParticipants(ctx context.Context, alice, bob string, chainID uint64) (*protocol.ChannelState, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT state FROM channels
		WHERE owner=$1 AND chain_id=$4 AND ((alice=$2 AND bob=$3) OR (alice=$3 AND bob=$2))
		LIMIT 1
	`, r.owner, alice, bob, int64(chainID))
	return scanChannelState(row)
}

// GetChannelUpdates returns the recorded update history of a channel in
// nonce order.
func (r *ChannelRepository) GetChannelUpdates(ctx context.Context, channelAddress string) ([]protocol.ChannelUpdate, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT payload FROM channel_updates
		WHERE owner=$1 AND channel_address=$2
		ORDER BY nonce
	`, r.owner, normalizeAddress(channelAddress))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []protocol.ChannelUpdate
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var u protocol.ChannelUpdate
		if err := json.Unmarshal(raw, &u); err != nil {
			return nil, fmt.Errorf("decode channel update: %w", err)
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func scanChannelState(row pgx.Row) (*protocol.ChannelState, error) {
	var raw []byte
	if err := row.Scan(&raw); err != nil {
		if err == pgx.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}
	var state protocol.ChannelState
	if err := json.Unmarshal(raw, &state); err != nil {
		return nil, fmt.Errorf("decode channel state: %w", err)
	}
	return &state, nil
}

func normalizeAddress(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}
