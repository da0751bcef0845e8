package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/canopy-network/liquidityx/pkg/amount"
	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/canopy-network/liquidityx/pkg/db/postgres"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"
)

const chargeColumns = `
	c.id, c.account_id, c.asset, c.market,
	c.tokens::text, c.base_amount::text, c.asset_amount::text,
	c.manager, c.channel, c.sequence, c.created_at`

func scanCharge(row pgx.Row) (*models.Charge, error) {
	var (
		c                         models.Charge
		tokens, baseAmt, assetAmt string
	)
	err := row.Scan(
		&c.ID,
		&c.AccountID,
		&c.Asset,
		&c.Market,
		&tokens,
		&baseAmt,
		&assetAmt,
		&c.Manager,
		&c.Channel,
		&c.Sequence,
		&c.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	if c.Tokens, err = numeric(tokens); err != nil {
		return nil, err
	}
	if c.BaseAmount, err = numeric(baseAmt); err != nil {
		return nil, err
	}
	if c.AssetAmount, err = numeric(assetAmt); err != nil {
		return nil, err
	}
	return &c, nil
}

// InsertAtomic writes charge and its incoming transfers in one transaction.
func (db *DB) InsertAtomic(ctx context.Context, charge *models.Charge, txs []models.IncomingTx) error {
	err := db.BeginFunc(ctx, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO charges (account_id, asset, market, tokens, base_amount, asset_amount, manager, channel, sequence)
			VALUES ($1, $2, $3, $4::numeric, $5::numeric, $6::numeric, $7, $8, $9)
			RETURNING id, created_at`,
			charge.AccountID,
			charge.Asset,
			charge.Market,
			amount.Format(charge.Tokens),
			amount.Format(charge.BaseAmount),
			amount.Format(charge.AssetAmount),
			charge.Manager,
			charge.Channel,
			charge.Sequence,
		).Scan(&charge.ID, &charge.CreatedAt)
		if err != nil {
			return err
		}

		charge.Txs = make([]models.IncomingTx, len(txs))
		for i, in := range txs {
			in.ChargeID = charge.ID
			in.Processed = true
			err := tx.QueryRow(ctx, `
				INSERT INTO incoming_txs (tx_in, manager, currency_in, amount_in, processed, charge_id)
				VALUES ($1, $2, $3, $4::numeric, $5, $6)
				RETURNING id`,
				in.TxIn, in.Manager, in.CurrencyIn, amount.Format(in.AmountIn), in.Processed, in.ChargeID,
			).Scan(&in.ID)
			if err != nil {
				return err
			}
			charge.Txs[i] = in
		}
		return nil
	})
	if err == nil {
		return nil
	}

	charge.ID = 0
	charge.Txs = nil
	if constraint, ok := postgres.UniqueViolation(err); ok {
		switch constraint {
		case txInConstraint:
			return fmt.Errorf("insert charge: %w", store.ErrDuplicateTx)
		case channelSeqConstraint:
			// A concurrent duplicate reserves the same sequence and loses on the charge row before
			// reaching incoming_txs. The winner has committed by the time the violation is raised.
			consumed, lookupErr := db.anyConsumed(ctx, txs)
			if lookupErr != nil {
				return fmt.Errorf("insert charge %s/%d: %w", charge.Channel, charge.Sequence, lookupErr)
			}
			if consumed {
				return fmt.Errorf("insert charge: %w", store.ErrDuplicateTx)
			}
			return fmt.Errorf("insert charge %s/%d: %w", charge.Channel, charge.Sequence, store.ErrSequenceTaken)
		}
	}
	return fmt.Errorf("insert charge: %w", err)
}

func (db *DB) anyConsumed(ctx context.Context, txs []models.IncomingTx) (bool, error) {
	ids := make([]string, len(txs))
	for i, in := range txs {
		ids[i] = in.TxIn
	}
	var exists bool
	if err := db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM incoming_txs WHERE tx_in = ANY($1))`, ids).Scan(&exists); err != nil {
		return false, fmt.Errorf("query consumed transfers: %w", err)
	}
	return exists, nil
}

// ChargeByID returns a charge with its incoming transfers.
func (db *DB) ChargeByID(ctx context.Context, id int64) (*models.Charge, error) {
	c, err := scanCharge(db.QueryRow(ctx, `SELECT `+chargeColumns+` FROM charges c WHERE c.id = $1`, id))
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("charge %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query charge %d: %w", id, err)
	}
	if c.Txs, err = db.incomingTxs(ctx, c.ID); err != nil {
		return nil, err
	}
	return c, nil
}

func (db *DB) incomingTxs(ctx context.Context, chargeID int64) ([]models.IncomingTx, error) {
	rows, err := db.Query(ctx, `
		SELECT id, tx_in, manager, currency_in, amount_in::text, processed, charge_id
		FROM incoming_txs
		WHERE charge_id = $1
		ORDER BY id`, chargeID)
	if err != nil {
		return nil, fmt.Errorf("query incoming txs of charge %d: %w", chargeID, err)
	}
	defer rows.Close()

	var out []models.IncomingTx
	for rows.Next() {
		var (
			in  models.IncomingTx
			amt string
		)
		if err := rows.Scan(&in.ID, &in.TxIn, &in.Manager, &in.CurrencyIn, &amt, &in.Processed, &in.ChargeID); err != nil {
			return nil, err
		}
		if in.AmountIn, err = numeric(amt); err != nil {
			return nil, err
		}
		out = append(out, in)
	}
	return out, rows.Err()
}

// SumTokens returns the outstanding shares of market.
func (db *DB) SumTokens(ctx context.Context, market string) (decimal.Decimal, error) {
	var raw string
	err := db.QueryRow(ctx, `SELECT COALESCE(SUM(tokens), 0)::text FROM charges WHERE market = $1`, market).Scan(&raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("sum tokens of %s: %w", market, err)
	}
	return numeric(raw)
}

// AccountTotals returns the net position of an account per market.
func (db *DB) AccountTotals(ctx context.Context, accountID int64) ([]models.Totals, error) {
	rows, err := db.Query(ctx, `
		SELECT market, SUM(tokens)::text, SUM(base_amount)::text, SUM(asset_amount)::text
		FROM charges
		WHERE account_id = $1
		GROUP BY market
		ORDER BY market`, accountID)
	if err != nil {
		return nil, fmt.Errorf("query totals of account %d: %w", accountID, err)
	}
	defer rows.Close()

	out := make([]models.Totals, 0)
	for rows.Next() {
		var (
			t                         models.Totals
			tokens, baseAmt, assetAmt string
		)
		if err := rows.Scan(&t.Market, &tokens, &baseAmt, &assetAmt); err != nil {
			return nil, err
		}
		if t.Tokens, err = numeric(tokens); err != nil {
			return nil, err
		}
		if t.BaseAmount, err = numeric(baseAmt); err != nil {
			return nil, err
		}
		if t.AssetAmount, err = numeric(assetAmt); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// MaxSequence returns the highest sequence reserved on channel.
func (db *DB) MaxSequence(ctx context.Context, channel string) (int64, bool, error) {
	var seq *int64
	if err := db.QueryRow(ctx, `SELECT MAX(sequence) FROM charges WHERE channel = $1`, channel).Scan(&seq); err != nil {
		return 0, false, fmt.Errorf("max sequence of %s: %w", channel, err)
	}
	if seq == nil {
		return 0, false, nil
	}
	return *seq, true, nil
}

// PendingCharges returns charges older than olderThan that were never submitted.
func (db *DB) PendingCharges(ctx context.Context, olderThan time.Time, limit int) ([]models.Charge, error) {
	return db.selectCharges(ctx, `
		SELECT `+chargeColumns+`
		FROM charges c
		WHERE c.created_at < $1
		  AND NOT EXISTS (SELECT 1 FROM submissions s WHERE s.charge_id = c.id)
		ORDER BY c.id
		LIMIT NULLIF($2, 0)`, olderThan, limit)
}

// FailedCharges returns charges whose submissions all failed.
func (db *DB) FailedCharges(ctx context.Context, limit int) ([]models.Charge, error) {
	return db.selectCharges(ctx, `
		SELECT `+chargeColumns+`
		FROM charges c
		WHERE EXISTS (SELECT 1 FROM submissions s WHERE s.charge_id = c.id AND s.state = 'failed')
		  AND NOT EXISTS (SELECT 1 FROM submissions s WHERE s.charge_id = c.id AND s.state = 'submitted')
		ORDER BY c.id
		LIMIT NULLIF($1, 0)`, limit)
}

func (db *DB) selectCharges(ctx context.Context, query string, args ...any) ([]models.Charge, error) {
	rows, err := db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query charges: %w", err)
	}
	var out []models.Charge
	for rows.Next() {
		c, err := scanCharge(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		out = append(out, *c)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range out {
		if out[i].Txs, err = db.incomingTxs(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}
