package accounting

import (
	"context"
	"fmt"

	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	"github.com/canopy-network/liquidityx/pkg/db/postgres"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DB is the PostgreSQL settlement store.
type DB struct {
	postgres.Client
}

var _ store.Store = (*DB)(nil)

// NewWithPoolConfig connects to dbURL and bootstraps the schema.
func NewWithPoolConfig(ctx context.Context, logger *zap.Logger, dbURL string, poolConfig postgres.PoolConfig) (*DB, error) {
	client, err := postgres.New(ctx, logger.With(zap.String("component", poolConfig.Component)), dbURL, &poolConfig)
	if err != nil {
		return nil, err
	}

	db := &DB{Client: client}
	if err := db.InitializeDB(ctx); err != nil {
		db.Pool.Close()
		return nil, err
	}
	return db, nil
}

// Close terminates the underlying PostgreSQL connection
func (db *DB) Close() error {
	db.Pool.Close()
	return nil
}

// InitializeDB ensures the required tables exist
func (db *DB) InitializeDB(ctx context.Context) error {
	for _, step := range []struct {
		table string
		ddl   string
	}{
		{"accounts", accountsDDL},
		{"charges", chargesDDL},
		{"incoming_txs", incomingTxsDDL},
		{"submissions", submissionsDDL},
	} {
		db.Logger.Debug("Initialize table", zap.String("table", step.table))
		if err := db.Exec(ctx, step.ddl); err != nil {
			return fmt.Errorf("initialize %s: %w", step.table, err)
		}
	}
	return nil
}

// Uniqueness constraints named so that violations can be told apart.
const (
	txInConstraint       = "incoming_txs_tx_in_key"
	channelSeqConstraint = "charges_channel_sequence_key"
)

const accountsDDL = `
	CREATE TABLE IF NOT EXISTS accounts (
		id BIGSERIAL PRIMARY KEY,
		uuid UUID NOT NULL UNIQUE,
		address TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT accounts_address_key UNIQUE (address)
	)
`

const chargesDDL = `
	CREATE TABLE IF NOT EXISTS charges (
		id BIGSERIAL PRIMARY KEY,
		account_id BIGINT NOT NULL REFERENCES accounts (id),
		asset TEXT NOT NULL,
		market TEXT NOT NULL,
		tokens NUMERIC(38, 7) NOT NULL,
		base_amount NUMERIC(38, 7) NOT NULL,
		asset_amount NUMERIC(38, 7) NOT NULL,
		manager TEXT NOT NULL,
		channel TEXT NOT NULL,
		sequence BIGINT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		CONSTRAINT charges_channel_sequence_key UNIQUE (channel, sequence)
	);
	CREATE INDEX IF NOT EXISTS charges_market_idx ON charges (market);
	CREATE INDEX IF NOT EXISTS charges_account_idx ON charges (account_id)
`

const incomingTxsDDL = `
	CREATE TABLE IF NOT EXISTS incoming_txs (
		id BIGSERIAL PRIMARY KEY,
		tx_in TEXT NOT NULL,
		manager TEXT NOT NULL,
		currency_in TEXT NOT NULL,
		amount_in NUMERIC(38, 7) NOT NULL,
		processed BOOLEAN NOT NULL DEFAULT FALSE,
		charge_id BIGINT NOT NULL REFERENCES charges (id),
		CONSTRAINT incoming_txs_tx_in_key UNIQUE (tx_in)
	);
	CREATE INDEX IF NOT EXISTS incoming_txs_charge_idx ON incoming_txs (charge_id)
`

const submissionsDDL = `
	CREATE TABLE IF NOT EXISTS submissions (
		id BIGSERIAL PRIMARY KEY,
		charge_id BIGINT NOT NULL REFERENCES charges (id),
		state TEXT NOT NULL CHECK (state IN ('submitted', 'failed')),
		tx_hash TEXT NOT NULL DEFAULT '',
		sequence BIGINT NOT NULL DEFAULT 0,
		error TEXT NOT NULL DEFAULT '',
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS submissions_charge_idx ON submissions (charge_id)
`

// numeric parses a NUMERIC column selected as text.
func numeric(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("numeric %q: %w", s, err)
	}
	return d, nil
}
