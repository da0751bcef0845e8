package accounting

import (
	"context"
	"fmt"

	store "github.com/canopy-network/liquidityx/pkg/db/accounting"
	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/canopy-network/liquidityx/pkg/db/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

const accountColumns = `id, uuid::text, address, created_at`

func scanAccount(row pgx.Row) (*models.Account, error) {
	var (
		a   models.Account
		raw string
	)
	if err := row.Scan(&a.ID, &raw, &a.Address, &a.CreatedAt); err != nil {
		return nil, err
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("account %d uuid: %w", a.ID, err)
	}
	a.UUID = id
	return &a, nil
}

// FindOrCreateAccount returns the account of address, creating it on first use.
func (db *DB) FindOrCreateAccount(ctx context.Context, address string) (*models.Account, bool, error) {
	query := `
		INSERT INTO accounts (uuid, address)
		VALUES ($1::uuid, $2)
		ON CONFLICT (address) DO NOTHING
		RETURNING ` + accountColumns

	a, err := scanAccount(db.QueryRow(ctx, query, uuid.NewString(), address))
	if err == nil {
		return a, true, nil
	}
	if !postgres.IsNoRows(err) {
		return nil, false, fmt.Errorf("create account %s: %w", address, err)
	}

	a, err = db.AccountByAddress(ctx, address)
	return a, false, err
}

// AccountByID returns the account with the given numeric id (the deposit memo).
func (db *DB) AccountByID(ctx context.Context, id int64) (*models.Account, error) {
	a, err := scanAccount(db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("account %d: %w", id, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query account %d: %w", id, err)
	}
	return a, nil
}

// AccountByAddress returns the account registered for a ledger address.
func (db *DB) AccountByAddress(ctx context.Context, address string) (*models.Account, error) {
	a, err := scanAccount(db.QueryRow(ctx, `SELECT `+accountColumns+` FROM accounts WHERE address = $1`, address))
	if postgres.IsNoRows(err) {
		return nil, fmt.Errorf("account %s: %w", address, store.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("query account %s: %w", address, err)
	}
	return a, nil
}
