package accounting

import (
	"context"
	"fmt"

	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
)

// RecordSubmission appends a submission outcome for a charge.
func (db *DB) RecordSubmission(ctx context.Context, s *models.Submission) error {
	err := db.QueryRow(ctx, `
		INSERT INTO submissions (charge_id, state, tx_hash, sequence, error)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at`,
		s.ChargeID, string(s.State), s.TxHash, s.Sequence, s.Error,
	).Scan(&s.ID, &s.CreatedAt)
	if err != nil {
		return fmt.Errorf("record submission of charge %d: %w", s.ChargeID, err)
	}
	return nil
}

// Submissions returns every recorded outcome of a charge, oldest first.
func (db *DB) Submissions(ctx context.Context, chargeID int64) ([]models.Submission, error) {
	rows, err := db.Query(ctx, `
		SELECT id, charge_id, state, tx_hash, sequence, error, created_at
		FROM submissions
		WHERE charge_id = $1
		ORDER BY id`, chargeID)
	if err != nil {
		return nil, fmt.Errorf("query submissions of charge %d: %w", chargeID, err)
	}
	defer rows.Close()

	out := make([]models.Submission, 0)
	for rows.Next() {
		var (
			s     models.Submission
			state string
		)
		if err := rows.Scan(&s.ID, &s.ChargeID, &state, &s.TxHash, &s.Sequence, &s.Error, &s.CreatedAt); err != nil {
			return nil, err
		}
		s.State = models.SubmissionState(state)
		out = append(out, s)
	}
	return out, rows.Err()
}
