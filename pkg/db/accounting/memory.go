package accounting

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	models "github.com/canopy-network/liquidityx/pkg/db/models/accounting"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type channelSeq struct {
	channel  string
	sequence int64
}

// Memory is an in-process Store with the same uniqueness semantics as the Postgres one.
// It backs tests and single-node development runs without POSTGRES_URL.
type Memory struct {
	mu sync.RWMutex

	accounts    map[int64]*models.Account
	byAddress   map[string]int64
	charges     map[int64]*models.Charge
	txIn        map[string]int64
	reserved    map[channelSeq]int64
	submissions map[int64][]models.Submission

	nextAccount    int64
	nextCharge     int64
	nextTx         int64
	nextSubmission int64
	now            func() time.Time
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		accounts:    map[int64]*models.Account{},
		byAddress:   map[string]int64{},
		charges:     map[int64]*models.Charge{},
		txIn:        map[string]int64{},
		reserved:    map[channelSeq]int64{},
		submissions: map[int64][]models.Submission{},
		now:         time.Now,
	}
}

// SetClock overrides the creation timestamp source.
func (m *Memory) SetClock(now func() time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = now
}

func (m *Memory) FindOrCreateAccount(_ context.Context, address string) (*models.Account, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.byAddress[address]; ok {
		cp := *m.accounts[id]
		return &cp, false, nil
	}
	m.nextAccount++
	a := &models.Account{ID: m.nextAccount, UUID: uuid.New(), Address: address, CreatedAt: m.now().UTC()}
	m.accounts[a.ID] = a
	m.byAddress[address] = a.ID
	cp := *a
	return &cp, true, nil
}

func (m *Memory) AccountByID(_ context.Context, id int64) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.accounts[id]
	if !ok {
		return nil, fmt.Errorf("account %d: %w", id, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (m *Memory) AccountByAddress(_ context.Context, address string) (*models.Account, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	id, ok := m.byAddress[address]
	if !ok {
		return nil, fmt.Errorf("account %s: %w", address, ErrNotFound)
	}
	cp := *m.accounts[id]
	return &cp, nil
}

func (m *Memory) InsertAtomic(_ context.Context, charge *models.Charge, txs []models.IncomingTx) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	seen := make(map[string]struct{}, len(txs))
	for _, tx := range txs {
		if _, dup := m.txIn[tx.TxIn]; dup {
			return fmt.Errorf("tx %s: %w", tx.TxIn, ErrDuplicateTx)
		}
		if _, dup := seen[tx.TxIn]; dup {
			return fmt.Errorf("tx %s: %w", tx.TxIn, ErrDuplicateTx)
		}
		seen[tx.TxIn] = struct{}{}
	}
	key := channelSeq{charge.Channel, charge.Sequence}
	if _, taken := m.reserved[key]; taken {
		return fmt.Errorf("%s/%d: %w", charge.Channel, charge.Sequence, ErrSequenceTaken)
	}

	m.nextCharge++
	charge.ID = m.nextCharge
	charge.CreatedAt = m.now().UTC()
	charge.Txs = make([]models.IncomingTx, len(txs))
	for i, tx := range txs {
		m.nextTx++
		tx.ID = m.nextTx
		tx.ChargeID = charge.ID
		tx.Processed = true
		charge.Txs[i] = tx
		m.txIn[tx.TxIn] = charge.ID
	}
	m.reserved[key] = charge.ID

	stored := *charge
	stored.Txs = append([]models.IncomingTx(nil), charge.Txs...)
	m.charges[charge.ID] = &stored
	return nil
}

func (m *Memory) ChargeByID(_ context.Context, id int64) (*models.Charge, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.charges[id]
	if !ok {
		return nil, fmt.Errorf("charge %d: %w", id, ErrNotFound)
	}
	return copyCharge(c), nil
}

func (m *Memory) SumTokens(_ context.Context, market string) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum := decimal.Zero
	for _, c := range m.charges {
		if c.Market == market {
			sum = sum.Add(c.Tokens)
		}
	}
	return sum, nil
}

func (m *Memory) AccountTotals(_ context.Context, accountID int64) ([]models.Totals, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	byMarket := map[string]*models.Totals{}
	for _, c := range m.charges {
		if c.AccountID != accountID {
			continue
		}
		t, ok := byMarket[c.Market]
		if !ok {
			t = &models.Totals{Market: c.Market}
			byMarket[c.Market] = t
		}
		t.Tokens = t.Tokens.Add(c.Tokens)
		t.BaseAmount = t.BaseAmount.Add(c.BaseAmount)
		t.AssetAmount = t.AssetAmount.Add(c.AssetAmount)
	}
	out := make([]models.Totals, 0, len(byMarket))
	for _, t := range byMarket {
		out = append(out, *t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Market < out[j].Market })
	return out, nil
}

func (m *Memory) MaxSequence(_ context.Context, channel string) (int64, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var (
		highest int64
		found   bool
	)
	for k := range m.reserved {
		if k.channel == channel && (!found || k.sequence > highest) {
			highest, found = k.sequence, true
		}
	}
	return highest, found, nil
}

func (m *Memory) RecordSubmission(_ context.Context, s *models.Submission) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.charges[s.ChargeID]; !ok {
		return fmt.Errorf("charge %d: %w", s.ChargeID, ErrNotFound)
	}
	m.nextSubmission++
	s.ID = m.nextSubmission
	s.CreatedAt = m.now().UTC()
	m.submissions[s.ChargeID] = append(m.submissions[s.ChargeID], *s)
	return nil
}

func (m *Memory) Submissions(_ context.Context, chargeID int64) ([]models.Submission, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]models.Submission(nil), m.submissions[chargeID]...), nil
}

func (m *Memory) PendingCharges(_ context.Context, olderThan time.Time, limit int) ([]models.Charge, error) {
	return m.filterCharges(limit, func(c *models.Charge, subs []models.Submission) bool {
		return len(subs) == 0 && c.CreatedAt.Before(olderThan)
	}), nil
}

func (m *Memory) FailedCharges(_ context.Context, limit int) ([]models.Charge, error) {
	return m.filterCharges(limit, func(_ *models.Charge, subs []models.Submission) bool {
		failed := false
		for _, s := range subs {
			if s.State == models.SubmissionSubmitted {
				return false
			}
			failed = true
		}
		return failed
	}), nil
}

func (m *Memory) filterCharges(limit int, keep func(*models.Charge, []models.Submission) bool) []models.Charge {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Charge, 0)
	for _, c := range m.charges {
		if keep(c, m.submissions[c.ID]) {
			out = append(out, *copyCharge(c))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func (m *Memory) Close() error { return nil }

func copyCharge(c *models.Charge) *models.Charge {
	cp := *c
	cp.Txs = append([]models.IncomingTx(nil), c.Txs...)
	return &cp
}
