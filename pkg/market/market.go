// Package market holds the static market configuration loaded once at startup.
package market

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/canopy-network/liquidityx/pkg/asset"
	"github.com/shopspring/decimal"
)

// DefaultShareCode prefixes the quote code to form the pool-share asset code.
const DefaultShareCode = "APAY"

// Market is one configured trading pair backed by a pool account.
type Market struct {
	ID string `json:"id"`
	// Manager receives deposits and issues the pool-share asset.
	Manager string `json:"manager"`
	// Account is the pool account holding both legs and the resting offers.
	Account string      `json:"account"`
	Base    asset.Asset `json:"base"`
	Asset   asset.Asset `json:"asset"`
	// Channels are transaction sources used for settlement sequence allocation.
	Channels  []string          `json:"channels,omitempty"`
	ShareCode string            `json:"shareCode,omitempty"`
	Levels    []decimal.Decimal `json:"levels,omitempty"`
}

// ShareAsset is the pool-share credit asset issued by the manager.
func (m Market) ShareAsset() asset.Asset {
	prefix := m.ShareCode
	if prefix == "" {
		prefix = DefaultShareCode
	}
	return asset.Credit(prefix+m.Asset.Code(), m.Manager)
}

// SettlementChannels returns the configured channels, falling back to the manager.
func (m Market) SettlementChannels() []string {
	if len(m.Channels) == 0 {
		return []string{m.Manager}
	}
	return m.Channels
}

func (m *Market) normalize() error {
	if m.Manager == "" {
		return errors.New("missing manager")
	}
	if m.Account == "" {
		return errors.New("missing pool account")
	}
	if m.Base == m.Asset {
		return fmt.Errorf("base and quote are both %s", m.Base)
	}
	if m.ID == "" {
		m.ID = m.Base.Code() + "/" + m.Asset.Code()
	}
	if code := m.ShareAsset().Code(); len(code) > 12 {
		return fmt.Errorf("share asset code %q longer than 12 characters", code)
	}
	for _, l := range m.Levels {
		if !l.GreaterThan(decimal.NewFromInt(1)) {
			return fmt.Errorf("ladder level %s must be greater than 1", l)
		}
	}
	return nil
}

// Registry is an immutable set of markets indexed by id and manager address.
type Registry struct {
	markets   []Market
	byID      map[string]int
	byManager map[string]int
}

// NewRegistry validates markets and builds the lookup indexes.
func NewRegistry(markets []Market) (*Registry, error) {
	r := &Registry{
		markets:   make([]Market, 0, len(markets)),
		byID:      make(map[string]int, len(markets)),
		byManager: make(map[string]int, len(markets)),
	}
	for i := range markets {
		m := markets[i]
		m.Channels = append([]string(nil), m.Channels...)
		m.Levels = append([]decimal.Decimal(nil), m.Levels...)
		if err := m.normalize(); err != nil {
			return nil, fmt.Errorf("market %d: %w", i, err)
		}
		if _, dup := r.byID[m.ID]; dup {
			return nil, fmt.Errorf("duplicate market id %q", m.ID)
		}
		if _, dup := r.byManager[m.Manager]; dup {
			return nil, fmt.Errorf("manager %s configured for more than one market", m.Manager)
		}
		r.byID[m.ID] = len(r.markets)
		r.byManager[m.Manager] = len(r.markets)
		r.markets = append(r.markets, m)
	}
	return r, nil
}

// Parse decodes a JSON array of markets.
func Parse(data []byte) (*Registry, error) {
	var markets []Market
	if err := json.Unmarshal(data, &markets); err != nil {
		return nil, fmt.Errorf("decode markets: %w", err)
	}
	return NewRegistry(markets)
}

// Load reads the markets file at path.
func Load(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read markets file: %w", err)
	}
	return Parse(data)
}

// All returns a copy of the configured markets in file order.
func (r *Registry) All() []Market {
	out := make([]Market, len(r.markets))
	copy(out, r.markets)
	return out
}

func (r *Registry) ByID(id string) (Market, bool) {
	i, ok := r.byID[id]
	if !ok {
		return Market{}, false
	}
	return r.markets[i], true
}

func (r *Registry) ByManager(address string) (Market, bool) {
	i, ok := r.byManager[address]
	if !ok {
		return Market{}, false
	}
	return r.markets[i], true
}
