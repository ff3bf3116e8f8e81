package whale

import (
	"context"
	"errors"
	"time"

	"github.com/coreai-dashboard/pkg/db"
)

// Transaction is a large native CORE transfer as cached in the store.
type Transaction = db.WhaleTransaction

// Transaction types reported by sources.
const (
	TypeTransfer = "transfer"
	TypeInternal = "internal"
	TypeContract = "contract"
)

var ErrNoSource = errors.New("no whale source returned data")

// Query bounds a fetch. Price converts native value to USD.
type Query struct {
	MinUSD float64
	Limit  int
	Price  float64
}

// Source is one feed of whale transactions. Implementations set Real on the
// transactions they return and tag them with their Name.
type Source interface {
	Name() string
	Fetch(ctx context.Context, q Query) ([]Transaction, error)
}

// PriceFeed supplies the CORE/USD price.
type PriceFeed interface {
	Price(ctx context.Context) (float64, error)
}

// StaticPrice is a fixed price, used when no live feed is configured.
type StaticPrice float64

func (p StaticPrice) Price(context.Context) (float64, error) {
	return float64(p), nil
}

// ── simulated feed ──

// SimulatedSource returns a fixed set of sample transactions relative to the
// current time. It is the last link of the chain so the dashboard always has data.
type SimulatedSource struct {
	Now func() time.Time
}

func (s *SimulatedSource) Name() string { return "simulated" }

func (s *SimulatedSource) Fetch(ctx context.Context, q Query) ([]Transaction, error) {
	now := time.Now()
	if s.Now != nil {
		now = s.Now()
	}
	txs := []Transaction{
		{
			Hash:        "0x1234567890abcdef1234567890abcdef12345678",
			From:        "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045",
			To:          "0x742DfA5aa70a8212857966D491D67B09ce7D6ec7",
			Value:       "1500000000000000000000000",
			ValueUSD:    1_800_000,
			Timestamp:   now.Add(-5 * time.Minute),
			BlockNumber: 25123456,
			Type:        TypeInternal,
			GasUsed:     21000,
			GasPrice:    "20000000000",
		},
		{
			Hash:        "0xabcdef1234567890abcdef1234567890abcdef12",
			From:        "0x742DfA5aa70a8212857966D491D67B09ce7D6ec7",
			To:          "0x8888888888888888888888888888888888888888",
			Value:       "800000000000000000000000",
			ValueUSD:    960_000,
			Timestamp:   now.Add(-10 * time.Minute),
			BlockNumber: 25123445,
			Type:        TypeTransfer,
			GasUsed:     21000,
			GasPrice:    "18000000000",
		},
		{
			Hash:        "0x9876543210fedcba9876543210fedcba98765432",
			From:        "0x0000000000000000000000000000000000000000",
			To:          "0xd8dA6BF26964aF9D7eEd9e03E53415D37aA96045",
			Value:       "500000000000000000000000",
			ValueUSD:    600_000,
			Timestamp:   now.Add(-15 * time.Minute),
			BlockNumber: 25123430,
			Type:        TypeContract,
			GasUsed:     150000,
			GasPrice:    "22000000000",
		},
	}

	out := txs[:0]
	for _, tx := range txs {
		if tx.ValueUSD < q.MinUSD {
			continue
		}
		tx.TokenSymbol, tx.TokenName = "CORE", "Core Token"
		tx.Source = s.Name()
		out = append(out, tx)
	}
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}
