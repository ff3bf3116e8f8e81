package whale

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"
)

// ── Core JSON-RPC source ─────────────────────────────────────
// Walks the most recent blocks of a Core node and keeps native CORE transfers
// whose USD value clears the query minimum.

type blockReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
	BlockByNumber(ctx context.Context, number *big.Int) (*types.Block, error)
}

type RPCSource struct {
	name   string
	client blockReader
	signer types.Signer
	blocks int
}

// DialRPC connects to a Core RPC endpoint. blocks is how far back each fetch scans.
func DialRPC(ctx context.Context, name, url string, chainID int64, blocks int) (*RPCSource, error) {
	client, err := ethclient.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return newRPCSource(name, client, chainID, blocks), nil
}

func newRPCSource(name string, client blockReader, chainID int64, blocks int) *RPCSource {
	if blocks <= 0 {
		blocks = 200
	}
	return &RPCSource{
		name:   name,
		client: client,
		signer: types.LatestSignerForChainID(big.NewInt(chainID)),
		blocks: blocks,
	}
}

func (s *RPCSource) Name() string { return s.name }

func (s *RPCSource) Fetch(ctx context.Context, q Query) ([]Transaction, error) {
	if q.Price <= 0 {
		return nil, fmt.Errorf("no CORE price")
	}
	head, err := s.client.BlockNumber(ctx)
	if err != nil {
		return nil, fmt.Errorf("block number: %w", err)
	}

	var out []Transaction
	scanned := 0
	for n := int64(head); n >= 0 && scanned < s.blocks; n-- {
		if q.Limit > 0 && len(out) >= q.Limit {
			break
		}
		block, err := s.client.BlockByNumber(ctx, big.NewInt(n))
		if err != nil {
			// a single missing block should not sink the scan
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Debug().Err(err).Int64("block", n).Msg("skip block")
			scanned++
			continue
		}
		scanned++

		ts := time.Unix(int64(block.Time()), 0).UTC()
		for _, tx := range block.Transactions() {
			w, ok := s.convert(tx, block.NumberU64(), ts, q)
			if !ok {
				continue
			}
			out = append(out, w)
			if q.Limit > 0 && len(out) >= q.Limit {
				break
			}
		}
	}

	log.Debug().Str("source", s.name).Int("blocks", scanned).Int("found", len(out)).Msg("RPC whale scan done")
	return out, nil
}

// convert maps a chain transaction to a whale record when it moves enough value.
func (s *RPCSource) convert(tx *types.Transaction, blockNum uint64, ts time.Time, q Query) (Transaction, bool) {
	value := tx.Value()
	if value == nil || value.Sign() == 0 {
		return Transaction{}, false
	}
	usd := CoreAmount(value.String()).InexactFloat64() * q.Price
	if usd < q.MinUSD {
		return Transaction{}, false
	}

	from := ""
	if addr, err := types.Sender(s.signer, tx); err == nil {
		from = strings.ToLower(addr.Hex())
	}

	typ := TypeTransfer
	to := ""
	if tx.To() == nil {
		typ = TypeContract
	} else {
		to = strings.ToLower(tx.To().Hex())
		if len(tx.Data()) > 0 {
			typ = TypeContract
		}
	}

	gasPrice := ""
	if gp := tx.GasPrice(); gp != nil {
		gasPrice = gp.String()
	}

	return Transaction{
		Hash:        tx.Hash().Hex(),
		From:        from,
		To:          to,
		Value:       value.String(),
		ValueUSD:    usd,
		Timestamp:   ts,
		BlockNumber: int64(blockNum),
		Type:        typ,
		TokenSymbol: "CORE",
		TokenName:   "Core Token",
		GasUsed:     tx.Gas(),
		GasPrice:    gasPrice,
		Source:      s.name,
		Real:        true,
	}, true
}
