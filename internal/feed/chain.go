package feed

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Event signatures emitted by the bet slip contract.
var (
	slipCreatedTopic = crypto.Keccak256Hash([]byte("BetSlipCreated(bytes32)"))
	slipSellingTopic = crypto.Keccak256Hash([]byte("BetSlipSellingStateUpdate(bytes32)"))
)

// SlipEventHandler receives the slip ID carried in a contract event.
type SlipEventHandler func(ctx context.Context, slipID string)

// ChainFeed polls an EVM RPC endpoint for bet slip contract events and
// dispatches them to the registered handlers. It keeps a block cursor so
// restarts within the same process never replay a block.
type ChainFeed struct {
	client       *ethclient.Client
	contract     common.Address
	pollInterval time.Duration
	onCreated    SlipEventHandler
	onSelling    SlipEventHandler
	logger       *slog.Logger

	lastBlock uint64
}

// ChainFeedConfig configures a ChainFeed.
type ChainFeedConfig struct {
	RPCURL          string
	ContractAddress string
	PollInterval    time.Duration
	OnSlipCreated   SlipEventHandler
	OnSlipSelling   SlipEventHandler
	Logger          *slog.Logger
}

// NewChainFeed dials the RPC endpoint and prepares the feed.
func NewChainFeed(cfg ChainFeedConfig) (*ChainFeed, error) {
	if !common.IsHexAddress(cfg.ContractAddress) {
		return nil, fmt.Errorf("feed: invalid contract address %q", cfg.ContractAddress)
	}

	client, err := ethclient.Dial(cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("feed: dial rpc %s: %w", cfg.RPCURL, err)
	}

	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 5 * time.Second
	}

	return &ChainFeed{
		client:       client,
		contract:     common.HexToAddress(cfg.ContractAddress),
		pollInterval: cfg.PollInterval,
		onCreated:    cfg.OnSlipCreated,
		onSelling:    cfg.OnSlipSelling,
		logger:       cfg.Logger.With(slog.String("component", "chain_feed")),
	}, nil
}

// Run polls for contract logs until ctx is cancelled. Each poll covers the
// blocks since the previous one; the first poll starts at the current head so
// historical events are not replayed.
func (f *ChainFeed) Run(ctx context.Context) error {
	head, err := f.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("feed: fetch head block: %w", err)
	}
	f.lastBlock = head

	f.logger.Info("chain feed started",
		slog.String("contract", f.contract.Hex()),
		slog.Uint64("from_block", head))

	ticker := time.NewTicker(f.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			f.client.Close()
			return ctx.Err()
		case <-ticker.C:
			if err := f.poll(ctx); err != nil {
				if ctx.Err() != nil {
					f.client.Close()
					return ctx.Err()
				}
				f.logger.Warn("chain poll failed", slog.String("error", err.Error()))
			}
		}
	}
}

func (f *ChainFeed) poll(ctx context.Context) error {
	head, err := f.client.BlockNumber(ctx)
	if err != nil {
		return fmt.Errorf("head block: %w", err)
	}
	if head <= f.lastBlock {
		return nil
	}

	logs, err := f.client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(f.lastBlock + 1),
		ToBlock:   new(big.Int).SetUint64(head),
		Addresses: []common.Address{f.contract},
		Topics:    [][]common.Hash{{slipCreatedTopic, slipSellingTopic}},
	})
	if err != nil {
		return fmt.Errorf("filter logs %d-%d: %w", f.lastBlock+1, head, err)
	}

	for _, lg := range logs {
		f.dispatch(ctx, lg)
	}

	f.lastBlock = head
	return nil
}

func (f *ChainFeed) dispatch(ctx context.Context, lg types.Log) {
	if len(lg.Topics) < 2 {
		f.logger.Warn("event missing slip id topic",
			slog.String("tx", lg.TxHash.Hex()))
		return
	}
	slipID := lg.Topics[1].Hex()

	switch lg.Topics[0] {
	case slipCreatedTopic:
		f.logger.Info("slip created on chain",
			slog.String("slip_id", slipID),
			slog.Uint64("block", lg.BlockNumber))
		if f.onCreated != nil {
			f.onCreated(ctx, slipID)
		}
	case slipSellingTopic:
		f.logger.Info("slip selling state update on chain",
			slog.String("slip_id", slipID),
			slog.Uint64("block", lg.BlockNumber))
		if f.onSelling != nil {
			f.onSelling(ctx, slipID)
		}
	}
}
