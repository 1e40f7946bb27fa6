package contract

import (
	"context"
	"fmt"
	"log"
	"math/big"
	"os"

	"algoArenaServer/config"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// TreasuryClient verifies paywall payments on-chain: a hire/boost request
// is honored only if the presented transaction actually paid the treasury.
type TreasuryClient struct {
	Client   *ethclient.Client
	Treasury common.Address
}

// NewTreasuryClient connects to the configured RPC and resolves the
// treasury (pay-to) address from the environment.
func NewTreasuryClient() (*TreasuryClient, error) {
	rpcURL := os.Getenv("RPC_URL")
	if rpcURL == "" {
		rpcURL = config.DefaultRPC
	}

	treasuryHex := os.Getenv("TREASURY_ADDRESS")
	if treasuryHex == "" {
		treasuryHex = config.DefaultTreasuryAddress
	}
	if !common.IsHexAddress(treasuryHex) {
		return nil, fmt.Errorf("invalid treasury address: %s", treasuryHex)
	}

	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC %s: %w", rpcURL, err)
	}

	treasury := common.HexToAddress(treasuryHex)
	log.Printf("✅ Treasury client initialized - RPC: %s, PayTo: %s", rpcURL, treasury.Hex())

	return &TreasuryClient{
		Client:   client,
		Treasury: treasury,
	}, nil
}

// VerifyPayment checks that txHashHex names a mined, successful transfer of
// at least minAmount wei to the treasury. No state is mutated on-chain;
// replay protection is the caller's job (tokens are single-use anyway).
func (c *TreasuryClient) VerifyPayment(ctx context.Context, txHashHex string, minAmount *big.Int) error {
	if len(txHashHex) != 66 || txHashHex[:2] != "0x" {
		return fmt.Errorf("malformed transaction hash")
	}
	hash := common.HexToHash(txHashHex)

	tx, isPending, err := c.Client.TransactionByHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("payment transaction not found: %w", err)
	}
	if isPending {
		return fmt.Errorf("payment transaction still pending")
	}

	if tx.To() == nil || *tx.To() != c.Treasury {
		return fmt.Errorf("payment not addressed to treasury")
	}
	if tx.Value().Cmp(minAmount) < 0 {
		return fmt.Errorf("payment amount %s below required %s", tx.Value(), minAmount)
	}

	receipt, err := c.Client.TransactionReceipt(ctx, hash)
	if err != nil {
		return fmt.Errorf("failed to fetch payment receipt: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("payment transaction reverted")
	}

	log.Printf("💰 Verified payment %s -> %s (%.4f tokens)", hash.Hex(), c.Treasury.Hex(), config.WeiToToken(tx.Value()))
	return nil
}

// Close closes the RPC client connection.
func (c *TreasuryClient) Close() {
	c.Client.Close()
}
