// Package ethledger implements ledger.Client over Ethereum JSON-RPC using
// go-ethereum's ethclient and bind packages.
package ethledger

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"

	"github.com/roach88/nsboot/internal/ledger"
)

// Config holds connection settings for a JSON-RPC ledger.
type Config struct {
	RPCURL       string
	ChainID      int64
	PrivateKey   string // hex, with or without 0x prefix
	ArtifactsDir string
}

// backend is the subset of ethclient.Client the ledger client uses.
type backend interface {
	bind.ContractBackend
	bind.DeployBackend
	ChainID(ctx context.Context) (*big.Int, error)
}

// Client submits transactions through a JSON-RPC endpoint, signing with a
// single operator key.
type Client struct {
	backend   backend
	auth      *bind.TransactOpts
	artifacts *ledger.ArtifactStore
	closeFn   func()
}

// Dial connects to the endpoint and verifies the chain ID.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse operator key: %w", err)
	}

	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}

	c, err := newClient(ctx, ec, key, cfg.ChainID, ledger.NewArtifactStore(cfg.ArtifactsDir))
	if err != nil {
		ec.Close()
		return nil, err
	}
	c.closeFn = ec.Close
	return c, nil
}

func newClient(ctx context.Context, b backend, key *ecdsa.PrivateKey, chainID int64, artifacts *ledger.ArtifactStore) (*Client, error) {
	remote, err := b.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}
	if remote.Int64() != chainID {
		return nil, fmt.Errorf("chain id mismatch: endpoint reports %s, configured %d", remote, chainID)
	}

	auth, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(chainID))
	if err != nil {
		return nil, fmt.Errorf("build transactor: %w", err)
	}

	return &Client{backend: b, auth: auth, artifacts: artifacts}, nil
}

// Close releases the RPC connection.
func (c *Client) Close() {
	if c.closeFn != nil {
		c.closeFn()
	}
}

// Operator returns the signing account.
func (c *Client) Operator() common.Address {
	return c.auth.From
}

// Deploy creates a contract from the named artifact and waits for the
// creation transaction to be mined.
func (c *Client) Deploy(ctx context.Context, artifact string, args []any) (ledger.Receipt, error) {
	op := "deploy " + artifact
	a, err := c.artifacts.Load(artifact)
	if err != nil {
		return ledger.Receipt{}, &ledger.TransactionFailure{Op: op, Reason: ledger.ReasonRejected, Err: err}
	}

	addr, tx, _, err := bind.DeployContract(c.opts(ctx), a.ABI, a.Bytecode, c.backend, args...)
	if err != nil {
		return ledger.Receipt{}, ledger.Classify(op, common.Hash{}, err, ledger.ReasonRejected)
	}

	receipt, err := c.wait(ctx, op, tx)
	if err != nil {
		return ledger.Receipt{}, err
	}
	if receipt.ContractAddress != (common.Address{}) {
		addr = receipt.ContractAddress
	}
	return ledger.Receipt{Address: addr, TxHash: tx.Hash(), Block: receipt.BlockNumber.Uint64()}, nil
}

// Call encodes method with args, sends it to target and waits for it to be
// mined.
func (c *Client) Call(ctx context.Context, target common.Address, method string, args []any) (ledger.Receipt, error) {
	op := "call " + method
	data, err := ledger.EncodeCall(method, args)
	if err != nil {
		return ledger.Receipt{}, &ledger.TransactionFailure{Op: op, Reason: ledger.ReasonRejected, Err: err}
	}

	// Calldata is pre-encoded, so the bound contract needs no ABI.
	contract := bind.NewBoundContract(target, abi.ABI{}, c.backend, c.backend, c.backend)
	tx, err := contract.RawTransact(c.opts(ctx), data)
	if err != nil {
		return ledger.Receipt{}, ledger.Classify(op, common.Hash{}, err, ledger.ReasonRejected)
	}

	receipt, err := c.wait(ctx, op, tx)
	if err != nil {
		return ledger.Receipt{}, err
	}
	return ledger.Receipt{TxHash: tx.Hash(), Block: receipt.BlockNumber.Uint64()}, nil
}

// opts returns a copy of the transactor bound to ctx.
func (c *Client) opts(ctx context.Context) *bind.TransactOpts {
	opts := *c.auth
	opts.Context = ctx
	return &opts
}

func (c *Client) wait(ctx context.Context, op string, tx *types.Transaction) (*types.Receipt, error) {
	receipt, err := bind.WaitMined(ctx, c.backend, tx)
	if err != nil {
		return nil, ledger.Classify(op, tx.Hash(), err, ledger.ReasonRejected)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return nil, &ledger.TransactionFailure{
			Op:     op,
			Reason: ledger.ReasonReverted,
			TxHash: tx.Hash(),
			Err:    fmt.Errorf("receipt status %d in block %s", receipt.Status, receipt.BlockNumber),
		}
	}
	return receipt, nil
}
