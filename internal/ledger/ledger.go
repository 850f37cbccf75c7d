// Package ledger defines the Ledger Client contract consumed by the
// provisioning orchestrator, together with the shared pieces every client
// needs: method-signature ABI encoding, contract artifacts, and the
// TransactionFailure error.
//
// A Client submits one transaction at a time and blocks until the ledger
// confirms it. Confirmation waits are bounded by the caller's context; an
// expired deadline surfaces as a TransactionFailure with ReasonTimeout and
// a cancelled context as one with ReasonCancelled.
//
// Implementations:
//   - ethledger: JSON-RPC client built on go-ethereum
//   - memledger: in-memory simulated ledger for dry runs and tests
package ledger

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// Receipt describes a confirmed transaction.
type Receipt struct {
	// Address is the created contract for deployments, zero for calls.
	Address common.Address
	TxHash  common.Hash
	Block   uint64
}

// Client is the Ledger Client consumed by the orchestrator.
//
// Args are Go values accepted by the ABI encoder: common.Address,
// [32]byte, *big.Int, []*big.Int, string and bool.
type Client interface {
	// Operator returns the account that signs every transaction.
	Operator() common.Address

	// Deploy submits a contract-creation transaction for the named artifact
	// and blocks until it is confirmed.
	Deploy(ctx context.Context, artifact string, args []any) (Receipt, error)

	// Call submits a state-mutating call of method (a canonical signature
	// such as "setResolver(bytes32,address)") and blocks until confirmed.
	Call(ctx context.Context, target common.Address, method string, args []any) (Receipt, error)
}
