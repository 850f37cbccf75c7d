// Package memledger provides an in-memory ledger.Client for dry runs and
// tests.
//
// Contract addresses follow the CREATE rule (keccak of sender and nonce), so
// a dry run predicts the addresses a fresh account would produce on a real
// chain. Registry ownership is simulated for setSubnodeOwner and setResolver;
// every other call only has its arguments type-checked against the method
// signature.
package memledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/roach88/nsboot/internal/ledger"
)

// DefaultOperator is the operator account used when none is configured.
var DefaultOperator = common.HexToAddress("0x6ac7ea33f8831ea9dcc53393aaa88b25a785dbf0")

// OpType distinguishes deployments from calls in the transaction journal.
type OpType string

const (
	OpDeploy OpType = "deploy"
	OpCall   OpType = "call"
)

// Op is one transaction submitted to the ledger.
type Op struct {
	Type     OpType
	Artifact string         // deploy only
	Target   common.Address // call only
	Method   string         // call only
	Args     []any
	Nonce    uint64
}

// FaultFunc is consulted before each transaction. A non-nil error fails the
// transaction; plain errors are treated as rejections and context errors as
// timeouts.
type FaultFunc func(ctx context.Context, op Op) error

// Option configures a Ledger.
type Option func(*Ledger)

// WithOperator sets the operator account.
func WithOperator(addr common.Address) Option {
	return func(l *Ledger) {
		l.operator = addr
	}
}

// WithFault installs a fault hook.
func WithFault(f FaultFunc) Option {
	return func(l *Ledger) {
		l.fault = f
	}
}

// WithNonce sets the starting account nonce.
func WithNonce(nonce uint64) Option {
	return func(l *Ledger) {
		l.nonce = nonce
	}
}

type contract struct {
	artifact  string
	owners    map[common.Hash]common.Address
	resolvers map[common.Hash]common.Address
}

// Ledger is an in-memory ledger. Safe for concurrent use.
type Ledger struct {
	mu        sync.Mutex
	operator  common.Address
	nonce     uint64
	block     uint64
	fault     FaultFunc
	contracts map[common.Address]*contract
	ops       []Op
}

// New creates an empty ledger.
func New(opts ...Option) *Ledger {
	l := &Ledger{
		operator:  DefaultOperator,
		contracts: make(map[common.Address]*contract),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Operator returns the operator account.
func (l *Ledger) Operator() common.Address {
	return l.operator
}

// Deploy records a contract creation at the next CREATE address. The
// deployer owns the root node of the new contract.
func (l *Ledger) Deploy(ctx context.Context, artifact string, args []any) (ledger.Receipt, error) {
	opName := "deploy " + artifact
	l.mu.Lock()
	op := Op{Type: OpDeploy, Artifact: artifact, Args: args, Nonce: l.nonce}
	l.mu.Unlock()

	if err := l.inject(ctx, opName, op); err != nil {
		return ledger.Receipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	addr := crypto.CreateAddress(l.operator, l.nonce)
	txHash := l.commit(op)
	l.contracts[addr] = &contract{
		artifact:  artifact,
		owners:    map[common.Hash]common.Address{ledgerRoot: l.operator},
		resolvers: make(map[common.Hash]common.Address),
	}
	return ledger.Receipt{Address: addr, TxHash: txHash, Block: l.block}, nil
}

// Call executes method on target. Calls to addresses with no contract, or
// registry writes on nodes the operator does not own, revert.
func (l *Ledger) Call(ctx context.Context, target common.Address, method string, args []any) (ledger.Receipt, error) {
	opName := "call " + method
	m, err := ledger.ParseMethod(method)
	if err != nil {
		return ledger.Receipt{}, &ledger.TransactionFailure{Op: opName, Reason: ledger.ReasonRejected, Err: err}
	}
	if _, err := m.Encode(args...); err != nil {
		return ledger.Receipt{}, &ledger.TransactionFailure{Op: opName, Reason: ledger.ReasonRejected, Err: err}
	}

	l.mu.Lock()
	op := Op{Type: OpCall, Target: target, Method: method, Args: args, Nonce: l.nonce}
	l.mu.Unlock()

	if err := l.inject(ctx, opName, op); err != nil {
		return ledger.Receipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	c, ok := l.contracts[target]
	var revert error
	if !ok {
		revert = fmt.Errorf("no contract at %s", target.Hex())
	} else {
		revert = c.apply(l.operator, m.Name, args)
	}

	// Reverted transactions are still mined and consume the nonce.
	txHash := l.commit(op)
	if revert != nil {
		return ledger.Receipt{}, &ledger.TransactionFailure{Op: opName, Reason: ledger.ReasonReverted, TxHash: txHash, Err: revert}
	}
	return ledger.Receipt{TxHash: txHash, Block: l.block}, nil
}

func (l *Ledger) inject(ctx context.Context, opName string, op Op) error {
	if err := ctx.Err(); err != nil {
		return ledger.Classify(opName, common.Hash{}, err, ledger.ReasonTimeout)
	}
	if l.fault == nil {
		return nil
	}
	if err := l.fault(ctx, op); err != nil {
		return ledger.Classify(opName, common.Hash{}, err, ledger.ReasonRejected)
	}
	return nil
}

// commit appends op to the journal, mines a block and returns a
// deterministic transaction hash. Caller holds l.mu.
func (l *Ledger) commit(op Op) common.Hash {
	l.ops = append(l.ops, op)
	l.block++
	l.nonce++
	return crypto.Keccak256Hash(l.operator.Bytes(), common.BigToHash(new(big.Int).SetUint64(op.Nonce)).Bytes())
}

func (c *contract) apply(operator common.Address, method string, args []any) error {
	switch method {
	case "setSubnodeOwner":
		node, label, owner := asHash(args[0]), asHash(args[1]), asAddress(args[2])
		if c.owners[node] != operator {
			return errNotAuthorised
		}
		c.owners[crypto.Keccak256Hash(node[:], label[:])] = owner
	case "setResolver":
		node, resolver := asHash(args[0]), asAddress(args[1])
		if c.owners[node] != operator {
			return errNotAuthorised
		}
		c.resolvers[node] = resolver
	}
	return nil
}

var ledgerRoot = common.Hash{}

func asHash(v any) common.Hash {
	switch h := v.(type) {
	case [32]byte:
		return h
	case common.Hash:
		return h
	}
	return common.Hash{}
}

func asAddress(v any) common.Address {
	switch a := v.(type) {
	case common.Address:
		return a
	case [20]byte:
		return a
	}
	return common.Address{}
}

var errNotAuthorised = errors.New("execution reverted: not authorised")

// Ops returns a copy of the transaction journal.
func (l *Ledger) Ops() []Op {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Op, len(l.ops))
	copy(out, l.ops)
	return out
}

// Nonce returns the next account nonce.
func (l *Ledger) Nonce() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.nonce
}

// Owner returns the owner of node in the contract at registry, or the zero
// address if unset.
func (l *Ledger) Owner(registry common.Address, node common.Hash) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.contracts[registry]; ok {
		return c.owners[node]
	}
	return common.Address{}
}

// Resolver returns the resolver set for node in the contract at registry.
func (l *Ledger) Resolver(registry common.Address, node common.Hash) common.Address {
	l.mu.Lock()
	defer l.mu.Unlock()
	if c, ok := l.contracts[registry]; ok {
		return c.resolvers[node]
	}
	return common.Address{}
}

// Artifact returns the artifact deployed at addr.
func (l *Ledger) Artifact(addr common.Address) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	c, ok := l.contracts[addr]
	if !ok {
		return "", false
	}
	return c.artifact, true
}
