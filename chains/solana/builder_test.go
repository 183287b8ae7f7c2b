package solana

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chinmay1088/odyssey-core/chains"
	"github.com/chinmay1088/odyssey-core/health"
)

var errConnRefused = errors.New("dial tcp: connection refused")

type fakeNode struct {
	mu sync.Mutex

	balance   uint64
	blockhash solana.Hash
	sendErr   error
	// sendErrs are returned by successive sends before sendErr applies.
	sendErrs []error
	down     bool
	// onSend is recorded as the status of every transaction sent.
	onSend *SignatureStatus

	sent           []*solana.Transaction
	statuses       map[solana.Signature]*SignatureStatus
	blockhashCalls int
}

func newFakeNode() *fakeNode {
	return &fakeNode{
		blockhash: solana.Hash{0x01, 0x02, 0x03},
		statuses:  make(map[solana.Signature]*SignatureStatus),
	}
}

func (n *fakeNode) Balance(context.Context, solana.PublicKey) (uint64, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return 0, errConnRefused
	}
	return n.balance, nil
}

func (n *fakeNode) LatestBlockhash(context.Context) (solana.Hash, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return solana.Hash{}, errConnRefused
	}
	n.blockhashCalls++
	return n.blockhash, nil
}

func (n *fakeNode) Send(_ context.Context, tx *solana.Transaction) (solana.Signature, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return solana.Signature{}, errConnRefused
	}
	n.sent = append(n.sent, tx)
	if len(n.sendErrs) > 0 {
		err := n.sendErrs[0]
		n.sendErrs = n.sendErrs[1:]
		return solana.Signature{}, err
	}
	if n.sendErr != nil {
		return solana.Signature{}, n.sendErr
	}
	if n.onSend != nil {
		st := *n.onSend
		n.statuses[tx.Signatures[0]] = &st
	}
	return tx.Signatures[0], nil
}

func (n *fakeNode) SignatureStatus(_ context.Context, sig solana.Signature) (*SignatureStatus, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.down {
		return nil, errConnRefused
	}
	return n.statuses[sig], nil
}

func (n *fakeNode) sentCount() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.sent)
}

type fixture struct {
	builder *Builder
	tracker *Tracker
	nodes   map[string]*fakeNode
	key     solana.PrivateKey
	from    solana.PublicKey
	to      solana.PublicKey
}

func newFixture(t *testing.T, endpoints ...string) *fixture {
	t.Helper()
	if len(endpoints) == 0 {
		endpoints = []string{"primary"}
	}
	f := &fixture{nodes: make(map[string]*fakeNode)}
	for _, ep := range endpoints {
		f.nodes[ep] = newFakeNode()
	}

	registry := health.NewRegistry(health.Options{CallTimeout: time.Second, StaleAfter: time.Minute})
	probe := func(_ context.Context, ep string) (uint64, error) {
		if f.nodes[ep].down {
			return 0, errConnRefused
		}
		return 250_000_000, nil
	}
	require.NoError(t, registry.Register(health.EndpointSet{Group: "solana", Primary: endpoints[0], Fallbacks: endpoints[1:]}, probe))

	dial := func(_ context.Context, ep string) (Node, error) { return f.nodes[ep], nil }
	cfg := Config{Group: "solana", ConfirmInterval: 5 * time.Millisecond, ConfirmTimeout: 300 * time.Millisecond, SendRetries: 3}
	f.builder = NewBuilder(cfg, registry, dial)
	f.tracker = NewTracker(cfg, registry, dial)

	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	f.key = key
	f.from = key.PublicKey()
	to, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	f.to = to.PublicKey()
	return f
}

func (f *fixture) request(amount string) chains.TransferRequest {
	return chains.TransferRequest{Chain: "solana", From: f.from.String(), To: f.to.String(), Amount: decimal.RequireFromString(amount)}
}

func (f *fixture) keyBytes() []byte {
	return []byte(f.key.String())
}

func confirmedAt(slot uint64, confirmations *uint64) *SignatureStatus {
	return &SignatureStatus{Slot: slot, Confirmations: confirmations, ConfirmationStatus: "confirmed"}
}

func TestTransfer_SignsAndConfirms(t *testing.T) {
	f := newFixture(t)
	node := f.nodes["primary"]
	confs := uint64(4)
	node.onSend = confirmedAt(250_000_100, &confs)

	res, err := f.builder.Transfer(context.Background(), f.request("1.25"), f.keyBytes())
	require.NoError(t, err)

	require.Len(t, node.sent, 1)
	sent := node.sent[0]
	assert.Equal(t, sent.Signatures[0].String(), res.TxReference)
	assert.Equal(t, chains.StatusConfirmed, res.Status)
	require.NotNil(t, res.Height)
	assert.Equal(t, uint64(250_000_100), *res.Height)
	assert.Equal(t, uint64(4), res.Confirmations)

	require.NoError(t, sent.VerifySignatures())
	assert.Equal(t, node.blockhash, sent.Message.RecentBlockhash)
	assert.Len(t, sent.Message.Instructions, 1)
	assert.Equal(t, f.from, sent.Message.AccountKeys[0], "sender pays the fee")
}

func TestTransfer_FreshBlockhashPerCall(t *testing.T) {
	f := newFixture(t)
	node := f.nodes["primary"]
	node.onSend = confirmedAt(10, nil)

	for i := 0; i < 2; i++ {
		_, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
		require.NoError(t, err)
	}
	assert.Equal(t, 2, node.blockhashCalls)
}

func TestTransfer_RuntimeErrorIsFailed(t *testing.T) {
	f := newFixture(t)
	f.nodes["primary"].onSend = &SignatureStatus{Slot: 77, ConfirmationStatus: "confirmed", Err: map[string]interface{}{"InstructionError": []interface{}{0, "Custom"}}}

	res, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
	require.NoError(t, err)
	assert.Equal(t, chains.StatusFailed, res.Status)
	require.NotNil(t, res.Height)
	assert.Equal(t, uint64(77), *res.Height)
}

func TestTransfer_ResendRoundsExhaustedIsPending(t *testing.T) {
	f := newFixture(t)
	f.builder.cfg.ConfirmTimeout = 60 * time.Millisecond
	node := f.nodes["primary"]

	res, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
	require.NoError(t, err)
	assert.Equal(t, chains.StatusPending, res.Status)
	assert.NotEmpty(t, res.TxReference)

	require.Equal(t, 3, node.sentCount())
	for _, tx := range node.sent[1:] {
		assert.Equal(t, node.sent[0].Signatures[0], tx.Signatures[0], "resends carry identical signed bytes")
	}
}

func TestTransfer_ProcessedOnlyStaysPending(t *testing.T) {
	f := newFixture(t)
	f.builder.cfg.ConfirmTimeout = 30 * time.Millisecond
	f.nodes["primary"].onSend = &SignatureStatus{Slot: 5, ConfirmationStatus: "processed"}

	res, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
	require.NoError(t, err)
	assert.Equal(t, chains.StatusPending, res.Status)
}

func TestTransfer_RejectedIsNotRetried(t *testing.T) {
	f := newFixture(t, "primary", "backup")
	f.nodes["primary"].sendErr = &jsonrpc.RPCError{Code: -32002, Message: "Transaction signature verification failure"}

	_, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, chains.ErrBroadcastRejected))
	assert.Equal(t, 1, f.nodes["primary"].sentCount())
	assert.Equal(t, 0, f.nodes["backup"].sentCount())
}

func TestTransfer_TransientRejectionIsResent(t *testing.T) {
	f := newFixture(t, "primary", "backup")
	node := f.nodes["primary"]
	node.sendErrs = []error{&jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: Blockhash not found"}}
	confs := uint64(2)
	node.onSend = confirmedAt(300, &confs)

	res, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
	require.NoError(t, err)
	assert.Equal(t, chains.StatusConfirmed, res.Status)

	require.Equal(t, 2, node.sentCount())
	assert.Equal(t, node.sent[0].Signatures[0], node.sent[1].Signatures[0], "the resend carries identical signed bytes")
	assert.Equal(t, node.sent[0].Signatures[0].String(), res.TxReference)
	assert.Equal(t, 0, f.nodes["backup"].sentCount())
}

func TestTransfer_TransientRejectionExhaustsRounds(t *testing.T) {
	f := newFixture(t)
	f.builder.cfg.ConfirmTimeout = 30 * time.Millisecond
	node := f.nodes["primary"]
	node.sendErr = &jsonrpc.RPCError{Code: -32005, Message: "Node is behind by 42 slots"}

	res, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
	require.Error(t, err)
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, chains.ErrBroadcastRejected))
	assert.Equal(t, 3, node.sentCount())
}

func TestTransfer_InsufficientLamports(t *testing.T) {
	f := newFixture(t)
	f.nodes["primary"].sendErr = &jsonrpc.RPCError{Code: -32002, Message: "Transaction simulation failed: insufficient lamports"}

	_, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, chains.ErrInsufficientFunds))
}

func TestTransfer_AlreadyProcessedOnFallback(t *testing.T) {
	f := newFixture(t, "primary", "backup")
	f.nodes["primary"].sendErr = errConnRefused
	f.nodes["backup"].sendErr = &jsonrpc.RPCError{Code: -32002, Message: "This transaction has already been processed"}
	f.builder.cfg.ConfirmTimeout = 30 * time.Millisecond

	res, err := f.builder.Transfer(context.Background(), f.request("0.1"), f.keyBytes())
	require.NoError(t, err)
	assert.Equal(t, chains.StatusPending, res.Status)
	assert.Equal(t, f.nodes["primary"].sent[0].Signatures[0].String(), res.TxReference)
}

func TestTransfer_CallerAbandonsWait(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithTimeout(context.Background(), 40*time.Millisecond)
	defer cancel()

	res, err := f.builder.Transfer(ctx, f.request("0.1"), f.keyBytes())
	require.Error(t, err)
	assert.True(t, errors.Is(err, chains.ErrTimeout))
	require.NotNil(t, res)
	assert.Equal(t, chains.StatusPending, res.Status)
	assert.GreaterOrEqual(t, f.nodes["primary"].sentCount(), 1)
}

func TestTransfer_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	req := f.request("0.1")
	req.To = "not-a-key"
	_, err := f.builder.Transfer(ctx, req, f.keyBytes())
	assert.True(t, errors.Is(err, chains.ErrInvalidAddress))

	_, err = f.builder.Transfer(ctx, f.request("0.0000000001"), f.keyBytes())
	assert.True(t, errors.Is(err, chains.ErrInvalidAmount))

	other, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	_, err = f.builder.Transfer(ctx, f.request("0.1"), []byte(other.String()))
	assert.True(t, errors.Is(err, chains.ErrInvalidAddress))

	_, err = f.builder.Transfer(ctx, f.request("0.1"), []byte("3yZe7d"))
	assert.Error(t, err)

	assert.Equal(t, 0, f.nodes["primary"].sentCount())
}

func TestBalance(t *testing.T) {
	f := newFixture(t, "primary", "backup")
	f.nodes["primary"].down = true
	f.nodes["backup"].balance = 1_500_000_000

	bal, err := f.builder.Balance(context.Background(), f.from.String())
	require.NoError(t, err)
	assert.Equal(t, "1.5", bal.String())
}

func TestTracker_Lookup(t *testing.T) {
	f := newFixture(t)
	node := f.nodes["primary"]
	ctx := context.Background()

	_, err := f.tracker.Lookup(ctx, "not-a-signature")
	assert.True(t, errors.Is(err, chains.ErrInvalidAddress))

	var sig solana.Signature
	copy(sig[:], []byte("unknown-signature-bytes-padded-to-sixty-four-bytes-for-the-test"))
	res, err := f.tracker.Lookup(ctx, sig.String())
	require.NoError(t, err)
	assert.Equal(t, chains.StatusPending, res.Status)

	node.statuses[sig] = &SignatureStatus{Slot: 900, ConfirmationStatus: "finalized"}
	res, err = f.tracker.Lookup(ctx, sig.String())
	require.NoError(t, err)
	assert.Equal(t, chains.StatusConfirmed, res.Status)
	assert.Equal(t, uint64(rootedConfirmations), res.Confirmations)
}

func TestParsePrivateKey(t *testing.T) {
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)

	parsed, err := ParsePrivateKey([]byte(" " + key.String() + "\n"))
	require.NoError(t, err)
	assert.Equal(t, key.PublicKey(), parsed.PublicKey())

	_, err = ParsePrivateKey([]byte(key.PublicKey().String()))
	assert.True(t, errors.Is(err, chains.ErrKeyDecryptionFailed), "a 32-byte public key is not a secret key")

	_, err = ParsePrivateKey([]byte("0OIl"))
	assert.True(t, errors.Is(err, chains.ErrKeyDecryptionFailed))
}
