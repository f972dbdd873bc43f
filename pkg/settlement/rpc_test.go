package settlement

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/matzehuels/deprank/pkg/errors"
)

const testSeed = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

var testContracts = Contracts{
	Allocation: "0xa1",
	Inquire:    "0xa2",
	Receipt:    "0xa3",
	Sign:       "0xa4",
	Workflow:   "0xa5",
}

// fakeNode is a ledger node that verifies signatures and dedups
// invocations by idempotency key.
type fakeNode struct {
	pub    string
	mu     sync.Mutex
	calls  []SignedInvocation
	byKey  map[string]string
	status string
	fail   int // HTTP status to answer with, when non-zero
}

func (n *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if n.fail != 0 {
		w.WriteHeader(n.fail)
		return
	}
	var req struct {
		ID     int64           `json:"id"`
		Method string          `json:"method"`
		Params json.RawMessage `json:"params"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	reply := func(result any) {
		json.NewEncoder(w).Encode(map[string]any{"jsonrpc": "2.0", "id": req.ID, "result": result})
	}
	switch req.Method {
	case "ledger_invoke":
		var inv SignedInvocation
		if err := json.Unmarshal(req.Params, &inv); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := Verify(n.pub, inv); err != nil {
			json.NewEncoder(w).Encode(map[string]any{"id": req.ID, "error": map[string]any{"code": -32001, "message": err.Error()}})
			return
		}
		n.mu.Lock()
		defer n.mu.Unlock()
		n.calls = append(n.calls, inv)
		tx, ok := n.byKey[inv.IdempotencyKey]
		if !ok {
			tx = "0x" + strings.Repeat("f", 4) + hex.EncodeToString([]byte(inv.IdempotencyKey))[:8]
			n.byKey[inv.IdempotencyKey] = tx
		}
		reply(map[string]string{"transaction_hash": tx, "id": "id-" + inv.IdempotencyKey})
	case "ledger_call":
		reply(map[string]string{"status": n.status})
	default:
		json.NewEncoder(w).Encode(map[string]any{"id": req.ID, "error": map[string]any{"code": -32601, "message": "method not found"}})
	}
}

func newTestChain(t *testing.T) (*RPCChain, *fakeNode) {
	t.Helper()
	node := &fakeNode{byKey: map[string]string{}, status: "confirmed"}
	srv := httptest.NewServer(node)
	t.Cleanup(srv.Close)

	c, err := NewRPCChain(RPCConfig{
		URL:            srv.URL,
		PrivateKey:     testSeed,
		AccountAddress: "0xfeed",
		ChainID:        "deprank-test",
		Contracts:      testContracts,
	})
	require.NoError(t, err)
	node.pub = c.PublicKey()
	return c, node
}

func TestRPCChainSettle(t *testing.T) {
	chain, node := newTestChain(t)
	p := testPlan()
	require.NoError(t, fastSettler(chain).Settle(context.Background(), p, countSaves(new(int))))

	var entrypoints []string
	for _, c := range node.calls {
		entrypoints = append(entrypoints, c.Contract+"/"+c.Entrypoint)
		assert.Equal(t, "0xfeed", c.Account)
		assert.Equal(t, "deprank-test", c.ChainID)
	}
	assert.Equal(t, []string{
		"0xa5/create_workflow",
		"0xa3/create_receipt",
		"0xa3/create_receipt",
		"0xa4/create_sign",
		"0xa1/create_allocation",
		"0xa4/create_sign",
		"0xa1/create_allocation",
		"0xa5/finish_workflow",
	}, entrypoints)
	for _, a := range p.Allocations {
		assert.Equal(t, "id-allocation:"+TransferKey(p.Workflow.ID, a.Identity), a.ReceiptID)
	}
}

func TestRPCChainSubmitIdempotent(t *testing.T) {
	chain, _ := newTestChain(t)
	tr := Transfer{Key: "wf:alice", WorkflowID: "wf", Identity: "alice", Amount: 10}
	r1, err := chain.Submit(context.Background(), tr)
	require.NoError(t, err)
	r2, err := chain.Submit(context.Background(), tr)
	require.NoError(t, err)
	assert.Equal(t, r1, r2)
}

func TestRPCChainErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		code   errors.Code
	}{
		{"server error is retryable", http.StatusBadGateway, errors.ErrCodeSettlementTimeout},
		{"rate limit is retryable", http.StatusTooManyRequests, errors.ErrCodeSettlementTimeout},
		{"bad request is rejected", http.StatusBadRequest, errors.ErrCodeSettlementRejected},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chain, node := newTestChain(t)
			node.fail = tt.status
			_, err := chain.FinishWorkflow(context.Background(), "wf")
			assert.True(t, errors.Is(err, tt.code), "err = %v", err)
		})
	}
}

func TestRPCChainBadSignatureRejected(t *testing.T) {
	chain, node := newTestChain(t)
	other := ed25519.NewKeyFromSeed(make([]byte, ed25519.SeedSize))
	node.pub = hex.EncodeToString(other.Public().(ed25519.PublicKey))

	_, err := chain.RegisterWorkflow(context.Background(), "wf", "acme", "0x1")
	assert.True(t, errors.Is(err, errors.ErrCodeSettlementRejected), "err = %v", err)
}

func TestRPCChainStatus(t *testing.T) {
	chain, node := newTestChain(t)
	for _, s := range []Status{StatusPending, StatusConfirmed, StatusFailed} {
		node.status = string(s)
		got, err := chain.Status(context.Background(), "r1")
		require.NoError(t, err)
		assert.Equal(t, s, got)
	}
	node.status = "weird"
	_, err := chain.Status(context.Background(), "r1")
	assert.True(t, errors.Is(err, errors.ErrCodeSettlementRejected))
}

func TestNewRPCChainValidation(t *testing.T) {
	base := RPCConfig{URL: "http://localhost", PrivateKey: testSeed, AccountAddress: "0x1", Contracts: testContracts}
	tests := []struct {
		name   string
		mutate func(*RPCConfig)
	}{
		{"no url", func(c *RPCConfig) { c.URL = "" }},
		{"bad key", func(c *RPCConfig) { c.PrivateKey = "zz" }},
		{"short key", func(c *RPCConfig) { c.PrivateKey = "abcd" }},
		{"bad account", func(c *RPCConfig) { c.AccountAddress = "feed" }},
		{"missing contract", func(c *RPCConfig) { c.Contracts.Sign = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := base
			tt.mutate(&cfg)
			_, err := NewRPCChain(cfg)
			assert.True(t, errors.Is(err, errors.ErrCodeInvalidInput), "err = %v", err)
		})
	}
	_, err := NewRPCChain(base)
	assert.NoError(t, err)
}
