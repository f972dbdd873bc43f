package settlement

import (
	"context"
	"crypto/ed25519"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/matzehuels/deprank/pkg/errors"
	"github.com/matzehuels/deprank/pkg/httputil"
	"github.com/matzehuels/deprank/pkg/integrations"
)

// Contracts holds the ledger addresses of each contract role.
type Contracts struct {
	Allocation string `toml:"allocation"`
	Inquire    string `toml:"inquire"`
	Receipt    string `toml:"receipt"`
	Sign       string `toml:"sign"`
	Workflow   string `toml:"workflow"`
}

// RPCConfig configures an [RPCChain].
type RPCConfig struct {
	URL            string
	PrivateKey     string // hex ed25519 seed (32 bytes) or full key (64 bytes)
	AccountAddress string
	ChainID        string
	Contracts      Contracts
}

// RPCChain is a [Chain] backed by a JSON-RPC 2.0 ledger node. Every
// invocation is signed with the account's ed25519 key.
type RPCChain struct {
	client  *integrations.Client
	url     string
	key     ed25519.PrivateKey
	account string
	chainID string
	c       Contracts
	nextID  atomic.Int64
}

// NewRPCChain validates cfg and creates the adapter.
func NewRPCChain(cfg RPCConfig) (*RPCChain, error) {
	if cfg.URL == "" {
		return nil, errors.New(errors.ErrCodeInvalidInput, "chain RPC URL is required")
	}
	key, err := parsePrivateKey(cfg.PrivateKey)
	if err != nil {
		return nil, err
	}
	for role, addr := range map[string]string{
		"account":    cfg.AccountAddress,
		"allocation": cfg.Contracts.Allocation,
		"inquire":    cfg.Contracts.Inquire,
		"receipt":    cfg.Contracts.Receipt,
		"sign":       cfg.Contracts.Sign,
		"workflow":   cfg.Contracts.Workflow,
	} {
		if err := errors.ValidateWalletAddress(addr); err != nil {
			return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "%s address", role)
		}
	}
	return &RPCChain{
		client:  integrations.NewClient(nil, "rpc", 0, nil),
		url:     cfg.URL,
		key:     key,
		account: cfg.AccountAddress,
		chainID: cfg.ChainID,
		c:       cfg.Contracts,
	}, nil
}

func parsePrivateKey(s string) (ed25519.PrivateKey, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(s, "0x"))
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidInput, err, "private key is not hex")
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(raw), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(raw), nil
	}
	return nil, errors.New(errors.ErrCodeInvalidInput, "private key must be %d or %d bytes, got %d",
		ed25519.SeedSize, ed25519.PrivateKeySize, len(raw))
}

// PublicKey returns the hex public key matching the signing key.
func (r *RPCChain) PublicKey() string {
	return hex.EncodeToString(r.key.Public().(ed25519.PublicKey))
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// Invocation is the signed payload of a state-changing call.
type Invocation struct {
	Contract       string   `json:"contract"`
	Entrypoint     string   `json:"entrypoint"`
	Calldata       []string `json:"calldata"`
	Account        string   `json:"account"`
	ChainID        string   `json:"chain_id"`
	IdempotencyKey string   `json:"idempotency_key,omitempty"`
	Timestamp      int64    `json:"timestamp"`
}

// SignedInvocation is an Invocation with its detached signature over the
// JSON encoding of Invocation.
type SignedInvocation struct {
	Invocation
	Signature string `json:"signature"`
}

type invokeResult struct {
	TransactionHash string `json:"transaction_hash"`
	ID              string `json:"id"`
}

type statusResult struct {
	Status string `json:"status"`
}

func (r *RPCChain) do(ctx context.Context, method string, params, out any) error {
	req := rpcRequest{JSONRPC: "2.0", ID: r.nextID.Add(1), Method: method, Params: params}
	var resp rpcResponse
	if err := r.client.PostJSON(ctx, r.url, req, &resp); err != nil {
		return classify(ctx, err)
	}
	if resp.Error != nil {
		return errors.New(errors.ErrCodeSettlementRejected, "%s: rpc error %d: %s", method, resp.Error.Code, resp.Error.Message)
	}
	if err := json.Unmarshal(resp.Result, out); err != nil {
		return errors.Wrap(errors.ErrCodeSettlementRejected, err, "%s: malformed result", method)
	}
	return nil
}

// classify maps transport failures to settlement codes: timeouts and
// transient failures are retryable, other HTTP failures are rejections.
func classify(ctx context.Context, err error) error {
	switch {
	case ctx.Err() != nil:
		return ctx.Err()
	case stderrors.Is(err, context.DeadlineExceeded), httputil.IsRetryable(err):
		return errors.Wrap(errors.ErrCodeSettlementTimeout, err, "ledger unavailable")
	default:
		return errors.Wrap(errors.ErrCodeSettlementRejected, err, "ledger request failed")
	}
}

func (r *RPCChain) invoke(ctx context.Context, contract, entrypoint, key string, calldata ...string) (invokeResult, error) {
	inv := Invocation{
		Contract:       contract,
		Entrypoint:     entrypoint,
		Calldata:       calldata,
		Account:        r.account,
		ChainID:        r.chainID,
		IdempotencyKey: key,
		Timestamp:      time.Now().Unix(),
	}
	payload, err := json.Marshal(inv)
	if err != nil {
		return invokeResult{}, err
	}
	signed := SignedInvocation{
		Invocation: inv,
		Signature:  hex.EncodeToString(ed25519.Sign(r.key, payload)),
	}
	var res invokeResult
	if err := r.do(ctx, "ledger_invoke", signed, &res); err != nil {
		return invokeResult{}, err
	}
	if res.TransactionHash == "" {
		return invokeResult{}, errors.New(errors.ErrCodeSettlementRejected, "%s: empty transaction hash", entrypoint)
	}
	return res, nil
}

func (r *RPCChain) RegisterWorkflow(ctx context.Context, workflowID, owner, wallet string) (string, error) {
	res, err := r.invoke(ctx, r.c.Workflow, "create_workflow", "workflow:"+workflowID, workflowID, owner, wallet)
	return res.TransactionHash, err
}

func (r *RPCChain) RecordReceipt(ctx context.Context, workflowID string, dep Dependency, metadataHash string) (string, error) {
	res, err := r.invoke(ctx, r.c.Receipt, "create_receipt", "receipt:"+workflowID+":"+metadataHash,
		workflowID, dep.Repo, dep.Name, dep.Version, dep.License, metadataHash)
	return res.TransactionHash, err
}

// Submit records a signature for the transfer on the sign contract and then
// creates the allocation referencing it. Both calls carry idempotency keys
// derived from the transfer key.
func (r *RPCChain) Submit(ctx context.Context, t Transfer) (Receipt, error) {
	digest := sha256.Sum256(fmt.Appendf(nil, "%s|%s|%d", t.Key, t.Recipient, t.Amount))
	sig, err := r.invoke(ctx, r.c.Sign, "create_sign", "sign:"+t.Key,
		t.WorkflowID, r.account, hex.EncodeToString(ed25519.Sign(r.key, digest[:])))
	if err != nil {
		return Receipt{}, err
	}
	res, err := r.invoke(ctx, r.c.Allocation, "create_allocation", "allocation:"+t.Key,
		t.WorkflowID, sig.ID, t.Identity, t.Recipient, strconv.FormatInt(t.Amount, 10))
	if err != nil {
		return Receipt{}, err
	}
	id := res.ID
	if id == "" {
		id = res.TransactionHash
	}
	return Receipt{ID: id, TxHash: res.TransactionHash}, nil
}

// Status queries the inquire contract for the allocation's state.
func (r *RPCChain) Status(ctx context.Context, receiptID string) (Status, error) {
	params := map[string]any{
		"contract":   r.c.Inquire,
		"entrypoint": "get_allocation_status",
		"calldata":   []string{receiptID},
	}
	var res statusResult
	if err := r.do(ctx, "ledger_call", params, &res); err != nil {
		return "", err
	}
	switch Status(res.Status) {
	case StatusPending, StatusConfirmed, StatusFailed:
		return Status(res.Status), nil
	}
	return "", errors.New(errors.ErrCodeSettlementRejected, "unknown allocation status %q", res.Status)
}

func (r *RPCChain) FinishWorkflow(ctx context.Context, workflowID string) (string, error) {
	res, err := r.invoke(ctx, r.c.Workflow, "finish_workflow", "finish:"+workflowID, workflowID)
	return res.TransactionHash, err
}

// Verify checks a signed invocation against a hex public key. Ledger nodes
// and tests use it to authenticate requests.
func Verify(publicKey string, s SignedInvocation) error {
	pub, err := hex.DecodeString(publicKey)
	if err != nil || len(pub) != ed25519.PublicKeySize {
		return fmt.Errorf("invalid public key")
	}
	sig, err := hex.DecodeString(s.Signature)
	if err != nil {
		return fmt.Errorf("invalid signature encoding: %w", err)
	}
	payload, err := json.Marshal(s.Invocation)
	if err != nil {
		return err
	}
	if !ed25519.Verify(pub, payload, sig) {
		return fmt.Errorf("signature mismatch")
	}
	return nil
}
