package rpc

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/accounts"
	"github.com/GotokHQ/stamp/pkg/journal"
	"github.com/GotokHQ/stamp/pkg/runtime"
	"github.com/GotokHQ/stamp/pkg/runtime/system"
	"github.com/GotokHQ/stamp/pkg/runtime/token"
	"github.com/GotokHQ/stamp/pkg/stamp"
)

type keypair struct {
	pub  types.Pubkey
	priv ed25519.PrivateKey
}

func newKeypair(t *testing.T) keypair {
	t.Helper()
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	p, _ := types.PubkeyFromBytes(pub)
	return keypair{pub: p, priv: priv}
}

func signTx(tx *runtime.Transaction, signers ...keypair) {
	tx.Signers = tx.Signers[:0]
	tx.Signatures = tx.Signatures[:0]
	for _, kp := range signers {
		tx.Signers = append(tx.Signers, kp.pub)
	}
	msg := tx.Message()
	for _, kp := range signers {
		sig, _ := types.SignatureFromBytes(ed25519.Sign(kp.priv, msg))
		tx.Signatures = append(tx.Signatures, sig)
	}
}

type testNode struct {
	server    *Server
	store     *accounts.Store
	programID types.Pubkey
	http      *httptest.Server
}

func newTestNode(t *testing.T) *testNode {
	t.Helper()

	store, err := accounts.Open(accounts.Config{InMemory: true})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	jrnl, err := journal.Open(journal.Config{Path: filepath.Join(t.TempDir(), "journal.db")})
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { jrnl.Close() })

	programID := stamp.DefaultProgramID
	rt := runtime.New(runtime.DefaultRent())
	rt.Register(system.ProgramID, system.New())
	rt.Register(token.ProgramID, token.New())
	rt.Register(programID, stamp.NewProcessor())

	identity := newKeypair(t)
	config := DefaultConfig()
	config.Identity = identity.pub

	srv := New(config, rt, programID, store, jrnl)
	ts := httptest.NewServer(http.HandlerFunc(srv.handleRPC))
	t.Cleanup(ts.Close)

	return &testNode{server: srv, store: store, programID: programID, http: ts}
}

// call performs a JSON-RPC request and returns the decoded response.
func (n *testNode) call(t *testing.T, method string, params interface{}) Response {
	t.Helper()

	req := map[string]interface{}{
		"jsonrpc": JSONRPCVersion,
		"id":      1,
		"method":  method,
	}
	if params != nil {
		req["params"] = params
	}
	body, err := json.Marshal(req)
	if err != nil {
		t.Fatalf("marshal request: %v", err)
	}

	resp, err := http.Post(n.http.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var rpcResp Response
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return rpcResp
}

func (n *testNode) fund(t *testing.T, key types.Pubkey, lamports uint64) {
	t.Helper()
	err := n.store.SetAccount(key, &accounts.Account{
		Lamports: lamports,
		Owner:    types.SystemProgramAddr,
	})
	if err != nil {
		t.Fatalf("fund %s: %v", key, err)
	}
}

func TestGetHealth(t *testing.T) {
	node := newTestNode(t)

	resp := node.call(t, "getHealth", nil)
	if resp.Error != nil {
		t.Fatalf("getHealth error: %v", resp.Error)
	}
	if resp.Result != "ok" {
		t.Errorf("result = %v, want ok", resp.Result)
	}

	node.server.SetHealthy(false)
	resp = node.call(t, "getHealth", nil)
	if resp.Error == nil || resp.Error.Code != NodeUnhealthy {
		t.Errorf("unhealthy node: error = %v, want code %d", resp.Error, NodeUnhealthy)
	}
}

func TestGetVersion(t *testing.T) {
	node := newTestNode(t)

	resp := node.call(t, "getVersion", nil)
	if resp.Error != nil {
		t.Fatalf("getVersion error: %v", resp.Error)
	}
	result, ok := resp.Result.(map[string]interface{})
	if !ok {
		t.Fatalf("result type %T", resp.Result)
	}
	if result["stamp-core"] != StampCore {
		t.Errorf("stamp-core = %v, want %s", result["stamp-core"], StampCore)
	}
}

func TestMethodNotFound(t *testing.T) {
	node := newTestNode(t)

	resp := node.call(t, "noSuchMethod", nil)
	if resp.Error == nil || resp.Error.Code != MethodNotFound {
		t.Errorf("error = %v, want code %d", resp.Error, MethodNotFound)
	}
}

func TestGetBalance(t *testing.T) {
	node := newTestNode(t)

	key := newKeypair(t)
	node.fund(t, key.pub, 500_000)

	resp := node.call(t, "getBalance", []interface{}{key.pub.String()})
	if resp.Error != nil {
		t.Fatalf("getBalance error: %v", resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	if value := result["value"].(float64); uint64(value) != 500_000 {
		t.Errorf("balance = %v, want 500000", value)
	}

	// Unknown accounts report zero balance.
	resp = node.call(t, "getBalance", []interface{}{newKeypair(t).pub.String()})
	if resp.Error != nil {
		t.Fatalf("getBalance error: %v", resp.Error)
	}
	result = resp.Result.(map[string]interface{})
	if value := result["value"].(float64); value != 0 {
		t.Errorf("unknown account balance = %v, want 0", value)
	}
}

func TestGetAccountInfoMissing(t *testing.T) {
	node := newTestNode(t)

	resp := node.call(t, "getAccountInfo", []interface{}{newKeypair(t).pub.String()})
	if resp.Error != nil {
		t.Fatalf("getAccountInfo error: %v", resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	if result["value"] != nil {
		t.Errorf("value = %v, want null", result["value"])
	}
}

func TestGetMinimumBalanceForRentExemption(t *testing.T) {
	node := newTestNode(t)

	resp := node.call(t, "getMinimumBalanceForRentExemption", []interface{}{1})
	if resp.Error != nil {
		t.Fatalf("error: %v", resp.Error)
	}
	want := runtime.DefaultRent().MinimumBalance(1)
	if got := uint64(resp.Result.(float64)); got != want {
		t.Errorf("minimum balance = %d, want %d", got, want)
	}
}

func TestFindStampAddress(t *testing.T) {
	node := newTestNode(t)

	reference := newKeypair(t)
	resp := node.call(t, "findStampAddress", []interface{}{reference.pub.String()})
	if resp.Error != nil {
		t.Fatalf("findStampAddress error: %v", resp.Error)
	}
	result := resp.Result.(map[string]interface{})

	wantAddr, wantBump, err := stamp.FindStampProgramAddress(node.programID, reference.pub)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if result["address"] != wantAddr.String() {
		t.Errorf("address = %v, want %s", result["address"], wantAddr)
	}
	if uint8(result["bump"].(float64)) != wantBump {
		t.Errorf("bump = %v, want %d", result["bump"], wantBump)
	}
}

func initStampWire(t *testing.T, node *testNode, authority, payer keypair, reference types.Pubkey) (string, types.Pubkey) {
	t.Helper()

	stampAddr, bump, err := stamp.FindStampProgramAddress(node.programID, reference)
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	tx := &runtime.Transaction{
		Instructions: []runtime.Instruction{
			stamp.InitStamp(node.programID, authority.pub, payer.pub, stampAddr, reference,
				stamp.InitStampArgs{Bump: bump, Reference: reference.String()}),
		},
	}
	signTx(tx, authority, payer)
	return base64.StdEncoding.EncodeToString(tx.Serialize()), stampAddr
}

func TestSendTransactionInitStamp(t *testing.T) {
	node := newTestNode(t)

	authority := newKeypair(t)
	payer := newKeypair(t)
	reference := newKeypair(t)
	node.fund(t, payer.pub, 10_000_000)

	wire, stampAddr := initStampWire(t, node, authority, payer, reference.pub)
	resp := node.call(t, "sendTransaction", []interface{}{wire})
	if resp.Error != nil {
		t.Fatalf("sendTransaction error: %v", resp.Error)
	}
	signature, ok := resp.Result.(string)
	if !ok || signature == "" {
		t.Fatalf("result = %v, want signature string", resp.Result)
	}

	// The stamp account is now queryable.
	resp = node.call(t, "getStampAccount", []interface{}{stampAddr.String()})
	if resp.Error != nil {
		t.Fatalf("getStampAccount error: %v", resp.Error)
	}
	result := resp.Result.(map[string]interface{})
	value := result["value"].(map[string]interface{})
	if value["initialized"] != true {
		t.Errorf("initialized = %v, want true", value["initialized"])
	}
	if value["owner"] != node.programID.String() {
		t.Errorf("owner = %v, want %s", value["owner"], node.programID)
	}

	// The slot advanced and the transaction is journaled.
	resp = node.call(t, "getSlot", nil)
	if got := uint64(resp.Result.(float64)); got != 1 {
		t.Errorf("slot = %d, want 1", got)
	}
	resp = node.call(t, "getTransaction", []interface{}{signature})
	if resp.Error != nil {
		t.Fatalf("getTransaction error: %v", resp.Error)
	}
	status := resp.Result.(map[string]interface{})
	if status["ok"] != true {
		t.Errorf("status = %v, want ok", status)
	}
}

func TestSendTransactionDuplicate(t *testing.T) {
	node := newTestNode(t)

	authority := newKeypair(t)
	payer := newKeypair(t)
	reference := newKeypair(t)
	node.fund(t, payer.pub, 10_000_000)

	wire, _ := initStampWire(t, node, authority, payer, reference.pub)
	if resp := node.call(t, "sendTransaction", []interface{}{wire}); resp.Error != nil {
		t.Fatalf("first send: %v", resp.Error)
	}

	resp := node.call(t, "sendTransaction", []interface{}{wire})
	if resp.Error == nil || resp.Error.Code != TransactionAlreadyProcessed {
		t.Errorf("duplicate send: error = %v, want code %d", resp.Error, TransactionAlreadyProcessed)
	}
}

func TestSendTransactionExecutionFailure(t *testing.T) {
	node := newTestNode(t)

	authority := newKeypair(t)
	payer := newKeypair(t)
	reference := newKeypair(t)
	// Unfunded payer: allocation of the stamp account must fail.

	wire, stampAddr := initStampWire(t, node, authority, payer, reference.pub)
	resp := node.call(t, "sendTransaction", []interface{}{wire})
	if resp.Error == nil || resp.Error.Code != SendTransactionFailure {
		t.Fatalf("error = %v, want code %d", resp.Error, SendTransactionFailure)
	}

	// Nothing was committed.
	getResp := node.call(t, "getStampAccount", []interface{}{stampAddr.String()})
	if getResp.Error != nil {
		t.Fatalf("getStampAccount error: %v", getResp.Error)
	}
	result := getResp.Result.(map[string]interface{})
	if result["value"] != nil {
		t.Errorf("stamp account = %v, want null", result["value"])
	}
	if slot := node.store.Slot(); slot != 0 {
		t.Errorf("slot = %d, want 0", slot)
	}
}

func TestSendTransactionMalformed(t *testing.T) {
	node := newTestNode(t)

	resp := node.call(t, "sendTransaction", []interface{}{"not-base64!!"})
	if resp.Error == nil || resp.Error.Code != InvalidParams {
		t.Errorf("error = %v, want code %d", resp.Error, InvalidParams)
	}

	garbage := base64.StdEncoding.EncodeToString([]byte{1, 2, 3})
	resp = node.call(t, "sendTransaction", []interface{}{garbage})
	if resp.Error == nil || resp.Error.Code != InvalidParams {
		t.Errorf("garbage payload: error = %v, want code %d", resp.Error, InvalidParams)
	}
}

func TestBatchRequest(t *testing.T) {
	node := newTestNode(t)

	body := []byte(`[
		{"jsonrpc":"2.0","id":1,"method":"getHealth"},
		{"jsonrpc":"2.0","id":2,"method":"getSlot"}
	]`)
	resp, err := http.Post(node.http.URL, "application/json", bytes.NewReader(body))
	if err != nil {
		t.Fatalf("post: %v", err)
	}
	defer resp.Body.Close()

	var responses []Response
	if err := json.NewDecoder(resp.Body).Decode(&responses); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(responses) != 2 {
		t.Fatalf("got %d responses, want 2", len(responses))
	}
	if responses[0].Result != "ok" {
		t.Errorf("getHealth result = %v", responses[0].Result)
	}
}
