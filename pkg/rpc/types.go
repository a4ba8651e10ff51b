// Package rpc provides JSON-RPC 2.0 types for the stamp node API.
package rpc

import (
	"encoding/json"
)

// JSON-RPC 2.0 constants.
const (
	JSONRPCVersion = "2.0"
)

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      interface{}     `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string      `json:"jsonrpc"`
	ID      interface{} `json:"id"`
	Result  interface{} `json:"result,omitempty"`
	Error   *RPCError   `json:"error,omitempty"`
}

// RPCError represents a JSON-RPC 2.0 error.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// Context provides slot context for RPC responses.
type Context struct {
	Slot       uint64 `json:"slot"`
	APIVersion string `json:"apiVersion,omitempty"`
}

// ResponseWithContext wraps a value with context.
type ResponseWithContext struct {
	Context Context     `json:"context"`
	Value   interface{} `json:"value"`
}

// Encoding types for account and transaction data.
type Encoding string

const (
	EncodingBase58     Encoding = "base58"
	EncodingBase64     Encoding = "base64"
	EncodingBase64Zstd Encoding = "base64+zstd"
)

// AccountInfoConfig configures getAccountInfo requests.
type AccountInfoConfig struct {
	Encoding Encoding `json:"encoding,omitempty"`
}

// SendTransactionConfig configures sendTransaction requests.
type SendTransactionConfig struct {
	Encoding Encoding `json:"encoding,omitempty"`
}

// AccountInfo is the RPC view of an account.
type AccountInfo struct {
	Lamports   uint64      `json:"lamports"`
	Owner      string      `json:"owner"`
	Data       interface{} `json:"data"`
	Executable bool        `json:"executable"`
	RentEpoch  uint64      `json:"rentEpoch"`
}

// StampAccount is the RPC view of a stamp record.
type StampAccount struct {
	Address     string `json:"address"`
	Initialized bool   `json:"initialized"`
	Lamports    uint64 `json:"lamports"`
	Owner       string `json:"owner"`
}

// StampAddress is the result of a derivation request.
type StampAddress struct {
	Address string `json:"address"`
	Bump    uint8  `json:"bump"`
}

// TransactionStatus is the RPC view of a journal entry.
type TransactionStatus struct {
	Signature string   `json:"signature"`
	Slot      uint64   `json:"slot"`
	Ok        bool     `json:"ok"`
	ErrCode   *uint32  `json:"errCode,omitempty"`
	ErrMsg    string   `json:"errMsg,omitempty"`
	Logs      []string `json:"logs,omitempty"`
}

// VersionInfo is the getVersion result.
type VersionInfo struct {
	Core       string `json:"stamp-core"`
	FeatureSet uint32 `json:"feature-set"`
}
