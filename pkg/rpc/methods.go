package rpc

import (
	"encoding/json"
	"errors"

	"github.com/GotokHQ/stamp/internal/types"
	"github.com/GotokHQ/stamp/pkg/accounts"
	"github.com/GotokHQ/stamp/pkg/journal"
	"github.com/GotokHQ/stamp/pkg/runtime"
	"github.com/GotokHQ/stamp/pkg/stamp"
)

// Version information.
const (
	StampCore  = "stampd-1.0.0"
	FeatureSet = 0
)

// Account Methods

// getAccountInfo retrieves account information.
func (s *Server) getAccountInfo(params json.RawMessage) (interface{}, *RPCError) {
	// Parse params: [pubkey, config?]
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}

	if len(args) < 1 {
		return nil, InvalidParamsError("missing pubkey parameter")
	}

	var pubkeyStr string
	if err := json.Unmarshal(args[0], &pubkeyStr); err != nil {
		return nil, InvalidParamsError("invalid pubkey")
	}

	pubkey, err := types.PubkeyFromBase58(pubkeyStr)
	if err != nil {
		return nil, InvalidParamsError("invalid pubkey format")
	}

	var config AccountInfoConfig
	if len(args) > 1 {
		if err := json.Unmarshal(args[1], &config); err != nil {
			return nil, InvalidParamsError("invalid config")
		}
	}
	if config.Encoding == "" {
		config.Encoding = EncodingBase64
	}

	currentSlot := s.store.Slot()

	account, err := s.store.GetAccount(pubkey)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return ResponseWithContext{
				Context: Context{Slot: currentSlot},
				Value:   nil,
			}, nil
		}
		return nil, InternalServerErrorf("failed to get account: %v", err)
	}

	data, encErr := EncodeAccountData(account.Data, config.Encoding)
	if encErr != nil {
		return nil, InternalServerErrorf("failed to encode account data: %v", encErr)
	}

	return ResponseWithContext{
		Context: Context{Slot: currentSlot},
		Value: AccountInfo{
			Lamports:   account.Lamports,
			Owner:      account.Owner.String(),
			Data:       data,
			Executable: account.Executable,
			RentEpoch:  account.RentEpoch,
		},
	}, nil
}

// getBalance retrieves account balance.
func (s *Server) getBalance(params json.RawMessage) (interface{}, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}

	if len(args) < 1 {
		return nil, InvalidParamsError("missing pubkey parameter")
	}

	var pubkeyStr string
	if err := json.Unmarshal(args[0], &pubkeyStr); err != nil {
		return nil, InvalidParamsError("invalid pubkey")
	}

	pubkey, err := types.PubkeyFromBase58(pubkeyStr)
	if err != nil {
		return nil, InvalidParamsError("invalid pubkey format")
	}

	currentSlot := s.store.Slot()

	var lamports uint64
	account, err := s.store.GetAccount(pubkey)
	if err == nil {
		lamports = account.Lamports
	} else if !errors.Is(err, accounts.ErrAccountNotFound) {
		return nil, InternalServerErrorf("failed to get account: %v", err)
	}

	return ResponseWithContext{
		Context: Context{Slot: currentSlot},
		Value:   lamports,
	}, nil
}

// Stamp Methods

// getStampAccount retrieves and decodes a stamp record.
func (s *Server) getStampAccount(params json.RawMessage) (interface{}, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}

	if len(args) < 1 {
		return nil, InvalidParamsError("missing address parameter")
	}

	var addressStr string
	if err := json.Unmarshal(args[0], &addressStr); err != nil {
		return nil, InvalidParamsError("invalid address")
	}

	address, err := types.PubkeyFromBase58(addressStr)
	if err != nil {
		return nil, InvalidParamsError("invalid address format")
	}

	currentSlot := s.store.Slot()

	account, err := s.store.GetAccount(address)
	if err != nil {
		if errors.Is(err, accounts.ErrAccountNotFound) {
			return ResponseWithContext{
				Context: Context{Slot: currentSlot},
				Value:   nil,
			}, nil
		}
		return nil, InternalServerErrorf("failed to get account: %v", err)
	}

	if account.Owner != s.programID {
		return nil, InvalidParamsError("account is not owned by the stamp program")
	}
	record, err := stamp.Unpack(account.Data)
	if err != nil {
		return nil, InternalServerErrorf("failed to decode stamp record: %v", err)
	}

	return ResponseWithContext{
		Context: Context{Slot: currentSlot},
		Value: StampAccount{
			Address:     address.String(),
			Initialized: record.IsInitialized(),
			Lamports:    account.Lamports,
			Owner:       account.Owner.String(),
		},
	}, nil
}

// findStampAddress derives the stamp address for a reference key.
func (s *Server) findStampAddress(params json.RawMessage) (interface{}, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}

	if len(args) < 1 {
		return nil, InvalidParamsError("missing reference parameter")
	}

	var referenceStr string
	if err := json.Unmarshal(args[0], &referenceStr); err != nil {
		return nil, InvalidParamsError("invalid reference")
	}

	reference, err := types.PubkeyFromBase58(referenceStr)
	if err != nil {
		return nil, InvalidParamsError("invalid reference format")
	}

	address, bump, err := stamp.FindStampProgramAddress(s.programID, reference)
	if err != nil {
		return nil, InternalServerErrorf("failed to derive address: %v", err)
	}

	return StampAddress{
		Address: address.String(),
		Bump:    bump,
	}, nil
}

// Transaction Methods

// sendTransaction decodes, executes, and journals a wire transaction.
func (s *Server) sendTransaction(params json.RawMessage) (interface{}, *RPCError) {
	if !s.IsHealthy() {
		return nil, ErrNodeUnhealthy
	}

	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}

	if len(args) < 1 {
		return nil, InvalidParamsError("missing transaction parameter")
	}

	var encoded string
	if err := json.Unmarshal(args[0], &encoded); err != nil {
		return nil, InvalidParamsError("invalid transaction")
	}

	var config SendTransactionConfig
	if len(args) > 1 {
		if err := json.Unmarshal(args[1], &config); err != nil {
			return nil, InvalidParamsError("invalid config")
		}
	}
	if config.Encoding == "" {
		config.Encoding = EncodingBase64
	}

	wire, err := DecodeTransactionData(encoded, config.Encoding)
	if err != nil {
		return nil, InvalidParamsError("invalid transaction encoding")
	}

	tx, err := runtime.DeserializeTransaction(wire)
	if err != nil {
		return nil, InvalidParamsError("invalid transaction format")
	}

	// Reject replays before touching state.
	seen, err := s.journal.Has(tx.ID())
	if err != nil {
		return nil, InternalServerErrorf("journal lookup failed: %v", err)
	}
	if seen {
		return nil, NewRPCError(TransactionAlreadyProcessed, "transaction already processed")
	}

	slot := s.store.Slot() + 1
	res, err := s.executor.Process(tx, slot)
	if err != nil {
		return nil, InternalServerErrorf("execution failed: %v", err)
	}

	entry := &journal.Entry{
		Signature: res.Signature,
		Slot:      slot,
		Ok:        res.Err == nil,
		Logs:      res.Logs,
	}
	if res.Err != nil {
		entry.ErrMsg = res.Err.Error()
		var progErr stamp.Error
		if errors.As(res.Err, &progErr) {
			entry.ErrCode = progErr.Code()
		}
	}
	if err := s.journal.Record(entry); err != nil {
		return nil, InternalServerErrorf("journal write failed: %v", err)
	}

	if res.Err != nil {
		if errors.Is(res.Err, runtime.ErrSignatureVerificationFailed) {
			return nil, NewRPCErrorWithData(TransactionSignatureVerificationFailure,
				"Transaction signature verification failure", res.Err.Error())
		}
		return nil, NewRPCErrorWithData(SendTransactionFailure, res.Err.Error(), res.Logs)
	}

	if err := s.store.SetSlot(slot); err != nil {
		return nil, InternalServerErrorf("slot update failed: %v", err)
	}
	return res.Signature.String(), nil
}

// getTransaction retrieves a journaled transaction status.
func (s *Server) getTransaction(params json.RawMessage) (interface{}, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}

	if len(args) < 1 {
		return nil, InvalidParamsError("missing signature parameter")
	}

	var sigStr string
	if err := json.Unmarshal(args[0], &sigStr); err != nil {
		return nil, InvalidParamsError("invalid signature")
	}

	sig, err := types.SignatureFromBase58(sigStr)
	if err != nil {
		return nil, InvalidParamsError("invalid signature format")
	}

	entry, err := s.journal.Get(sig)
	if err != nil {
		if errors.Is(err, journal.ErrNotFound) {
			return nil, nil
		}
		return nil, InternalServerErrorf("journal lookup failed: %v", err)
	}

	status := TransactionStatus{
		Signature: entry.Signature.String(),
		Slot:      entry.Slot,
		Ok:        entry.Ok,
		ErrMsg:    entry.ErrMsg,
		Logs:      entry.Logs,
	}
	if !entry.Ok && entry.ErrMsg != "" {
		code := entry.ErrCode
		status.ErrCode = &code
	}
	return status, nil
}

// Node Methods

// getSlot returns the latest committed slot.
func (s *Server) getSlot(params json.RawMessage) (interface{}, *RPCError) {
	return s.store.Slot(), nil
}

// getHealth returns the node health status.
func (s *Server) getHealth(params json.RawMessage) (interface{}, *RPCError) {
	if !s.IsHealthy() {
		return nil, ErrNodeUnhealthy
	}
	return "ok", nil
}

// getVersion returns the node version.
func (s *Server) getVersion(params json.RawMessage) (interface{}, *RPCError) {
	return VersionInfo{
		Core:       StampCore,
		FeatureSet: FeatureSet,
	}, nil
}

// getIdentity returns the node identity pubkey.
func (s *Server) getIdentity(params json.RawMessage) (interface{}, *RPCError) {
	return map[string]string{
		"identity": s.identity.String(),
	}, nil
}

// getMinimumBalanceForRentExemption returns the rent-exempt minimum for
// a data size.
func (s *Server) getMinimumBalanceForRentExemption(params json.RawMessage) (interface{}, *RPCError) {
	var args []json.RawMessage
	if err := json.Unmarshal(params, &args); err != nil {
		return nil, InvalidParamsError("invalid params")
	}

	if len(args) < 1 {
		return nil, InvalidParamsError("missing size parameter")
	}

	var size uint64
	if err := json.Unmarshal(args[0], &size); err != nil {
		return nil, InvalidParamsError("invalid size")
	}

	return s.rent.MinimumBalance(size), nil
}
