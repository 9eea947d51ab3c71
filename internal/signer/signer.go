// Package signer holds the gateway's transaction signing key. The key is kept
// encrypted in a memguard enclave and only decrypted while a transaction is
// being signed.
package signer

import (
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/awnumar/memguard"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrDestroyed is returned when signing with a destroyed key
var ErrDestroyed = errors.New("signing key destroyed")

// KeySigner signs transactions with a secp256k1 key sealed in an enclave.
type KeySigner struct {
	mu      sync.RWMutex
	enclave *memguard.Enclave
	address common.Address
}

// FromHex parses a hex private key, with or without 0x prefix. An empty key
// returns (nil, nil): the gateway then runs without write capability.
func FromHex(raw string) (*KeySigner, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		return nil, nil
	}
	keyBytes, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid private key encoding: %w", err)
	}
	return FromBytes(keyBytes)
}

// FromBytes seals keyBytes into an enclave. keyBytes is wiped.
func FromBytes(keyBytes []byte) (*KeySigner, error) {
	privKey, err := crypto.ToECDSA(keyBytes)
	if err != nil {
		memguard.WipeBytes(keyBytes)
		return nil, fmt.Errorf("invalid private key: %w", err)
	}
	addr := crypto.PubkeyToAddress(privKey.PublicKey)

	return &KeySigner{
		enclave: memguard.NewEnclave(keyBytes),
		address: addr,
	}, nil
}

// Address returns the account the key controls
func (s *KeySigner) Address() common.Address {
	return s.address
}

// SignTx signs tx for chainID using the latest signer rules.
func (s *KeySigner) SignTx(tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.enclave == nil {
		return nil, ErrDestroyed
	}

	buf, err := s.enclave.Open()
	if err != nil {
		return nil, fmt.Errorf("open enclave: %w", err)
	}
	privKey, err := crypto.ToECDSA(buf.Bytes())
	buf.Destroy()
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}

	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), privKey)
	if err != nil {
		return nil, fmt.Errorf("sign transaction: %w", err)
	}
	return signed, nil
}

// Destroy drops the enclave; later SignTx calls fail.
func (s *KeySigner) Destroy() {
	s.mu.Lock()
	s.enclave = nil
	s.mu.Unlock()
}
