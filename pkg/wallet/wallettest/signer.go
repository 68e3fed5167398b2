// Package wallettest provides an in-process signer for tests.
package wallettest

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
)

// ErrRejected mimics a user declining the wallet prompt.
var ErrRejected = errors.New("user rejected the request")

// Signer signs with a throwaway key.
type Signer struct {
	key    *ecdsa.PrivateKey
	Reject bool
	Texts  [][]byte
}

// NewSigner generates a fresh key.
func NewSigner() *Signer {
	key, err := crypto.GenerateKey()
	if err != nil {
		panic(err)
	}
	return &Signer{key: key}
}

func (s *Signer) Address() common.Address { return crypto.PubkeyToAddress(s.key.PublicKey) }

func (s *Signer) SignText(_ context.Context, text []byte) ([]byte, error) {
	if s.Reject {
		return nil, ErrRejected
	}
	s.Texts = append(s.Texts, text)
	sig, err := crypto.Sign(accounts.TextHash(text), s.key)
	if err != nil {
		return nil, err
	}
	sig[crypto.RecoveryIDOffset] += 27
	return sig, nil
}

func (s *Signer) SignTx(_ context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if s.Reject {
		return nil, ErrRejected
	}
	return types.SignTx(tx, types.LatestSignerForChainID(chainID), s.key)
}

// Provider hands out registered signers.
type Provider map[common.Address]wallet.Signer

// NewProvider registers the given signers.
func NewProvider(signers ...wallet.Signer) Provider {
	p := Provider{}
	for _, s := range signers {
		p[s.Address()] = s
	}
	return p
}

func (p Provider) SignerFor(_ context.Context, address common.Address) (wallet.Signer, error) {
	s, ok := p[address]
	if !ok {
		return nil, wallet.ErrNoSigner
	}
	return s, nil
}
