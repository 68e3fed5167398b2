// Package wallet models the external signing capability of a connected
// account. Key material never enters this process: signatures are produced by
// an external signer (clef or any account_* compatible endpoint).
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/external"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

// ErrNoSigner is returned when no signer holds the requested account.
var ErrNoSigner = errors.New("wallet: no signer available for account")

// Signer signs on behalf of a single account.
type Signer interface {
	Address() common.Address
	// SignText signs an EIP-191 personal message. The recovery id is 27/28.
	SignText(ctx context.Context, text []byte) ([]byte, error)
	SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error)
}

// Provider resolves the signer for an account.
type Provider interface {
	SignerFor(ctx context.Context, address common.Address) (Signer, error)
}

// ExternalProvider resolves accounts held by an external signer endpoint.
type ExternalProvider struct {
	backend *external.ExternalSigner
}

// NewExternalProvider dials the external signer. An empty endpoint yields a
// provider that has no accounts.
func NewExternalProvider(endpoint string) (*ExternalProvider, error) {
	if strings.TrimSpace(endpoint) == "" {
		return &ExternalProvider{}, nil
	}
	backend, err := external.NewExternalSigner(endpoint)
	if err != nil {
		return nil, fmt.Errorf("dial external signer: %w", err)
	}
	return &ExternalProvider{backend: backend}, nil
}

// SignerFor implements Provider.
func (p *ExternalProvider) SignerFor(_ context.Context, address common.Address) (Signer, error) {
	if p == nil || p.backend == nil {
		return nil, ErrNoSigner
	}
	account := accounts.Account{Address: address}
	if !p.backend.Contains(account) {
		return nil, ErrNoSigner
	}
	return &externalSigner{backend: p.backend, account: account}, nil
}

type externalSigner struct {
	backend *external.ExternalSigner
	account accounts.Account
}

func (s *externalSigner) Address() common.Address { return s.account.Address }

func (s *externalSigner) SignText(ctx context.Context, text []byte) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sig, err := s.backend.SignText(s.account, text)
	if err != nil {
		return nil, err
	}
	return normaliseRecoveryID(sig)
}

func (s *externalSigner) SignTx(ctx context.Context, tx *types.Transaction, chainID *big.Int) (*types.Transaction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.backend.SignTx(s.account, tx, chainID)
}

// RecoverAddress returns the account that produced sig over the EIP-191 text.
func RecoverAddress(text, sig []byte) (common.Address, error) {
	if len(sig) != crypto.SignatureLength {
		return common.Address{}, fmt.Errorf("wallet: signature must be %d bytes", crypto.SignatureLength)
	}
	normalised := make([]byte, len(sig))
	copy(normalised, sig)
	if normalised[crypto.RecoveryIDOffset] >= 27 {
		normalised[crypto.RecoveryIDOffset] -= 27
	}
	pub, err := crypto.SigToPub(accounts.TextHash(text), normalised)
	if err != nil {
		return common.Address{}, fmt.Errorf("wallet: recover signer: %w", err)
	}
	return crypto.PubkeyToAddress(*pub), nil
}

func normaliseRecoveryID(sig []byte) ([]byte, error) {
	if len(sig) != crypto.SignatureLength {
		return nil, fmt.Errorf("wallet: unexpected signature length %d", len(sig))
	}
	if sig[crypto.RecoveryIDOffset] < 27 {
		sig[crypto.RecoveryIDOffset] += 27
	}
	return sig, nil
}
