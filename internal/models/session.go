package models

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/golang-jwt/jwt/v5"

	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
)

// SessionClaims are embedded in wallet session tokens.
type SessionClaims struct {
	Address string `json:"address"`
	jwt.RegisteredClaims
}

// Challenge is the message a wallet signs to open a session.
type Challenge struct {
	Address   common.Address
	Nonce     string
	Message   string
	ExpiresAt time.Time
}

// Session is the connected identity handed explicitly to the gateway and the
// uploader. Signer is nil for read-only use.
type Session struct {
	ID        string
	Address   common.Address
	Signer    wallet.Signer
	ExpiresAt time.Time
}

// IssuedSession is returned after a successful connect.
type IssuedSession struct {
	Token     string
	Address   common.Address
	ExpiresAt time.Time
}
