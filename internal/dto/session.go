package dto

import "time"

// ChallengeRequest asks for a sign-in message for a wallet.
type ChallengeRequest struct {
	Address string `json:"address" validate:"required,eth_addr"`
}

// ChallengeResponse is the message the wallet must sign.
type ChallengeResponse struct {
	Address         string    `json:"address"`
	Message         string    `json:"message"`
	ExpiresAt       time.Time `json:"expiresAt"`
	WalletProjectID string    `json:"walletProjectId"`
}

// ConnectRequest presents the signed challenge.
type ConnectRequest struct {
	Address   string `json:"address" validate:"required,eth_addr"`
	Signature string `json:"signature" validate:"required,startswith=0x"`
}

// SessionResponse carries the issued session token.
type SessionResponse struct {
	Token     string    `json:"token"`
	Address   string    `json:"address"`
	ExpiresAt time.Time `json:"expiresAt"`
}
