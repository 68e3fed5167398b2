package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/kyc-attestation-api/internal/dto"
	"github.com/noah-isme/kyc-attestation-api/internal/models"
	appErrors "github.com/noah-isme/kyc-attestation-api/pkg/errors"
	"github.com/noah-isme/kyc-attestation-api/pkg/wallet"
)

// SessionStore keeps login challenges and revoked session ids.
type SessionStore interface {
	SaveChallenge(ctx context.Context, address, message string, ttl time.Duration) error
	ConsumeChallenge(ctx context.Context, address string) (string, error)
	Revoke(ctx context.Context, sessionID string, ttl time.Duration) error
	IsRevoked(ctx context.Context, sessionID string) (bool, error)
}

// SessionConfig defines configuration for wallet sessions.
type SessionConfig struct {
	Secret          string
	Expiration      time.Duration
	ChallengeTTL    time.Duration
	Issuer          string
	WalletProjectID string
}

// SessionService issues sessions to wallets that prove control of an address
// by signing a one-time challenge.
type SessionService struct {
	store     SessionStore
	signers   wallet.Provider
	validator *validator.Validate
	logger    *zap.Logger
	config    SessionConfig
	now       func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(store SessionStore, signers wallet.Provider, validate *validator.Validate, logger *zap.Logger, config SessionConfig) *SessionService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Expiration <= 0 {
		config.Expiration = 12 * time.Hour
	}
	if config.ChallengeTTL <= 0 {
		config.ChallengeTTL = 5 * time.Minute
	}
	return &SessionService{store: store, signers: signers, validator: validate, logger: logger, config: config, now: time.Now}
}

func challengeMessage(address common.Address, nonce string, expiresAt time.Time) string {
	return fmt.Sprintf("Sign in to the KYC attestation dashboard\n\nAddress: %s\nNonce: %s\nExpires: %s",
		address.Hex(), nonce, expiresAt.Format(time.RFC3339))
}

// Challenge creates the message the wallet must sign, replacing any earlier one.
func (s *SessionService) Challenge(ctx context.Context, req dto.ChallengeRequest) (*dto.ChallengeResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid challenge payload")
	}
	address := common.HexToAddress(req.Address)
	challenge := models.Challenge{
		Address:   address,
		Nonce:     uuid.NewString(),
		ExpiresAt: s.now().UTC().Add(s.config.ChallengeTTL),
	}
	challenge.Message = challengeMessage(address, challenge.Nonce, challenge.ExpiresAt)

	if err := s.store.SaveChallenge(ctx, storeKey(address), challenge.Message, s.config.ChallengeTTL); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store challenge")
	}
	return &dto.ChallengeResponse{
		Address:         address.Hex(),
		Message:         challenge.Message,
		ExpiresAt:       challenge.ExpiresAt,
		WalletProjectID: s.config.WalletProjectID,
	}, nil
}

// Connect verifies the signed challenge and issues a session token.
func (s *SessionService) Connect(ctx context.Context, req dto.ConnectRequest) (*models.IssuedSession, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid connect payload")
	}
	address := common.HexToAddress(req.Address)

	message, err := s.store.ConsumeChallenge(ctx, storeKey(address))
	if err != nil {
		if errors.Is(err, appErrors.ErrNotFound) {
			return nil, appErrors.Clone(appErrors.ErrUnauthorized, "challenge expired or never issued")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load challenge")
	}

	sig, err := hexutil.Decode(req.Signature)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "signature is not valid hex")
	}
	signer, err := wallet.RecoverAddress([]byte(message), sig)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "signature could not be verified")
	}
	if signer != address {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "signature does not match address")
	}

	token, expiresAt, err := s.issueToken(address)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create session token")
	}
	s.logger.Info("wallet connected", zap.String("address", address.Hex()))
	return &models.IssuedSession{Token: token, Address: address, ExpiresAt: expiresAt}, nil
}

// Authenticate resolves a session token into the connected identity. When no
// signer holds the account the session is read-only.
func (s *SessionService) Authenticate(ctx context.Context, tokenString string) (*models.Session, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	revoked, err := s.store.IsRevoked(ctx, claims.ID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check session")
	}
	if revoked {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "session disconnected")
	}

	session := &models.Session{
		ID:      claims.ID,
		Address: common.HexToAddress(claims.Address),
	}
	if claims.ExpiresAt != nil {
		session.ExpiresAt = claims.ExpiresAt.Time
	}
	if s.signers != nil {
		signer, err := s.signers.SignerFor(ctx, session.Address)
		switch {
		case err == nil:
			session.Signer = signer
		case errors.Is(err, wallet.ErrNoSigner):
		default:
			s.logger.Warn("signer lookup failed", zap.String("address", session.Address.Hex()), zap.Error(err))
		}
	}
	return session, nil
}

// Disconnect revokes the session until its token would have expired.
func (s *SessionService) Disconnect(ctx context.Context, session *models.Session) error {
	if session == nil {
		return appErrors.ErrUnauthorized
	}
	ttl := session.ExpiresAt.Sub(s.now())
	if err := s.store.Revoke(ctx, session.ID, ttl); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to disconnect session")
	}
	s.logger.Info("wallet disconnected", zap.String("address", session.Address.Hex()))
	return nil
}

// ValidateToken parses and validates a session token returning the claims.
func (s *SessionService) ValidateToken(tokenString string) (*models.SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.SessionClaims)
	if !ok || !token.Valid || !common.IsHexAddress(claims.Address) || claims.ID == "" {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *SessionService) issueToken(address common.Address) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.Expiration)
	claims := &models.SessionClaims{
		Address: address.Hex(),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.config.Issuer,
			Subject:   address.Hex(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

func storeKey(address common.Address) string {
	return strings.ToLower(address.Hex())
}
