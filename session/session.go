// Package session holds per-agent identity state against the avatar platform
// and exposes the identity-scoped operations: register, authenticate, and
// wallet creation. A Session is exclusively owned by one workflow actor and
// torn down implicitly at process exit.
package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"

	"github.com/BaSui01/a2aflow/internal/remoteerr"
	"github.com/BaSui01/a2aflow/transport"
)

// Wallet provider constants for the Solana asset family.
const (
	// SolanaProviderType is the numeric wallet provider identifier.
	SolanaProviderType = 3
	// SolanaProviderName is the provider key used in wallet listings.
	SolanaProviderName = "SolanaOASIS"
	// walletStorageProvider stores wallet metadata locally on the platform side.
	walletStorageProvider = "LocalFileOASIS"
)

// Session is the mutable identity state of one workflow actor. agentID,
// token, and walletAddress are empty until the corresponding operation
// succeeds.
type Session struct {
	actor  string
	client *transport.Client
	logger *zap.Logger

	agentID       string
	token         string
	walletAddress string

	// providerWallets is the wallet listing embedded in the authenticate
	// response, keyed by provider name. Used to verify the admin funding
	// wallet without an extra call.
	providerWallets map[string][]Wallet
}

// Wallet is one wallet entry as reported by the platform.
type Wallet struct {
	WalletAddress string `json:"walletAddress"`
	PublicKey     string `json:"publicKey"`
	Name          string `json:"name"`
	IsDefault     bool   `json:"isDefaultWallet"`
}

// Address returns the wallet's address, falling back to the public key. The
// platform populates one or the other depending on the endpoint.
func (w Wallet) Address() string {
	if w.WalletAddress != "" {
		return w.WalletAddress
	}
	return w.PublicKey
}

// New creates a Session for the named workflow actor.
func New(actor string, client *transport.Client, logger *zap.Logger) *Session {
	return &Session{
		actor:  actor,
		client: client,
		logger: logger.With(zap.String("component", "session"), zap.String("actor", actor)),
	}
}

// Actor returns the workflow actor owning this session.
func (s *Session) Actor() string { return s.actor }

// AgentID returns the identifier assigned by the identity service, or "".
func (s *Session) AgentID() string { return s.agentID }

// Token returns the bearer token, or "" before authentication.
func (s *Session) Token() string { return s.token }

// WalletAddress returns the wallet address, or "" before wallet creation.
func (s *Session) WalletAddress() string { return s.walletAddress }

// Authenticated reports whether the session holds a bearer token.
func (s *Session) Authenticated() bool { return s.token != "" }

type registerRequest struct {
	Title           string `json:"title"`
	FirstName       string `json:"firstName"`
	LastName        string `json:"lastName"`
	Email           string `json:"email"`
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirmPassword"`
	AvatarType      string `json:"avatarType"`
	AcceptTerms     bool   `json:"acceptTerms"`
}

type identityResult struct {
	ID       string `json:"id"`
	AvatarID string `json:"avatarId"`
	Username string `json:"username"`
	JwtToken string `json:"jwtToken"`
	Token    string `json:"token"`
	Avatar   struct {
		ID string `json:"id"`
	} `json:"avatar"`
	ProviderWallets map[string]json.RawMessage `json:"providerWallets"`
}

func (r identityResult) agentID() string {
	switch {
	case r.ID != "":
		return r.ID
	case r.AvatarID != "":
		return r.AvatarID
	default:
		return r.Avatar.ID
	}
}

// The token arrives under jwtToken on some deployments and token on others.
// Both are accepted; the ambiguity is tolerated, not erased.
func (r identityResult) bearerToken() string {
	if r.JwtToken != "" {
		return r.JwtToken
	}
	return r.Token
}

// Register creates the agent avatar. A "username already exists" rejection
// returns ErrAlreadyRegistered, which callers treat as non-fatal and follow
// with Authenticate using the same credential.
func (s *Session) Register(ctx context.Context, cred Credential, profile Profile) (string, error) {
	req := registerRequest{
		Title:           profile.FirstName + " " + profile.LastName,
		FirstName:       profile.FirstName,
		LastName:        profile.LastName,
		Email:           cred.Email,
		Username:        cred.Username,
		Password:        cred.Password,
		ConfirmPassword: cred.Password,
		AvatarType:      profile.AvatarType,
		AcceptTerms:     true,
	}

	env, err := s.client.Call(ctx, http.MethodPost, "/api/avatar/register", req,
		transport.WithOperation("avatar.register"),
	)
	if err != nil {
		if kind := classifyTransport(err); kind == remoteerr.KindAlreadyExists {
			s.logger.Info("avatar already registered", zap.String("username", cred.Username))
			return "", ErrAlreadyRegistered
		}
		return "", fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	if env.IsError {
		if remoteerr.Classify(env.Message) == remoteerr.KindAlreadyExists {
			s.logger.Info("avatar already registered", zap.String("username", cred.Username))
			return "", ErrAlreadyRegistered
		}
		return "", fmt.Errorf("%w: %s", ErrRegistrationFailed, env.Message)
	}

	var res identityResult
	if err := env.Decode(&res); err != nil {
		return "", fmt.Errorf("%w: %v", ErrRegistrationFailed, err)
	}

	s.agentID = res.agentID()
	s.logger.Info("avatar registered",
		zap.String("username", cred.Username),
		zap.String("agent_id", s.agentID),
	)
	return s.agentID, nil
}

// Authenticate obtains the bearer token for the credential. Hard failure:
// the caller aborts the run, no retry happens inside the session.
func (s *Session) Authenticate(ctx context.Context, cred Credential) (string, error) {
	req := map[string]string{
		"username": cred.Username,
		"password": cred.Password,
	}

	env, err := s.client.Call(ctx, http.MethodPost, "/api/avatar/authenticate", req,
		transport.WithOperation("avatar.authenticate"),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}
	if env.IsError {
		return "", fmt.Errorf("%w: %s", ErrAuthenticationFailed, env.Message)
	}

	var res identityResult
	if err := env.Decode(&res); err != nil {
		return "", fmt.Errorf("%w: %v", ErrAuthenticationFailed, err)
	}

	token := res.bearerToken()
	if token == "" {
		return "", fmt.Errorf("%w: response carried no token", ErrAuthenticationFailed)
	}

	s.token = token
	if id := res.agentID(); id != "" {
		s.agentID = id
	}
	s.providerWallets = decodeProviderWallets(res.ProviderWallets)

	fields := []zap.Field{
		zap.String("username", cred.Username),
		zap.String("agent_id", s.agentID),
	}
	if exp, err := s.tokenExpiry(); err == nil {
		fields = append(fields, zap.Time("token_expires", exp))
	}
	s.logger.Info("authenticated", fields...)

	return token, nil
}

// CreateWallet creates a wallet for the authenticated avatar. When the
// creation response omits the address, one fallback read of the wallet
// listing is attempted before the condition is treated as fatal.
func (s *Session) CreateWallet(ctx context.Context, providerType int, generateKeyPair bool) (string, error) {
	if !s.Authenticated() || s.agentID == "" {
		return "", ErrNotAuthenticated
	}

	req := map[string]any{
		"name":               s.actor + " wallet",
		"description":        "Primary wallet for " + s.actor,
		"walletProviderType": providerType,
		"generateKeyPair":    generateKeyPair,
		"isDefaultWallet":    false,
	}

	path := fmt.Sprintf("/api/wallet/avatar/%s/create-wallet", s.agentID)
	env, err := s.client.Call(ctx, http.MethodPost, path, req,
		transport.WithBearer(s.token),
		transport.WithOperation("wallet.create"),
		transport.WithQuery("providerTypeToLoadSave", walletStorageProvider),
	)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrWalletCreationFailed, err)
	}
	if env.IsError {
		return "", fmt.Errorf("%w: %s", ErrWalletCreationFailed, env.Message)
	}

	var res struct {
		Wallet
	}
	if err := env.Decode(&res); err != nil {
		return "", fmt.Errorf("%w: %v", ErrWalletCreationFailed, err)
	}

	if addr := res.Address(); addr != "" {
		s.walletAddress = addr
		s.logger.Info("wallet created", zap.String("wallet", addr))
		return addr, nil
	}

	// Some deployments return the wallet asynchronously; read it back once.
	s.logger.Warn("wallet creation returned no address, falling back to wallet listing")
	wallets, err := s.ListWallets(ctx, SolanaProviderName)
	if err != nil {
		return "", fmt.Errorf("%w: fallback listing: %v", ErrWalletCreationFailed, err)
	}
	if len(wallets) == 0 {
		return "", fmt.Errorf("%w: no wallet address after fallback listing", ErrWalletCreationFailed)
	}

	s.walletAddress = wallets[0].Address()
	s.logger.Info("wallet resolved from listing", zap.String("wallet", s.walletAddress))
	return s.walletAddress, nil
}

// ListWallets fetches the avatar's wallets for a provider.
func (s *Session) ListWallets(ctx context.Context, providerName string) ([]Wallet, error) {
	if !s.Authenticated() || s.agentID == "" {
		return nil, ErrNotAuthenticated
	}

	path := fmt.Sprintf("/api/wallet/avatar/%s/wallets", s.agentID)
	env, err := s.client.Call(ctx, http.MethodGet, path, nil,
		transport.WithBearer(s.token),
		transport.WithOperation("wallet.list"),
		transport.WithQuery("providerType", providerName),
	)
	if err != nil {
		return nil, err
	}
	if env.IsError {
		return nil, fmt.Errorf("wallet listing rejected: %s", env.Message)
	}

	// Result maps provider name to a wallet list, itself in either a bare
	// array or a {"$values": [...]} wrapper.
	var byProvider map[string]json.RawMessage
	if err := env.Decode(&byProvider); err != nil {
		return nil, err
	}

	raw, ok := byProvider[providerName]
	if !ok {
		return nil, nil
	}
	var wallets []Wallet
	if err := transport.UnmarshalArray(raw, &wallets); err != nil {
		return nil, err
	}
	return wallets, nil
}

// ProviderWallets returns wallets for a provider from the authenticate
// response, if any were embedded there.
func (s *Session) ProviderWallets(providerName string) []Wallet {
	return s.providerWallets[providerName]
}

// HasWallet reports whether the authenticate response listed the given
// address for the provider. Used to verify the configured admin funding
// wallet actually belongs to the admin identity.
func (s *Session) HasWallet(providerName, address string) bool {
	for _, w := range s.providerWallets[providerName] {
		if w.Address() == address {
			return true
		}
	}
	return false
}

// UseWallet assigns an externally known wallet address to the session. The
// admin actor funds from a pre-provisioned wallet rather than creating one.
func (s *Session) UseWallet(address string) {
	s.walletAddress = address
}

// tokenExpiry parses the bearer token claims without verifying the signature;
// the token is issued by the remote service and only inspected for logging.
func (s *Session) tokenExpiry() (time.Time, error) {
	if s.token == "" {
		return time.Time{}, ErrNotAuthenticated
	}
	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(s.token, claims); err != nil {
		return time.Time{}, err
	}
	exp, err := claims.GetExpirationTime()
	if err != nil || exp == nil {
		return time.Time{}, errors.New("session: token has no expiry claim")
	}
	return exp.Time, nil
}

func decodeProviderWallets(raw map[string]json.RawMessage) map[string][]Wallet {
	if len(raw) == 0 {
		return nil
	}
	out := make(map[string][]Wallet, len(raw))
	for provider, data := range raw {
		var wallets []Wallet
		if err := transport.UnmarshalArray(data, &wallets); err != nil {
			continue
		}
		out[provider] = wallets
	}
	return out
}

// classifyTransport classifies the remote message attached to a transport
// error. Diagnostic only: errors keep propagating regardless of the class.
func classifyTransport(err error) remoteerr.Kind {
	var te *transport.Error
	if errors.As(err, &te) {
		if te.Message != "" {
			return remoteerr.Classify(te.Message)
		}
		return remoteerr.Classify(te.Body)
	}
	return remoteerr.KindUnknown
}
