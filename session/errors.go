package session

import "errors"

// Identity lifecycle errors.
var (
	// ErrAlreadyRegistered indicates the username already exists. This is the
	// one non-fatal registration outcome: provisioning is retried across runs
	// against a persistent identity store, so callers proceed to authenticate
	// with the same credential.
	ErrAlreadyRegistered = errors.New("session: username already exists")
	// ErrRegistrationFailed indicates the remote rejected the registration.
	ErrRegistrationFailed = errors.New("session: registration failed")
	// ErrAuthenticationFailed indicates the credential was rejected or the
	// response carried no token.
	ErrAuthenticationFailed = errors.New("session: authentication failed")
	// ErrWalletCreationFailed indicates the remote rejected wallet creation
	// and the fallback wallet listing found nothing either.
	ErrWalletCreationFailed = errors.New("session: wallet creation failed")
)

// Precondition errors.
var (
	// ErrNotAuthenticated indicates an operation requiring a bearer token was
	// invoked before a successful Authenticate.
	ErrNotAuthenticated = errors.New("session: not authenticated")
	// ErrNoWallet indicates an operation requiring a wallet address was
	// invoked before a successful CreateWallet.
	ErrNoWallet = errors.New("session: no wallet address")
)
