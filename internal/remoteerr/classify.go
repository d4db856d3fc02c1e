// Package remoteerr classifies free-text error messages returned by the
// remote A2A platform. The platform reports most failures as plain message
// strings rather than typed codes, so classification is substring matching
// against a fixed allow-list. It is a best-effort diagnostic only: callers
// must always propagate the underlying error regardless of the class.
package remoteerr

import "strings"

// Kind is the heuristic class of a remote error message.
type Kind int

const (
	// KindUnknown means the message matched no known pattern.
	KindUnknown Kind = iota
	// KindAlreadyExists means the entity (usually a username) already exists.
	KindAlreadyExists
	// KindInsufficientFunds means the source wallet balance cannot cover the transfer.
	KindInsufficientFunds
	// KindInvalidCredentials means the username/password pair was rejected.
	KindInvalidCredentials
)

// Allow-list of matched substrings, all lowercase. Extend deliberately;
// every entry widens what downstream code may treat as non-fatal.
var patterns = map[Kind][]string{
	KindAlreadyExists: {
		"already exists",
		"already registered",
		"already taken",
		"duplicate username",
	},
	KindInsufficientFunds: {
		"insufficient funds",
		"insufficient balance",
		"insufficient lamports",
		"not enough sol",
	},
	KindInvalidCredentials: {
		"invalid username or password",
		"invalid credentials",
		"incorrect password",
	},
}

// Classify returns the heuristic kind of a remote error message.
func Classify(message string) Kind {
	m := strings.ToLower(message)
	for kind, subs := range patterns {
		for _, s := range subs {
			if strings.Contains(m, s) {
				return kind
			}
		}
	}
	return KindUnknown
}

func (k Kind) String() string {
	switch k {
	case KindAlreadyExists:
		return "already_exists"
	case KindInsufficientFunds:
		return "insufficient_funds"
	case KindInvalidCredentials:
		return "invalid_credentials"
	default:
		return "unknown"
	}
}
