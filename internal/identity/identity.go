// Package identity derives deterministic backend credentials from an
// external chat identity and a gateway secret.
//
// Every chat user maps 1:1 to a backend account whose name is a fixed
// prefix plus the stable chat identity, and whose password is an HMAC of
// the identity keyed by the gateway secret. Nothing is stored: the same
// inputs always reproduce the same credentials, so rotating the secret is
// the only key rotation the gateway has — it invalidates every derivable
// password at once.
package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
)

// ErrSecretRequired is returned when a Mapper is constructed with an empty
// secret. An empty secret would silently produce weak, guessable
// passwords, so this is fatal at startup.
var ErrSecretRequired = errors.New("identity: derivation secret must not be empty")

// passwordHexLen is the number of hex digits kept from the HMAC digest.
// 32 hex chars (128 bits) is far beyond any MUD password policy.
const passwordHexLen = 32

// Credentials is a derived backend account name and password pair.
type Credentials struct {
	AccountName string
	Password    string
}

// Mapper derives backend credentials. It is stateless and safe for
// concurrent use.
type Mapper struct {
	prefix string
	secret []byte
}

// NewMapper creates a Mapper. The secret must be non-empty.
func NewMapper(prefix, secret string) (*Mapper, error) {
	if secret == "" {
		return nil, ErrSecretRequired
	}
	return &Mapper{prefix: prefix, secret: []byte(secret)}, nil
}

// AccountName returns the backend account name for an external identity.
func (m *Mapper) AccountName(identity string) string {
	return m.prefix + identity
}

// Password returns the backend password for an external identity. The
// result is deterministic and printable: "pw_" plus 32 hex digits.
func (m *Mapper) Password(identity string) string {
	mac := hmac.New(sha256.New, m.secret)
	mac.Write([]byte(identity))
	return "pw_" + hex.EncodeToString(mac.Sum(nil))[:passwordHexLen]
}

// Derive returns both credentials for an external identity.
func (m *Mapper) Derive(identity string) Credentials {
	return Credentials{
		AccountName: m.AccountName(identity),
		Password:    m.Password(identity),
	}
}
