// Package wallet holds the agent's ed25519 signing keypair. The secret is
// loaded once at startup and never leaves process memory: no Stringer, no
// logging of key material, no accessor for the private key.
package wallet

import (
	"bytes"
	"crypto/ed25519"
	"encoding/json"
	"fmt"
	"os"

	"github.com/mr-tron/base58"

	"shiftbot/internal/config"
	"shiftbot/internal/fault"
	"shiftbot/internal/logging"
)

// SigningError reports malformed secret material.
type SigningError struct {
	Reason string
}

func (e *SigningError) Error() string {
	return "signing: " + e.Reason
}

// Wallet is an immutable ed25519 keypair. Safe for concurrent reads; the
// orchestration loop is its only caller within a session.
type Wallet struct {
	priv    ed25519.PrivateKey
	address string
}

// Load builds the wallet from configuration. Precedence: inline base58
// secret (config or SHIFTBOT_WALLET_SECRET), then the keypair file (a JSON
// array of 64 byte values, the standard solana-keygen layout). Neither
// present is a fatal startup error.
func Load(cfg config.WalletConfig) (*Wallet, error) {
	if cfg.Secret != "" {
		raw, err := base58.Decode(cfg.Secret)
		if err != nil {
			return nil, &SigningError{Reason: fmt.Sprintf("secret is not valid base58: %v", err)}
		}
		return New(raw)
	}

	path := config.ExpandHome(cfg.KeypairPath)
	if path == "" {
		return nil, fault.Configf("no wallet secret and no keypair path configured")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fault.Configf("no wallet secret set and keypair file %s does not exist", path)
		}
		return nil, fault.Configf("reading keypair file %s: %v", path, err)
	}

	var ints []int
	if err := json.Unmarshal(data, &ints); err != nil {
		return nil, &SigningError{Reason: fmt.Sprintf("keypair file %s is not a JSON byte array: %v", path, err)}
	}
	raw := make([]byte, len(ints))
	for i, v := range ints {
		if v < 0 || v > 255 {
			return nil, &SigningError{Reason: fmt.Sprintf("keypair file %s holds value %d outside byte range", path, v)}
		}
		raw[i] = byte(v)
	}

	return New(raw)
}

// New builds a wallet from raw secret material: 32 bytes are treated as a
// seed, 64 bytes as a full secret key (seed followed by public key).
func New(secret []byte) (*Wallet, error) {
	var priv ed25519.PrivateKey

	switch len(secret) {
	case ed25519.SeedSize:
		priv = ed25519.NewKeyFromSeed(secret)
	case ed25519.PrivateKeySize:
		derived := ed25519.NewKeyFromSeed(secret[:ed25519.SeedSize])
		if !bytes.Equal(derived[ed25519.SeedSize:], secret[ed25519.SeedSize:]) {
			return nil, &SigningError{Reason: "secret key public half does not match its seed"}
		}
		priv = derived
	default:
		return nil, &SigningError{Reason: fmt.Sprintf("secret must be 32 or 64 bytes, got %d", len(secret))}
	}

	w := &Wallet{
		priv:    priv,
		address: base58.Encode(priv.Public().(ed25519.PublicKey)),
	}
	logging.L("wallet").Infow("wallet loaded", "address", w.address)
	return w, nil
}

// Address returns the base58-encoded public key.
func (w *Wallet) Address() string {
	return w.address
}

// SignBase58 signs payload with the wallet key and returns the signature
// base58-encoded. Deterministic for a given (key, payload) pair.
func (w *Wallet) SignBase58(payload []byte) (string, error) {
	if len(w.priv) != ed25519.PrivateKeySize {
		return "", &SigningError{Reason: "wallet holds no usable secret key"}
	}
	sig := ed25519.Sign(w.priv, payload)
	return base58.Encode(sig), nil
}

// PublicKey returns a copy of the raw public key, for signature checks.
func (w *Wallet) PublicKey() ed25519.PublicKey {
	pub := w.priv.Public().(ed25519.PublicKey)
	out := make(ed25519.PublicKey, len(pub))
	copy(out, pub)
	return out
}

// EncodeBase58 encodes arbitrary bytes. Pure utility, exposed through the
// wallet tool surface for convenience; empty input encodes to "".
func EncodeBase58(payload []byte) string {
	return base58.Encode(payload)
}

// DecodeBase58 decodes s, treating the empty string as empty bytes so the
// round trip holds for every input.
func DecodeBase58(s string) ([]byte, error) {
	if s == "" {
		return []byte{}, nil
	}
	return base58.Decode(s)
}
