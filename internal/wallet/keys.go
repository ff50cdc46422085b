package wallet

import (
	"crypto/ed25519" // Solana keys are ed25519
	"crypto/rand"    // Secure randomness for key generation

	"github.com/mr-tron/base58" // Solana's address encoding
)

// Keypair is a freshly generated Solana deposit keypair. The public key is
// the deposit address shown to the buyer; the private key is kept so the
// funds can later be swept to the treasury wallet.
type Keypair struct {
	PublicKey  string // Base58-encoded public key (the deposit address)
	PrivateKey string // Base58-encoded 64-byte private key
}

// Generate creates a new deposit keypair.
func Generate() (*Keypair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &Keypair{
		PublicKey:  base58.Encode(pub),
		PrivateKey: base58.Encode(priv),
	}, nil
}

// ValidAddress reports whether s decodes to a 32-byte Solana public key.
func ValidAddress(s string) bool {
	b, err := base58.Decode(s)
	return err == nil && len(b) == ed25519.PublicKeySize
}
