package core

// Key management CLI convenience: BIP-39 mnemonic generation/import backing
// a single Ed25519 keypair. No HD derivation — ed25519 has no standardized
// unhardened child derivation, and the chain only ever needs one identity
// per node, so the mnemonic's seed is truncated directly to an Ed25519 seed
// rather than layering SLIP-0010 on top for a feature nothing here uses.

import (
	"crypto/ed25519"
	"errors"
	"fmt"

	bip39 "github.com/tyler-smith/go-bip39"
)

// NewRandomMnemonic generates entropyBits (128 or 256) of randomness and
// returns its BIP-39 mnemonic. The caller must persist or display it; it is
// not retained.
func NewRandomMnemonic(entropyBits int) (string, error) {
	if entropyBits != 128 && entropyBits != 256 {
		return "", fmt.Errorf("core: unsupported entropy size %d", entropyBits)
	}
	entropy, err := bip39.NewEntropy(entropyBits)
	if err != nil {
		return "", fmt.Errorf("core: generate entropy: %w", err)
	}
	mnemonic, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return "", fmt.Errorf("core: derive mnemonic: %w", err)
	}
	return mnemonic, nil
}

// KeypairFromMnemonic derives a deterministic Ed25519 keypair from a BIP-39
// mnemonic and optional passphrase: the mnemonic's 64-byte PBKDF2 seed is
// truncated to the 32 bytes ed25519 needs.
func KeypairFromMnemonic(mnemonic, passphrase string) (Keypair, error) {
	if !bip39.IsMnemonicValid(mnemonic) {
		return Keypair{}, errors.New("core: invalid mnemonic checksum")
	}
	seed := bip39.NewSeed(mnemonic, passphrase)
	return NewKeypairFromSeed(seed[:ed25519.SeedSize])
}

// NewRandomKeypair generates a fresh mnemonic and the keypair it derives,
// for `synnergy keygen`'s default path.
func NewRandomKeypair() (Keypair, string, error) {
	mnemonic, err := NewRandomMnemonic(256)
	if err != nil {
		return Keypair{}, "", err
	}
	kp, err := KeypairFromMnemonic(mnemonic, "")
	if err != nil {
		return Keypair{}, "", err
	}
	return kp, mnemonic, nil
}
