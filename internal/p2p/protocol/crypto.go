package protocol

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/sha3"
)

// EmptyRoot is the transfer root of a channel without active transfers.
const EmptyRoot = "0x0000000000000000000000000000000000000000000000000000000000000000"

// Signer produces signatures over update digests on behalf of one identity.
type Signer interface {
	Identifier() string
	Sign(digest []byte) (string, error)
}

// KeySigner signs with an in-memory ed25519 key. Its identifier is the
// base64 encoded public key.
type KeySigner struct {
	key        ed25519.PrivateKey
	identifier string
}

func NewKeySigner(key ed25519.PrivateKey) (*KeySigner, error) {
	if len(key) != ed25519.PrivateKeySize {
		return nil, errors.New("invalid private key")
	}
	pub := key.Public().(ed25519.PublicKey)
	return &KeySigner{key: key, identifier: base64.StdEncoding.EncodeToString(pub)}, nil
}

// GenerateSigner creates a signer with a fresh random key.
func GenerateSigner() (*KeySigner, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return NewKeySigner(priv)
}

func (s *KeySigner) Identifier() string { return s.identifier }

func (s *KeySigner) Sign(digest []byte) (string, error) {
	return base64.StdEncoding.EncodeToString(ed25519.Sign(s.key, digest)), nil
}

// VerifySignature checks a base64 signature over digest for identifier.
func VerifySignature(identifier string, digest []byte, signature string) error {
	pubRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(identifier))
	if err != nil {
		return fmt.Errorf("invalid identifier: %w", err)
	}
	if len(pubRaw) != ed25519.PublicKeySize {
		return errors.New("invalid identifier size")
	}
	sigRaw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return fmt.Errorf("invalid signature: %w", err)
	}
	if len(sigRaw) != ed25519.SignatureSize {
		return errors.New("invalid signature size")
	}
	if !ed25519.Verify(ed25519.PublicKey(pubRaw), digest, sigRaw) {
		return errors.New("signature verification failed")
	}
	return nil
}

// Keccak256 hashes the concatenation of data.
func Keccak256(data ...[]byte) []byte {
	h := sha3.NewLegacyKeccak256()
	for _, d := range data {
		h.Write(d)
	}
	return h.Sum(nil)
}

func keccakHex(data ...[]byte) string {
	return "0x" + hex.EncodeToString(Keccak256(data...))
}

// DeriveChannelAddress returns the deterministic address of the channel
// between alice and bob on chainID.
func DeriveChannelAddress(alice, bob string, chainID uint64) string {
	var chain [8]byte
	binary.BigEndian.PutUint64(chain[:], chainID)
	sum := Keccak256([]byte(alice), []byte{0}, []byte(bob), []byte{0}, chain[:])
	return "0x" + hex.EncodeToString(sum[12:])
}

// HashPreImage returns the lock hash that preImage unlocks.
func HashPreImage(preImage string) string {
	return keccakHex([]byte(preImage))
}

// TransferRoot commits to the set of active transfer ids.
func TransferRoot(transfers []Transfer) string {
	if len(transfers) == 0 {
		return EmptyRoot
	}
	ids := make([]string, len(transfers))
	for i, t := range transfers {
		ids[i] = t.TransferID
	}
	sort.Strings(ids)
	parts := make([][]byte, 0, len(ids))
	for _, id := range ids {
		parts = append(parts, []byte(id), []byte{0})
	}
	return keccakHex(parts...)
}

func isHash(v string) bool {
	v = strings.TrimPrefix(strings.TrimSpace(v), "0x")
	if len(v) != 64 {
		return false
	}
	_, err := hex.DecodeString(v)
	return err == nil
}
