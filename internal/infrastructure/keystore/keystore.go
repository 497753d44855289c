package keystore

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

var ErrKeyNotFound = errors.New("key not found")

// StaticKeyStore holds the ed25519 keys of the local identities.
type StaticKeyStore struct {
	signers      map[string]*protocol.KeySigner
	byIdentifier map[string]string
	defaultKeyID string
}

// NewFromEnv builds a keystore from environment variables.
// SIGNING_KEYS format: "keyId:hex,keyId2:hex" where hex is a 32 byte
// ed25519 seed or a 64 byte private key.
// SIGNING_DEFAULT_KEY_ID sets the default key id.
func NewFromEnv() (*StaticKeyStore, error) {
	return Parse(os.Getenv("SIGNING_KEYS"), os.Getenv("SIGNING_DEFAULT_KEY_ID"))
}

// Parse builds a keystore from a SIGNING_KEYS style string.
func Parse(raw, defaultKeyID string) (*StaticKeyStore, error) {
	ks := &StaticKeyStore{
		signers:      map[string]*protocol.KeySigner{},
		byIdentifier: map[string]string{},
		defaultKeyID: strings.TrimSpace(defaultKeyID),
	}
	for _, p := range strings.Split(raw, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		parts := strings.SplitN(p, ":", 2)
		if len(parts) != 2 || strings.TrimSpace(parts[0]) == "" {
			return nil, errors.New("invalid SIGNING_KEYS format")
		}
		keyID := strings.TrimSpace(parts[0])
		if _, dup := ks.signers[keyID]; dup {
			return nil, fmt.Errorf("duplicate key id %q", keyID)
		}
		signer, err := signerFromHex(strings.TrimSpace(parts[1]))
		if err != nil {
			return nil, fmt.Errorf("key %q: %w", keyID, err)
		}
		ks.signers[keyID] = signer
		ks.byIdentifier[signer.Identifier()] = keyID
	}
	if ks.defaultKeyID != "" {
		if _, ok := ks.signers[ks.defaultKeyID]; !ok {
			return nil, fmt.Errorf("default key %q not configured", ks.defaultKeyID)
		}
	}
	return ks, nil
}

// Add registers a signer under keyID, replacing any previous one.
func (s *StaticKeyStore) Add(keyID string, signer *protocol.KeySigner) {
	if s.signers == nil {
		s.signers = map[string]*protocol.KeySigner{}
		s.byIdentifier = map[string]string{}
	}
	if prev, ok := s.signers[keyID]; ok {
		delete(s.byIdentifier, prev.Identifier())
	}
	s.signers[keyID] = signer
	s.byIdentifier[signer.Identifier()] = keyID
}

func (s *StaticKeyStore) GetSigner(ctx context.Context, keyID string) (*protocol.KeySigner, error) {
	_ = ctx
	signer, ok := s.signers[keyID]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return signer, nil
}

// GetSignerForIdentifier looks a signer up by its public identifier.
func (s *StaticKeyStore) GetSignerForIdentifier(ctx context.Context, identifier string) (*protocol.KeySigner, error) {
	keyID, ok := s.byIdentifier[strings.TrimSpace(identifier)]
	if !ok {
		return nil, ErrKeyNotFound
	}
	return s.GetSigner(ctx, keyID)
}

func (s *StaticKeyStore) DefaultSigner(ctx context.Context) (keyID string, signer *protocol.KeySigner, err error) {
	if s.defaultKeyID == "" {
		return "", nil, errors.New("default key not configured")
	}
	signer, err = s.GetSigner(ctx, s.defaultKeyID)
	return s.defaultKeyID, signer, err
}

// KeyIDs returns the configured key ids in sorted order.
func (s *StaticKeyStore) KeyIDs() []string {
	ids := make([]string, 0, len(s.signers))
	for id := range s.signers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func signerFromHex(value string) (*protocol.KeySigner, error) {
	raw, err := hex.DecodeString(strings.TrimPrefix(value, "0x"))
	if err != nil {
		return nil, err
	}
	switch len(raw) {
	case ed25519.SeedSize:
		return protocol.NewKeySigner(ed25519.NewKeyFromSeed(raw))
	case ed25519.PrivateKeySize:
		return protocol.NewKeySigner(ed25519.PrivateKey(raw))
	default:
		return nil, fmt.Errorf("invalid key length %d", len(raw))
	}
}
