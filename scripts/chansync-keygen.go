package main

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/chanhub/chansync/internal/p2p/protocol"
)

type options struct {
	op       string
	keyID    string
	seed     string
	preImage string
	alice    string
	bob      string
	chainID  uint64
}

func main() {
	var opt options

	flag.StringVar(&opt.op, "op", "key", "operation: key|lockhash|address")
	flag.StringVar(&opt.keyID, "key-id", "node", "key id used in the SIGNING_KEYS entry")
	flag.StringVar(&opt.seed, "seed", "", "hex ed25519 seed (32 bytes) or private key (64 bytes); default random")
	flag.StringVar(&opt.preImage, "preimage", "", "transfer preimage for lockhash; default random")
	flag.StringVar(&opt.alice, "alice", "", "initiator identifier for address")
	flag.StringVar(&opt.bob, "bob", "", "responder identifier for address")
	flag.Uint64Var(&opt.chainID, "chain-id", 1, "chain id for address")
	flag.Parse()

	var (
		out any
		err error
	)
	switch strings.ToLower(strings.TrimSpace(opt.op)) {
	case "key":
		out, err = generateKey(opt)
	case "lockhash", "lock-hash":
		out, err = lockHash(opt)
	case "address":
		out, err = channelAddress(opt)
	default:
		err = fmt.Errorf("unsupported op: %q", opt.op)
	}
	if err != nil {
		log.Fatal(err)
	}

	raw, err := json.Marshal(out)
	if err != nil {
		log.Fatal(err)
	}
	_, _ = os.Stdout.Write(append(raw, '\n'))
}

func generateKey(opt options) (map[string]string, error) {
	keyID := strings.TrimSpace(opt.keyID)
	if keyID == "" || strings.ContainsAny(keyID, ":,") {
		return nil, errors.New("key-id must be non-empty and must not contain ':' or ','")
	}
	privateKey, err := loadPrivateKey(opt.seed)
	if err != nil {
		return nil, err
	}
	signer, err := protocol.NewKeySigner(privateKey)
	if err != nil {
		return nil, err
	}
	seed := hex.EncodeToString(privateKey.Seed())
	return map[string]string{
		"keyId":       keyID,
		"identifier":  signer.Identifier(),
		"seed":        seed,
		"signingKeys": keyID + ":" + seed,
	}, nil
}

func lockHash(opt options) (map[string]string, error) {
	preImage := strings.TrimSpace(opt.preImage)
	if preImage == "" {
		buf := make([]byte, 32)
		if _, err := rand.Read(buf); err != nil {
			return nil, err
		}
		preImage = hex.EncodeToString(buf)
	}
	return map[string]string{
		"preImage": preImage,
		"lockHash": protocol.HashPreImage(preImage),
	}, nil
}

func channelAddress(opt options) (map[string]any, error) {
	alice := strings.TrimSpace(opt.alice)
	bob := strings.TrimSpace(opt.bob)
	if alice == "" || bob == "" {
		return nil, errors.New("alice and bob are required")
	}
	return map[string]any{
		"alice":          alice,
		"bob":            bob,
		"chainId":        opt.chainID,
		"channelAddress": protocol.DeriveChannelAddress(alice, bob, opt.chainID),
	}, nil
}

func loadPrivateKey(raw string) (ed25519.PrivateKey, error) {
	raw = strings.TrimPrefix(strings.TrimSpace(raw), "0x")
	if raw == "" {
		_, priv, err := ed25519.GenerateKey(rand.Reader)
		return priv, err
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	switch len(decoded) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	default:
		return nil, fmt.Errorf("seed must be %d or %d bytes", ed25519.SeedSize, ed25519.PrivateKeySize)
	}
}
