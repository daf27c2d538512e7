package node

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"

	"github.com/rodiolabs/oraclenode/internal/model"
)

// nodeSigner signs every reading this node produces locally before it
// enters the consensus pipeline. Implements scheduler.Signer.
type nodeSigner struct {
	key model.SigningKey
}

// newNodeSigner builds a signer from a hex-encoded key, or generates a
// random one if hexKey is empty.
func newNodeSigner(hexKey string) (*nodeSigner, error) {
	if hexKey == "" {
		key := make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			return nil, fmt.Errorf("node: generate signing key: %w", err)
		}
		return &nodeSigner{key: key}, nil
	}
	key, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("node: decode signing_key_hex: %w", err)
	}
	return &nodeSigner{key: key}, nil
}

func (s *nodeSigner) Sign(r model.Reading) []byte {
	return model.Sign(s.key, r)
}
