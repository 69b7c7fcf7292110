// Package testsigner provides a Signer test double that never touches real
// key material, for use in tests that exercise the Order Gateway without a
// funded wallet.
package testsigner

import (
	"context"
	"fmt"

	"github.com/declansx/odds-maximizer-betting-bot/internal/venue"
)

// Signer returns a deterministic fake signature derived from the payload's
// fields, sufficient to exercise serialization and retry paths.
type Signer struct {
	MakerID string
}

func New(makerID string) *Signer {
	return &Signer{MakerID: makerID}
}

func (s *Signer) Sign(ctx context.Context, payload venue.OrderPayload) (venue.SignedOrder, error) {
	return venue.SignedOrder{
		Payload:   payload,
		Signature: fmt.Sprintf("test-sig:%s:%d", s.MakerID, payload.Nonce),
	}, nil
}
