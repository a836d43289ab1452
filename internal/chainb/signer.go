package chainb

import (
	"crypto/sha512"
	"fmt"

	"filippo.io/edwards25519"

	"github.com/nexusbridge/swaporch/pkg/errkind"
)

// accountSigner holds a NEAR-style ed25519 account key and signs transaction
// bytes with the scalar/point primitives edwards25519 exposes, the same
// clamped-expanded-secret construction RFC 8032 describes.
type accountSigner struct {
	accountID string
	seed      [32]byte
	publicKey [32]byte
}

func newAccountSigner(accountID string, seed [32]byte) (*accountSigner, error) {
	s := &accountSigner{accountID: accountID, seed: seed}
	pub, err := s.derivePublicKey()
	if err != nil {
		return nil, err
	}
	s.publicKey = pub
	return s, nil
}

func (s *accountSigner) expandedScalar() (*edwards25519.Scalar, [32]byte, error) {
	h := sha512.Sum512(s.seed[:])
	var clamped [32]byte
	copy(clamped[:], h[:32])
	clamped[0] &= 248
	clamped[31] &= 127
	clamped[31] |= 64

	scalar, err := edwards25519.NewScalar().SetBytesWithClamping(clamped[:])
	if err != nil {
		return nil, [32]byte{}, fmt.Errorf("%w: clamp signing scalar: %v", errkind.ErrInternal, err)
	}
	var prefix [32]byte
	copy(prefix[:], h[32:])
	return scalar, prefix, nil
}

func (s *accountSigner) derivePublicKey() ([32]byte, error) {
	scalar, _, err := s.expandedScalar()
	if err != nil {
		return [32]byte{}, err
	}
	point := new(edwards25519.Point).ScalarBaseMult(scalar)
	var out [32]byte
	copy(out[:], point.Bytes())
	return out, nil
}

// sign produces a deterministic ed25519 signature over message, following
// RFC 8032's r = H(prefix || M), R = rB, S = r + H(R || A || M) * s (mod L).
func (s *accountSigner) sign(message []byte) ([64]byte, error) {
	var sig [64]byte

	scalar, prefix, err := s.expandedScalar()
	if err != nil {
		return sig, err
	}

	rHash := sha512.New()
	rHash.Write(prefix[:])
	rHash.Write(message)
	rDigest := rHash.Sum(nil)

	r, err := edwards25519.NewScalar().SetUniformBytes(rDigest)
	if err != nil {
		return sig, fmt.Errorf("%w: derive nonce scalar: %v", errkind.ErrInternal, err)
	}
	R := new(edwards25519.Point).ScalarBaseMult(r)

	kHash := sha512.New()
	kHash.Write(R.Bytes())
	kHash.Write(s.publicKey[:])
	kHash.Write(message)
	kDigest := kHash.Sum(nil)

	k, err := edwards25519.NewScalar().SetUniformBytes(kDigest)
	if err != nil {
		return sig, fmt.Errorf("%w: derive challenge scalar: %v", errkind.ErrInternal, err)
	}

	S := edwards25519.NewScalar().MultiplyAdd(k, scalar, r)

	copy(sig[:32], R.Bytes())
	copy(sig[32:], S.Bytes())
	return sig, nil
}
