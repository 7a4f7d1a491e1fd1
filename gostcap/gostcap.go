// Package gostcap is the concrete, swappable cryptography capability
// plugged into package cms: a Hasher/HasherFactory over GOST R
// 34.11-2012 (Streebog-256) and a Signer over GOST R 34.10-2012,
// grounded on the teacher's use of github.com/ddulesov/gogost in
// cms.go/extract.go. The cms package itself performs no hashing or
// signing (spec.md's core non-goal); this package is the default
// capability wired in by cmd/cmssign and httpapi.
package gostcap

import (
	"crypto/rand"

	"github.com/LdDl/ksba-go/asn1schema"
	"github.com/LdDl/ksba-go/utils"
	"github.com/ddulesov/gogost/gost3410"
	"github.com/ddulesov/gogost/gost34112012256"
	"github.com/pkg/errors"
)

// OIDs for the GOST algorithms this capability implements (kept
// alongside the PKCS#7/X.509 OIDs in asn1schema.OID* so both packages
// share one dotted-integer type).
var (
	OIDGostR341112256                  = asn1schema.MustOID("1.2.643.7.1.1.2.2")
	OIDGostR341012256                  = asn1schema.MustOID("1.2.643.7.1.1.1.1")
	OIDGostR341012256WithGostR341112256 = asn1schema.MustOID("1.2.643.7.1.1.3.2")
)

// Hasher accumulates bytes and produces a digest; it matches
// cms.Hasher's two-method shape exactly so a *Hasher can be
// passed directly wherever cms wants one.
type Hasher struct {
	h *gost34112012256.Hash
}

// NewHasher returns a fresh Streebog-256 hasher.
func NewHasher() *Hasher {
	return &Hasher{h: gost34112012256.New()}
}

func (s *Hasher) Write(p []byte) (int, error) { return s.h.Write(p) }

func (s *Hasher) Sum() []byte { return s.h.Sum(nil) }

// HasherFactory produces fresh Hashers on demand — cms.HasherFactory's
// shape, so a zero-value HasherFactory satisfies it.
type HasherFactory struct{}

func (HasherFactory) New() *Hasher { return NewHasher() }

// Signer signs a pre-hashed digest with a GOST private key, reversing
// the digest's byte order first — gogost expects the digest as
// big-endian, while GOST engines conventionally produce it
// little-endian, exactly as the teacher's cms.go Sign did.
type Signer struct {
	PrivateKey *gost3410.PrivateKey
}

// NewSigner wraps an already-loaded GOST private key (e.g. produced by
// package cryptopro) as a signing capability.
func NewSigner(key *gost3410.PrivateKey) *Signer {
	return &Signer{PrivateKey: key}
}

// Sign reverses digest and signs it, returning the raw signature bytes
// cms.SetSigValue expects.
func (s *Signer) Sign(digest []byte) ([]byte, error) {
	reversed := utils.ReverseBytes(digest)
	sig, err := s.PrivateKey.SignDigest(reversed, rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "gostcap: signing digest")
	}
	return sig, nil
}

// Verify checks a GOST signature against a pre-hashed digest using pub.
func Verify(pub *gost3410.PublicKey, digest, sig []byte) (bool, error) {
	reversed := utils.ReverseBytes(digest)
	ok, err := pub.VerifyDigest(reversed, sig)
	if err != nil {
		return false, errors.Wrap(err, "gostcap: verifying signature")
	}
	return ok, nil
}
