package impl

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"fmt"
)

// SignatureVerifierImpl checks WebAuthn signatures with the platform
// crypto stack. Keys arrive as SubjectPublicKeyInfo DER, the form the
// browser's getPublicKey() hands out, so the key material itself names
// the algorithm.
type SignatureVerifierImpl struct{}

func NewSignatureVerifierImpl() *SignatureVerifierImpl { return &SignatureVerifierImpl{} }

func (SignatureVerifierImpl) VerifyAssertion(publicKey, authData, clientDataJSON, sig []byte) error {
	return verifyWebAuthnSignature(publicKey, authData, clientDataJSON, sig)
}

func (SignatureVerifierImpl) VerifyAttestation(publicKey, authData, clientDataJSON, sig []byte) error {
	return verifyWebAuthnSignature(publicKey, authData, clientDataJSON, sig)
}

// verifyWebAuthnSignature checks sig over authData || SHA-256(clientDataJSON).
func verifyWebAuthnSignature(publicKey, authData, clientDataJSON, sig []byte) error {
	pub, err := x509.ParsePKIXPublicKey(publicKey)
	if err != nil {
		return fmt.Errorf("parse credential public key: %w", err)
	}

	clientDataHash := sha256.Sum256(clientDataJSON)
	signed := make([]byte, 0, len(authData)+len(clientDataHash))
	signed = append(signed, authData...)
	signed = append(signed, clientDataHash[:]...)
	digest := sha256.Sum256(signed)

	switch key := pub.(type) {
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, digest[:], sig) {
			return fmt.Errorf("ecdsa signature mismatch")
		}
		return nil
	case *rsa.PublicKey:
		if err := rsa.VerifyPKCS1v15(key, crypto.SHA256, digest[:], sig); err != nil {
			return fmt.Errorf("rsa signature mismatch: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("unsupported credential key type %T", pub)
	}
}
