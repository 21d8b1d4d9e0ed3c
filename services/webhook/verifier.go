package webhook

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"fmt"

	"streampoints-engine/pkg/config"
)

// Verifier checks that an inbound delivery was signed by the platform. The
// signing string is deliveryID + "." + timestamp + "." + rawBody, hashed with
// SHA-256 and verified against the platform's RSA public key (PKCS#1 v1.5).
type Verifier struct {
	key *rsa.PublicKey
}

func NewVerifier(cfg *config.Config) (*Verifier, error) {
	key, err := ParsePublicKey([]byte(cfg.Webhook.PublicKey))
	if err != nil {
		return nil, fmt.Errorf("webhook public key: %w", err)
	}
	return &Verifier{key: key}, nil
}

func ParsePublicKey(pemData []byte) (*rsa.PublicKey, error) {
	block, _ := pem.Decode(pemData)
	if block == nil {
		return nil, fmt.Errorf("no PEM block found")
	}

	parsed, err := x509.ParsePKIXPublicKey(block.Bytes)
	if err != nil {
		return nil, err
	}

	key, ok := parsed.(*rsa.PublicKey)
	if !ok {
		return nil, fmt.Errorf("public key is not RSA")
	}
	return key, nil
}

// Verify returns false on any malformed input or mismatch; it never reports
// why, so a forged request learns nothing.
func (v *Verifier) Verify(deliveryID, timestamp string, body []byte, signature string) bool {
	if v == nil || v.key == nil {
		return false
	}
	if deliveryID == "" || timestamp == "" || signature == "" {
		return false
	}

	sig, err := base64.StdEncoding.DecodeString(signature)
	if err != nil {
		return false
	}

	payload := make([]byte, 0, len(deliveryID)+len(timestamp)+len(body)+2)
	payload = append(payload, deliveryID...)
	payload = append(payload, '.')
	payload = append(payload, timestamp...)
	payload = append(payload, '.')
	payload = append(payload, body...)

	digest := sha256.Sum256(payload)
	return rsa.VerifyPKCS1v15(v.key, crypto.SHA256, digest[:], sig) == nil
}
