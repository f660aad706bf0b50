// Package paypaltest signs webhook transmissions with a throwaway
// certificate so handlers can be exercised without PayPal.
package paypaltest

import (
	"context"
	"crypto"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"encoding/pem"
	"fmt"
	"hash/crc32"
	"math/big"
	"net/http"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/maxfitai/billing/pkg/paypal"
)

// CertURL is the certificate location advertised in signed headers.
const CertURL = "https://api.sandbox.paypal.com/v1/notifications/certs/CERT-test"

// Signer produces PayPal transmission headers.
type Signer struct {
	WebhookID string
	key       *rsa.PrivateKey
	certPEM   []byte
}

// NewSigner generates a key pair and a self-signed certificate valid for an hour.
func NewSigner(t testing.TB, webhookID string) *Signer {
	t.Helper()

	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("paypaltest: generate key: %v", err)
	}
	tmpl := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "messageverificationcerts.paypal.com"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatalf("paypaltest: create certificate: %v", err)
	}
	return &Signer{
		WebhookID: webhookID,
		key:       key,
		certPEM:   pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}),
	}
}

// Fetcher serves the signer's certificate for CertURL.
func (s *Signer) Fetcher() paypal.CertFetcher {
	return func(_ context.Context, url string) ([]byte, error) {
		if url != CertURL {
			return nil, fmt.Errorf("paypaltest: unknown cert url %s", url)
		}
		return s.certPEM, nil
	}
}

// Verifier returns a verifier wired to this signer.
func (s *Signer) Verifier() *paypal.WebhookVerifier {
	return paypal.NewWebhookVerifier(s.WebhookID, paypal.WithCertFetcher(s.Fetcher()))
}

// Sign returns headers for body as PayPal would send them.
func (s *Signer) Sign(t testing.TB, body []byte) http.Header {
	t.Helper()

	id := uuid.NewString()
	ts := time.Now().UTC().Format(time.RFC3339)
	msg := fmt.Sprintf("%s|%s|%s|%d", id, ts, s.WebhookID, crc32.ChecksumIEEE(body))
	digest := sha256.Sum256([]byte(msg))
	sig, err := rsa.SignPKCS1v15(rand.Reader, s.key, crypto.SHA256, digest[:])
	if err != nil {
		t.Fatalf("paypaltest: sign: %v", err)
	}

	h := http.Header{}
	h.Set(paypal.HeaderTransmissionID, id)
	h.Set(paypal.HeaderTransmissionTime, ts)
	h.Set(paypal.HeaderTransmissionSig, base64.StdEncoding.EncodeToString(sig))
	h.Set(paypal.HeaderCertURL, CertURL)
	h.Set(paypal.HeaderAuthAlgo, "SHA256withRSA")
	return h
}
