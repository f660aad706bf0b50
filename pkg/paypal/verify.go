package paypal

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
)

// Transmission headers sent with every PayPal webhook.
const (
	HeaderTransmissionID   = "Paypal-Transmission-Id"
	HeaderTransmissionTime = "Paypal-Transmission-Time"
	HeaderTransmissionSig  = "Paypal-Transmission-Sig"
	HeaderCertURL          = "Paypal-Cert-Url"
	HeaderAuthAlgo         = "Paypal-Auth-Algo"
)

const supportedAlgo = "SHA256withRSA"

// CertFetcher downloads a PEM certificate.
type CertFetcher func(ctx context.Context, certURL string) ([]byte, error)

// WebhookVerifier checks PayPal webhook signatures offline. Signing
// certificates are cached by URL.
type WebhookVerifier struct {
	webhookID string
	fetch     CertFetcher
	certs     *expirable.LRU[string, *x509.Certificate]
	now       func() time.Time
}

type verifierOptions struct {
	fetch    CertFetcher
	client   *http.Client
	cacheTTL time.Duration
	size     int
	now      func() time.Time
}

// VerifierOption configures a WebhookVerifier.
type VerifierOption func(*verifierOptions)

// WithCertFetcher replaces the HTTP certificate download.
func WithCertFetcher(f CertFetcher) VerifierOption {
	return func(o *verifierOptions) {
		if f != nil {
			o.fetch = f
		}
	}
}

// WithCertHTTPClient sets the client used to download certificates.
func WithCertHTTPClient(c *http.Client) VerifierOption {
	return func(o *verifierOptions) {
		if c != nil {
			o.client = c
		}
	}
}

// WithCertCacheTTL sets how long a downloaded certificate is reused.
func WithCertCacheTTL(ttl time.Duration) VerifierOption {
	return func(o *verifierOptions) {
		if ttl > 0 {
			o.cacheTTL = ttl
		}
	}
}

// WithClock overrides the time used for certificate validity checks.
func WithClock(now func() time.Time) VerifierOption {
	return func(o *verifierOptions) {
		if now != nil {
			o.now = now
		}
	}
}

// NewWebhookVerifier creates a verifier for the given webhook id.
func NewWebhookVerifier(webhookID string, opts ...VerifierOption) *WebhookVerifier {
	o := &verifierOptions{
		client:   &http.Client{Timeout: 10 * time.Second},
		cacheTTL: 24 * time.Hour,
		size:     16,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	if o.fetch == nil {
		o.fetch = httpCertFetcher(o.client)
	}
	return &WebhookVerifier{
		webhookID: webhookID,
		fetch:     o.fetch,
		certs:     expirable.NewLRU[string, *x509.Certificate](o.size, nil, o.cacheTTL),
		now:       o.now,
	}
}

// Verify checks the transmission signature over
// "transmissionId|transmissionTime|webhookId|crc32(body)".
func (v *WebhookVerifier) Verify(ctx context.Context, header http.Header, body []byte) error {
	if v.webhookID == "" {
		return ErrMissingWebhookID
	}

	id := header.Get(HeaderTransmissionID)
	ts := header.Get(HeaderTransmissionTime)
	sig := header.Get(HeaderTransmissionSig)
	certURL := header.Get(HeaderCertURL)
	algo := header.Get(HeaderAuthAlgo)
	for name, val := range map[string]string{
		HeaderTransmissionID:   id,
		HeaderTransmissionTime: ts,
		HeaderTransmissionSig:  sig,
		HeaderCertURL:          certURL,
	} {
		if val == "" {
			return fmt.Errorf("%w: %s", ErrMissingHeader, name)
		}
	}
	if algo != "" && algo != supportedAlgo {
		return fmt.Errorf("%w: %s", ErrUnsupportedAlgorithm, algo)
	}

	rawSig, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}

	cert, err := v.certificate(ctx, certURL)
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: not an RSA key", ErrInvalidCertificate)
	}

	msg := fmt.Sprintf("%s|%s|%s|%d", id, ts, v.webhookID, crc32.ChecksumIEEE(body))
	digest := sha256.Sum256([]byte(msg))
	if err := rsa.VerifyPKCS1v15(pub, crypto.SHA256, digest[:], rawSig); err != nil {
		return errors.Join(ErrInvalidSignature, err)
	}
	return nil
}

func (v *WebhookVerifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	if err := checkCertURL(certURL); err != nil {
		return nil, err
	}
	if cert, ok := v.certs.Get(certURL); ok && v.valid(cert) {
		return cert, nil
	}

	raw, err := v.fetch(ctx, certURL)
	if err != nil {
		return nil, errors.Join(ErrInvalidCertificate, err)
	}
	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("%w: no PEM block", ErrInvalidCertificate)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, errors.Join(ErrInvalidCertificate, err)
	}
	if !v.valid(cert) {
		return nil, fmt.Errorf("%w: outside validity period", ErrInvalidCertificate)
	}
	v.certs.Add(certURL, cert)
	return cert, nil
}

func (v *WebhookVerifier) valid(cert *x509.Certificate) bool {
	now := v.now()
	return !now.Before(cert.NotBefore) && !now.After(cert.NotAfter)
}

// checkCertURL only accepts https URLs on paypal.com hosts.
func checkCertURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return errors.Join(ErrUntrustedCertURL, err)
	}
	host := strings.ToLower(u.Hostname())
	if u.Scheme != "https" || (host != "paypal.com" && !strings.HasSuffix(host, ".paypal.com")) {
		return fmt.Errorf("%w: %s", ErrUntrustedCertURL, raw)
	}
	return nil
}

func httpCertFetcher(client *http.Client) CertFetcher {
	return func(ctx context.Context, certURL string) ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, certURL, nil)
		if err != nil {
			return nil, err
		}
		resp, err := client.Do(req)
		if err != nil {
			return nil, err
		}
		defer resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return nil, fmt.Errorf("certificate download status %d", resp.StatusCode)
		}
		return io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	}
}
