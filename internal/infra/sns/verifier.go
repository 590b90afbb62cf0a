package sns

import (
	"context"
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
)

var ErrBadSignature = errors.New("sns signature verification failed")

// CertFetcher loads the PEM signing certificate at a trusted URL.
type CertFetcher func(ctx context.Context, certURL string) (*x509.Certificate, error)

// Verifier checks SNS message signatures. Signing certificates are cached by
// URL.
type Verifier struct {
	Fetch CertFetcher

	certs *cache.Cache
}

func NewVerifier(client *http.Client) *Verifier {
	return &Verifier{
		Fetch: httpCertFetcher(client),
		certs: cache.New(24*time.Hour, time.Hour),
	}
}

func (v *Verifier) Verify(ctx context.Context, m *Message) error {
	if m.Signature == "" || m.SigningCertURL == "" {
		return fmt.Errorf("%w: unsigned message", ErrBadSignature)
	}

	var hash crypto.Hash
	switch m.SignatureVersion {
	case "1":
		hash = crypto.SHA1
	case "2":
		hash = crypto.SHA256
	default:
		return fmt.Errorf("%w: signature version %q", ErrBadSignature, m.SignatureVersion)
	}

	u, err := trustedURL(m.SigningCertURL)
	if err != nil {
		return err
	}
	cert, err := v.certificate(ctx, u.String())
	if err != nil {
		return err
	}
	pub, ok := cert.PublicKey.(*rsa.PublicKey)
	if !ok {
		return fmt.Errorf("%w: certificate key is not RSA", ErrBadSignature)
	}

	canonical, err := m.stringToSign()
	if err != nil {
		return err
	}
	sig, err := base64.StdEncoding.DecodeString(m.Signature)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}

	if err := rsa.VerifyPKCS1v15(pub, hash, digest(hash, canonical), sig); err != nil {
		return fmt.Errorf("%w: %v", ErrBadSignature, err)
	}
	return nil
}

func (v *Verifier) certificate(ctx context.Context, certURL string) (*x509.Certificate, error) {
	if c, ok := v.certs.Get(certURL); ok {
		return c.(*x509.Certificate), nil
	}
	cert, err := v.Fetch(ctx, certURL)
	if err != nil {
		return nil, fmt.Errorf("fetch signing certificate: %w", err)
	}
	v.certs.SetDefault(certURL, cert)
	return cert, nil
}

func digest(hash crypto.Hash, s string) []byte {
	if hash == crypto.SHA1 {
		sum := sha1.Sum([]byte(s))
		return sum[:]
	}
	sum := sha256.Sum256([]byte(s))
	return sum[:]
}

func httpCertFetcher(client *http.Client) CertFetcher {
	return func(ctx context.Context, certURL string) (*x509.Certificate, error) {
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
			return nil, fmt.Errorf("status %d", resp.StatusCode)
		}

		body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
		if err != nil {
			return nil, err
		}
		block, _ := pem.Decode(body)
		if block == nil {
			return nil, errors.New("no PEM block in certificate response")
		}
		return x509.ParseCertificate(block.Bytes)
	}
}
