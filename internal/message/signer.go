package message

import (
	"bytes"
	"crypto"
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/emersion/go-msgauth/dkim"
)

// Signer adds a DKIM signature for the given sender domain. Returning the
// input unchanged is a valid implementation; signing must never be the
// reason a send fails.
type Signer interface {
	Sign(message []byte, domain string) ([]byte, error)
}

// DomainSigner signs with per-domain RSA keys loaded from a key directory
// (<domain>.pem, PKCS#1 or PKCS#8). Key management is external; a domain
// without a key file is passed through unsigned.
type DomainSigner struct {
	keyDir   string
	selector string

	mu   sync.Mutex
	keys map[string]crypto.Signer
}

func NewDomainSigner(keyDir, selector string) *DomainSigner {
	return &DomainSigner{
		keyDir:   keyDir,
		selector: selector,
		keys:     make(map[string]crypto.Signer),
	}
}

func (s *DomainSigner) Sign(message []byte, domain string) ([]byte, error) {
	if domain == "" {
		return message, nil
	}

	key, err := s.key(domain)
	if err != nil {
		return nil, err
	}
	if key == nil {
		return message, nil
	}

	opts := &dkim.SignOptions{
		Domain:   domain,
		Selector: s.selector,
		Signer:   key,
		HeaderKeys: []string{
			"From", "To", "Subject", "Date", "Message-ID", "MIME-Version", "List-Unsubscribe",
		},
	}

	var signed bytes.Buffer
	if err := dkim.Sign(&signed, bytes.NewReader(message), opts); err != nil {
		return nil, err
	}
	return signed.Bytes(), nil
}

func (s *DomainSigner) key(domain string) (crypto.Signer, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if key, ok := s.keys[domain]; ok {
		return key, nil
	}

	raw, err := os.ReadFile(filepath.Join(s.keyDir, domain+".pem"))
	if err != nil {
		if os.IsNotExist(err) {
			// Cache the miss: no key for this domain is the common case.
			s.keys[domain] = nil
			return nil, nil
		}
		return nil, err
	}

	block, _ := pem.Decode(raw)
	if block == nil {
		return nil, fmt.Errorf("dkim: no PEM block in key for %s", domain)
	}

	var key crypto.Signer
	if k, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		key = k
	} else {
		parsed, err := x509.ParsePKCS8PrivateKey(block.Bytes)
		if err != nil {
			return nil, fmt.Errorf("dkim: unreadable key for %s: %w", domain, err)
		}
		signer, ok := parsed.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("dkim: unsupported key type for %s", domain)
		}
		key = signer
	}

	s.keys[domain] = key
	return key, nil
}
