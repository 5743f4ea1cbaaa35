package tunnel

import (
	"encoding/base64"
	"fmt"
	"strings"
	"unicode"

	"golang.org/x/crypto/ssh"

	sberr "switchboard/internal/errors"
)

// Key material arrives in the wild in several shapes: plain PEM,
// passphrase-protected PEM, and base64-wrapped PEM as exported by some
// GUI clients.  ParseKeyBlob tries each known shape in a fixed order
// and returns the first signer that works.

// keyStrategy is one way of turning a credential blob into a signer.
type keyStrategy struct {
	name  string
	parse func() (ssh.Signer, error)
}

// ParseKeyBlob decodes private key material.  Strategies are attempted
// in order: decrypt with the passphrase, parse as plain PEM, then the
// same two again after base64-unwrapping the blob.  When every
// strategy fails, the errors are joined so the operator can see what
// each attempt said.
func ParseKeyBlob(blob, passphrase []byte) (ssh.Signer, error) {
	strategies := keyStrategies(blob, passphrase)

	var errs []error
	for _, s := range strategies {
		signer, err := s.parse()
		if err == nil {
			return signer, nil
		}
		errs = append(errs, fmt.Errorf("%s: %w", s.name, err))
	}
	return nil, sberr.Join(errs...)
}

func keyStrategies(blob, passphrase []byte) []keyStrategy {
	var out []keyStrategy

	if len(passphrase) > 0 {
		out = append(out, keyStrategy{"with passphrase", func() (ssh.Signer, error) {
			return ssh.ParsePrivateKeyWithPassphrase(blob, passphrase)
		}})
	}
	out = append(out, keyStrategy{"plain", func() (ssh.Signer, error) {
		return ssh.ParsePrivateKey(blob)
	}})

	decoded, err := base64.StdEncoding.DecodeString(stripSpace(string(blob)))
	if err != nil {
		return out
	}
	if len(passphrase) > 0 {
		out = append(out, keyStrategy{"base64 with passphrase", func() (ssh.Signer, error) {
			return ssh.ParsePrivateKeyWithPassphrase(decoded, passphrase)
		}})
	}
	out = append(out, keyStrategy{"base64 plain", func() (ssh.Signer, error) {
		return ssh.ParsePrivateKey(decoded)
	}})
	return out
}

// looksLikePrivateKey reports whether the blob could plausibly hold a
// private key, without attempting a full parse.  It accepts PEM blocks
// and base64-wrapped PEM.
func looksLikePrivateKey(blob []byte) bool {
	s := string(blob)
	if strings.Contains(s, "PRIVATE KEY") {
		return true
	}
	decoded, err := base64.StdEncoding.DecodeString(stripSpace(s))
	if err != nil {
		return false
	}
	return strings.Contains(string(decoded), "PRIVATE KEY")
}

func stripSpace(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, s)
}
