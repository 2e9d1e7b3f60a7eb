package repo

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/ssh"

	"github.com/odvcencio/gotarchive/pkg/object"
)

const commitSignaturePrefix = "sshsig-v1"

var (
	ErrUnsignedCommit   = errors.New("commit is not signed")
	ErrInvalidSignature = errors.New("invalid commit signature")
	ErrUntrustedSigner  = errors.New("commit signed by untrusted key")
)

// NewSSHSigner loads an SSH private key and returns a CommitSigner that
// encodes signatures as "sshsig-v1:<format>:<pubkey>:<sig>". An empty keyPath
// selects the first default key in ~/.ssh.
func NewSSHSigner(keyPath string) (CommitSigner, string, error) {
	resolvedPath, err := resolveSigningKeyPath(keyPath)
	if err != nil {
		return nil, "", err
	}

	raw, err := os.ReadFile(resolvedPath)
	if err != nil {
		return nil, "", fmt.Errorf("read signing key %q: %w", resolvedPath, err)
	}
	signer, err := ssh.ParsePrivateKey(raw)
	if err != nil {
		return nil, "", fmt.Errorf("parse signing key %q: %w", resolvedPath, err)
	}
	return SSHCommitSigner(signer), resolvedPath, nil
}

// SSHCommitSigner adapts an ssh.Signer to a CommitSigner.
func SSHCommitSigner(signer ssh.Signer) CommitSigner {
	pubB64 := base64.StdEncoding.EncodeToString(signer.PublicKey().Marshal())
	return func(payload []byte) (string, error) {
		sig, err := signer.Sign(rand.Reader, payload)
		if err != nil {
			return "", err
		}
		sigB64 := base64.StdEncoding.EncodeToString(sig.Blob)
		return fmt.Sprintf("%s:%s:%s:%s", commitSignaturePrefix, sig.Format, pubB64, sigB64), nil
	}
}

// VerifyCommitSignature checks the commit's embedded SSH signature. When
// allowed is non-empty the signing key must be one of those keys.
func VerifyCommitSignature(c *object.CommitObj, allowed []ssh.PublicKey) error {
	encoded := strings.TrimSpace(c.Signature)
	if encoded == "" {
		return ErrUnsignedCommit
	}
	parts := strings.Split(encoded, ":")
	if len(parts) != 4 || parts[0] != commitSignaturePrefix {
		return fmt.Errorf("%w: unrecognized encoding", ErrInvalidSignature)
	}

	pubRaw, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return fmt.Errorf("%w: public key: %w", ErrInvalidSignature, err)
	}
	pub, err := ssh.ParsePublicKey(pubRaw)
	if err != nil {
		return fmt.Errorf("%w: public key: %w", ErrInvalidSignature, err)
	}
	blob, err := base64.StdEncoding.DecodeString(parts[3])
	if err != nil {
		return fmt.Errorf("%w: signature: %w", ErrInvalidSignature, err)
	}

	sig := &ssh.Signature{Format: parts[1], Blob: blob}
	if err := pub.Verify(object.CommitSigningPayload(c), sig); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}

	if len(allowed) == 0 {
		return nil
	}
	for _, k := range allowed {
		if bytes.Equal(k.Marshal(), pub.Marshal()) {
			return nil
		}
	}
	return fmt.Errorf("%w: %s", ErrUntrustedSigner, ssh.FingerprintSHA256(pub))
}

// ParseAllowedSigners parses public keys in authorized_keys format. Blank
// lines and comments are ignored.
func ParseAllowedSigners(data []byte) ([]ssh.PublicKey, error) {
	var keys []ssh.PublicKey
	rest := data
	for len(bytes.TrimSpace(rest)) > 0 {
		pub, _, _, next, err := ssh.ParseAuthorizedKey(rest)
		if err != nil {
			return nil, fmt.Errorf("parse allowed signers: %w", err)
		}
		keys = append(keys, pub)
		rest = next
	}
	return keys, nil
}

// LoadAllowedSigners reads ParseAllowedSigners input from a file.
func LoadAllowedSigners(path string) ([]ssh.PublicKey, error) {
	expanded, err := expandUserPath(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(expanded)
	if err != nil {
		return nil, fmt.Errorf("read allowed signers: %w", err)
	}
	return ParseAllowedSigners(data)
}

func resolveSigningKeyPath(path string) (string, error) {
	path = strings.TrimSpace(path)
	if path != "" {
		return expandUserPath(path)
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	candidates := []string{
		filepath.Join(home, ".ssh", "id_ed25519"),
		filepath.Join(home, ".ssh", "id_ecdsa"),
		filepath.Join(home, ".ssh", "id_rsa"),
	}
	for _, candidate := range candidates {
		if st, err := os.Stat(candidate); err == nil && !st.IsDir() {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("no default SSH private key found in ~/.ssh (id_ed25519, id_ecdsa, id_rsa)")
}

func expandUserPath(path string) (string, error) {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		path = filepath.Join(home, path[2:])
	}
	return filepath.Abs(path)
}
