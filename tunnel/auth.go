package tunnel

import (
	"fmt"
	"net"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"switchboard/config"
	sberr "switchboard/internal/errors"
)

// BuildAuthMethods assembles an ordered list of SSH authentication
// methods from a connection profile.
func BuildAuthMethods(p config.Profile) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod
	passphrase := profilePassphrase(p)

	// 1. Inline key material
	if p.KeyData != "" {
		signer, err := ParseKeyBlob([]byte(p.KeyData), passphrase)
		if err != nil {
			return nil, fmt.Errorf("inline key: %w", err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	// 2. Explicit key file
	if p.KeyPath != "" {
		m, err := fileKeyAuth(p.KeyPath, passphrase)
		if err != nil {
			return nil, fmt.Errorf("key %s: %w", p.KeyPath, err)
		}
		methods = append(methods, m)
	}

	// 3. SSH agent (explicit flag)
	if p.UseAgent {
		m, err := agentAuth()
		if err != nil {
			return nil, fmt.Errorf("ssh-agent: %w", err)
		}
		methods = append(methods, m)
	}

	// 4. Interactive password
	if p.PromptPass {
		m, err := passwordAuth()
		if err != nil {
			return nil, err
		}
		methods = append(methods, m)
	}

	// 5. Fallback: try agent + common key files automatically.
	if len(methods) == 0 {
		methods = defaultAuthMethods(passphrase)
	}

	if len(methods) == 0 {
		return nil, fmt.Errorf(
			"no SSH authentication methods available – " +
				"configure key_path, key_data, use_agent, or prompt_password")
	}
	return methods, nil
}

// profilePassphrase resolves the key passphrase named by the profile.
func profilePassphrase(p config.Profile) []byte {
	if p.PassphraseEnv == "" {
		return nil
	}
	return []byte(os.Getenv(p.PassphraseEnv))
}

// ── individual auth builders ─────────────────────────────────────────

func fileKeyAuth(keyPath string, passphrase []byte) (ssh.AuthMethod, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("reading key: %w", err)
	}

	signer, err := ParseKeyBlob(data, passphrase)
	if err != nil {
		// An encrypted key with no configured passphrase can still
		// be unlocked interactively when stdin is a terminal.
		var missing *ssh.PassphraseMissingError
		if sberr.As(err, &missing) && term.IsTerminal(int(os.Stdin.Fd())) {
			fmt.Fprintf(os.Stderr, "Enter passphrase for %s: ", keyPath)
			pass, err2 := term.ReadPassword(int(os.Stdin.Fd()))
			fmt.Fprintln(os.Stderr)
			if err2 != nil {
				return nil, fmt.Errorf("reading passphrase: %w", err2)
			}
			signer, err = ssh.ParsePrivateKeyWithPassphrase(data, pass)
			if err != nil {
				return nil, fmt.Errorf("decrypting key: %w", err)
			}
		} else {
			return nil, err
		}
	}
	return ssh.PublicKeys(signer), nil
}

func agentAuth() (ssh.AuthMethod, error) {
	sock := os.Getenv("SSH_AUTH_SOCK")
	if sock == "" {
		return nil, fmt.Errorf("SSH_AUTH_SOCK is not set")
	}
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return nil, fmt.Errorf("connecting to agent at %s: %w", sock, err)
	}
	return ssh.PublicKeysCallback(agent.NewClient(conn).Signers), nil
}

func passwordAuth() (ssh.AuthMethod, error) {
	fmt.Fprint(os.Stderr, "SSH password: ")
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("reading password: %w", err)
	}
	return ssh.Password(string(pass)), nil
}

// defaultAuthMethods tries the agent and the three most common key
// file names without any explicit profile configuration.  Encrypted
// keys are skipped here rather than prompting.
func defaultAuthMethods(passphrase []byte) []ssh.AuthMethod {
	var out []ssh.AuthMethod

	// Agent
	if m, err := agentAuth(); err == nil {
		out = append(out, m)
	}

	// Common key names
	home, err := os.UserHomeDir()
	if err != nil {
		return out
	}
	for _, name := range []string{"id_ed25519", "id_rsa", "id_ecdsa"} {
		data, err := os.ReadFile(filepath.Join(home, ".ssh", name))
		if err != nil {
			continue
		}
		if signer, err := ParseKeyBlob(data, passphrase); err == nil {
			out = append(out, ssh.PublicKeys(signer))
		}
	}
	return out
}

// ── host-key verification ────────────────────────────────────────────

func hostKeyCallback(p config.Profile) (ssh.HostKeyCallback, error) {
	if !p.StrictHostKey {
		//nolint:gosec // profile opted out of host key checking
		return ssh.InsecureIgnoreHostKey(), nil
	}

	khFile := p.KnownHosts
	if khFile == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("locating home directory: %w", err)
		}
		khFile = filepath.Join(home, ".ssh", "known_hosts")
	}

	cb, err := knownhosts.New(khFile)
	if err != nil {
		return nil, fmt.Errorf("loading known_hosts from %s: %w", khFile, err)
	}
	return cb, nil
}
