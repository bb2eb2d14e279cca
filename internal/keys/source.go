package keys

import (
	"bufio"
	"context"
	"crypto"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"fmt"
	"os"
	"strings"

	vault "github.com/hashicorp/vault/api"
)

// SourceType identifies the format of a key source.
type SourceType string

const (
	// SourceTypePEM is a file or inline value containing a single PEM block.
	SourceTypePEM SourceType = "pem"

	// SourceTypeCert is a file or inline value containing an X.509 certificate.
	SourceTypeCert SourceType = "cert"

	// SourceTypeProperties is a properties file mapping key ids to PEM values.
	SourceTypeProperties SourceType = "properties"

	// SourceTypeVault reads PEM values from a Vault KV secret.
	SourceTypeVault SourceType = "vault"
)

// DefaultKeyID is the sentinel id under which keys of a default source are
// additionally registered, so verification can proceed when the credential
// carries no key-id hint.
const DefaultKeyID = "default"

// Source declares where a set of public keys comes from.
type Source struct {
	// ID identifies the source; keys loaded from it carry this id.
	ID string `yaml:"id"`

	// Type selects the loader for this source.
	Type SourceType `yaml:"type"`

	// Location is a file path, Vault secret path, or empty when Inline is set.
	Location string `yaml:"location"`

	// Inline holds the key material directly in configuration.
	Inline string `yaml:"inline,omitempty"`

	// IsDefault registers this source's keys under the default sentinel id.
	IsDefault bool `yaml:"isDefault,omitempty"`
}

// Loader turns a configured source into named public keys.
type Loader interface {
	// Load reads the source and returns a map of key id to public key.
	Load(ctx context.Context, src Source) (map[string]crypto.PublicKey, error)
}

// LoaderSet maps source types to their loaders. Unknown types are rejected
// at load time.
type LoaderSet struct {
	loaders map[SourceType]Loader
}

// NewLoaderSet creates a LoaderSet with the built-in PEM, certificate and
// properties loaders registered.
func NewLoaderSet() *LoaderSet {
	return &LoaderSet{
		loaders: map[SourceType]Loader{
			SourceTypePEM:        &PEMLoader{},
			SourceTypeCert:       &PEMLoader{},
			SourceTypeProperties: &PropertiesLoader{},
		},
	}
}

// Register adds or replaces the loader for a source type.
func (s *LoaderSet) Register(t SourceType, l Loader) {
	s.loaders[t] = l
}

// Load dispatches to the loader registered for the source type.
func (s *LoaderSet) Load(ctx context.Context, src Source) (map[string]crypto.PublicKey, error) {
	loader, ok := s.loaders[src.Type]
	if !ok {
		return nil, NewKeyError(src.ID, src.Location, fmt.Sprintf("no loader for type %q", src.Type), ErrUnknownSourceType)
	}
	return loader.Load(ctx, src)
}

// PEMLoader loads a single public key from PEM or certificate text. The text
// may be a full PEM block or bare base64; header lines and embedded
// whitespace are tolerated.
type PEMLoader struct{}

// Load implements Loader.
func (l *PEMLoader) Load(_ context.Context, src Source) (map[string]crypto.PublicKey, error) {
	text, err := sourceText(src)
	if err != nil {
		return nil, err
	}

	key, err := ParsePublicKey(text)
	if err != nil {
		return nil, NewKeyError(src.ID, src.Location, "failed to parse key material", err)
	}

	return map[string]crypto.PublicKey{src.ID: key}, nil
}

// PropertiesLoader loads multiple keys from a properties file of the form
// `keyId=<pem-or-base64>` per line. Lines starting with '#' are ignored.
type PropertiesLoader struct{}

// Load implements Loader.
func (l *PropertiesLoader) Load(_ context.Context, src Source) (map[string]crypto.PublicKey, error) {
	text, err := sourceText(src)
	if err != nil {
		return nil, err
	}

	keys := make(map[string]crypto.PublicKey)
	scanner := bufio.NewScanner(strings.NewReader(text))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		idx := strings.Index(line, "=")
		if idx <= 0 {
			return nil, NewKeyError(src.ID, src.Location, fmt.Sprintf("malformed property line %q", line), ErrInvalidKey)
		}
		keyID := strings.TrimSpace(line[:idx])
		value := strings.TrimSpace(line[idx+1:])
		key, err := ParsePublicKey(value)
		if err != nil {
			return nil, NewKeyError(src.ID, src.Location, fmt.Sprintf("failed to parse key %q", keyID), err)
		}
		keys[keyID] = key
	}
	if err := scanner.Err(); err != nil {
		return nil, NewKeyError(src.ID, src.Location, "failed to read properties", err)
	}

	if len(keys) == 0 {
		return nil, NewKeyError(src.ID, src.Location, "no keys found", ErrEmptySource)
	}

	return keys, nil
}

// VaultLoader loads PEM values from a Vault KV version 2 secret. Each field
// of the secret data becomes one key id.
type VaultLoader struct {
	client *vault.Client
	mount  string
}

// NewVaultLoader creates a VaultLoader reading from the given KV mount.
func NewVaultLoader(client *vault.Client, mount string) *VaultLoader {
	if mount == "" {
		mount = "secret"
	}
	return &VaultLoader{client: client, mount: mount}
}

// Load implements Loader. The source location is the secret path under the
// configured mount.
func (l *VaultLoader) Load(ctx context.Context, src Source) (map[string]crypto.PublicKey, error) {
	secret, err := l.client.KVv2(l.mount).Get(ctx, src.Location)
	if err != nil {
		return nil, NewKeyError(src.ID, src.Location, "failed to read vault secret", err)
	}
	if secret == nil || len(secret.Data) == 0 {
		return nil, NewKeyError(src.ID, src.Location, "vault secret has no data", ErrEmptySource)
	}

	keys := make(map[string]crypto.PublicKey, len(secret.Data))
	for keyID, raw := range secret.Data {
		value, ok := raw.(string)
		if !ok {
			return nil, NewKeyError(src.ID, src.Location, fmt.Sprintf("vault field %q is not a string", keyID), ErrInvalidKey)
		}
		key, err := ParsePublicKey(value)
		if err != nil {
			return nil, NewKeyError(src.ID, src.Location, fmt.Sprintf("failed to parse key %q", keyID), err)
		}
		keys[keyID] = key
	}

	return keys, nil
}

// sourceText resolves the raw text of a source from its inline value or file.
func sourceText(src Source) (string, error) {
	if src.Inline != "" {
		return src.Inline, nil
	}
	data, err := os.ReadFile(src.Location)
	if err != nil {
		if os.IsNotExist(err) {
			return "", NewKeyError(src.ID, src.Location, "file not found", ErrSourceNotFound)
		}
		return "", NewKeyError(src.ID, src.Location, "failed to read file", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return "", NewKeyError(src.ID, src.Location, "file is empty", ErrEmptySource)
	}
	return string(data), nil
}

// ParsePublicKey parses PEM or bare-base64 text into an RSA or EC public key.
// BEGIN/END header lines and embedded whitespace are stripped before decoding.
// The decoded bytes are tried first as an X.509 certificate (extracting its
// public key) and then as a PKIX-encoded public key.
func ParsePublicKey(text string) (crypto.PublicKey, error) {
	der, err := decodeKeyText(text)
	if err != nil {
		return nil, err
	}

	if cert, err := x509.ParseCertificate(der); err == nil {
		return checkKeyType(cert.PublicKey)
	}

	pub, err := x509.ParsePKIXPublicKey(der)
	if err != nil {
		return nil, fmt.Errorf("%w: not a certificate or PKIX public key", ErrInvalidKey)
	}
	return checkKeyType(pub)
}

// decodeKeyText normalizes PEM-ish text to DER bytes.
func decodeKeyText(text string) ([]byte, error) {
	var b strings.Builder
	for _, line := range strings.FieldsFunc(text, func(r rune) bool { return r == '\n' || r == '\r' }) {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		b.WriteString(line)
	}
	compact := strings.ReplaceAll(b.String(), " ", "")
	if compact == "" {
		return nil, ErrEmptySource
	}

	der, err := base64.StdEncoding.DecodeString(compact)
	if err != nil {
		return nil, fmt.Errorf("%w: base64 decode failed", ErrInvalidKey)
	}
	return der, nil
}

// checkKeyType restricts parsed keys to the supported RSA and EC types.
func checkKeyType(key any) (crypto.PublicKey, error) {
	switch key.(type) {
	case *rsa.PublicKey, *ecdsa.PublicKey:
		return key, nil
	default:
		return nil, fmt.Errorf("%w: unsupported key type %T", ErrInvalidKey, key)
	}
}
