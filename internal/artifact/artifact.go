package artifact

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"topo/internal/merge"
	"topo/internal/validator"
)

// ErrVersionMismatch is returned when an artifact's contents do not hash
// to its recorded config version.
var ErrVersionMismatch = errors.New("artifact config version does not match its contents")

// KeySize is the length in bytes of a secret digest key.
const KeySize = 32

// ConfigArtifact is the immutable record of a resolved node configuration.
// Secret values are stored as keyed digests; SecretKeyID names the key
// they were computed with.
type ConfigArtifact struct {
	Role          string            `json:"role"`
	ConfigVersion string            `json:"configVersion"` // sha256:hex
	Values        map[string]string `json:"values"`
	Secrets       []string          `json:"secrets,omitempty"`
	SecretKeyID   string            `json:"secretKeyId,omitempty"`
}

// Generate creates an artifact from a merged config. Every merged key is
// recorded by its canonical text; secret keys record Digest(key, value).
func Generate(cfg *merge.Config, roleID string, key []byte) ConfigArtifact {
	values := make(map[string]string, cfg.Len())
	var secrets []string
	for _, path := range cfg.Keys() {
		v, _ := cfg.Get(path)
		text := v.Text()
		if validator.IsSecret(cfg.Schema(), path) {
			text = Digest(key, text)
			secrets = append(secrets, path)
		}
		values[path] = text
	}
	return New(roleID, values, secrets, KeyID(key))
}

// New assembles an artifact and stamps its config version.
func New(role string, values map[string]string, secrets []string, keyID string) ConfigArtifact {
	if values == nil {
		values = map[string]string{}
	}
	if len(secrets) > 0 {
		secrets = append([]string(nil), secrets...)
		sort.Strings(secrets)
	}
	a := ConfigArtifact{Role: role, Values: values, Secrets: secrets, SecretKeyID: keyID}
	a.ConfigVersion = a.ComputeConfigVersion()
	return a
}

// Digest returns the HMAC-SHA256 of s under key.
func Digest(key []byte, s string) string {
	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(s))
	return "hmac-sha256:" + hex.EncodeToString(mac.Sum(nil))
}

// KeyID returns a short public fingerprint of key, or "" for no key.
func KeyID(key []byte) string {
	if len(key) == 0 {
		return ""
	}
	sum := sha256.Sum256(key)
	return hex.EncodeToString(sum[:8])
}

// ComputeConfigVersion hashes the canonical form of the role, the secret
// key id, the secret list and the values.
func (a ConfigArtifact) ComputeConfigVersion() string {
	hash := sha256.Sum256(a.canonical())
	return "sha256:" + hex.EncodeToString(hash[:])
}

// IsSecret reports whether the artifact recorded path as a secret.
func (a ConfigArtifact) IsSecret(path string) bool {
	i := sort.SearchStrings(a.Secrets, path)
	return i < len(a.Secrets) && a.Secrets[i] == path
}

// Verify checks that the config version matches the artifact's contents.
func (a ConfigArtifact) Verify() error {
	if !sort.StringsAreSorted(a.Secrets) {
		return fmt.Errorf("%w: secret list is not sorted", ErrVersionMismatch)
	}
	if got := a.ComputeConfigVersion(); got != a.ConfigVersion {
		return fmt.Errorf("%w: recorded %s, computed %s", ErrVersionMismatch, a.ConfigVersion, got)
	}
	return nil
}

// ToJSON serializes the artifact to pretty-printed JSON for human readability.
func (a ConfigArtifact) ToJSON() ([]byte, error) {
	return json.MarshalIndent(a, "", "  ")
}

// canonical is the hashed form: fixed field order, sorted map keys, no
// whitespace, nil collections written as empty ones.
func (a ConfigArtifact) canonical() []byte {
	secrets, values := a.Secrets, a.Values
	if secrets == nil {
		secrets = []string{}
	}
	if values == nil {
		values = map[string]string{}
	}
	data, _ := json.Marshal(struct {
		Role        string            `json:"role"`
		SecretKeyID string            `json:"secretKeyId"`
		Secrets     []string          `json:"secrets"`
		Values      map[string]string `json:"values"`
	}{a.Role, a.SecretKeyID, secrets, values})
	return data
}
