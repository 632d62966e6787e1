package deploy

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"

	"github.com/splax/backendless/internal/domain"
)

// Fingerprint hashes the JSON encoding of def with SHA-256. The encoding keeps
// field order, list order and key order inside raw bodies exactly as
// submitted. Insignificant whitespace is compacted by the encoder and does not
// affect the fingerprint.
func Fingerprint(def domain.Definition) (string, error) {
	encoded, err := canonicalEncoding(def)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(encoded)
	return hex.EncodeToString(sum[:]), nil
}

func canonicalEncoding(def domain.Definition) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(def); err != nil {
		return nil, fmt.Errorf("encode deployment definition: %w", err)
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
