package oidc

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// mergeAndMarshalClaims marshals registered and merges it over claims.
// Registered fields win.
func mergeAndMarshalClaims(registered any, claims map[string]any) ([]byte, error) {
	buf := new(bytes.Buffer)
	if err := json.NewEncoder(buf).Encode(registered); err != nil {
		return nil, fmt.Errorf("oidc registered claims: %w", err)
	}
	if len(claims) == 0 {
		return buf.Bytes(), nil
	}

	merged := make(map[string]any, len(claims))
	for k, v := range claims {
		merged[k] = v
	}
	if err := json.NewDecoder(buf).Decode(&merged); err != nil {
		return nil, fmt.Errorf("oidc registered claims: %w", err)
	}
	if err := json.NewEncoder(buf).Encode(merged); err != nil {
		return nil, fmt.Errorf("oidc claims: %w", err)
	}
	return buf.Bytes(), nil
}

// unmarshalJSONMulti unmarshals data into every destination in turn.
func unmarshalJSONMulti(data []byte, destinations ...any) error {
	for _, dst := range destinations {
		if err := json.Unmarshal(data, dst); err != nil {
			return fmt.Errorf("oidc: %w into %T", err, dst)
		}
	}
	return nil
}
