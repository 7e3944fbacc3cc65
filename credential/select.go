package credential

import (
	"fmt"
	"strings"
)

// Stored is a wallet-held credential, optionally tagged with the input key it
// is meant to satisfy.
type Stored struct {
	Credential *Credential
	// Key tags the credential for one specific input name; empty means
	// the credential may satisfy any input.
	Key string
}

// MissingCredentialsError reports input keys no stored credential could
// satisfy. It is raised before any proof generation starts.
type MissingCredentialsError struct {
	Keys []string
}

func (e *MissingCredentialsError) Error() string {
	return fmt.Sprintf("missing credentials for: %s", strings.Join(e.Keys, ", "))
}

// Pick matches stored credentials to the needed input keys: first tagged
// credentials bind to their exact key, then untagged credentials fill the
// remaining keys in encounter order. The policy is deterministic but not an
// optimal matching; it is part of the protocol's interoperability surface and
// must not be replaced with a stable matching algorithm.
func Pick(needed []string, available []Stored) (map[string]*Credential, error) {
	bound := make(map[string]*Credential, len(needed))
	used := make([]bool, len(available))

	for _, key := range needed {
		for i, s := range available {
			if used[i] || s.Key != key {
				continue
			}
			bound[key] = s.Credential
			used[i] = true
			break
		}
	}

	for _, key := range needed {
		if _, ok := bound[key]; ok {
			continue
		}
		for i, s := range available {
			if used[i] || s.Key != "" {
				continue
			}
			bound[key] = s.Credential
			used[i] = true
			break
		}
	}

	var missing []string
	for _, key := range needed {
		if _, ok := bound[key]; !ok {
			missing = append(missing, key)
		}
	}
	if len(missing) > 0 {
		return nil, &MissingCredentialsError{Keys: missing}
	}
	return bound, nil
}
