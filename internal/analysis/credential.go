package analysis

import "strings"

// CredentialMode selects how the provider is reached
type CredentialMode int

const (
	// CredentialNone means no usable credential was supplied
	CredentialNone CredentialMode = iota
	// CredentialDirect calls the provider with the caller's own API key
	CredentialDirect
	// CredentialProxied goes through the shared-key proxy with a session token
	CredentialProxied
)

func (m CredentialMode) String() string {
	switch m {
	case CredentialDirect:
		return "direct"
	case CredentialProxied:
		return "proxied"
	default:
		return "none"
	}
}

// Credential is either a provider key or a proxy session token. The zero
// value carries no credential.
type Credential struct {
	mode   CredentialMode
	secret string
}

// DirectKey uses the caller's own provider API key
func DirectKey(apiKey string) Credential {
	return Credential{mode: CredentialDirect, secret: strings.TrimSpace(apiKey)}
}

// Proxied uses an authenticated proxy session
func Proxied(sessionToken string) Credential {
	return Credential{mode: CredentialProxied, secret: strings.TrimSpace(sessionToken)}
}

// Mode reports which path the credential selects
func (c Credential) Mode() CredentialMode {
	return c.mode
}

// Usable reports whether the credential has a non-blank secret
func (c Credential) Usable() bool {
	return c.mode != CredentialNone && c.secret != ""
}

// String never reveals the secret
func (c Credential) String() string {
	return "credential(" + c.mode.String() + ")"
}
