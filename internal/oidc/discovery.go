package oidc

// Discovery is the `/.well-known/openid-configuration` document.
type Discovery struct {
	Issuer                            string   `json:"issuer"`
	AuthorizationEndpoint             string   `json:"authorization_endpoint"`
	TokenEndpoint                     string   `json:"token_endpoint"`
	JWKSURI                           string   `json:"jwks_uri"`
	ResponseTypesSupported            []string `json:"response_types_supported"`
	GrantTypesSupported               []string `json:"grant_types_supported"`
	CodeChallengeMethodsSupported     []string `json:"code_challenge_methods_supported"`
	IDTokenSigningAlgValuesSupported  []string `json:"id_token_signing_alg_values_supported"`
	SubjectTypesSupported             []string `json:"subject_types_supported"`
}

// BuildDiscovery constructs the discovery document from the engine's
// fixed issuer. Every value is a fixed constant: response type "code",
// grant types "authorization_code"/"refresh_token",
// PKCE method "S256", signing algorithm "EdDSA".
func (e *Engine) BuildDiscovery() Discovery {
	return Discovery{
		Issuer:                           e.issuer,
		AuthorizationEndpoint:            e.issuer + "/authorize",
		TokenEndpoint:                    e.issuer + "/token",
		JWKSURI:                          e.issuer + "/.well-known/jwks.json",
		ResponseTypesSupported:           []string{ResponseTypeCode},
		GrantTypesSupported:              []string{GrantAuthorizationCode, GrantRefreshToken},
		CodeChallengeMethodsSupported:    []string{"S256"},
		IDTokenSigningAlgValuesSupported: []string{"EdDSA"},
		SubjectTypesSupported:            []string{"public"},
	}
}
