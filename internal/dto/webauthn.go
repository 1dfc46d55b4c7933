package dto

// CredentialCreationOptions is handed to the browser to start a
// registration ceremony. Binary fields are base64url (no padding).
type CredentialCreationOptions struct {
	Challenge        string            `json:"challenge"`
	RPID             string            `json:"rpId"`
	RPName           string            `json:"rpName"`
	UserID           string            `json:"userId"`
	UserName         string            `json:"userName"`
	PubKeyCredParams []PubKeyCredParam `json:"pubKeyCredParams"`
	ExcludeIDs       []string          `json:"excludeCredentials,omitempty"`
	Timeout          int64             `json:"timeout"`
}

type PubKeyCredParam struct {
	Type string `json:"type"`
	Alg  int    `json:"alg"`
}

// CredentialRequestOptions starts an authentication ceremony.
type CredentialRequestOptions struct {
	Challenge string   `json:"challenge"`
	RPID      string   `json:"rpId"`
	AllowIDs  []string `json:"allowCredentials"`
	Timeout   int64    `json:"timeout"`
}

// RegistrationResponse is the browser's answer to a creation ceremony.
type RegistrationResponse struct {
	Name           string   `json:"name"`
	CredentialID   string   `json:"credentialId"`
	ClientDataJSON string   `json:"clientDataJSON"`
	AuthData       string   `json:"authenticatorData"`
	PublicKey      string   `json:"publicKey"`
	PublicKeyAlg   int      `json:"publicKeyAlg"`
	Signature      string   `json:"signature"`
	Transports     []string `json:"transports"`
}

// AssertionResponse is the browser's answer to a request ceremony.
type AssertionResponse struct {
	Email          string `json:"email"`
	CredentialID   string `json:"credentialId"`
	ClientDataJSON string `json:"clientDataJSON"`
	AuthData       string `json:"authenticatorData"`
	Signature      string `json:"signature"`
	UserHandle     string `json:"userHandle"`
}

type BeginRegistrationRequest struct {
	Name string `json:"name"`
}

type BeginLoginRequest struct {
	Email string `json:"email"`
}
