package impl

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
)

// Authenticator data layout per the WebAuthn spec: rpIdHash(32),
// flags(1), signCount(4), then optional attested credential data
// (aaguid(16), credIdLen(2), credId, COSE key).
const (
	flagUserPresent       = 0x01
	flagUserVerified      = 0x04
	flagAttestedCredsData = 0x40
)

var (
	errMalformedClientData = errors.New("malformed client data")
	errMalformedAuthData   = errors.New("malformed authenticator data")
)

type clientData struct {
	Type      string `json:"type"`
	Challenge string `json:"challenge"`
	Origin    string `json:"origin"`
}

type authenticatorData struct {
	RPIDHash  []byte
	Flags     byte
	SignCount uint32

	AAGUID       []byte
	CredentialID []byte
}

func parseClientData(raw []byte) (*clientData, error) {
	var cd clientData
	if err := json.Unmarshal(raw, &cd); err != nil {
		return nil, errMalformedClientData
	}
	if cd.Type == "" || cd.Challenge == "" || cd.Origin == "" {
		return nil, errMalformedClientData
	}
	return &cd, nil
}

func parseAuthenticatorData(raw []byte, wantAttested bool) (*authenticatorData, error) {
	if len(raw) < 37 {
		return nil, errMalformedAuthData
	}
	ad := &authenticatorData{
		RPIDHash:  raw[:32],
		Flags:     raw[32],
		SignCount: binary.BigEndian.Uint32(raw[33:37]),
	}
	if !wantAttested {
		return ad, nil
	}
	if ad.Flags&flagAttestedCredsData == 0 {
		return nil, errMalformedAuthData
	}
	rest := raw[37:]
	if len(rest) < 18 {
		return nil, errMalformedAuthData
	}
	ad.AAGUID = rest[:16]
	credLen := int(binary.BigEndian.Uint16(rest[16:18]))
	if credLen == 0 || len(rest) < 18+credLen {
		return nil, errMalformedAuthData
	}
	ad.CredentialID = rest[18 : 18+credLen]
	return ad, nil
}

func (ad *authenticatorData) matchesRPID(rpID string) bool {
	sum := sha256.Sum256([]byte(rpID))
	return bytes.Equal(ad.RPIDHash, sum[:])
}

func b64Decode(s string) ([]byte, error) {
	if s == "" {
		return nil, errors.New("empty field")
	}
	return base64.RawURLEncoding.DecodeString(s)
}

func b64Encode(b []byte) string {
	return base64.RawURLEncoding.EncodeToString(b)
}
