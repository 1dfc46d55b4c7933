package events

import "time"

type LoggedIn struct {
	UserID    string    `json:"userId"`
	TenantID  *uint64   `json:"tenantId,omitempty"`
	AttemptID string    `json:"attemptId"`
	Method    string    `json:"method"`
	MFAMethod string    `json:"mfaMethod,omitempty"`
	At        time.Time `json:"at"`
}

type LoggedOut struct {
	UserID  string    `json:"userId"`
	TokenID uint64    `json:"tokenId"`
	At      time.Time `json:"at"`
}
