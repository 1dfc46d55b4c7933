package service

import "identity/internal/domain"

// VerifierResult is the common success value of every credential
// verifier: the authenticated user and how they proved it.
type VerifierResult struct {
	User   *domain.User
	Email  string
	Method domain.LoginMethod
}

// ClientInfo carries the request metadata recorded on login attempts.
type ClientInfo struct {
	IP        string
	UserAgent string
}
