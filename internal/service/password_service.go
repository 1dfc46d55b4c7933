package service

import "identity/internal/domain"

type PasswordService interface {
	Hash(password string) (*domain.Password, error)
	Verify(password string, pw *domain.Password) (rehashNeeded bool, ok bool)
}
