package dto

type LoginRequest struct {
	EmailOrUsername string `json:"emailOrUsername"`
	Password        string `json:"password"`
}

type StepUpRequest struct {
	Method string `json:"method"`
	Code   string `json:"code"`
}

type OTPRequest struct {
	Email string `json:"email"`
}

type MagicLinkRequest struct {
	Email string `json:"email"`
}
