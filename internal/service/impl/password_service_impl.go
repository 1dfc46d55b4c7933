package impl

import (
	"crypto/rand"
	"crypto/subtle"
	"encoding/json"
	"errors"

	"identity/internal/domain"

	"golang.org/x/crypto/argon2"
)

var errEmptyPassword = errors.New("empty password")

type argon2Params struct {
	// Stored alongside the hash so verification uses the original cost.
	Time    uint32 `json:"t"` // iterations
	Memory  uint32 `json:"m"` // KiB
	Threads uint8  `json:"p"` // parallelism
	KeyLen  uint32 `json:"k"` // bytes
	SaltLen uint32 `json:"s"` // bytes
}

type PasswordServiceImpl struct {
	currentVer int // bump when the policy changes
	cur        argon2Params
	algoName   string
}

func NewPasswordServiceArgon2id() *PasswordServiceImpl {
	return &PasswordServiceImpl{
		currentVer: 1,
		algoName:   "argon2id",
		cur: argon2Params{
			Time:    3,
			Memory:  64 * 1024, // 64 MiB
			Threads: 1,
			KeyLen:  32,
			SaltLen: 16,
		},
	}
}

// Hash derives a new password row ready to be appended to the user's
// history; the caller fills UserID.
func (p *PasswordServiceImpl) Hash(password string) (*domain.Password, error) {
	if password == "" {
		return nil, errEmptyPassword
	}
	salt := make([]byte, p.cur.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, err
	}
	hash := argon2.IDKey([]byte(password), salt, p.cur.Time, p.cur.Memory, p.cur.Threads, p.cur.KeyLen)
	paramsJSON, err := json.Marshal(p.cur)
	if err != nil {
		return nil, err
	}
	return &domain.Password{
		Algo:       p.algoName,
		Hash:       hash,
		Salt:       salt,
		ParamsJSON: paramsJSON,
		Ver:        p.currentVer,
	}, nil
}

func (p *PasswordServiceImpl) Verify(password string, pw *domain.Password) (rehashNeeded bool, ok bool) {
	if pw.Algo != p.algoName {
		return true, false
	}
	var stored argon2Params
	if err := json.Unmarshal(pw.ParamsJSON, &stored); err != nil {
		return true, false
	}
	calculated := argon2.IDKey([]byte(password), pw.Salt, stored.Time, stored.Memory, stored.Threads, stored.KeyLen)
	ok = subtle.ConstantTimeCompare(calculated, pw.Hash) == 1

	rehashNeeded = ok && (pw.Ver != p.currentVer || stored != p.cur)
	return rehashNeeded, ok
}
