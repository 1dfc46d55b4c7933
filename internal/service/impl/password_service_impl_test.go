package impl_test

import (
	"testing"

	"identity/internal/service/impl"
)

func TestPasswordHashVerifyRoundTrip(t *testing.T) {
	svc := impl.NewPasswordServiceArgon2id()

	pw, err := svc.Hash("correct horse battery staple")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	if pw.Algo != "argon2id" || len(pw.Hash) != 32 || len(pw.Salt) != 16 {
		t.Fatalf("unexpected password row: algo=%s hash=%d salt=%d", pw.Algo, len(pw.Hash), len(pw.Salt))
	}

	rehash, ok := svc.Verify("correct horse battery staple", pw)
	if !ok {
		t.Fatalf("correct password rejected")
	}
	if rehash {
		t.Fatalf("fresh hash should not need a rehash")
	}

	if _, ok := svc.Verify("wrong password", pw); ok {
		t.Fatalf("wrong password accepted")
	}
}

func TestPasswordHashesAreSalted(t *testing.T) {
	svc := impl.NewPasswordServiceArgon2id()

	a, err := svc.Hash("same input")
	if err != nil {
		t.Fatalf("hash a: %v", err)
	}
	b, err := svc.Hash("same input")
	if err != nil {
		t.Fatalf("hash b: %v", err)
	}
	if string(a.Hash) == string(b.Hash) {
		t.Fatalf("two hashes of the same input must differ")
	}
}

func TestPasswordEmptyRejected(t *testing.T) {
	svc := impl.NewPasswordServiceArgon2id()
	if _, err := svc.Hash(""); err == nil {
		t.Fatalf("empty password must not hash")
	}
}

func TestPasswordUnknownAlgoNeedsRehash(t *testing.T) {
	svc := impl.NewPasswordServiceArgon2id()

	pw, err := svc.Hash("pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	pw.Algo = "bcrypt"
	rehash, ok := svc.Verify("pass", pw)
	if ok {
		t.Fatalf("foreign algorithm must not verify here")
	}
	if !rehash {
		t.Fatalf("foreign algorithm should be flagged for rehash")
	}
}

func TestPasswordOutdatedVersionNeedsRehash(t *testing.T) {
	svc := impl.NewPasswordServiceArgon2id()

	pw, err := svc.Hash("pass")
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	pw.Ver = 0
	rehash, ok := svc.Verify("pass", pw)
	if !ok {
		t.Fatalf("old-version hash should still verify")
	}
	if !rehash {
		t.Fatalf("old-version hash should request a rehash")
	}
}
