package challenge_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"identity/internal/challenge"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func testStore(t *testing.T) (*challenge.Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return challenge.NewStore(client), mr
}

func TestPullIsSingleUse(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, "wan:login", "alice@example.com", []byte("challenge-1"), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.Pull(ctx, "wan:login", "alice@example.com")
	if err != nil {
		t.Fatalf("first pull: %v", err)
	}
	if string(got) != "challenge-1" {
		t.Fatalf("unexpected payload %q", got)
	}

	if _, err := st.Pull(ctx, "wan:login", "alice@example.com"); !errors.Is(err, challenge.ErrNotFound) {
		t.Fatalf("second pull: expected ErrNotFound, got %v", err)
	}
}

func TestPullAfterTTL(t *testing.T) {
	st, mr := testStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, "mlink", "jti-1", []byte("payload"), 5*time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(6 * time.Minute)

	if _, err := st.Pull(ctx, "mlink", "jti-1"); !errors.Is(err, challenge.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after expiry, got %v", err)
	}
}

func TestScopesDoNotCollide(t *testing.T) {
	st, _ := testStore(t)
	ctx := context.Background()

	if err := st.Save(ctx, "wan:reg", "key", []byte("reg"), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := st.Save(ctx, "wan:login", "key", []byte("login"), time.Minute); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, err := st.Pull(ctx, "wan:reg", "key")
	if err != nil || string(got) != "reg" {
		t.Fatalf("scope wan:reg: got %q err %v", got, err)
	}
	got, err = st.Pull(ctx, "wan:login", "key")
	if err != nil || string(got) != "login" {
		t.Fatalf("scope wan:login: got %q err %v", got, err)
	}
}

func TestBackendUnavailable(t *testing.T) {
	st, mr := testStore(t)
	ctx := context.Background()

	mr.Close()

	if err := st.Save(ctx, "mlink", "jti", []byte("x"), time.Minute); !errors.Is(err, challenge.ErrBackend) {
		t.Fatalf("expected ErrBackend from save, got %v", err)
	}
	if _, err := st.Pull(ctx, "mlink", "jti"); !errors.Is(err, challenge.ErrBackend) {
		t.Fatalf("expected ErrBackend from pull, got %v", err)
	}
}
