package memory

import (
	"context"
	"testing"
)

func TestAcquireFailsWhileLeaseIsHeld(t *testing.T) {
	l := NewLock()
	ctx := context.Background()
	domain := "EXAMPLE.COM"

	token, err := l.Acquire(ctx, domain, 60)
	if err != nil || token == "" {
		t.Fatalf("expected the first acquire to succeed, token=%q err=%v", token, err)
	}

	second, err := l.Acquire(ctx, domain, 60)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if second != "" {
		t.Fatalf("expected a contended acquire to return an empty token, got %q", second)
	}
}

func TestReleaseOnlySucceedsForTheCurrentHolder(t *testing.T) {
	l := NewLock()
	ctx := context.Background()
	domain := "EXAMPLE.COM"

	token, err := l.Acquire(ctx, domain, 60)
	if err != nil || token == "" {
		t.Fatalf("Acquire: token=%q err=%v", token, err)
	}

	if err := l.Release(ctx, domain, "wrong-token"); err != nil {
		t.Fatalf("expected releasing with the wrong token not to error, got %v", err)
	}

	second, err := l.Acquire(ctx, domain, 60)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if second != "" {
		t.Fatal("expected the lease to still be held after a mismatched release")
	}

	if err := l.Release(ctx, domain, token); err != nil {
		t.Fatalf("Release: %v", err)
	}
	third, err := l.Acquire(ctx, domain, 60)
	if err != nil || third == "" {
		t.Fatalf("expected the lock to be acquirable after a correct release, token=%q err=%v", third, err)
	}
}

func TestAcquireAfterExpiryGrantsANewLease(t *testing.T) {
	l := NewLock()
	ctx := context.Background()
	domain := "EXAMPLE.COM"

	token, err := l.Acquire(ctx, domain, -1)
	if err != nil || token == "" {
		t.Fatalf("Acquire: token=%q err=%v", token, err)
	}

	next, err := l.Acquire(ctx, domain, 60)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	if next == "" {
		t.Fatal("expected an already-expired lease to allow a fresh acquire")
	}
}
