package otp_test

import (
	"sync"
	"testing"
	"time"

	"telegram-otpguard/internal/domain/otp"
)

// fakeClock — управляемый источник времени для стора оверрайдов.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func TestOverrideExpiry(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
	store := otp.NewOverrideStore(clock.Now)
	store.Set(otp.OverrideTempPassthrough, 1, "acc", otp.OverrideTTL)

	if !store.IsLive(otp.OverrideTempPassthrough, 1, "acc") {
		t.Fatal("override must be live right after Set")
	}

	clock.Advance(4*time.Minute + 59*time.Second)
	if !store.IsLive(otp.OverrideTempPassthrough, 1, "acc") {
		t.Fatal("override must be live at T+4:59")
	}

	clock.Advance(time.Second)
	if !store.IsLive(otp.OverrideTempPassthrough, 1, "acc") {
		t.Fatal("override must still be live exactly at T+5:00")
	}

	clock.Advance(time.Second)
	if store.IsLive(otp.OverrideTempPassthrough, 1, "acc") {
		t.Fatal("override must be dead at T+5:01")
	}
}

func TestOverrideReplaceNotStack(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
	store := otp.NewOverrideStore(clock.Now)

	store.Set(otp.OverrideDestroyerPaused, 1, "acc", otp.OverrideTTL)
	clock.Advance(3 * time.Minute)
	// Повторная установка заменяет окно целиком, не добавляет к остатку.
	store.Set(otp.OverrideDestroyerPaused, 1, "acc", otp.OverrideTTL)

	clock.Advance(4 * time.Minute)
	if !store.IsLive(otp.OverrideDestroyerPaused, 1, "acc") {
		t.Fatal("override must be live 4 min after the second Set")
	}

	clock.Advance(2 * time.Minute)
	if store.IsLive(otp.OverrideDestroyerPaused, 1, "acc") {
		t.Fatal("override must be dead 6 min after the second Set")
	}
}

func TestOverrideKindsAreIndependent(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
	store := otp.NewOverrideStore(clock.Now)

	store.Set(otp.OverrideTempPassthrough, 1, "acc", otp.OverrideTTL)
	if store.IsLive(otp.OverrideDestroyerPaused, 1, "acc") {
		t.Fatal("pause override must not be affected by temp passthrough")
	}

	store.Set(otp.OverrideDestroyerPaused, 1, "acc", otp.OverrideTTL)
	store.Clear(otp.OverrideTempPassthrough, 1, "acc")
	if store.IsLive(otp.OverrideTempPassthrough, 1, "acc") {
		t.Fatal("cleared override must be dead")
	}
	if !store.IsLive(otp.OverrideDestroyerPaused, 1, "acc") {
		t.Fatal("other override kind must survive Clear")
	}
}

func TestOverrideClearAccount(t *testing.T) {
	t.Parallel()

	clock := &fakeClock{now: time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC)}
	store := otp.NewOverrideStore(clock.Now)

	store.Set(otp.OverrideTempPassthrough, 1, "a", otp.OverrideTTL)
	store.Set(otp.OverrideDestroyerPaused, 1, "a", otp.OverrideTTL)
	store.Set(otp.OverrideTempPassthrough, 1, "b", otp.OverrideTTL)

	store.ClearAccount(1, "a")

	if store.IsLive(otp.OverrideTempPassthrough, 1, "a") || store.IsLive(otp.OverrideDestroyerPaused, 1, "a") {
		t.Fatal("all overrides of the cleared account must be dead")
	}
	if !store.IsLive(otp.OverrideTempPassthrough, 1, "b") {
		t.Fatal("overrides of other accounts must survive ClearAccount")
	}
}
