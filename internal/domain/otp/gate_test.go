package otp_test

import (
	"context"
	"errors"
	"testing"

	"telegram-otpguard/internal/domain/accounts"
	"telegram-otpguard/internal/domain/otp"
	"telegram-otpguard/internal/infra/cryptox"
)

func TestToggleDestroyerEnableForcesForwardOff(t *testing.T) {
	t.Parallel()

	acc := destroyerAccount()
	acc.DestroyerEnabled = false
	acc.ForwardEnabled = true
	guard, store, _, _, _ := fixture(t, acc)

	if _, err := guard.ToggleDestroyer(context.Background(), testOwner, testAccount, true, ""); err != nil {
		t.Fatalf("ToggleDestroyer(enable) error: %v", err)
	}

	got, err := store.Get(context.Background(), testOwner, testAccount)
	if err != nil {
		t.Fatalf("get account: %v", err)
	}
	if !got.DestroyerEnabled || got.ForwardEnabled {
		t.Fatalf("destroyer=%v forward=%v, want destroyer on and forward off", got.DestroyerEnabled, got.ForwardEnabled)
	}
}

func TestToggleDestroyerDisableWrongPassword(t *testing.T) {
	t.Parallel()

	acc := destroyerAccount()
	hash, err := cryptox.HashPassword("secret123")
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	acc.DisableAuthHash = hash
	guard, store, _, _, _ := fixture(t, acc)

	_, err = guard.ToggleDestroyer(context.Background(), testOwner, testAccount, false, "wrong-password")
	if !errors.Is(err, otp.ErrInvalidPassword) {
		t.Fatalf("err = %v, want ErrInvalidPassword", err)
	}

	got, _ := store.Get(context.Background(), testOwner, testAccount)
	if !got.DestroyerEnabled {
		t.Fatal("failed disable must not mutate the account")
	}
	actions := store.auditActions(testOwner, testAccount)
	if len(actions) != 1 || actions[0] != accounts.ActionDestroyerDenied {
		t.Fatalf("audit = %#v, want exactly one destroyer_disable_denied", actions)
	}
}

func TestToggleDestroyerDisableRequiresPassword(t *testing.T) {
	t.Parallel()

	acc := destroyerAccount()
	hash, _ := cryptox.HashPassword("secret123")
	acc.DisableAuthHash = hash
	guard, store, _, _, _ := fixture(t, acc)

	if _, err := guard.ToggleDestroyer(context.Background(), testOwner, testAccount, false, ""); !errors.Is(err, otp.ErrPasswordRequired) {
		t.Fatalf("err = %v, want ErrPasswordRequired", err)
	}
	got, _ := store.Get(context.Background(), testOwner, testAccount)
	if !got.DestroyerEnabled {
		t.Fatal("destroyer must stay enabled without the password")
	}
}

func TestToggleDestroyerDisableWithPassword(t *testing.T) {
	t.Parallel()

	acc := destroyerAccount()
	hash, _ := cryptox.HashPassword("secret123")
	acc.DisableAuthHash = hash
	guard, store, _, _, overrides := fixture(t, acc)
	overrides.Set(otp.OverrideDestroyerPaused, testOwner, testAccount, otp.OverrideTTL)

	if _, err := guard.ToggleDestroyer(context.Background(), testOwner, testAccount, false, "secret123"); err != nil {
		t.Fatalf("ToggleDestroyer(disable) error: %v", err)
	}

	got, _ := store.Get(context.Background(), testOwner, testAccount)
	if got.DestroyerEnabled {
		t.Fatal("destroyer must be disabled with the correct password")
	}
	if overrides.IsLive(otp.OverrideDestroyerPaused, testOwner, testAccount) {
		t.Fatal("pause override must be cleared when destroyer is disabled")
	}
	actions := store.auditActions(testOwner, testAccount)
	if len(actions) != 1 || actions[0] != accounts.ActionDestroyerDisabled {
		t.Fatalf("audit = %#v", actions)
	}
}

func TestToggleForwardConflictsWithDestroyer(t *testing.T) {
	t.Parallel()

	guard, store, _, _, _ := fixture(t, destroyerAccount())

	_, err := guard.ToggleForward(context.Background(), testOwner, testAccount, true)
	if !errors.Is(err, otp.ErrForwardWithDestroyer) {
		t.Fatalf("err = %v, want ErrForwardWithDestroyer", err)
	}
	got, _ := store.Get(context.Background(), testOwner, testAccount)
	if got.ForwardEnabled {
		t.Fatal("rejected toggle must not mutate the account")
	}
}

func TestPauseRequiresActiveDestroyer(t *testing.T) {
	t.Parallel()

	acc := destroyerAccount()
	acc.DestroyerEnabled = false
	guard, _, _, _, _ := fixture(t, acc)

	if _, err := guard.PauseDestroyer(context.Background(), testOwner, testAccount, ""); !errors.Is(err, otp.ErrDestroyerDisabled) {
		t.Fatalf("err = %v, want ErrDestroyerDisabled", err)
	}
}

func TestPauseSetsOverrideAndNotifies(t *testing.T) {
	t.Parallel()

	guard, store, _, notif, overrides := fixture(t, destroyerAccount())

	if _, err := guard.PauseDestroyer(context.Background(), testOwner, testAccount, ""); err != nil {
		t.Fatalf("PauseDestroyer error: %v", err)
	}
	if !overrides.IsLive(otp.OverrideDestroyerPaused, testOwner, testAccount) {
		t.Fatal("pause override must be live after PauseDestroyer")
	}
	actions := store.auditActions(testOwner, testAccount)
	if len(actions) != 1 || actions[0] != accounts.ActionDestroyerPaused {
		t.Fatalf("audit = %#v", actions)
	}
	if texts := notif.texts(); len(texts) != 1 {
		t.Fatalf("owner must be notified about the pause, got %#v", texts)
	}
}

func TestTempPassthroughSetsOverride(t *testing.T) {
	t.Parallel()

	guard, store, _, _, overrides := fixture(t, destroyerAccount())

	if _, err := guard.EnableTempPassthrough(context.Background(), testOwner, testAccount, ""); err != nil {
		t.Fatalf("EnableTempPassthrough error: %v", err)
	}
	if !overrides.IsLive(otp.OverrideTempPassthrough, testOwner, testAccount) {
		t.Fatal("temp passthrough override must be live")
	}
	actions := store.auditActions(testOwner, testAccount)
	if len(actions) != 1 || actions[0] != accounts.ActionTempPassthrough {
		t.Fatalf("audit = %#v", actions)
	}
}

func TestSetDisablePassword(t *testing.T) {
	t.Parallel()

	guard, store, _, _, _ := fixture(t, destroyerAccount())
	ctx := context.Background()

	if _, err := guard.SetDisablePassword(ctx, testOwner, testAccount, "", "short"); !errors.Is(err, otp.ErrWeakPassword) {
		t.Fatalf("err = %v, want ErrWeakPassword", err)
	}

	if _, err := guard.SetDisablePassword(ctx, testOwner, testAccount, "", "secret123"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	got, _ := store.Get(ctx, testOwner, testAccount)
	if got.DisableAuthHash == "" || got.DisableAuthHash == "secret123" {
		t.Fatalf("password must be stored as a hash, got %q", got.DisableAuthHash)
	}

	// Смена требует текущего пароля.
	if _, err := guard.SetDisablePassword(ctx, testOwner, testAccount, "wrong", "another123"); !errors.Is(err, otp.ErrInvalidPassword) {
		t.Fatalf("err = %v, want ErrInvalidPassword", err)
	}
	if _, err := guard.SetDisablePassword(ctx, testOwner, testAccount, "secret123", "another123"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	want := []string{accounts.ActionDisablePasswordSet, accounts.ActionDisablePasswordChange}
	actions := store.auditActions(testOwner, testAccount)
	if len(actions) != len(want) || actions[0] != want[0] || actions[1] != want[1] {
		t.Fatalf("audit = %#v, want %#v", actions, want)
	}
}

func TestRemoveDisablePassword(t *testing.T) {
	t.Parallel()

	guard, store, _, _, _ := fixture(t, destroyerAccount())
	ctx := context.Background()

	if _, err := guard.RemoveDisablePassword(ctx, testOwner, testAccount, ""); !errors.Is(err, otp.ErrNoDisablePassword) {
		t.Fatalf("err = %v, want ErrNoDisablePassword", err)
	}

	if _, err := guard.SetDisablePassword(ctx, testOwner, testAccount, "", "secret123"); err != nil {
		t.Fatalf("set password: %v", err)
	}
	if _, err := guard.RemoveDisablePassword(ctx, testOwner, testAccount, "secret123"); err != nil {
		t.Fatalf("remove password: %v", err)
	}
	got, _ := store.Get(ctx, testOwner, testAccount)
	if got.DisableAuthHash != "" {
		t.Fatal("hash must be cleared after RemoveDisablePassword")
	}
}

func TestCreateAndRemoveAccount(t *testing.T) {
	t.Parallel()

	guard, store, _, _, overrides := fixture(t, nil)
	ctx := context.Background()

	acc, err := guard.CreateAccount(ctx, testOwner, testAccount, "Main", "+10000000001")
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if !acc.DestroyerEnabled || acc.ForwardEnabled {
		t.Fatal("new account must start with destroyer on and forward off")
	}
	if _, err = guard.CreateAccount(ctx, testOwner, testAccount, "", ""); err == nil {
		t.Fatal("duplicate account id must be rejected")
	}

	overrides.Set(otp.OverrideTempPassthrough, testOwner, testAccount, otp.OverrideTTL)
	if err = guard.RemoveAccount(ctx, testOwner, testAccount); err != nil {
		t.Fatalf("remove account: %v", err)
	}
	if _, err = store.Get(ctx, testOwner, testAccount); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after removal", err)
	}
	if overrides.IsLive(otp.OverrideTempPassthrough, testOwner, testAccount) {
		t.Fatal("overrides must be cleared with the account")
	}

	if err = guard.RemoveAccount(ctx, testOwner, "ghost"); !errors.Is(err, otp.ErrAccountNotFound) {
		t.Fatalf("err = %v, want ErrAccountNotFound", err)
	}
}
