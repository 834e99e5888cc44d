package accountdb_test

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"telegram-otpguard/internal/domain/accounts"
	"telegram-otpguard/internal/infra/accountdb"
)

func openTestDB(t *testing.T, identityKey []byte) *accountdb.Bolt {
	t.Helper()
	db, err := accountdb.Open(filepath.Join(t.TempDir(), "accounts.bbolt"), identityKey)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func testAccount() *accounts.Account {
	return &accounts.Account{
		ID:               "main",
		OwnerID:          100,
		Name:             "Main",
		Phone:            "+10000000001",
		DestroyerEnabled: true,
		CreatedAt:        time.Date(2026, 8, 25, 12, 0, 0, 0, time.UTC),
	}
}

func TestBoltSaveGetDelete(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, nil)
	ctx := context.Background()

	if _, err := db.Get(ctx, 100, "main"); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for empty db", err)
	}

	if err := db.Save(ctx, testAccount()); err != nil {
		t.Fatalf("save: %v", err)
	}
	got, err := db.Get(ctx, 100, "main")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Main" || got.Phone != "+10000000001" || !got.DestroyerEnabled {
		t.Fatalf("got = %+v", got)
	}

	// Чужой владелец не видит запись.
	if _, err = db.Get(ctx, 200, "main"); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for another owner", err)
	}

	if err = db.Delete(ctx, 100, "main"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err = db.Get(ctx, 100, "main"); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound after delete", err)
	}
	if err = db.Delete(ctx, 100, "main"); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound for double delete", err)
	}
}

func TestBoltFindByNameAndPhone(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, nil)
	ctx := context.Background()
	if err := db.Save(ctx, testAccount()); err != nil {
		t.Fatalf("save: %v", err)
	}

	byName, err := db.FindByName(ctx, 100, "Main")
	if err != nil || byName.ID != "main" {
		t.Fatalf("FindByName = %+v, %v", byName, err)
	}
	byPhone, err := db.FindByPhone(ctx, 100, "+10000000001")
	if err != nil || byPhone.ID != "main" {
		t.Fatalf("FindByPhone = %+v, %v", byPhone, err)
	}
	if _, err = db.FindByName(ctx, 100, "Ghost"); !errors.Is(err, accounts.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}

func TestBoltListByOwner(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, nil)
	ctx := context.Background()

	first := testAccount()
	second := testAccount()
	second.ID = "backup"
	foreign := testAccount()
	foreign.OwnerID = 200

	for _, acc := range []*accounts.Account{first, second, foreign} {
		if err := db.Save(ctx, acc); err != nil {
			t.Fatalf("save: %v", err)
		}
	}

	mine, err := db.ListByOwner(ctx, 100)
	if err != nil {
		t.Fatalf("list by owner: %v", err)
	}
	if len(mine) != 2 {
		t.Fatalf("ListByOwner = %d accounts, want 2", len(mine))
	}
	all, err := db.ListAll(ctx)
	if err != nil {
		t.Fatalf("list all: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("ListAll = %d accounts, want 3", len(all))
	}
}

func TestBoltAuditAppendOnlyOrder(t *testing.T) {
	t.Parallel()

	db := openTestDB(t, nil)
	ctx := context.Background()
	if err := db.Save(ctx, testAccount()); err != nil {
		t.Fatalf("save: %v", err)
	}

	actions := []string{
		accounts.ActionDestroyerEnabled,
		accounts.ActionOTPDestroyed,
		accounts.ActionDestroyerDisabled,
	}
	for _, action := range actions {
		if err := db.AppendAudit(ctx, 100, "main", accounts.AuditEntry{Action: action}); err != nil {
			t.Fatalf("append audit: %v", err)
		}
	}

	entries, err := db.AuditLog(ctx, 100, "main")
	if err != nil {
		t.Fatalf("audit log: %v", err)
	}
	if len(entries) != len(actions) {
		t.Fatalf("audit log = %d entries, want %d", len(entries), len(actions))
	}
	for i, entry := range entries {
		if entry.Action != actions[i] {
			t.Fatalf("entry %d = %q, want %q", i, entry.Action, actions[i])
		}
		if entry.Seq != uint64(i+1) {
			t.Fatalf("entry %d seq = %d, want %d", i, entry.Seq, i+1)
		}
	}

	// Журнал переживает удаление записи аккаунта.
	if err = db.Delete(ctx, 100, "main"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	entries, err = db.AuditLog(ctx, 100, "main")
	if err != nil || len(entries) != len(actions) {
		t.Fatalf("audit after delete = %d entries, %v", len(entries), err)
	}
}

func TestBoltIdentityEncryption(t *testing.T) {
	t.Parallel()

	key := bytes.Repeat([]byte{0x42}, 32)
	path := filepath.Join(t.TempDir(), "accounts.bbolt")
	ctx := context.Background()

	db, err := accountdb.Open(path, key)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err = db.Save(ctx, testAccount()); err != nil {
		t.Fatalf("save: %v", err)
	}

	// Чтение с ключом прозрачно расшифровывает идентификаторы.
	got, err := db.Get(ctx, 100, "main")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.Name != "Main" || got.Phone != "+10000000001" {
		t.Fatalf("decrypted identity = %q/%q", got.Name, got.Phone)
	}
	if len(got.NameEnc) == 0 || len(got.PhoneEnc) == 0 {
		t.Fatal("record must carry encrypted identity fields")
	}

	sealed, err := db.FindByEncryptedIdentity(ctx, 100, "Main")
	if err != nil || sealed.ID != "main" {
		t.Fatalf("FindByEncryptedIdentity = %+v, %v", sealed, err)
	}
	if err = db.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	// Без ключа открытые поля пусты: на диске только шифртекст.
	plain, err := accountdb.Open(path, nil)
	if err != nil {
		t.Fatalf("reopen db: %v", err)
	}
	defer func() { _ = plain.Close() }()
	raw, err := plain.Get(ctx, 100, "main")
	if err != nil {
		t.Fatalf("get without key: %v", err)
	}
	if raw.Name != "" || raw.Phone != "" {
		t.Fatalf("identity stored in plaintext: %q/%q", raw.Name, raw.Phone)
	}
}
