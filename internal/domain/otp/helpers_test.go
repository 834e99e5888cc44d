package otp_test

// Общие фейки для тестов пакета otp: хранилище в памяти, подключение и
// нотификатор с записью вызовов.

import (
	"context"
	"fmt"
	"sync"

	"telegram-otpguard/internal/domain/accounts"
)

// memStore — accounts.Store в памяти.
type memStore struct {
	mu    sync.Mutex
	accs  map[string]*accounts.Account
	audit map[string][]accounts.AuditEntry
	seq   map[string]uint64
}

func newMemStore() *memStore {
	return &memStore{
		accs:  make(map[string]*accounts.Account),
		audit: make(map[string][]accounts.AuditEntry),
		seq:   make(map[string]uint64),
	}
}

func memKey(ownerID int64, accountID string) string {
	return fmt.Sprintf("%d/%s", ownerID, accountID)
}

func (s *memStore) Get(_ context.Context, ownerID int64, accountID string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	acc, ok := s.accs[memKey(ownerID, accountID)]
	if !ok {
		return nil, accounts.ErrNotFound
	}
	return acc.Clone(), nil
}

func (s *memStore) FindByName(_ context.Context, ownerID int64, name string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accs {
		if acc.OwnerID == ownerID && acc.Name != "" && acc.Name == name {
			return acc.Clone(), nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (s *memStore) FindByPhone(_ context.Context, ownerID int64, phone string) (*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, acc := range s.accs {
		if acc.OwnerID == ownerID && acc.Phone != "" && acc.Phone == phone {
			return acc.Clone(), nil
		}
	}
	return nil, accounts.ErrNotFound
}

func (s *memStore) FindByEncryptedIdentity(_ context.Context, _ int64, _ string) (*accounts.Account, error) {
	return nil, accounts.ErrNotFound
}

func (s *memStore) ListByOwner(_ context.Context, ownerID int64) ([]*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*accounts.Account
	for _, acc := range s.accs {
		if acc.OwnerID == ownerID {
			result = append(result, acc.Clone())
		}
	}
	return result, nil
}

func (s *memStore) ListAll(_ context.Context) ([]*accounts.Account, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var result []*accounts.Account
	for _, acc := range s.accs {
		result = append(result, acc.Clone())
	}
	return result, nil
}

func (s *memStore) Save(_ context.Context, acc *accounts.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.accs[memKey(acc.OwnerID, acc.ID)] = acc.Clone()
	return nil
}

func (s *memStore) Delete(_ context.Context, ownerID int64, accountID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(ownerID, accountID)
	if _, ok := s.accs[key]; !ok {
		return accounts.ErrNotFound
	}
	delete(s.accs, key)
	return nil
}

func (s *memStore) AppendAudit(_ context.Context, ownerID int64, accountID string, entry accounts.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := memKey(ownerID, accountID)
	s.seq[key]++
	entry.Seq = s.seq[key]
	s.audit[key] = append(s.audit[key], entry)
	return nil
}

func (s *memStore) AuditLog(_ context.Context, ownerID int64, accountID string) ([]accounts.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	entries := s.audit[memKey(ownerID, accountID)]
	result := make([]accounts.AuditEntry, len(entries))
	copy(result, entries)
	return result, nil
}

// auditActions возвращает имена действий журнала по порядку.
func (s *memStore) auditActions(ownerID int64, accountID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var names []string
	for _, e := range s.audit[memKey(ownerID, accountID)] {
		names = append(names, e.Action)
	}
	return names
}

// fakeConn — otp.Conn с записью вызовов.
type fakeConn struct {
	mu          sync.Mutex
	liveVal     bool
	invalidated [][]string
	deleted     [][]int

	invalidateErr error
	deleteErr     error
}

func (c *fakeConn) Live() bool { return c.liveVal }

func (c *fakeConn) InvalidateSignInCodes(_ context.Context, codes []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.invalidated = append(c.invalidated, append([]string(nil), codes...))
	return c.invalidateErr
}

func (c *fakeConn) DeleteMessages(_ context.Context, ids ...int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.deleted = append(c.deleted, append([]int(nil), ids...))
	return c.deleteErr
}

// fakeNotifier — otp.Notifier с записью отправленных сообщений.
type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNote
}

type sentNote struct {
	chatID int64
	text   string
}

func (n *fakeNotifier) Send(_ context.Context, chatID int64, text string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNote{chatID: chatID, text: text})
	return nil
}

func (n *fakeNotifier) texts() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	var result []string
	for _, s := range n.sent {
		result = append(result, s.text)
	}
	return result
}
