package otp

// Файл overrides.go — процесс-локальное хранилище временных послаблений
// политики. Оверрайд живёт ровно OverrideTTL с момента установки; повторная
// установка заменяет срок, а не продлевает и не складывает окна. Истечение
// проверяется лениво при каждом чтении, фоновая уборка лишь подчищает карту
// от мёртвых записей, чтобы она не росла бесконечно.
//
// Оверрайды намеренно не персистентны: после рестарта процесса защита
// возвращается к статической политике аккаунта.

import (
	"context"
	"sync"
	"time"

	"telegram-otpguard/internal/infra/logger"

	"go.uber.org/zap"
)

// OverrideTTL — время жизни временного послабления.
const OverrideTTL = 5 * time.Minute

// sweepInterval — период фоновой уборки истёкших записей.
const sweepInterval = time.Minute

// OverrideKind различает виды временных послаблений.
type OverrideKind int

const (
	// OverrideTempPassthrough — окно разовой пересылки кода владельцу.
	OverrideTempPassthrough OverrideKind = iota
	// OverrideDestroyerPaused — пауза destroyer: коды пересылаются, не уничтожаются.
	OverrideDestroyerPaused
)

func (k OverrideKind) String() string {
	switch k {
	case OverrideTempPassthrough:
		return "temp_passthrough"
	case OverrideDestroyerPaused:
		return "destroyer_paused"
	default:
		return "unknown"
	}
}

// overrideKey адресует оверрайд: вид + владелец + аккаунт.
type overrideKey struct {
	kind      OverrideKind
	ownerID   int64
	accountID string
}

// OverrideStore — потокобезопасная карта живых оверрайдов с TTL.
type OverrideStore struct {
	mu      sync.Mutex
	entries map[overrideKey]time.Time // ключ -> момент истечения

	clock func() time.Time

	onceStart sync.Once
	onceStop  sync.Once
	stopCh    chan struct{}
	wg        sync.WaitGroup
}

// NewOverrideStore создаёт пустое хранилище оверрайдов. clock позволяет
// подменить источник времени в тестах; nil означает time.Now.
func NewOverrideStore(clock func() time.Time) *OverrideStore {
	if clock == nil {
		clock = time.Now
	}
	return &OverrideStore{
		entries: make(map[overrideKey]time.Time),
		clock:   clock,
		stopCh:  make(chan struct{}),
	}
}

// Set устанавливает оверрайд на ttl от текущего момента. Существующая запись
// того же вида заменяется: окна не складываются.
func (s *OverrideStore) Set(kind OverrideKind, ownerID int64, accountID string, ttl time.Duration) {
	expiry := s.clock().Add(ttl)
	s.mu.Lock()
	s.entries[overrideKey{kind, ownerID, accountID}] = expiry
	s.mu.Unlock()
	logger.Debug("override set",
		zap.Stringer("kind", kind),
		zap.Int64("owner_id", ownerID),
		zap.String("account_id", accountID),
		zap.Time("expires_at", expiry))
}

// IsLive сообщает, жив ли оверрайд. Запись жива до момента истечения
// включительно; истёкшая запись удаляется на месте.
func (s *OverrideStore) IsLive(kind OverrideKind, ownerID int64, accountID string) bool {
	now := s.clock()
	key := overrideKey{kind, ownerID, accountID}
	s.mu.Lock()
	defer s.mu.Unlock()
	expiry, ok := s.entries[key]
	if !ok {
		return false
	}
	if now.After(expiry) {
		delete(s.entries, key)
		return false
	}
	return true
}

// Clear снимает один оверрайд досрочно.
func (s *OverrideStore) Clear(kind OverrideKind, ownerID int64, accountID string) {
	s.mu.Lock()
	delete(s.entries, overrideKey{kind, ownerID, accountID})
	s.mu.Unlock()
}

// ClearAccount снимает все оверрайды аккаунта (например, при его удалении).
func (s *OverrideStore) ClearAccount(ownerID int64, accountID string) {
	s.mu.Lock()
	for key := range s.entries {
		if key.ownerID == ownerID && key.accountID == accountID {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}

// Start запускает фоновую уборку истёкших записей. Повторные вызовы
// игнорируются.
func (s *OverrideStore) Start(ctx context.Context) {
	s.onceStart.Do(func() {
		s.wg.Add(1)
		go s.sweepLoop(ctx)
	})
}

// Stop останавливает фоновую уборку и дожидается завершения горутины.
func (s *OverrideStore) Stop() {
	s.onceStop.Do(func() {
		close(s.stopCh)
	})
	s.wg.Wait()
}

func (s *OverrideStore) sweepLoop(ctx context.Context) {
	defer s.wg.Done()
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.sweep()
		}
	}
}

// sweep удаляет все истёкшие записи.
func (s *OverrideStore) sweep() {
	now := s.clock()
	s.mu.Lock()
	for key, expiry := range s.entries {
		if now.After(expiry) {
			delete(s.entries, key)
		}
	}
	s.mu.Unlock()
}
