package otp

// Файл registry.go — реестр слушателей аккаунтов. На каждый подключённый
// аккаунт реестр держит один воркер с ограниченной очередью событий:
// события одного аккаунта обрабатываются строго последовательно, аккаунты
// между собой — независимо. Переполненная очередь роняет событие с записью
// в лог, но не блокирует поставщика (MTProto-диспетчер).

import (
	"context"
	"fmt"
	"sync"

	"telegram-otpguard/internal/infra/logger"

	"go.uber.org/zap"
)

// ServiceSenderIDs — отправители, чьи сообщения считаются кандидатами на
// код входа: сервисный аккаунт Telegram и его тестовый двойник.
var ServiceSenderIDs = []int64{777000, 42777}

// IsServiceSender сообщает, входит ли отправитель в сервисный список.
func IsServiceSender(id int64) bool {
	for _, s := range ServiceSenderIDs {
		if id == s {
			return true
		}
	}
	return false
}

// listener — один зарегистрированный аккаунт: подключение, очередь и отмена воркера.
type listener struct {
	conn   Conn
	queue  chan Event
	cancel context.CancelFunc
}

// Registry управляет жизненным циклом слушателей.
type Registry struct {
	guard    *Guard
	queueCap int

	mu        sync.Mutex
	listeners map[string]*listener
	baseCtx   context.Context

	onceStart sync.Once
	wg        sync.WaitGroup
}

// NewRegistry создаёт реестр. queueCap — ёмкость очереди на аккаунт.
func NewRegistry(guard *Guard, queueCap int) *Registry {
	if queueCap <= 0 {
		queueCap = 16
	}
	return &Registry{
		guard:     guard,
		queueCap:  queueCap,
		listeners: make(map[string]*listener),
	}
}

func listenerKey(ownerID int64, accountID string) string {
	return fmt.Sprintf("%d:%s", ownerID, accountID)
}

// Start фиксирует базовый контекст воркеров. Повторные вызовы игнорируются.
func (r *Registry) Start(ctx context.Context) {
	r.onceStart.Do(func() {
		r.mu.Lock()
		r.baseCtx = ctx
		r.mu.Unlock()
	})
}

// Register добавляет слушателя для аккаунта. Возвращает false, если слушатель
// уже зарегистрирован или подключение не готово; повторная регистрация
// не порождает второго воркера.
func (r *Registry) Register(ownerID int64, accountID string, conn Conn) bool {
	if !conn.Live() {
		logger.Warn("registry: connection is not live, listener skipped",
			zap.Int64("owner_id", ownerID), zap.String("account_id", accountID))
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.baseCtx == nil {
		logger.Warn("registry: not started, listener skipped",
			zap.Int64("owner_id", ownerID), zap.String("account_id", accountID))
		return false
	}
	key := listenerKey(ownerID, accountID)
	if _, exists := r.listeners[key]; exists {
		logger.Debug("registry: listener already registered",
			zap.Int64("owner_id", ownerID), zap.String("account_id", accountID))
		return false
	}

	ctx, cancel := context.WithCancel(r.baseCtx)
	l := &listener{
		conn:   conn,
		queue:  make(chan Event, r.queueCap),
		cancel: cancel,
	}
	r.listeners[key] = l
	r.wg.Add(1)
	go r.worker(ctx, key, l)
	logger.Info("registry: listener registered",
		zap.Int64("owner_id", ownerID), zap.String("account_id", accountID))
	return true
}

// Deregister останавливает воркер аккаунта и снимает его оверрайды.
func (r *Registry) Deregister(ownerID int64, accountID string) {
	key := listenerKey(ownerID, accountID)
	r.mu.Lock()
	l, exists := r.listeners[key]
	if exists {
		delete(r.listeners, key)
	}
	r.mu.Unlock()
	if !exists {
		return
	}
	l.cancel()
	r.guard.Overrides().ClearAccount(ownerID, accountID)
	logger.Info("registry: listener deregistered",
		zap.Int64("owner_id", ownerID), zap.String("account_id", accountID))
}

// Enqueue ставит событие в очередь аккаунта. Незарегистрированный аккаунт и
// переполненная очередь роняют событие с записью в лог.
func (r *Registry) Enqueue(ev Event) {
	key := listenerKey(ev.OwnerID, ev.AccountID)
	r.mu.Lock()
	l, exists := r.listeners[key]
	r.mu.Unlock()
	if !exists {
		logger.Warn("registry: event for unregistered account dropped",
			zap.Int64("owner_id", ev.OwnerID), zap.String("account_id", ev.AccountID))
		return
	}
	select {
	case l.queue <- ev:
	default:
		logger.Warn("registry: event queue is full, event dropped",
			zap.Int64("owner_id", ev.OwnerID),
			zap.String("account_id", ev.AccountID),
			zap.Int("message_id", ev.MessageID))
	}
}

// Stop останавливает все воркеры и дожидается их завершения.
func (r *Registry) Stop() {
	r.mu.Lock()
	for key, l := range r.listeners {
		l.cancel()
		delete(r.listeners, key)
	}
	r.mu.Unlock()
	r.wg.Wait()
}

// worker последовательно обрабатывает события одного аккаунта.
func (r *Registry) worker(ctx context.Context, key string, l *listener) {
	defer r.wg.Done()
	for {
		select {
		case <-ctx.Done():
			logger.Debug("registry: worker stopped", zap.String("listener", key))
			return
		case ev := <-l.queue:
			r.guard.Process(ctx, l.conn, ev)
		}
	}
}
