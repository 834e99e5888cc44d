package otp

// Файл guard.go — исполнитель политики над входящими сервисными сообщениями.
// Guard получает событие от слушателя аккаунта, классифицирует текст,
// разрешает запись аккаунта, вычисляет действие по таблице решений и
// исполняет его: инвалидация и удаление, пересылка владельцу или запись
// «проигнорировано». Каждое обработанное событие оставляет ровно одну
// запись в журнале аудита.
//
// Process не возвращает ошибок: обработка события не должна ронять
// слушателя, все сбои логируются и фиксируются в журнале.

import (
	"context"
	"fmt"
	"time"

	"telegram-otpguard/internal/domain/accounts"
	"telegram-otpguard/internal/infra/logger"

	"go.uber.org/zap"
)

// excerptLimit — длина выдержки текста сообщения для журнала аудита.
const excerptLimit = 50

// Conn — минимальный контракт MTProto-подключения аккаунта, нужный Guard.
// Реализация живёт в infra/telegram/connpool.
type Conn interface {
	// Live сообщает, авторизовано ли подключение и готово ли к вызовам API.
	Live() bool
	// InvalidateSignInCodes отзывает перечисленные коды входа на стороне
	// Telegram: код перестаёт действовать даже у того, кто его уже увидел.
	InvalidateSignInCodes(ctx context.Context, codes []string) error
	// DeleteMessages удаляет сообщения по id с отзывом у всех участников.
	DeleteMessages(ctx context.Context, ids ...int) error
}

// Notifier доставляет владельцу текстовые уведомления (Bot API).
type Notifier interface {
	Send(ctx context.Context, chatID int64, text string) error
}

// Event — одно входящее сервисное сообщение, уже отфильтрованное слушателем
// по допустимым отправителям (сервисные id Telegram).
type Event struct {
	OwnerID   int64
	AccountID string // привязка слушателя к записи хранилища
	MessageID int
	SenderID  int64
	Text      string

	// Идентификаторы подключённого аккаунта для резолвера (self-профиль).
	Name  string
	Phone string
}

// Guard связывает хранилище, резолвер, оверрайды и нотификатор.
type Guard struct {
	store     accounts.Store
	resolver  *accounts.Resolver
	overrides *OverrideStore
	notify    Notifier

	// Clock и Loc подменяются в тестах; нулевые значения означают
	// time.Now и time.Local.
	Clock func() time.Time
	Loc   *time.Location
}

// NewGuard собирает Guard поверх зависимостей.
func NewGuard(store accounts.Store, resolver *accounts.Resolver, overrides *OverrideStore, notify Notifier) *Guard {
	return &Guard{
		store:     store,
		resolver:  resolver,
		overrides: overrides,
		notify:    notify,
	}
}

func (g *Guard) now() time.Time {
	if g.Clock != nil {
		return g.Clock()
	}
	return time.Now()
}

func (g *Guard) location() *time.Location {
	if g.Loc != nil {
		return g.Loc
	}
	return time.Local
}

// Overrides отдаёт стор оверрайдов (нужен операциям управления и реестру).
func (g *Guard) Overrides() *OverrideStore {
	return g.overrides
}

// Process обрабатывает одно событие. Ошибки не возвращаются: сбой любой
// стадии логируется, слушатель продолжает работу.
func (g *Guard) Process(ctx context.Context, conn Conn, ev Event) {
	if !IsLoginCode(ev.Text) {
		logger.Debug("guard: not a login code message, skipped",
			zap.Int64("owner_id", ev.OwnerID), zap.Int("message_id", ev.MessageID))
		return
	}

	acc := g.resolver.Resolve(ctx, accounts.ResolveHint{
		OwnerID:   ev.OwnerID,
		AccountID: ev.AccountID,
		Name:      ev.Name,
		Phone:     ev.Phone,
	})
	if acc == nil {
		return
	}

	view := PolicyView{
		DestroyerEnabled: acc.DestroyerEnabled,
		ForwardEnabled:   acc.ForwardEnabled,
		TempPassthrough:  g.overrides.IsLive(OverrideTempPassthrough, acc.OwnerID, acc.ID),
		DestroyerPaused:  g.overrides.IsLive(OverrideDestroyerPaused, acc.OwnerID, acc.ID),
	}
	action := Decide(view)
	logger.Info("guard: login code message",
		zap.Int64("owner_id", acc.OwnerID),
		zap.String("account_id", acc.ID),
		zap.Int("message_id", ev.MessageID),
		zap.Stringer("action", action))

	switch action {
	case ActionDestroy:
		g.destroy(ctx, conn, acc, ev)
	case ActionForward:
		g.forward(ctx, conn, acc, ev, accounts.ActionOTPForwarded, "Login code forwarded", true)
	case ActionTempForward:
		g.forward(ctx, conn, acc, ev, accounts.ActionOTPTempForwarded, "Login code forwarded (temporary passthrough)", true)
	case ActionPausedForward:
		g.forward(ctx, conn, acc, ev, accounts.ActionOTPPausedForwarded, "Login code forwarded (destroyer paused)", false)
	case ActionIgnore:
		g.audit(ctx, acc, accounts.AuditEntry{
			Action:  accounts.ActionOTPIgnored,
			Code:    ExtractCode(ev.Text),
			Excerpt: Excerpt(ev.Text, excerptLimit),
		})
	}
}

// destroy инвалидирует коды и удаляет сообщение. Порядок важен: сперва коды
// перестают действовать, затем сообщение исчезает. Сбой инвалидации не
// отменяет удаления, но меняет запись аудита и текст уведомления.
func (g *Guard) destroy(ctx context.Context, conn Conn, acc *accounts.Account, ev Event) {
	codes := ExtractCodes(ev.Text)
	code := UnknownCode
	if len(codes) > 0 {
		code = codes[0]
	}

	var invalidateErr error
	if len(codes) > 0 {
		invalidateErr = conn.InvalidateSignInCodes(ctx, codes)
		if invalidateErr != nil {
			logger.Error("guard: invalidate sign-in codes failed",
				zap.Int64("owner_id", acc.OwnerID),
				zap.String("account_id", acc.ID),
				zap.Error(invalidateErr))
		}
	}

	if err := conn.DeleteMessages(ctx, ev.MessageID); err != nil {
		logger.Error("guard: delete message failed",
			zap.Int64("owner_id", acc.OwnerID),
			zap.String("account_id", acc.ID),
			zap.Int("message_id", ev.MessageID),
			zap.Error(err))
	}

	entry := accounts.AuditEntry{
		Action:  accounts.ActionOTPDestroyed,
		Code:    code,
		Excerpt: Excerpt(ev.Text, excerptLimit),
	}
	text := fmt.Sprintf("🛡 Login code %s intercepted and permanently invalidated at %s.",
		code, g.now().In(g.location()).Format("15:04:05 02.01.2006"))
	if invalidateErr != nil {
		entry.Action = accounts.ActionInvalidateError
		entry.Meta = map[string]string{"error": invalidateErr.Error()}
		text = fmt.Sprintf("⚠️ Login code %s: message deleted, but code invalidation failed. The code may still be usable.", code)
	}
	g.audit(ctx, acc, entry)
	g.send(ctx, acc.OwnerID, text)
}

// forward пересылает текст кода владельцу. Постоянная и разовая пересылка
// дополнительно удаляют исходное сообщение: живой код не должен остаться
// читаемым в сервисном чате. Пауза destroyer оставляет сообщение на месте.
// Сбой удаления не отменяет пересылку и запись аудита.
func (g *Guard) forward(ctx context.Context, conn Conn, acc *accounts.Account, ev Event, auditAction, header string, deleteOriginal bool) {
	if deleteOriginal {
		if err := conn.DeleteMessages(ctx, ev.MessageID); err != nil {
			logger.Error("guard: delete forwarded message failed",
				zap.Int64("owner_id", acc.OwnerID),
				zap.String("account_id", acc.ID),
				zap.Int("message_id", ev.MessageID),
				zap.Error(err))
		}
	}
	g.audit(ctx, acc, accounts.AuditEntry{
		Action:  auditAction,
		Code:    ExtractCode(ev.Text),
		Excerpt: Excerpt(ev.Text, excerptLimit),
	})
	g.send(ctx, acc.OwnerID, fmt.Sprintf("📨 %s:\n\n%s", header, ev.Text))
}

// audit дописывает запись журнала, проставляя время.
func (g *Guard) audit(ctx context.Context, acc *accounts.Account, entry accounts.AuditEntry) {
	entry.Timestamp = g.now()
	if err := g.store.AppendAudit(ctx, acc.OwnerID, acc.ID, entry); err != nil {
		logger.Error("guard: append audit failed",
			zap.Int64("owner_id", acc.OwnerID),
			zap.String("account_id", acc.ID),
			zap.String("action", entry.Action),
			zap.Error(err))
	}
}

// send доставляет уведомление владельцу; сбой доставки только логируется.
func (g *Guard) send(ctx context.Context, ownerID int64, text string) {
	if g.notify == nil {
		return
	}
	if err := g.notify.Send(ctx, ownerID, text); err != nil {
		logger.Warn("guard: owner notification failed",
			zap.Int64("owner_id", ownerID), zap.Error(err))
	}
}
