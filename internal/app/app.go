// Package app — верхний уровень сборки сервиса защиты кодов входа.
// Здесь связываются конфигурация, хранилище аккаунтов (bbolt), доменное ядро
// (Guard, реестр слушателей, оверрайды), пул MTProto-подключений,
// бот-нотификатор и CLI. Отсюда стартует жизненный цикл и обеспечивается
// корректный shutdown.
package app

import (
	"context"

	"telegram-otpguard/internal/adapters/botapi/notifier"
	"telegram-otpguard/internal/domain/accounts"
	"telegram-otpguard/internal/domain/otp"
	"telegram-otpguard/internal/infra/accountdb"
	"telegram-otpguard/internal/infra/config"
	"telegram-otpguard/internal/infra/logger"
	"telegram-otpguard/internal/infra/telegram/connpool"

	"github.com/go-faster/errors"
)

// App агрегирует зависимости сервиса и управляет их связью.
type App struct {
	mainCtx    context.Context    // Контекст жизненного цикла приложения.
	mainCancel context.CancelFunc // Инициирует отмену mainCtx.

	db        *accountdb.Bolt     // Хранилище аккаунтов и журнала аудита.
	overrides *otp.OverrideStore  // Временные послабления политики (TTL).
	guard     *otp.Guard          // Исполнитель политики и операций владельца.
	registry  *otp.Registry       // Реестр слушателей аккаунтов.
	pool      *connpool.Pool      // Пул MTProto-подключений.
	notif     *notifier.BotSender // Доставка уведомлений владельцам (Bot API).
	runner    *Runner             // Оркестратор жизненного цикла.
}

// NewApp создаёт пустой каркас приложения. Фактическая инициализация
// выполняется в Init().
func NewApp() *App {
	return &App{}
}

// Init собирает зависимости по загруженной конфигурации окружения.
func (a *App) Init(mainCtx context.Context, mainCancel context.CancelFunc) error {
	a.mainCtx = mainCtx
	a.mainCancel = mainCancel
	env := config.Env()

	db, err := accountdb.Open(env.AccountsDBFile, env.IdentityKeyBytes())
	if err != nil {
		return errors.Wrap(err, "open accounts db")
	}
	a.db = db

	a.notif = notifier.NewBotSender(env.BotToken, env.TestDC, env.ThrottleRPS)
	a.overrides = otp.NewOverrideStore(nil)

	resolver := accounts.NewResolver(db)
	a.guard = otp.NewGuard(db, resolver, a.overrides, a.notif)
	a.guard.Loc = config.AppLocation

	a.registry = otp.NewRegistry(a.guard, env.EventQueueCap)
	a.pool = connpool.New(connpool.Options{
		APIID:       env.APIID,
		APIHash:     env.APIHash,
		SessionDir:  env.SessionDir,
		ThrottleRPS: env.ThrottleRPS,
		TestDC:      env.TestDC,
	}, a.registry)

	logger.Info("otpguard initialized")
	return nil
}

// Run запускает Runner, который оркестрирует жизненный цикл и корректное
// завершение. Блокируется до остановки приложения.
func (a *App) Run() error {
	a.runner = NewRunner(a.mainCtx, a.mainCancel, a.db, a.overrides, a.guard, a.registry, a.pool)
	return a.runner.Run()
}
