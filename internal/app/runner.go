// Файл runner.go — точка оркестрации жизненного цикла: линейный запуск
// сервисов в правильном порядке, восстановление подключений сохранённых
// аккаунтов и корректный graceful shutdown в обратном порядке. Бизнес-цель:
// после рестарта процесса все защищённые аккаунты снова под наблюдением без
// участия владельца (сессии лежат на диске). Остановка гасит слушателей
// best-effort: события, оставшиеся в очередях, отбрасываются.
package app

import (
	"context"

	"telegram-otpguard/internal/adapters/cli"
	"telegram-otpguard/internal/domain/otp"
	"telegram-otpguard/internal/infra/accountdb"
	"telegram-otpguard/internal/infra/config"
	"telegram-otpguard/internal/infra/logger"
	"telegram-otpguard/internal/infra/telegram/connpool"

	"go.uber.org/zap"
)

// Runner инкапсулирует сценарий запуска и остановки сервиса.
type Runner struct {
	mainCtx    context.Context
	mainCancel context.CancelFunc

	db         *accountdb.Bolt
	overrides  *otp.OverrideStore
	guard      *otp.Guard
	registry   *otp.Registry
	pool       *connpool.Pool
	cliService *cli.Service
}

// NewRunner подготавливает Runner с переданными зависимостями.
func NewRunner(
	mainCtx context.Context,
	mainCancel context.CancelFunc,
	db *accountdb.Bolt,
	overrides *otp.OverrideStore,
	guard *otp.Guard,
	registry *otp.Registry,
	pool *connpool.Pool,
) *Runner {
	return &Runner{
		mainCtx:    mainCtx,
		mainCancel: mainCancel,
		db:         db,
		overrides:  overrides,
		guard:      guard,
		registry:   registry,
		pool:       pool,
	}
}

// Run — главный цикл сервиса: запуск узлов, восстановление подключений и
// блокировка до сигнала завершения.
func (r *Runner) Run() error {
	logger.Info("otpguard running...")

	r.startAllServices(r.mainCtx)
	r.reconnectStoredAccounts(r.mainCtx)

	<-r.mainCtx.Done()
	logger.Debug("Shutdown signal received, stopping runner...")
	r.stopAllServices()
	return nil
}

func (r *Runner) startAllServices(ctx context.Context) {
	// overrides
	logger.Debug("starting service overrides")
	r.overrides.Start(ctx)
	logger.Debug("service overrides started")

	// listeners registry
	logger.Debug("starting service registry")
	r.registry.Start(ctx)
	logger.Debug("service registry started")

	// connection pool
	logger.Debug("starting service connpool")
	r.pool.Start(ctx)
	logger.Debug("service connpool started")

	// cli
	logger.Debug("starting service cli")
	r.cliService = cli.NewService(r.guard, r.pool, r.db, config.Env().OwnerUID, r.mainCancel)
	r.cliService.Start(ctx)
	logger.Debug("service cli started")
}

func (r *Runner) stopAllServices() {
	// Останавливаем в обратном порядке.

	// cli
	logger.Debug("stopping service cli")
	if r.cliService != nil {
		r.cliService.Stop()
	}
	logger.Debug("service cli stopped")

	// connection pool
	logger.Debug("stopping service connpool")
	r.pool.Stop()
	logger.Debug("service connpool stopped")

	// listeners registry
	logger.Debug("stopping service registry")
	r.registry.Stop()
	logger.Debug("service registry stopped")

	// overrides
	logger.Debug("stopping service overrides")
	r.overrides.Stop()
	logger.Debug("service overrides stopped")

	// accounts db
	logger.Debug("closing accounts db")
	if err := r.db.Close(); err != nil {
		logger.Errorf("close accounts db: %v", err)
	}
	logger.Debug("accounts db closed")
}

// reconnectStoredAccounts поднимает подключения всех сохранённых аккаунтов.
// Сессии лежат на диске, поэтому логин обычно проходит без интерактива;
// аккаунт с мёртвой сессией пропускается с ошибкой в логе и ждёт повторного
// add от владельца.
func (r *Runner) reconnectStoredAccounts(ctx context.Context) {
	accs, err := r.db.ListAll(ctx)
	if err != nil {
		logger.Errorf("list stored accounts: %v", err)
		return
	}
	for _, acc := range accs {
		if ctx.Err() != nil {
			return
		}
		if err := r.pool.Connect(acc, acc.Phone); err != nil {
			logger.Error("reconnect stored account failed",
				zap.Int64("owner_id", acc.OwnerID),
				zap.String("account_id", acc.ID),
				zap.Error(err))
			continue
		}
		logger.Info("stored account reconnected",
			zap.Int64("owner_id", acc.OwnerID),
			zap.String("account_id", acc.ID))
	}
	logger.Infof("reconnect complete: %d account(s) processed", len(accs))
}
