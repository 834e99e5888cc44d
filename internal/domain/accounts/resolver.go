package accounts

// Файл resolver.go — разрешение входящего события в запись аккаунта.
// Слушатель знает, от имени какого подключения пришло событие, но запись в
// хранилище может быть ещё не мигрирована на шифрование, переименована или
// привязана только по телефону. Поэтому поиск идёт цепочкой стратегий,
// останавливаясь на первом попадании:
//  1. точное попадание по живой привязке «аккаунт → подключение» (ключ записи);
//  2. по открытому имени;
//  3. по открытому телефону;
//  4. по зашифрованному индексу идентификаторов.
//
// Неразрешённое событие — не ошибка слушателя: оно отбрасывается с записью
// в лог, ничего не уничтожается и не пересылается.

import (
	"context"

	"telegram-otpguard/internal/infra/logger"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// ResolveHint — подсказки для поиска записи аккаунта, собранные слушателем.
// AccountID заполняется из привязки подключения; Name/Phone — из профиля
// самого подключённого аккаунта (self).
type ResolveHint struct {
	OwnerID   int64
	AccountID string
	Name      string
	Phone     string
}

// Resolver перебирает стратегии поиска поверх Store.
type Resolver struct {
	store Store
}

// NewResolver создаёт резолвер поверх переданного хранилища.
func NewResolver(store Store) *Resolver {
	return &Resolver{store: store}
}

// Resolve находит запись аккаунта по подсказкам. Возвращает nil без ошибки,
// если ни одна стратегия не дала результата (событие следует отбросить).
// Ошибки отдельных стратегий не прерывают цепочку: частично недоступное
// хранилище не должен ронять слушателя.
func (r *Resolver) Resolve(ctx context.Context, hint ResolveHint) *Account {
	// 1) Живая привязка: слушатель зарегистрирован с конкретным ключом записи.
	if hint.AccountID != "" {
		acc, err := r.store.Get(ctx, hint.OwnerID, hint.AccountID)
		if err == nil {
			return acc
		}
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("resolver: get by binding failed",
				zap.Int64("owner_id", hint.OwnerID), zap.String("account_id", hint.AccountID), zap.Error(err))
		}
	}

	// 2) Открытое имя (легаси-записи до миграции шифрования).
	if hint.Name != "" {
		if acc, err := r.store.FindByName(ctx, hint.OwnerID, hint.Name); err == nil {
			return acc
		}
	}

	// 3) Открытый телефон.
	if hint.Phone != "" {
		if acc, err := r.store.FindByPhone(ctx, hint.OwnerID, hint.Phone); err == nil {
			return acc
		}
	}

	// 4) Зашифрованный индекс: имя, затем телефон.
	for _, h := range []string{hint.Name, hint.Phone} {
		if h == "" {
			continue
		}
		if acc, err := r.store.FindByEncryptedIdentity(ctx, hint.OwnerID, h); err == nil {
			return acc
		}
	}

	logger.Debug("resolver: account not resolved, event dropped",
		zap.Int64("owner_id", hint.OwnerID), zap.String("account_id", hint.AccountID))
	return nil
}
