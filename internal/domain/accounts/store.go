package accounts

// Файл store.go описывает контракт хранилища аккаунтов и журнала аудита.
// Реализация живёт в internal/infra/accountdb (bbolt); доменный код и тесты
// работают только через этот интерфейс.

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrNotFound возвращается хранилищем, когда аккаунт не существует
// (или принадлежит другому владельцу — различие наружу не раскрывается).
var ErrNotFound = errors.New("account not found")

// Store — контракт персистентного слоя.
//
// Семантика поиска: Get — точное попадание по ключу; FindByName/FindByPhone
// сверяют открытые поля; FindByEncryptedIdentity расшифровывает
// зашифрованный индекс и сверяет с подсказкой. Разделение на три метода
// намеренное: резолвер событий перебирает стратегии по порядку и
// останавливается на первом попадании.
type Store interface {
	Get(ctx context.Context, ownerID int64, accountID string) (*Account, error)
	FindByName(ctx context.Context, ownerID int64, name string) (*Account, error)
	FindByPhone(ctx context.Context, ownerID int64, phone string) (*Account, error)
	FindByEncryptedIdentity(ctx context.Context, ownerID int64, hint string) (*Account, error)

	ListByOwner(ctx context.Context, ownerID int64) ([]*Account, error)
	// ListAll перечисляет аккаунты всех владельцев (используется при старте,
	// чтобы поднять слушателей для каждой записи).
	ListAll(ctx context.Context) ([]*Account, error)

	Save(ctx context.Context, acc *Account) error
	Delete(ctx context.Context, ownerID int64, accountID string) error

	// AppendAudit дописывает одну запись в журнал аккаунта. Журнал строго
	// append-only: ни одна запись не редактируется и не удаляется.
	AppendAudit(ctx context.Context, ownerID int64, accountID string, entry AuditEntry) error
	AuditLog(ctx context.Context, ownerID int64, accountID string) ([]AuditEntry, error)
}
