package connpool

// Файл conn.go — одно MTProto-подключение управляемого аккаунта.
// Conn оборачивает gotd-клиент в узкий интерфейс, который нужен доменному
// коду: признак готовности, отзыв кодов входа и удаление сообщений.

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/go-faster/errors"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/tg"
)

// Conn — живое подключение одного аккаунта.
type Conn struct {
	ownerID   int64
	accountID string

	client *telegram.Client
	api    *tg.Client

	live   atomic.Bool
	cancel context.CancelFunc

	// Профиль подключённого аккаунта (self), заполняется после логина.
	profileMu sync.RWMutex
	name      string
	phone     string
}

// Live сообщает, авторизовано ли подключение и готов ли API к вызовам.
func (c *Conn) Live() bool {
	return c.live.Load()
}

// setProfile сохраняет имя и телефон self-профиля.
func (c *Conn) setProfile(name, phone string) {
	c.profileMu.Lock()
	c.name, c.phone = name, phone
	c.profileMu.Unlock()
}

// Profile возвращает имя и телефон self-профиля.
func (c *Conn) Profile() (name, phone string) {
	c.profileMu.RLock()
	defer c.profileMu.RUnlock()
	return c.name, c.phone
}

// InvalidateSignInCodes отзывает коды входа на стороне Telegram. После отзыва
// код перестаёт действовать, даже если его уже успели увидеть.
func (c *Conn) InvalidateSignInCodes(ctx context.Context, codes []string) error {
	ok, err := c.api.AccountInvalidateSignInCodes(ctx, codes)
	if err != nil {
		return errors.Wrap(err, "account.invalidateSignInCodes")
	}
	if !ok {
		return errors.New("account.invalidateSignInCodes: not confirmed")
	}
	return nil
}

// DeleteMessages удаляет сообщения по id с отзывом у всех участников диалога.
func (c *Conn) DeleteMessages(ctx context.Context, ids ...int) error {
	_, err := c.api.MessagesDeleteMessages(ctx, &tg.MessagesDeleteMessagesRequest{
		Revoke: true,
		ID:     ids,
	})
	if err != nil {
		return errors.Wrap(err, "messages.deleteMessages")
	}
	return nil
}
