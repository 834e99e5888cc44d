// Package connpool — пул MTProto-подключений управляемых аккаунтов.
// На каждый аккаунт поднимается отдельный gotd-клиент со своим файлом сессии,
// диспетчером апдейтов и middleware-цепочкой (FLOOD_WAIT + троттлинг).
// Диспетчер фильтрует входящие сообщения по сервисным отправителям Telegram
// и передаёт кандидатов в реестр слушателей; вся дальнейшая обработка идёт
// в доменном слое.
//
// Упавший клиент перезапускается пулом с фиксированной паузой до отмены
// контекста аккаунта; внутренние сетевые обрывы gotd чинит сам.
package connpool

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"telegram-otpguard/internal/domain/accounts"
	"telegram-otpguard/internal/domain/otp"
	"telegram-otpguard/internal/infra/logger"
	"telegram-otpguard/internal/infra/storage"
	"telegram-otpguard/internal/infra/telegram/session"
	"telegram-otpguard/internal/support/debug"

	"github.com/go-faster/errors"
	"github.com/gotd/contrib/middleware/floodwait"
	"github.com/gotd/contrib/middleware/ratelimit"
	"github.com/gotd/td/telegram"
	"github.com/gotd/td/telegram/auth"
	"github.com/gotd/td/telegram/dcs"
	"github.com/gotd/td/tg"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// restartDelay — пауза между перезапусками упавшего клиента.
const restartDelay = 10 * time.Second

// appVersion попадает в паспорт устройства MTProto-клиента.
const appVersion = "0.1.0"

// Options — параметры пула, снятые с конфигурации окружения.
type Options struct {
	APIID       int
	APIHash     string
	SessionDir  string
	ThrottleRPS int
	TestDC      bool
}

// Pool управляет подключениями аккаунтов и их жизненным циклом.
type Pool struct {
	opts     Options
	registry *otp.Registry

	mu      sync.Mutex
	conns   map[string]*Conn
	baseCtx context.Context

	onceStart sync.Once
	wg        sync.WaitGroup
}

// New создаёт пул поверх реестра слушателей.
func New(opts Options, registry *otp.Registry) *Pool {
	return &Pool{
		opts:     opts,
		registry: registry,
		conns:    make(map[string]*Conn),
	}
}

// Start фиксирует базовый контекст подключений. Повторные вызовы игнорируются.
func (p *Pool) Start(ctx context.Context) {
	p.onceStart.Do(func() {
		p.mu.Lock()
		p.baseCtx = ctx
		p.mu.Unlock()
	})
}

func connKey(ownerID int64, accountID string) string {
	return fmt.Sprintf("%d:%s", ownerID, accountID)
}

// Connect поднимает подключение для записи аккаунта и блокируется до первого
// успешного логина (или ошибки). Телефон нужен для интерактивной авторизации,
// когда файла сессии ещё нет.
func (p *Pool) Connect(acc *accounts.Account, phone string) error {
	p.mu.Lock()
	if p.baseCtx == nil {
		p.mu.Unlock()
		return errors.New("pool is not started")
	}
	key := connKey(acc.OwnerID, acc.ID)
	if _, exists := p.conns[key]; exists {
		p.mu.Unlock()
		return errors.Errorf("account %q is already connected", acc.ID)
	}

	sessionPath := filepath.Join(p.opts.SessionDir, fmt.Sprintf("%d_%s.session", acc.OwnerID, acc.ID))
	if err := storage.EnsureDir(sessionPath); err != nil {
		p.mu.Unlock()
		return errors.Wrap(err, "ensure session dir")
	}

	conn := &Conn{ownerID: acc.OwnerID, accountID: acc.ID}
	ctx, cancel := context.WithCancel(p.baseCtx)
	conn.cancel = cancel

	store := &session.FileStorage{
		Path: sessionPath,
		// Свежая сессия на диске = успешный логин или реавторизация.
		OnStored: func() { conn.live.Store(true) },
	}

	dispatcher := tg.NewUpdateDispatcher()
	dispatcher.OnNewMessage(p.onNewMessage(conn))

	options := telegram.Options{
		SessionStorage: store,
		UpdateHandler:  dispatcher,
		Middlewares: []telegram.Middleware{
			floodwait.NewSimpleWaiter(),
			ratelimit.New(
				rate.Limit(p.opts.ThrottleRPS),
				p.opts.ThrottleRPS*2, //nolint:mnd // burst = 2*rate
			),
		},
		OnDead: func() {
			conn.live.Store(false)
			logger.Warn("connpool: connection dead",
				zap.Int64("owner_id", acc.OwnerID), zap.String("account_id", acc.ID))
		},
		Device: telegram.DeviceConfig{
			DeviceModel:   "MacBookPro18,1",
			SystemVersion: "macOS v15.6.1 build 24G90",
			AppVersion:    appVersion,
		},
	}
	if p.opts.TestDC {
		options.DCList = dcs.Test()
	}

	conn.client = telegram.NewClient(p.opts.APIID, p.opts.APIHash, options)
	conn.api = conn.client.API()

	p.conns[key] = conn
	p.mu.Unlock()

	ready := make(chan error, 1)
	var readyOnce sync.Once
	deliver := func(err error) {
		readyOnce.Do(func() { ready <- err })
	}

	p.wg.Add(1)
	go p.runConn(ctx, conn, phone, deliver)

	select {
	case err := <-ready:
		if err != nil {
			p.Disconnect(acc.OwnerID, acc.ID)
			return err
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Disconnect гасит подключение аккаунта и снимает его слушателя.
func (p *Pool) Disconnect(ownerID int64, accountID string) {
	key := connKey(ownerID, accountID)
	p.mu.Lock()
	conn, exists := p.conns[key]
	if exists {
		delete(p.conns, key)
	}
	p.mu.Unlock()
	if !exists {
		return
	}
	conn.cancel()
	p.registry.Deregister(ownerID, accountID)
}

// Stop гасит все подключения и дожидается завершения их горутин.
func (p *Pool) Stop() {
	p.mu.Lock()
	for key, conn := range p.conns {
		conn.cancel()
		delete(p.conns, key)
	}
	p.mu.Unlock()
	p.wg.Wait()
}

// runConn крутит жизненный цикл клиента: логин, регистрация слушателя,
// ожидание отмены; упавший клиент перезапускается после паузы.
func (p *Pool) runConn(ctx context.Context, conn *Conn, phone string, deliver func(error)) {
	defer p.wg.Done()
	for {
		err := conn.client.Run(ctx, func(ctx context.Context) error {
			flow := auth.NewFlow(
				TerminalAuthenticator{PhoneNumber: phone},
				auth.SendCodeOptions{},
			)
			if authErr := conn.client.Auth().IfNecessary(ctx, flow); authErr != nil {
				return errors.Wrap(authErr, "auth")
			}

			self, selfErr := conn.client.Self(ctx)
			if selfErr != nil {
				return errors.Wrap(selfErr, "self")
			}
			conn.setProfile(self.FirstName, self.Phone)
			conn.live.Store(true)
			logger.Info("connpool: account connected",
				zap.Int64("owner_id", conn.ownerID),
				zap.String("account_id", conn.accountID),
				zap.String("username", self.Username))

			p.registry.Register(conn.ownerID, conn.accountID, conn)
			deliver(nil)

			<-ctx.Done()
			return ctx.Err()
		})

		conn.live.Store(false)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			deliver(err)
			logger.Error("connpool: client stopped, restarting",
				zap.Int64("owner_id", conn.ownerID),
				zap.String("account_id", conn.accountID),
				zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(restartDelay):
		}
	}
}

// onNewMessage возвращает обработчик диспетчера: фильтр по сервисным
// отправителям и постановка события в очередь слушателя.
func (p *Pool) onNewMessage(c *Conn) func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
	return func(ctx context.Context, e tg.Entities, u *tg.UpdateNewMessage) error {
		msg, ok := u.Message.(*tg.Message)
		if !ok || msg.Out {
			return nil
		}
		sender := senderID(msg)
		if !otp.IsServiceSender(sender) {
			return nil
		}
		debug.Dump("connpool: service message", msg)
		name, phone := c.Profile()
		p.registry.Enqueue(otp.Event{
			OwnerID:   c.ownerID,
			AccountID: c.accountID,
			MessageID: msg.ID,
			SenderID:  sender,
			Text:      msg.Message,
			Name:      name,
			Phone:     phone,
		})
		return nil
	}
}

// senderID извлекает id отправителя: FromID, если задан, иначе peer диалога.
func senderID(msg *tg.Message) int64 {
	if from, ok := msg.GetFromID(); ok {
		if u, isUser := from.(*tg.PeerUser); isUser {
			return u.UserID
		}
	}
	if peer, ok := msg.PeerID.(*tg.PeerUser); ok {
		return peer.UserID
	}
	return 0
}
