package otp

// Файл gate.go — операции управления политикой аккаунта, выполняемые по
// команде владельца. Все операции идут через Guard: он сверяет пароль
// отключения, следит за несовместимостью destroyer и forward, устанавливает
// временные оверрайды и фиксирует каждое изменение в журнале аудита.
//
// Каждая операция возвращает человекочитаемое сообщение для владельца и
// ошибку. Сигнальные ошибки перечислены в errors.go; любое отклонение
// операции не мутирует состояние.

import (
	"context"
	"fmt"
	"time"

	"telegram-otpguard/internal/domain/accounts"
	"telegram-otpguard/internal/infra/cryptox"
	"telegram-otpguard/internal/infra/logger"

	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// minDisablePasswordLen — минимальная длина пароля отключения.
const minDisablePasswordLen = 6

// getAccount достаёт запись и переводит ErrNotFound хранилища в доменную ошибку.
func (g *Guard) getAccount(ctx context.Context, ownerID int64, accountID string) (*accounts.Account, error) {
	acc, err := g.store.Get(ctx, ownerID, accountID)
	if err != nil {
		if errors.Is(err, accounts.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, errors.Wrap(err, "get account")
	}
	return acc, nil
}

// checkDisablePassword сверяет пароль с хэшем записи. Отсутствие хэша
// означает, что операция не защищена.
func checkDisablePassword(acc *accounts.Account, password string) error {
	if acc.DisableAuthHash == "" {
		return nil
	}
	if password == "" {
		return ErrPasswordRequired
	}
	if !cryptox.VerifyPassword(acc.DisableAuthHash, password) {
		return ErrInvalidPassword
	}
	return nil
}

// ToggleDestroyer включает или выключает уничтожение кодов.
// Включение принудительно гасит постоянную пересылку: политики несовместимы.
// Выключение защищено паролем, если он установлен; неверный пароль оставляет
// состояние нетронутым и фиксируется отдельной записью аудита.
func (g *Guard) ToggleDestroyer(ctx context.Context, ownerID int64, accountID string, enable bool, password string) (string, error) {
	acc, err := g.getAccount(ctx, ownerID, accountID)
	if err != nil {
		return "", err
	}

	if enable {
		acc.DestroyerEnabled = true
		acc.ForwardEnabled = false
		if err := g.store.Save(ctx, acc); err != nil {
			return "", errors.Wrap(err, "save account")
		}
		g.audit(ctx, acc, accounts.AuditEntry{Action: accounts.ActionDestroyerEnabled})
		return "OTP destroyer enabled. Incoming login codes will be invalidated and deleted.", nil
	}

	if err := checkDisablePassword(acc, password); err != nil {
		if errors.Is(err, ErrInvalidPassword) {
			g.audit(ctx, acc, accounts.AuditEntry{Action: accounts.ActionDestroyerDenied})
			logger.Warn("gate: destroyer disable denied, wrong password",
				zap.Int64("owner_id", ownerID), zap.String("account_id", accountID))
		}
		return "", err
	}
	acc.DestroyerEnabled = false
	if err := g.store.Save(ctx, acc); err != nil {
		return "", errors.Wrap(err, "save account")
	}
	// Временные послабления привязаны к активному destroyer.
	g.overrides.Clear(OverrideDestroyerPaused, ownerID, accountID)
	g.audit(ctx, acc, accounts.AuditEntry{Action: accounts.ActionDestroyerDisabled})
	return "OTP destroyer disabled.", nil
}

// ToggleForward включает или выключает постоянную пересылку кодов владельцу.
// Включение при активном destroyer отклоняется: для разового доступа к коду
// предназначен temp passthrough.
func (g *Guard) ToggleForward(ctx context.Context, ownerID int64, accountID string, enable bool) (string, error) {
	acc, err := g.getAccount(ctx, ownerID, accountID)
	if err != nil {
		return "", err
	}

	if enable {
		if acc.DestroyerEnabled {
			return "", ErrForwardWithDestroyer
		}
		acc.ForwardEnabled = true
		if err := g.store.Save(ctx, acc); err != nil {
			return "", errors.Wrap(err, "save account")
		}
		g.audit(ctx, acc, accounts.AuditEntry{Action: accounts.ActionForwardingEnabled})
		return "Login code forwarding enabled.", nil
	}

	acc.ForwardEnabled = false
	if err := g.store.Save(ctx, acc); err != nil {
		return "", errors.Wrap(err, "save account")
	}
	g.audit(ctx, acc, accounts.AuditEntry{Action: accounts.ActionForwardingDisabled})
	return "Login code forwarding disabled.", nil
}

// PauseDestroyer приостанавливает destroyer на OverrideTTL: коды пересылаются
// владельцу, но не уничтожаются. Требует активного destroyer и пароля
// отключения (если установлен). Повторный вызов заменяет окно, не продлевает.
func (g *Guard) PauseDestroyer(ctx context.Context, ownerID int64, accountID string, password string) (string, error) {
	acc, err := g.getAccount(ctx, ownerID, accountID)
	if err != nil {
		return "", err
	}
	if !acc.DestroyerEnabled {
		return "", ErrDestroyerDisabled
	}
	if err := checkDisablePassword(acc, password); err != nil {
		return "", err
	}

	g.overrides.Set(OverrideDestroyerPaused, ownerID, accountID, OverrideTTL)
	g.audit(ctx, acc, accounts.AuditEntry{
		Action: accounts.ActionDestroyerPaused,
		Meta:   map[string]string{"ttl": OverrideTTL.String()},
	})
	g.send(ctx, ownerID, fmt.Sprintf("⏸ OTP destroyer paused for %s. Login codes will be forwarded, not destroyed.", formatTTL(OverrideTTL)))
	return fmt.Sprintf("Destroyer paused for %s.", formatTTL(OverrideTTL)), nil
}

// EnableTempPassthrough открывает окно разовой пересылки на OverrideTTL:
// ближайшие коды будут пересланы владельцу, даже если destroyer активен.
// Требует активного destroyer и пароля отключения (если установлен).
func (g *Guard) EnableTempPassthrough(ctx context.Context, ownerID int64, accountID string, password string) (string, error) {
	acc, err := g.getAccount(ctx, ownerID, accountID)
	if err != nil {
		return "", err
	}
	if !acc.DestroyerEnabled {
		return "", ErrDestroyerDisabled
	}
	if err := checkDisablePassword(acc, password); err != nil {
		return "", err
	}

	g.overrides.Set(OverrideTempPassthrough, ownerID, accountID, OverrideTTL)
	g.audit(ctx, acc, accounts.AuditEntry{
		Action: accounts.ActionTempPassthrough,
		Meta:   map[string]string{"ttl": OverrideTTL.String()},
	})
	g.send(ctx, ownerID, fmt.Sprintf("🔓 Temporary passthrough enabled for %s. The next login codes will be forwarded to you.", formatTTL(OverrideTTL)))
	return fmt.Sprintf("Temporary passthrough enabled for %s.", formatTTL(OverrideTTL)), nil
}

// SetDisablePassword устанавливает или меняет пароль отключения. Смена
// требует текущего пароля. В базу попадает только argon2id-хэш.
func (g *Guard) SetDisablePassword(ctx context.Context, ownerID int64, accountID string, current, next string) (string, error) {
	acc, err := g.getAccount(ctx, ownerID, accountID)
	if err != nil {
		return "", err
	}
	if len(next) < minDisablePasswordLen {
		return "", ErrWeakPassword
	}
	changing := acc.DisableAuthHash != ""
	if err := checkDisablePassword(acc, current); err != nil {
		return "", err
	}

	hash, err := cryptox.HashPassword(next)
	if err != nil {
		return "", errors.Wrap(err, "hash password")
	}
	acc.DisableAuthHash = hash
	if err := g.store.Save(ctx, acc); err != nil {
		return "", errors.Wrap(err, "save account")
	}
	action := accounts.ActionDisablePasswordSet
	msg := "Disable password set. Destroyer can no longer be turned off without it."
	if changing {
		action = accounts.ActionDisablePasswordChange
		msg = "Disable password changed."
	}
	g.audit(ctx, acc, accounts.AuditEntry{Action: action})
	return msg, nil
}

// RemoveDisablePassword снимает пароль отключения. Требует текущий пароль.
func (g *Guard) RemoveDisablePassword(ctx context.Context, ownerID int64, accountID string, password string) (string, error) {
	acc, err := g.getAccount(ctx, ownerID, accountID)
	if err != nil {
		return "", err
	}
	if acc.DisableAuthHash == "" {
		return "", ErrNoDisablePassword
	}
	if err := checkDisablePassword(acc, password); err != nil {
		return "", err
	}

	acc.DisableAuthHash = ""
	if err := g.store.Save(ctx, acc); err != nil {
		return "", errors.Wrap(err, "save account")
	}
	g.audit(ctx, acc, accounts.AuditEntry{Action: accounts.ActionDisablePasswordRemove})
	return "Disable password removed.", nil
}

// CreateAccount регистрирует новую запись аккаунта с политикой по умолчанию
// (destroyer включён, пересылка выключена).
func (g *Guard) CreateAccount(ctx context.Context, ownerID int64, accountID, name, phone string) (*accounts.Account, error) {
	if _, err := g.store.Get(ctx, ownerID, accountID); err == nil {
		return nil, errors.Errorf("account %q already exists", accountID)
	} else if !errors.Is(err, accounts.ErrNotFound) {
		return nil, errors.Wrap(err, "get account")
	}

	acc := &accounts.Account{
		ID:               accountID,
		OwnerID:          ownerID,
		Name:             name,
		Phone:            phone,
		DestroyerEnabled: true,
		CreatedAt:        g.now(),
	}
	if err := g.store.Save(ctx, acc); err != nil {
		return nil, errors.Wrap(err, "save account")
	}
	g.audit(ctx, acc, accounts.AuditEntry{Action: accounts.ActionAccountAdded})
	return acc, nil
}

// RemoveAccount удаляет запись аккаунта и снимает её оверрайды. Журнал
// аудита при этом сохраняется.
func (g *Guard) RemoveAccount(ctx context.Context, ownerID int64, accountID string) error {
	acc, err := g.getAccount(ctx, ownerID, accountID)
	if err != nil {
		return err
	}
	g.audit(ctx, acc, accounts.AuditEntry{Action: accounts.ActionAccountRemoved})
	if err := g.store.Delete(ctx, ownerID, accountID); err != nil {
		return errors.Wrap(err, "delete account")
	}
	g.overrides.ClearAccount(ownerID, accountID)
	return nil
}

// AuditLog возвращает журнал аккаунта в порядке добавления записей.
func (g *Guard) AuditLog(ctx context.Context, ownerID int64, accountID string) ([]accounts.AuditEntry, error) {
	if _, err := g.getAccount(ctx, ownerID, accountID); err != nil {
		return nil, err
	}
	return g.store.AuditLog(ctx, ownerID, accountID)
}

// formatTTL печатает длительность окна в человекочитаемом виде.
func formatTTL(d time.Duration) string {
	if d%time.Minute == 0 {
		return fmt.Sprintf("%d min", int(d/time.Minute))
	}
	return d.String()
}
