package otp

import "github.com/go-faster/errors"

// Сигнальные ошибки операций управления политикой. Вызывающий (CLI)
// различает их через errors.Is и подбирает текст для владельца.
var (
	// ErrAccountNotFound — аккаунт не найден или принадлежит другому владельцу.
	ErrAccountNotFound = errors.New("account not found")

	// ErrPasswordRequired — операция защищена паролем отключения, а пароль
	// не передан.
	ErrPasswordRequired = errors.New("disable password required")

	// ErrInvalidPassword — передан неверный пароль отключения.
	ErrInvalidPassword = errors.New("invalid disable password")

	// ErrForwardWithDestroyer — попытка включить пересылку при активном
	// destroyer. Постоянная пересылка несовместима с уничтожением кодов;
	// для разового доступа есть temp passthrough.
	ErrForwardWithDestroyer = errors.New("forwarding conflicts with active destroyer; use temporary passthrough instead")

	// ErrDestroyerDisabled — временная операция (пауза, temp passthrough)
	// запрошена при выключенном destroyer.
	ErrDestroyerDisabled = errors.New("destroyer is not enabled")

	// ErrNoDisablePassword — операция над паролем отключения, когда пароль
	// не установлен.
	ErrNoDisablePassword = errors.New("disable password is not set")

	// ErrWeakPassword — пароль отключения короче минимально допустимого.
	ErrWeakPassword = errors.New("disable password is too short")
)
