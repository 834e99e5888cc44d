// Package accounts — доменная модель управляемых Telegram-аккаунтов.
// Аккаунт принадлежит владельцу (owner), несёт статические флаги политики OTP
// (destroyer/forward), опциональный хэш пароля отключения и журнал аудита.
// Идентификаторы (имя/телефон) могут храниться как открыто, так и в
// зашифрованном виде — хранилище переживает постепенную миграцию шифрования.
package accounts

import "time"

// Account — один управляемый аккаунт под одним владельцем.
//
// Инвариант: DestroyerEnabled и ForwardEnabled никогда не равны true
// одновременно. Временные послабления (pause/temp passthrough) живут вне
// персистентной записи, в процесс-локальном сторе оверрайдов.
type Account struct {
	ID      string `json:"id"`       // стабильный непрозрачный ключ
	OwnerID int64  `json:"owner_id"` // telegram id владельца

	// Открытые идентификаторы. Пустые, если запись мигрирована на шифрование.
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`

	// Зашифрованный индекс идентификаторов (AES-GCM). Заполняется при
	// сохранении, когда в конфигурации задан IDENTITY_KEY.
	NameEnc    []byte `json:"name_enc,omitempty"`
	NameNonce  []byte `json:"name_nonce,omitempty"`
	PhoneEnc   []byte `json:"phone_enc,omitempty"`
	PhoneNonce []byte `json:"phone_nonce,omitempty"`

	DestroyerEnabled bool `json:"destroyer_enabled"`
	ForwardEnabled   bool `json:"forward_enabled"`

	// DisableAuthHash — argon2id-хэш пароля, защищающего отключение destroyer.
	// Пустая строка = пароль не установлен.
	DisableAuthHash string `json:"disable_auth_hash,omitempty"`

	CreatedAt time.Time `json:"created_at"`
}

// Clone возвращает глубокую копию записи: байтовые срезы дублируются,
// чтобы вызывающий не мог мутировать содержимое хранилища.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	c := *a
	c.NameEnc = append([]byte(nil), a.NameEnc...)
	c.NameNonce = append([]byte(nil), a.NameNonce...)
	c.PhoneEnc = append([]byte(nil), a.PhoneEnc...)
	c.PhoneNonce = append([]byte(nil), a.PhoneNonce...)
	return &c
}

// AuditEntry — неизменяемая запись журнала: действие, время и метаданные
// действия (фрагмент кода, выдержка из сообщения, произвольные пары).
// Записи только добавляются; ротация/ретеншн — внешняя забота.
type AuditEntry struct {
	Seq       uint64            `json:"seq,omitempty"` // порядковый номер, назначается хранилищем
	Action    string            `json:"action"`
	Timestamp time.Time         `json:"timestamp"`
	Code      string            `json:"code,omitempty"`
	Excerpt   string            `json:"excerpt,omitempty"`
	Meta      map[string]string `json:"meta,omitempty"`
}

// Действия журнала аудита. Имена совместимы с историческим форматом журнала.
const (
	ActionOTPDestroyed       = "otp_destroyed"
	ActionOTPForwarded       = "otp_forwarded"
	ActionOTPTempForwarded   = "otp_temp_forwarded"
	ActionOTPPausedForwarded = "otp_forwarded_destroyer_paused"
	ActionOTPIgnored         = "otp_ignored"
	ActionInvalidateError    = "invalidate_error"

	ActionDestroyerEnabled      = "destroyer_enabled"
	ActionDestroyerDisabled     = "destroyer_disabled"
	ActionDestroyerDenied       = "destroyer_disable_denied"
	ActionDestroyerPaused       = "destroyer_temp_disabled"
	ActionTempPassthrough       = "temp_otp_enabled"
	ActionForwardingEnabled     = "forwarding_enabled"
	ActionForwardingDisabled    = "forwarding_disabled"
	ActionDisablePasswordSet    = "disable_password_set"
	ActionDisablePasswordChange = "disable_password_changed"
	ActionDisablePasswordRemove = "disable_password_removed"

	ActionAccountAdded   = "account_added"
	ActionAccountRemoved = "account_removed"
)
