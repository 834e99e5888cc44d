// Package debug — вспомогательные утилиты отладки сервиса.
// Пишет структурные записи в общий лог только при активном DEBUG и умеет
// pretty-печатать произвольные значения (апдейты gotd, записи аккаунтов).
// Пакет не влияет на бизнес-логику; прод-сборка запускается с DEBUG=false.
package debug

import (
	"fmt"

	"telegram-otpguard/internal/infra/logger"

	"github.com/kr/pretty"
	"go.uber.org/zap"
)

// DEBUG — глобальный переключатель режима отладки. Когда false, все функции
// пакета молчат.
var DEBUG = false

// Dump пишет pretty-представление значения в лог уровня Debug.
// Не используйте в горячих участках из-за аллокаций.
func Dump(label string, v any) {
	if !DEBUG {
		return
	}
	logger.Debugf("%s: %# v", label, pretty.Formatter(v))
}

// Sdump возвращает pretty-строку значения. Полезно для логов и тестов.
func Sdump(v any) string {
	return fmt.Sprintf("%# v", pretty.Formatter(v))
}

// Debug пишет запись уровня Debug в общий лог только при активном DEBUG.
func Debug(msg string, fields ...zap.Field) {
	if DEBUG {
		logger.Logger().Debug(msg, fields...)
	}
}

// Warn пишет предупреждение в лог, если DEBUG=true.
func Warn(msg string, fields ...zap.Field) {
	if DEBUG {
		logger.Logger().Warn(msg, fields...)
	}
}
