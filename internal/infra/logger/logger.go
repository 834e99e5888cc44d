// Package logger — общая обёртка над zap для всего сервиса защиты OTP.
// Управляет уровнем логирования через zap.AtomicLevel, позволяет дополнительно
// включить файловый вывод с ротацией (lumberjack). Консольный и файловый core
// склеиваются через zapcore.NewTee, уровень файла настраивается отдельно.
package logger

import (
	"fmt"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
)

var (
	// mu защищает глобальное состояние логгера от одновременных изменений.
	mu sync.Mutex
	// log хранит текущий экземпляр zap.Logger, используемый во всём приложении.
	log *zap.Logger
	// logLevel управляет динамическим уровнем консольного вывода без пересоздания ядра.
	logLevel = zap.NewAtomicLevelAt(zap.InfoLevel)
	// fileCore — дополнительный core для записи в файл; nil, если файловый лог не включён.
	fileCore zapcore.Core
)

// consoleEncoderConfig формирует консольный encoder с цветами и коротким caller.
// Формат времени фиксирован (YYYY-MM-DD HH:MM:SS).
func consoleEncoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "time",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		MessageKey:     "msg",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.CapitalColorLevelEncoder,
		EncodeTime:     zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05"),
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
}

// rebuildLoggerLocked пересоздаёт глобальный логгер с текущими настройками.
// Вызывающий обязан держать mu. AddCallerSkip(1) прячет обёртки logger.* из стека.
func rebuildLoggerLocked() {
	console := zapcore.NewCore(
		zapcore.NewConsoleEncoder(consoleEncoderConfig()),
		zapcore.Lock(zapcore.AddSync(os.Stdout)),
		logLevel,
	)
	core := console
	if fileCore != nil {
		core = zapcore.NewTee(console, fileCore)
	}
	if log != nil {
		_ = log.Sync()
	}
	log = zap.New(core, zap.AddCaller(), zap.AddCallerSkip(1),
		zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(os.Stderr))))
}

// parseLevel приводит строковый уровень к zapcore.Level. Неизвестные значения — info.
func parseLevel(level string) zapcore.Level {
	switch strings.ToLower(level) {
	case "debug":
		return zap.DebugLevel
	case "warn":
		return zap.WarnLevel
	case "error":
		return zap.ErrorLevel
	default:
		return zap.InfoLevel
	}
}

// Init инициализирует глобальный логгер и задаёт уровень консольного вывода.
// Допустимые уровни: debug, info (по умолчанию), warn, error. Потокобезопасно.
func Init(level string) {
	mu.Lock()
	defer mu.Unlock()

	logLevel.SetLevel(parseLevel(level))
	rebuildLoggerLocked()
}

// FileConfig описывает параметры файлового лога с ротацией.
type FileConfig struct {
	Path       string // путь к файлу лога; пустая строка отключает файловый вывод
	Level      string // отдельный уровень для файла (обычно debug)
	MaxSizeMB  int    // размер файла до ротации
	MaxBackups int    // сколько старых файлов хранить
	MaxAgeDays int    // сколько дней хранить старые файлы
	Compress   bool   // сжимать ли ротированные файлы
}

// EnableFile включает запись логов в файл с ротацией через lumberjack.
// Файл пишется JSON-encoder'ом (машинная обработка), уровень независим от консоли.
// Повторный вызов заменяет предыдущую файловую конфигурацию.
func EnableFile(cfg FileConfig) {
	if strings.TrimSpace(cfg.Path) == "" {
		return
	}

	mu.Lock()
	defer mu.Unlock()

	sink := zapcore.AddSync(&lumberjack.Logger{
		Filename:   cfg.Path,
		MaxSize:    cfg.MaxSizeMB,
		MaxBackups: cfg.MaxBackups,
		MaxAge:     cfg.MaxAgeDays,
		Compress:   cfg.Compress,
	})

	encCfg := consoleEncoderConfig()
	// В файле цвета не нужны.
	encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
	fileCore = zapcore.NewCore(zapcore.NewJSONEncoder(encCfg), sink, parseLevel(cfg.Level))
	rebuildLoggerLocked()
}

// Logger возвращает текущий zap.Logger, лениво создавая его при первом обращении.
// Предпочтительно передавать структурированные zap.Field, а не форматированные строки.
func Logger() *zap.Logger {
	mu.Lock()
	defer mu.Unlock()

	if log == nil {
		rebuildLoggerLocked()
	}
	return log
}

// Debug пишет структурированное сообщение уровня Debug.
func Debug(msg string, fields ...zap.Field) { Logger().Debug(msg, fields...) }

// Info пишет структурированное сообщение уровня Info.
func Info(msg string, fields ...zap.Field) { Logger().Info(msg, fields...) }

// Warn пишет структурированное предупреждение уровня Warn.
func Warn(msg string, fields ...zap.Field) { Logger().Warn(msg, fields...) }

// Error пишет структурированное сообщение об ошибке уровня Error.
func Error(msg string, fields ...zap.Field) { Logger().Error(msg, fields...) }

// Fatal пишет сообщение уровня Fatal и завершает процесс.
func Fatal(msg string, fields ...zap.Field) {
	Logger().Fatal(msg, fields...)
	_ = Logger().Sync()
	os.Exit(1)
}

// Debugf форматирует сообщение через fmt.Sprintf. Для горячих путей предпочтительны поля.
func Debugf(msg string, a ...any) { Logger().Debug(fmt.Sprintf(msg, a...)) }

// Infof форматирует сообщение через fmt.Sprintf.
func Infof(msg string, a ...any) { Logger().Info(fmt.Sprintf(msg, a...)) }

// Warnf форматирует сообщение через fmt.Sprintf.
func Warnf(msg string, a ...any) { Logger().Warn(fmt.Sprintf(msg, a...)) }

// Errorf форматирует сообщение через fmt.Sprintf.
func Errorf(msg string, a ...any) { Logger().Error(fmt.Sprintf(msg, a...)) }
