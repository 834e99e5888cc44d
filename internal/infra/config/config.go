// Пакет config отвечает за сбор и предоставление конфигурации сервиса защиты OTP.
// Он:
//  1. читает переменные окружения из .env (через godotenv),
//  2. нормализует и валидирует входные значения, накапливая предупреждения,
//  3. фиксирует результат в singleton и отдаёт его через Env().
//
// Бизнес-контекст: сервис держит по одному MTProto-подключению на каждый
// управляемый аккаунт, перехватывает сервисные сообщения с кодами входа и,
// в зависимости от настроек аккаунта, уничтожает код, пересылает его владельцу
// или не трогает. Конфиг среды управляет учётными данными Telegram API,
// токеном бота-нотификатора, путями хранилищ и «ручками» логирования.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"telegram-otpguard/internal/infra/timeutil"

	"github.com/joho/godotenv"
)

// EnvConfig описывает параметры, приходящие из окружения (.env).
// Значения проходят минимальную валидацию и нормализацию в loadConfig;
// в рантайме предполагается, что EnvConfig последователен.
type EnvConfig struct {
	APIID   int
	APIHash string
	// BotToken — токен бота, через которого владельцам доставляются
	// уведомления об уничтоженных/пересланных кодах.
	BotToken string
	// OwnerUID — telegram id владельца, от имени которого работает консоль.
	// Аккаунты, добавленные через CLI, привязываются к этому владельцу.
	OwnerUID int64

	AccountsDBFile string // bbolt-база аккаунтов и журнала аудита
	SessionDir     string // каталог файлов MTProto-сессий (по файлу на аккаунт)

	LogLevel    string
	ThrottleRPS int
	TestDC      bool
	AppTimezone string

	// IdentityKey — hex-представление AES-ключа для шифрования идентификаторов
	// аккаунтов (имя/телефон) в базе. Пустая строка = записи хранятся открыто.
	IdentityKey      string
	identityKeyBytes []byte

	// EventQueueCap — ёмкость очереди событий на один аккаунт-слушатель.
	EventQueueCap int

	// Файловое логирование
	LogFile           string
	LogFileLevel      string
	LogFileMaxSize    int
	LogFileMaxBackups int
	LogFileMaxAge     int
	LogFileCompress   bool
}

// Config хранит конфигурацию среды.
// Публичные геттеры работают со снимком; перезагрузка конфигурации не предусмотрена.
type Config struct {
	Env      EnvConfig
	warnings []string
	mu       sync.RWMutex
}

// Значения по умолчанию для параметров окружения и связанных файлов.
const (
	defaultThrottleRPS    = 1
	defaultLogLevel       = "info"
	defaultAccountsDBFile = "data/accounts.bbolt"
	defaultSessionDir     = "data/sessions"
	defaultAppTimezone    = "Europe/Moscow"
	defaultEventQueueCap  = 16
	// Файловое логирование (LOG_FILE не имеет дефолта — задаётся явно для активации)
	defaultLogFileLevel      = "debug"
	defaultLogFileMaxSize    = 50
	defaultLogFileMaxBackups = 3
	defaultLogFileMaxAge     = 7
	defaultLogFileCompress   = true
)

var (
	cfgInstance *Config
	cfgDone     bool
)

// AppLocation — таймзона приложения; используется для форматирования
// временных меток в уведомлениях владельцам и в журнале аудита.
var AppLocation *time.Location

// Load — точка входа для инициализации глобальной конфигурации.
// Повторный вызов запрещён (возвращается ошибка), чтобы избежать гонок на старте.
func Load(envPath string) error {
	if cfgDone {
		return errors.New("config already loaded")
	}
	newCfg, err := loadConfig(envPath)
	if err != nil {
		return err
	}
	cfgInstance = newCfg
	cfgDone = true
	return nil
}

// loadConfig выполняет фактическую загрузку/валидацию без установки глобального
// состояния. Удобно для тестов: можно собрать временный Config и проверить его.
func loadConfig(envPath string) (*Config, error) {
	if err := godotenv.Load(envPath); err != nil {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	apiID, err := parseRequiredInt("API_ID")
	if err != nil {
		return nil, err
	}

	apiHash := strings.TrimSpace(os.Getenv("API_HASH"))
	if apiHash == "" {
		return nil, errors.New("env API_HASH must be set")
	}

	botToken := strings.TrimSpace(os.Getenv("BOT_TOKEN"))
	if botToken == "" {
		return nil, errors.New("env BOT_TOKEN must be set (owner notifications transport)")
	}

	ownerUID, err := parseRequiredInt("OWNER_UID")
	if err != nil {
		return nil, err
	}
	if ownerUID <= 0 {
		return nil, errors.New("env OWNER_UID must be a positive telegram id")
	}

	var warnings []string

	throttleRPS := parseIntDefault("THROTTLE_RPS", defaultThrottleRPS, greaterThanZero, &warnings)
	logLevel := sanitizeLogLevel(os.Getenv("LOG_LEVEL"), defaultLogLevel, &warnings)
	accountsDB := sanitizeFile("ACCOUNTS_DB_FILE", os.Getenv("ACCOUNTS_DB_FILE"), defaultAccountsDBFile, &warnings)
	sessionDir := sanitizeFile("SESSION_DIR", os.Getenv("SESSION_DIR"), defaultSessionDir, &warnings)
	testDC := strings.EqualFold(strings.TrimSpace(os.Getenv("TEST_DC")), "true")
	appTimezone := sanitizeTimezone(os.Getenv("APP_TIMEZONE"), defaultAppTimezone, &warnings)
	queueCap := parseIntDefault("EVENT_QUEUE_CAP", defaultEventQueueCap, greaterThanZero, &warnings)
	logFile := strings.TrimSpace(os.Getenv("LOG_FILE"))
	logFileLevel := sanitizeLogLevel(os.Getenv("LOG_FILE_LEVEL"), defaultLogFileLevel, &warnings)
	logFileMaxSize := parseIntDefault("LOG_FILE_MAX_SIZE_MB", defaultLogFileMaxSize, greaterThanZero, &warnings)
	logFileMaxBackups := parseIntDefault("LOG_FILE_MAX_BACKUPS", defaultLogFileMaxBackups, nonNegative, &warnings)
	logFileMaxAge := parseIntDefault("LOG_FILE_MAX_AGE_DAYS", defaultLogFileMaxAge, nonNegative, &warnings)
	logFileCompress := parseBoolDefault("LOG_FILE_COMPRESS", defaultLogFileCompress, &warnings)

	identityKey := strings.TrimSpace(os.Getenv("IDENTITY_KEY"))
	var identityKeyBytes []byte
	if identityKey != "" {
		identityKeyBytes, err = hex.DecodeString(identityKey)
		if err != nil {
			return nil, fmt.Errorf("env IDENTITY_KEY must be hex: %w", err)
		}
		switch len(identityKeyBytes) {
		case 16, 24, 32:
		default:
			return nil, fmt.Errorf("env IDENTITY_KEY must decode to 16/24/32 bytes, got %d", len(identityKeyBytes))
		}
	}

	AppLocation, err = timeutil.ParseLocation(appTimezone)
	if err != nil {
		return nil, fmt.Errorf("invalid APP_TIMEZONE %q: %w", appTimezone, err)
	}

	env := EnvConfig{
		APIID:            apiID,
		APIHash:          apiHash,
		BotToken:         botToken,
		OwnerUID:         int64(ownerUID),
		AccountsDBFile:   accountsDB,
		SessionDir:       sessionDir,
		LogLevel:         logLevel,
		ThrottleRPS:      throttleRPS,
		TestDC:           testDC,
		AppTimezone:      appTimezone,
		IdentityKey:      identityKey,
		identityKeyBytes: identityKeyBytes,
		EventQueueCap:    queueCap,
		// Файловое логирование
		LogFile:           logFile,
		LogFileLevel:      logFileLevel,
		LogFileMaxSize:    logFileMaxSize,
		LogFileMaxBackups: logFileMaxBackups,
		LogFileMaxAge:     logFileMaxAge,
		LogFileCompress:   logFileCompress,
	}

	return &Config{Env: env, warnings: warnings}, nil
}

// IdentityKeyBytes возвращает байты AES-ключа шифрования идентификаторов
// (nil, если шифрование не настроено).
func (e EnvConfig) IdentityKeyBytes() []byte {
	return e.identityKeyBytes
}

// Warnings возвращает накопленные предупреждения, возникшие при загрузке .env
// (например, когда подставлено значение по умолчанию). Возвращается копия.
func Warnings() []string {
	cfgInstance.mu.RLock()
	defer cfgInstance.mu.RUnlock()
	result := make([]string, len(cfgInstance.warnings))
	copy(result, cfgInstance.warnings)
	return result
}

// Env возвращает EnvConfig из глобального singleton. Это неизменяемый снимок
// на момент загрузки.
func Env() EnvConfig {
	return cfgInstance.Env
}

// parseRequiredInt читает обязательную целочисленную переменную окружения name.
func parseRequiredInt(name string) (int, error) {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		return 0, fmt.Errorf("env %s must be set", name)
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("env %s must be a valid integer: %w", name, err)
	}
	return v, nil
}

// parseIntDefault читает name как int. Если пусто/некорректно/не проходит
// validator — возвращает defaultVal и пишет предупреждение.
func parseIntDefault(name string, defaultVal int, validator func(int) bool, warnings *[]string) int {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %d", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.Atoi(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid integer; using default %d", name, value, defaultVal)
		return defaultVal
	}
	if validator != nil && !validator(v) {
		appendWarningf(warnings, "env %s value %d does not satisfy constraints; using default %d", name, v, defaultVal)
		return defaultVal
	}
	return v
}

// parseBoolDefault читает name как bool. Если пусто/некорректно — defaultVal + предупреждение.
func parseBoolDefault(name string, defaultVal bool, warnings *[]string) bool {
	value := strings.TrimSpace(os.Getenv(name))
	if value == "" {
		appendWarningf(warnings, "env %s is not set; using default %v", name, defaultVal)
		return defaultVal
	}
	v, err := strconv.ParseBool(value)
	if err != nil {
		appendWarningf(warnings, "env %s value %q is not a valid boolean; using default %v", name, value, defaultVal)
		return defaultVal
	}
	return v
}

// appendWarningf накапливает предупреждения о некорректных переменных окружения.
func appendWarningf(warnings *[]string, format string, args ...any) {
	if warnings == nil {
		return
	}
	*warnings = append(*warnings, fmt.Sprintf(format, args...))
}

func greaterThanZero(v int) bool { return v > 0 }
func nonNegative(v int) bool     { return v >= 0 }

// sanitizeLogLevel нормализует уровень логирования и ограничивает значения
// набором {debug, info, warn, error}.
func sanitizeLogLevel(level string, defaultVal string, warnings *[]string) string {
	lvl := strings.ToLower(strings.TrimSpace(level))
	if lvl == "" {
		appendWarningf(warnings, "env LOG_LEVEL is not set; using default %q", defaultVal)
		return defaultVal
	}
	switch lvl {
	case "debug", "info", "warn", "error":
		return lvl
	default:
		appendWarningf(warnings, "env LOG_LEVEL value %q is invalid; using default %q", level, defaultVal)
		return defaultVal
	}
}

// sanitizeFile возвращает валидное имя файла/каталога конфигурации.
func sanitizeFile(name, value, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env %s is not set; using default %q", name, fallback)
		return fallback
	}
	return v
}

// sanitizeTimezone проверяет, что значение — корректная IANA-зона или UTC-смещение.
func sanitizeTimezone(value string, fallback string, warnings *[]string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		appendWarningf(warnings, "env APP_TIMEZONE is not set; using default %q", fallback)
		return fallback
	}
	if _, err := timeutil.ParseLocation(v); err != nil {
		appendWarningf(warnings, "timezone %q is invalid; using default %q", v, fallback)
		return fallback
	}
	return v
}
