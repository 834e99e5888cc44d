// Package otp — ядро защиты кодов входа: классификация сервисных сообщений,
// таблица решений политики, временные оверрайды и исполнение действий
// (уничтожение, пересылка, игнорирование) с записью в журнал аудита.
package otp

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

// UnknownCode — сигнальное значение: сообщение классифицировано как код входа,
// но извлечь цифры не удалось. Такое сообщение удаляется и владелец
// уведомляется, однако вызов инвалидации кодов пропускается.
const UnknownCode = "Unknown"

// Опорные фразы сервисного сообщения с кодом входа. Сравнение — без учёта
// регистра; достаточно вхождения любой из фраз.
var loginPhrases = []string{
	"login code",
	"verification code",
	"telegram code",
}

// codeRe находит последовательности из 5..7 цифр, допускающие одиночный
// дефис или пробел между соседними цифрами («12-345», «123 456»).
// Границы слова проверяются отдельно: RE2 не поддерживает lookaround.
var codeRe = regexp.MustCompile(`\d(?:[-\s]?\d){4,6}`)

// IsLoginCode сообщает, похоже ли сообщение на сервисное сообщение с кодом
// входа. Классификация идёт только по тексту: принадлежность отправителя
// сервисному диапазону проверяет слушатель до постановки события в очередь.
func IsLoginCode(text string) bool {
	lower := strings.ToLower(text)
	for _, phrase := range loginPhrases {
		if strings.Contains(lower, phrase) {
			return true
		}
	}
	return false
}

// ExtractCode возвращает первый код из текста в нормализованном виде
// (только цифры) либо UnknownCode, если ни одного кода не нашлось.
func ExtractCode(text string) string {
	codes := ExtractCodes(text)
	if len(codes) == 0 {
		return UnknownCode
	}
	return codes[0]
}

// ExtractCodes возвращает все коды из текста: нормализованные (разделители
// убраны), без дубликатов, в порядке появления. Сообщение Telegram может
// нести несколько кодов сразу, инвалидировать нужно каждый.
func ExtractCodes(text string) []string {
	var (
		codes []string
		seen  = make(map[string]struct{})
	)
	for _, loc := range codeRe.FindAllStringIndex(text, -1) {
		if !isolatedMatch(text, loc[0], loc[1]) {
			continue
		}
		code := normalizeCode(text[loc[0]:loc[1]])
		if len(code) < 5 || len(code) > 7 {
			continue
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		codes = append(codes, code)
	}
	return codes
}

// isolatedMatch проверяет, что совпадение не прилипает к буквам/цифрам слева
// и справа. Ручная замена lookaround-ассертов: «A48219B» — не код.
func isolatedMatch(text string, start, end int) bool {
	if start > 0 {
		r, _ := utf8.DecodeLastRuneInString(text[:start])
		if isWordRune(r) {
			return false
		}
	}
	if end < len(text) {
		r, _ := utf8.DecodeRuneInString(text[end:])
		if isWordRune(r) {
			return false
		}
	}
	return true
}

func isWordRune(r rune) bool {
	return r == '_' || unicode.IsLetter(r) || unicode.IsDigit(r)
}

// normalizeCode убирает разделители, оставляя только цифры.
func normalizeCode(raw string) string {
	var b strings.Builder
	b.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Excerpt возвращает первые limit символов текста для записи в журнал аудита.
// Считаем в рунах, чтобы не резать UTF-8 посередине символа.
func Excerpt(text string, limit int) string {
	runes := []rune(text)
	if len(runes) <= limit {
		return text
	}
	return string(runes[:limit])
}
