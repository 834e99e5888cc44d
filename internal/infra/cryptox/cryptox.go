// Package cryptox — криптографические примитивы сервиса.
// Здесь два независимых инструмента:
//   - хэширование пароля отключения защиты (argon2id, случайная соль,
//     константное по времени сравнение) — в базе никогда не лежит plaintext;
//   - AES-GCM-шифрование идентификаторов аккаунтов (имя/телефон) для
//     зашифрованного индекса в хранилище.
package cryptox

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"fmt"
	"strings"

	"github.com/go-faster/errors"
	"golang.org/x/crypto/argon2"
)

// Параметры argon2id. Подобраны умеренными: проверка пароля происходит на
// интерактивном пути (команда владельца), а не на горячем пути событий.
const (
	argonTime    = 1
	argonMemory  = 64 * 1024
	argonThreads = 4
	argonKeyLen  = 32
	argonSaltLen = 16
)

// hashPrefix идентифицирует схему хэширования в сериализованном виде.
// Формат строки: argon2id$<base64(salt)>$<base64(hash)>.
const hashPrefix = "argon2id"

// HashPassword возвращает сериализованный argon2id-хэш пароля со свежей солью.
func HashPassword(password string) (string, error) {
	salt := make([]byte, argonSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", errors.Wrap(err, "generate salt")
	}
	sum := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, argonKeyLen)
	return fmt.Sprintf("%s$%s$%s",
		hashPrefix,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(sum),
	), nil
}

// VerifyPassword сверяет пароль с сериализованным хэшем. Сравнение —
// константное по времени. Любой дефект формата трактуется как несовпадение.
func VerifyPassword(encoded, password string) bool {
	parts := strings.Split(encoded, "$")
	if len(parts) != 3 || parts[0] != hashPrefix {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	got := argon2.IDKey([]byte(password), salt, argonTime, argonMemory, argonThreads, uint32(len(want)))
	return subtle.ConstantTimeCompare(got, want) == 1
}

// Seal шифрует plaintext ключом key (AES-128/192/256 по длине ключа).
// Для каждого вызова генерируется свежий 12-байтовый nonce; возвращается отдельно.
func Seal(plaintext, key []byte) (ciphertext, nonce []byte, err error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, nil, errors.Wrap(err, "new cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, nil, errors.Wrap(err, "new gcm")
	}
	nonce = make([]byte, aead.NonceSize())
	if _, err = rand.Read(nonce); err != nil {
		return nil, nil, errors.Wrap(err, "generate nonce")
	}
	return aead.Seal(nil, nonce, plaintext, nil), nonce, nil
}

// Open расшифровывает ciphertext тем же ключом и nonce, что при Seal.
func Open(ciphertext, nonce, key []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, errors.Wrap(err, "new cipher")
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, errors.Wrap(err, "new gcm")
	}
	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, errors.Wrap(err, "open")
	}
	return plaintext, nil
}
