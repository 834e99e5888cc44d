// Package accountdb — персистентный слой на bbolt: записи аккаунтов и
// append-only журнал аудита. Реализует accounts.Store.
//
// Раскладка базы:
//
//	accounts/                 ключ <owner:8BE>/<account_id> -> JSON Account
//	audit/<тот же ключ>/      вложенный бакет, ключ NextSequence (8BE) -> JSON AuditEntry
//
// Если задан ключ шифрования идентификаторов, Save перекладывает имя и
// телефон в зашифрованные поля (AES-GCM) и очищает открытые; чтение
// прозрачно расшифровывает их обратно. Записи без шифрования продолжают
// читаться как есть, миграция происходит при первом сохранении.
package accountdb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	"telegram-otpguard/internal/domain/accounts"
	"telegram-otpguard/internal/infra/cryptox"
	"telegram-otpguard/internal/infra/logger"
	"telegram-otpguard/internal/infra/storage"

	"github.com/go-faster/errors"
	"go.etcd.io/bbolt"
	"go.uber.org/zap"
)

var (
	bucketAccounts = []byte("accounts")
	bucketAudit    = []byte("audit")
)

// Bolt — реализация accounts.Store поверх одного файла bbolt.
type Bolt struct {
	db          *bbolt.DB
	identityKey []byte // nil = идентификаторы хранятся открыто
}

// Open открывает (или создаёт) базу по пути path. identityKey — AES-ключ
// шифрования идентификаторов; nil отключает шифрование.
func Open(path string, identityKey []byte) (*Bolt, error) {
	if err := storage.EnsureDir(path); err != nil {
		return nil, errors.Wrap(err, "ensure db dir")
	}
	db, err := bbolt.Open(path, storage.DefaultFilePerm, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrap(err, "open bbolt")
	}
	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketAccounts); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(bucketAudit)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, errors.Wrap(err, "create buckets")
	}
	return &Bolt{db: db, identityKey: identityKey}, nil
}

// Close закрывает файл базы.
func (b *Bolt) Close() error {
	return b.db.Close()
}

// recordKey собирает ключ записи: 8 байт владельца (big-endian) + '/' + id.
// Big-endian даёт сортировку по владельцу и дешёвый префиксный обход.
func recordKey(ownerID int64, accountID string) []byte {
	key := make([]byte, 0, 9+len(accountID))
	var owner [8]byte
	binary.BigEndian.PutUint64(owner[:], uint64(ownerID))
	key = append(key, owner[:]...)
	key = append(key, '/')
	key = append(key, accountID...)
	return key
}

func ownerPrefix(ownerID int64) []byte {
	var owner [8]byte
	binary.BigEndian.PutUint64(owner[:], uint64(ownerID))
	return append(owner[:], '/')
}

// Get возвращает запись по точному ключу.
func (b *Bolt) Get(ctx context.Context, ownerID int64, accountID string) (*accounts.Account, error) {
	var acc *accounts.Account
	err := b.db.View(func(tx *bbolt.Tx) error {
		raw := tx.Bucket(bucketAccounts).Get(recordKey(ownerID, accountID))
		if raw == nil {
			return accounts.ErrNotFound
		}
		var err error
		acc, err = b.decode(raw)
		return err
	})
	if err != nil {
		return nil, err
	}
	return acc, nil
}

// FindByName ищет запись владельца по открытому имени.
func (b *Bolt) FindByName(ctx context.Context, ownerID int64, name string) (*accounts.Account, error) {
	return b.findByOwner(ownerID, func(acc *accounts.Account) bool {
		return acc.Name != "" && acc.Name == name
	})
}

// FindByPhone ищет запись владельца по открытому телефону.
func (b *Bolt) FindByPhone(ctx context.Context, ownerID int64, phone string) (*accounts.Account, error) {
	return b.findByOwner(ownerID, func(acc *accounts.Account) bool {
		return acc.Phone != "" && acc.Phone == phone
	})
}

// FindByEncryptedIdentity ищет запись, чей расшифрованный идентификатор
// (имя или телефон) совпадает с подсказкой. Записи расшифровываются при
// декодировании, поэтому сравнение здесь идёт по уже открытым полям.
func (b *Bolt) FindByEncryptedIdentity(ctx context.Context, ownerID int64, hint string) (*accounts.Account, error) {
	if b.identityKey == nil {
		return nil, accounts.ErrNotFound
	}
	return b.findByOwner(ownerID, func(acc *accounts.Account) bool {
		return (len(acc.NameEnc) > 0 || len(acc.PhoneEnc) > 0) &&
			(acc.Name == hint || acc.Phone == hint)
	})
}

// findByOwner обходит записи владельца и возвращает первую подходящую.
func (b *Bolt) findByOwner(ownerID int64, match func(*accounts.Account) bool) (*accounts.Account, error) {
	var found *accounts.Account
	prefix := ownerPrefix(ownerID)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAccounts).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			acc, err := b.decode(v)
			if err != nil {
				logger.Warn("accountdb: skipping undecodable record", zap.ByteString("key", k), zap.Error(err))
				continue
			}
			if match(acc) {
				found = acc
				return nil
			}
		}
		return accounts.ErrNotFound
	})
	if err != nil {
		return nil, err
	}
	return found, nil
}

// ListByOwner возвращает все записи владельца.
func (b *Bolt) ListByOwner(ctx context.Context, ownerID int64) ([]*accounts.Account, error) {
	var result []*accounts.Account
	prefix := ownerPrefix(ownerID)
	err := b.db.View(func(tx *bbolt.Tx) error {
		c := tx.Bucket(bucketAccounts).Cursor()
		for k, v := c.Seek(prefix); k != nil && bytes.HasPrefix(k, prefix); k, v = c.Next() {
			acc, err := b.decode(v)
			if err != nil {
				return err
			}
			result = append(result, acc)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// ListAll возвращает записи всех владельцев (используется на старте для
// подъёма слушателей).
func (b *Bolt) ListAll(ctx context.Context) ([]*accounts.Account, error) {
	var result []*accounts.Account
	err := b.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(k, v []byte) error {
			acc, err := b.decode(v)
			if err != nil {
				return err
			}
			result = append(result, acc)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Save сохраняет запись. При заданном ключе шифрования открытые
// идентификаторы перекладываются в зашифрованные поля.
func (b *Bolt) Save(ctx context.Context, acc *accounts.Account) error {
	rec := acc.Clone()
	if b.identityKey != nil {
		if err := b.seal(rec); err != nil {
			return errors.Wrap(err, "seal identity")
		}
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return errors.Wrap(err, "marshal account")
	}
	return b.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketAccounts).Put(recordKey(rec.OwnerID, rec.ID), raw)
	})
}

// Delete удаляет запись аккаунта. Журнал аудита не трогается.
func (b *Bolt) Delete(ctx context.Context, ownerID int64, accountID string) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		key := recordKey(ownerID, accountID)
		bkt := tx.Bucket(bucketAccounts)
		if bkt.Get(key) == nil {
			return accounts.ErrNotFound
		}
		return bkt.Delete(key)
	})
}

// AppendAudit дописывает запись в журнал аккаунта. Порядковый номер выдаёт
// NextSequence бакета; ключи big-endian, значит обход курсором хронологичен.
func (b *Bolt) AppendAudit(ctx context.Context, ownerID int64, accountID string, entry accounts.AuditEntry) error {
	return b.db.Update(func(tx *bbolt.Tx) error {
		bkt, err := tx.Bucket(bucketAudit).CreateBucketIfNotExists(recordKey(ownerID, accountID))
		if err != nil {
			return errors.Wrap(err, "create audit bucket")
		}
		seq, err := bkt.NextSequence()
		if err != nil {
			return errors.Wrap(err, "next sequence")
		}
		entry.Seq = seq
		raw, err := json.Marshal(entry)
		if err != nil {
			return errors.Wrap(err, "marshal audit entry")
		}
		var key [8]byte
		binary.BigEndian.PutUint64(key[:], seq)
		return bkt.Put(key[:], raw)
	})
}

// AuditLog возвращает журнал аккаунта в порядке добавления.
func (b *Bolt) AuditLog(ctx context.Context, ownerID int64, accountID string) ([]accounts.AuditEntry, error) {
	var result []accounts.AuditEntry
	err := b.db.View(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket(bucketAudit).Bucket(recordKey(ownerID, accountID))
		if bkt == nil {
			return nil
		}
		return bkt.ForEach(func(k, v []byte) error {
			var entry accounts.AuditEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return errors.Wrap(err, "unmarshal audit entry")
			}
			result = append(result, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// seal переносит открытые идентификаторы в зашифрованные поля.
func (b *Bolt) seal(acc *accounts.Account) error {
	if acc.Name != "" {
		ct, nonce, err := cryptox.Seal([]byte(acc.Name), b.identityKey)
		if err != nil {
			return err
		}
		acc.NameEnc, acc.NameNonce = ct, nonce
		acc.Name = ""
	}
	if acc.Phone != "" {
		ct, nonce, err := cryptox.Seal([]byte(acc.Phone), b.identityKey)
		if err != nil {
			return err
		}
		acc.PhoneEnc, acc.PhoneNonce = ct, nonce
		acc.Phone = ""
	}
	return nil
}

// decode разбирает запись и, если настроен ключ, расшифровывает
// идентификаторы обратно в открытые поля возвращаемой копии.
func (b *Bolt) decode(raw []byte) (*accounts.Account, error) {
	var acc accounts.Account
	if err := json.Unmarshal(raw, &acc); err != nil {
		return nil, errors.Wrap(err, "unmarshal account")
	}
	if b.identityKey != nil {
		if acc.Name == "" && len(acc.NameEnc) > 0 {
			pt, err := cryptox.Open(acc.NameEnc, acc.NameNonce, b.identityKey)
			if err != nil {
				return nil, errors.Wrap(err, "open name")
			}
			acc.Name = string(pt)
		}
		if acc.Phone == "" && len(acc.PhoneEnc) > 0 {
			pt, err := cryptox.Open(acc.PhoneEnc, acc.PhoneNonce, b.identityKey)
			if err != nil {
				return nil, errors.Wrap(err, "open phone")
			}
			acc.Phone = string(pt)
		}
	}
	return &acc, nil
}
