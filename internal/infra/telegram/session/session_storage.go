package session

// Пакет session — обёртка поверх tdsession.Storage для MTProto-сессий.
// Каждому управляемому аккаунту соответствует свой файл сессии; запись на
// диск атомарна, чтобы обрыв процесса не оставил частичного состояния.
// Успешное сохранение сессии означает удачный логин или реавторизацию,
// поэтому FileStorage дополнительно дергает колбэк OnStored (им пользуется
// пул подключений, чтобы отметить подключение живым).

import (
	"context"
	"os"
	"sync"

	"telegram-otpguard/internal/infra/storage"

	"github.com/go-faster/errors"

	tdsession "github.com/gotd/td/session"
)

// FileStorage реализует tdsession.Storage поверх обычного файла.
// Потокобезопасен: Load/Store защищены мьютексом.
type FileStorage struct {
	Path string
	// OnStored вызывается после каждой удачной записи сессии; nil допустим.
	OnStored func()

	mux sync.Mutex
}

// Компиляторная проверка соответствия интерфейсу tdsession.Storage.
var _ tdsession.Storage = (*FileStorage)(nil)

// LoadSession читает файл сессии с диска.
func (f *FileStorage) LoadSession(_ context.Context) ([]byte, error) {
	if f == nil {
		return nil, errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	data, err := os.ReadFile(f.Path)
	if os.IsNotExist(err) {
		return nil, tdsession.ErrNotFound
	}
	if err != nil {
		return nil, errors.Wrap(err, "read session")
	}
	return data, nil
}

// StoreSession атомарно сохраняет данные сессии и дергает OnStored.
func (f *FileStorage) StoreSession(_ context.Context, data []byte) error {
	if f == nil {
		return errors.New("nil session storage is invalid")
	}
	f.mux.Lock()
	defer f.mux.Unlock()

	if err := storage.AtomicWriteFile(f.Path, data); err != nil {
		return errors.Wrap(err, "atomic write session")
	}
	if f.OnStored != nil {
		f.OnStored()
	}
	return nil
}
