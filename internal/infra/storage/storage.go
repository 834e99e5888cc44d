// Package storage — утилиты безопасной работы с локальным хранилищем.
// Здесь живут EnsureDir (гарантия каталога для целевого пути) и
// AtomicWriteFile (атомарная запись с fsync). Используется для файлов
// MTProto-сессий и прочих чувствительных данных, где недопустимы
// частично записанные файлы.
package storage

import (
	"fmt"
	"os"
	"path/filepath"

	"telegram-otpguard/internal/infra/logger"
)

// DefaultFilePerm — права на итоговые файлы (сессии, базы). Только владелец.
const DefaultFilePerm = 0o600

// EnsureDir гарантирует наличие каталога для указанного файла.
// Если путь не содержит директорию ("." или пустая строка), ничего не делает.
// Каталоги создаются с правами 0o700.
func EnsureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "." || dir == "" {
		return nil
	}
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create dir %s: %w", dir, err)
	}
	return nil
}

// AtomicWriteFile атомарно записывает байты в файл path.
//
// Алгоритм: temp в той же директории → write → fsync(temp) → chmod →
// close → rename → fsync(dir). Либо старый файл остаётся цел, либо новый
// записан полностью. os.Rename атомарен только в пределах одного тома;
// fsync каталога — best-effort и может игнорироваться некоторыми ФС.
func AtomicWriteFile(path string, data []byte) error {
	clean := filepath.Clean(path)
	if err := EnsureDir(clean); err != nil {
		return err
	}
	dir := filepath.Dir(clean)

	tmp, err := os.CreateTemp(dir, "atomic-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}

	tmpName := tmp.Name()
	defer func() { _ = os.Remove(tmpName) }()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("fsync temp file: %w", err)
	}
	if err = tmp.Chmod(DefaultFilePerm); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}

	if err = os.Rename(tmpName, clean); err != nil {
		return fmt.Errorf("rename temp file: %w", err)
	}

	// fsync каталога журналирует запись имени файла в метаданные.
	if dirFile, errOpen := os.Open(dir); errOpen == nil {
		if errSync := dirFile.Sync(); errSync != nil {
			logger.Warnf("AtomicWriteFile: dir sync error: %v", errSync)
		}
		_ = dirFile.Close()
	}
	return nil
}
