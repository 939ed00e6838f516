package storage

import (
	"context"
	"errors"
	"fmt"
	"path"
)

// ErrNotFound 对象不存在
var ErrNotFound = errors.New("对象不存在")

// BackupDir 备份放在原文件同目录下的子目录中
const BackupDir = ".backup"

// Store 以 "/" 分隔的 key 存取图像
type Store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, data []byte) error
	Exists(ctx context.Context, key string) (bool, error)
}

// BackupKey upfile/1234567G/a.jpg → upfile/1234567G/.backup/a.jpg
func BackupKey(key string) string {
	dir, name := path.Split(key)
	return path.Join(dir, BackupDir, name)
}

// Backup 将 key 复制到备份位置；备份已存在时保持不变，保证始终保留最初的原图
func Backup(ctx context.Context, s Store, key string) (string, error) {
	dst := BackupKey(key)
	exists, err := s.Exists(ctx, dst)
	if err != nil {
		return "", fmt.Errorf("检查备份失败: %w", err)
	}
	if exists {
		return dst, nil
	}

	data, err := s.Get(ctx, key)
	if err != nil {
		return "", fmt.Errorf("读取原图失败: %w", err)
	}
	if err = s.Put(ctx, dst, data); err != nil {
		return "", fmt.Errorf("写入备份失败: %w", err)
	}
	return dst, nil
}

// Restore 用备份覆盖 key
func Restore(ctx context.Context, s Store, key string) error {
	data, err := s.Get(ctx, BackupKey(key))
	if err != nil {
		return fmt.Errorf("读取备份失败: %w", err)
	}
	if err = s.Put(ctx, key, data); err != nil {
		return fmt.Errorf("恢复原图失败: %w", err)
	}
	return nil
}
