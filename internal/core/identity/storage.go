package identity

import (
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dep2p/go-dep2p-swarm/pkg/lib/crypto"
)

// pemTypePrivateKey PEM 块类型
const pemTypePrivateKey = "DEP2P PRIVATE KEY"

// ============================================================================
//                              私钥持久化
// ============================================================================

// SavePrivateKeyPEM 保存私钥到 PEM 文件
//
// 使用原子写操作（临时文件 + rename），文件权限 0600。
func SavePrivateKeyPEM(key crypto.PrivateKey, path string) error {
	data, err := crypto.MarshalPrivateKey(key)
	if err != nil {
		return err
	}
	block := &pem.Block{
		Type:    pemTypePrivateKey,
		Headers: map[string]string{"Key-Type": key.Type().String()},
		Bytes:   data,
	}
	return atomicWriteFile(path, pem.EncodeToMemory(block), 0o600)
}

// LoadPrivateKeyPEM 从 PEM 文件加载私钥
func LoadPrivateKeyPEM(path string) (crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrKeyNotFound
		}
		return nil, err
	}

	block, _ := pem.Decode(data)
	if block == nil || block.Type != pemTypePrivateKey {
		return nil, ErrInvalidPEM
	}
	return crypto.UnmarshalPrivateKey(block.Bytes)
}

// ============================================================================
//                              原子写操作
// ============================================================================

// atomicWriteFile 原子写文件
//
// 流程：
//  1. 写入同目录下的临时文件
//  2. 同步到磁盘
//  3. rename 到目标路径
//
// 任何步骤失败时目标文件保持不变。
func atomicWriteFile(path string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(path)
	tmpFile, err := os.CreateTemp(dir, ".tmp-")
	if err != nil {
		return fmt.Errorf("创建临时文件失败: %w", err)
	}
	tmpPath := tmpFile.Name()

	success := false
	defer func() {
		if !success {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err := tmpFile.Write(data); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("写入临时文件失败: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("同步临时文件失败: %w", err)
	}
	if err := tmpFile.Chmod(perm); err != nil {
		_ = tmpFile.Close()
		return fmt.Errorf("设置文件权限失败: %w", err)
	}
	if err := tmpFile.Close(); err != nil {
		return fmt.Errorf("关闭临时文件失败: %w", err)
	}

	if err := os.Rename(tmpPath, path); err != nil {
		return fmt.Errorf("原子 rename 失败: %w", err)
	}
	success = true
	return nil
}
