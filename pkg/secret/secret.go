package secret

import (
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/sha3"
)

// Prefix 标识已加密字段。
const Prefix = "enc:"

var (
	mu   sync.RWMutex
	aead cipher.AEAD
)

// Init 用给定材料初始化进程级密钥。material 为空时从 keyFile 读取，
// keyFile 不存在则生成随机密钥并以 0600 落盘（首次启动自举）。
func Init(material, keyFile string) error {
	var key []byte
	switch {
	case material != "":
		// 任意长度口令派生为 32 字节
		sum := sha3.Sum256([]byte(material))
		key = sum[:]
	case keyFile != "":
		b, err := os.ReadFile(keyFile)
		if errors.Is(err, os.ErrNotExist) {
			b = make([]byte, chacha20poly1305.KeySize)
			if _, err = rand.Read(b); err != nil {
				return err
			}
			if err = os.WriteFile(keyFile, b, 0600); err != nil {
				return err
			}
		} else if err != nil {
			return err
		}
		if len(b) != chacha20poly1305.KeySize {
			return errors.New("secret: key file must hold exactly 32 bytes")
		}
		key = b
	default:
		return errors.New("secret: no key material")
	}
	a, err := chacha20poly1305.NewX(key)
	if err != nil {
		return err
	}
	mu.Lock()
	aead = a
	mu.Unlock()
	return nil
}

// EncryptString 加密并加 Prefix；空串与已加密值原样返回。
func EncryptString(s string) (string, error) {
	if s == "" || strings.HasPrefix(s, Prefix) {
		return s, nil
	}
	mu.RLock()
	a := aead
	mu.RUnlock()
	if a == nil {
		return "", errors.New("secret: not initialized")
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := a.Seal(nonce, nonce, []byte(s), nil)
	return Prefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptString 解密；若不是加密格式则原样返回以兼容旧数据。
func DecryptString(s string) (string, error) {
	if s == "" || !strings.HasPrefix(s, Prefix) {
		return s, nil
	}
	mu.RLock()
	a := aead
	mu.RUnlock()
	if a == nil {
		return "", errors.New("secret: not initialized")
	}
	raw, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(s, Prefix))
	if err != nil {
		return "", err
	}
	if len(raw) < chacha20poly1305.NonceSizeX {
		return "", errors.New("secret: ciphertext too short")
	}
	plain, err := a.Open(nil, raw[:chacha20poly1305.NonceSizeX], raw[chacha20poly1305.NonceSizeX:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
