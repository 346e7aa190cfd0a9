package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path"
	"strings"
	"sync"
)

var (
	fileEncrKey = []byte("Fq7#kWz2!pR9xLm4$Tb8Nv0&Hc5jYd3Q")
)

// EncryptedFile stores AES-GCM sealed, base64 encoded bytes on disk.
// It keeps tenant API tokens and warehouse passwords out of plain text.
type EncryptedFile struct {
	Dirname    string
	FileName   string
	FilePrefix string
	FileExt    string
	FullPath   string
	mu         sync.Mutex
}

func NewEncryptedFileWithDir(dirName string, filename string) *EncryptedFile {
	f := &EncryptedFile{Dirname: dirName, FileName: filename}
	f.FullPath = path.Join(dirName, filename)
	f.FileExt = strings.TrimLeft(path.Ext(filename), ".")
	f.FilePrefix = strings.TrimSuffix(f.FileName, "."+f.FileExt)
	return f
}

func (f *EncryptedFile) Set(text []byte) (err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	sealedBytes, err := Encrypt(text, fileEncrKey)
	if err != nil {
		return err
	}
	b64 := base64.StdEncoding.EncodeToString(sealedBytes)
	if !fileExists(f.FullPath) { // if the file does not exist...
		if err := makeDir(f.Dirname); err != nil { // if we could not create the config directory...
			return err
		}
	}
	return os.WriteFile(f.FullPath, []byte(b64), 0600)
}

func (f *EncryptedFile) Get() (text []byte, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !fileExists(f.FullPath) { // if the file does not exist...
		return nil, FileNotFoundError{f.FullPath}
	}
	b64, err := os.ReadFile(f.FullPath)
	if err != nil {
		return nil, err
	}
	cipherText, err := base64.StdEncoding.DecodeString(string(b64))
	if err != nil {
		return nil, err
	}
	return Decrypt(cipherText, fileEncrKey)
}

func fileExists(filename string) bool {
	info, err := os.Stat(filename)
	if os.IsNotExist(err) {
		return false
	}
	return err == nil && !info.IsDir()
}

// Encrypt seals text with AES-GCM and returns nonce+ciphertext.
func Encrypt(text []byte, key []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}
	// The nonce must be unique for all time for a given key.
	nonce := make([]byte, gcm.NonceSize())
	if _, err = io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return gcm.Seal(nonce, nonce, text, nil), nil
}

func Decrypt(text []byte, key []byte) ([]byte, error) {
	c, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(c)
	if err != nil {
		return nil, err
	}
	nonceSize := gcm.NonceSize()
	if len(text) < nonceSize {
		return nil, fmt.Errorf("encrypted text is too short")
	}
	nonce, cipherText := text[:nonceSize], text[nonceSize:]
	return gcm.Open(nil, nonce, cipherText, nil)
}
