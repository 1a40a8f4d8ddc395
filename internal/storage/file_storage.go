// internal/storage/file_storage.go
package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"unicode/utf16"
	"unicode/utf8"
)

// FileStorage 提供基于目录的文件存储服务
type FileStorage struct {
	BaseDir string

	// 文件级别锁 path -> *sync.RWMutex
	fileLocks sync.Map
}

// NewFileStorage 创建文件存储服务
func NewFileStorage(baseDir string) (*FileStorage, error) {
	if err := os.MkdirAll(baseDir, 0755); err != nil {
		return nil, fmt.Errorf("create storage dir %s: %w", baseDir, err)
	}

	return &FileStorage{BaseDir: baseDir}, nil
}

// 获取文件锁
func (fs *FileStorage) getFileLock(fullPath string) *sync.RWMutex {
	value, _ := fs.fileLocks.LoadOrStore(fullPath, &sync.RWMutex{})
	return value.(*sync.RWMutex)
}

// SaveTextFile 原子性地写入文件：先写临时文件再重命名
func (fs *FileStorage) SaveTextFile(dirPath, filename string, content []byte) error {
	fullDirPath := filepath.Join(fs.BaseDir, dirPath)
	fullPath := filepath.Join(fullDirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.MkdirAll(fullDirPath, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", fullDirPath, err)
	}

	tmp, err := os.CreateTemp(fullDirPath, "."+filename+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", filename, err)
	}
	tempPath := tmp.Name()

	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("write %s: %w", filename, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tempPath)
		return fmt.Errorf("sync %s: %w", filename, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("close %s: %w", filename, err)
	}
	if err := os.Chmod(tempPath, 0644); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("chmod %s: %w", filename, err)
	}

	if err := os.Rename(tempPath, fullPath); err != nil {
		os.Remove(tempPath)
		return fmt.Errorf("save %s: %w", filename, err)
	}

	return nil
}

// SaveJSONFile 将原始 JSON 以两空格缩进写入文件。
// 键顺序、数字字面量和非ASCII字符保持原样。
func (fs *FileStorage) SaveJSONFile(dirPath, filename string, raw []byte) error {
	content, err := IndentJSON(raw)
	if err != nil {
		return err
	}
	return fs.SaveTextFile(dirPath, filename, content)
}

// LoadTextFile 读取文本文件
func (fs *FileStorage) LoadTextFile(dirPath, filename string) ([]byte, error) {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.RLock()
	defer lock.RUnlock()

	content, err := os.ReadFile(fullPath)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filename, err)
	}
	return content, nil
}

// LoadJSONFile 读取并解析JSON文件
func (fs *FileStorage) LoadJSONFile(dirPath, filename string, v interface{}) error {
	content, err := fs.LoadTextFile(dirPath, filename)
	if err != nil {
		return err
	}

	if err := json.Unmarshal(content, v); err != nil {
		return fmt.Errorf("parse %s: %w", filename, err)
	}
	return nil
}

// FileExists 检查文件是否存在
func (fs *FileStorage) FileExists(dirPath, filename string) bool {
	info, err := os.Stat(filepath.Join(fs.BaseDir, dirPath, filename))
	return err == nil && !info.IsDir()
}

// DeleteFile 删除文件，文件不存在时不报错。返回文件此前是否存在。
func (fs *FileStorage) DeleteFile(dirPath, filename string) (bool, error) {
	fullPath := filepath.Join(fs.BaseDir, dirPath, filename)

	lock := fs.getFileLock(fullPath)
	lock.Lock()
	defer lock.Unlock()

	if err := os.Remove(fullPath); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("delete %s: %w", filename, err)
	}
	return true, nil
}

// EnsureDir 确保子目录存在
func (fs *FileStorage) EnsureDir(dirPath string) error {
	fullPath := filepath.Join(fs.BaseDir, dirPath)
	if err := os.MkdirAll(fullPath, 0755); err != nil {
		return fmt.Errorf("create dir %s: %w", fullPath, err)
	}
	return nil
}

// IndentJSON 校验并缩进原始 JSON，不做 HTML 转义，\uXXXX 还原为字符
func IndentJSON(raw []byte) ([]byte, error) {
	raw = bytes.TrimSpace(raw)
	if !utf8.Valid(raw) {
		return nil, fmt.Errorf("JSON document is not valid UTF-8")
	}
	if !json.Valid(raw) {
		return nil, fmt.Errorf("invalid JSON document")
	}

	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		return nil, fmt.Errorf("indent JSON: %w", err)
	}
	return unescapeUnicode(buf.Bytes()), nil
}

// unescapeUnicode 将字符串中的 \uXXXX 转义写回 UTF-8 字符。
// 控制字符、引号、反斜杠和孤立代理项保持转义。输入必须是合法 JSON。
func unescapeUnicode(src []byte) []byte {
	if !bytes.Contains(src, []byte(`\u`)) {
		return src
	}

	out := make([]byte, 0, len(src))
	inString := false
	for i := 0; i < len(src); i++ {
		c := src[i]
		if !inString {
			if c == '"' {
				inString = true
			}
			out = append(out, c)
			continue
		}

		switch c {
		case '"':
			inString = false
			out = append(out, c)
		case '\\':
			if r, n := decodeEscape(src[i:]); n > 0 {
				out = utf8.AppendRune(out, r)
				i += n - 1
				continue
			}
			out = append(out, c, src[i+1])
			i++
		default:
			out = append(out, c)
		}
	}
	return out
}

// decodeEscape 解析 src 开头的 \uXXXX（含代理对），返回字符和占用的字节数；
// 需要保持转义时返回 0
func decodeEscape(src []byte) (rune, int) {
	r, ok := hex4(src)
	if !ok {
		return 0, 0
	}

	if utf16.IsSurrogate(r) {
		if r >= 0xDC00 || len(src) < 12 {
			return 0, 0
		}
		lo, ok := hex4(src[6:])
		if !ok {
			return 0, 0
		}
		combined := utf16.DecodeRune(r, lo)
		if combined == utf8.RuneError {
			return 0, 0
		}
		return combined, 12
	}

	if r < 0x20 || r == '"' || r == '\\' {
		return 0, 0
	}
	return r, 6
}

func hex4(src []byte) (rune, bool) {
	if len(src) < 6 || src[0] != '\\' || src[1] != 'u' {
		return 0, false
	}
	v, err := strconv.ParseUint(string(src[2:6]), 16, 32)
	if err != nil {
		return 0, false
	}
	return rune(v), true
}
