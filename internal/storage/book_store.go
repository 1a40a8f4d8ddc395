// internal/storage/book_store.go
package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/lanbinleo/NovelWriter/internal/config"
)

// BookStore 书籍索引与书籍文档的文件布局：
//
//	<DataDir>/bookList.json
//	<DataDir>/books/<id>.json
type BookStore struct {
	files *FileStorage
}

// NewBookStore 创建书籍存储并确保目录结构存在
func NewBookStore(cfg *config.Config) (*BookStore, error) {
	files, err := NewFileStorage(cfg.DataDir)
	if err != nil {
		return nil, err
	}
	if err := files.EnsureDir(config.BooksDirName); err != nil {
		return nil, err
	}
	return &BookStore{files: files}, nil
}

// BaseDir 数据目录
func (s *BookStore) BaseDir() string {
	return s.files.BaseDir
}

// SaveBookList 覆盖写入书籍索引
func (s *BookStore) SaveBookList(raw []byte) error {
	return s.files.SaveJSONFile("", config.IndexFileName, raw)
}

// LoadBookList 读取书籍索引的原始内容
func (s *BookStore) LoadBookList() ([]byte, error) {
	return s.files.LoadTextFile("", config.IndexFileName)
}

// IndexSize 索引数组的条目数；索引不存在时为 0，索引不是数组时报错
func (s *BookStore) IndexSize() (int, error) {
	var entries []json.RawMessage
	if err := s.files.LoadJSONFile("", config.IndexFileName, &entries); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return 0, nil
		}
		return 0, err
	}
	return len(entries), nil
}

// HasBookList 索引文件是否存在
func (s *BookStore) HasBookList() bool {
	return s.files.FileExists("", config.IndexFileName)
}

// SaveBook 覆盖写入单本书籍文档，id 必须已经过校验
func (s *BookStore) SaveBook(id string, raw []byte) error {
	return s.files.SaveJSONFile(config.BooksDirName, bookFileName(id), raw)
}

// LoadBook 读取单本书籍文档的原始内容
func (s *BookStore) LoadBook(id string) ([]byte, error) {
	return s.files.LoadTextFile(config.BooksDirName, bookFileName(id))
}

// HasBook 书籍文档是否存在
func (s *BookStore) HasBook(id string) bool {
	return s.files.FileExists(config.BooksDirName, bookFileName(id))
}

// DeleteBook 删除书籍文档；不存在时返回 false 且无错误
func (s *BookStore) DeleteBook(id string) (bool, error) {
	return s.files.DeleteFile(config.BooksDirName, bookFileName(id))
}

func bookFileName(id string) string {
	return fmt.Sprintf("%s.json", id)
}
