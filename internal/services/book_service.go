// internal/services/book_service.go
package services

import (
	"bytes"
	"encoding/json"
	"strings"
	"time"
	"unicode/utf8"

	apperrors "github.com/lanbinleo/NovelWriter/internal/errors"
	"github.com/lanbinleo/NovelWriter/internal/models"
	"github.com/lanbinleo/NovelWriter/internal/storage"
	"github.com/lanbinleo/NovelWriter/internal/utils"
)

// EventPublisher 接收书籍变更事件
type EventPublisher interface {
	Publish(event models.BookEvent)
}

// BookService 书籍索引与书籍文档的读写服务
type BookService struct {
	store     *storage.BookStore
	publisher EventPublisher
	metrics   *utils.BookMetrics
	logger    *utils.Logger
}

// NewBookService 创建书籍服务；publisher 和 metrics 可以为 nil
func NewBookService(store *storage.BookStore, publisher EventPublisher, metrics *utils.BookMetrics, logger *utils.Logger) *BookService {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if metrics == nil {
		metrics = utils.NewBookMetrics(nil, logger)
	}
	return &BookService{
		store:     store,
		publisher: publisher,
		metrics:   metrics,
		logger:    logger,
	}
}

// SaveBookList 用请求体整体替换书籍索引
func (s *BookService) SaveBookList(body []byte) error {
	if !utf8.Valid(body) {
		s.metrics.RecordError("save_book_list", string(apperrors.ErrorTypeValidation))
		return apperrors.NewValidationError("Book list must be UTF-8 text", nil)
	}
	if !json.Valid(bytes.TrimSpace(body)) {
		s.metrics.RecordError("save_book_list", string(apperrors.ErrorTypeValidation))
		return apperrors.NewValidationError("Invalid JSON in book list", nil)
	}

	if err := s.store.SaveBookList(body); err != nil {
		s.metrics.RecordError("save_book_list", string(apperrors.ErrorTypeStorage))
		return apperrors.NewStorageError("Failed to save book list", err)
	}

	s.metrics.RecordWrite("book_list", len(body))
	s.logger.Info("book list saved", map[string]interface{}{"bytes": len(body)})
	s.publish(models.BookEvent{Type: models.EventBookListSaved})
	return nil
}

// SaveBook 按 id 创建或覆盖书籍文档
func (s *BookService) SaveBook(body []byte) (*models.Book, error) {
	book, err := ParseBook(body)
	if err != nil {
		s.metrics.RecordError("save_book", string(apperrors.TypeOf(err)))
		return nil, err
	}

	if err := s.store.SaveBook(book.ID, book.Raw); err != nil {
		s.metrics.RecordError("save_book", string(apperrors.ErrorTypeStorage))
		return nil, apperrors.NewStorageError("Failed to save book", err)
	}

	s.metrics.RecordWrite("book", len(body))
	s.logger.Info("book saved", map[string]interface{}{"id": book.ID, "bytes": len(body)})
	s.publish(models.BookEvent{Type: models.EventBookSaved, BookID: book.ID})
	return book, nil
}

// DeleteBook 删除书籍文档。文件不存在不算错误，返回值表示是否真的删除了文件。
func (s *BookService) DeleteBook(id string) (bool, error) {
	if id == "" {
		s.metrics.RecordError("delete_book", string(apperrors.ErrorTypeValidation))
		return false, apperrors.NewValidationError("Missing book ID", nil)
	}
	if err := ValidateBookID(id); err != nil {
		s.metrics.RecordError("delete_book", string(apperrors.ErrorTypeValidation))
		return false, err
	}

	existed, err := s.store.DeleteBook(id)
	if err != nil {
		s.metrics.RecordError("delete_book", string(apperrors.ErrorTypeStorage))
		return false, apperrors.NewStorageError("Failed to delete book", err)
	}

	s.metrics.RecordDelete(existed)
	s.logger.Info("book deleted", map[string]interface{}{"id": id, "existed": existed})
	s.publish(models.BookEvent{Type: models.EventBookDeleted, BookID: id, Existed: &existed})
	return existed, nil
}

// HasBookList 本地索引是否存在
func (s *BookService) HasBookList() bool {
	return s.store.HasBookList()
}

// IndexSize 本地索引中的书籍条目数
func (s *BookService) IndexSize() (int, error) {
	n, err := s.store.IndexSize()
	if err != nil {
		return 0, apperrors.WrapError(err, "Failed to read book list", apperrors.ErrorTypeStorage)
	}
	return n, nil
}

// HasBook 本地书籍文档是否存在
func (s *BookService) HasBook(id string) bool {
	return ValidateBookID(id) == nil && s.store.HasBook(id)
}

func (s *BookService) publish(event models.BookEvent) {
	if s.publisher == nil {
		return
	}
	event.Timestamp = time.Now()
	s.publisher.Publish(event)
}

// ParseBook 解析书籍文档并提取 id 与 title
func ParseBook(body []byte) (*models.Book, error) {
	body = bytes.TrimSpace(body)
	if !utf8.Valid(body) {
		return nil, apperrors.NewValidationError("Book data must be UTF-8 text", nil)
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(body, &fields); err != nil {
		return nil, apperrors.NewValidationError("Invalid book JSON", err)
	}
	// "null" 也能解析成 nil map
	if fields == nil {
		return nil, apperrors.NewValidationError("Book data must be a JSON object", nil)
	}

	rawID, hasID := fields["id"]
	title, hasTitle := fields["title"]
	if !hasID || !hasTitle {
		return nil, apperrors.NewValidationError("Book data must contain 'id' and 'title'", nil)
	}

	id, err := BookIDFromRaw(rawID)
	if err != nil {
		return nil, err
	}

	return &models.Book{ID: id, Title: title, Raw: body}, nil
}

// BookIDFromRaw 将 JSON 中的 id 值转为文件名使用的字符串：字符串原样，数字取字面量
func BookIDFromRaw(raw json.RawMessage) (string, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return "", apperrors.NewValidationError("Book ID must be a string or number", nil)
	}

	var id string
	switch c := raw[0]; {
	case c == '"':
		if err := json.Unmarshal(raw, &id); err != nil {
			return "", apperrors.NewValidationError("Invalid book ID", err)
		}
	case c == '-' || (c >= '0' && c <= '9'):
		id = string(raw)
	default:
		return "", apperrors.NewValidationError("Book ID must be a string or number", nil)
	}

	if err := ValidateBookID(id); err != nil {
		return "", err
	}
	return id, nil
}

// ValidateBookID 拒绝空 id 和会逃出书籍目录的 id
func ValidateBookID(id string) error {
	if id == "" {
		return apperrors.NewValidationError("Book ID must not be empty", nil)
	}
	if id == "." || id == ".." || strings.ContainsAny(id, "/\\\x00") {
		return apperrors.NewValidationError("Invalid book ID: "+id, nil)
	}
	return nil
}
