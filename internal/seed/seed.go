// Package seed 在本地数据目录为空时，从远程只读副本拉取书籍索引和书籍文档。
package seed

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/lanbinleo/NovelWriter/internal/errors"
	"github.com/lanbinleo/NovelWriter/internal/models"
	"github.com/lanbinleo/NovelWriter/internal/services"
	"github.com/lanbinleo/NovelWriter/internal/utils"
	"golang.org/x/time/rate"
)

// 单个远程文档的大小上限
const maxDocumentBytes = 32 << 20

// Target 种子数据的写入目标
type Target interface {
	HasBookList() bool
	HasBook(id string) bool
	SaveBookList(body []byte) error
	SaveBook(body []byte) (*models.Book, error)
}

// Result 一次拉取的统计
type Result struct {
	IndexSeeded  bool
	BooksSeeded  int
	BooksSkipped int
	BooksFailed  int
}

// Seeder 从 baseURL 下载 bookList.json 和 books/<id>.json
type Seeder struct {
	httpClient *http.Client
	baseURL    string
	limiter    *rate.Limiter
	logger     *utils.Logger
}

// NewSeeder 创建拉取器；rps 限制书籍文档的请求速率，<=0 时取 5
func NewSeeder(baseURL string, timeout time.Duration, rps float64, logger *utils.Logger) *Seeder {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if rps <= 0 {
		rps = 5
	}
	return &Seeder{
		httpClient: &http.Client{Timeout: timeout},
		baseURL:    strings.TrimRight(baseURL, "/"),
		limiter:    rate.NewLimiter(rate.Limit(rps), 1),
		logger:     logger,
	}
}

// Run 仅在目标没有本地索引时执行。
// 单本书失败只计数并记录日志，只有拿不到索引时才返回错误。
func (s *Seeder) Run(ctx context.Context, target Target) (Result, error) {
	var result Result
	if target.HasBookList() {
		s.logger.Debug("local book list present, skipping remote seed", nil)
		return result, nil
	}

	index, err := s.fetch(ctx, "bookList.json")
	if err != nil {
		return result, fmt.Errorf("fetch remote book list: %w", err)
	}
	if err := target.SaveBookList(index); err != nil {
		return result, apperrors.WrapError(err, "store remote book list", apperrors.ErrorTypeStorage)
	}
	result.IndexSeeded = true

	var entries []map[string]json.RawMessage
	if err := json.Unmarshal(index, &entries); err != nil {
		s.logger.Warnf("remote book list is not an array of objects, no books seeded: %v", err)
		return result, nil
	}

	for _, entry := range entries {
		rawID, ok := entry["id"]
		if !ok {
			continue
		}
		id, err := services.BookIDFromRaw(rawID)
		if err != nil {
			result.BooksFailed++
			s.logger.Warn("skipping index entry with unusable id", map[string]interface{}{"id": string(rawID)})
			continue
		}
		// 本地已有的书不覆盖
		if target.HasBook(id) {
			result.BooksSkipped++
			continue
		}

		if err := s.seedBook(ctx, target, id); err != nil {
			if ctx.Err() != nil {
				return result, ctx.Err()
			}
			result.BooksFailed++
			s.logger.Warn("failed to seed book", map[string]interface{}{"id": id, "error": err})
			continue
		}
		result.BooksSeeded++
	}

	s.logger.Info("remote seed finished", map[string]interface{}{
		"seeded":  result.BooksSeeded,
		"skipped": result.BooksSkipped,
		"failed":  result.BooksFailed,
	})
	return result, nil
}

func (s *Seeder) seedBook(ctx context.Context, target Target, id string) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return err
	}

	body, err := s.fetch(ctx, "books/"+url.PathEscape(id)+".json")
	if err != nil {
		return err
	}

	book, err := target.SaveBook(body)
	if err != nil {
		return err
	}
	if book.ID != id {
		s.logger.Warn("remote book id differs from index entry", map[string]interface{}{"index_id": id, "book_id": book.ID})
	}
	return nil
}

func (s *Seeder) fetch(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/"+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: unexpected status %d", path, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxDocumentBytes+1))
	if err != nil {
		return nil, err
	}
	if len(body) > maxDocumentBytes {
		return nil, fmt.Errorf("GET %s: document exceeds %d bytes", path, maxDocumentBytes)
	}
	return body, nil
}
