package models

import (
	"encoding/json"
	"time"
)

// Book 单本小说写作项目。服务端只关心 id 与 title，其余字段原样保存在 Raw 中。
type Book struct {
	ID    string          `json:"id"`
	Title json.RawMessage `json:"title"`
	Raw   json.RawMessage `json:"-"`
}

// 书籍变更事件类型
const (
	EventBookListSaved = "book_list_saved"
	EventBookSaved     = "book_saved"
	EventBookDeleted   = "book_deleted"
)

// BookEvent 推送给已连接编辑器的变更通知
type BookEvent struct {
	Type      string    `json:"type"`
	BookID    string    `json:"book_id,omitempty"`
	Existed   *bool     `json:"existed,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
