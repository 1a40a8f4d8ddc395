// internal/api/websocket.go
package api

import (
	"encoding/json"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/lanbinleo/NovelWriter/internal/models"
	"github.com/lanbinleo/NovelWriter/internal/utils"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// EventClient 一个已连接的编辑器
type EventClient struct {
	conn      *websocket.Conn
	send      chan []byte
	closed    int32 // 0=开启，1=关闭
	createdAt time.Time
}

// Close 安全关闭客户端连接
func (client *EventClient) Close() {
	if atomic.CompareAndSwapInt32(&client.closed, 0, 1) {
		client.conn.Close()
	}
}

// IsClosed 检查连接是否已关闭
func (client *EventClient) IsClosed() bool {
	return atomic.LoadInt32(&client.closed) == 1
}

// EventHub 向所有连接的编辑器广播书籍变更事件
type EventHub struct {
	clients    map[*EventClient]struct{}
	broadcast  chan []byte
	register   chan *EventClient
	unregister chan *EventClient
	done       chan struct{}
	stopOnce   sync.Once
	mutex      sync.RWMutex

	upgrader websocket.Upgrader
	logger   *utils.Logger
	metrics  *utils.MetricsCollector
}

// NewEventHub 创建并启动事件中心
func NewEventHub(allowedOrigins []string, logger *utils.Logger, metrics *utils.MetricsCollector) *EventHub {
	if logger == nil {
		logger = utils.GetLogger()
	}
	if metrics == nil {
		metrics = utils.NewMetricsCollector()
	}

	hub := &EventHub{
		clients:    make(map[*EventClient]struct{}),
		broadcast:  make(chan []byte, 256),
		register:   make(chan *EventClient, 16),
		unregister: make(chan *EventClient, 16),
		done:       make(chan struct{}),
		logger:     logger,
		metrics:    metrics,
	}
	hub.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originChecker(allowedOrigins),
	}

	go hub.run()
	return hub
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, o := range allowed {
			if o == "*" || o == origin {
				return true
			}
		}
		return false
	}
}

// Publish 实现 services.EventPublisher；队列满时丢弃事件
func (hub *EventHub) Publish(event models.BookEvent) {
	msg, err := json.Marshal(event)
	if err != nil {
		hub.logger.Errorf("marshal book event: %v", err)
		return
	}

	select {
	case <-hub.done:
	case hub.broadcast <- msg:
	default:
		hub.logger.Warn("event queue full, dropping event", map[string]interface{}{"type": event.Type})
	}
}

// ClientCount 当前连接数
func (hub *EventHub) ClientCount() int {
	hub.mutex.RLock()
	defer hub.mutex.RUnlock()
	return len(hub.clients)
}

// Close 停止事件中心并断开所有客户端
func (hub *EventHub) Close() {
	hub.stopOnce.Do(func() { close(hub.done) })
}

func (hub *EventHub) run() {
	for {
		select {
		case client := <-hub.register:
			hub.mutex.Lock()
			hub.clients[client] = struct{}{}
			hub.mutex.Unlock()
			hub.metrics.IncGauge("ws_clients")
			hub.logger.Debug("editor connected", map[string]interface{}{"clients": hub.ClientCount()})

		case client := <-hub.unregister:
			hub.removeClient(client)

		case message := <-hub.broadcast:
			hub.mutex.RLock()
			for client := range hub.clients {
				select {
				case client.send <- message:
				default:
					// 客户端过慢，断开
					go func(c *EventClient) {
						select {
						case hub.unregister <- c:
						case <-hub.done:
						}
					}(client)
				}
			}
			hub.mutex.RUnlock()

		case <-hub.done:
			hub.mutex.Lock()
			for client := range hub.clients {
				close(client.send)
				delete(hub.clients, client)
			}
			hub.mutex.Unlock()
			hub.metrics.SetGauge("ws_clients", 0)
			return
		}
	}
}

func (hub *EventHub) removeClient(client *EventClient) {
	hub.mutex.Lock()
	defer hub.mutex.Unlock()

	if _, ok := hub.clients[client]; ok {
		delete(hub.clients, client)
		close(client.send)
		hub.metrics.DecGauge("ws_clients")
	}
}

// ServeEvents 将请求升级为 WebSocket 并订阅书籍变更事件
func (hub *EventHub) ServeEvents(c *gin.Context) {
	select {
	case <-hub.done:
		c.AbortWithStatus(http.StatusServiceUnavailable)
		return
	default:
	}

	conn, err := hub.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade 已经写出了错误响应
		hub.logger.Warnf("websocket upgrade failed: %v", err)
		return
	}

	client := &EventClient{
		conn:      conn,
		send:      make(chan []byte, 32),
		createdAt: time.Now(),
	}

	select {
	case hub.register <- client:
	case <-hub.done:
		conn.Close()
		return
	}

	go hub.writePump(client)
	hub.readPump(client)
}

// readPump 只处理控制帧，客户端消息被忽略
func (hub *EventHub) readPump(client *EventClient) {
	defer func() {
		select {
		case hub.unregister <- client:
		case <-hub.done:
		}
		client.Close()
	}()

	client.conn.SetReadLimit(512)
	client.conn.SetReadDeadline(time.Now().Add(pongWait))
	client.conn.SetPongHandler(func(string) error {
		return client.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (hub *EventHub) writePump(client *EventClient) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		client.Close()
	}()

	for {
		select {
		case message, ok := <-client.send:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				client.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			client.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := client.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
