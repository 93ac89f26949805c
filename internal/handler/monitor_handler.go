package handler

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	gorillaws "github.com/gorilla/websocket"

	ws "github.com/yourusername/exam-portal-api/internal/websocket"
	"github.com/yourusername/exam-portal-api/pkg/auth"
)

// MonitorHandler обслуживает WebSocket мониторинга попыток для админки
type MonitorHandler struct {
	hub        *ws.Hub
	jwtService *auth.JWTService
	upgrader   gorillaws.Upgrader
}

// NewMonitorHandler создает новый обработчик мониторинга.
// Пустой allowedOrigins разрешает все источники (режим разработки).
func NewMonitorHandler(hub *ws.Hub, jwtService *auth.JWTService, allowedOrigins []string) *MonitorHandler {
	return &MonitorHandler{
		hub:        hub,
		jwtService: jwtService,
		upgrader: gorillaws.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				if len(allowedOrigins) == 0 {
					return true
				}
				origin := r.Header.Get("Origin")
				for _, allowed := range allowedOrigins {
					if strings.EqualFold(allowed, origin) {
						return true
					}
				}
				return false
			},
		},
	}
}

// Stream апгрейдит соединение и подключает админа к хабу событий.
// Токен передаётся query-параметром, т.к. браузер не умеет выставлять
// заголовки при открытии WebSocket.
// GET /ws/monitor?token=...
func (h *MonitorHandler) Stream(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Token is required"})
		return
	}

	claims, err := h.jwtService.ParseToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid or expired token"})
		return
	}
	if claims.Role != "admin" {
		c.JSON(http.StatusForbidden, gin.H{"error": "Admin rights required"})
		return
	}

	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("[MonitorHandler] Ошибка апгрейда WebSocket: %v", err)
		return
	}

	ws.NewClient(h.hub, conn)
	log.Printf("[MonitorHandler] Админ ID=%d подключился к мониторингу", claims.UserID)
}
