package websocket

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/murilobezs/empowerup-sub002/pkg/jwt"
	"github.com/murilobezs/empowerup-sub002/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

const (
	pingInterval = 30 * time.Second
	readTimeout  = 90 * time.Second
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // 允许跨域
	},
}

// Handler 返回通知推送的WebSocket入口
// 客户端通过 ?token= 或子协议头携带JWT；连接只用于服务端向客户端推送通知
func Handler(jwtSvc *jwt.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("token")
		if token == "" {
			token = strings.TrimPrefix(c.GetHeader("Sec-WebSocket-Protocol"), "Bearer ")
		}
		if token == "" {
			response.Unauthorized(c, "缺少token")
			return
		}

		claims, err := jwtSvc.ValidateToken(token)
		if err != nil {
			response.Unauthorized(c, "token无效或已过期")
			return
		}
		userID, _ := strconv.ParseUint(claims.Subject, 10, 32)
		if userID == 0 {
			response.Unauthorized(c, "token无效")
			return
		}

		// 回显子协议，避免客户端提示 "Server sent no subprotocol"
		respHeader := http.Header{}
		if protocol := c.GetHeader("Sec-WebSocket-Protocol"); protocol != "" {
			respHeader.Set("Sec-WebSocket-Protocol", protocol)
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, respHeader)
		if err != nil {
			return
		}

		client := &Client{
			UserID: uint(userID),
			Conn:   conn,
			Send:   make(chan []byte, 256),
		}
		GetManager().AddClient(uint(userID), client)
		defer GetManager().RemoveClient(uint(userID), client)

		// 写协程 + 定时发送ping心跳
		// ping写失败直接关连接，读循环随之退出
		go func() {
			ticker := time.NewTicker(pingInterval)
			defer ticker.Stop()
			for {
				select {
				case msg, ok := <-client.Send:
					if !ok {
						return
					}
					_ = conn.WriteMessage(websocket.TextMessage, msg)
				case <-ticker.C:
					if err := conn.WriteControl(websocket.PingMessage, []byte("ping"), time.Now().Add(5*time.Second)); err != nil {
						_ = conn.Close()
						return
					}
				}
			}
		}()

		// 读循环只消费pong心跳；超时未收到任何读事件则断开
		_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		conn.SetPongHandler(func(appData string) error {
			return conn.SetReadDeadline(time.Now().Add(readTimeout))
		})
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				break
			}
			_ = conn.SetReadDeadline(time.Now().Add(readTimeout))
		}
	}
}
