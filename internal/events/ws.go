package events

import (
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// WSHandler upgrades the request and keeps the client subscribed until it
// disconnects. Incoming messages are ignored.
func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		// Written before Add so it never races a broadcast on the same conn.
		_ = ws.WriteMessage(websocket.TextMessage, []byte(`{"type":"welcome"}`))

		hub.Add(ws)
		log.Printf("[INFO] events: client connected (%d total)", hub.Count())

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				break
			}
		}

		hub.Remove(ws)
		log.Printf("[INFO] events: client disconnected")
	}
}
