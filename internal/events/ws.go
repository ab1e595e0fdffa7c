package events

import (
	"encoding/json"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true // the only caller is the app shell webview
	},
}

// wsCommand is the inbound frame schema. An empty or absent subscribe
// list resets the client to the full stream.
type wsCommand struct {
	Subscribe []Type `json:"subscribe"`
}

func WSHandler(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		ws, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			return
		}

		hub.AddWS(ws)
		hub.WelcomeWS(ws)
		log.Println("[events] ws client connected")

		for {
			_, msg, err := ws.ReadMessage()
			if err != nil {
				break
			}
			var cmd wsCommand
			if err := json.Unmarshal(msg, &cmd); err != nil {
				continue
			}
			hub.SubscribeWS(ws, cmd.Subscribe)
		}

		hub.RemoveWS(ws)
		log.Println("[events] ws client disconnected")
	}
}
