// Command ws_client subscribes to /events/ws and tracks a few calls so the
// resulting events can be watched. Run with: go run scripts/ws_client.go
package main

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"
)

type event struct {
	Type string         `json:"type"`
	Data map[string]any `json:"data"`
}

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/events/ws", RawQuery: "topic=calls"}
	c, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var e event
			if err := c.ReadJSON(&e); err != nil {
				log.Printf("read: %v", err)
				return
			}
			b, _ := json.Marshal(e.Data)
			log.Printf("WS <- %s: %s", e.Type, b)
		}
	}()

	time.Sleep(300 * time.Millisecond)
	for i := 0; i < 3; i++ {
		resp, err := http.Post(base+"/track-call", "application/json", nil)
		if err != nil {
			log.Fatal(err)
		}
		var out map[string]any
		_ = json.NewDecoder(resp.Body).Decode(&out)
		_ = resp.Body.Close()
		log.Printf("POST /track-call -> %d %v", resp.StatusCode, out)
	}

	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
}
