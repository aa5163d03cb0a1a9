package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/soundclash/soundclash-server/internal/gatewayfast"
	"github.com/soundclash/soundclash-server/pkg/clashdto"
)

// gatecheck probes the broadcast gateway: /status over HTTP, then observes
// action traffic on the WS for a short window.
func main() {
	baseURL := os.Getenv("GATEWAY_BASE_URL")
	wsURL := os.Getenv("GATEWAY_WS_URL")
	apiKey := os.Getenv("GATEWAY_API_KEY")

	if baseURL == "" {
		log.Fatal("GATEWAY_BASE_URL is required")
	}

	headers := func() map[string]string {
		m := map[string]string{}
		if apiKey != "" {
			m["X-Api-Key"] = apiKey
		}
		return m
	}

	client := gatewayfast.NewClient(baseURL,
		gatewayfast.WithHeaderProvider(headers),
		gatewayfast.WithTimeout(8*time.Second),
	)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := client.Status(ctx)
	if err != nil {
		log.Printf("/status error: %v", err)
	} else {
		log.Printf("/status ok: status=%s clients=%d uptime=%ds", st.Status, st.ConnectedClients, st.Uptime)
	}

	if wsURL == "" {
		log.Println("GATEWAY_WS_URL not set; skipping WS check")
		return
	}

	ws := gatewayfast.NewWebSocket(wsURL, 5, time.Second)
	ws.SetHeaderProvider(headers)
	ws.OnStateChange(func(state gatewayfast.WebSocketState) {
		log.Printf("WS state: %s", state)
	})
	ws.OnAction(func(msg *clashdto.ActionMessage) {
		fmt.Printf("WS action=%s player=%s battle=%s\n", msg.Action, msg.PlayerID, msg.BattleID)
	})

	cctx, ccancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer ccancel()
	if err := ws.Connect(cctx); err != nil {
		log.Printf("WS connect error: %v", err)
		return
	}

	t := time.NewTimer(10 * time.Second)
	<-t.C

	_ = ws.Close(context.Background())
}
