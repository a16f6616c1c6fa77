/*
Copyright (C) 2026  gostm contributors

    This program is free software: you can redistribute it and/or modify
    it under the terms of the GNU General Public License as published by
    the Free Software Foundation, either version 3 of the License, or
    (at your option) any later version.

    This program is distributed in the hope that it will be useful,
    but WITHOUT ANY WARRANTY; without even the implied warranty of
    MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
    GNU General Public License for more details.

    You should have received a copy of the GNU General Public License
    along with this program.  If not, see <https://www.gnu.org/licenses/>.
*/
package main

import (
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/launix-de/gostm/stm"
)

// countersSnapshot is one JSON frame pushed to every connected monitor
// client: the restart-reason counts summed across every registered thread.
// Each thread's counts cover only its current transaction, since Commit
// resets them.
type countersSnapshot struct {
	Time     time.Time        `json:"time"`
	Restarts map[string]int64 `json:"restarts"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

var (
	clientsMu sync.Mutex
	clients   = map[*websocket.Conn]struct{}{}
)

func serveWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("stmmonitor: upgrade failed:", err)
		return
	}
	clientsMu.Lock()
	clients[conn] = struct{}{}
	clientsMu.Unlock()

	go func() {
		defer func() {
			clientsMu.Lock()
			delete(clients, conn)
			clientsMu.Unlock()
			conn.Close()
		}()
		for {
			if _, _, err := conn.NextReader(); err != nil {
				return
			}
		}
	}()
}

func broadcastLoop(interval time.Duration) {
	for range time.Tick(interval) {
		snap := countersSnapshot{Time: time.Now(), Restarts: stm.GlobalRestartCounters()}
		data, err := json.Marshal(snap)
		if err != nil {
			continue
		}
		clientsMu.Lock()
		for c := range clients {
			if err := c.WriteMessage(websocket.TextMessage, data); err != nil {
				c.Close()
				delete(clients, c)
			}
		}
		clientsMu.Unlock()
	}
}

func main() {
	addr := flag.String("addr", ":8787", "listen address for the monitor feed")
	interval := flag.Duration("interval", time.Second, "broadcast interval")
	flag.Parse()

	go broadcastLoop(*interval)

	http.HandleFunc("/ws", serveWS)
	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		w.Write([]byte(monitorPage))
	})

	log.Printf("stmmonitor listening on %s", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

const monitorPage = `<!doctype html>
<title>gostm monitor</title>
<pre id="out">connecting...</pre>
<script>
var ws = new WebSocket("ws://" + location.host + "/ws");
ws.onmessage = function(ev) {
  document.getElementById("out").textContent = ev.data;
};
</script>
`
