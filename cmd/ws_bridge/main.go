// Command ws_bridge exposes a reactor RPC subprocess over a WebSocket, so
// browser clients can speak the newline-delimited JSON-RPC protocol without
// a stdio transport. Each connection gets its own agent subprocess.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/exec"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

func main() {
	addr := flag.String("addr", ":8080", "address to listen on")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		args = []string{"reactor", "-rpc"}
	}
	http.HandleFunc("/ws", handleWS(args))

	fmt.Printf("WebSocket bridge running on ws://localhost%s/ws\n", *addr)
	log.Fatal(http.ListenAndServe(*addr, nil))
}

func handleWS(cmdArgs []string) func(http.ResponseWriter, *http.Request) {
	return func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("Upgrade error:", err)
			return
		}
		defer conn.Close()

		cmd := exec.Command(cmdArgs[0], cmdArgs[1:]...)

		stdin, err := cmd.StdinPipe()
		if err != nil {
			log.Println("Error getting stdin:", err)
			return
		}
		stdout, err := cmd.StdoutPipe()
		if err != nil {
			log.Println("Error getting stdout:", err)
			return
		}
		stderr, err := cmd.StderrPipe()
		if err != nil {
			log.Println("Error getting stderr:", err)
			return
		}

		if err := cmd.Start(); err != nil {
			log.Println("Error starting agent:", err)
			return
		}
		defer cmd.Process.Kill()

		// Agent stdout carries one JSON-RPC message per line.
		go pipeToWS(conn, stdout, "stdout")
		go pipeToWS(conn, stderr, "stderr")

		// WebSocket messages → agent stdin
		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				log.Println("WS read error:", err)
				return
			}
			if _, err := stdin.Write(append(msg, '\n')); err != nil {
				log.Println("Stdin write error:", err)
				return
			}
		}
	}
}

type bridgeFrame struct {
	Type string `json:"type"`
	Data string `json:"data"`
}

func pipeToWS(conn *websocket.Conn, src io.Reader, kind string) {
	scanner := bufio.NewScanner(src)
	for scanner.Scan() {
		message, err := json.Marshal(bridgeFrame{Type: kind, Data: scanner.Text()})
		if err != nil {
			log.Println("Marshal error:", err)
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
			log.Println("WS write error:", err)
			return
		}
	}
}
