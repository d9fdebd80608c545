package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/avidalr/reactor/agent"
	"github.com/avidalr/reactor/session"
)

// Run starts the JSON-RPC server over stdio. Messages are newline-delimited
// JSON objects. Supported methods:
//   - initialize
//   - session/new
//   - session/load
//   - session/prompt (emits session/update notifications with
//     agent_message_chunk, agent_thought_chunk, tool_call, and tool_result)
//   - session/cancel (stops the in-flight prompt for a session)
//
// session/prompt runs on its own goroutine so the read loop stays free to
// pick up session/cancel while a turn is streaming. Nothing but JSON-RPC
// messages is ever written to stdout; debug output goes to the trace file.
func Run(ctx context.Context, a *agent.Agent, in *bufio.Reader, out *bufio.Writer, traceFlag *bool) error {
	var traceFile *os.File
	trace := func(msg string) {}
	if *traceFlag {
		traceFile, _ = os.OpenFile("rpc.trace", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		defer traceFile.Close()
		trace = func(msg string) {
			if traceFile != nil {
				fmt.Fprintf(traceFile, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
			}
		}
	}

	trace("Run: starting RPC server")
	server := &rpcServer{
		ctx:      ctx,
		agent:    a,
		sessions: make(map[string]*session.Session),
		in:       in,
		out:      out,
		trace:    trace,
	}

	for {
		line, err := server.readMessage()
		if err != nil {
			if err == io.EOF {
				trace("Run: EOF received, exiting")
				return nil
			}
			trace(fmt.Sprintf("Run: read error: %v", err))
			return fmt.Errorf("rpc: read error: %w", err)
		}
		if len(line) == 0 {
			continue
		}

		trace(fmt.Sprintf("Run: received payload: %s", string(line)))
		var req jsonrpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			trace(fmt.Sprintf("Run: JSON parse error: %v", err))
			_ = server.writeResponseError(nil, -32700, "Parse error", nil)
			continue
		}

		trace(fmt.Sprintf("Run: dispatching method: %s with ID: %v", req.Method, req.ID))
		switch req.Method {
		case "initialize":
			server.handleInitialize(&req)
		case "session/new":
			server.handleSessionNew(&req)
		case "session/load":
			server.handleSessionLoad(&req)
		case "session/prompt":
			// The read loop must not block on the turn.
			go server.handleSessionPrompt(&req)
		case "session/cancel":
			server.handleSessionCancel(&req)
		default:
			_ = server.writeResponseError(req.ID, -32601, "Method not found", nil)
		}
	}
}

// jsonrpcRequest represents a JSON-RPC 2.0 request message
type jsonrpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      any    `json:"id,omitempty"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// jsonrpcResponse represents a JSON-RPC 2.0 response message
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError represents a JSON-RPC 2.0 error object
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type rpcServer struct {
	ctx      context.Context
	agent    *agent.Agent
	sessions map[string]*session.Session

	sessionsLock sync.Mutex
	sessionIDSeq int64

	in        *bufio.Reader
	out       *bufio.Writer
	writeLock sync.Mutex
	trace     func(string)
}

func (s *rpcServer) readMessage() ([]byte, error) {
	line, _, err := s.in.ReadLine()
	if err != nil {
		return nil, err
	}
	return line, nil
}

// writeJSON serializes one JSON-RPC message and writes it newline-terminated.
func (s *rpcServer) writeJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize JSON-RPC message: %w", err)
	}
	s.trace(fmt.Sprintf("writeJSON: %s", string(data)))

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.out.Write(data); err != nil {
		return err
	}
	if _, err := s.out.WriteString("\n"); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *rpcServer) writeResponseOK(id any, result any) error {
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	return s.writeJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: data})
}

func (s *rpcServer) writeResponseError(id any, code int, msg string, data any) error {
	return s.writeJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	})
}

// writeNotification sends a JSON-RPC notification (request without an ID)
func (s *rpcServer) writeNotification(method string, params any) error {
	return s.writeJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  method,
		"params":  params,
	})
}

// decodeParams round-trips req.Params through JSON into a typed struct.
func decodeParams(params any, dst any) error {
	b, err := json.Marshal(params)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, dst)
}

func (s *rpcServer) handleInitialize(req *jsonrpcRequest) {
	s.trace("handleInitialize: starting")
	resp := map[string]any{
		"protocolVersion": 1,
		"agentCapabilities": map[string]any{
			"loadSession":   true,
			"cancelSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	}
	_ = s.writeResponseOK(req.ID, resp)
}

func (s *rpcServer) handleSessionNew(req *jsonrpcRequest) {
	s.trace("handleSessionNew: starting")
	sid := s.nextSessionID()

	sess, err := session.New(sid)
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionNew: failed to create session: %v", err))
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("failed to create session: %v", err))
		return
	}

	s.sessionsLock.Lock()
	s.sessions[sid] = sess
	s.sessionsLock.Unlock()

	_ = s.writeResponseOK(req.ID, map[string]any{"sessionId": sid})
}

// handleSessionLoad loads a session from disk and replays its history to the
// client as session/update notifications.
func (s *rpcServer) handleSessionLoad(req *jsonrpcRequest) {
	s.trace("handleSessionLoad: starting")
	var p struct {
		SessionID string `json:"sessionId"`
	}
	if err := decodeParams(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("decode error: %v", err))
		return
	}

	sess, err := session.Load(p.SessionID)
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionLoad: failed to load session: %v", err))
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", fmt.Sprintf("session not found: %v", err))
		return
	}

	s.sessionsLock.Lock()
	s.sessions[p.SessionID] = sess
	s.sessionsLock.Unlock()

	s.trace(fmt.Sprintf("handleSessionLoad: replaying %d messages", len(sess.Messages)))
	for _, msg := range sess.Messages {
		switch msg.Role {
		case session.RoleUser:
			_ = s.sendChunk(p.SessionID, "user_message_chunk", msg.Content)
		case session.RoleAssistant:
			if msg.Content != "" {
				_ = s.sendChunk(p.SessionID, "agent_message_chunk", msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				_ = s.sendToolCallNotification(p.SessionID, tc)
			}
		case session.RoleObservation:
			if len(msg.ToolCalls) > 0 {
				_ = s.sendToolResultNotification(p.SessionID, msg.ToolCalls[0].ToolCallID, msg.Content)
			}
		}
	}

	_ = s.writeResponseOK(req.ID, nil)
}

// contentBlock is a prompt content block; only text blocks are handled.
type contentBlock struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

// handleSessionPrompt runs one agent turn for a session, streaming updates
// as notifications and answering with a stop reason when the turn ends.
func (s *rpcServer) handleSessionPrompt(req *jsonrpcRequest) {
	s.trace("handleSessionPrompt: starting")
	var p struct {
		SessionID string         `json:"sessionId"`
		Prompt    []contentBlock `json:"prompt"`
	}
	if err := decodeParams(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("decode error: %v", err))
		return
	}

	s.sessionsLock.Lock()
	sess, ok := s.sessions[p.SessionID]
	s.sessionsLock.Unlock()
	if !ok {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", "unknown sessionId")
		return
	}

	userText := extractUserText(p.Prompt)
	s.trace(fmt.Sprintf("handleSessionPrompt: extracted user text: %s", userText))

	callbacks := agent.ProcessCallbacks{
		OnThought: func(thought string) {
			_ = s.sendChunk(p.SessionID, "agent_thought_chunk", thought)
		},
		OnAssistantMessage: func(message string) {
			_ = s.sendChunk(p.SessionID, "agent_message_chunk", message)
		},
		OnToolCall: func(toolCall session.ToolCall) {
			_ = s.sendToolCallNotification(p.SessionID, toolCall)
		},
		OnToolResult: func(toolCall session.ToolCall, result string) {
			_ = s.sendToolResultNotification(p.SessionID, toolCall.ToolCallID, result)
		},
		ShouldExecuteTool: func(toolCall session.ToolCall) bool {
			// RPC clients approve through their own UI before prompting.
			return true
		},
		OnWarning: func(warning string) {
			s.trace(fmt.Sprintf("handleSessionPrompt: warning - %s", warning))
		},
	}

	result, err := s.agent.ProcessUserInputInSession(s.ctx, sess, userText, callbacks)
	if err != nil {
		s.trace(fmt.Sprintf("handleSessionPrompt: error processing user input: %v", err))
		_ = s.writeResponseError(req.ID, -32603, "Internal error", fmt.Sprintf("error processing user input: %v", err))
		return
	}

	_ = s.writeResponseOK(req.ID, map[string]any{"stopReason": stopReason(result.Outcome)})
}

// handleSessionCancel flags the running turn; the prompt handler answers its
// own request with stopReason cancelled once the turn unwinds.
func (s *rpcServer) handleSessionCancel(req *jsonrpcRequest) {
	s.trace("handleSessionCancel: starting")
	s.agent.RequestCancel()
	_ = s.writeResponseOK(req.ID, nil)
}

func stopReason(outcome agent.TurnOutcome) string {
	switch outcome {
	case agent.TurnCancelled:
		return "cancelled"
	case agent.TurnIterationLimit:
		return "max_turn_requests"
	default:
		return "end_turn"
	}
}

func (s *rpcServer) sendChunk(sessionID, kind, text string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": kind,
			"content": map[string]any{
				"type": "text",
				"text": text,
			},
		},
	})
}

func (s *rpcServer) sendToolCallNotification(sessionID string, toolCall session.ToolCall) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_call",
			"toolCall": map[string]any{
				"id":   toolCall.ToolCallID,
				"name": toolCall.Name,
				"args": toolCall.Args,
			},
		},
	})
}

func (s *rpcServer) sendToolResultNotification(sessionID, toolCallID, result string) error {
	return s.writeNotification("session/update", map[string]any{
		"sessionId": sessionID,
		"update": map[string]any{
			"sessionUpdate": "tool_result",
			"toolResult": map[string]any{
				"toolCallId": toolCallID,
				"result":     result,
			},
		},
	})
}

func (s *rpcServer) nextSessionID() string {
	s.sessionsLock.Lock()
	s.sessionIDSeq++
	seq := s.sessionIDSeq
	s.sessionsLock.Unlock()
	return fmt.Sprintf("sess_%d_%d", time.Now().UnixNano(), seq)
}

// extractUserText concatenates the text content blocks of a prompt.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, block := range blocks {
		if block.Type == "text" {
			if text := strings.TrimSpace(block.Text); text != "" {
				parts = append(parts, text)
			}
		}
	}
	return strings.Join(parts, "\n")
}
