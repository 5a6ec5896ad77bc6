package testutil

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

const (
	RPCMethodNotFoundCode = -32601
	RPCServerErrorCode    = -32000
)

// RPCError is the error object of a JSON-RPC 2.0 response.
type RPCError struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// RPCHandler serves a single JSON-RPC method. Returning a non-nil error sends
// an error response instead of the result.
type RPCHandler func(params []json.RawMessage) (interface{}, *RPCError)

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	Method  string            `json:"method"`
	Params  []json.RawMessage `json:"params"`
	ID      json.RawMessage   `json:"id"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  interface{}     `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCServer is a local JSON-RPC 2.0 node that serves canned responses and
// counts the calls made to each method. It stands in for a remote cluster in
// tests that must not touch the network.
type RPCServer struct {
	server *httptest.Server

	mu         sync.Mutex
	handlers   map[string]RPCHandler
	calls      map[string]int
	lastParams map[string][]json.RawMessage
	httpStatus int
}

// NewRPCServer starts an RPCServer that is closed when the test completes.
func NewRPCServer(t testing.TB) *RPCServer {
	s := &RPCServer{
		handlers:   make(map[string]RPCHandler),
		calls:      make(map[string]int),
		lastParams: make(map[string][]json.RawMessage),
	}
	s.server = httptest.NewServer(http.HandlerFunc(s.serveHTTP))
	t.Cleanup(s.server.Close)
	return s
}

// URL is the endpoint clients should dial.
func (s *RPCServer) URL() string {
	return s.server.URL
}

// Handle registers h for method, replacing any existing handler.
func (s *RPCServer) Handle(method string, h RPCHandler) {
	s.mu.Lock()
	s.handlers[method] = h
	s.mu.Unlock()
}

// HandleResult always answers method with result.
func (s *RPCServer) HandleResult(method string, result interface{}) {
	s.Handle(method, func([]json.RawMessage) (interface{}, *RPCError) {
		return result, nil
	})
}

// HandleError always answers method with an error response.
func (s *RPCServer) HandleError(method string, code int, message string, data interface{}) {
	s.Handle(method, func([]json.RawMessage) (interface{}, *RPCError) {
		return nil, &RPCError{Code: code, Message: message, Data: data}
	})
}

// SetHTTPStatus makes every subsequent request fail with the given HTTP status
// and an empty body. A zero status restores normal handling.
func (s *RPCServer) SetHTTPStatus(status int) {
	s.mu.Lock()
	s.httpStatus = status
	s.mu.Unlock()
}

// Calls returns how many times method has been invoked.
func (s *RPCServer) Calls(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[method]
}

// LastParams returns the params of the most recent call to method.
func (s *RPCServer) LastParams(method string) []json.RawMessage {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastParams[method]
}

func (s *RPCServer) serveHTTP(w http.ResponseWriter, r *http.Request) {
	var req rpcRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.mu.Lock()
	s.calls[req.Method]++
	s.lastParams[req.Method] = req.Params
	status := s.httpStatus
	h, ok := s.handlers[req.Method]
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		return
	}

	resp := rpcResponse{JSONRPC: "2.0", ID: req.ID}
	if !ok {
		resp.Error = &RPCError{Code: RPCMethodNotFoundCode, Message: "Method not found"}
	} else {
		resp.Result, resp.Error = h(req.Params)
	}
	if len(resp.ID) == 0 {
		resp.ID = json.RawMessage("0")
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}
