package lavago

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// nodeSocket is the low-level websocket transport for one Node. It owns the
// connection exclusively: all data writes funnel through sendListener so
// message ordering on a single socket is preserved. Control frames (the
// keep-alive ping and the close frame) go through WriteControl, which
// gorilla/websocket allows concurrently with that writer.
type nodeSocket struct {
	cfg    Config
	url    *url.URL
	dialer *websocket.Dialer

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool
	sendChan  chan wsData

	keepAliveStop chan struct{}
	keepAliveDone chan struct{}
	localClose    bool

	// onMessage is invoked once per received text frame.
	onMessage func([]byte)
	// onClose is invoked exactly once when the socket goes down, whether
	// by a peer close frame, a read error, or a local Close call.
	onClose func(code int, reason string, reconnectRequested bool)
}

type wsData struct {
	data    []byte
	errChan chan error
}

func newNodeSocket(cfg Config) *nodeSocket {
	u, _ := url.Parse(cfg.socketEndpoint())
	return &nodeSocket{
		cfg: cfg,
		url: u,
		dialer: &websocket.Dialer{
			ReadBufferSize:   cfg.BufferSize,
			WriteBufferSize:  cfg.BufferSize,
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 45 * time.Second,
		},
		onMessage: func([]byte) {},
		onClose:   func(int, string, bool) {},
	}
}

// dial performs a single handshake attempt. On failure it returns the HTTP
// status code of the handshake response when one was received (0
// otherwise), so the caller can distinguish an auth rejection from a
// transport failure.
func (s *nodeSocket) dial(headers http.Header) (statusCode int, err error) {
	conn, resp, err := s.dialer.Dial(s.url.String(), headers)
	if err != nil {
		if resp != nil {
			return resp.StatusCode, err
		}
		return 0, err
	}

	s.mu.Lock()
	s.conn = conn
	s.connected = true
	s.localClose = false
	s.sendChan = make(chan wsData)
	s.keepAliveStop = make(chan struct{})
	s.keepAliveDone = make(chan struct{})
	s.mu.Unlock()

	go s.sendListener()
	go s.readListener()
	go s.keepAliveLoop()
	return resp.StatusCode, nil
}

func (s *nodeSocket) sendListener() {
	for data := range s.sendChan {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		data.errChan <- conn.WriteMessage(websocket.TextMessage, data.data)
	}
}

func (s *nodeSocket) readListener() {
	for {
		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()

		msgType, data, err := conn.ReadMessage()
		if err != nil {
			code, reason, byRemote := classifyCloseError(err)
			s.teardown(code, reason, byRemote)
			return
		}
		if msgType != websocket.TextMessage {
			continue
		}
		s.onMessage(data)
	}
}

// classifyCloseError turns a ReadMessage error into the close code/reason
// pair and whether it was a peer-initiated close frame.
func classifyCloseError(err error) (code int, reason string, byRemote bool) {
	var ce *websocket.CloseError
	if errors.As(err, &ce) {
		return ce.Code, ce.Text, true
	}
	return 0, err.Error(), false
}

func (s *nodeSocket) keepAliveLoop() {
	defer close(s.keepAliveDone)
	ticker := time.NewTicker(s.cfg.KeepAliveInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.keepAliveStop:
			return
		case <-ticker.C:
			s.mu.RLock()
			conn := s.conn
			s.mu.RUnlock()
			if conn == nil {
				return
			}
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(s.cfg.KeepAliveInterval)); err != nil {
				return
			}
		}
	}
}

// teardown runs once per socket lifetime, always from readListener's
// goroutine after ReadMessage returns an error (either a peer close frame,
// or the local error that conn.Close unblocks ReadMessage with). It stops
// the keep-alive loop and reports the close upward exactly once.
func (s *nodeSocket) teardown(code int, reason string, peerInitiatedClose bool) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	local := s.localClose
	stop := s.keepAliveStop
	ch := s.sendChan
	s.mu.Unlock()

	if stop != nil {
		close(stop)
	}
	if ch != nil {
		close(ch)
	}

	if local {
		code = websocket.CloseNormalClosure
		reason = ""
	}
	s.onClose(code, reason, !peerInitiatedClose && !local)
}

// Send writes data to the socket. Fails with ErrNodeUnavailable if the
// socket is not open.
func (s *nodeSocket) Send(data []byte) error {
	s.mu.RLock()
	connected := s.connected
	ch := s.sendChan
	s.mu.RUnlock()
	if !connected {
		return ErrNodeUnavailable
	}
	errChan := make(chan error, 1)
	ch <- wsData{data, errChan}
	return <-errChan
}

func (s *nodeSocket) SendJSON(value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return s.Send(data)
}

// Close initiates a graceful local close. The actual teardown (stopping
// the keep-alive loop, reporting onClose) happens in readListener once
// conn.Close unblocks its pending ReadMessage.
func (s *nodeSocket) Close() error {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return nil
	}
	s.localClose = true
	conn := s.conn
	s.mu.Unlock()

	deadline := time.Now().Add(2 * time.Second)
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)

	return conn.Close()
}
