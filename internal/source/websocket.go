package source

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// A wsSource runs a local webserver that the vehicle link connects to.
// Binary messages on /video are fed in arrival order. Only one publisher is
// served at a time; others are turned away until it disconnects.
type wsSource struct {
	ln     net.Listener
	server *http.Server

	upgrader websocket.Upgrader

	mu        sync.Mutex
	feed      func([]byte)
	publisher *websocket.Conn
}

func openWebSocket(addr string) (Source, error) {
	if addr == "" {
		addr = ":8000"
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	router := http.NewServeMux()
	s := &wsSource{
		ln: ln,
		server: &http.Server{
			Handler:           router,
			ReadHeaderTimeout: 10 * time.Second,
		},
		upgrader: websocket.Upgrader{
			ReadBufferSize: 64 * 1024,
			CheckOrigin:    func(r *http.Request) bool { return true },
		},
	}
	router.HandleFunc("/video", s.handleWebsocket)

	log.Info("Listening for video on ws://%v/video", ln.Addr())
	return s, nil
}

func init() {
	RegisterSourceType("ws", openWebSocket)
}

func (s *wsSource) Addr() net.Addr {
	return s.ln.Addr()
}

func (s *wsSource) Run(ctx context.Context, feed func([]byte)) error {
	s.mu.Lock()
	s.feed = feed
	s.mu.Unlock()

	go func() {
		<-ctx.Done()
		s.Close()
	}()

	err := s.server.Serve(s.ln)
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *wsSource) Close() error {
	s.mu.Lock()
	if s.publisher != nil {
		s.publisher.Close()
	}
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return s.server.Shutdown(ctx)
}

func (s *wsSource) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	busy := s.publisher != nil
	s.mu.Unlock()
	if busy {
		http.Error(w, "video link already connected", http.StatusConflict)
		return
	}

	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Warn("upgrade: %v", err)
		return
	}
	defer ws.Close()

	s.mu.Lock()
	if s.publisher != nil {
		s.mu.Unlock()
		ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "busy"),
			time.Now().Add(time.Second))
		return
	}
	s.publisher = ws
	feed := s.feed
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		s.publisher = nil
		s.mu.Unlock()
	}()

	log.Info("Video link connected from %s", r.RemoteAddr)
	for {
		typ, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn("Failed to read websocket message: %v", err)
			}
			log.Info("Video link from %s disconnected", r.RemoteAddr)
			return
		}
		if typ != websocket.BinaryMessage {
			log.Warn("Ignoring websocket message of type %d", typ)
			continue
		}
		if feed != nil {
			feed(data)
		}
	}
}
