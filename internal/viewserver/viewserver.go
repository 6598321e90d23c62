// Package viewserver exposes an IndexedState's current book/position state
// over read-only HTTP and WebSocket endpoints, adapted from the reference
// repo's pkg/api server/hub split to this module's own domain (§1a). It
// never writes to the underlying Exchange; everything here goes through
// IndexedState.View under the read lock.
package viewserver

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"github.com/openperp/indexer/internal/exchange"
	"github.com/openperp/indexer/internal/indexer"
	"github.com/openperp/indexer/internal/orderbook"
	"github.com/openperp/indexer/internal/types"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Server serves the current indexed state read-only over HTTP/WebSocket.
type Server struct {
	state  *indexer.IndexedState
	router *mux.Router
	hub    *hub
	log    *zap.Logger
}

// New builds a Server backed by state; call Handler() to get the http.Handler
// to pass to http.Serve, and Run(ctx) to drive the broadcast hub and the
// state-event-to-WebSocket relay.
func New(state *indexer.IndexedState, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{state: state, router: mux.NewRouter(), hub: newHub(), log: log}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.router.HandleFunc("/healthz", s.handleHealthz).Methods("GET")
	s.router.HandleFunc("/perpetuals/{id}/book", s.handleBook).Methods("GET")
	s.router.HandleFunc("/accounts/{id}", s.handleAccount).Methods("GET")
	s.router.HandleFunc("/ws", s.handleWS)
}

// Handler returns the CORS-wrapped router to serve.
func (s *Server) Handler() http.Handler {
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET"},
	})
	return c.Handler(s.router)
}

// Run drives the WebSocket broadcast hub and relays each state-event batch
// to connected clients as JSON, until ctx is cancelled or the indexer's
// event stream ends.
func (s *Server) Run(ctx context.Context) {
	go s.hub.run(ctx)
	for {
		batch, ok := s.state.NextStateEvents(ctx)
		if !ok {
			return
		}
		payload, err := json.Marshal(batch)
		if err != nil {
			s.log.Warn("marshal state event batch for broadcast", zap.Error(err))
			continue
		}
		s.hub.broadcast(payload)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (s *Server) handleBook(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid perpetual id: %s", idStr), http.StatusBadRequest)
		return
	}

	var view orderbook.View
	var found bool
	s.state.View(func(e *exchange.Exchange) {
		perp, ok := e.Perpetuals[types.PerpetualId(id)]
		if !ok {
			return
		}
		found = true
		view = perp.Book.View(20, 10, false)
	})
	if !found {
		http.Error(w, "perpetual not found", http.StatusNotFound)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleAccount(w http.ResponseWriter, r *http.Request) {
	idStr := mux.Vars(r)["id"]
	id, err := strconv.ParseUint(idStr, 10, 32)
	if err != nil {
		http.Error(w, fmt.Sprintf("invalid account id: %s", idStr), http.StatusBadRequest)
		return
	}

	type positionView struct {
		PerpetualId types.PerpetualId  `json:"perpetual_id"`
		Type        types.PositionType `json:"type"`
		Size        string             `json:"size"`
		EntryPrice  string             `json:"entry_price"`
	}
	type accountView struct {
		Balance       string         `json:"balance"`
		LockedBalance string         `json:"locked_balance"`
		Frozen        bool           `json:"frozen"`
		Positions     []positionView `json:"positions"`
	}

	var view accountView
	var found bool
	s.state.View(func(e *exchange.Exchange) {
		a, ok := e.Accounts[types.AccountId(id)]
		if !ok {
			return
		}
		found = true
		view.Balance = a.Balance.String()
		view.LockedBalance = a.LockedBalance.String()
		view.Frozen = a.Frozen
		for perpId, pos := range a.Positions {
			view.Positions = append(view.Positions, positionView{
				PerpetualId: perpId,
				Type:        pos.Type,
				Size:        pos.Size.String(),
				EntryPrice:  pos.EntryPrice.String(),
			})
		}
	})
	if !found {
		http.Error(w, "account not found", http.StatusNotFound)
		return
	}
	writeJSON(w, view)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn("websocket upgrade failed", zap.Error(err))
		return
	}
	s.hub.register(conn)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// hub fans out broadcast messages to every connected WebSocket client,
// adapted from the reference repo's pkg/api.Hub to a single broadcast
// channel (this module only pushes state-event batches, no per-channel
// subscriptions).
type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]chan []byte

	registerCh chan *websocket.Conn
	messages   chan []byte
}

func newHub() *hub {
	return &hub{
		clients:    make(map[*websocket.Conn]chan []byte),
		registerCh: make(chan *websocket.Conn),
		messages:   make(chan []byte, 256),
	}
}

func (h *hub) register(conn *websocket.Conn) {
	h.registerCh <- conn
}

func (h *hub) broadcast(msg []byte) {
	select {
	case h.messages <- msg:
	default:
	}
}

func (h *hub) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			h.closeAll()
			return
		case conn := <-h.registerCh:
			send := make(chan []byte, 16)
			h.mu.Lock()
			h.clients[conn] = send
			h.mu.Unlock()
			go h.writePump(conn, send)
		case msg := <-h.messages:
			h.mu.Lock()
			for _, send := range h.clients {
				select {
				case send <- msg:
				default:
				}
			}
			h.mu.Unlock()
		}
	}
}

func (h *hub) writePump(conn *websocket.Conn, send chan []byte) {
	for msg := range send {
		if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			h.mu.Lock()
			delete(h.clients, conn)
			h.mu.Unlock()
			conn.Close()
			return
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for conn, send := range h.clients {
		close(send)
		conn.Close()
		delete(h.clients, conn)
	}
}
