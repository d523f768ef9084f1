// Package httpapi exposes the wallet, story, and tip endpoints and serves
// the static frontend.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/skovald/storyteller/internal/gate"
	"github.com/skovald/storyteller/internal/payment"
)

// Fixed user-facing replies. Field names and reply text are part of the
// client contract.
const (
	replyTeaserReady    = "✨ Your story teaser is ready!"
	replyNeedTopic      = "Please tell me what story you'd like to hear! Try: 'about cats', 'space adventure', or 'magical forest'"
	replyConnectFirst   = "Please connect your wallet first to generate stories!"
	replyConnectForTip  = "Connect wallet first!"
	replyNeedStoryFirst = "Ask me for a story first!"
	replySignRequired   = "Confirm in MetaMask to pay $0.50!"
	replyUnlocked       = "Tip received! Full story unlocked!"
	replyNoTxHash       = "No tx hash"
	replyServerFault    = "Something went wrong. Please try again."
)

// Server handles the JSON API and static assets
type Server struct {
	gate      *gate.Controller
	publicDir string
	log       *slog.Logger

	server *http.Server
}

// NewServer creates a new API server
func NewServer(g *gate.Controller, publicDir string, log *slog.Logger) *Server {
	return &Server{
		gate:      g,
		publicDir: publicDir,
		log:       log,
	}
}

// Start starts the server and blocks until ctx is cancelled
func (s *Server) Start(ctx context.Context, port int) error {
	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 120 * time.Second, // story generation + TTS can take a while
	}

	s.log.Info("starting server", "port", port)

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.server.Shutdown(shutdownCtx)
	}()

	return s.server.ListenAndServe()
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/connect", s.handleConnect)
	mux.HandleFunc("/chat", s.handleChat)
	mux.HandleFunc("/tip", s.handleTip)
	mux.HandleFunc("/confirm_tx", s.handleConfirmTx)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/", http.FileServer(http.Dir(s.publicDir)))
	return mux
}

type connectRequest struct {
	Wallet string `json:"wallet"`
}

type connectResponse struct {
	Status string `json:"status"`
	Wallet string `json:"wallet,omitempty"`
}

type chatRequest struct {
	Message string `json:"message"`
	Wallet  string `json:"wallet"`
}

type chatResponse struct {
	Reply   string `json:"reply"`
	Written string `json:"written,omitempty"`
	Audio   string `json:"audio,omitempty"`
	CanTip  bool   `json:"canTip,omitempty"`
}

type tipRequest struct {
	Wallet string `json:"wallet"`
}

type tipResponse struct {
	Reply  string             `json:"reply"`
	Tx     *payment.TxRequest `json:"tx,omitempty"`
	Status string             `json:"status,omitempty"`
}

type confirmRequest struct {
	TxHash string `json:"tx_hash"`
	Wallet string `json:"wallet"`
}

type confirmResponse struct {
	Reply    string `json:"reply"`
	Written  string `json:"written,omitempty"`
	Audio    string `json:"audio,omitempty"`
	Explorer string `json:"explorer,omitempty"`
}

func (s *Server) handleConnect(w http.ResponseWriter, r *http.Request) {
	var req connectRequest
	if !s.decodePost(w, r, &req) {
		return
	}

	checksum, err := s.gate.Connect(req.Wallet)
	if err != nil {
		if errors.Is(err, gate.ErrInvalidAddress) {
			s.writeJSON(w, http.StatusBadRequest, connectResponse{Status: "failed"})
			return
		}
		s.serverFault(w, "connect", err)
		return
	}

	s.writeJSON(w, http.StatusOK, connectResponse{Status: "connected", Wallet: checksum})
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !s.decodePost(w, r, &req) {
		return
	}

	if req.Message == "" {
		s.writeJSON(w, http.StatusOK, chatResponse{Reply: replyNeedTopic})
		return
	}

	res, err := s.gate.SubmitTopic(r.Context(), req.Wallet, req.Message)
	if err != nil {
		if errors.Is(err, gate.ErrNotConnected) {
			s.writeJSON(w, http.StatusOK, chatResponse{Reply: replyConnectFirst})
			return
		}
		s.serverFault(w, "chat", err)
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		Reply:   replyTeaserReady,
		Written: res.Teaser,
		Audio:   res.AudioPath,
		CanTip:  true,
	})
}

func (s *Server) handleTip(w http.ResponseWriter, r *http.Request) {
	var req tipRequest
	if !s.decodePost(w, r, &req) {
		return
	}

	tx, reason, err := s.gate.RequestTip(r.Context(), req.Wallet)
	if err != nil {
		switch {
		case errors.Is(err, gate.ErrNotConnected):
			s.writeJSON(w, http.StatusOK, tipResponse{Reply: replyConnectForTip})
		case errors.Is(err, gate.ErrNoStory):
			s.writeJSON(w, http.StatusOK, tipResponse{Reply: replyNeedStoryFirst})
		default:
			s.serverFault(w, "tip", err)
		}
		return
	}

	if tx == nil {
		s.writeJSON(w, http.StatusOK, tipResponse{Reply: "Tip failed: " + reason})
		return
	}

	s.writeJSON(w, http.StatusOK, tipResponse{
		Reply:  replySignRequired,
		Tx:     tx,
		Status: "sign_required",
	})
}

func (s *Server) handleConfirmTx(w http.ResponseWriter, r *http.Request) {
	var req confirmRequest
	if !s.decodePost(w, r, &req) {
		return
	}

	if req.TxHash == "" {
		s.writeJSON(w, http.StatusBadRequest, confirmResponse{Reply: replyNoTxHash})
		return
	}

	res, reason, err := s.gate.ConfirmTransaction(r.Context(), req.Wallet, req.TxHash)
	if err != nil {
		if errors.Is(err, gate.ErrNotConnected) {
			s.writeJSON(w, http.StatusOK, confirmResponse{Reply: replyConnectFirst})
			return
		}
		s.serverFault(w, "confirm_tx", err)
		return
	}

	if res == nil {
		s.writeJSON(w, http.StatusOK, confirmResponse{Reply: reason})
		return
	}

	s.writeJSON(w, http.StatusOK, confirmResponse{
		Reply:    replyUnlocked,
		Written:  res.FullStory,
		Audio:    res.AudioPath,
		Explorer: res.Explorer,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// decodePost enforces the POST method and decodes the JSON body, writing
// the error response itself when either fails.
func (s *Server) decodePost(w http.ResponseWriter, r *http.Request, dst any) bool {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}

	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		s.log.Warn("invalid request body", "path", r.URL.Path, "error", err)
		w.WriteHeader(http.StatusBadRequest)
		return false
	}

	return true
}

func (s *Server) serverFault(w http.ResponseWriter, route string, err error) {
	s.log.Error(route, "error", err)
	s.writeJSON(w, http.StatusInternalServerError, map[string]string{"reply": replyServerFault})
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.log.Error("encode response", "error", err)
	}
}
