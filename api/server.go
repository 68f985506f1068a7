package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gorilla/mux"
	"github.com/rs/cors"
	"go.uber.org/zap"

	"voting-audit/blockchain/ledger"
	"voting-audit/models"
	"voting-audit/service"
	"voting-audit/storage"
)

// Server exposes the voter login workflow and read access to the audit ledger.
type Server struct {
	auth     *service.AuthService
	ledger   *ledger.Ledger
	exporter *storage.ChainExporter
	metrics  *service.MetricsCollector
	router   *mux.Router
	origins  []string
	logger   *zap.Logger
}

type Deps struct {
	Auth        *service.AuthService
	Ledger      *ledger.Ledger
	Exporter    *storage.ChainExporter // optional
	Metrics     *service.MetricsCollector
	CORSOrigins []string
	Logger      *zap.Logger
}

type LoginRequest struct {
	Aadhar  string `json:"aadhar"`
	PhoneNo string `json:"phone_no"`
}

type VerifyOTPRequest struct {
	PhoneNo string `json:"phone_no"`
	OTP     string `json:"otp"`
}

type MessageResponse struct {
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

type LoginResponse struct {
	Message              string `json:"message"`
	VerificationRequired bool   `json:"verificationRequired"`
}

type VerifyOTPResponse struct {
	Message        string                 `json:"message"`
	Voter          models.VoterView       `json:"voter"`
	BlockchainInfo service.BlockchainInfo `json:"blockchainInfo"`
}

type ChainResponse struct {
	Digest   string         `json:"digest"`
	Blocks   []models.Block `json:"blocks"`
	Length   int            `json:"length"`
	IsValid  bool           `json:"is_valid"`
	LastHash common.Hash    `json:"last_hash"`
}

type ValidationResponse struct {
	IsValid bool               `json:"is_valid"`
	Errors  []ledger.Violation `json:"errors,omitempty"`
}

type ExportResponse struct {
	Path     string      `json:"path"`
	Length   int         `json:"length"`
	LastHash common.Hash `json:"last_hash"`
}

func NewServer(deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		auth:     deps.Auth,
		ledger:   deps.Ledger,
		exporter: deps.Exporter,
		metrics:  deps.Metrics,
		router:   mux.NewRouter(),
		origins:  deps.CORSOrigins,
		logger:   logger,
	}
	s.setupRoutes()
	return s
}

func (s *Server) setupRoutes() {
	api := s.router.PathPrefix("/api/v1").Subrouter()

	// Authentication workflow
	api.HandleFunc("/login_voter", s.handleLoginVoter).Methods(http.MethodPost)
	api.HandleFunc("/verify_otp", s.handleVerifyOTP).Methods(http.MethodPost)

	// Audit ledger
	api.HandleFunc("/audit/chain", s.handleGetChain).Methods(http.MethodGet)
	api.HandleFunc("/audit/latest", s.handleGetLatest).Methods(http.MethodGet)
	api.HandleFunc("/audit/validate", s.handleValidate).Methods(http.MethodGet)
	api.HandleFunc("/audit/blocks/{index:[0-9]+}", s.handleGetBlock).Methods(http.MethodGet)
	api.HandleFunc("/audit/block", s.handleGetBlockByHash).Methods(http.MethodGet)
	api.HandleFunc("/audit/export", s.handleExport).Methods(http.MethodPost)

	api.HandleFunc("/metrics", s.handleMetrics).Methods(http.MethodGet)
	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
}

// Handler returns the router wrapped with CORS handling.
func (s *Server) Handler() http.Handler {
	origins := s.origins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	c := cors.New(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"Content-Type", "Authorization"},
		AllowCredentials: true,
	})
	return c.Handler(s.router)
}

func (s *Server) HTTPServer(addr string) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (s *Server) handleLoginVoter(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Invalid request body"})
		return
	}
	if req.Aadhar == "" || req.PhoneNo == "" {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Aadhar and phone number are required"})
		return
	}

	err := s.auth.Login(r.Context(), req.Aadhar, req.PhoneNo)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, LoginResponse{
			Message:              "OTP sent to registered mobile number",
			VerificationRequired: true,
		})
	case errors.Is(err, service.ErrVoterNotFound):
		writeJSON(w, http.StatusNotFound, MessageResponse{Message: "Voter not found"})
	case errors.Is(err, service.ErrIntegrityCompromised):
		writeJSON(w, http.StatusInternalServerError, MessageResponse{
			Message: "Blockchain integrity compromised",
			Error:   "Security violation detected",
		})
	default:
		s.logger.Error("login failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: "Internal server error", Error: err.Error()})
	}
}

func (s *Server) handleVerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req VerifyOTPRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Invalid request body"})
		return
	}

	res, err := s.auth.VerifyOTP(r.Context(), req.PhoneNo, req.OTP)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, VerifyOTPResponse{
			Message:        "OTP verified successfully",
			Voter:          res.Voter,
			BlockchainInfo: res.BlockchainInfo,
		})
	case errors.Is(err, service.ErrInvalidOTP):
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Invalid OTP"})
	case errors.Is(err, service.ErrIntegrityCompromised):
		writeJSON(w, http.StatusInternalServerError, MessageResponse{
			Message: "Blockchain integrity compromised",
			Error:   "Security violation detected",
		})
	default:
		s.logger.Error("otp verification failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: "Internal server error", Error: err.Error()})
	}
}

func (s *Server) handleGetChain(w http.ResponseWriter, r *http.Request) {
	blocks := s.ledger.Blocks()
	writeJSON(w, http.StatusOK, ChainResponse{
		Digest:   s.ledger.Hasher().Name(),
		Blocks:   blocks,
		Length:   len(blocks),
		IsValid:  len(ledger.ValidateChain(blocks, s.ledger.Hasher())) == 0,
		LastHash: blocks[len(blocks)-1].Hash,
	})
}

func (s *Server) handleGetLatest(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ledger.Latest())
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	err := s.ledger.Validate()
	s.metrics.RecordValidation(time.Since(start), err == nil)

	resp := ValidationResponse{IsValid: err == nil}
	var verr *ledger.ValidationError
	if errors.As(err, &verr) {
		resp.Errors = verr.Violations
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetBlock(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.ParseUint(mux.Vars(r)["index"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Invalid block index"})
		return
	}
	s.writeBlock(w, func() (models.Block, error) { return s.ledger.BlockAt(index) })
}

func (s *Server) handleGetBlockByHash(w http.ResponseWriter, r *http.Request) {
	raw, err := hexutil.Decode(r.URL.Query().Get("hash"))
	if err != nil || len(raw) != common.HashLength {
		writeJSON(w, http.StatusBadRequest, MessageResponse{Message: "Block hash must be 0x-prefixed 32-byte hex"})
		return
	}
	s.writeBlock(w, func() (models.Block, error) { return s.ledger.BlockByHash(common.BytesToHash(raw)) })
}

func (s *Server) writeBlock(w http.ResponseWriter, lookup func() (models.Block, error)) {
	block, err := lookup()
	if errors.Is(err, ledger.ErrBlockNotFound) {
		writeJSON(w, http.StatusNotFound, MessageResponse{Message: "Block not found"})
		return
	}
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: "Internal server error", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusOK, block)
}

func (s *Server) handleExport(w http.ResponseWriter, r *http.Request) {
	if s.exporter == nil {
		writeJSON(w, http.StatusServiceUnavailable, MessageResponse{Message: "Audit export is not configured"})
		return
	}

	blocks := s.ledger.Blocks()
	path, err := s.exporter.Export(s.ledger.Hasher().Name(), blocks)
	if err != nil {
		s.logger.Error("audit export failed", zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, MessageResponse{Message: "Export failed", Error: err.Error()})
		return
	}
	writeJSON(w, http.StatusCreated, ExportResponse{
		Path:     path,
		Length:   len(blocks),
		LastHash: blocks[len(blocks)-1].Hash,
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	m := s.metrics.GetMetrics()
	m.ChainLength = s.ledger.Len()
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
