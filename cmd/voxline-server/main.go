package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/voxline-ai/voxline/src/logger"
	"github.com/voxline-ai/voxline/src/services"
	"github.com/voxline-ai/voxline/src/store"
)

// connectRequest selects the provider variants and identifies the caller
type connectRequest struct {
	Phone      string `json:"phone"`
	ClientName string `json:"client_name"`
	STT        string `json:"stt"`
	STTModel   string `json:"stt_model"`
	LLM        string `json:"llm"`
	LLMModel   string `json:"llm_model"`
	TTS        string `json:"tts"`
	TTSVoice   string `json:"tts_voice"`

	// EnableSearch turns on search grounding for providers that
	// support it
	EnableSearch bool `json:"enable_search"`

	// OptimizeLatency tightens STT endpointing, caps response
	// length, and picks the faster synthesis path
	OptimizeLatency bool `json:"optimize_latency"`
}

// connectResponse is the authentication bundle handed to the client
type connectResponse struct {
	RoomURL  string `json:"room_url"`
	Token    string `json:"token"`
	CallID   string `json:"call_id"`
	ClientID string `json:"client_id"`
}

type modelInfo struct {
	Models map[string]map[string]string `json:"models"`
}

var defaultModels = map[string]string{
	services.STTDeepgram:   "nova-2",
	services.LLMGemini:     "gemini-2.0-flash",
	services.LLMOpenAI:     "gpt-4o-mini",
	services.TTSCartesia:   "71a7ad14-091c-4e8e-a314-022ece01c121",
	services.TTSElevenLabs: "21m00Tcm4TlvDq8ikWAM",
}

// server is the HTTP front door: it provisions rooms, resolves clients
// and spawns one bot process per call.
type server struct {
	db          *store.DualStore
	log         *logger.Logger
	botBinary   string
	roomBaseURL string

	procMu sync.Mutex
	procs  map[int]*exec.Cmd
}

func main() {
	os.Exit(run())
}

func run() int {
	var (
		addr      = flag.String("addr", envOr("VOXLINE_ADDR", ":7860"), "listen address")
		botBinary = flag.String("bot", envOr("VOXLINE_BOT_BINARY", "voxline-bot"), "bot worker binary")
	)
	flag.Parse()

	logger.Init()
	log := logger.WithPrefix("voxline-server")

	dataDir := envOr("VOXLINE_DATA_DIR", "data")
	secondary, err := store.OpenRelationalStore(filepath.Join(dataDir, "voxline.db"))
	if err != nil {
		log.Error("failed to open relational store: %v", err)
		return 1
	}

	// Document store primary, matching the bot's wiring, so id
	// conflicts resolve the same way in both processes
	var primary store.Backend
	if redisAddr := os.Getenv("REDIS_ADDR"); redisAddr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     redisAddr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		primary = store.NewDocumentStore(rdb)
	} else {
		primary = store.NewMemoryBackend("memory")
	}

	s := &server{
		db:          store.NewDualStore(primary, secondary),
		log:         log,
		botBinary:   *botBinary,
		roomBaseURL: envOr("VOXLINE_ROOM_BASE_URL", "wss://rooms.voxline.local"),
		procs:       make(map[int]*exec.Cmd),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/connect", s.handleConnect)
	mux.HandleFunc("/models/", s.handleModels)

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: mux,
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutting down")
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(ctx); err != nil {
			log.Error("server shutdown: %v", err)
		}
		s.cleanupBots()
	}()

	log.Info("listening on %s", *addr)
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Error("server error: %v", err)
		return 1
	}
	return 0
}

// handleConnect provisions a room and token, resolves or registers the
// client by phone, creates the call record and spawns the bot worker.
func (s *server) handleConnect(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req connectRequest
	if r.Body != nil {
		// A missing or malformed body falls back to defaults
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.log.Debug("connect body ignored: %v", err)
		}
	}
	applyDefaults(&req)

	roomURL, token := s.provisionRoom()

	ctx := r.Context()

	var clientID string
	var returning bool
	if req.Phone != "" {
		existing, err := s.db.LookupByPhone(ctx, req.Phone)
		if err != nil {
			s.log.Warn("lookup by phone failed: %v", err)
		}
		if existing != nil {
			clientID = existing.ID
			returning = true
			if req.ClientName == "" {
				req.ClientName = existing.Name
			}
		} else {
			id, err := s.db.Register(ctx, req.ClientName, req.Phone)
			if err != nil {
				s.log.Error("client registration failed: %v", err)
				http.Error(w, "failed to register client", http.StatusInternalServerError)
				return
			}
			clientID = id
		}
	}

	callID, err := s.db.CreateCall(ctx, clientID)
	if err != nil {
		s.log.Error("call creation failed: %v", err)
		http.Error(w, "failed to create call", http.StatusInternalServerError)
		return
	}

	args := []string{
		"-room", roomURL,
		"-token", token,
		"-call-id", callID,
		"-client-id", clientID,
		"-stt", req.STT,
		"-stt-model", req.STTModel,
		"-llm", req.LLM,
		"-llm-model", req.LLMModel,
		"-tts", req.TTS,
		"-tts-voice", req.TTSVoice,
	}
	if req.ClientName != "" {
		args = append(args, "-client-name", req.ClientName)
	}
	if req.Phone != "" {
		args = append(args, "-phone", req.Phone)
	}
	if returning {
		args = append(args, "-returning")
	}
	if req.EnableSearch {
		args = append(args, "-enable-search")
	}
	if req.OptimizeLatency {
		args = append(args, "-optimize-latency")
	}

	if err := s.spawnBot(args); err != nil {
		s.log.Error("failed to start bot: %v", err)
		http.Error(w, "failed to start bot", http.StatusInternalServerError)
		return
	}

	s.log.Info("call %s connected (client=%q, stt=%s, llm=%s/%s, tts=%s)",
		callID, clientID, req.STT, req.LLM, req.LLMModel, req.TTS)

	writeJSON(w, connectResponse{
		RoomURL:  roomURL,
		Token:    token,
		CallID:   callID,
		ClientID: clientID,
	})
}

// handleModels serves the model catalog for one service type
func (s *server) handleModels(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	serviceType := strings.TrimPrefix(r.URL.Path, "/models/")
	switch serviceType {
	case "stt":
		writeJSON(w, modelInfo{Models: services.STTModels})
	case "llm":
		writeJSON(w, modelInfo{Models: services.LLMModels})
	case "tts":
		writeJSON(w, modelInfo{Models: services.TTSModels})
	default:
		http.Error(w, fmt.Sprintf("unknown service type: %q", serviceType), http.StatusNotFound)
	}
}

// provisionRoom creates a room URL and access token. The room provider
// is an external collaborator; without one configured, rooms are minted
// under the configured base URL.
func (s *server) provisionRoom() (string, string) {
	roomID := uuid.NewString()
	return fmt.Sprintf("%s/rooms/%s", s.roomBaseURL, roomID), uuid.NewString()
}

// spawnBot starts one bot worker process and tracks it for cleanup
func (s *server) spawnBot(args []string) error {
	cmd := exec.Command(s.botBinary, args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start %s: %w", s.botBinary, err)
	}

	pid := cmd.Process.Pid
	s.procMu.Lock()
	s.procs[pid] = cmd
	s.procMu.Unlock()

	go func() {
		if err := cmd.Wait(); err != nil {
			s.log.Warn("bot %d exited: %v", pid, err)
		} else {
			s.log.Info("bot %d exited cleanly", pid)
		}
		s.procMu.Lock()
		delete(s.procs, pid)
		s.procMu.Unlock()
	}()

	return nil
}

// cleanupBots terminates all tracked bot processes
func (s *server) cleanupBots() {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	for pid, cmd := range s.procs {
		s.log.Info("terminating bot %d", pid)
		if err := cmd.Process.Signal(syscall.SIGTERM); err != nil {
			s.log.Warn("terminate bot %d: %v", pid, err)
		}
	}
}

func applyDefaults(req *connectRequest) {
	if req.STT == "" {
		req.STT = services.STTDeepgram
	}
	if req.LLM == "" {
		req.LLM = services.LLMGemini
	}
	if req.TTS == "" {
		req.TTS = services.TTSCartesia
	}
	if req.STTModel == "" {
		req.STTModel = defaultModels[req.STT]
	}
	if req.LLMModel == "" {
		req.LLMModel = defaultModels[req.LLM]
	}
	if req.TTSVoice == "" {
		req.TTSVoice = defaultModels[req.TTS]
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, "encoding error", http.StatusInternalServerError)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
