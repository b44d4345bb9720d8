package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/voxline-ai/voxline/src/agentcontext"
	"github.com/voxline-ai/voxline/src/artifacts"
	"github.com/voxline-ai/voxline/src/frames"
	"github.com/voxline-ai/voxline/src/interruptions"
	"github.com/voxline-ai/voxline/src/logger"
	"github.com/voxline-ai/voxline/src/pipeline"
	"github.com/voxline-ai/voxline/src/postcall"
	"github.com/voxline-ai/voxline/src/processors"
	"github.com/voxline-ai/voxline/src/processors/aggregators"
	"github.com/voxline-ai/voxline/src/serializers"
	"github.com/voxline-ai/voxline/src/services"
	"github.com/voxline-ai/voxline/src/services/registry"
	"github.com/voxline-ai/voxline/src/store"
	"github.com/voxline-ai/voxline/src/transcript"
	"github.com/voxline-ai/voxline/src/transports"
	"github.com/voxline-ai/voxline/src/turn"
)

// The model produces the greeting as its first response, so the context
// is seeded with this instruction instead of a canned assistant line.
const openingInstruction = "Begin by greeting the user. Proceed with your instructions"

const defaultPersona = `You are a friendly, professional voice agent for a financial services firm.
Keep responses brief and conversational, as this is a phone call. Speak
naturally, one thought at a time, and never read out lists or URLs.`

func main() {
	os.Exit(run())
}

func run() int {
	var (
		room            = flag.String("room", "", "room URL to join")
		token           = flag.String("token", "", "room access token")
		callID          = flag.String("call-id", "", "call id (created if empty)")
		clientID        = flag.String("client-id", "", "client id (anonymous call if empty)")
		sttProvider     = flag.String("stt", services.STTDeepgram, "STT provider")
		sttModel        = flag.String("stt-model", "nova-2", "STT model")
		llmProvider     = flag.String("llm", services.LLMGemini, "LLM provider")
		llmModel        = flag.String("llm-model", "gemini-2.0-flash", "LLM model")
		ttsProvider     = flag.String("tts", services.TTSCartesia, "TTS provider")
		ttsVoice        = flag.String("tts-voice", "71a7ad14-091c-4e8e-a314-022ece01c121", "TTS voice id")
		clientName      = flag.String("client-name", "", "client display name")
		returning       = flag.Bool("returning", false, "treat the client as returning")
		previousSummary = flag.String("previous-summary", "", "summary of the previous call")
		phone           = flag.String("phone", "", "client phone number")
		enableSearch    = flag.Bool("enable-search", false, "ground LLM responses with web search")
		optimizeLatency = flag.Bool("optimize-latency", false, "favor response speed over answer length")
	)
	flag.Parse()

	logger.Init()
	log := logger.WithPrefix("voxline-bot")

	if *room == "" {
		log.Error("missing required -room flag")
		return 2
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	dataDir := envOr("VOXLINE_DATA_DIR", "data")

	// Persistence: document store primary (the tie-break on id
	// conflicts), relational secondary. Without Redis an in-memory
	// backend stands in for the document side.
	secondary, err := store.OpenRelationalStore(filepath.Join(dataDir, "voxline.db"))
	if err != nil {
		log.Error("failed to open relational store: %v", err)
		return 1
	}

	var rdb *redis.Client
	var primary store.Backend
	var artifactStore artifacts.Store
	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: os.Getenv("REDIS_PASSWORD"),
		})
		primary = store.NewDocumentStore(rdb)
		artifactStore = artifacts.NewRedisStore(rdb)
	} else {
		primary = store.NewMemoryBackend("memory")
		artifactStore = artifacts.NewFileStore(dataDir)
	}
	db := store.NewDualStore(primary, secondary)

	// Resolve the client and call before any audio flows
	resolvedClientID := *clientID
	if resolvedClientID == "" && *phone != "" {
		id, err := db.Register(ctx, *clientName, *phone)
		if err != nil {
			log.Error("failed to register client: %v", err)
			return 1
		}
		resolvedClientID = id
	}

	resolvedCallID := *callID
	if resolvedCallID == "" {
		id, err := db.CreateCall(ctx, resolvedClientID)
		if err != nil {
			log.Error("failed to create call: %v", err)
			return 1
		}
		resolvedCallID = id
	}
	log.Info("call %s starting (client=%q)", resolvedCallID, resolvedClientID)

	// Compose the dialogue context from persona material and the
	// client's historical artifacts.
	promptsDir := envOr("VOXLINE_PROMPTS_DIR", "prompts")
	composer := agentcontext.NewComposer(
		artifactStore,
		readPrompt(promptsDir, "persona.txt", defaultPersona),
		readPrompt(promptsDir, "strategy.txt", ""),
		readPrompt(promptsDir, "knowledge_base.txt", ""),
	)
	composition := composer.Compose(ctx, agentcontext.ClientInfo{
		ClientID:        resolvedClientID,
		Name:            *clientName,
		Phone:           *phone,
		Returning:       *returning,
		PreviousSummary: *previousSummary,
	})
	log.Info("context composed (returning=%v, %d prompt bytes)",
		composition.Returning, len(composition.SystemPrompt))

	llmContext := services.NewConversationContext(composition.SystemPrompt, openingInstruction)

	// Provider services
	cfg := registry.Config{
		STTProvider:  *sttProvider,
		STTModel:     *sttModel,
		LLMProvider:  *llmProvider,
		LLMModel:     *llmModel,
		TTSProvider:  *ttsProvider,
		TTSVoice:     *ttsVoice,
		SystemPrompt: composition.SystemPrompt,
		Temperature:  0.7,
		EnableSearch: *enableSearch,

		OptimizeLatency: *optimizeLatency,
	}

	stt, err := registry.NewSTT(cfg)
	if err != nil {
		log.Error("%v", err)
		return 2
	}
	llm, err := registry.NewLLM(cfg)
	if err != nil {
		log.Error("%v", err)
		return 2
	}
	tts, err := registry.NewTTS(cfg)
	if err != nil {
		log.Error("%v", err)
		return 2
	}

	for _, svc := range []services.AIService{stt, llm, tts} {
		if err := svc.Initialize(ctx); err != nil {
			log.Error("failed to initialize %s: %v", svc.Name(), err)
			return 1
		}
	}
	defer func() {
		for _, svc := range []services.AIService{stt, llm, tts} {
			if err := svc.Cleanup(); err != nil {
				log.Warn("cleanup %s: %v", svc.Name(), err)
			}
		}
	}()

	// Transcript recorder taps the bus passively via turn sinks
	recorder := transcript.NewRecorder(resolvedCallID, artifactStore)

	transport := transports.NewWebSocketRoomTransport(serializers.NewRoomFrameSerializer())
	transport.OnParticipantJoined(func(participantID string) {
		if err := transport.CaptureTranscription(participantID); err != nil {
			log.Warn("capture transcription for %s: %v", participantID, err)
		}
	})

	userAgg := aggregators.NewUserAggregator(llmContext, recorder, nil)
	assistantAgg := aggregators.NewAssistantAggregator(llmContext)
	turnController := turn.NewController(recorder)

	pipe := pipeline.NewPipeline([]processors.FrameProcessor{
		transport.Input(),
		stt,
		userAgg,
		llm,
		tts,
		turnController,
		transport.Output(),
		assistantAgg,
	})

	task := pipeline.NewPipelineTaskWithConfig(pipe, &pipeline.PipelineTaskConfig{
		AllowInterruptions: true,
		InterruptionStrategies: []interruptions.InterruptionStrategy{
			interruptions.NewMinWordsInterruptionStrategy(3),
			interruptions.NewVADBasedInterruptionStrategy(nil),
		},
	})

	exitCode := 0
	task.OnError(func(err error) {
		log.Error("pipeline error: %v", err)
	})
	task.OnStarted(func() {
		// Trigger the opening greeting once the pipeline is live
		if err := task.QueueFrame(frames.NewLLMContextFrame(llmContext)); err != nil {
			log.Error("failed to queue opening context: %v", err)
		}
	})

	if err := transport.Join(ctx, *room, *token); err != nil {
		log.Error("failed to join room: %v", err)
		return 1
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		log.Info("shutdown signal received")
		task.Cancel()
	}()

	if err := task.Run(ctx); err != nil {
		log.Error("pipeline run failed: %v", err)
		exitCode = 1
	}

	if err := transport.Leave(); err != nil {
		log.Warn("leave room: %v", err)
	}
	recorder.Close()

	// Post-call pipeline, outside the real-time path
	extractor, err := postcall.NewGeminiExtractor(ctx,
		os.Getenv("GEMINI_API_KEY"), envOr("VOXLINE_EXTRACT_MODEL", "gemini-2.0-flash"))
	if err != nil {
		log.Error("failed to create extractor: %v", err)
		return 1
	}
	proc := postcall.NewProcessor(db, artifactStore, extractor)
	if err := proc.Process(ctx, resolvedCallID, resolvedClientID); err != nil {
		log.Error("post-call processing failed: %v", err)
		exitCode = 1
	}

	log.Info("call %s finished", resolvedCallID)
	return exitCode
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// readPrompt loads a prompt file from the prompts dir, falling back to
// the given default when the file is absent.
func readPrompt(dir, name, fallback string) string {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return fallback
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return fallback
	}
	return text
}
