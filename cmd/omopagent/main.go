package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/fastomop/medA2A-implementation/internal/agent"
	"github.com/fastomop/medA2A-implementation/internal/api"
	"github.com/fastomop/medA2A-implementation/internal/common"
	"github.com/fastomop/medA2A-implementation/internal/dbexec"
	"github.com/fastomop/medA2A-implementation/internal/kb"
	"github.com/fastomop/medA2A-implementation/internal/llm"
	"github.com/fastomop/medA2A-implementation/internal/orchestrator"
	"github.com/fastomop/medA2A-implementation/internal/sqlgen"
	"github.com/fastomop/medA2A-implementation/internal/sqlite"
	"github.com/fastomop/medA2A-implementation/internal/template"
)

func main() {
	logger := common.Logger()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := godotenv.Load(); err != nil {
		logger.Warn("omopagent: .env file not loaded", "error", err)
	} else {
		logger.Info("omopagent: environment loaded from .env")
	}

	maxAttemptsDefault := agent.DefaultMaxAttempts
	if env := strings.TrimSpace(os.Getenv("MEDA2A_MAX_ATTEMPTS")); env != "" {
		if parsed, err := strconv.Atoi(env); err == nil && parsed > 0 {
			maxAttemptsDefault = parsed
		}
	}

	addr := flag.String("addr", ":8002", "listen address")
	question := flag.String("question", "", "answer a single question and exit")
	maxAttempts := flag.Int("max-attempts", maxAttemptsDefault, "maximum generate/execute attempts per question")
	worldPath := flag.String("worldmodel", strings.TrimSpace(os.Getenv("MEDA2A_WORLDMODEL_PATH")), "path to the persisted world model database (empty disables persistence)")
	flag.Parse()

	prompts, err := sqlgen.LoadPrompts()
	if err != nil {
		logger.Error("omopagent: prompts load failed", "error", err)
		fmt.Println("prompts error:", err)
		os.Exit(1)
	}

	world := kb.NewStore()
	kb.SeedOMOP(world)
	templates := template.NewDefaultLibrary()

	var persisted *sqlite.Store
	if trimmed := strings.TrimSpace(*worldPath); trimmed != "" {
		persisted, err = sqlite.Open(trimmed)
		if err != nil {
			logger.Error("omopagent: world model store open failed", "error", err)
			fmt.Println("world model error:", err)
			os.Exit(1)
		}
		defer persisted.Close()
		if err := persisted.LoadWorldModel(ctx, world, templates); err != nil {
			logger.Error("omopagent: world model load failed", "error", err)
			fmt.Println("world model error:", err)
			os.Exit(1)
		}
		logger.Info("omopagent: world model loaded", "path", trimmed, "facts", len(world.Facts()))
	}

	vocab, err := kb.NewVocabulary(kb.DefaultConcepts())
	if err != nil {
		logger.Error("omopagent: vocabulary build failed", "error", err)
		fmt.Println("vocabulary error:", err)
		os.Exit(1)
	}

	execCfg, err := dbexec.LoadConfig()
	if err != nil {
		logger.Error("omopagent: executor config load failed", "error", err)
		fmt.Println("executor config error:", err)
		os.Exit(1)
	}
	executor, err := dbexec.NewClient(execCfg)
	if err != nil {
		logger.Error("omopagent: executor init failed", "error", err)
		fmt.Println("executor error:", err)
		os.Exit(1)
	}

	provider := llm.NewProvider()
	generator := sqlgen.NewGenerator(provider, templates, vocab, prompts)
	controller := agent.NewController(generator, executor, world, templates).
		WithMaxAttempts(*maxAttempts).
		WithExecutionTimeout(execCfg.Timeout)
	dbAgent := agent.NewDatabaseAgent(controller)
	synthesizer := orchestrator.NewSynthesizer(provider, prompts)
	coordinator := orchestrator.NewCoordinator(dbAgent, synthesizer)

	saveWorld := func() {
		if persisted == nil {
			return
		}
		saveCtx, saveCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer saveCancel()
		if err := persisted.SaveWorldModel(saveCtx, world, templates); err != nil {
			logger.Error("omopagent: world model save failed", "error", err)
		} else {
			logger.Info("omopagent: world model saved")
		}
	}

	if strings.TrimSpace(*question) != "" {
		resp := coordinator.ProcessQuestion(ctx, *question)
		saveWorld()
		encoder := json.NewEncoder(os.Stdout)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(resp); err != nil {
			fmt.Println("encode error:", err)
			os.Exit(1)
		}
		if !resp.Success {
			os.Exit(1)
		}
		return
	}

	server := api.NewServer(coordinator, world, templates)
	httpServer := &http.Server{Addr: *addr, Handler: server}

	go func() {
		logger.Info("omopagent: listening", "addr", *addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("omopagent: server failed", "error", err)
			cancel()
		}
	}()

	signals := make(chan os.Signal, 1)
	signal.Notify(signals, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-signals:
	case <-ctx.Done():
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn("omopagent: shutdown incomplete", "error", err)
	}
	saveWorld()
	logger.Info("omopagent: stopped")
}
