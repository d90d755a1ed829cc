package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"openrouter-chat/internal/chatclient"
	"openrouter-chat/internal/config"
	"openrouter-chat/internal/domain"
	"openrouter-chat/internal/history"
	"openrouter-chat/internal/service"
	"openrouter-chat/internal/sessionid"
	"openrouter-chat/internal/telemetry"
)

func main() {
	ctx := context.Background()
	reader := bufio.NewReader(os.Stdin)

	_ = godotenv.Load()

	cfg, err := config.LoadClientConfig()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := telemetry.NewFileLogger(cfg.LogFile)
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	storage, closeStorage, err := openStorage(ctx, cfg)
	if err != nil {
		log.Fatalf("abrir almacenamiento: %v", err)
	}
	defer closeStorage()

	store, err := history.Open(ctx, storage, logger)
	if err != nil {
		// No descartamos historial corrupto en silencio.
		log.Fatalf("cargar historial: %v", err)
	}

	client := chatclient.New(cfg.ServerURL, cfg.RequestTimeout)
	models, defaultModel, err := client.Models(ctx)
	if err != nil {
		logger.Warn("list models failed", zap.Error(err))
		models, defaultModel = service.AvailableModels, service.AvailableModels[0]
	}

	conv := chatclient.NewConversation(client, store, sessionid.ForMode(cfg.SessionIDMode), defaultModel, logger)

	fmt.Println("===== OpenRouter Chat =====")
	fmt.Printf("Model: %s\n", conv.Model())
	printHelp()

	for {
		fmt.Print("\nAsk anything... ")
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) && strings.TrimSpace(line) == "" {
			return
		}
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := runCommand(line, conv, store, models); quit {
				return
			}
			continue
		}

		_, rendered, err := conv.Send(ctx, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			if rendered.Answer == "" && rendered.Reasoning == "" {
				continue
			}
		}
		printRendered(rendered)
	}
}

func openStorage(ctx context.Context, cfg *config.ClientConfig) (history.BlobStorage, func(), error) {
	switch cfg.HistoryBackend {
	case config.HistoryBackendSQLite:
		path := cfg.HistoryPath
		if filepath.Ext(path) == "" {
			path = filepath.Join(path, "history.db")
		}
		s, err := history.NewSQLiteStorage(ctx, path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { s.Close() }, nil
	default:
		s, err := history.NewFileStorage(cfg.HistoryPath)
		if err != nil {
			return nil, nil, err
		}
		return s, func() {}, nil
	}
}

func runCommand(line string, conv *chatclient.Conversation, store *history.Store, models []string) bool {
	fields := strings.Fields(line)
	cmd, args := fields[0], fields[1:]

	switch cmd {
	case "/quit", "/exit":
		return true
	case "/help":
		printHelp()
	case "/new":
		conv.Reset()
		fmt.Println("Nueva conversación.")
	case "/sessions":
		sessions := store.Sessions()
		if len(sessions) == 0 {
			fmt.Println("No hay sesiones guardadas.")
		}
		for _, s := range sessions {
			fmt.Printf("  %s  (%d mensajes)  %s\n", s.ID, len(s.Messages), preview(s.Messages))
		}
	case "/open":
		if len(args) != 1 {
			fmt.Println("uso: /open <sessionId>")
			break
		}
		if err := conv.Open(args[0]); err != nil {
			fmt.Printf("error: %v\n", err)
			break
		}
		for _, m := range conv.Messages() {
			printMessage(m)
		}
	case "/models":
		for i, m := range models {
			marker := " "
			if m == conv.Model() {
				marker = "*"
			}
			fmt.Printf(" %s [%d] %s\n", marker, i+1, m)
		}
	case "/model":
		if len(args) != 1 {
			fmt.Println("uso: /model <número|nombre>")
			break
		}
		model := args[0]
		if idx, err := strconv.Atoi(model); err == nil {
			if idx < 1 || idx > len(models) {
				fmt.Println("Selección inválida.")
				break
			}
			model = models[idx-1]
		}
		conv.SetModel(model)
		fmt.Printf("Model: %s\n", conv.Model())
	default:
		fmt.Printf("Comando desconocido: %s\n", cmd)
	}
	return false
}

func printHelp() {
	fmt.Println("Comandos: /new, /sessions, /open <id>, /models, /model <n|nombre>, /help, /quit")
}

func printMessage(m domain.Message) {
	if m.Role == domain.RoleUser {
		fmt.Printf("\n> %s\n", m.Content)
		return
	}
	printRendered(service.RenderReply(m.Content))
}

func printRendered(r domain.RenderedReply) {
	if r.Reasoning != "" {
		fmt.Println("\n--- Thinking... ---")
		fmt.Println(r.Reasoning)
		fmt.Println("-------------------")
	}
	fmt.Printf("\n%s\n", r.Answer)
}

func preview(msgs []domain.Message) string {
	for _, m := range msgs {
		if m.Role == domain.RoleUser {
			text := strings.ReplaceAll(m.Content, "\n", " ")
			if len([]rune(text)) > 40 {
				text = string([]rune(text)[:40]) + "..."
			}
			return text
		}
	}
	return ""
}
