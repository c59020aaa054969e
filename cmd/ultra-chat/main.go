// Terminal client for an ultrarelay server.
//
// Commands:
//
//	<message>        - Send a chat message (answer streams as it arrives)
//	/upload <file>   - Add a text file to the server's fragment store
//	/search <query>  - Show raw similarity search results
//	/rag             - Toggle retrieval augmentation
//	/history         - Show the transcript
//	/clear           - Clear the transcript
//	/help            - Show available commands
//	/quit or /q      - Exit
//
// Ctrl-C while an answer is streaming cancels it; otherwise it exits.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/hubenschmidt/ultrarelay/client"
	"github.com/hubenschmidt/ultrarelay/config"
)

type session struct {
	client *client.Client
	useRAG bool
	topK   int
}

type commandHandler func(ctx context.Context, s *session, arg string) bool

var handlers map[string]commandHandler

func init() {
	handlers = map[string]commandHandler{
		"/quit":    cmdQuit,
		"/q":       cmdQuit,
		"/help":    cmdHelp,
		"/h":       cmdHelp,
		"/upload":  cmdUpload,
		"/u":       cmdUpload,
		"/search":  cmdSearch,
		"/s":       cmdSearch,
		"/rag":     cmdRAG,
		"/history": cmdHistory,
		"/clear":   cmdClear,
	}
}

func main() {
	configPath := flag.String("config", "", "path to a config file")
	server := flag.String("server", "", "relay base URL (overrides client.server_url)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if *server != "" {
		cfg.Client.ServerURL = *server
	}

	logger, err := cfg.Log.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	transcript, err := client.LoadTranscript(cfg.Client.HistoryFile, cfg.Client.MaxHistory)
	if err != nil {
		logger.Warn("starting with an empty transcript", zap.Error(err))
	}

	s := &session{
		client: client.New(client.Config{
			BaseURL:    cfg.Client.ServerURL,
			Transcript: transcript,
			Window:     cfg.Client.Window,
			Logger:     logger,
		}),
		useRAG: cfg.Client.UseRAG,
		topK:   cfg.Search.DefaultTopK,
	}

	fmt.Printf("=== ultra-chat (%s) ===\n", cfg.Client.ServerURL)
	printHelp()
	fmt.Println()

	ctx := context.Background()
	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 64*1024), 1<<20)
	running := true
	for running {
		fmt.Print("> ")
		if !scanner.Scan() {
			running = false
		} else {
			running = processInput(ctx, s, strings.TrimSpace(scanner.Text()))
		}
	}

	fmt.Println("Goodbye!")
}

func processInput(ctx context.Context, s *session, input string) bool {
	if input == "" {
		return true
	}

	if strings.HasPrefix(input, "/") {
		return !handleCommand(ctx, s, input)
	}

	chat(ctx, s, input)
	return true
}

func handleCommand(ctx context.Context, s *session, input string) bool {
	parts := strings.SplitN(input, " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	handler, ok := handlers[cmd]
	if !ok {
		fmt.Printf("Unknown command: %s (type /help for commands)\n", cmd)
		return false
	}
	return handler(ctx, s, arg)
}

// chat streams one answer. Interrupts are only captured for the duration
// of the stream.
func chat(ctx context.Context, s *session, text string) {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt)
	defer stop()

	r := client.WriterRenderer{W: os.Stdout, Prefix: "assistant: "}
	entry, err := s.client.Chat(ctx, text, s.useRAG, r)
	switch {
	case errors.Is(err, context.Canceled):
	case err != nil && entry.Error && entry.Content != client.StreamErrorMessage:
		fmt.Println(entry.Content)
	}
}

func cmdQuit(context.Context, *session, string) bool {
	return true
}

func cmdHelp(context.Context, *session, string) bool {
	printHelp()
	return false
}

func cmdUpload(ctx context.Context, s *session, arg string) bool {
	if arg == "" {
		fmt.Println("Usage: /upload <file>")
		return false
	}
	data, err := os.ReadFile(arg)
	if err != nil {
		fmt.Printf("Error reading file: %v\n", err)
		return false
	}
	added, err := s.client.Upload(ctx, filepath.Base(arg), string(data))
	if err != nil {
		fmt.Printf("Error uploading: %v\n", err)
		return false
	}
	fmt.Printf("Added %d fragments from %s\n", added, filepath.Base(arg))
	return false
}

func cmdSearch(ctx context.Context, s *session, arg string) bool {
	if arg == "" {
		fmt.Println("Usage: /search <query>")
		return false
	}
	results, err := s.client.Search(ctx, arg, s.topK)
	if err != nil {
		fmt.Printf("Error searching: %v\n", err)
		return false
	}
	if len(results) == 0 {
		fmt.Println("No results found.")
		return false
	}

	fmt.Println()
	for i, r := range results {
		fmt.Printf("%d. [%.3f] %s\n", i+1, r.Score, r.Source)
		fmt.Printf("   %s\n\n", truncate(r.Text, 100))
	}
	return false
}

func cmdRAG(_ context.Context, s *session, _ string) bool {
	s.useRAG = !s.useRAG
	fmt.Printf("RAG: %v\n", s.useRAG)
	return false
}

func cmdHistory(_ context.Context, s *session, _ string) bool {
	entries := s.client.Transcript().Entries()
	if len(entries) == 0 {
		fmt.Println("(empty)")
		return false
	}
	for _, e := range entries {
		fmt.Printf("%s: %s\n", e.Role, e.Content)
	}
	return false
}

func cmdClear(_ context.Context, s *session, _ string) bool {
	t := s.client.Transcript()
	t.Clear()
	if err := t.Save(); err != nil {
		fmt.Printf("Error saving transcript: %v\n", err)
	}
	fmt.Println("Transcript cleared.")
	return false
}

func printHelp() {
	fmt.Println("Commands:")
	fmt.Println("  <message>         Chat (answer streams as it arrives)")
	fmt.Println("  /upload <file>    Add a text file to the knowledge base")
	fmt.Println("  /search <query>   Show similarity search results")
	fmt.Println("  /rag              Toggle retrieval augmentation")
	fmt.Println("  /history          Show the transcript")
	fmt.Println("  /clear            Clear the transcript")
	fmt.Println("  /help             Show this help")
	fmt.Println("  /quit             Exit")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
