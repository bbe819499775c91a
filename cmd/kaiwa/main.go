// Package main is the Kaiwa CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/hyperjump/kaiwa/internal/cli"
	"github.com/hyperjump/kaiwa/internal/config"
	"github.com/hyperjump/kaiwa/internal/embedding"
	"github.com/hyperjump/kaiwa/internal/llm"
	"github.com/hyperjump/kaiwa/internal/models"
	"github.com/hyperjump/kaiwa/internal/notestyle"
	"github.com/hyperjump/kaiwa/internal/project"
	"github.com/hyperjump/kaiwa/internal/server"
	"github.com/hyperjump/kaiwa/internal/storage"
	"github.com/hyperjump/kaiwa/internal/watcher"
	"github.com/hyperjump/kaiwa/pkg/utils"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/kaiwa/config.yaml"

const defaultServerURL = "http://localhost:8080"

// loadConfig loads config from path. When path is the default, a config.yaml
// in the current directory takes precedence, so "kaiwa server" from the
// project dir uses the project's config.
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			local := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(local); statErr == nil {
				cfg, loadErr := config.Load(local)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, local, nil
			}
		}
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return config.Default(), "", nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "server":
		runServer()
	case "projects":
		runProjects()
	case "upload":
		runUpload()
	case "ask":
		runAsk()
	case "transcript":
		runTranscript()
	case "notestyle":
		runNoteStyle()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("kaiwa version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

func runServer() {
	fs := flag.NewFlagSet("server", flag.ExitOnError)
	configPath := fs.String("config", defaultConfigPath, "config file path")
	debug := fs.Bool("debug", false, "enable debug logging")
	_ = fs.Parse(os.Args[2:])

	// API keys may live in a .env next to the binary or project dir.
	_ = godotenv.Load()

	cfg, resolvedConfigPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}
	debugMode := cfg.Debug || *debug
	logger, err := utils.NewLogger(debugMode)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.Bool("debug", debugMode),
	)

	store, err := storage.NewSQLiteStorage(cfg.Storage.DatabasePath)
	if err != nil {
		logger.Fatal("Failed to initialize storage", zap.Error(err))
	}
	defer store.Close()

	var embedder embedding.Embedder
	httpEmbedder, err := embedding.NewHTTPEmbedder(cfg.Embedding)
	if err != nil {
		logger.Warn("embeddings collaborator unavailable, using deterministic embedder",
			zap.Error(err))
		embedder = embedding.NewMockEmbedder(cfg.Embedding.Dimensions)
	} else {
		embedder = httpEmbedder
	}
	defer embedder.Close()

	var provider llm.Provider
	openaiProvider, err := llm.NewOpenAIProvider(cfg.LLM)
	if err != nil {
		logger.Warn("completion collaborator unavailable, falling back to deterministic responder",
			zap.Error(err))
		cfg.Chat.FallbackOnly = true
		provider = unavailableProvider{}
	} else {
		provider = openaiProvider
	}

	storeOpts := []project.Option{project.WithIndexDir(cfg.Storage.ResolvedIndexDir())}
	if debugMode {
		storeOpts = append(storeOpts, project.WithLogger(logger))
	}
	projects := project.NewStore(store, provider, embedder, &cfg.Chat, storeOpts...)

	var inbox *watcher.Inbox
	if cfg.Watch.InboxDir != "" {
		inboxOpts := []watcher.Option{watcher.WithLogger(logger)}
		inbox = watcher.NewInbox(cfg.Watch.InboxDir, cfg.Watch.Extensions,
			func(name string, content []byte) {
				files := []models.DocumentFile{{Name: name, Content: content}}
				if _, err := projects.ProcessDocuments(context.Background(), files); err != nil {
					logger.Warn("inbox ingest failed", zap.String("file", name), zap.Error(err))
				}
			},
			inboxOpts...,
		)
		watchCtx, watchCancel := context.WithCancel(context.Background())
		defer watchCancel()
		if err := inbox.Start(watchCtx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer inbox.Stop()
		inbox.SyncExisting()
	}

	srv := server.NewServer(projects, notestyle.NewService(store), cfg, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Stop(ctx)
}

// unavailableProvider stands in when no completion collaborator is
// configured; the session runs fallback-only and never calls it.
type unavailableProvider struct{}

func (unavailableProvider) Chat(context.Context, []llm.Message, ...llm.Option) (string, error) {
	return "", &llm.RequestError{Err: errors.New("completion collaborator not configured")}
}

func runProjects() {
	if len(os.Args) < 3 {
		printProjectsUsage()
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("projects", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	icon := fs.String("icon", "", "project icon (create)")
	description := fs.String("description", "", "project description (create)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(reorderArgs(os.Args[3:]))

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	switch sub {
	case "list":
		var infos []models.ProjectInfo
		if err := getJSON(*serverURL+"/api/v1/projects", &infos); err != nil {
			fatalf("List failed: %v", err)
		}
		_ = cli.WriteProjects(os.Stdout, infos, format)
	case "create":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kaiwa projects create [flags] <name>")
			os.Exit(1)
		}
		req := models.CreateProjectRequest{
			Name:        joinArgs(fs.Args()),
			Icon:        *icon,
			Description: *description,
		}
		var p models.Project
		if err := postJSON(*serverURL+"/api/v1/projects", req, &p); err != nil {
			fatalf("Create failed: %v", err)
		}
		fmt.Printf("Created project %s (%s)\n", p.Name, p.ID)
	case "switch":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kaiwa projects switch <id>")
			os.Exit(1)
		}
		id := fs.Arg(0)
		if err := postJSON(*serverURL+"/api/v1/projects/"+id+"/activate", nil, nil); err != nil {
			fatalf("Switch failed: %v", err)
		}
		fmt.Printf("Active project: %s\n", id)
	case "delete":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kaiwa projects delete <id>")
			os.Exit(1)
		}
		id := fs.Arg(0)
		if err := doJSON(http.MethodDelete, *serverURL+"/api/v1/projects/"+id, nil, nil); err != nil {
			fatalf("Delete failed: %v", err)
		}
		fmt.Printf("Deleted project: %s\n", id)
	case "clear":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kaiwa projects clear <id>")
			os.Exit(1)
		}
		id := fs.Arg(0)
		if err := postJSON(*serverURL+"/api/v1/projects/"+id+"/clear", nil, nil); err != nil {
			fatalf("Clear failed: %v", err)
		}
		fmt.Printf("Cleared project data: %s\n", id)
	case "reprocess":
		if fs.NArg() < 1 {
			fmt.Println("Usage: kaiwa projects reprocess <id>")
			os.Exit(1)
		}
		id := fs.Arg(0)
		var resp models.ProcessResponse
		if err := postJSON(*serverURL+"/api/v1/projects/"+id+"/reprocess", nil, &resp); err != nil {
			fatalf("Reprocess failed: %v", err)
		}
		fmt.Printf("Rebuilt index: %d chunks\n", resp.Chunks)
	default:
		fmt.Printf("Unknown projects subcommand: %s\n", sub)
		printProjectsUsage()
		os.Exit(1)
	}
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(reorderArgs(os.Args[2:]))

	if fs.NArg() < 1 {
		fmt.Println("Usage: kaiwa upload [flags] <file>...")
		os.Exit(1)
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, path := range fs.Args() {
		content, err := os.ReadFile(path)
		if err != nil {
			fatalf("Failed to read %s: %v", path, err)
		}
		part, err := mw.CreateFormFile("files", filepath.Base(path))
		if err != nil {
			fatalf("Failed to build upload: %v", err)
		}
		if _, err := part.Write(content); err != nil {
			fatalf("Failed to build upload: %v", err)
		}
	}
	_ = mw.Close()

	resp, err := http.Post(*serverURL+"/api/v1/documents", mw.FormDataContentType(), &buf)
	if err != nil {
		fatalf("Upload failed: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusCreated {
		b, _ := io.ReadAll(resp.Body)
		fatalf("Upload failed (%d): %s", resp.StatusCode, string(b))
	}
	var result models.ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		fatalf("Decode response: %v", err)
	}
	fmt.Printf("Processed %d file(s) into %d chunks\n", result.Files, result.Chunks)
}

func runAsk() {
	askArgs := reorderArgs(os.Args[2:])
	fs := flag.NewFlagSet("ask", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	fallback := fs.Bool("fallback", false, "use the deterministic responder instead of the LLM")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(askArgs)

	if fs.NArg() < 1 {
		fmt.Println("Usage: kaiwa ask [flags] <question>")
		os.Exit(1)
	}
	question := joinArgs(fs.Args())
	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	var resp models.AskResponse
	if err := postJSON(*serverURL+"/api/v1/ask", models.AskRequest{Question: question, Fallback: *fallback}, &resp); err != nil {
		fatalf("Ask failed: %v", err)
	}
	_ = cli.WriteAnswer(os.Stdout, &resp, format)
}

func runTranscript() {
	args := os.Args[2:]
	if len(args) > 0 && args[0] == "clear" {
		fs := flag.NewFlagSet("transcript", flag.ExitOnError)
		serverURL := fs.String("server", defaultServerURL, "server URL")
		_ = fs.Parse(args[1:])
		if err := postJSON(*serverURL+"/api/v1/transcript/clear", nil, nil); err != nil {
			fatalf("Clear failed: %v", err)
		}
		fmt.Println("Transcript cleared.")
		return
	}

	fs := flag.NewFlagSet("transcript", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(args)

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var transcript models.Transcript
	if err := getJSON(*serverURL+"/api/v1/transcript", &transcript); err != nil {
		fatalf("Transcript failed: %v", err)
	}
	_ = cli.WriteTranscript(os.Stdout, transcript, format)
}

func runNoteStyle() {
	if len(os.Args) < 4 {
		fmt.Println("Usage: kaiwa notestyle <setup|status> <project-id>")
		os.Exit(1)
	}
	sub := os.Args[2]
	fs := flag.NewFlagSet("notestyle", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	_ = fs.Parse(reorderArgs(os.Args[3:]))
	if fs.NArg() < 1 {
		fmt.Println("Usage: kaiwa notestyle <setup|status> <project-id>")
		os.Exit(1)
	}
	id := fs.Arg(0)

	var status models.NoteStyleStatus
	switch sub {
	case "setup":
		if err := postJSON(*serverURL+"/api/v1/projects/"+id+"/notestyle", nil, &status); err != nil {
			fatalf("Setup failed: %v", err)
		}
		fmt.Printf("Note style initialized (%d templates)\n", status.TemplateCount)
	case "status":
		if err := getJSON(*serverURL+"/api/v1/projects/"+id+"/notestyle", &status); err != nil {
			fatalf("Status failed: %v", err)
		}
		if status.Initialized {
			fmt.Printf("Note style: initialized (%d templates)\n", status.TemplateCount)
		} else {
			fmt.Println("Note style: not configured")
		}
	default:
		fmt.Printf("Unknown notestyle subcommand: %s\n", sub)
		os.Exit(1)
	}
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	serverURL := fs.String("server", defaultServerURL, "server URL")
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format, err := cli.ParseFormat(*outputFormat)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	var status models.StatusResponse
	if err := getJSON(*serverURL+"/api/v1/status", &status); err != nil {
		fatalf("Status failed: %v", err)
	}
	_ = cli.WriteStatus(os.Stdout, &status, format)
}

// joinArgs joins positional args with spaces so multi-word input works the
// same with or without shell quoting.
func joinArgs(args []string) string {
	return strings.TrimSpace(strings.Join(args, " "))
}

// reorderArgs moves flags (and their values) that appear after positional
// arguments to the front so flag.Parse() sees them. Go's flag package stops
// at the first non-flag argument.
func reorderArgs(args []string) []string {
	for i, a := range args {
		if len(a) > 0 && a[0] == '-' {
			if i == 0 {
				return args
			}
			reordered := make([]string, 0, len(args))
			reordered = append(reordered, args[i:]...)
			reordered = append(reordered, args[:i]...)
			return reordered
		}
	}
	return args
}

func getJSON(url string, out interface{}) error {
	return doJSON(http.MethodGet, url, nil, out)
}

func postJSON(url string, body, out interface{}) error {
	return doJSON(http.MethodPost, url, body, out)
}

func doJSON(method, url string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		b, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func printProjectsUsage() {
	fmt.Println(`Usage: kaiwa projects <list|create|switch|delete|clear|reprocess> [flags] [args]

  kaiwa projects list                      List projects (active marked with *)
  kaiwa projects create <name>             Create a project
  kaiwa projects switch <id>               Make a project active
  kaiwa projects delete <id>               Delete a project
  kaiwa projects clear <id>                Clear a project's documents and transcript
  kaiwa projects reprocess <id>            Rebuild the index from stored files`)
}

func printUsage() {
	fmt.Println(`kaiwa - document chat assistant

Usage:
  kaiwa server [flags]                Start the HTTP server
  kaiwa projects <subcommand>         Manage projects (workspaces)
  kaiwa upload [flags] <file>...      Upload documents into the active project
  kaiwa ask [flags] <question>        Ask a question about uploaded documents
  kaiwa transcript [clear]            Show or clear the conversation transcript
  kaiwa notestyle <setup|status> <id> Manage note-style answers for a project
  kaiwa status [flags]                Show server status
  kaiwa version                       Show version
  kaiwa help                          Show this help

Server Flags:
  --config string    Config file path (default: /usr/local/etc/kaiwa/config.yaml)
  --debug            Enable debug logging

Client Flags (projects/upload/ask/transcript/notestyle/status):
  --server string    Server URL (default: http://localhost:8080)
  --output string    Output format: text or json (default: text)

Ask Flags:
  --fallback         Answer with the deterministic responder, bypassing the LLM

Examples:
  kaiwa server
  kaiwa projects create "Biology Notes"
  kaiwa projects switch 4f9f6c3a-...
  kaiwa upload chapter1.pdf chapter2.pdf
  kaiwa ask What is photosynthesis?
  kaiwa ask --fallback What is photosynthesis?
  kaiwa transcript
  kaiwa status --output json`)
}
