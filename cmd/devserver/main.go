// devserver: a local stand-in for the Inventronix ingestion endpoint.
//
// Speaks the same wire contract the device client does — POST /v1/iot/ingest
// with X-Api-Key / X-Project-Id headers, JSON response with an optional
// "commands" array — so firmware-style control loops can be developed and
// demoed without touching the real platform. Commands are queued through a
// REST endpoint and delivered on the next ingest. Failure statuses can be
// injected to exercise the client's retry policy.
//
// With DEV_NATS_URL set, the same ingest handling is also served over NATS
// request/reply for clients using the NATS transport.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// ──────────────────────────────────────────────────────────────────────────────
// Configuration
// ──────────────────────────────────────────────────────────────────────────────

type config struct {
	HTTPAddr  string
	ProjectID string // empty = accept any
	APIKey    string // empty = accept any
	SchemaID  string // empty = no schema validation
	NATSUrl   string // empty = HTTP only
	Subject   string
}

func loadConfig() config {
	return config{
		HTTPAddr:  envOr("DEV_HTTP_ADDR", ":7700"),
		ProjectID: os.Getenv("DEV_PROJECT_ID"),
		APIKey:    os.Getenv("DEV_API_KEY"),
		SchemaID:  os.Getenv("DEV_SCHEMA_ID"),
		NATSUrl:   os.Getenv("DEV_NATS_URL"),
		Subject:   envOr("DEV_NATS_SUBJECT", "inventronix.ingest"),
	}
}

// ──────────────────────────────────────────────────────────────────────────────
// State: pending commands and injected failures
// ──────────────────────────────────────────────────────────────────────────────

type pendingCommand struct {
	Command     string         `json:"command"`
	ExecutionID string         `json:"execution_id"`
	Arguments   map[string]any `json:"arguments"`
}

type server struct {
	cfg config

	mu       sync.Mutex
	commands []pendingCommand
	failures []int // statuses served before a real ingest goes through
	ingests  int
}

// queueCommand assigns an execution ID and queues the command for the next
// successful ingest.
func (s *server) queueCommand(name string, args map[string]any) pendingCommand {
	cmd := pendingCommand{
		Command:     name,
		ExecutionID: uuid.NewString(),
		Arguments:   args,
	}
	s.mu.Lock()
	s.commands = append(s.commands, cmd)
	s.mu.Unlock()
	return cmd
}

// ingestResult is the outcome of handling one ingest payload, shared
// between the HTTP and NATS fronts.
type ingestResult struct {
	status int
	body   any
}

func (s *server) handleIngest(apiKey, projectID, schemaID string, payload []byte) ingestResult {
	if s.cfg.APIKey != "" && apiKey != s.cfg.APIKey {
		return ingestResult{http.StatusUnauthorized, map[string]string{"error": "invalid api key"}}
	}
	if s.cfg.ProjectID != "" && projectID != s.cfg.ProjectID {
		return ingestResult{http.StatusUnauthorized, map[string]string{"error": "unknown project"}}
	}

	// Injected failures fire before anything else so retry behaviour can
	// be observed end to end.
	s.mu.Lock()
	if len(s.failures) > 0 {
		status := s.failures[0]
		s.failures = s.failures[1:]
		s.mu.Unlock()
		slog.Info("serving injected failure", "status", status)
		return ingestResult{status, map[string]string{"error": "injected failure"}}
	}
	s.mu.Unlock()

	if s.cfg.SchemaID != "" && schemaID != s.cfg.SchemaID {
		return ingestResult{http.StatusBadRequest, map[string]string{
			"error": fmt.Sprintf("payload does not match schema %q", s.cfg.SchemaID),
		}}
	}

	var doc map[string]any
	if err := json.Unmarshal(payload, &doc); err != nil {
		return ingestResult{http.StatusBadRequest, map[string]string{"error": "payload is not valid JSON"}}
	}

	s.mu.Lock()
	s.ingests++
	n := s.ingests
	commands := s.commands
	s.commands = nil
	s.mu.Unlock()

	slog.Info("ingested payload", "n", n, "project", projectID, "fields", len(doc), "commands", len(commands))
	if len(commands) == 0 {
		return ingestResult{http.StatusOK, map[string]any{"status": "ok"}}
	}
	return ingestResult{http.StatusOK, map[string]any{"status": "ok", "commands": commands}}
}

// ──────────────────────────────────────────────────────────────────────────────
// HTTP front
// ──────────────────────────────────────────────────────────────────────────────

func (s *server) routes() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/v1/iot/ingest", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, 1<<20))
		if err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "unreadable body"})
			return
		}
		res := s.handleIngest(
			r.Header.Get("X-Api-Key"),
			r.Header.Get("X-Project-Id"),
			r.URL.Query().Get("schema_id"),
			payload,
		)
		writeJSON(w, res.status, res.body)
	})

	mux.HandleFunc("/v1/commands", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			var in struct {
				Command   string         `json:"command"`
				Arguments map[string]any `json:"arguments"`
			}
			if err := json.NewDecoder(r.Body).Decode(&in); err != nil || in.Command == "" {
				writeJSON(w, http.StatusBadRequest, map[string]string{"error": "command required"})
				return
			}
			cmd := s.queueCommand(in.Command, in.Arguments)
			slog.Info("queued command", "command", cmd.Command, "execution_id", cmd.ExecutionID)
			writeJSON(w, http.StatusAccepted, cmd)
		case http.MethodGet:
			s.mu.Lock()
			pending := s.commands
			s.mu.Unlock()
			writeJSON(w, http.StatusOK, map[string]any{"commands": pending})
		default:
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		}
	})

	mux.HandleFunc("/v1/failures", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
			return
		}
		var in struct {
			Statuses []int `json:"statuses"`
		}
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": "bad body"})
			return
		}
		s.mu.Lock()
		s.failures = append(s.failures, in.Statuses...)
		s.mu.Unlock()
		writeJSON(w, http.StatusAccepted, map[string]any{"queued": in.Statuses})
	})

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "ok")
	})

	return mux
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

// ──────────────────────────────────────────────────────────────────────────────
// NATS front — same contract as HTTP, status code in the reply header
// ──────────────────────────────────────────────────────────────────────────────

func (s *server) serveNATS(ctx context.Context) error {
	nc, err := nats.Connect(s.cfg.NATSUrl,
		nats.Name("inventronix-devserver"),
		nats.ReconnectWait(500*time.Millisecond),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return fmt.Errorf("nats connect %s: %w", s.cfg.NATSUrl, err)
	}

	sub, err := nc.Subscribe(s.cfg.Subject, func(msg *nats.Msg) {
		schemaID := ""
		if u := msg.Header.Get("X-Ingest-Url"); u != "" {
			if i := strings.Index(u, "schema_id="); i >= 0 {
				schemaID = u[i+len("schema_id="):]
			}
		}
		res := s.handleIngest(
			msg.Header.Get("X-Api-Key"),
			msg.Header.Get("X-Project-Id"),
			schemaID,
			msg.Data,
		)
		body, _ := json.Marshal(res.body)
		reply := nats.NewMsg(msg.Reply)
		reply.Data = body
		reply.Header.Set("Status", strconv.Itoa(res.status))
		if err := msg.RespondMsg(reply); err != nil {
			slog.Warn("nats respond failed", "err", err)
		}
	})
	if err != nil {
		nc.Close()
		return fmt.Errorf("nats subscribe %s: %w", s.cfg.Subject, err)
	}

	slog.Info("NATS ingest responder ready", "subject", s.cfg.Subject)
	go func() {
		<-ctx.Done()
		sub.Unsubscribe() //nolint:errcheck
		nc.Close()
	}()
	return nil
}

// ──────────────────────────────────────────────────────────────────────────────
// Main
// ──────────────────────────────────────────────────────────────────────────────

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, nil)))
	cfg := loadConfig()
	srv := &server{cfg: cfg}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	if cfg.NATSUrl != "" {
		if err := srv.serveNATS(ctx); err != nil {
			slog.Error("NATS front failed", "err", err)
			os.Exit(1)
		}
	}

	httpServer := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      srv.routes(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		slog.Info("devserver ready", "addr", cfg.HTTPAddr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("serve error", "err", err)
		}
	}()

	<-ctx.Done()
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	httpServer.Shutdown(shutdownCtx) //nolint:errcheck
	slog.Info("devserver stopped")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
