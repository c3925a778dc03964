// Package main implements a mock agent runtime for e2e testing.
// It serves the runtime HTTP surface roster calls (chat and task
// assignment), answering chats from JSON fixture files routed by agent
// name. This eliminates the need for real agent containers during
// control plane wiring tests, making them fast, deterministic, and
// offline-capable.
//
// Usage:
//
//	mock-agent -fixtures /path/to/fixtures -port 7889
//
// Fixture files are JSON named by agent (e.g., "coder.json" maps to
// agent "coder"). The file content is returned as the chat response
// body, so fixtures look like {"message": "..."}.
//
// Sequential fixtures: If numbered files exist (e.g., "coder.1.json",
// "coder.2.json"), the Nth chat to that agent returns the Nth fixture.
// After exhausting numbered fixtures, the base "coder.json" is used as
// a repeating fallback. This enables testing multi-turn exchanges.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// capturedChat stores the key fields of an incoming chat for test verification.
type capturedChat struct {
	Agent         string `json:"agent"`
	Message       string `json:"message"`
	ExecutionID   string `json:"execution_id"`
	ExecutionType string `json:"execution_type"`
	CallIndex     int    `json:"call_index"` // 1-indexed per-agent call number
	Timestamp     int64  `json:"timestamp"`
}

type chatRequest struct {
	Message string `json:"message"`
	Team    string `json:"team,omitempty"`
}

type taskSpec struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

type server struct {
	fixtures map[string][]string // agent name → ordered fixture contents (sequential)
	calls    atomic.Int64        // total chats served

	// Per-agent call counters for sequential fixture selection.
	agentCalls   map[string]*atomic.Int64
	agentCallsMu sync.Mutex // protects lazy init of agentCalls entries

	// Per-agent chat capture for prompt verification in e2e tests.
	agentChats   map[string][]capturedChat
	agentChatsMu sync.Mutex

	// Currently assigned tasks, keyed "agent/task".
	tasks   map[string]taskSpec
	tasksMu sync.Mutex
}

func newServer(fixtures map[string][]string) *server {
	return &server{
		fixtures:   fixtures,
		agentCalls: make(map[string]*atomic.Int64),
		agentChats: make(map[string][]capturedChat),
		tasks:      make(map[string]taskSpec),
	}
}

// captureChat stores a chat for later retrieval via /chats endpoint.
func (s *server) captureChat(agent string, req chatRequest, r *http.Request, callIndex int) {
	s.agentChatsMu.Lock()
	defer s.agentChatsMu.Unlock()
	s.agentChats[agent] = append(s.agentChats[agent], capturedChat{
		Agent:         agent,
		Message:       req.Message,
		ExecutionID:   r.Header.Get("X-Roster-Execution-ID"),
		ExecutionType: r.Header.Get("X-Roster-Execution-Type"),
		CallIndex:     callIndex,
		Timestamp:     time.Now().UnixMilli(),
	})
}

// getAgentCounter returns the call counter for an agent, creating it lazily.
func (s *server) getAgentCounter(agent string) *atomic.Int64 {
	s.agentCallsMu.Lock()
	defer s.agentCallsMu.Unlock()
	if c, ok := s.agentCalls[agent]; ok {
		return c
	}
	c := &atomic.Int64{}
	s.agentCalls[agent] = c
	return c
}

func main() {
	fixtureDir := flag.String("fixtures", "", "directory containing fixture response files")
	port := flag.Int("port", 7889, "port to listen on")
	flag.Parse()

	// Allow env var override
	if envDir := os.Getenv("MOCK_AGENT_FIXTURES"); envDir != "" && *fixtureDir == "" {
		*fixtureDir = envDir
	}
	if *fixtureDir == "" {
		*fixtureDir = "/fixtures"
	}

	fixtures, err := loadFixtures(*fixtureDir)
	if err != nil {
		log.Fatalf("Failed to load fixtures from %s: %v", *fixtureDir, err)
	}
	log.Printf("Loaded %d agent(s) from %s", len(fixtures), *fixtureDir)
	for agent, seq := range fixtures {
		log.Printf("  agent: %s (%d fixture(s))", agent, len(seq))
	}

	s := newServer(fixtures)

	addr := fmt.Sprintf(":%d", *port)
	log.Printf("Mock agent runtime listening on %s", addr)
	if err := http.ListenAndServe(addr, s.routes()); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}

func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("POST /v0.1/agents/{agent}/chat", s.handleChat)
	mux.HandleFunc("POST /v0.1/agents/{agent}/tasks", s.handleAssignTask)
	mux.HandleFunc("DELETE /v0.1/agents/{agent}/tasks/{task}", s.handleCancelTask)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /chats", s.handleChats)
	mux.HandleFunc("GET /tasks", s.handleTasks)
	return mux
}

func (s *server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *server) handleChat(w http.ResponseWriter, r *http.Request) {
	agent := r.PathValue("agent")

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	callNum := s.calls.Add(1)
	log.Printf("[chat %d] agent=%s bytes=%d", callNum, agent, len(req.Message))

	seq, ok := s.fixtures[agent]
	if !ok {
		log.Printf("[chat %d] WARNING: no fixture for agent=%q, returning error", callNum, agent)
		http.Error(w, fmt.Sprintf("no fixture for agent %q", agent), http.StatusNotFound)
		return
	}

	// Select fixture from sequence based on per-agent call count
	counter := s.getAgentCounter(agent)
	callIndex := int(counter.Add(1) - 1) // 0-indexed

	// Capture chat for verification (e2e /chats endpoint)
	s.captureChat(agent, req, r, callIndex+1)
	var content string
	if callIndex < len(seq) {
		content = seq[callIndex]
	} else {
		content = seq[len(seq)-1] // repeat last fixture
	}

	log.Printf("[chat %d] agent=%s call_index=%d/%d", callNum, agent, callIndex+1, len(seq))

	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(content))
}

func (s *server) handleAssignTask(w http.ResponseWriter, r *http.Request) {
	agent := r.PathValue("agent")

	var task taskSpec
	if err := json.NewDecoder(r.Body).Decode(&task); err != nil {
		http.Error(w, fmt.Sprintf("invalid task body: %v", err), http.StatusBadRequest)
		return
	}
	if task.Name == "" {
		http.Error(w, "task has no name", http.StatusBadRequest)
		return
	}

	s.tasksMu.Lock()
	s.tasks[agent+"/"+task.Name] = task
	s.tasksMu.Unlock()

	log.Printf("[task] assigned %s to agent=%s", task.Name, agent)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"accepted": true})
}

func (s *server) handleCancelTask(w http.ResponseWriter, r *http.Request) {
	agent := r.PathValue("agent")
	task := r.PathValue("task")

	s.tasksMu.Lock()
	_, ok := s.tasks[agent+"/"+task]
	delete(s.tasks, agent+"/"+task)
	s.tasksMu.Unlock()

	if !ok {
		http.Error(w, fmt.Sprintf("task %q not assigned to %q", task, agent), http.StatusNotFound)
		return
	}

	log.Printf("[task] cancelled %s on agent=%s", task, agent)
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]bool{"cancelled": true})
}

// handleStats returns chat counts for test assertions.
func (s *server) handleStats(w http.ResponseWriter, _ *http.Request) {
	s.agentCallsMu.Lock()
	chatsByAgent := make(map[string]int64, len(s.agentCalls))
	for agent, counter := range s.agentCalls {
		chatsByAgent[agent] = counter.Load()
	}
	s.agentCallsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"total_chats":    s.calls.Load(),
		"chats_by_agent": chatsByAgent,
	})
}

// handleChats returns captured chats for test assertions.
// Query params:
//   - agent: filter by agent name (optional, returns all agents if omitted)
//   - call: filter by call index, 1-indexed (optional)
//
// Returns {"chats_by_agent": {"coder": [...], ...}}
func (s *server) handleChats(w http.ResponseWriter, r *http.Request) {
	agentFilter := r.URL.Query().Get("agent")
	callFilter := r.URL.Query().Get("call")

	s.agentChatsMu.Lock()
	result := make(map[string][]capturedChat)
	for agent, chats := range s.agentChats {
		if agentFilter != "" && agent != agentFilter {
			continue
		}
		if callFilter != "" {
			callIdx, err := strconv.Atoi(callFilter)
			if err == nil {
				for _, chat := range chats {
					if chat.CallIndex == callIdx {
						result[agent] = append(result[agent], chat)
					}
				}
				continue
			}
		}
		result[agent] = chats
	}
	s.agentChatsMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"chats_by_agent": result,
	})
}

// handleTasks returns the currently assigned tasks.
func (s *server) handleTasks(w http.ResponseWriter, _ *http.Request) {
	s.tasksMu.Lock()
	tasks := make(map[string]taskSpec, len(s.tasks))
	for key, task := range s.tasks {
		tasks[key] = task
	}
	s.tasksMu.Unlock()

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{"tasks": tasks})
}

// numberedFileRe matches files like "coder.1.json", "reviewer.2.json".
var numberedFileRe = regexp.MustCompile(`^(.+)\.(\d+)\.json$`)

// loadFixtures reads JSON files from dir and returns a map of agent→content sequence.
//
// For each agent, fixtures are ordered:
//  1. Numbered files (agent.1.json, agent.2.json, ...) in numeric order
//  2. Base file (agent.json) appended as the final fallback
//
// If only agent.json exists, the sequence has one entry.
func loadFixtures(dir string) (map[string][]string, error) {
	baseFiles := make(map[string]string)             // agent → content
	numberedFiles := make(map[string]map[int]string) // agent → {index → content}

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(info.Name(), ".json") {
			return nil
		}

		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read %s: %w", path, err)
		}

		if !json.Valid(data) {
			return fmt.Errorf("invalid JSON in %s", path)
		}

		content := string(data)

		// Check for numbered pattern: agent.N.json
		if matches := numberedFileRe.FindStringSubmatch(info.Name()); matches != nil {
			agent := matches[1]
			index, _ := strconv.Atoi(matches[2])
			if numberedFiles[agent] == nil {
				numberedFiles[agent] = make(map[int]string)
			}
			numberedFiles[agent][index] = content
			return nil
		}

		// Base file: agent.json
		agent := strings.TrimSuffix(info.Name(), ".json")
		baseFiles[agent] = content
		return nil
	})

	if err != nil {
		return nil, err
	}

	// Build ordered sequences
	fixtures := make(map[string][]string)

	allAgents := make(map[string]bool)
	for a := range baseFiles {
		allAgents[a] = true
	}
	for a := range numberedFiles {
		allAgents[a] = true
	}

	for agent := range allAgents {
		var seq []string

		// Add numbered fixtures in order
		if numbered, ok := numberedFiles[agent]; ok {
			indices := make([]int, 0, len(numbered))
			for idx := range numbered {
				indices = append(indices, idx)
			}
			sort.Ints(indices)

			for _, idx := range indices {
				seq = append(seq, numbered[idx])
			}
		}

		// Append base file as fallback
		if base, ok := baseFiles[agent]; ok {
			seq = append(seq, base)
		}

		if len(seq) > 0 {
			fixtures[agent] = seq
		}
	}

	if len(fixtures) == 0 {
		return nil, fmt.Errorf("no fixture files found in %s", dir)
	}

	return fixtures, nil
}
