package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"Aegis-Engine/internal/engine"
	"Aegis-Engine/internal/eventbus"
	"Aegis-Engine/internal/journal"
	"Aegis-Engine/internal/observability/metrics"
	"Aegis-Engine/internal/strategy"
)

// Server 暴露引擎的 REST 管理面，供外部面板与运维脚本调用。
type Server struct {
	addr    string
	engine  *engine.Engine
	journal journal.Store
	events  *eventbus.MemoryBus
}

// NewServer 构造 API 服务实例。journal 与 events 允许为 nil，
// 对应接口返回 404。
func NewServer(addr string, eng *engine.Engine, store journal.Store, events *eventbus.MemoryBus) *Server {
	return &Server{addr: addr, engine: eng, journal: store, events: events}
}

// Start 启动 HTTP 服务，直到上下文取消或出现错误。
func (s *Server) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/engine/status", s.handleEngineStatus)
	mux.HandleFunc("/api/v1/engine/cycle", s.handleRunCycle)
	mux.HandleFunc("/api/v1/agents", s.handleAgents)
	mux.HandleFunc("/api/v1/agents/", s.handleAgentScoped)
	mux.HandleFunc("/api/v1/journal", s.handleJournal)
	mux.HandleFunc("/api/v1/events", s.handleEvents)
	mux.Handle("/metrics", metrics.Handler())

	server := &http.Server{
		Addr:              s.addr,
		Handler:           withContext(ctx, mux),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
		return ctx.Err()
	case err := <-errCh:
		return err
	}
}

func (s *Server) handleEngineStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	writeJSON(w, s.engine.Status())
}

func (s *Server) handleRunCycle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}
	s.engine.RunCycle(r.Context())
	writeJSON(w, s.engine.Status())
}

// handleAgents 处理代理装载请求。
func (s *Server) handleAgents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "仅支持 POST", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		AgentID uint64 `json:"agent_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "请求体解析失败", http.StatusBadRequest)
		return
	}
	if err := s.engine.LoadAgent(r.Context(), req.AgentID); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	if _, ok := s.engine.Agent(req.AgentID); !ok {
		// 软失败：代理未激活或策略种类不可识别。
		http.Error(w, "代理不可装载", http.StatusUnprocessableEntity)
		return
	}
	writeJSON(w, map[string]any{"loaded": true, "agent_id": req.AgentID})
}

// handleAgentScoped 分发 /api/v1/agents/{id}[/...] 下的子路由。
func (s *Server) handleAgentScoped(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/v1/agents/")
	parts := strings.Split(strings.Trim(rest, "/"), "/")
	if len(parts) == 0 || parts[0] == "" {
		http.NotFound(w, r)
		return
	}
	agentID, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		http.Error(w, "非法的代理 ID", http.StatusBadRequest)
		return
	}

	if len(parts) == 1 {
		switch r.Method {
		case http.MethodDelete:
			s.handleRemoveAgent(w, r, agentID)
		case http.MethodGet:
			s.handleAgentStats(w, r, agentID)
		default:
			http.Error(w, "仅支持 GET/DELETE", http.StatusMethodNotAllowed)
		}
		return
	}

	switch parts[1] {
	case "risk":
		s.handleAgentRisk(w, r, agentID)
	case "signals":
		s.handleAgentSignals(w, r, agentID)
	case "modules":
		s.handleAgentModules(w, r, agentID, parts[2:])
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleRemoveAgent(w http.ResponseWriter, r *http.Request, agentID uint64) {
	if !s.engine.RemoveAgent(r.Context(), agentID) {
		http.Error(w, "代理未装载", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"removed": true, "agent_id": agentID})
}

func (s *Server) handleAgentStats(w http.ResponseWriter, r *http.Request, agentID uint64) {
	runtime, ok := s.engine.Agent(agentID)
	if !ok {
		http.Error(w, "代理未装载", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{
		"agent_id": agentID,
		"strategy": string(runtime.Kind),
		"stats":    runtime.Strategy.Stats(),
	})
}

func (s *Server) handleAgentRisk(w http.ResponseWriter, r *http.Request, agentID uint64) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	runtime, ok := s.engine.Agent(agentID)
	if !ok {
		http.Error(w, "代理未装载", http.StatusNotFound)
		return
	}
	status, err := runtime.Risk.Status(r.Context())
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadGateway)
		return
	}
	writeJSON(w, status)
}

// handleAgentSignals 读取数据策略的信号流，仅对有效订阅者开放。
func (s *Server) handleAgentSignals(w http.ResponseWriter, r *http.Request, agentID uint64) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	runtime, ok := s.engine.Agent(agentID)
	if !ok {
		http.Error(w, "代理未装载", http.StatusNotFound)
		return
	}
	dataService, ok := runtime.Strategy.(*strategy.DataService)
	if !ok {
		http.Error(w, "该代理不是数据策略", http.StatusBadRequest)
		return
	}

	rawUser := r.URL.Query().Get("user")
	if !common.IsHexAddress(rawUser) {
		http.Error(w, "非法的订阅者地址", http.StatusBadRequest)
		return
	}
	authorized, signals := dataService.Signals(common.HexToAddress(rawUser), queryLimit(r, 10))
	if !authorized {
		http.Error(w, "订阅已过期或不存在", http.StatusForbidden)
		return
	}
	writeJSON(w, signals)
}

// handleAgentModules 管理沙箱策略的模块清单。模块入口是进程内代码，
// 注册发生在编译期装配阶段，HTTP 面只提供查询与注销。
func (s *Server) handleAgentModules(w http.ResponseWriter, r *http.Request, agentID uint64, rest []string) {
	runtime, ok := s.engine.Agent(agentID)
	if !ok {
		http.Error(w, "代理未装载", http.StatusNotFound)
		return
	}
	generic, ok := runtime.Strategy.(*strategy.Generic)
	if !ok {
		http.Error(w, "该代理不是沙箱策略", http.StatusBadRequest)
		return
	}

	if len(rest) == 0 || rest[0] == "" {
		if r.Method != http.MethodGet {
			http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
			return
		}
		writeJSON(w, generic.Stats())
		return
	}

	if r.Method != http.MethodDelete {
		http.Error(w, "仅支持 DELETE", http.StatusMethodNotAllowed)
		return
	}
	if !generic.UnregisterModule(rest[0]) {
		http.Error(w, "模块不存在", http.StatusNotFound)
		return
	}
	writeJSON(w, map[string]any{"removed": true, "module_id": rest[0]})
}

func (s *Server) handleJournal(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.journal == nil {
		http.NotFound(w, r)
		return
	}
	records, err := s.journal.Recent(r.Context(), queryLimit(r, 50))
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	writeJSON(w, records)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "仅支持 GET", http.StatusMethodNotAllowed)
		return
	}
	if s.events == nil {
		http.NotFound(w, r)
		return
	}
	writeJSON(w, s.events.Recent(queryLimit(r, 50)))
}

func queryLimit(r *http.Request, fallback int) int {
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if parsed, err := strconv.Atoi(raw); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}

func writeJSON(w http.ResponseWriter, payload any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}

// withContext 确保请求处理能够感知根上下文取消。
func withContext(ctx context.Context, handler http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-ctx.Done():
			http.Error(w, "服务已关闭", http.StatusServiceUnavailable)
			return
		default:
		}
		handler.ServeHTTP(w, r)
	})
}
