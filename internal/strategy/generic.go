package strategy

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	aegiserr "Aegis-Engine/internal/errors"
	"Aegis-Engine/pkg/logger"
)

const (
	moduleTimeout     = 30 * time.Second
	executionLogLimit = 100
	resultTextLimit   = 500
)

// restrictedFragments 是模块源码里的禁用片段，注册阶段即拒绝。
var restrictedFragments = []string{
	"os.Exit",
	"os/exec",
	"syscall.",
	"os.Open",
	"os.Create",
	"os.Remove",
	"plugin.Open",
	"reflect.MakeFunc",
}

// ModuleFunc 是模块入口，只能通过沙箱访问外部世界。
type ModuleFunc func(ctx context.Context, env *Sandbox) (any, error)

// Module 是开发者提交的策略模块。Source 是模块源码文本，
// 注册时用于禁用片段扫描。
type Module struct {
	Name    string
	Version string
	Author  string
	Source  string
	Execute ModuleFunc
}

type registeredModule struct {
	module       Module
	caps         []Capability
	registeredAt time.Time
}

// ExecutionEntry 是沙箱执行日志的一条记录。
type ExecutionEntry struct {
	ID         string    `json:"id"`
	ModuleID   string    `json:"module_id"`
	ModuleName string    `json:"module_name"`
	At         time.Time `json:"at"`
	Success    bool      `json:"success"`
	Result     string    `json:"result,omitempty"`
	Error      string    `json:"error,omitempty"`
}

// GenericParams 是沙箱策略的参数。
type GenericParams struct {
	ChainID          uint64
	MaxAllocationBps int
	Timeout          time.Duration
}

// Generic 承载开发者自定义模块，全部在受限沙箱内执行。
type Generic struct {
	chain  ChainReader
	params GenericParams

	mu           sync.Mutex
	order        []string
	modules      map[string]*registeredModule
	executionLog []ExecutionEntry
}

// NewGeneric 创建沙箱策略。
func NewGeneric(chain ChainReader, params GenericParams) *Generic {
	if params.Timeout <= 0 {
		params.Timeout = moduleTimeout
	}
	return &Generic{
		chain:   chain,
		params:  params,
		modules: make(map[string]*registeredModule),
	}
}

// Kind 返回策略种类。
func (g *Generic) Kind() Kind { return KindGeneric }

// RegisterModule 注册模块。入口函数、名称缺失或源码包含禁用片段都会被拒绝，
// 任何校验都发生在模块第一次执行之前。
func (g *Generic) RegisterModule(moduleID string, module Module, caps ...Capability) error {
	if module.Execute == nil {
		return aegiserr.New(aegiserr.CodeInvalidArgument, "模块缺少入口函数")
	}
	if module.Name == "" {
		return aegiserr.New(aegiserr.CodeInvalidArgument, "模块缺少名称")
	}
	for _, fragment := range restrictedFragments {
		if strings.Contains(module.Source, fragment) {
			return aegiserr.New(CodeSandboxViolation,
				fmt.Sprintf("模块源码包含禁用调用: %s", fragment))
		}
	}
	if module.Version == "" {
		module.Version = "1.0.0"
	}
	if module.Author == "" {
		module.Author = "unknown"
	}

	g.mu.Lock()
	if _, exists := g.modules[moduleID]; !exists {
		g.order = append(g.order, moduleID)
	}
	g.modules[moduleID] = &registeredModule{
		module:       module,
		caps:         append([]Capability(nil), caps...),
		registeredAt: time.Now(),
	}
	g.mu.Unlock()

	logger.Named("strategy.generic").Info("模块已注册",
		"module", module.Name,
		"id", moduleID,
		"capabilities", len(caps))
	return nil
}

// UnregisterModule 注销模块。
func (g *Generic) UnregisterModule(moduleID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.modules[moduleID]; !ok {
		return false
	}
	delete(g.modules, moduleID)
	for i, id := range g.order {
		if id == moduleID {
			g.order = append(g.order[:i], g.order[i+1:]...)
			break
		}
	}
	return true
}

// ExecuteModule 在沙箱里执行单个模块。
func (g *Generic) ExecuteModule(ctx context.Context, moduleID string, execCtx Context) Outcome {
	g.mu.Lock()
	registered, ok := g.modules[moduleID]
	g.mu.Unlock()
	if !ok {
		return Outcome{Type: "MODULE", Success: false, Detail: fmt.Sprintf("Module %s not found", moduleID)}
	}

	maxAmount := new(big.Int).Div(
		new(big.Int).Mul(execCtx.TreasuryBalance, big.NewInt(int64(g.params.MaxAllocationBps))),
		big.NewInt(10000))

	decision := execCtx.Risk.PreValidate(ctx, maxAmount, execCtx.TreasuryBalance)
	if !decision.Allowed {
		return Outcome{Type: "MODULE", Success: false, Detail: "Risk blocked: " + decision.Reason}
	}

	env := newSandbox(execCtx.Treasury, g.chain, g.params.ChainID, maxAmount, registered.caps)
	result, err := g.runWithTimeout(ctx, registered.module, env)

	entry := ExecutionEntry{
		ID:         uuid.NewString(),
		ModuleID:   moduleID,
		ModuleName: registered.module.Name,
		At:         time.Now(),
		Success:    err == nil,
	}
	if err != nil {
		entry.Error = err.Error()
	} else {
		entry.Result = renderResult(result)
	}

	g.mu.Lock()
	g.executionLog = append(g.executionLog, entry)
	if len(g.executionLog) > executionLogLimit {
		g.executionLog = g.executionLog[len(g.executionLog)-executionLogLimit:]
	}
	g.mu.Unlock()

	if err != nil {
		logger.Named("strategy.generic").Error("模块执行失败",
			"module", registered.module.Name, "error", err)
		return Outcome{Type: "MODULE", Success: false, Detail: err.Error()}
	}
	logger.Named("strategy.generic").Info("模块执行完成", "module", registered.module.Name)
	return Outcome{Type: "MODULE", Success: true, Detail: entry.Result}
}

// runWithTimeout 把模块执行与硬性时限竞速，超时即放弃等待。
func (g *Generic) runWithTimeout(ctx context.Context, module Module, env *Sandbox) (any, error) {
	runCtx, cancel := context.WithTimeout(ctx, g.params.Timeout)
	defer cancel()

	type moduleReturn struct {
		result any
		err    error
	}
	done := make(chan moduleReturn, 1)
	go func() {
		result, err := module.Execute(runCtx, env)
		done <- moduleReturn{result: result, err: err}
	}()

	select {
	case ret := <-done:
		return ret.result, ret.err
	case <-runCtx.Done():
		return nil, aegiserr.New(CodeSandboxTimeout, "模块执行超时")
	}
}

// Execute 按注册顺序执行全部模块，任一模块成功即视为本周期已执行。
func (g *Generic) Execute(ctx context.Context, execCtx Context) (*Result, error) {
	g.mu.Lock()
	ids := append([]string(nil), g.order...)
	g.mu.Unlock()

	if len(ids) == 0 {
		return &Result{Executed: false, Reason: "No modules registered"}, nil
	}

	outcomes := make([]Outcome, 0, len(ids))
	executed := false
	for _, id := range ids {
		outcome := g.ExecuteModule(ctx, id, execCtx)
		outcomes = append(outcomes, outcome)
		if outcome.Success {
			executed = true
		}
	}

	return &Result{
		Executed: executed,
		Outcomes: outcomes,
		Analysis: map[string]any{"modules_run": len(ids)},
	}, nil
}

// Stats 返回策略运行统计。
func (g *Generic) Stats() map[string]any {
	g.mu.Lock()
	defer g.mu.Unlock()

	modules := make([]map[string]any, 0, len(g.order))
	for _, id := range g.order {
		registered := g.modules[id]
		modules = append(modules, map[string]any{
			"id":      id,
			"name":    registered.module.Name,
			"version": registered.module.Version,
			"author":  registered.module.Author,
		})
	}
	recent := len(g.executionLog)
	if recent > 10 {
		recent = 10
	}
	return map[string]any{
		"registered_modules": modules,
		"total_executions":   len(g.executionLog),
		"recent_executions":  append([]ExecutionEntry(nil), g.executionLog[len(g.executionLog)-recent:]...),
	}
}

// ExecutionLog 返回沙箱执行日志副本。
func (g *Generic) ExecutionLog() []ExecutionEntry {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ExecutionEntry(nil), g.executionLog...)
}

// renderResult 把模块返回值压成有限长度的文本。
func renderResult(result any) string {
	if result == nil {
		return ""
	}
	text, err := json.Marshal(result)
	if err != nil {
		return fmt.Sprintf("%v", result)
	}
	if len(text) > resultTextLimit {
		text = text[:resultTextLimit]
	}
	return string(text)
}
