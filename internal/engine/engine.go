package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"Aegis-Engine/internal/chain"
	"Aegis-Engine/internal/chain/contracts"
	"Aegis-Engine/internal/config"
	aegiserr "Aegis-Engine/internal/errors"
	"Aegis-Engine/internal/eventbus"
	"Aegis-Engine/internal/journal"
	"Aegis-Engine/internal/observability/alerting"
	"Aegis-Engine/internal/observability/metrics"
	"Aegis-Engine/internal/perf"
	"Aegis-Engine/internal/risk"
	"Aegis-Engine/internal/strategy"
	"Aegis-Engine/internal/treasury"
	"Aegis-Engine/pkg/logger"
)

// CodeAgentNotLoaded 表示操作指向了一个未装载的代理。
const CodeAgentNotLoaded aegiserr.Code = "AGENT_NOT_LOADED"

// 连续失败达到该值时触发一次紧急停机。
const emergencyStopThreshold = 5

// 每个代理保留的最近错误条数。
const recentErrorLimit = 10

func init() {
	aegiserr.Register(CodeAgentNotLoaded, aegiserr.Attributes{
		Message:   "agent not loaded",
		Severity:  aegiserr.SeverityInfo,
		Retryable: false,
		Alert:     false,
	})
}

// Treasury 是引擎侧可见的金库门面。
type Treasury interface {
	Balance(ctx context.Context) *big.Int
	Withdraw(ctx context.Context, to common.Address, amount *big.Int, reason string) (string, error)
}

// PerformanceSink 把已执行周期上报链上绩效账本。
type PerformanceSink interface {
	LogExecution(ctx context.Context, strategyType string, pnl, capitalUsed *big.Int, txHash string) (string, error)
}

// RegistryReader 读取代理注册表。
type RegistryReader interface {
	AgentCount(ctx context.Context) (*big.Int, error)
	Agent(ctx context.Context, agentID *big.Int) (*contracts.AgentRecord, error)
}

var (
	_ Treasury        = (*treasury.Manager)(nil)
	_ PerformanceSink = (*perf.Reporter)(nil)
	_ RegistryReader  = (*contracts.Registry)(nil)
)

// AgentRuntime 是一个已装载代理的执行单元：一套独立的风控、金库、
// 绩效组件外加唯一一个策略实例。
type AgentRuntime struct {
	ID       uint64
	Kind     strategy.Kind
	Record   contracts.AgentRecord
	Risk     risk.Controller
	Treasury Treasury
	Perf     PerformanceSink
	Strategy strategy.Strategy

	executionsRun     int
	consecutiveErrors int
	lastExecution     time.Time
	recentErrors      []string
}

// AgentStatus 是单个代理的只读状态快照。
type AgentStatus struct {
	ID                uint64         `json:"id"`
	Strategy          string         `json:"strategy"`
	ExecutionsRun     int            `json:"executions_run"`
	ConsecutiveErrors int            `json:"consecutive_errors"`
	LastExecution     time.Time      `json:"last_execution"`
	Stats             map[string]any `json:"stats,omitempty"`
	RecentErrors      []string       `json:"recent_errors,omitempty"`
}

// Status 是引擎的只读状态快照。
type Status struct {
	Initialized     bool          `json:"initialized"`
	Running         bool          `json:"running"`
	ExecutorAddress string        `json:"executor_address,omitempty"`
	CycleCount      uint64        `json:"cycle_count"`
	LastCycleAt     time.Time     `json:"last_cycle_at"`
	Agents          []AgentStatus `json:"agents"`
}

// Engine 按固定周期驱动全部已装载代理，并在策略连续失败时熔断。
// 所有代理在一个周期内严格串行执行。
type Engine struct {
	cfg     *config.Config
	journal journal.Store
	bus     eventbus.Publisher
	alerts  alerting.Dispatcher
	log     *slog.Logger

	client   *chain.Client
	executor *chain.Executor
	registry RegistryReader
	markets  chain.MarketDefinitions
	chainID  *big.Int

	mu          sync.Mutex
	initialized bool
	running     bool
	agents      map[uint64]*AgentRuntime
	order       []uint64
	cycleCount  uint64
	lastCycleAt time.Time
	stopCh      chan struct{}
	wg          sync.WaitGroup
}

// New 创建引擎。journal 与 bus 允许为 nil，对应能力直接关闭。
func New(cfg *config.Config, store journal.Store, bus eventbus.Publisher, alerts alerting.Dispatcher) *Engine {
	return &Engine{
		cfg:     cfg,
		journal: store,
		bus:     bus,
		alerts:  alerts,
		log:     logger.Named("engine"),
		agents:  make(map[uint64]*AgentRuntime),
	}
}

// Initialize 建立链上连接并派生执行器身份。
// 未配置执行器私钥时引擎保持空转，返回 false 且不报错。
func (e *Engine) Initialize(ctx context.Context) (bool, error) {
	key := e.cfg.ExecutorKey()
	if key == "" {
		e.log.Warn("未配置执行器私钥，引擎保持空转", "env", e.cfg.Chain.ExecutorKeyEnv)
		return false, nil
	}

	client, err := chain.Dial(ctx, chain.Config{RPCURL: e.cfg.Chain.RPCURL})
	if err != nil {
		return false, aegiserr.Wrap(aegiserr.CodeInitializationFailure, err, "连接链节点失败")
	}
	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return false, aegiserr.Wrap(aegiserr.CodeInitializationFailure, err, "读取链 ID 失败")
	}
	executor, err := chain.NewExecutor(key, chainID)
	if err != nil {
		client.Close()
		return false, err
	}
	registry, err := contracts.NewRegistry(common.HexToAddress(e.cfg.Chain.FactoryAddress), client.Backend())
	if err != nil {
		client.Close()
		return false, err
	}
	markets, err := chain.LoadMarketDefinitions(e.cfg.Chain.MarketsFile)
	if err != nil {
		client.Close()
		return false, aegiserr.Wrap(aegiserr.CodeInitializationFailure, err, "加载市场配置失败")
	}

	e.mu.Lock()
	e.client = client
	e.executor = executor
	e.registry = registry
	e.markets = markets
	e.chainID = chainID
	e.initialized = true
	e.mu.Unlock()

	e.log.Info("引擎初始化完成",
		"chain_id", chainID.String(),
		"executor", executor.Address().Hex())
	return true, nil
}

// LoadAgent 从注册表装载一个代理。链上记录不可用时返回错误；
// 代理未激活或策略种类不可识别时软失败：记一条日志，不装载，不报错。
func (e *Engine) LoadAgent(ctx context.Context, agentID uint64) error {
	e.mu.Lock()
	registry := e.registry
	initialized := e.initialized
	e.mu.Unlock()
	if !initialized {
		return aegiserr.New(aegiserr.CodeInitializationFailure, "引擎尚未初始化")
	}

	record, err := registry.Agent(ctx, new(big.Int).SetUint64(agentID))
	if err != nil {
		return err
	}
	if !record.Active {
		e.log.Warn("代理未激活，跳过装载", "agent_id", agentID)
		return nil
	}
	kind, err := strategy.ParseKind(record.StrategyType)
	if err != nil {
		e.log.Warn("代理策略种类不可识别，跳过装载",
			"agent_id", agentID,
			"strategy_type", record.StrategyType)
		return nil
	}

	runtime, err := e.buildRuntime(agentID, kind, record)
	if err != nil {
		return err
	}

	e.mu.Lock()
	if _, exists := e.agents[agentID]; !exists {
		e.order = append(e.order, agentID)
	}
	e.agents[agentID] = runtime
	e.mu.Unlock()

	e.publish(ctx, eventbus.Event{
		Type:       eventbus.TypeAgentLoaded,
		AgentID:    agentID,
		Strategy:   string(kind),
		OccurredAt: time.Now(),
	})
	e.log.Info("代理装载完成", "agent_id", agentID, "strategy", string(kind))
	return nil
}

// buildRuntime 为代理组装独立的风控、金库、绩效与策略实例。
func (e *Engine) buildRuntime(agentID uint64, kind strategy.Kind, record *contracts.AgentRecord) (*AgentRuntime, error) {
	backend := e.client.Backend()

	vault, err := contracts.NewTreasury(record.Treasury, backend)
	if err != nil {
		return nil, err
	}
	distributor, err := contracts.NewDistributor(record.RevenueDistributor, backend)
	if err != nil {
		return nil, err
	}
	controller, err := contracts.NewRiskController(record.RiskController, backend)
	if err != nil {
		return nil, err
	}
	tracker, err := contracts.NewTracker(record.PerformanceTracker, backend)
	if err != nil {
		return nil, err
	}

	strat, err := e.buildStrategy(kind)
	if err != nil {
		return nil, err
	}

	return &AgentRuntime{
		ID:       agentID,
		Kind:     kind,
		Record:   *record,
		Risk:     risk.NewValidator(controller, e.executor),
		Treasury: treasury.NewManager(vault, distributor, e.executor),
		Perf:     perf.NewReporter(tracker, e.executor),
		Strategy: strat,
	}, nil
}

func (e *Engine) buildStrategy(kind strategy.Kind) (strategy.Strategy, error) {
	backend := e.client.Backend()
	wrappedNative := common.HexToAddress(e.cfg.Chain.WrappedNative)

	switch kind {
	case strategy.KindTrading:
		router, err := contracts.NewRouter(e.markets.RouterAddress(), backend)
		if err != nil {
			return nil, err
		}
		binder := func(addr common.Address) (strategy.Token, error) {
			return contracts.NewERC20(addr, backend)
		}
		return strategy.NewTrading(router, binder, e.executor, wrappedNative, strategy.TradingParams{
			MomentumWindow:    e.cfg.Trading.MomentumWindow,
			VolatilityCeiling: e.cfg.Trading.VolatilityCeiling,
			MinProfitBps:      e.cfg.Trading.MinProfitBps,
			SlippageBps:       e.cfg.Trading.SlippageBps,
			ProbeAmount:       config.ParseWei(e.cfg.Trading.ProbeAmountWei),
			MaxAllocationBps:  e.cfg.Risk.MaxAllocationBps,
			MaxTradesPerDay:   e.cfg.Risk.MaxTradesPerDay,
		}), nil
	case strategy.KindYield:
		addrs := e.markets.VenueAddresses()
		venues := make([]strategy.Venue, 0, len(addrs))
		for _, addr := range addrs {
			venue, err := contracts.NewStakingVenue(addr, backend)
			if err != nil {
				return nil, err
			}
			venues = append(venues, venue)
		}
		return strategy.NewYield(venues, e.executor, strategy.YieldParams{
			RebalanceInterval: e.cfg.RebalanceInterval(),
			MaxAllocationBps:  e.cfg.Risk.MaxAllocationBps,
		}), nil
	case strategy.KindPrediction:
		market, err := contracts.NewPredictionMarket(e.markets.PredictionAddress(), backend)
		if err != nil {
			return nil, err
		}
		return strategy.NewPrediction(market, e.executor, strategy.PredictionParams{
			MinSpreadBps:   e.cfg.Prediction.MinSpreadBps,
			MaxPositionBps: e.cfg.Prediction.MaxPositionBps,
			MinBet:         config.ParseWei(e.cfg.Prediction.MinBetWei),
		}), nil
	case strategy.KindDataService:
		router, err := contracts.NewRouter(e.markets.RouterAddress(), backend)
		if err != nil {
			return nil, err
		}
		return strategy.NewDataService(router, wrappedNative, strategy.DataServiceParams{
			SignalWindow:     e.cfg.DataService.SignalWindow,
			PremiumThreshold: config.ParseWei(e.cfg.DataService.PremiumThresholdWei),
		}), nil
	case strategy.KindGeneric:
		return strategy.NewGeneric(e.client, strategy.GenericParams{
			ChainID:          e.chainID.Uint64(),
			MaxAllocationBps: e.cfg.Risk.MaxAllocationBps,
		}), nil
	default:
		return nil, aegiserr.New(aegiserr.CodeInvalidArgument, fmt.Sprintf("未知的策略种类: %q", kind))
	}
}

// RemoveAgent 卸载一个代理。
func (e *Engine) RemoveAgent(ctx context.Context, agentID uint64) bool {
	e.mu.Lock()
	runtime, ok := e.agents[agentID]
	if ok {
		delete(e.agents, agentID)
		for i, id := range e.order {
			if id == agentID {
				e.order = append(e.order[:i], e.order[i+1:]...)
				break
			}
		}
	}
	e.mu.Unlock()
	if !ok {
		return false
	}

	e.publish(ctx, eventbus.Event{
		Type:       eventbus.TypeAgentRemoved,
		AgentID:    agentID,
		Strategy:   string(runtime.Kind),
		OccurredAt: time.Now(),
	})
	e.log.Info("代理已卸载", "agent_id", agentID)
	return true
}

// Agent 返回指定代理的运行单元。
func (e *Engine) Agent(agentID uint64) (*AgentRuntime, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	runtime, ok := e.agents[agentID]
	return runtime, ok
}

// ExecuteAgent 驱动一个代理完成单次执行周期。
// 金库为空时直接跳过，不触达策略；策略返回错误计入连续失败，
// 连续第 5 次失败时触发一次不等待结果的紧急停机。
func (e *Engine) ExecuteAgent(ctx context.Context, agentID uint64) (*strategy.Result, error) {
	e.mu.Lock()
	runtime, ok := e.agents[agentID]
	targetAsset := common.HexToAddress(e.cfg.Chain.WrappedNative)
	e.mu.Unlock()
	if !ok {
		return nil, aegiserr.New(CodeAgentNotLoaded, fmt.Sprintf("代理 %d 未装载", agentID))
	}

	balance := runtime.Treasury.Balance(ctx)
	if balance.Sign() == 0 {
		result := &strategy.Result{Executed: false, Reason: "Treasury empty"}
		metrics.ObserveExecution(string(runtime.Kind), "skipped")
		e.record(ctx, runtime, result, nil)
		return result, nil
	}

	execCtx := strategy.Context{
		TreasuryBalance: balance,
		Risk:            runtime.Risk,
		Treasury:        runtime.Treasury,
	}
	if runtime.Kind == strategy.KindTrading || runtime.Kind == strategy.KindDataService {
		execCtx.TargetAsset = targetAsset
	}

	result, err := runtime.Strategy.Execute(ctx, execCtx)
	if err != nil {
		e.handleFault(ctx, runtime, err)
		return nil, err
	}

	e.mu.Lock()
	runtime.lastExecution = time.Now()
	e.mu.Unlock()

	if result.Executed {
		// 只有真正上链执行的周期才计数并清零连续失败，
		// 观望周期不应打断失败连击。
		e.mu.Lock()
		runtime.executionsRun++
		runtime.consecutiveErrors = 0
		e.mu.Unlock()

		metrics.ObserveExecution(string(runtime.Kind), "executed")
		pnl := result.PnL
		if pnl == nil {
			pnl = new(big.Int)
		}
		capital := result.CapitalUsed
		if capital == nil {
			capital = new(big.Int)
		}
		if _, logErr := runtime.Perf.LogExecution(ctx, string(runtime.Kind), pnl, capital, result.TxHash); logErr != nil {
			e.log.Error("上报绩效失败", "agent_id", runtime.ID, "error", logErr)
		}
	} else {
		metrics.ObserveExecution(string(runtime.Kind), "skipped")
	}

	e.record(ctx, runtime, result, nil)
	return result, nil
}

// handleFault 记录一次策略故障，并在连续失败达到阈值的那一次熔断。
func (e *Engine) handleFault(ctx context.Context, runtime *AgentRuntime, execErr error) {
	e.mu.Lock()
	runtime.consecutiveErrors++
	runtime.recentErrors = append(runtime.recentErrors, execErr.Error())
	if len(runtime.recentErrors) > recentErrorLimit {
		runtime.recentErrors = runtime.recentErrors[len(runtime.recentErrors)-recentErrorLimit:]
	}
	consecutive := runtime.consecutiveErrors
	e.mu.Unlock()

	metrics.ObserveExecution(string(runtime.Kind), "fault")
	e.log.Error("策略执行失败",
		"agent_id", runtime.ID,
		"strategy", string(runtime.Kind),
		"consecutive_errors", consecutive,
		"error", execErr)
	e.record(ctx, runtime, nil, execErr)

	if consecutive != emergencyStopThreshold {
		return
	}

	// 只在恰好到达阈值的那一次熔断，不等待结果也不重试。
	metrics.ObserveEmergencyStop()
	e.alert(alerting.Event{
		Code:              risk.CodeRiskRejected,
		Message:           "策略连续失败，触发紧急停机",
		Severity:          aegiserr.SeverityCritical,
		AgentID:           runtime.ID,
		Strategy:          string(runtime.Kind),
		ConsecutiveErrors: consecutive,
		OccurredAt:        time.Now(),
	})
	e.publish(ctx, eventbus.Event{
		Type:       eventbus.TypeEmergencyStop,
		AgentID:    runtime.ID,
		Strategy:   string(runtime.Kind),
		Detail:     execErr.Error(),
		OccurredAt: time.Now(),
	})
	go func(gate risk.Controller, agentID uint64) {
		stopCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		if err := gate.TriggerEmergencyStop(stopCtx); err != nil {
			logger.Named("engine").Error("紧急停机失败", "agent_id", agentID, "error", err)
		}
	}(runtime.Risk, runtime.ID)
}

// RunCycle 串行驱动全部代理各执行一次，单个代理的故障不影响其余代理。
func (e *Engine) RunCycle(ctx context.Context) {
	started := time.Now()

	e.mu.Lock()
	ids := append([]uint64(nil), e.order...)
	e.mu.Unlock()

	for _, id := range ids {
		if ctx.Err() != nil {
			break
		}
		if _, err := e.ExecuteAgent(ctx, id); err != nil {
			// 故障已在 ExecuteAgent 内部记录。
			continue
		}
	}

	e.mu.Lock()
	e.cycleCount++
	e.lastCycleAt = time.Now()
	e.mu.Unlock()

	metrics.ObserveCycle(time.Since(started))
}

// Start 启动执行周期与健康探测两个定时任务。重复调用是安全的。
func (e *Engine) Start() {
	e.mu.Lock()
	if e.running || !e.initialized {
		if !e.initialized {
			e.log.Warn("引擎未初始化，拒绝启动")
		}
		e.mu.Unlock()
		return
	}
	e.running = true
	e.stopCh = make(chan struct{})
	stopCh := e.stopCh
	e.mu.Unlock()

	e.wg.Add(2)
	go e.executionLoop(stopCh)
	go e.healthLoop(stopCh)
	e.log.Info("引擎已启动",
		"execution_interval", e.cfg.ExecutionInterval().String(),
		"health_interval", e.cfg.HealthInterval().String())
}

// Stop 停止定时任务并等待在途周期结束。重复调用是安全的。
func (e *Engine) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	close(e.stopCh)
	e.mu.Unlock()

	e.wg.Wait()
	e.log.Info("引擎已停止")
}

// Close 停止引擎并释放链连接。
func (e *Engine) Close() {
	e.Stop()
	e.mu.Lock()
	client := e.client
	e.mu.Unlock()
	if client != nil {
		client.Close()
	}
}

func (e *Engine) executionLoop(stopCh <-chan struct{}) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.ExecutionInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.RunCycle(context.Background())
		}
	}
}

func (e *Engine) healthLoop(stopCh <-chan struct{}) {
	defer e.wg.Done()
	ticker := time.NewTicker(e.cfg.HealthInterval())
	defer ticker.Stop()
	for {
		select {
		case <-stopCh:
			return
		case <-ticker.C:
			e.probeHealth(context.Background())
		}
	}
}

// probeHealth 读取区块高度与执行器余额，余额低于告警线时提醒充值。
func (e *Engine) probeHealth(ctx context.Context) {
	block, err := e.client.BlockNumber(ctx)
	if err != nil {
		e.log.Error("健康探测读取区块失败", "error", err)
		return
	}
	balance, err := e.client.BalanceAt(ctx, e.executor.Address())
	if err != nil {
		e.log.Error("健康探测读取执行器余额失败", "error", err)
		return
	}

	minBalance := config.ParseWei(e.cfg.Chain.MinExecutorWei)
	if balance.Cmp(minBalance) < 0 {
		e.log.Warn("执行器余额不足，可能无法支付后续 gas",
			"executor", e.executor.Address().Hex(),
			"balance_wei", balance.String(),
			"min_wei", minBalance.String())
	}
	e.log.Info("健康探测", "block", block, "executor_balance_wei", balance.String())
}

// Status 返回引擎与全部代理的只读快照。
func (e *Engine) Status() Status {
	e.mu.Lock()
	defer e.mu.Unlock()

	status := Status{
		Initialized: e.initialized,
		Running:     e.running,
		CycleCount:  e.cycleCount,
		LastCycleAt: e.lastCycleAt,
		Agents:      make([]AgentStatus, 0, len(e.order)),
	}
	if e.executor != nil {
		status.ExecutorAddress = e.executor.Address().Hex()
	}
	for _, id := range e.order {
		runtime := e.agents[id]
		status.Agents = append(status.Agents, AgentStatus{
			ID:                runtime.ID,
			Strategy:          string(runtime.Kind),
			ExecutionsRun:     runtime.executionsRun,
			ConsecutiveErrors: runtime.consecutiveErrors,
			LastExecution:     runtime.lastExecution,
			Stats:             runtime.Strategy.Stats(),
			RecentErrors:      append([]string(nil), runtime.recentErrors...),
		})
	}
	return status
}

// record 把执行结果写进链下流水并广播事件，两者都是尽力而为。
func (e *Engine) record(ctx context.Context, runtime *AgentRuntime, result *strategy.Result, execErr error) {
	entry := journal.Record{
		ID:         uuid.NewString(),
		AgentID:    runtime.ID,
		Strategy:   string(runtime.Kind),
		PnLWei:     "0",
		CapitalWei: "0",
		RecordedAt: time.Now(),
	}
	event := eventbus.Event{
		Type:       eventbus.TypeExecution,
		AgentID:    runtime.ID,
		Strategy:   string(runtime.Kind),
		OccurredAt: entry.RecordedAt,
	}
	if execErr != nil {
		entry.Error = execErr.Error()
		event.Detail = execErr.Error()
	}
	if result != nil {
		entry.Executed = result.Executed
		entry.Reason = result.Reason
		entry.TxHash = result.TxHash
		if result.PnL != nil {
			entry.PnLWei = result.PnL.String()
		}
		if result.CapitalUsed != nil {
			entry.CapitalWei = result.CapitalUsed.String()
		}
		event.TxHash = result.TxHash
		event.Detail = result.Reason
	}

	if e.journal != nil {
		if err := e.journal.Append(ctx, entry); err != nil {
			e.log.Error("写入执行流水失败", "agent_id", runtime.ID, "error", err)
		}
	}
	e.publish(ctx, event)
}

func (e *Engine) publish(ctx context.Context, event eventbus.Event) {
	if e.bus == nil {
		return
	}
	if err := e.bus.Publish(ctx, event); err != nil {
		e.log.Error("发布引擎事件失败", "type", event.Type, "error", err)
	}
}

func (e *Engine) alert(event alerting.Event) {
	if e.alerts == nil {
		return
	}
	notifyCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.alerts.Notify(notifyCtx, event); err != nil {
		e.log.Error("发送告警失败", "agent_id", event.AgentID, "error", err)
	}
}
