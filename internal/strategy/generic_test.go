package strategy

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"

	aegiserr "Aegis-Engine/internal/errors"
)

type stubChainReader struct {
	block   uint64
	balance *big.Int
}

func (s *stubChainReader) BlockNumber(ctx context.Context) (uint64, error) {
	return s.block, nil
}

func (s *stubChainReader) BalanceAt(ctx context.Context, addr common.Address) (*big.Int, error) {
	return s.balance, nil
}

func genericParams() GenericParams {
	return GenericParams{ChainID: 97, MaxAllocationBps: 1000}
}

func noopModule(name string) Module {
	return Module{
		Name:   name,
		Source: "return env.Info()",
		Execute: func(ctx context.Context, env *Sandbox) (any, error) {
			return env.Info().ChainID, nil
		},
	}
}

func TestRegisterModuleRejectsMissingEntry(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	if err := g.RegisterModule("m1", Module{Name: "broken"}); err == nil {
		t.Fatalf("module without entry function must be rejected")
	}
}

func TestRegisterModuleRejectsMissingName(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	module := noopModule("")
	if err := g.RegisterModule("m1", module); err == nil {
		t.Fatalf("module without name must be rejected")
	}
}

func TestRegisterModuleScansRestrictedSource(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	module := noopModule("escape")
	module.Source = `cmd := exec.Command("sh"); // os/exec`

	err := g.RegisterModule("m1", module)
	if err == nil {
		t.Fatalf("restricted source must be rejected")
	}
	if aegiserr.CodeOf(err) != CodeSandboxViolation {
		t.Fatalf("unexpected code: %s", aegiserr.CodeOf(err))
	}
	// 注册被拒后模块不可执行。
	outcome := g.ExecuteModule(context.Background(), "m1", execContext(ether(10), &stubRisk{}))
	if outcome.Success {
		t.Fatalf("rejected module must not run")
	}
}

func TestRegisterModuleDefaults(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	if err := g.RegisterModule("m1", noopModule("plain")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	g.mu.Lock()
	registered := g.modules["m1"]
	g.mu.Unlock()
	if registered.module.Version != "1.0.0" || registered.module.Author != "unknown" {
		t.Fatalf("defaults not applied: %+v", registered.module)
	}
}

func TestSandboxCapabilityDenied(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	module := Module{
		Name:   "greedy",
		Source: "env.Withdraw(...)",
		Execute: func(ctx context.Context, env *Sandbox) (any, error) {
			_, err := env.Withdraw(ctx, common.HexToAddress("0xdd"), big.NewInt(1), "drain")
			return nil, err
		},
	}
	// 只授予读能力，提取必须被拦截。
	if err := g.RegisterModule("m1", module, CapTreasuryRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome := g.ExecuteModule(context.Background(), "m1", execContext(ether(10), &stubRisk{}))
	if outcome.Success {
		t.Fatalf("withdraw without capability must fail")
	}
	if !strings.Contains(outcome.Detail, string(CapTreasuryWithdraw)) {
		t.Fatalf("unexpected detail: %s", outcome.Detail)
	}
}

func TestSandboxWithdrawCapped(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	module := Module{
		Name:   "overdraw",
		Source: "env.Withdraw(...)",
		Execute: func(ctx context.Context, env *Sandbox) (any, error) {
			// 额度是 10e18 × 1000bps = 1e18，申请 2e18 必须失败。
			_, err := env.Withdraw(ctx, common.HexToAddress("0xdd"), ether(2), "too much")
			return nil, err
		},
	}
	if err := g.RegisterModule("m1", module, CapTreasuryWithdraw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome := g.ExecuteModule(context.Background(), "m1", execContext(ether(10), &stubRisk{}))
	if outcome.Success {
		t.Fatalf("over-limit withdraw must fail")
	}
}

func TestSandboxWithdrawTagsReason(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	treasury := &stubStrategyTreasury{balance: ether(10)}
	module := Module{
		Name:   "payer",
		Source: "env.Withdraw(...)",
		Execute: func(ctx context.Context, env *Sandbox) (any, error) {
			return env.Withdraw(ctx, common.HexToAddress("0xdd"), big.NewInt(1e15), "service fee")
		},
	}
	if err := g.RegisterModule("m1", module, CapTreasuryWithdraw); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	execCtx := Context{TreasuryBalance: ether(10), Risk: &stubRisk{}, Treasury: treasury}
	outcome := g.ExecuteModule(context.Background(), "m1", execCtx)
	if !outcome.Success {
		t.Fatalf("withdraw within limit must succeed: %s", outcome.Detail)
	}
	if len(treasury.withdrawals) != 1 || treasury.withdrawals[0] != "[sandbox] service fee" {
		t.Fatalf("withdraw reason must carry sandbox tag: %v", treasury.withdrawals)
	}
}

func TestModuleTimeout(t *testing.T) {
	params := genericParams()
	params.Timeout = 20 * time.Millisecond
	g := NewGeneric(&stubChainReader{}, params)
	module := Module{
		Name:   "sleeper",
		Source: "<-ctx.Done()",
		Execute: func(ctx context.Context, env *Sandbox) (any, error) {
			time.Sleep(200 * time.Millisecond)
			return "late", nil
		},
	}
	if err := g.RegisterModule("m1", module); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome := g.ExecuteModule(context.Background(), "m1", execContext(ether(10), &stubRisk{}))
	if outcome.Success {
		t.Fatalf("expired module must be reported as failed")
	}

	log := g.ExecutionLog()
	if len(log) != 1 || log[0].Success {
		t.Fatalf("timeout must land in execution log as failure: %+v", log)
	}
}

func TestModuleRiskBlocked(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	if err := g.RegisterModule("m1", noopModule("plain")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	outcome := g.ExecuteModule(context.Background(), "m1", execContext(ether(10), &stubRisk{denyReason: "Emergency stop active"}))
	if outcome.Success {
		t.Fatalf("risk rejection must block execution")
	}
	if !strings.Contains(outcome.Detail, "Emergency stop active") {
		t.Fatalf("unexpected detail: %s", outcome.Detail)
	}
}

func TestExecuteCountsAnySuccess(t *testing.T) {
	g := NewGeneric(&stubChainReader{block: 42}, genericParams())
	failing := Module{
		Name:   "failing",
		Source: "return err",
		Execute: func(ctx context.Context, env *Sandbox) (any, error) {
			return nil, aegiserr.New(CodeStrategyFailure, "boom")
		},
	}
	reader := Module{
		Name:   "reader",
		Source: "env.BlockNumber(ctx)",
		Execute: func(ctx context.Context, env *Sandbox) (any, error) {
			return env.BlockNumber(ctx)
		},
	}
	if err := g.RegisterModule("m1", failing); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := g.RegisterModule("m2", reader, CapChainRead); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	result, err := g.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.Executed {
		t.Fatalf("one successful module must mark the cycle executed")
	}
	if len(result.Outcomes) != 2 {
		t.Fatalf("expected 2 outcomes, got %d", len(result.Outcomes))
	}
	if result.Outcomes[0].Success || !result.Outcomes[1].Success {
		t.Fatalf("unexpected outcomes: %+v", result.Outcomes)
	}
}

func TestExecuteWithoutModules(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	result, err := g.Execute(context.Background(), execContext(ether(10), &stubRisk{}))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Executed || result.Reason != "No modules registered" {
		t.Fatalf("unexpected result: %+v", result)
	}
}

func TestUnregisterModule(t *testing.T) {
	g := NewGeneric(&stubChainReader{}, genericParams())
	if err := g.RegisterModule("m1", noopModule("plain")); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !g.UnregisterModule("m1") {
		t.Fatalf("registered module must be removable")
	}
	if g.UnregisterModule("m1") {
		t.Fatalf("second removal must report false")
	}
	outcome := g.ExecuteModule(context.Background(), "m1", execContext(ether(10), &stubRisk{}))
	if outcome.Success {
		t.Fatalf("removed module must not run")
	}
}
