package forward

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/journey-ad/telerelay/internal/config"
	"github.com/journey-ad/telerelay/internal/logger"
)

// State 管道生命周期状态
type State int32

const (
	StateStopped State = iota
	StateStarting
	StateRunning
	StateStopping
)

func (s State) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateStopping:
		return "stopping"
	default:
		return "unknown"
	}
}

const restartDelay = 2 * time.Second

// RuleSource 规则来源（config.RuleStore 实现）
type RuleSource interface {
	Enabled() []config.ForwardingRule
}

// Status 管道整体状态快照
type Status struct {
	State     State
	RuleCount int
	Forwarded int64
	Filtered  int64
}

// Manager 管道生命周期管理
// 持有传输连接上的事件注册与全部活动的规则转发器；规则变更后 Restart 生效
type Manager struct {
	transport     Transport
	rules         RuleSource
	recorder      Recorder
	entityTimeout time.Duration
	stopTimeout   time.Duration

	mu         sync.Mutex
	state      atomic.Int32
	cancel     context.CancelFunc
	remove     func()
	tracker    *inflightTracker
	forwarders []*RuleForwarder
}

// NewManager 创建生命周期管理器
func NewManager(transport Transport, rules RuleSource, recorder Recorder, entityTimeout, stopTimeout time.Duration) *Manager {
	return &Manager{
		transport:     transport,
		rules:         rules,
		recorder:      recorder,
		entityTimeout: entityTimeout,
		stopTimeout:   stopTimeout,
	}
}

// State 当前状态
func (m *Manager) State() State {
	return State(m.state.Load())
}

// Start 构建并启动整个转发管道
// 启用规则在此处校验（源/目标非空）；无可用规则时启动失败
func (m *Manager) Start(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.CompareAndSwap(int32(StateStopped), int32(StateStarting)) {
		return fmt.Errorf("cannot start pipeline in state %s", m.State())
	}

	rules := m.rules.Enabled()
	if len(rules) == 0 {
		m.state.Store(int32(StateStopped))
		return fmt.Errorf("no enabled forwarding rules")
	}

	var forwarders []*RuleForwarder
	for _, rule := range rules {
		if err := rule.Validate(); err != nil {
			m.state.Store(int32(StateStopped))
			return fmt.Errorf("rule validation failed: %w", err)
		}
		forwarders = append(forwarders, NewRuleForwarder(rule, m.transport, m.recorder))
		logger.L().Infof("Registered rule %q: %d sources -> %d targets",
			rule.Name, len(rule.SourceChats), len(rule.TargetChats))
	}

	dispatcher := NewDispatcher(m.transport, forwarders, m.entityTimeout)
	tracker := &inflightTracker{}

	// 管道生命周期独立于调用方 context，由 Stop 显式取消
	runCtx, cancel := context.WithCancel(context.Background())

	remove := m.transport.OnMessage(dispatcher.SourceChats(), func(msg *Message) {
		tracker.Go(func() {
			dispatcher.Dispatch(runCtx, msg)
		})
	})

	m.cancel = cancel
	m.remove = remove
	m.tracker = tracker
	m.forwarders = forwarders
	m.state.Store(int32(StateRunning))

	logger.L().Infof("Forwarding pipeline started with %d rules", len(forwarders))
	return nil
}

// Stop 停止管道：注销事件流，取消在途管道并限时排空
func (m *Manager) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.state.CompareAndSwap(int32(StateRunning), int32(StateStopping)) {
		return fmt.Errorf("cannot stop pipeline in state %s", m.State())
	}

	logger.L().Info("Stopping forwarding pipeline...")
	m.remove()
	m.cancel()

	if !m.tracker.Drain(m.stopTimeout) {
		logger.L().Warnf("In-flight pipelines did not drain within %s, force-cancelled", m.stopTimeout)
	}

	m.forwarders = nil
	m.state.Store(int32(StateStopped))
	logger.L().Info("Forwarding pipeline stopped")
	return nil
}

// Restart 重启管道（规则变更后调用）
func (m *Manager) Restart(ctx context.Context) error {
	if m.State() == StateRunning {
		if err := m.Stop(); err != nil {
			return err
		}
		time.Sleep(restartDelay)
	}
	return m.Start(ctx)
}

// Forwarders 返回当前活动的规则转发器
func (m *Manager) Forwarders() []*RuleForwarder {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*RuleForwarder, len(m.forwarders))
	copy(out, m.forwarders)
	return out
}

// Status 聚合全部规则的统计（状态面板用）
func (m *Manager) Status() Status {
	st := Status{State: m.State()}
	for _, f := range m.Forwarders() {
		st.RuleCount++
		st.Forwarded += f.Stats().Forwarded()
		st.Filtered += f.Stats().Filtered()
	}
	return st
}
