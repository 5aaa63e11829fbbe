package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/journey-ad/telerelay/internal/logger"
)

// RuleFilters 规则的过滤配置
type RuleFilters struct {
	Mode          string   `yaml:"mode"`           // whitelist 或 blacklist
	Keywords      []string `yaml:"keywords"`       // 关键词列表
	RegexPatterns []string `yaml:"regex_patterns"` // 正则表达式列表
	MediaTypes    []string `yaml:"media_types"`    // 允许的媒体类型（空 = 全部）
	MaxFileSize   int64    `yaml:"max_file_size"`  // 最大文件大小（字节），0 = 不限
	MinFileSize   int64    `yaml:"min_file_size"`  // 最小文件大小（字节）
}

// RuleIgnore 规则的忽略配置（优先级最高）
type RuleIgnore struct {
	UserIDs  []int64  `yaml:"user_ids"`
	Keywords []string `yaml:"keywords"`
}

// RuleForwarding 规则的投递配置
type RuleForwarding struct {
	PreserveFormat bool    `yaml:"preserve_format"` // 直接转发，保留"转发自"标记
	AddSourceInfo  bool    `yaml:"add_source_info"` // 附加来源信息
	Delay          float64 `yaml:"delay"`           // 多目标之间的延迟（秒）
	ForceForward   bool    `yaml:"force_forward"`   // 受限聊天主动下载重传
	HideSender     bool    `yaml:"hide_sender"`     // 隐藏发送者（引用式来源附注）
}

// RuleDedup 规则的去重配置
type RuleDedup struct {
	Enabled bool `yaml:"enabled"`
	Window  int  `yaml:"window"` // 去重窗口（秒）
}

// ForwardingRule 转发规则，规则集内按名称唯一
type ForwardingRule struct {
	Name        string         `yaml:"name"`
	Enabled     bool           `yaml:"enabled"`
	SourceChats []int64        `yaml:"source_chats"`
	TargetChats []int64        `yaml:"target_chats"`
	Filters     RuleFilters    `yaml:"filters"`
	Ignore      RuleIgnore     `yaml:"ignore"`
	Forwarding  RuleForwarding `yaml:"forwarding"`
	Dedup       RuleDedup      `yaml:"dedup"`
}

// DefaultRule 返回带默认值的新规则
func DefaultRule(name string) ForwardingRule {
	return ForwardingRule{
		Name:    name,
		Enabled: true,
		Filters: RuleFilters{Mode: "whitelist"},
		Forwarding: RuleForwarding{
			PreserveFormat: true,
			AddSourceInfo:  true,
			Delay:          0.5,
		},
		Dedup: RuleDedup{Window: 3600},
	}
}

// DelayDuration 多目标间延迟
func (r *ForwardingRule) DelayDuration() time.Duration {
	return time.Duration(r.Forwarding.Delay * float64(time.Second))
}

// DedupWindow 去重窗口时长
func (r *ForwardingRule) DedupWindow() time.Duration {
	return time.Duration(r.Dedup.Window) * time.Second
}

// Validate 校验规则是否可启动（保存时不校验，启动前才校验）
func (r *ForwardingRule) Validate() error {
	if len(r.SourceChats) == 0 {
		return fmt.Errorf("rule %q has no source chats", r.Name)
	}
	if len(r.TargetChats) == 0 {
		return fmt.Errorf("rule %q has no target chats", r.Name)
	}
	if m := r.Filters.Mode; m != "whitelist" && m != "blacklist" {
		return fmt.Errorf("rule %q has invalid filter mode %q", r.Name, m)
	}
	return nil
}

// RuleCascade 规则改名/删除时需要同步的持久化层
// 由应用层注入（统计与历史记录按规则名作为键）
type RuleCascade interface {
	RenameRule(oldName, newName string) error
	DeleteRule(name string) error
}

// ruleFile YAML 文件结构
type ruleFile struct {
	ForwardingRules []ForwardingRule `yaml:"forwarding_rules"`
}

// RuleStore 规则集的加载、保存与增删改查
type RuleStore struct {
	mu      sync.RWMutex
	path    string
	rules   []ForwardingRule
	cascade RuleCascade
}

// NewRuleStore 创建规则存储并从文件加载
// 文件不存在时以单条默认规则初始化（规则集始终非空）
func NewRuleStore(path string) (*RuleStore, error) {
	s := &RuleStore{path: path}
	if err := s.load(); err != nil {
		return nil, err
	}
	return s, nil
}

// SetCascade 注入持久化同步钩子
func (s *RuleStore) SetCascade(c RuleCascade) {
	s.mu.Lock()
	s.cascade = c
	s.mu.Unlock()
}

func (s *RuleStore) load() error {
	data, err := os.ReadFile(s.path)
	if os.IsNotExist(err) {
		logger.L().Warnf("Rules file %s not found, starting with default rule", s.path)
		s.rules = []ForwardingRule{DefaultRule("default")}
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read rules file: %w", err)
	}

	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse rules file: %w", err)
	}

	if len(f.ForwardingRules) == 0 {
		logger.L().Warnf("Rules file %s has no rules, starting with default rule", s.path)
		s.rules = []ForwardingRule{DefaultRule("default")}
		return nil
	}

	seen := make(map[string]struct{}, len(f.ForwardingRules))
	for _, r := range f.ForwardingRules {
		if _, dup := seen[r.Name]; dup {
			return fmt.Errorf("duplicate rule name %q in rules file", r.Name)
		}
		seen[r.Name] = struct{}{}
	}

	s.rules = f.ForwardingRules
	logger.L().Infof("Loaded %d forwarding rules from %s", len(s.rules), s.path)
	return nil
}

// save 写回 YAML 文件，调用方需持有锁
func (s *RuleStore) save() error {
	data, err := yaml.Marshal(ruleFile{ForwardingRules: s.rules})
	if err != nil {
		return fmt.Errorf("failed to marshal rules: %w", err)
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create rules dir: %w", err)
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write rules file: %w", err)
	}
	return nil
}

// List 返回全部规则的副本
func (s *RuleStore) List() []ForwardingRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]ForwardingRule, len(s.rules))
	copy(out, s.rules)
	return out
}

// Enabled 返回启用的规则
func (s *RuleStore) Enabled() []ForwardingRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []ForwardingRule
	for _, r := range s.rules {
		if r.Enabled {
			out = append(out, r)
		}
	}
	return out
}

// Get 按名称查找规则
func (s *RuleStore) Get(name string) (ForwardingRule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.rules {
		if r.Name == name {
			return r, true
		}
	}
	return ForwardingRule{}, false
}

// Add 新增规则，名称必须唯一
func (s *RuleStore) Add(rule ForwardingRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.Name == rule.Name {
			return fmt.Errorf("rule %q already exists", rule.Name)
		}
	}
	s.rules = append(s.rules, rule)
	return s.save()
}

// Update 按名称替换规则内容（不含改名，改名走 Rename）
func (s *RuleStore) Update(name string, rule ForwardingRule) error {
	if rule.Name != name {
		return fmt.Errorf("rule name mismatch: use Rename to change %q to %q", name, rule.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rules {
		if r.Name == name {
			s.rules[i] = rule
			return s.save()
		}
	}
	return fmt.Errorf("rule %q not found", name)
}

// Delete 删除规则并级联删除其统计/历史，拒绝删除最后一条规则
func (s *RuleStore) Delete(name string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.rules {
		if r.Name == name {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("rule %q not found", name)
	}
	if len(s.rules) <= 1 {
		return fmt.Errorf("cannot delete the last rule")
	}

	s.rules = append(s.rules[:idx], s.rules[idx+1:]...)
	if err := s.save(); err != nil {
		return err
	}

	if s.cascade != nil {
		if err := s.cascade.DeleteRule(name); err != nil {
			logger.L().Errorf("Failed to cascade delete for rule %q: %v", name, err)
		}
	}
	return nil
}

// Rename 改名并级联更新统计/历史的键
func (s *RuleStore) Rename(oldName, newName string) error {
	if newName == "" {
		return fmt.Errorf("new rule name cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	idx := -1
	for i, r := range s.rules {
		if r.Name == newName {
			return fmt.Errorf("rule %q already exists", newName)
		}
		if r.Name == oldName {
			idx = i
		}
	}
	if idx < 0 {
		return fmt.Errorf("rule %q not found", oldName)
	}

	s.rules[idx].Name = newName
	if err := s.save(); err != nil {
		return err
	}

	if s.cascade != nil {
		if err := s.cascade.RenameRule(oldName, newName); err != nil {
			logger.L().Errorf("Failed to cascade rename %q -> %q: %v", oldName, newName, err)
		}
	}
	return nil
}
