package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleRules = `forwarding_rules:
  - name: news
    enabled: true
    source_chats: [-100111]
    target_chats: [-100222]
    filters:
      mode: whitelist
      keywords: ["urgent"]
    forwarding:
      add_source_info: true
      delay: 0.5
    dedup:
      enabled: true
      window: 3600
  - name: backup
    enabled: false
    source_chats: [-100111]
    target_chats: [-100333]
    filters:
      mode: blacklist
`

func writeRules(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

type memCascade struct {
	renamed [][2]string
	deleted []string
}

func (c *memCascade) RenameRule(oldName, newName string) error {
	c.renamed = append(c.renamed, [2]string{oldName, newName})
	return nil
}

func (c *memCascade) DeleteRule(name string) error {
	c.deleted = append(c.deleted, name)
	return nil
}

func TestRuleStoreLoad(t *testing.T) {
	store, err := NewRuleStore(writeRules(t, sampleRules))
	require.NoError(t, err)

	rules := store.List()
	require.Len(t, rules, 2)
	assert.Equal(t, "news", rules[0].Name)
	assert.Equal(t, []int64{-100111}, rules[0].SourceChats)
	assert.Equal(t, "whitelist", rules[0].Filters.Mode)
	assert.True(t, rules[0].Dedup.Enabled)

	enabled := store.Enabled()
	require.Len(t, enabled, 1)
	assert.Equal(t, "news", enabled[0].Name)
}

func TestRuleStoreMissingFileUsesDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing.yaml")
	store, err := NewRuleStore(path)
	require.NoError(t, err)

	rules := store.List()
	require.Len(t, rules, 1)
	assert.Equal(t, "default", rules[0].Name)
	assert.True(t, rules[0].Enabled)
	assert.Equal(t, "whitelist", rules[0].Filters.Mode)
}

func TestRuleStoreDuplicateNamesRejected(t *testing.T) {
	content := `forwarding_rules:
  - name: dup
    enabled: true
  - name: dup
    enabled: true
`
	_, err := NewRuleStore(writeRules(t, content))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "duplicate rule name")
}

func TestRuleStoreAddAndPersist(t *testing.T) {
	path := writeRules(t, sampleRules)
	store, err := NewRuleStore(path)
	require.NoError(t, err)

	rule := DefaultRule("extra")
	rule.SourceChats = []int64{-100444}
	rule.TargetChats = []int64{-100555}
	require.NoError(t, store.Add(rule))

	// 重名拒绝
	require.Error(t, store.Add(DefaultRule("news")))

	// 落盘后重新加载可见
	reloaded, err := NewRuleStore(path)
	require.NoError(t, err)
	_, ok := reloaded.Get("extra")
	assert.True(t, ok)
}

func TestRuleStoreUpdate(t *testing.T) {
	store, err := NewRuleStore(writeRules(t, sampleRules))
	require.NoError(t, err)

	rule, ok := store.Get("news")
	require.True(t, ok)
	rule.Filters.Keywords = []string{"breaking"}
	require.NoError(t, store.Update("news", rule))

	got, _ := store.Get("news")
	assert.Equal(t, []string{"breaking"}, got.Filters.Keywords)

	// 改名必须走 Rename
	rule.Name = "renamed"
	require.Error(t, store.Update("news", rule))
}

func TestRuleStoreDelete(t *testing.T) {
	store, err := NewRuleStore(writeRules(t, sampleRules))
	require.NoError(t, err)

	cascade := &memCascade{}
	store.SetCascade(cascade)

	require.NoError(t, store.Delete("backup"))
	assert.Equal(t, []string{"backup"}, cascade.deleted)

	// 最后一条规则不可删除
	err = store.Delete("news")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "last rule")
	require.Len(t, store.List(), 1)
}

func TestRuleStoreRename(t *testing.T) {
	store, err := NewRuleStore(writeRules(t, sampleRules))
	require.NoError(t, err)

	cascade := &memCascade{}
	store.SetCascade(cascade)

	require.NoError(t, store.Rename("news", "headlines"))
	assert.Equal(t, [][2]string{{"news", "headlines"}}, cascade.renamed)

	_, ok := store.Get("news")
	assert.False(t, ok)
	_, ok = store.Get("headlines")
	assert.True(t, ok)

	// 与既有规则重名拒绝
	require.Error(t, store.Rename("headlines", "backup"))
	// 不存在的规则
	require.Error(t, store.Rename("ghost", "whatever"))
}

func TestForwardingRuleValidate(t *testing.T) {
	rule := DefaultRule("ok")
	rule.SourceChats = []int64{1}
	rule.TargetChats = []int64{2}
	require.NoError(t, rule.Validate())

	noSource := rule
	noSource.SourceChats = nil
	require.Error(t, noSource.Validate())

	noTarget := rule
	noTarget.TargetChats = nil
	require.Error(t, noTarget.Validate())

	badMode := rule
	badMode.Filters.Mode = "greylist"
	require.Error(t, badMode.Validate())
}
