package forward

import (
	"regexp"
	"strings"

	"github.com/journey-ad/telerelay/internal/config"
	"github.com/journey-ad/telerelay/internal/logger"
)

// MessageFilter 单条规则的消息过滤器
// 无状态（除编译后的正则），可在多规则间对同一消息并发调用
type MessageFilter struct {
	ruleName        string
	mode            string
	keywords        []string
	patterns        []*regexp.Regexp
	mediaTypes      map[MediaType]struct{}
	minFileSize     int64
	maxFileSize     int64
	ignoredUserIDs  map[int64]struct{}
	ignoredKeywords []string
}

// NewMessageFilter 按规则编译过滤器
// 非法正则在此丢弃并记录日志，绝不让求值阶段崩溃
func NewMessageFilter(rule *config.ForwardingRule) *MessageFilter {
	f := &MessageFilter{
		ruleName:        rule.Name,
		mode:            strings.ToLower(rule.Filters.Mode),
		keywords:        rule.Filters.Keywords,
		minFileSize:     rule.Filters.MinFileSize,
		maxFileSize:     rule.Filters.MaxFileSize,
		ignoredKeywords: rule.Ignore.Keywords,
	}

	for _, pattern := range rule.Filters.RegexPatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			logger.L().Errorf("[%s] Invalid regex pattern %q skipped: %v", rule.Name, pattern, err)
			continue
		}
		f.patterns = append(f.patterns, re)
	}

	if len(rule.Filters.MediaTypes) > 0 {
		f.mediaTypes = make(map[MediaType]struct{}, len(rule.Filters.MediaTypes))
		for _, mt := range rule.Filters.MediaTypes {
			f.mediaTypes[MediaType(mt)] = struct{}{}
		}
	}

	if len(rule.Ignore.UserIDs) > 0 {
		f.ignoredUserIDs = make(map[int64]struct{}, len(rule.Ignore.UserIDs))
		for _, uid := range rule.Ignore.UserIDs {
			f.ignoredUserIDs[uid] = struct{}{}
		}
	}

	logger.L().Infof("[%s] Filter initialized: mode=%s, regex=%d, keywords=%d, media_types=%d",
		rule.Name, f.mode, len(f.patterns), len(f.keywords), len(f.mediaTypes))
	return f
}

// ShouldForward 判定消息是否应当转发
// 求值顺序：忽略名单 → 媒体类型 → 文件大小 → 文本匹配，首个不通过即短路
func (f *MessageFilter) ShouldForward(msg *Message, senderID int64) bool {
	if f.isIgnored(msg.Text, senderID) {
		return false
	}
	if !f.checkMediaType(msg.Kind) {
		return false
	}
	if !f.checkFileSize(msg.FileSize()) {
		return false
	}

	// 未配置任何文本条件：黑名单放行，白名单拒绝
	if len(f.patterns) == 0 && len(f.keywords) == 0 {
		return f.mode == "blacklist"
	}

	matches := f.matchesText(msg.Text)
	if f.mode == "whitelist" {
		return matches
	}
	return !matches
}

// isIgnored 忽略名单判定，优先级最高，与模式无关
func (f *MessageFilter) isIgnored(text string, senderID int64) bool {
	if _, ok := f.ignoredUserIDs[senderID]; ok {
		logger.L().Debugf("[%s] Sender %d is in ignore list", f.ruleName, senderID)
		return true
	}

	if text != "" {
		textLower := strings.ToLower(text)
		for _, kw := range f.ignoredKeywords {
			if strings.Contains(textLower, strings.ToLower(kw)) {
				logger.L().Debugf("[%s] Ignored keyword %q matched", f.ruleName, kw)
				return true
			}
		}
	}
	return false
}

// checkMediaType 媒体类型白名单，空集合表示全部允许
func (f *MessageFilter) checkMediaType(kind MediaType) bool {
	if f.mediaTypes == nil {
		return true
	}
	_, ok := f.mediaTypes[kind]
	if !ok {
		logger.L().Debugf("[%s] Media type %s not allowed", f.ruleName, kind)
	}
	return ok
}

// checkFileSize 文件大小限制，无文件时不参与判定
func (f *MessageFilter) checkFileSize(size int64) bool {
	if size == 0 {
		return true
	}
	if f.minFileSize > 0 && size < f.minFileSize {
		logger.L().Debugf("[%s] File size %d below minimum %d", f.ruleName, size, f.minFileSize)
		return false
	}
	if f.maxFileSize > 0 && size > f.maxFileSize {
		logger.L().Debugf("[%s] File size %d above maximum %d", f.ruleName, size, f.maxFileSize)
		return false
	}
	return true
}

// matchesText 正则或关键词命中任意一个即为匹配
func (f *MessageFilter) matchesText(text string) bool {
	if text == "" {
		return false
	}

	for _, re := range f.patterns {
		if re.MatchString(text) {
			logger.L().Debugf("[%s] Regex %q matched", f.ruleName, re.String())
			return true
		}
	}

	textLower := strings.ToLower(text)
	for _, kw := range f.keywords {
		if strings.Contains(textLower, strings.ToLower(kw)) {
			logger.L().Debugf("[%s] Keyword %q matched", f.ruleName, kw)
			return true
		}
	}
	return false
}
