package forward

import (
	"fmt"
	"strconv"
	"strings"

	botModels "github.com/go-telegram/bot/models"
)

// Attribution 来源信息：附加到转发消息上的文本与格式实体
type Attribution struct {
	Label string // 展示文本，例如 "📢 来源: xxx"
	Link  string // 可点击的 t.me 链接，可能为空
}

// BuildAttribution 构造消息的来源信息
// 公开聊天生成 https://t.me/<username>/<id>，私有超级群生成 https://t.me/c/<internal>/<id>
func BuildAttribution(msg *Message, display Display) *Attribution {
	title := display.ChatTitle
	if title == "" {
		title = strconv.FormatInt(msg.ChatID, 10)
	}

	link := ""
	if display.ChatUsername != "" {
		link = fmt.Sprintf("https://t.me/%s/%d", display.ChatUsername, msg.ID)
	} else if msg.ChatID < 0 {
		internal := strings.TrimPrefix(strconv.FormatInt(msg.ChatID, 10), "-100")
		internal = strings.TrimPrefix(internal, "-")
		link = fmt.Sprintf("https://t.me/c/%s/%d", internal, msg.ID)
	}

	return &Attribution{
		Label: "📢 " + title,
		Link:  link,
	}
}

// UTF16Len 字符串的 UTF-16 码元长度
// Telegram 的实体 offset/length 按 UTF-16 码元计数，移位运算必须用它
func UTF16Len(s string) int {
	n := 0
	for _, r := range s {
		if r > 0xFFFF {
			n += 2
		} else {
			n++
		}
	}
	return n
}

// shiftEntities 返回 offset 整体右移 delta 的实体副本
func shiftEntities(entities []botModels.MessageEntity, delta int) []botModels.MessageEntity {
	if len(entities) == 0 {
		return nil
	}
	out := make([]botModels.MessageEntity, len(entities))
	for i, e := range entities {
		e.Offset += delta
		out[i] = e
	}
	return out
}

// PrependTo 把来源信息前置到正文
// 原有实体 offset 按前缀的 UTF-16 长度右移，来源标签本身带 text_link 实体
func (a *Attribution) PrependTo(text string, entities []botModels.MessageEntity) (string, []botModels.MessageEntity) {
	if a == nil {
		return text, entities
	}

	prefix := a.Label
	if text != "" {
		prefix += "\n\n"
	}

	var out []botModels.MessageEntity
	if a.Link != "" {
		out = append(out, botModels.MessageEntity{
			Type:   botModels.MessageEntityTypeTextLink,
			Offset: 0,
			Length: UTF16Len(a.Label),
			URL:    a.Link,
		})
	}
	out = append(out, shiftEntities(entities, UTF16Len(prefix))...)

	return prefix + text, out
}

// AppendTo 把来源信息追加为末尾的引用块（hide-sender 模式）
// 原有实体不动，来源块使用自己的 blockquote + text_link 实体
func (a *Attribution) AppendTo(text string, entities []botModels.MessageEntity) (string, []botModels.MessageEntity) {
	if a == nil {
		return text, entities
	}

	sep := ""
	if text != "" {
		sep = "\n\n"
	}
	offset := UTF16Len(text + sep)

	out := make([]botModels.MessageEntity, 0, len(entities)+2)
	out = append(out, entities...)
	out = append(out, botModels.MessageEntity{
		Type:   botModels.MessageEntityTypeBlockquote,
		Offset: offset,
		Length: UTF16Len(a.Label),
	})
	if a.Link != "" {
		out = append(out, botModels.MessageEntity{
			Type:   botModels.MessageEntityTypeTextLink,
			Offset: offset,
			Length: UTF16Len(a.Label),
			URL:    a.Link,
		})
	}

	return text + sep + a.Label, out
}
