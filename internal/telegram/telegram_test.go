package telegram

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/journey-ad/telerelay/internal/telegram/forward"
)

func TestConvertMessageText(t *testing.T) {
	raw := &botModels.Message{
		ID:   42,
		Chat: botModels.Chat{ID: -100111},
		From: &botModels.User{ID: 7, FirstName: "Alice"},
		Text: "hello",
		Entities: []botModels.MessageEntity{
			{Type: botModels.MessageEntityTypeBold, Offset: 0, Length: 5},
		},
	}

	msg := convertMessage(raw)
	assert.Equal(t, 42, msg.ID)
	assert.Equal(t, int64(-100111), msg.ChatID)
	assert.Equal(t, int64(7), msg.SenderID)
	assert.Equal(t, "hello", msg.Text)
	assert.Equal(t, forward.MediaText, msg.Kind)
	assert.Nil(t, msg.Media)
	assert.Len(t, msg.Entities, 1)
}

func TestConvertMessageCaption(t *testing.T) {
	raw := &botModels.Message{
		ID:   42,
		Chat: botModels.Chat{ID: -100111},
		Photo: []botModels.PhotoSize{
			{FileID: "small", FileUniqueID: "us"},
			{FileID: "big", FileUniqueID: "ub"},
		},
		Caption:      "a caption",
		MediaGroupID: "g1",
	}

	msg := convertMessage(raw)
	assert.Equal(t, forward.MediaPhoto, msg.Kind)
	require.NotNil(t, msg.Media)
	// 照片取最大尺寸的一档
	assert.Equal(t, "big", msg.Media.FileID)
	assert.Equal(t, "a caption", msg.Text)
	assert.Equal(t, "g1", msg.GroupedID)
}

func TestConvertMessageChannelPost(t *testing.T) {
	raw := &botModels.Message{
		ID:                  1,
		Chat:                botModels.Chat{ID: -100111},
		SenderChat:          &botModels.Chat{ID: -100111, Title: "Channel"},
		Text:                "post",
		HasProtectedContent: true,
	}

	msg := convertMessage(raw)
	assert.Equal(t, int64(-100111), msg.SenderID)
	assert.True(t, msg.Restricted)
}

func TestClassifyMedia(t *testing.T) {
	doc := &botModels.Document{FileID: "d", FileUniqueID: "ud", FileName: "report.pdf", FileSize: 1024}

	tests := []struct {
		name string
		raw  *botModels.Message
		want forward.MediaType
	}{
		{"document", &botModels.Message{Document: doc}, forward.MediaDocument},
		// Bot API 对 GIF 同时填充 animation 和 document，动画优先
		{"animation wins over document", &botModels.Message{
			Animation: &botModels.Animation{FileID: "a", FileUniqueID: "ua"},
			Document:  doc,
		}, forward.MediaAnimation},
		{"video", &botModels.Message{Video: &botModels.Video{FileID: "v", FileUniqueID: "uv"}}, forward.MediaVideo},
		{"voice", &botModels.Message{Voice: &botModels.Voice{FileID: "vo", FileUniqueID: "uvo"}}, forward.MediaVoice},
		{"sticker", &botModels.Message{Sticker: &botModels.Sticker{FileID: "s", FileUniqueID: "us"}}, forward.MediaSticker},
		{"webpage", &botModels.Message{
			Text:     "see https://example.com",
			Entities: []botModels.MessageEntity{{Type: botModels.MessageEntityTypeURL, Offset: 4, Length: 19}},
		}, forward.MediaWebpage},
		{"plain text", &botModels.Message{Text: "hi"}, forward.MediaText},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			kind, _ := classifyMedia(tt.raw, tt.raw.Entities)
			assert.Equal(t, tt.want, kind)
		})
	}
}

func TestConvertMessageWebpageFromCaption(t *testing.T) {
	// 正文为空时网页判定要看说明文字的实体
	raw := &botModels.Message{
		ID:              7,
		Chat:            botModels.Chat{ID: -100111},
		Caption:         "see https://example.com",
		CaptionEntities: []botModels.MessageEntity{{Type: botModels.MessageEntityTypeURL, Offset: 4, Length: 19}},
	}

	msg := convertMessage(raw)
	assert.Equal(t, forward.MediaWebpage, msg.Kind)
	assert.Equal(t, "see https://example.com", msg.Text)
}

func TestWrapErrRateLimited(t *testing.T) {
	err := wrapErr(&bot.TooManyRequestsError{Message: "too many requests", RetryAfter: 5})

	rl, ok := forward.AsRateLimited(err)
	require.True(t, ok)
	assert.Equal(t, 5*time.Second, rl.RetryAfter)
}

func TestWrapErrForwardsRestricted(t *testing.T) {
	tests := []string{
		"Bad Request: message can't be forwarded",
		"CHAT_FORWARDS_RESTRICTED",
		"Bad Request: protected content can't be copied",
	}
	for _, text := range tests {
		err := wrapErr(fmt.Errorf("%w, %s", bot.ErrorBadRequest, text))
		assert.ErrorIs(t, err, forward.ErrForwardsRestricted, "input: %s", text)
	}
}

func TestWrapErrPassthrough(t *testing.T) {
	assert.NoError(t, wrapErr(nil))

	plain := errors.New("chat not found")
	assert.Equal(t, plain, wrapErr(plain))
}

func TestRecentCacheRing(t *testing.T) {
	cache := newRecentCache()

	for i := 1; i <= recentCapacity+10; i++ {
		cache.Add(&forward.Message{ID: i, ChatID: -100111})
	}

	msgs := cache.Recent(-100111, 0)
	require.Len(t, msgs, recentCapacity)
	// 最旧的 10 条被挤出
	assert.Equal(t, 11, msgs[0].ID)
	assert.Equal(t, recentCapacity+10, msgs[len(msgs)-1].ID)

	limited := cache.Recent(-100111, 5)
	require.Len(t, limited, 5)
	assert.Equal(t, recentCapacity+6, limited[0].ID)

	assert.Empty(t, cache.Recent(-100999, 10))
}

func TestDisplayCacheTTL(t *testing.T) {
	cache := newDisplayCache(50 * time.Millisecond)

	cache.Set(-100111, chatInfo{Title: "News", Username: "news"})

	info, ok := cache.Get(-100111)
	require.True(t, ok)
	assert.Equal(t, "News", info.Title)

	_, ok = cache.Get(-100222)
	assert.False(t, ok)

	time.Sleep(60 * time.Millisecond)
	_, ok = cache.Get(-100111)
	assert.False(t, ok, "expired entry must miss")
}

func TestRateLimiterBlocksWhenExhausted(t *testing.T) {
	limiter := NewRateLimiter(2)
	defer limiter.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	// 初始令牌可立即取完
	require.NoError(t, limiter.Wait(ctx))
	require.NoError(t, limiter.Wait(ctx))

	// 桶空后在补充间隔内等待补充令牌
	start := time.Now()
	require.NoError(t, limiter.Wait(ctx))
	assert.Greater(t, time.Since(start), time.Duration(0))
}
