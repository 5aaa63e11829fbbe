package telegram

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/journey-ad/telerelay/internal/telegram/forward"

	"github.com/go-telegram/bot"
	botModels "github.com/go-telegram/bot/models"
)

// Forward 原生转发，保留"转发自"标记
func (b *Bot) Forward(ctx context.Context, target int64, msgs []*forward.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	if len(msgs) == 1 {
		_, err := b.bot.ForwardMessage(ctx, &bot.ForwardMessageParams{
			ChatID:     target,
			FromChatID: msgs[0].ChatID,
			MessageID:  msgs[0].ID,
		})
		return wrapErr(err)
	}

	ids := make([]int, len(msgs))
	for i, msg := range msgs {
		ids[i] = msg.ID
	}
	_, err := b.bot.ForwardMessages(ctx, &bot.ForwardMessagesParams{
		ChatID:     target,
		FromChatID: msgs[0].ChatID,
		MessageIDs: ids,
	})
	return wrapErr(err)
}

// SendText 发送纯文本
func (b *Bot) SendText(ctx context.Context, target int64, text string, entities []botModels.MessageEntity, noPreview bool) error {
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	params := &bot.SendMessageParams{
		ChatID:   target,
		Text:     text,
		Entities: entities,
	}
	if noPreview {
		params.LinkPreviewOptions = &botModels.LinkPreviewOptions{
			IsDisabled: bot.True(),
		}
	}

	_, err := b.bot.SendMessage(ctx, params)
	return wrapErr(err)
}

// SendCopy 引用式复制：复用服务端媒体引用重新发送
func (b *Bot) SendCopy(ctx context.Context, target int64, msgs []*forward.Message, caption string, entities []botModels.MessageEntity) error {
	if len(msgs) == 0 {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	if len(msgs) == 1 {
		_, err := b.bot.CopyMessage(ctx, &bot.CopyMessageParams{
			ChatID:          target,
			FromChatID:      msgs[0].ChatID,
			MessageID:       msgs[0].ID,
			Caption:         caption,
			CaptionEntities: entities,
		})
		return wrapErr(err)
	}

	media := make([]botModels.InputMedia, 0, len(msgs))
	for i, msg := range msgs {
		if msg.Media == nil {
			continue
		}
		itemCaption := ""
		var itemEntities []botModels.MessageEntity
		if i == 0 {
			itemCaption = caption
			itemEntities = entities
		}
		media = append(media, inputMediaRef(msg.Kind, msg.Media.FileID, itemCaption, itemEntities))
	}
	if len(media) == 0 {
		return b.SendText(ctx, target, caption, entities, false)
	}

	_, err := b.bot.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
		ChatID: target,
		Media:  media,
	})
	return wrapErr(err)
}

// SendFiles 用本地文件重新上传发送
func (b *Bot) SendFiles(ctx context.Context, target int64, files []forward.LocalFile, caption string, entities []botModels.MessageEntity) error {
	if len(files) == 0 {
		return nil
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return err
	}

	if len(files) == 1 {
		return b.sendSingleFile(ctx, target, files[0], caption, entities)
	}

	readers := make([]io.Closer, 0, len(files))
	defer func() {
		for _, r := range readers {
			r.Close()
		}
	}()

	media := make([]botModels.InputMedia, 0, len(files))
	for i, file := range files {
		f, err := os.Open(file.Path)
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", file.Path, err)
		}
		readers = append(readers, f)

		attachName := fmt.Sprintf("%d_%s", i, file.Name)
		itemCaption := ""
		var itemEntities []botModels.MessageEntity
		if i == 0 {
			itemCaption = caption
			itemEntities = entities
		}
		media = append(media, inputMediaUpload(file.Kind, attachName, f, itemCaption, itemEntities))
	}

	_, err := b.bot.SendMediaGroup(ctx, &bot.SendMediaGroupParams{
		ChatID: target,
		Media:  media,
	})
	return wrapErr(err)
}

// sendSingleFile 按媒体类型选择上传接口
func (b *Bot) sendSingleFile(ctx context.Context, target int64, file forward.LocalFile, caption string, entities []botModels.MessageEntity) error {
	f, err := os.Open(file.Path)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", file.Path, err)
	}
	defer f.Close()

	upload := &botModels.InputFileUpload{Filename: file.Name, Data: f}

	switch file.Kind {
	case forward.MediaPhoto:
		_, err = b.bot.SendPhoto(ctx, &bot.SendPhotoParams{
			ChatID: target, Photo: upload, Caption: caption, CaptionEntities: entities,
		})
	case forward.MediaVideo:
		_, err = b.bot.SendVideo(ctx, &bot.SendVideoParams{
			ChatID: target, Video: upload, Caption: caption, CaptionEntities: entities,
		})
	case forward.MediaAnimation:
		_, err = b.bot.SendAnimation(ctx, &bot.SendAnimationParams{
			ChatID: target, Animation: upload, Caption: caption, CaptionEntities: entities,
		})
	case forward.MediaAudio:
		_, err = b.bot.SendAudio(ctx, &bot.SendAudioParams{
			ChatID: target, Audio: upload, Caption: caption, CaptionEntities: entities,
		})
	case forward.MediaVoice:
		_, err = b.bot.SendVoice(ctx, &bot.SendVoiceParams{
			ChatID: target, Voice: upload, Caption: caption, CaptionEntities: entities,
		})
	case forward.MediaSticker:
		_, err = b.bot.SendSticker(ctx, &bot.SendStickerParams{
			ChatID: target, Sticker: upload,
		})
	default:
		_, err = b.bot.SendDocument(ctx, &bot.SendDocumentParams{
			ChatID: target, Document: upload, Caption: caption, CaptionEntities: entities,
		})
	}
	return wrapErr(err)
}

// Download 拉取消息媒体到 destDir
func (b *Bot) Download(ctx context.Context, msg *forward.Message, destDir string) (forward.LocalFile, error) {
	if msg.Media == nil {
		return forward.LocalFile{}, fmt.Errorf("message %d has no media", msg.ID)
	}
	if err := b.limiter.Wait(ctx); err != nil {
		return forward.LocalFile{}, err
	}

	file, err := b.bot.GetFile(ctx, &bot.GetFileParams{FileID: msg.Media.FileID})
	if err != nil {
		return forward.LocalFile{}, wrapErr(err)
	}

	name := msg.Media.FileName
	if name == "" {
		name = path.Base(file.FilePath)
	}
	if name == "" || name == "." || name == "/" {
		name = msg.Media.UniqueID
	}

	localPath := filepath.Join(destDir, name)
	if err := b.fetchFile(ctx, b.bot.FileDownloadLink(file), localPath); err != nil {
		return forward.LocalFile{}, err
	}

	return forward.LocalFile{Path: localPath, Kind: msg.Kind, Name: name}, nil
}

// fetchFile 通过 HTTP 拉取文件内容写入本地
func (b *Bot) fetchFile(ctx context.Context, url, localPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to build download request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected download status: %s", resp.Status)
	}

	out, err := os.Create(localPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", localPath, err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("failed to write %s: %w", localPath, err)
	}
	return nil
}

// RecentMessages 返回聊天最近的消息，按消息 ID 倒序
func (b *Bot) RecentMessages(_ context.Context, chatID int64, limit int) ([]*forward.Message, error) {
	msgs := b.recent.Recent(chatID, limit)
	for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
		msgs[i], msgs[j] = msgs[j], msgs[i]
	}
	return msgs, nil
}

// ResolveDisplay 解析展示上下文，结果走缓存
func (b *Bot) ResolveDisplay(ctx context.Context, chatID, senderID int64) (forward.Display, error) {
	chat, err := b.resolveChat(ctx, chatID)
	if err != nil {
		return forward.Display{}, err
	}

	display := forward.Display{
		ChatTitle:    chat.Title,
		ChatUsername: chat.Username,
	}

	// 发送者解析失败不算错误，调用方会用占位符
	if sender, err := b.resolveChat(ctx, senderID); err == nil {
		display.SenderName = sender.Title
	}
	return display, nil
}

// resolveChat 带缓存的聊天信息查询
func (b *Bot) resolveChat(ctx context.Context, chatID int64) (chatInfo, error) {
	if info, ok := b.display.Get(chatID); ok {
		return info, nil
	}

	if err := b.limiter.Wait(ctx); err != nil {
		return chatInfo{}, err
	}

	chat, err := b.bot.GetChat(ctx, &bot.GetChatParams{ChatID: chatID})
	if err != nil {
		return chatInfo{}, wrapErr(err)
	}

	info := chatInfo{
		Title:    chat.Title,
		Username: chat.Username,
	}
	if info.Title == "" {
		info.Title = strings.TrimSpace(chat.FirstName + " " + chat.LastName)
	}

	b.display.Set(chatID, info)
	return info, nil
}

// inputMediaRef 以服务端引用构造相册成员
func inputMediaRef(kind forward.MediaType, fileID, caption string, entities []botModels.MessageEntity) botModels.InputMedia {
	switch kind {
	case forward.MediaPhoto:
		return &botModels.InputMediaPhoto{Media: fileID, Caption: caption, CaptionEntities: entities}
	case forward.MediaVideo, forward.MediaAnimation:
		return &botModels.InputMediaVideo{Media: fileID, Caption: caption, CaptionEntities: entities}
	case forward.MediaAudio:
		return &botModels.InputMediaAudio{Media: fileID, Caption: caption, CaptionEntities: entities}
	default:
		return &botModels.InputMediaDocument{Media: fileID, Caption: caption, CaptionEntities: entities}
	}
}

// inputMediaUpload 以本地文件构造相册成员（attach:// 引用随请求上传）
func inputMediaUpload(kind forward.MediaType, attachName string, data io.Reader, caption string, entities []botModels.MessageEntity) botModels.InputMedia {
	media := "attach://" + attachName
	switch kind {
	case forward.MediaPhoto:
		return &botModels.InputMediaPhoto{Media: media, MediaAttachment: data, Caption: caption, CaptionEntities: entities}
	case forward.MediaVideo, forward.MediaAnimation:
		return &botModels.InputMediaVideo{Media: media, MediaAttachment: data, Caption: caption, CaptionEntities: entities}
	case forward.MediaAudio:
		return &botModels.InputMediaAudio{Media: media, MediaAttachment: data, Caption: caption, CaptionEntities: entities}
	default:
		return &botModels.InputMediaDocument{Media: media, MediaAttachment: data, Caption: caption, CaptionEntities: entities}
	}
}

// wrapErr 将 Bot API 错误映射为管道语义的错误
func wrapErr(err error) error {
	if err == nil {
		return nil
	}

	var tooMany *bot.TooManyRequestsError
	if errors.As(err, &tooMany) {
		return &forward.RateLimitedError{RetryAfter: time.Duration(tooMany.RetryAfter) * time.Second}
	}

	text := strings.ToLower(err.Error())
	if strings.Contains(text, "can't be forwarded") ||
		strings.Contains(text, "chat_forwards_restricted") ||
		strings.Contains(text, "protected content") {
		return fmt.Errorf("%w: %s", forward.ErrForwardsRestricted, err.Error())
	}

	return err
}
