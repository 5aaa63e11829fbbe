package forward

import (
	"context"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/journey-ad/telerelay/internal/logger"
)

// Downloader 媒体文件的下载与清理
// 暂存目录为进程级共享，每次下载使用独立的 UUID 子目录避免并发冲突
type Downloader struct {
	transport Transport
	ruleName  string
	root      string
}

// NewDownloader 创建下载器
func NewDownloader(transport Transport, ruleName string) *Downloader {
	return &Downloader{
		transport: transport,
		ruleName:  ruleName,
		root:      filepath.Join(os.TempDir(), "telerelay-cache"),
	}
}

// Download 按消息顺序下载有媒体的成员，返回成功下载的文件与本次的暂存子目录
// 部分成功可接受：5 个媒体成功 4 个照样继续
// 无论下载结果如何，调用方都必须用返回的目录调用 Cleanup
func (d *Downloader) Download(ctx context.Context, msgs []*Message) ([]LocalFile, string, error) {
	dir := filepath.Join(d.root, uuid.New().String())
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}

	var files []LocalFile
	for i, msg := range msgs {
		if msg.Media == nil {
			continue
		}

		file, err := d.transport.Download(ctx, msg, dir)
		if err != nil {
			logger.L().Warnf("[%s] Failed to download media %d/%d: %v", d.ruleName, i+1, len(msgs), err)
			continue
		}
		files = append(files, file)
		logger.L().Debugf("[%s] Downloaded %d/%d: %s", d.ruleName, i+1, len(msgs), filepath.Base(file.Path))
	}

	if len(files) > 0 {
		logger.L().Infof("[%s] Downloaded %d media files", d.ruleName, len(files))
	}
	return files, dir, nil
}

// Cleanup 删除这一次下载的暂存子目录及其中的全部文件
// 必须在投递尝试后无条件调用（成功、部分成功、全部失败或无媒体均不例外）
func (d *Downloader) Cleanup(dir string) {
	if dir == "" || dir == d.root {
		return
	}
	if err := os.RemoveAll(dir); err != nil {
		logger.L().Warnf("[%s] Failed to remove scratch dir %s: %v", d.ruleName, dir, err)
	}
}
