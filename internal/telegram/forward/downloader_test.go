package forward

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
)

func TestDownloaderPartialSuccess(t *testing.T) {
	transport := newFakeTransport()
	transport.downloadErrByID = map[int]error{2: errors.New("file too big")}
	d := NewDownloader(transport, "test")

	msgs := []*Message{mediaMsg(1, ""), mediaMsg(2, ""), mediaMsg(3, ""), textMsg("no media")}
	files, dir, err := d.Download(context.Background(), msgs)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	// 单个媒体失败不拖垮整批，无媒体成员直接跳过
	if len(files) != 2 {
		t.Fatalf("expected 2 downloaded files, got %d", len(files))
	}
	for _, f := range files {
		if _, err := os.Stat(f.Path); err != nil {
			t.Fatalf("downloaded file missing: %v", err)
		}
	}

	d.Cleanup(dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("scratch dir %s should be removed after cleanup", dir)
	}
}

func TestDownloaderIsolatedScratchDirs(t *testing.T) {
	transport := newFakeTransport()
	d := NewDownloader(transport, "test")

	msgs := []*Message{mediaMsg(1, "")}
	first, firstDir, err := d.Download(context.Background(), msgs)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	second, secondDir, err := d.Download(context.Background(), msgs)
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}

	// 每次下载独立子目录，同名文件互不覆盖
	if filepath.Dir(first[0].Path) == filepath.Dir(second[0].Path) {
		t.Fatal("each download must use its own scratch directory")
	}

	d.Cleanup(firstDir)
	d.Cleanup(secondDir)
}

func TestDownloaderCleanupRemovesEmptyScratchDir(t *testing.T) {
	transport := newFakeTransport()
	transport.downloadErr = errors.New("network down")
	d := NewDownloader(transport, "test")

	files, dir, err := d.Download(context.Background(), []*Message{mediaMsg(1, "")})
	if err != nil {
		t.Fatalf("Download failed: %v", err)
	}
	if len(files) != 0 {
		t.Fatalf("expected no files, got %d", len(files))
	}
	if _, err := os.Stat(dir); err != nil {
		t.Fatalf("scratch dir should exist before cleanup: %v", err)
	}

	// 全部下载失败时暂存目录为空，也必须回收
	d.Cleanup(dir)
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("empty scratch dir %s should be removed after cleanup", dir)
	}
}
