package forward

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	botModels "github.com/go-telegram/bot/models"

	"github.com/journey-ad/telerelay/internal/telegram/models"
)

// fakeTransport 测试用传输层，记录全部调用并按配置注入错误
type fakeTransport struct {
	mu sync.Mutex

	recent  map[int64][]*Message
	display Display

	forwardCalls [][]*Message
	copyCalls    []copyCall
	textCalls    []textCall
	fileCalls    []fileCall
	downloads    int

	forwardErr      error
	copyErrs        []error // 依次弹出，弹空后为 nil
	textErr         error
	filesErr        error
	downloadErr     error
	downloadErrByID map[int]error
	recentErr       error
	displayErr      error
	errByTarget     map[int64]error

	handler func(*Message)
	watched []int64
	removed bool
}

type copyCall struct {
	target   int64
	msgs     []*Message
	caption  string
	entities []botModels.MessageEntity
}

type textCall struct {
	target    int64
	text      string
	entities  []botModels.MessageEntity
	noPreview bool
}

type fileCall struct {
	target  int64
	files   []LocalFile
	caption string
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		recent:  make(map[int64][]*Message),
		display: Display{ChatTitle: "Source Chat", SenderName: "Alice"},
	}
}

func (t *fakeTransport) popCopyErr() error {
	if len(t.copyErrs) == 0 {
		return nil
	}
	err := t.copyErrs[0]
	t.copyErrs = t.copyErrs[1:]
	return err
}

func (t *fakeTransport) Forward(_ context.Context, target int64, msgs []*Message) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.errByTarget[target]; err != nil {
		return err
	}
	if t.forwardErr != nil {
		return t.forwardErr
	}
	t.forwardCalls = append(t.forwardCalls, msgs)
	return nil
}

func (t *fakeTransport) SendText(_ context.Context, target int64, text string, entities []botModels.MessageEntity, noPreview bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.errByTarget[target]; err != nil {
		return err
	}
	if t.textErr != nil {
		return t.textErr
	}
	t.textCalls = append(t.textCalls, textCall{target, text, entities, noPreview})
	return nil
}

func (t *fakeTransport) SendCopy(_ context.Context, target int64, msgs []*Message, caption string, entities []botModels.MessageEntity) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.errByTarget[target]; err != nil {
		return err
	}
	if err := t.popCopyErr(); err != nil {
		return err
	}
	t.copyCalls = append(t.copyCalls, copyCall{target, msgs, caption, entities})
	return nil
}

func (t *fakeTransport) SendFiles(_ context.Context, target int64, files []LocalFile, caption string, _ []botModels.MessageEntity) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.filesErr != nil {
		return t.filesErr
	}
	t.fileCalls = append(t.fileCalls, fileCall{target, files, caption})
	return nil
}

func (t *fakeTransport) Download(_ context.Context, msg *Message, destDir string) (LocalFile, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.downloadErr != nil {
		return LocalFile{}, t.downloadErr
	}
	if err := t.downloadErrByID[msg.ID]; err != nil {
		return LocalFile{}, err
	}
	t.downloads++

	name := fmt.Sprintf("media_%d", msg.ID)
	path := filepath.Join(destDir, name)
	if err := os.WriteFile(path, []byte("x"), 0o644); err != nil {
		return LocalFile{}, err
	}
	return LocalFile{Path: path, Kind: msg.Kind, Name: name}, nil
}

func (t *fakeTransport) RecentMessages(_ context.Context, chatID int64, limit int) ([]*Message, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.recentErr != nil {
		return nil, t.recentErr
	}
	msgs := t.recent[chatID]
	if limit > 0 && len(msgs) > limit {
		msgs = msgs[:limit]
	}
	return msgs, nil
}

func (t *fakeTransport) ResolveDisplay(_ context.Context, _, _ int64) (Display, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.displayErr != nil {
		return Display{}, t.displayErr
	}
	return t.display, nil
}

func (t *fakeTransport) OnMessage(chats []int64, handler func(*Message)) (remove func()) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.watched = chats
	t.handler = handler
	return func() {
		t.mu.Lock()
		defer t.mu.Unlock()
		t.removed = true
		t.handler = nil
	}
}

// fakeRecorder 测试用统计/历史记录器
type fakeRecorder struct {
	mu        sync.Mutex
	forwarded map[string]int
	filtered  map[string]int
	history   []*models.HistoryRecord
}

func newFakeRecorder() *fakeRecorder {
	return &fakeRecorder{
		forwarded: make(map[string]int),
		filtered:  make(map[string]int),
	}
}

func (r *fakeRecorder) IncrementForwarded(_ context.Context, ruleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.forwarded[ruleName]++
	return nil
}

func (r *fakeRecorder) IncrementFiltered(_ context.Context, ruleName string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filtered[ruleName]++
	return nil
}

func (r *fakeRecorder) InsertHistory(_ context.Context, record *models.HistoryRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, record)
	return nil
}
