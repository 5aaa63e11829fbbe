package logger

import (
	"os"
	"sync"

	log "github.com/sirupsen/logrus"
)

// tailSize 日志尾部缓冲区行数（供 WebUI 日志面板读取）
const tailSize = 200

// tailHook 环形缓冲 hook，保留最近的格式化日志行
type tailHook struct {
	mu        sync.Mutex
	formatter log.Formatter
	lines     []string
	next      int
	full      bool
}

func newTailHook(size int) *tailHook {
	return &tailHook{
		formatter: &log.TextFormatter{FullTimestamp: true, DisableColors: true},
		lines:     make([]string, size),
	}
}

func (h *tailHook) Levels() []log.Level { return log.AllLevels }

func (h *tailHook) Fire(entry *log.Entry) error {
	line, err := h.formatter.Format(entry)
	if err != nil {
		return err
	}

	h.mu.Lock()
	h.lines[h.next] = string(line)
	h.next = (h.next + 1) % len(h.lines)
	if h.next == 0 {
		h.full = true
	}
	h.mu.Unlock()
	return nil
}

// snapshot 按时间顺序返回最近 n 行
func (h *tailHook) snapshot(n int) []string {
	h.mu.Lock()
	defer h.mu.Unlock()

	var ordered []string
	if h.full {
		ordered = append(ordered, h.lines[h.next:]...)
	}
	ordered = append(ordered, h.lines[:h.next]...)

	if n > 0 && len(ordered) > n {
		ordered = ordered[len(ordered)-n:]
	}
	out := make([]string, len(ordered))
	copy(out, ordered)
	return out
}

var tail = newTailHook(tailSize)

// Init configures the global logrus logger.
// It is safe to call multiple times; later calls overwrite previous settings.
func Init() {
	log.SetOutput(os.Stdout)
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	levelStr := os.Getenv("LOG_LEVEL")
	if levelStr == "" {
		levelStr = "info"
	}
	if lvl, err := log.ParseLevel(levelStr); err == nil {
		log.SetLevel(lvl)
	} else {
		log.SetLevel(log.InfoLevel)
	}

	// 注册日志尾部 hook（重复 Init 时避免重复注册）
	for _, hooks := range log.StandardLogger().Hooks {
		for _, h := range hooks {
			if h == tail {
				return
			}
		}
	}
	log.AddHook(tail)
}

// L returns the global logger for convenience.
func L() *log.Logger { return log.StandardLogger() }

// Recent 返回最近 n 行日志（n<=0 表示全部缓冲内容），供日志面板轮询
func Recent(n int) []string { return tail.snapshot(n) }
