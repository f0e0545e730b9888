package split

import (
	"sync"

	"github.com/schollz/progressbar/v3"
	"go.uber.org/zap"
)

// progress reports finished sections.
type progress interface {
	Done(title string)
	Finish()
}

func newProgress(total int, terminal bool, log *zap.Logger) progress {
	if !terminal || total < 2 {
		return &logProgress{total: total, log: log}
	}
	return &barProgress{bar: progressbar.NewOptions(total,
		progressbar.OptionSetDescription("Splitting"),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowCount(),
		progressbar.OptionClearOnFinish(),
	)}
}

type barProgress struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

func (p *barProgress) Done(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Describe(title)
	_ = p.bar.Add(1)
}

func (p *barProgress) Finish() {
	_ = p.bar.Finish()
}

// logProgress is used when output is not a terminal.
type logProgress struct {
	mu    sync.Mutex
	done  int
	total int
	log   *zap.Logger
}

func (p *logProgress) Done(title string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.done++
	p.log.Debug("Section processed", zap.String("title", title), zap.Int("done", p.done), zap.Int("total", p.total))
}

func (p *logProgress) Finish() {}
