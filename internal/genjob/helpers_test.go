package genjob

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	gormsqlite "github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/suPer8Hu/genjobs/internal/ai"
	"github.com/suPer8Hu/genjobs/internal/logger"
)

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_", "#", "_").Replace(t.Name())
	db, err := gorm.Open(gormsqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	if err := db.AutoMigrate(&Job{}); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	return db
}

func countJobs(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var n int64
	if err := db.Model(&Job{}).Count(&n).Error; err != nil {
		t.Fatalf("count: %v", err)
	}
	return n
}

// recordingTrigger remembers published ids and optionally runs a callback.
type recordingTrigger struct {
	mu        sync.Mutex
	published []string
	err       error
	onPublish func(id string)
}

func (t *recordingTrigger) PublishJob(ctx context.Context, jobID string) error {
	t.mu.Lock()
	t.published = append(t.published, jobID)
	t.mu.Unlock()
	if t.err != nil {
		return t.err
	}
	if t.onPublish != nil {
		t.onPublish(jobID)
	}
	return nil
}

func (t *recordingTrigger) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]string(nil), t.published...)
}

type step struct {
	delay time.Duration
	reply string
	err   error
	panic bool
}

// scriptedProvider answers Chat calls from a script; the last step repeats.
type scriptedProvider struct {
	mu    sync.Mutex
	steps []step
	calls int
	last  []ai.Message
}

func (p *scriptedProvider) Chat(ctx context.Context, messages []ai.Message) (string, error) {
	p.mu.Lock()
	i := p.calls
	p.calls++
	p.last = append([]ai.Message(nil), messages...)
	p.mu.Unlock()

	s := p.steps[min(i, len(p.steps)-1)]
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if s.panic {
		panic("provider blew up")
	}
	return s.reply, s.err
}

func (p *scriptedProvider) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls
}

func registryWith(p ai.Provider) *ai.Registry {
	reg := ai.NewRegistry("fake")
	reg.Register("fake", func(ctx context.Context, model string) (ai.Provider, error) {
		_ = ctx
		_ = model
		return p, nil
	})
	return reg
}

func newTestProcessor(repo *Repo, reg *ai.Registry, img ai.ImageProvider, timeout time.Duration) *Processor {
	log := logger.Nop()
	return NewProcessor(repo, log, timeout, map[Kind]Generator{
		KindArticle: &ArticleGenerator{Providers: reg, FlushInterval: time.Nanosecond, Log: log},
		KindImage:   &ImageGenerator{Provider: img},
	})
}

const metaReply = `{"title":"Red Shoes","meta_description":"Why red shoes sell","tags":["shoes","red"]}`
