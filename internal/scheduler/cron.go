package scheduler

import (
	"context"
	"log"
	"time"

	"github.com/robfig/cron/v3"

	"geek-hub/config"
)

// PatternReloader 重新扫描 pattern 目录
type PatternReloader interface {
	Reload() (int, error)
}

// IndexOptimizer 合并全文索引
type IndexOptimizer func(ctx context.Context) error

type Scheduler struct {
	cron            *cron.Cron
	patterns        PatternReloader
	optimize        IndexOptimizer
	config          config.CronConfig
	refreshEntryID  cron.EntryID
	optimizeEntryID cron.EntryID
}

func NewScheduler(patterns PatternReloader, optimize IndexOptimizer, cfg config.CronConfig) *Scheduler {
	return &Scheduler{
		cron:     cron.New(),
		patterns: patterns,
		optimize: optimize,
		config:   cfg,
	}
}

// Start 注册任务并启动,表达式为空的任务不注册
func (s *Scheduler) Start() error {
	var err error
	if s.config.PatternRefresh != "" {
		s.refreshEntryID, err = s.cron.AddFunc(s.config.PatternRefresh, s.RefreshPatterns)
		if err != nil {
			return err
		}
	}

	if s.config.IndexOptimize != "" {
		s.optimizeEntryID, err = s.cron.AddFunc(s.config.IndexOptimize, s.OptimizeIndex)
		if err != nil {
			return err
		}
	}

	s.cron.Start()
	log.Printf("[Cron] Scheduler started (pattern refresh: %q, index optimize: %q)", s.config.PatternRefresh, s.config.IndexOptimize)
	return nil
}

// RefreshPatterns 重建 pattern 缓存
func (s *Scheduler) RefreshPatterns() {
	log.Println("[Cron] Reloading patterns...")
	n, err := s.patterns.Reload()
	if err != nil {
		log.Printf("[Cron] Reload patterns failed: %v", err)
		return
	}
	log.Printf("[Cron] %d patterns loaded", n)
}

// OptimizeIndex 合并消息全文索引
func (s *Scheduler) OptimizeIndex() {
	log.Println("[Cron] Optimizing message search index...")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()
	if err := s.optimize(ctx); err != nil {
		log.Printf("[Cron] Optimize index failed: %v", err)
	}
}

// GetNextPatternRefresh 获取下次刷新时间
func (s *Scheduler) GetNextPatternRefresh() time.Time {
	return s.cron.Entry(s.refreshEntryID).Next
}

// GetNextIndexOptimize 获取下次索引优化时间
func (s *Scheduler) GetNextIndexOptimize() time.Time {
	return s.cron.Entry(s.optimizeEntryID).Next
}

func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
}
