package pattern

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
)

var explanationLine = regexp.MustCompile(`^\d+\.\s+\*\*(\w+)\*\*:\s*(.+)$`)

// Store pattern 库。patterns、描述与翻译作为一个整体缓存,只能整体失效
type Store struct {
	dir     string
	weights Weights

	mu  sync.RWMutex
	cat *catalog
}

type catalog struct {
	patterns []Pattern
	index    map[string]int
}

func NewStore(dir string, weights Weights) *Store {
	return &Store{dir: dir, weights: weights}
}

func (s *Store) Dir() string { return s.dir }

// LoadAll 返回按名称排序的全部 pattern,首次调用时扫描目录
func (s *Store) LoadAll() ([]Pattern, error) {
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}
	return append([]Pattern(nil), cat.patterns...), nil
}

// Summaries 全部 pattern 的基本信息
func (s *Store) Summaries() ([]Summary, error) {
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}
	return summaries(cat.patterns), nil
}

// Get 按名称查找,不存在时返回 nil
func (s *Store) Get(name string) (*Pattern, error) {
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}
	i, ok := cat.index[name]
	if !ok {
		return nil, nil
	}
	p := cat.patterns[i]
	return &p, nil
}

// Search 名称、英文描述或中文描述包含查询串(不区分大小写)
func (s *Store) Search(query string) ([]Summary, error) {
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}
	q := strings.ToLower(query)
	var matched []Pattern
	for _, p := range cat.patterns {
		if strings.Contains(strings.ToLower(p.Name), q) ||
			strings.Contains(strings.ToLower(p.Description), q) ||
			strings.Contains(strings.ToLower(p.DescriptionZh), q) {
			matched = append(matched, p)
		}
	}
	return summaries(matched), nil
}

// Categories 各分类的 pattern 数量
func (s *Store) Categories() (map[string]int, error) {
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int)
	for _, p := range cat.patterns {
		counts[p.Category]++
	}
	return counts, nil
}

// Count 已加载的 pattern 数量,缓存未建立时返回 -1
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.cat == nil {
		return -1
	}
	return len(s.cat.patterns)
}

// Invalidate 丢弃缓存,下次访问时重新扫描
func (s *Store) Invalidate() {
	s.mu.Lock()
	s.cat = nil
	s.mu.Unlock()
}

// Reload 丢弃缓存并立即重建
func (s *Store) Reload() (int, error) {
	s.Invalidate()
	cat, err := s.catalog()
	if err != nil {
		return 0, err
	}
	return len(cat.patterns), nil
}

func (s *Store) catalog() (*catalog, error) {
	s.mu.RLock()
	cat := s.cat
	s.mu.RUnlock()
	if cat != nil {
		return cat, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.buildLocked()
}

// buildLocked 调用方需持有写锁
func (s *Store) buildLocked() (*catalog, error) {
	if s.cat != nil {
		return s.cat, nil
	}

	descriptions := s.readExplanations()
	translations := s.readTranslations()

	entries, err := os.ReadDir(s.dir)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("读取 pattern 目录失败: %w", err)
	}

	patterns := make([]Pattern, 0, len(entries))
	for _, e := range entries {
		full := filepath.Join(s.dir, e.Name())
		if info, err := os.Stat(full); err != nil || !info.IsDir() {
			continue
		}
		content, err := os.ReadFile(filepath.Join(full, templateFile))
		if err != nil {
			continue
		}
		name := e.Name()
		tr := translations[name]
		patterns = append(patterns, Pattern{
			Summary: Summary{
				Name:          name,
				Description:   descriptions[name],
				DescriptionZh: tr.Description(),
				Category:      Categorize(name),
				Keywords:      tr.Keywords(),
			},
			Content: string(content),
		})
	}

	sort.Slice(patterns, func(i, j int) bool { return patterns[i].Name < patterns[j].Name })

	cat := &catalog{patterns: patterns, index: make(map[string]int, len(patterns))}
	for i, p := range patterns {
		cat.index[p.Name] = i
	}
	s.cat = cat
	log.Printf("[Pattern] 已加载 %d 个 patterns", len(patterns))
	return cat, nil
}

func (s *Store) readExplanations() map[string]string {
	out := make(map[string]string)
	f, err := os.Open(filepath.Join(s.dir, explanationsFile))
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			log.Printf("[Pattern] 无法加载英文描述: %v", err)
		}
		return out
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if m := explanationLine.FindStringSubmatch(line); m != nil {
			out[m[1]] = strings.TrimSpace(m[2])
		}
	}
	if err := scanner.Err(); err != nil {
		log.Printf("[Pattern] 无法加载英文描述: %v", err)
	}
	return out
}

func (s *Store) readTranslations() map[string]Translation {
	out, err := readTranslationFile(filepath.Join(s.dir, translationsFile))
	if err != nil {
		log.Printf("[Pattern] 无法加载中文翻译: %v", err)
		return map[string]Translation{}
	}
	return out
}

func readTranslationFile(path string) (map[string]Translation, error) {
	out := map[string]Translation{}
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func summaries(patterns []Pattern) []Summary {
	out := make([]Summary, 0, len(patterns))
	for _, p := range patterns {
		out = append(out, p.Summary)
	}
	return out
}
