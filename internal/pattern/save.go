package pattern

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/text/unicode/norm"

	"geek-hub/internal/errs"
)

var (
	whitespaceRun = regexp.MustCompile(`\s+`)
	illegalChars  = regexp.MustCompile(`[<>:"/\\|?*\x00-\x1f]`)
)

// SanitizeName 生成可作为目录名的 pattern 名称: 小写,空白换下划线,去掉非法文件名字符
func SanitizeName(name string) string {
	name = norm.NFC.String(name)
	name = strings.ToLower(strings.TrimSpace(name))
	name = whitespaceRun.ReplaceAllString(name, "_")
	return illegalChars.ReplaceAllString(name, "")
}

// Save 写入模板文件,合并中文描述,然后重建缓存
func (s *Store) Save(name, content, descriptionZh string) (*Pattern, error) {
	safe := SanitizeName(name)
	switch safe {
	case "", ".", "..":
		return nil, errs.Validation("name", "名称无效")
	}
	if strings.TrimSpace(content) == "" {
		return nil, errs.Validation("content", "内容不能为空")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, safe)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("创建 pattern 目录失败: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, templateFile), []byte(content), 0o644); err != nil {
		return nil, fmt.Errorf("写入模板失败: %w", err)
	}

	if descriptionZh = strings.TrimSpace(descriptionZh); descriptionZh != "" {
		if err := s.mergeTranslation(safe, descriptionZh); err != nil {
			return nil, err
		}
	}

	s.cat = nil
	cat, err := s.buildLocked()
	if err != nil {
		return nil, err
	}
	i, ok := cat.index[safe]
	if !ok {
		return nil, fmt.Errorf("保存后未能加载 pattern: %s", safe)
	}
	p := cat.patterns[i]
	return &p, nil
}

func (s *Store) mergeTranslation(name, desc string) error {
	path := filepath.Join(s.dir, translationsFile)
	translations, err := readTranslationFile(path)
	if err != nil {
		return fmt.Errorf("读取翻译文件失败: %w", err)
	}
	translations[name] = translations[name].WithDescription(desc)

	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(translations); err != nil {
		return fmt.Errorf("序列化翻译失败: %w", err)
	}
	if err := os.WriteFile(path, buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("写入翻译文件失败: %w", err)
	}
	return nil
}
