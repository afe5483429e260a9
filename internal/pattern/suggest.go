package pattern

import (
	"sort"
	"strings"
)

// Weights 相似推荐中各字段命中一次的得分
type Weights struct {
	Name          int
	Description   int
	DescriptionZh int
	Category      int
}

func DefaultWeights() Weights {
	return Weights{Name: 10, Description: 5, DescriptionZh: 5, Category: 2}
}

const defaultSuggestLimit = 3

type Suggestion struct {
	Summary
	Score int `json:"score"`
}

// Suggest 按空白切分查询词,逐词逐字段累加得分。
// 零分不返回,得分相同保持名称顺序。
func (s *Store) Suggest(query string, limit int) ([]Suggestion, error) {
	if limit <= 0 {
		limit = defaultSuggestLimit
	}
	cat, err := s.catalog()
	if err != nil {
		return nil, err
	}

	tokens := strings.Fields(strings.ToLower(query))
	out := []Suggestion{}
	if len(tokens) == 0 {
		return out, nil
	}

	for _, p := range cat.patterns {
		if score := s.weights.score(p.Summary, tokens); score > 0 {
			out = append(out, Suggestion{Summary: p.Summary, Score: score})
		}
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (w Weights) score(p Summary, tokens []string) int {
	name := strings.ToLower(p.Name)
	desc := strings.ToLower(p.Description)
	descZh := strings.ToLower(p.DescriptionZh)
	category := strings.ToLower(p.Category)

	score := 0
	for _, tok := range tokens {
		if strings.Contains(name, tok) {
			score += w.Name
		}
		if strings.Contains(desc, tok) {
			score += w.Description
		}
		if strings.Contains(descZh, tok) {
			score += w.DescriptionZh
		}
		if strings.Contains(category, tok) {
			score += w.Category
		}
	}
	return score
}
