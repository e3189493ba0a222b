package service

import (
	"context"
	"sort"
	"strings"
	"unicode"
)

// Generator 根据文本生成话题标签；大模型调用在外部实现
type Generator interface {
	Generate(ctx context.Context, text string, count int) ([]string, error)
}

var stopWords = map[string]struct{}{
	"the": {}, "and": {}, "for": {}, "with": {}, "that": {}, "this": {},
	"from": {}, "your": {}, "you": {}, "are": {}, "was": {}, "were": {},
	"have": {}, "has": {}, "but": {}, "not": {}, "all": {}, "can": {},
	"our": {}, "out": {}, "about": {}, "into": {}, "just": {}, "they": {},
	"will": {}, "what": {}, "when": {}, "how": {}, "why": {}, "who": {},
}

// KeywordGenerator 按词频提取关键词，结果对同一输入稳定
type KeywordGenerator struct {
	MinLength int
}

func NewKeywordGenerator() *KeywordGenerator {
	return &KeywordGenerator{MinLength: 3}
}

func (g *KeywordGenerator) Generate(ctx context.Context, text string, count int) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if count <= 0 {
		return []string{}, nil
	}

	type keyword struct {
		word  string
		freq  int
		first int
	}

	words := strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	index := make(map[string]*keyword)
	var order []*keyword
	for i, w := range words {
		if len([]rune(w)) < g.MinLength {
			continue
		}
		if _, stop := stopWords[w]; stop {
			continue
		}
		if k, ok := index[w]; ok {
			k.freq++
			continue
		}
		k := &keyword{word: w, freq: 1, first: i}
		index[w] = k
		order = append(order, k)
	}

	sort.SliceStable(order, func(i, j int) bool {
		if order[i].freq != order[j].freq {
			return order[i].freq > order[j].freq
		}
		return order[i].first < order[j].first
	})

	if len(order) > count {
		order = order[:count]
	}
	tags := make([]string, 0, len(order))
	for _, k := range order {
		tags = append(tags, "#"+k.word)
	}
	return tags, nil
}
