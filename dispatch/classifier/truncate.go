package classifier

import (
	"fmt"
	"strings"
	"sync"

	"github.com/pkoukk/tiktoken-go"
	"go.uber.org/zap"
)

// encoder is the subset of *tiktoken.Tiktoken the truncator needs.
type encoder interface {
	Encode(text string, allowedSpecial []string, disallowedSpecial []string) []int
	Decode(tokens []int) string
}

// Truncator bounds classifier input to a token budget.
// tiktoken 编码数据首次使用时懒加载（可能需要下载），失败时退化为按字符估算（约 4 字符/token）。
type Truncator struct {
	encoding  string
	maxTokens int
	logger    *zap.Logger

	once    sync.Once
	enc     encoder
	initErr error
	load    func(encoding string) (encoder, error)
}

// NewTruncator creates a truncator for encoding (e.g. "o200k_base").
// maxTokens <= 0 disables truncation.
func NewTruncator(encoding string, maxTokens int, logger *zap.Logger) *Truncator {
	if logger == nil {
		logger = zap.NewNop()
	}
	if encoding == "" {
		encoding = "cl100k_base"
	}
	return &Truncator{
		encoding:  encoding,
		maxTokens: maxTokens,
		logger:    logger.With(zap.String("component", "truncator")),
		load: func(name string) (encoder, error) {
			return tiktoken.GetEncoding(name)
		},
	}
}

// EncodingForModel maps a model name to its tiktoken encoding.
func EncodingForModel(model string) string {
	for _, prefix := range []string{"gpt-4o", "gpt-4.1", "gpt-5", "o1", "o3", "o4"} {
		if strings.HasPrefix(model, prefix) {
			return "o200k_base"
		}
	}
	return "cl100k_base"
}

func (t *Truncator) init() error {
	t.once.Do(func() {
		enc, err := t.load(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			t.logger.Warn("tiktoken unavailable, falling back to character estimate", zap.Error(t.initErr))
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Truncate returns text cut to at most maxTokens tokens.
func (t *Truncator) Truncate(text string) string {
	if t == nil || t.maxTokens <= 0 {
		return text
	}
	if err := t.init(); err != nil {
		runes := []rune(text)
		if limit := t.maxTokens * 4; len(runes) > limit {
			return string(runes[:limit])
		}
		return text
	}
	tokens := t.enc.Encode(text, nil, nil)
	if len(tokens) <= t.maxTokens {
		return text
	}
	return t.enc.Decode(tokens[:t.maxTokens])
}
