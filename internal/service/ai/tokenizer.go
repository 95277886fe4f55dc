package ai

import (
	"log"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
)

// Tokenizer counts prompt tokens for the history budget. Without an
// encoding it estimates one token per rune.
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// NewTokenizer loads the cl100k_base encoding, falling back to the estimate
// when it cannot be loaded.
func NewTokenizer() *Tokenizer {
	tkm, err := tiktoken.GetEncoding("cl100k_base")
	if err != nil {
		log.Printf("[ai] tiktoken encoding unavailable, estimating tokens by rune count: %v", err)
		return &Tokenizer{}
	}
	return &Tokenizer{encoding: tkm}
}

// CountTokens 计算单条文本的 Token 数
func (t *Tokenizer) CountTokens(text string) int {
	if t == nil || t.encoding == nil {
		return utf8.RuneCountInString(text)
	}
	return len(t.encoding.Encode(text, nil, nil))
}

// CountMessageTokens includes the per-message role overhead.
func (t *Tokenizer) CountMessageTokens(msg chat.Message) int {
	return 4 + t.CountTokens(msg.Body) + t.CountTokens(string(msg.Role))
}
