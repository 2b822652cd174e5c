package tokenizer

import (
	"fmt"

	"github.com/pkoukk/tiktoken-go"

	"github.com/jinford/lawcheck/internal/core/compliance/chunk"
)

// DefaultEncoding は OpenAI の embedding モデルと同じ BPE エンコーディング
const DefaultEncoding = "cl100k_base"

// Tokenizer は tiktoken によるトークナイザー
type Tokenizer struct {
	encoding *tiktoken.Tiktoken
}

// New は cl100k_base の Tokenizer を作成する
func New() (*Tokenizer, error) {
	return NewWithEncoding(DefaultEncoding)
}

// NewWithEncoding はエンコーディング名を指定して Tokenizer を作成する
func NewWithEncoding(name string) (*Tokenizer, error) {
	encoding, err := tiktoken.GetEncoding(name)
	if err != nil {
		return nil, fmt.Errorf("failed to get tiktoken encoding %q: %w", name, err)
	}

	return &Tokenizer{
		encoding: encoding,
	}, nil
}

// Encode はテキストをトークン列に変換する
// 特殊トークンは通常のテキストとして扱う
func (t *Tokenizer) Encode(text string) []int {
	return t.encoding.Encode(text, nil, nil)
}

// Decode はトークン列をテキストに戻す
func (t *Tokenizer) Decode(tokens []int) string {
	return t.encoding.Decode(tokens)
}

// インターフェース実装の確認
var _ chunk.Tokenizer = (*Tokenizer)(nil)
