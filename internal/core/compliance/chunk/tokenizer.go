package chunk

// Tokenizer はテキストとトークン列を相互変換する
// 比較する2文書で同じインスタンスを共有すること（トークン数が予算の単位になるため）
type Tokenizer interface {
	// Encode はテキストをトークン列に変換する。空文字列は空のトークン列になる
	Encode(text string) []int

	// Decode はトークン列をテキストに戻す
	Decode(tokens []int) string
}

// CountTokens はテキストのトークン数を返す
func CountTokens(tok Tokenizer, text string) int {
	return len(tok.Encode(text))
}
