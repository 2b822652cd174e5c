// Package document はアップロードされた文書のバイト列をテキストに変換する
package document

import (
	"errors"
	"fmt"
	"unicode/utf8"

	"github.com/go-enry/go-enry/v2"
	"golang.org/x/text/encoding/charmap"
)

var (
	// ErrEmptyDocument は文書が空の場合のエラー
	ErrEmptyDocument = errors.New("empty document")

	// ErrBinaryDocument はテキストとして扱えない文書の場合のエラー
	ErrBinaryDocument = errors.New("binary document is not supported")
)

// Encoding はデコードに使用した文字コード
type Encoding string

const (
	EncodingUTF8     Encoding = "utf-8"
	EncodingISO88598 Encoding = "iso-8859-8"
)

// Decode はバイト列をテキストに変換する
// UTF-8 として不正な場合は ISO-8859-8（ヘブライ語）としてデコードする
func Decode(content []byte) (string, Encoding, error) {
	if len(content) == 0 {
		return "", "", ErrEmptyDocument
	}

	if enry.IsBinary(content) {
		return "", "", ErrBinaryDocument
	}

	if utf8.Valid(content) {
		return string(content), EncodingUTF8, nil
	}

	text, err := charmap.ISO8859_8.NewDecoder().Bytes(content)
	if err != nil {
		return "", "", fmt.Errorf("failed to decode document as %s: %w", EncodingISO88598, err)
	}

	return string(text), EncodingISO88598, nil
}
