package intercept

import (
	"errors"
	"unicode/utf8"
)

// ErrInvalidText 表示累积的正文不是合法 UTF-8，调用方应跳过日志而不是中断交换。
var ErrInvalidText = errors.New("body is not valid utf-8")

// Append 将 chunk 追加到 existing 并返回结果；chunk 为空时原样返回 existing。
func Append(existing, chunk []byte) []byte {
	if len(chunk) == 0 {
		return existing
	}
	return append(existing, chunk...)
}

// DecodeText 严格按 UTF-8 解码，非法字节返回 ErrInvalidText。
func DecodeText(b []byte) (string, error) {
	if !utf8.Valid(b) {
		return "", ErrInvalidText
	}
	return string(b), nil
}
