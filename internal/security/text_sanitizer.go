package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// TextSanitizer はイベント説明文や会場名など、APIから受け取った表示用テキストを無害化する。
// bluemondayのポリシーはゴルーチン安全なため、1つのインスタンスを共有してよい。
type TextSanitizer struct {
	rich  *bluemonday.Policy
	plain *bluemonday.Policy
}

// NewTextSanitizer はTextSanitizerを生成する。
//   - HTML: p, br, ul, ol, li, strong, em と https のリンクのみ許可
//   - Text: 全タグを除去したプレーンテキスト
func NewTextSanitizer() *TextSanitizer {
	rich := bluemonday.NewPolicy()
	rich.AllowElements("p", "br", "ul", "ol", "li", "strong", "em")
	rich.AllowAttrs("href").OnElements("a")
	rich.AllowURLSchemes("https")
	rich.AllowRelativeURLs(false)
	rich.RequireParseableURLs(true)
	rich.AddTargetBlankToFullyQualifiedLinks(true)
	rich.RequireNoReferrerOnLinks(true)

	return &TextSanitizer{
		rich:  rich,
		plain: bluemonday.StrictPolicy(),
	}
}

// HTML は許可リストにないタグと属性を除去したHTMLを返す。
func (s *TextSanitizer) HTML(raw string) string {
	return strings.TrimSpace(s.rich.Sanitize(raw))
}

// Text は全タグを除去し、実体参照を戻したプレーンテキストを返す。
// 連続する空白は1つにまとめる。
func (s *TextSanitizer) Text(raw string) string {
	stripped := html.UnescapeString(s.plain.Sanitize(raw))
	return strings.Join(strings.Fields(stripped), " ")
}
