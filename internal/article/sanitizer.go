// Package article はフィード記事の保存と状態管理を提供する。
package article

import (
	"net/url"

	"github.com/microcosm-cc/bluemonday"
)

// Sanitizer はHTMLコンテンツのサニタイズ機能のインターフェース。
// 記事の保存前に適用され、XSS攻撃からユーザーを保護する。
type Sanitizer interface {
	// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(rawHTML string) string
}

// htmlSanitizer はbluemondayの許可リストベースポリシーによるSanitizerの実装。
// ポリシーの内容:
//   - 許可タグ: p, br, a, ul, ol, li, blockquote, pre, code, strong, em, img
//   - 禁止タグ: script, iframe, style および全てのon*イベント属性
//   - imgのsrc属性: httpsスキームのみ許可
//   - aタグ: target="_blank" と rel="noopener noreferrer" を自動付与
type htmlSanitizer struct {
	policy *bluemonday.Policy
}

// NewSanitizer はSanitizerの新しいインスタンスを生成する。
// ポリシーは初期化時に1回構築され、以降はスレッドセーフに使用できる。
func NewSanitizer() *htmlSanitizer {
	p := bluemonday.NewPolicy()

	// 許可リストに含めないタグ（script, iframe, style等）と
	// on*イベント属性はbluemondayにより自動で除去される
	p.AllowElements(
		"p", "br", "ul", "ol", "li",
		"blockquote", "pre", "code",
		"strong", "em",
	)

	// aタグ: href許可、相対URL不許可、target=_blankとrel=noopener noreferrerを強制付与
	p.AllowAttrs("href").OnElements("a")
	p.AllowRelativeURLs(false)
	p.AddTargetBlankToFullyQualifiedLinks(true)
	p.RequireNoReferrerOnLinks(true)

	// imgタグ: srcはhttpsのみ（http, javascript, data等は拒否）、altは許可
	p.AllowAttrs("src").OnElements("img")
	p.AllowAttrs("alt").OnElements("img")
	p.AllowURLSchemeWithCustomPolicy("https", func(u *url.URL) bool {
		return true
	})

	return &htmlSanitizer{policy: p}
}

// Sanitize はHTMLコンテンツをサニタイズして安全なHTMLを返す。
func (s *htmlSanitizer) Sanitize(rawHTML string) string {
	return s.policy.Sanitize(rawHTML)
}

// compile-time interface check
var _ Sanitizer = (*htmlSanitizer)(nil)
