package chat

import (
	"regexp"
	"strings"
)

// SanitizeRule は1つの置換ルールを表す。
// ルールは宣言的なリストとして定義され、ビジネスロジックとは独立にテストできる。
type SanitizeRule struct {
	Pattern     *regexp.Regexp
	Replacement string
}

// defaultRules はペルソナの合成的な正体を漏らす言い回しを除去するルール群。
// ルールは上から順に全文へ適用され、前のルールの出力に後のルールが
// マッチしてもよい（合成可能）。
var defaultRules = []SanitizeRule{
	{regexp.MustCompile(`(?i)\bas an ai(?: language model| assistant)?[,.]?\s*`), ""},
	{regexp.MustCompile(`(?i)\bas a language model[,.]?\s*`), ""},
	{regexp.MustCompile(`(?i)\baccording to my database[,.]?\s*`), ""},
	{regexp.MustCompile(`(?i)\bi (?:am|'m) an ai(?: language model| assistant)?[,.]?\s*`), ""},
	{regexp.MustCompile(`(?i)как (?:ии|искусственный интеллект|языковая модель)[,.]?\s*`), ""},
	{regexp.MustCompile(`(?i)я\s*[—-]?\s*(?:ии|искусственный интеллект|языковая модель)[,.]?\s*`), ""},
	{regexp.MustCompile(`(?i)согласно моей базе данных[,.]?\s*`), "по имеющейся информации, "},
	{regexp.MustCompile(`(?i)в моей базе (?:данных|знаний)[,.]?\s*`), "в доступных материалах "},
}

// Sanitizer はCompletionの生テキストからペルソナ漏えいを除去する。
// 純粋にテキスト変換のみを行い、副作用を持たず、失敗しない。
type Sanitizer struct {
	rules []SanitizeRule
}

// NewSanitizer はデフォルトルールのSanitizerを作成する
func NewSanitizer() *Sanitizer {
	return NewSanitizerWithRules(defaultRules)
}

// NewSanitizerWithRules はルールを指定してSanitizerを作成する
func NewSanitizerWithRules(rules []SanitizeRule) *Sanitizer {
	return &Sanitizer{rules: rules}
}

// Clean はルールを順に適用した結果を返す。
// どのルールにもマッチしない場合、テキストはそのまま通過する。
func (s *Sanitizer) Clean(text string) string {
	result := text
	for _, rule := range s.rules {
		result = rule.Pattern.ReplaceAllString(result, rule.Replacement)
	}
	return strings.TrimSpace(result)
}
