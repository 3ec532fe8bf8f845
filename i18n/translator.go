package i18n

import "strings"

// Translator retrieves localized messages for Issue codes.
// data provides values for the {placeholders} of the message (for example,
// "attribute", "expected" or "got").
type Translator interface {
	Message(code string, data map[string]string) string
}

var catalogs = map[string]map[string]string{
	"en": {
		"invalid_type":       "invalid type: expected {expected}, got {got}",
		"required":           "required attribute {attribute} is missing",
		"unknown_attribute":  "attribute {attribute} is not declared on {type}",
		"unknown_type":       "unknown entity type {type}",
		"invalid_enum":       "value {got} is not one of {expected}",
		"inverse_assigned":   "inverse attribute {attribute} is computed and cannot be assigned",
		"duplicate_key":      "duplicate key",
		"duplicate_token":    "identity token {token} is defined more than once",
		"unresolved_ref":     "reference {token} does not resolve to any entity in the document",
		"malformed_document": "malformed document: {detail}",
		"parse_error":        "parse error",
		"truncated":          "truncated",
	},
	"ja": {
		"invalid_type":       "型が不正です: {expected} が必要ですが {got} でした",
		"required":           "必須属性 {attribute} がありません",
		"unknown_attribute":  "属性 {attribute} は {type} に宣言されていません",
		"unknown_type":       "未知のエンティティ型 {type} です",
		"invalid_enum":       "値 {got} は {expected} のいずれでもありません",
		"inverse_assigned":   "逆属性 {attribute} は計算されるため代入できません",
		"duplicate_key":      "キーが重複しています",
		"duplicate_token":    "識別子トークン {token} が複数回定義されています",
		"unresolved_ref":     "参照 {token} は文書内のどのエンティティにも解決できません",
		"malformed_document": "文書の形式が不正です: {detail}",
		"parse_error":        "解析エラー",
		"truncated":          "打ち切られました",
	},
}

// dictTranslator is the built-in dictionary-based Translator.
type dictTranslator struct{ lang string }

func (t dictTranslator) Message(code string, data map[string]string) string {
	msg, ok := catalogs[t.lang][code]
	if !ok {
		return code
	}
	if len(data) == 0 {
		return msg
	}
	pairs := make([]string, 0, 2*len(data))
	for k, v := range data {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(msg)
}

var currentTranslator Translator = dictTranslator{lang: "en"}

// SetLanguage switches the built-in Translator language ("en"/"ja").
func SetLanguage(lang string) {
	if lang != "ja" {
		lang = "en"
	}
	currentTranslator = dictTranslator{lang: lang}
}

// SetTranslator replaces the Translator implementation (not limited to the
// dictionary version).
func SetTranslator(tr Translator) {
	if tr == nil {
		currentTranslator = dictTranslator{lang: "en"}
		return
	}
	currentTranslator = tr
}

// T fetches a message for the given code using the current Translator.
func T(code string, data map[string]string) string { return currentTranslator.Message(code, data) }
