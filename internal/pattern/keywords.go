package pattern

// Keywords are the merchant keyword lists used when re-deriving a category
// during monthly aggregation. Transport is checked before Food; anything not
// matched falls back to the record's refined kind.
type Keywords struct {
	Transport []string
	Food      []string
}

// DefaultKeywords returns the built-in category keyword lists. Entries are
// matched case-insensitively against the normalized merchant key.
func DefaultKeywords() Keywords {
	return Keywords{
		Transport: []string{
			"jr東日本", "jr西日本", "jr東海", "jr ",
			"メトロ", "地下鉄", "鉄道", "電鉄", "バス",
			"タクシー", "taxi", "uber",
			"suica", "pasmo", "icoca", "モバイルsuica",
			"etc", "高速道路", "航空", "ana", "jal",
		},
		Food: []string{
			"マクドナルド", "スターバックス", "ドトール", "すき家", "吉野家",
			"セブン-イレブン", "セブンイレブン", "ローソン", "ファミリーマート",
			"スーパー", "イオン", "成城石井",
			"restaurant", "cafe", "coffee", "食堂", "居酒屋", "寿司",
			"uber eats", "出前館", "デリバリー",
		},
	}
}
