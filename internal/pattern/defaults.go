package pattern

// Amount regexes share a few building blocks. Notification bodies mix
// half-width and full-width digits; the normalizer NFKC-folds text before
// extraction, so the rules below only need half-width forms.
const (
	numJPY = `([0-9][0-9,]*)`
	numDec = `([0-9][0-9,]*(?:\.[0-9]{1,2})?)`
)

// Defaults returns the built-in pattern configuration: subscription-service
// signatures, Japanese card-issuer signatures, generic amount rules, and the
// aggregation keyword lists.
func Defaults() Config {
	return Config{
		Subscriptions:  defaultSubscriptions(),
		Issuers:        defaultIssuers(),
		GenericAmounts: defaultGenericAmounts(),
		MerchantLabels: []string{
			`(?i)(?:ご利用先|加盟店名?|利用店舗|ご利用店舗|merchant|store)[:：]?\s*(.+)`,
		},
		StoreSuffix: `([\p{Han}\p{Hiragana}\p{Katakana}A-Za-z0-9][^\s、。]{1,30}(?:店|ストア|マート))`,
		Keywords:    DefaultKeywords(),
	}
}

func defaultSubscriptions() []Pattern {
	return []Pattern{
		{
			ID:           "netflix",
			Service:      "Netflix",
			Currency:     "JPY",
			Cadence:      "monthly",
			SenderRules:  []string{"netflix.com", "info@account.netflix.com"},
			SubjectRules: []string{"お支払い", "請求", "payment", "receipt"},
			AmountRules:  []string{`[¥￥]\s*` + numJPY, numJPY + `\s*円`},
			Confidence:   0.95,
		},
		{
			ID:           "spotify",
			Service:      "Spotify",
			Currency:     "JPY",
			Cadence:      "monthly",
			SenderRules:  []string{"spotify.com"},
			SubjectRules: []string{"領収書", "receipt", "お支払い"},
			AmountRules:  []string{`[¥￥]\s*` + numJPY, numJPY + `\s*円`},
			Confidence:   0.95,
		},
		{
			ID:           "amazon-prime",
			Service:      "Amazon Prime",
			Currency:     "JPY",
			Cadence:      "monthly",
			SenderRules:  []string{"amazon.co.jp", "amazon.com"},
			SubjectRules: []string{"prime", "プライム"},
			AmountRules:  []string{`[¥￥]\s*` + numJPY, numJPY + `\s*円`},
			Confidence:   0.9,
		},
		{
			ID:           "apple",
			Service:      "Apple",
			Currency:     "JPY",
			Cadence:      "monthly",
			SenderRules:  []string{"apple.com", "itunes.com"},
			SubjectRules: []string{"領収書", "receipt", "サブスクリプション", "subscription"},
			AmountRules:  []string{`[¥￥]\s*` + numJPY, numJPY + `\s*円`},
			MerchantRules: []string{
				`(?i)(?:App|項目)[:：]\s*(.+)`,
			},
			Confidence: 0.9,
		},
		{
			ID:           "google",
			Service:      "Google",
			Currency:     "JPY",
			Cadence:      "monthly",
			SenderRules:  []string{"payments-noreply@google.com", "google.com"},
			SubjectRules: []string{"お支払い", "請求書", "invoice", "payment"},
			AmountRules:  []string{`[¥￥]\s*` + numJPY, numJPY + `\s*円`},
			MerchantRules: []string{
				`(?i)(?:YouTube Premium|Google One|Google Play)`,
				`(?:サービス|service)[:：]\s*(.+)`,
			},
			Confidence: 0.9,
		},
		{
			ID:           "unext",
			Service:      "U-NEXT",
			Currency:     "JPY",
			Cadence:      "monthly",
			SenderRules:  []string{"unext.jp"},
			SubjectRules: []string{"決済", "お支払い", "領収"},
			AmountRules:  []string{`[¥￥]\s*` + numJPY, numJPY + `\s*円`},
			Confidence:   0.95,
		},
		{
			ID:           "dropbox",
			Service:      "Dropbox",
			Currency:     "USD",
			Cadence:      "yearly",
			SenderRules:  []string{"dropbox.com"},
			SubjectRules: []string{"receipt", "invoice", "領収書"},
			AmountRules:  []string{`\$\s*` + numDec, `(?i)USD\s*` + numDec},
			Confidence:   0.9,
		},
		{
			ID:           "adobe",
			Service:      "Adobe",
			Currency:     "JPY",
			Cadence:      "monthly",
			SenderRules:  []string{"adobe.com"},
			SubjectRules: []string{"請求", "invoice", "receipt"},
			AmountRules:  []string{`[¥￥]\s*` + numJPY, numJPY + `\s*円`, `\$\s*` + numDec},
			Confidence:   0.9,
		},
	}
}

func defaultIssuers() []Pattern {
	// Issuer notification formats vary per issuer; amount rules mirror the
	// exact labels each issuer uses in its usage-alert emails.
	return []Pattern{
		{
			ID:           "jcb",
			Issuer:       "JCB",
			Currency:     "JPY",
			SenderRules:  []string{"qa.jcb.co.jp", "jcb.co.jp"},
			SubjectRules: []string{"カードご利用のお知らせ", "ショッピングご利用"},
			AmountRules: []string{
				`(?:ご利用金額|利用金額)[:：]?\s*[¥￥]?\s*` + numJPY + `\s*円?`,
				`[¥￥]\s*` + numJPY,
			},
			MerchantRules: []string{
				`(?:ご利用先|ご利用店名)[:：]?\s*(.+)`,
			},
			Confidence: 0.9,
		},
		{
			ID:           "rakuten-card",
			Issuer:       "楽天カード",
			Currency:     "JPY",
			SenderRules:  []string{"rakuten-card.co.jp"},
			SubjectRules: []string{"カード利用のお知らせ", "速報版"},
			AmountRules: []string{
				`(?:利用金額|ご利用金額)[:：]?\s*` + numJPY + `\s*円`,
				numJPY + `\s*円`,
			},
			MerchantRules: []string{
				`(?:利用先|ご利用先)[:：]?\s*(.+)`,
			},
			Confidence: 0.9,
		},
		{
			ID:           "smbc-card",
			Issuer:       "三井住友カード",
			Currency:     "JPY",
			SenderRules:  []string{"vpass.ne.jp", "smbc-card.com"},
			SubjectRules: []string{"ご利用のお知らせ"},
			AmountRules: []string{
				`(?:ご利用金額)[:：]?\s*` + numJPY + `\s*円`,
				numJPY + `\s*円`,
			},
			MerchantRules: []string{
				`(?:ご利用先|ご利用店舗)[:：]?\s*(.+)`,
			},
			Confidence: 0.9,
		},
		{
			ID:           "docomo-card",
			Issuer:       "dカード",
			Currency:     "JPY",
			SenderRules:  []string{"dcard.docomo.ne.jp"},
			SubjectRules: []string{"ご利用速報"},
			AmountRules: []string{
				`(?:決定金額|利用金額)[:：]?\s*` + numJPY + `\s*円`,
			},
			MerchantRules: []string{
				`(?:ご利用店舗|利用店舗)[:：]?\s*(.+)`,
			},
			Confidence: 0.85,
		},
		{
			ID:           "aeon-card",
			Issuer:       "イオンカード",
			Currency:     "JPY",
			SenderRules:  []string{"aeon.co.jp"},
			SubjectRules: []string{"ご利用確認", "ご請求"},
			AmountRules: []string{
				`(?:ご利用金額)[:：]?\s*` + numJPY + `\s*円`,
				numJPY + `\s*円`,
			},
			Confidence: 0.85,
		},
		{
			ID:           "epos-card",
			Issuer:       "エポスカード",
			Currency:     "JPY",
			SenderRules:  []string{"eposcard.co.jp"},
			SubjectRules: []string{"ご利用のお知らせ"},
			AmountRules: []string{
				`(?:ご利用金額)[:：]?\s*` + numJPY + `\s*円`,
			},
			MerchantRules: []string{
				`(?:ご利用場所)[:：]?\s*(.+)`,
			},
			Confidence: 0.85,
		},
		{
			ID:           "amex",
			Issuer:       "American Express",
			Currency:     "JPY",
			SenderRules:  []string{"americanexpress.com"},
			SubjectRules: []string{"カードご利用", "card activity"},
			AmountRules: []string{
				`[¥￥]\s*` + numJPY,
				`\$\s*` + numDec,
			},
			Confidence: 0.85,
		},
	}
}

func defaultGenericAmounts() []AmountRule {
	// Home currency (JPY) forms are tried first; labelled forms last with
	// currency detected from surrounding context.
	return []AmountRule{
		{Name: "yen-symbol", Regex: `[¥￥]\s*` + numJPY, Currency: "JPY"},
		{Name: "yen-suffix", Regex: numJPY + `\s*円`, Currency: "JPY"},
		{Name: "dollar-symbol", Regex: `\$\s*` + numDec, Currency: "USD"},
		{Name: "usd-code", Regex: `(?i)USD\s*` + numDec, Currency: "USD"},
		{Name: "euro-symbol", Regex: `€\s*` + numDec, Currency: "EUR"},
		{Name: "pound-symbol", Regex: `£\s*` + numDec, Currency: "GBP"},
		{Name: "labelled", Regex: `(?i)(?:ご利用金額|利用金額|請求金額|金額|amount|total)[:：]?\s*` + numDec},
	}
}
