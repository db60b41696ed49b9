package pattern

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStoreCompilesDefaults(t *testing.T) {
	store, err := NewStore(Defaults())
	require.NoError(t, err)

	assert.NotEmpty(t, store.Subscriptions())
	assert.NotEmpty(t, store.Issuers())
	assert.NotEmpty(t, store.GenericAmounts())
	assert.NotEmpty(t, store.MerchantLabels())
	assert.NotNil(t, store.StoreSuffix())
}

func TestNewStoreRejectsBadRegex(t *testing.T) {
	_, err := NewStore(Config{
		GenericAmounts: []AmountRule{{Name: "broken", Regex: `([0-9]`}},
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")
}

func TestPatternMatches(t *testing.T) {
	store, err := NewStore(Defaults())
	require.NoError(t, err)

	var netflix *CompiledPattern
	for i := range store.Subscriptions() {
		if store.Subscriptions()[i].ID == "netflix" {
			netflix = &store.Subscriptions()[i]
		}
	}
	require.NotNil(t, netflix)

	tests := []struct {
		name    string
		from    string
		subject string
		want    bool
	}{
		{
			name:    "sender and subject match",
			from:    "info@account.netflix.com",
			subject: "Netflixのお支払いが完了しました",
			want:    true,
		},
		{
			name:    "case-insensitive sender",
			from:    "INFO@ACCOUNT.NETFLIX.COM",
			subject: "Payment receipt",
			want:    true,
		},
		{
			name:    "sender matches but subject does not",
			from:    "info@account.netflix.com",
			subject: "新作のお知らせ",
			want:    false,
		},
		{
			name:    "subject matches but sender does not",
			from:    "billing@example.com",
			subject: "お支払いのご確認",
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, netflix.Matches(tt.from, tt.subject))
		})
	}
}

func TestExtractAmountFirstRuleWins(t *testing.T) {
	store, err := NewStore(Defaults())
	require.NoError(t, err)

	var jcb *CompiledPattern
	for i := range store.Issuers() {
		if store.Issuers()[i].ID == "jcb" {
			jcb = &store.Issuers()[i]
		}
	}
	require.NotNil(t, jcb)

	// The labelled rule outranks the bare yen-symbol rule.
	amount, ok := jcb.ExtractAmount("ご利用金額：12,800円\n参考：¥999")
	require.True(t, ok)
	assert.Equal(t, "12,800", amount)

	_, ok = jcb.ExtractAmount("金額の記載がありません")
	assert.False(t, ok)
}

func TestExtractMerchant(t *testing.T) {
	store, err := NewStore(Defaults())
	require.NoError(t, err)

	var rakuten *CompiledPattern
	for i := range store.Issuers() {
		if store.Issuers()[i].ID == "rakuten-card" {
			rakuten = &store.Issuers()[i]
		}
	}
	require.NotNil(t, rakuten)

	merchant, ok := rakuten.ExtractMerchant("■利用先: Amazon.co.jp")
	require.True(t, ok)
	assert.Equal(t, "Amazon.co.jp", merchant)
}

func TestGenericAmountRulePriority(t *testing.T) {
	store, err := NewStore(Defaults())
	require.NoError(t, err)

	rules := store.GenericAmounts()
	require.NotEmpty(t, rules)
	// JPY forms first, currency-agnostic labelled rule last.
	assert.Equal(t, "JPY", rules[0].Currency)
	assert.Empty(t, rules[len(rules)-1].Currency)

	text := "ご請求のご案内 ¥1,490 をお支払いください"
	amount, matched, ok := rules[0].Find(text)
	require.True(t, ok)
	assert.Equal(t, "1,490", amount)
	assert.Contains(t, matched, "¥")
}

func TestDefaultKeywords(t *testing.T) {
	kw := DefaultKeywords()
	assert.NotEmpty(t, kw.Transport)
	assert.NotEmpty(t, kw.Food)
}
