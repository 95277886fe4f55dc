package topic

import "testing"

func TestAnalyzeQuickActionPhrases(t *testing.T) {
	cases := map[string]Label{
		"查询BTC价格": Price,
		"买入ETH":   Buy,
		"查看市场趋势":  Trend,
		"我的持仓":    Portfolio,
	}
	for text, want := range cases {
		if got := Analyze(text); got != want {
			t.Fatalf("%s: expected %s, got %s", text, want, got)
		}
	}
}

func TestAnalyzeSellDirective(t *testing.T) {
	for _, text := range []string{"卖出BTC", "帮我清仓ETH", "sell bnb"} {
		if got := Analyze(text); got != Sell {
			t.Fatalf("%s: expected sell topic, got %s", text, got)
		}
	}
}

func TestAnalyzeUnknown(t *testing.T) {
	if got := Analyze("你好"); got != Unknown {
		t.Fatalf("expected unknown topic, got %s", got)
	}
	if got := Analyze("   "); got != Unknown {
		t.Fatalf("expected unknown for blank input, got %s", got)
	}
}
