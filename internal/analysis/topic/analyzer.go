package topic

import "strings"

// Label 表示用户输入所属的交易话题。
type Label string

const (
	Unknown   Label = "unknown"
	Price     Label = "price"
	Buy       Label = "buy"
	Sell      Label = "sell"
	Trend     Label = "trend"
	Portfolio Label = "portfolio"
)

var keywordBuckets = map[Label][]string{
	Price: {
		"价格", "多少钱", "报价", "行情", "现价", "查询", "price", "quote", "how much",
	},
	Buy: {
		"买入", "购买", "买", "加仓", "建仓", "抄底", "定投", "buy", "long", "purchase",
	},
	Sell: {
		"卖出", "卖", "减仓", "清仓", "止盈", "止损", "sell", "short", "dump",
	},
	Trend: {
		"趋势", "走势", "分析", "市场", "涨", "跌", "技术面", "trend", "market", "analysis", "outlook",
	},
	Portfolio: {
		"持仓", "资产", "组合", "收益", "余额", "仓位", "盈亏", "portfolio", "balance", "holdings", "pnl",
	},
}

// 同分时按此顺序取优先级更高的话题，保证结果稳定。
var priority = []Label{Buy, Sell, Portfolio, Price, Trend}

// Analyze 根据关键词推断用户输入的话题。
func Analyze(text string) Label {
	normalized := strings.ToLower(strings.TrimSpace(text))
	if normalized == "" {
		return Unknown
	}

	scores := make(map[Label]int)
	for label, keywords := range keywordBuckets {
		for _, word := range keywords {
			if strings.Contains(normalized, strings.ToLower(word)) {
				scores[label] += 3
			}
		}
	}

	best := Unknown
	bestScore := 0
	for _, label := range priority {
		if scores[label] > bestScore {
			best = label
			bestScore = scores[label]
		}
	}

	return best
}
