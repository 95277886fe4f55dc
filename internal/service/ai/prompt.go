package ai

import (
	"fmt"
	"strings"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/market"
)

const assistantPersona = `你是 CryptoCanvas 的专属加密货币交易助手。你帮助新手用户查询价格、分析市场趋势、解读持仓，并在用户提出买卖意图时给出清晰的操作建议。`

var assistantRules = []string{
	"只使用下方提供的行情与持仓数据回答，不要编造其他价格",
	"回答简洁，优先给出结论，再给出一到两条理由",
	"涉及买入或卖出时提醒用户注意风险，不承诺收益",
	"用户的问题与交易无关时，礼貌地引导回交易话题",
	"使用简体中文回复",
}

// PromptBuilder renders the system prompt from the current market snapshot.
type PromptBuilder struct {
	market market.Store
}

// NewPromptBuilder creates a prompt builder over store.
func NewPromptBuilder(store market.Store) *PromptBuilder {
	return &PromptBuilder{market: store}
}

// BuildSystemPrompt creates the system prompt for the trading assistant.
func (b *PromptBuilder) BuildSystemPrompt() string {
	var builder strings.Builder
	builder.WriteString(assistantPersona)
	builder.WriteString("\n\n对话规则：\n- ")
	builder.WriteString(strings.Join(assistantRules, "\n- "))

	if b.market == nil {
		return builder.String()
	}

	builder.WriteString("\n\n当前行情：")
	for _, pair := range b.market.Pairs() {
		builder.WriteString(fmt.Sprintf("\n- %s：$%.2f（24h %+.1f%%）", pair.Symbol, pair.Price, pair.Change))
	}

	portfolio := b.market.Portfolio()
	builder.WriteString(fmt.Sprintf("\n\n用户资产：总价值 $%.2f，可用余额 $%.2f，今日盈亏 %+.2f（%+.2f%%）",
		portfolio.TotalValue, portfolio.AvailableBalance, portfolio.TodayPnL, portfolio.TodayPnLPercent))
	for _, asset := range portfolio.Assets {
		builder.WriteString(fmt.Sprintf("\n- %s：持有 %g，价值 $%.2f，占比 %.1f%%", asset.Symbol, asset.Amount, asset.Value, asset.Allocation))
	}

	if orders := b.market.OpenOrders(); len(orders) > 0 {
		builder.WriteString("\n\n当前委托：")
		for _, order := range orders {
			builder.WriteString(fmt.Sprintf("\n- %s %s %g @ %.2f（%s）", order.Pair, sideName(order.Side), order.Amount, order.Price, order.Status))
		}
	}

	return builder.String()
}

func sideName(side string) string {
	switch side {
	case "buy":
		return "买入"
	case "sell":
		return "卖出"
	default:
		return side
	}
}
