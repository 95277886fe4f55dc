package assistant

import (
	"context"
	"math/rand"
	"sync"
	"time"

	"github.com/zhouzirui/crypto-canvas/backend/internal/analysis/topic"
	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
)

// Request is the input handed to a ResponsePolicy for one user turn.
type Request struct {
	SessionID string
	Prompt    string
	// History holds the transcript up to and including the user message.
	History []chat.Message
}

// ResponsePolicy produces the assistant reply for a user turn.
// Implementations should return an error wrapping ErrResponderUnavailable
// for failures worth retrying.
type ResponsePolicy interface {
	Respond(ctx context.Context, req Request) (string, error)
}

// PolicyFunc adapts a plain function to ResponsePolicy.
type PolicyFunc func(ctx context.Context, req Request) (string, error)

// Respond calls f.
func (f PolicyFunc) Respond(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// CannedResponses are the stand-in replies of the simulated assistant.
var CannedResponses = []string{
	"我已经为您查询了最新的市场数据。当前BTC价格为$35,000，相比昨日上涨了2.1%。根据技术分析，建议您可以考虑适量买入。",
	"基于您的投资组合分析，建议您适当增加ETH的持仓比例。当前ETH价格相对较低，具有较好的投资机会。",
	"市场整体呈现上涨趋势。建议您保持当前的投资策略，并密切关注市场动态。",
	"您的投资组合表现良好！今日收益为$245.80，收益率1.99%。建议继续持有并考虑定投策略。",
}

// CannedPolicy picks uniformly at random among a fixed set of replies.
type CannedPolicy struct {
	mu        sync.Mutex
	rng       *rand.Rand
	responses []string
}

// NewCannedPolicy returns a CannedPolicy over CannedResponses. A nil rng is
// replaced by a time-seeded source.
func NewCannedPolicy(rng *rand.Rand) *CannedPolicy {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &CannedPolicy{rng: rng, responses: append([]string(nil), CannedResponses...)}
}

// Respond returns one canned reply.
func (p *CannedPolicy) Respond(_ context.Context, _ Request) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.responses[p.rng.Intn(len(p.responses))], nil
}

// Sell shares the trend reply: it is the only canned text that does not
// recommend buying.
var topicResponses = map[topic.Label]int{
	topic.Price:     0,
	topic.Buy:       1,
	topic.Sell:      2,
	topic.Trend:     2,
	topic.Portfolio: 3,
}

// KeywordPolicy answers with the canned reply matching the detected topic
// and defers to fallback when no topic matches.
type KeywordPolicy struct {
	fallback ResponsePolicy
}

// NewKeywordPolicy wraps fallback, which defaults to a random CannedPolicy.
func NewKeywordPolicy(fallback ResponsePolicy) *KeywordPolicy {
	if fallback == nil {
		fallback = NewCannedPolicy(nil)
	}
	return &KeywordPolicy{fallback: fallback}
}

func (p *KeywordPolicy) Respond(ctx context.Context, req Request) (string, error) {
	if idx, ok := topicResponses[topic.Analyze(req.Prompt)]; ok {
		return CannedResponses[idx], nil
	}
	return p.fallback.Respond(ctx, req)
}
