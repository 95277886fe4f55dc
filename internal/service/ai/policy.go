package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strings"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/zhouzirui/crypto-canvas/backend/internal/config"
	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
	"github.com/zhouzirui/crypto-canvas/backend/internal/model/market"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/assistant"
)

// Policy answers assistant turns with an eino chat chain.
type Policy struct {
	cfg       config.AIConfig
	chain     compose.Runnable[map[string]any, *schema.Message]
	prompts   *PromptBuilder
	tokenizer *Tokenizer
}

// NewPolicy creates the Ark-backed response policy.
func NewPolicy(ctx context.Context, store market.Store, cfg config.AIConfig) (*Policy, error) {
	chatModel, err := cfg.NewChatModel(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model: %w", err)
	}
	return NewPolicyWithModel(ctx, chatModel, store, cfg, NewTokenizer())
}

// NewPolicyWithModel compiles the chat chain around an existing model.
func NewPolicyWithModel(ctx context.Context, chatModel model.BaseChatModel, store market.Store, cfg config.AIConfig, tokenizer *Tokenizer) (*Policy, error) {
	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", true),
		schema.UserMessage("{query}"),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain: %w", err)
	}

	if tokenizer == nil {
		tokenizer = &Tokenizer{}
	}

	return &Policy{
		cfg:       cfg,
		chain:     runnable,
		prompts:   NewPromptBuilder(store),
		tokenizer: tokenizer,
	}, nil
}

// Respond implements assistant.ResponsePolicy. Chain failures are reported
// as assistant.ErrResponderUnavailable so the session retries them.
func (p *Policy) Respond(ctx context.Context, req assistant.Request) (string, error) {
	input := p.buildChainInput(req)

	var (
		response *schema.Message
		err      error
	)
	if p.cfg.StreamResponse {
		response, err = p.stream(ctx, input)
	} else {
		response, err = p.chain.Invoke(ctx, input)
	}
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", fmt.Errorf("%w: failed to run AI chain: %v", assistant.ErrResponderUnavailable, err)
	}

	content := ""
	if response != nil {
		content = strings.TrimSpace(response.Content)
	}
	if content == "" {
		return "", fmt.Errorf("%w: empty model response", assistant.ErrResponderUnavailable)
	}

	log.Printf("[ai] generated response for session=%s, length=%d", req.SessionID, len(content))
	return content, nil
}

func (p *Policy) stream(ctx context.Context, input map[string]any) (*schema.Message, error) {
	stream, err := p.chain.Stream(ctx, input)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	chunks := make([]*schema.Message, 0, 8)
	for {
		chunk, recvErr := stream.Recv()
		if errors.Is(recvErr, io.EOF) {
			break
		}
		if recvErr != nil {
			return nil, recvErr
		}
		if chunk != nil {
			chunks = append(chunks, chunk)
		}
	}
	if len(chunks) == 0 {
		return nil, nil
	}
	return schema.ConcatMessages(chunks)
}

func (p *Policy) buildChainInput(req assistant.Request) map[string]any {
	return map[string]any{
		"system":  p.prompts.BuildSystemPrompt(),
		"history": p.buildHistoryMessages(req.History),
		"query":   req.Prompt,
	}
}

// buildHistoryMessages keeps the most recent exchanges that fit both the
// message limit and the token budget. The trailing user message is the
// query itself and is not repeated.
func (p *Policy) buildHistoryMessages(messages []chat.Message) []*schema.Message {
	if n := len(messages); n > 0 && messages[n-1].Role == chat.RoleUser {
		messages = messages[:n-1]
	}

	eligible := make([]chat.Message, 0, len(messages))
	for _, msg := range messages {
		if msg.IsError() || msg.Role == chat.RoleSystem {
			continue
		}
		eligible = append(eligible, msg)
	}

	limit := p.cfg.HistoryLimit
	if limit > 0 && len(eligible) > limit {
		eligible = eligible[len(eligible)-limit:]
	}

	if budget := p.cfg.HistoryTokenBudget; budget > 0 {
		total := 0
		start := len(eligible)
		for start > 0 {
			cost := p.tokenizer.CountMessageTokens(eligible[start-1])
			if total+cost > budget {
				break
			}
			total += cost
			start--
		}
		eligible = eligible[start:]
	}

	if len(eligible) == 0 {
		return nil
	}

	history := make([]*schema.Message, 0, len(eligible))
	for _, msg := range eligible {
		switch msg.Role {
		case chat.RoleUser:
			history = append(history, schema.UserMessage(msg.Body))
		case chat.RoleAssistant:
			history = append(history, schema.AssistantMessage(msg.Body, nil))
		}
	}
	return history
}
