package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server    ServerConfig
	Assistant AssistantConfig
	AI        AIConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	assistant, err := loadAssistantConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, Assistant: assistant, AI: ai}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr            string
	StreamHeartbeat time.Duration
}

// loadServerConfig 解析服务器监听地址与事件流心跳间隔。
func loadServerConfig() (ServerConfig, error) {
	heartbeat, err := parseDurationMsEnv("SSE_HEARTBEAT_MS", 15*time.Second)
	if err != nil {
		return ServerConfig{}, err
	}

	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, StreamHeartbeat: heartbeat}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, StreamHeartbeat: heartbeat}, nil
}

// Policy 名称决定助手回复的生成方式。
const (
	PolicyRandom  = "random"
	PolicyKeyword = "keyword"
	PolicyLLM     = "llm"
)

// AssistantConfig 描述会话助手的待回复阶段配置。
type AssistantConfig struct {
	Policy           string
	ResponseDelay    time.Duration
	ResponderTimeout time.Duration
	RetryAttempts    int
	RetryBackoff     time.Duration
}

func loadAssistantConfig() (AssistantConfig, error) {
	policy := strings.ToLower(getEnvOrDefault("ASSISTANT_POLICY", PolicyKeyword))
	switch policy {
	case PolicyRandom, PolicyKeyword, PolicyLLM:
	default:
		return AssistantConfig{}, fmt.Errorf("invalid ASSISTANT_POLICY value: %q", policy)
	}

	delay, err := parseDurationMsEnv("ASSISTANT_RESPONSE_DELAY_MS", 1500*time.Millisecond)
	if err != nil {
		return AssistantConfig{}, err
	}

	timeout, err := parseDurationMsEnv("ASSISTANT_RESPONDER_TIMEOUT_MS", 30*time.Second)
	if err != nil {
		return AssistantConfig{}, err
	}

	backoff, err := parseDurationMsEnv("ASSISTANT_RETRY_BACKOFF_MS", 200*time.Millisecond)
	if err != nil {
		return AssistantConfig{}, err
	}

	attempts := 2
	if override, err := parseOptionalIntEnv("ASSISTANT_RETRY_ATTEMPTS"); err != nil {
		return AssistantConfig{}, err
	} else if override != nil {
		if *override < 0 {
			return AssistantConfig{}, fmt.Errorf("invalid ASSISTANT_RETRY_ATTEMPTS value: %d", *override)
		}
		attempts = *override
	}

	return AssistantConfig{
		Policy:           policy,
		ResponseDelay:    delay,
		ResponderTimeout: timeout,
		RetryAttempts:    attempts,
		RetryBackoff:     backoff,
	}, nil
}

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	APIKey             string
	AccessKey          string
	SecretKey          string
	Model              string
	BaseURL            string
	Region             string
	Temperature        *float64
	TopP               *float64
	MaxTokens          *int
	StreamResponse     bool
	HistoryLimit       int
	HistoryTokenBudget int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, fmt.Errorf("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + Model 或 AK/SK 组合")
	}

	var temperature *float32
	if c.Temperature != nil {
		val := float32(*c.Temperature)
		temperature = &val
	}

	var topP *float32
	if c.TopP != nil {
		val := float32(*c.TopP)
		topP = &val
	}

	var maxTokens *int
	if c.MaxTokens != nil {
		val := *c.MaxTokens
		maxTokens = &val
	}

	cfg := &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   maxTokens,
		Temperature: temperature,
		TopP:        topP,
	}

	return ark.NewChatModel(ctx, cfg)
}

func loadAIConfig() (AIConfig, error) {
	temperature, err := parseOptionalFloatEnv("ARK_TEMPERATURE")
	if err != nil {
		return AIConfig{}, err
	}

	topP, err := parseOptionalFloatEnv("ARK_TOP_P")
	if err != nil {
		return AIConfig{}, err
	}

	maxTokens, err := parseOptionalIntEnv("ARK_MAX_TOKENS")
	if err != nil {
		return AIConfig{}, err
	}

	stream, err := parseBoolEnv("ARK_STREAM", false)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := 10
	if historyOverride, err := parseOptionalIntEnv("AI_HISTORY_LIMIT"); err != nil {
		return AIConfig{}, err
	} else if historyOverride != nil {
		if *historyOverride < 1 {
			historyLimit = 1
		} else {
			historyLimit = *historyOverride
		}
	}

	tokenBudget := 2048
	if budgetOverride, err := parseOptionalIntEnv("AI_HISTORY_TOKEN_BUDGET"); err != nil {
		return AIConfig{}, err
	} else if budgetOverride != nil {
		tokenBudget = *budgetOverride
	}

	return AIConfig{
		APIKey:             strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:          strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:          strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:              strings.TrimSpace(os.Getenv("Model")),
		BaseURL:            getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:             getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:        temperature,
		TopP:               topP,
		MaxTokens:          maxTokens,
		StreamResponse:     stream,
		HistoryLimit:       historyLimit,
		HistoryTokenBudget: tokenBudget,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

// parseDurationMsEnv 以毫秒解析时长，负数视为非法。
func parseDurationMsEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	ms, err := parseOptionalIntEnv(key)
	if err != nil {
		return 0, err
	}
	if ms == nil {
		return defaultValue, nil
	}
	if *ms < 0 {
		return 0, fmt.Errorf("invalid %s value: %d", key, *ms)
	}
	return time.Duration(*ms) * time.Millisecond, nil
}
