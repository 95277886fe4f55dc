package assistant_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/assistant"
)

func TestServiceGetSession(t *testing.T) {
	svc := assistant.NewService(nil, assistant.Options{})
	defer svc.Close()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	got, err := svc.GetSession(ctx, session.ID())
	require.NoError(t, err)
	require.Same(t, session, got)
}

func TestServiceGetSessionNotFound(t *testing.T) {
	svc := assistant.NewService(nil, assistant.Options{})
	defer svc.Close()

	_, err := svc.GetSession(context.Background(), "missing")
	require.ErrorIs(t, err, assistant.ErrSessionNotFound)
}

func TestServiceCloseSession(t *testing.T) {
	svc := assistant.NewService(nil, assistant.Options{})
	defer svc.Close()
	ctx := context.Background()

	session, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	require.NoError(t, svc.CloseSession(ctx, session.ID()))
	_, err = svc.GetSession(ctx, session.ID())
	require.ErrorIs(t, err, assistant.ErrSessionNotFound)
	require.ErrorIs(t, svc.CloseSession(ctx, session.ID()), assistant.ErrSessionNotFound)

	_, err = session.Submit(ctx, "查询BTC价格")
	require.ErrorIs(t, err, assistant.ErrSessionClosed)
}

func TestServiceSessionsAreIsolated(t *testing.T) {
	svc := assistant.NewService(fixedPolicy("ok"), assistant.Options{Delay: time.Millisecond})
	defer svc.Close()
	ctx := context.Background()

	first, err := svc.CreateSession(ctx)
	require.NoError(t, err)
	second, err := svc.CreateSession(ctx)
	require.NoError(t, err)

	_, err = first.Submit(ctx, "买入ETH")
	require.NoError(t, err)
	require.False(t, second.Pending())
	require.Len(t, second.Transcript(), 2)

	waitIdle(t, first)
	require.Len(t, first.Transcript(), 4)

	summaries := svc.ListSessions(ctx)
	require.Len(t, summaries, 2)
	counts := map[string]int{}
	for _, summary := range summaries {
		counts[summary.ID] = summary.MessageCount
		require.Equal(t, chat.StateIdle, summary.State)
	}
	require.Equal(t, 4, counts[first.ID()])
	require.Equal(t, 2, counts[second.ID()])
}
