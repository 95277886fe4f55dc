package assistant_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/zhouzirui/crypto-canvas/backend/internal/model/chat"
	"github.com/zhouzirui/crypto-canvas/backend/internal/service/assistant"
)

func fixedPolicy(body string) assistant.ResponsePolicy {
	return assistant.PolicyFunc(func(context.Context, assistant.Request) (string, error) {
		return body, nil
	})
}

func blockingPolicy() assistant.ResponsePolicy {
	return assistant.PolicyFunc(func(ctx context.Context, _ assistant.Request) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	})
}

func newTestSession(t *testing.T, policy assistant.ResponsePolicy, opts assistant.Options) *assistant.Session {
	t.Helper()
	svc := assistant.NewService(policy, opts)
	t.Cleanup(svc.Close)

	session, err := svc.CreateSession(context.Background())
	require.NoError(t, err)
	return session
}

func waitIdle(t *testing.T, session *assistant.Session) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(t, session.Wait(ctx))
}

func TestNewSessionIsSeeded(t *testing.T) {
	session := newTestSession(t, fixedPolicy("ok"), assistant.Options{})

	snapshot := session.Snapshot()
	require.Len(t, snapshot.Transcript, 2)
	require.Equal(t, chat.RoleSystem, snapshot.Transcript[0].Role)
	require.Equal(t, chat.RoleAssistant, snapshot.Transcript[1].Role)
	require.False(t, snapshot.Pending)
	require.Equal(t, chat.StateIdle, snapshot.State)
}

func TestSubmitAppendsUserMessageThenReply(t *testing.T) {
	session := newTestSession(t, fixedPolicy("BTC 当前价格为 $35,000"), assistant.Options{Delay: 50 * time.Millisecond})

	msg, err := session.Submit(context.Background(), "查询BTC价格")
	require.NoError(t, err)
	require.Equal(t, chat.RoleUser, msg.Role)
	require.Equal(t, "查询BTC价格", msg.Body)

	require.Len(t, session.Transcript(), 3)
	require.True(t, session.Pending())
	require.Equal(t, chat.StateAwaitingResponse, session.Snapshot().State)

	waitIdle(t, session)

	transcript := session.Transcript()
	require.Len(t, transcript, 4)
	require.False(t, session.Pending())
	require.Equal(t, chat.RoleAssistant, transcript[3].Role)
	require.Equal(t, chat.KindText, transcript[3].Kind)
	require.Equal(t, "BTC 当前价格为 $35,000", transcript[3].Body)
	require.Equal(t, msg.ID, transcript[2].ID)
}

func TestSubmitBlankInputIsNoop(t *testing.T) {
	session := newTestSession(t, fixedPolicy("ok"), assistant.Options{})
	require.NoError(t, session.SetDraft("   "))

	for _, text := range []string{"", "   ", "\t\n"} {
		_, err := session.Submit(context.Background(), text)
		require.ErrorIs(t, err, assistant.ErrEmptyInput)
	}

	snapshot := session.Snapshot()
	require.Len(t, snapshot.Transcript, 2)
	require.False(t, snapshot.Pending)
	require.Equal(t, "   ", snapshot.Draft)
}

func TestQuickActionMatchesSubmit(t *testing.T) {
	opts := assistant.Options{Delay: time.Millisecond}
	viaSubmit := newTestSession(t, fixedPolicy("ok"), opts)
	viaAction := newTestSession(t, fixedPolicy("ok"), opts)

	_, err := viaSubmit.Submit(context.Background(), "买入ETH")
	require.NoError(t, err)
	_, err = viaAction.QuickAction(context.Background(), "买入ETH")
	require.NoError(t, err)

	waitIdle(t, viaSubmit)
	waitIdle(t, viaAction)

	a, b := viaSubmit.Transcript(), viaAction.Transcript()
	require.Len(t, b, len(a))
	for i := range a {
		require.Equal(t, a[i].Role, b[i].Role)
		require.Equal(t, a[i].Body, b[i].Body)
	}
}

func TestSubmitClearsDraft(t *testing.T) {
	session := newTestSession(t, fixedPolicy("ok"), assistant.Options{})

	require.NoError(t, session.SetDraft("查看市场"))
	require.Equal(t, "查看市场", session.Snapshot().Draft)

	_, err := session.Submit(context.Background(), "查看市场趋势")
	require.NoError(t, err)
	require.Empty(t, session.Snapshot().Draft)
	waitIdle(t, session)
}

func TestRepliesKeepSubmissionOrder(t *testing.T) {
	var active, maxActive int32
	policy := assistant.PolicyFunc(func(ctx context.Context, req assistant.Request) (string, error) {
		n := atomic.AddInt32(&active, 1)
		defer atomic.AddInt32(&active, -1)
		for {
			cur := atomic.LoadInt32(&maxActive)
			if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
				break
			}
		}
		// Earlier prompts take longer so an unserialised design would reorder them.
		if req.Prompt == "first" {
			time.Sleep(30 * time.Millisecond)
		}
		return "reply:" + req.Prompt, nil
	})
	session := newTestSession(t, policy, assistant.Options{Delay: time.Millisecond})

	prompts := []string{"first", "second", "third"}
	for _, p := range prompts {
		_, err := session.Submit(context.Background(), p)
		require.NoError(t, err)
	}
	require.True(t, session.Pending())

	waitIdle(t, session)

	var replies []string
	for _, msg := range session.Transcript()[2:] {
		if msg.Role == chat.RoleAssistant {
			replies = append(replies, msg.Body)
		}
	}
	require.Equal(t, []string{"reply:first", "reply:second", "reply:third"}, replies)
	require.EqualValues(t, 1, atomic.LoadInt32(&maxActive))
}

func TestRequestHistoryEndsWithUserMessage(t *testing.T) {
	var mu sync.Mutex
	var seen []chat.Message
	policy := assistant.PolicyFunc(func(_ context.Context, req assistant.Request) (string, error) {
		mu.Lock()
		seen = req.History
		mu.Unlock()
		return "ok", nil
	})
	session := newTestSession(t, policy, assistant.Options{})

	_, err := session.Submit(context.Background(), "我的持仓")
	require.NoError(t, err)
	waitIdle(t, session)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 3)
	require.Equal(t, "我的持仓", seen[2].Body)
}

func TestResponderTimeoutAppendsErrorMessage(t *testing.T) {
	session := newTestSession(t, blockingPolicy(), assistant.Options{Timeout: 20 * time.Millisecond})

	_, err := session.Submit(context.Background(), "查询BTC价格")
	require.NoError(t, err)
	waitIdle(t, session)

	transcript := session.Transcript()
	require.Len(t, transcript, 4)
	require.True(t, transcript[3].IsError())
	require.Equal(t, chat.RoleAssistant, transcript[3].Role)
	require.False(t, session.Pending())
	require.ErrorIs(t, session.LastError(), assistant.ErrResponderTimeout)
}

func TestResponderUnavailableIsRetried(t *testing.T) {
	var calls int32
	policy := assistant.PolicyFunc(func(context.Context, assistant.Request) (string, error) {
		if atomic.AddInt32(&calls, 1) < 3 {
			return "", fmt.Errorf("upstream 503: %w", assistant.ErrResponderUnavailable)
		}
		return "ok", nil
	})
	session := newTestSession(t, policy, assistant.Options{RetryAttempts: 2, RetryBackoff: time.Millisecond})

	_, err := session.Submit(context.Background(), "查看市场趋势")
	require.NoError(t, err)
	waitIdle(t, session)

	transcript := session.Transcript()
	require.Equal(t, "ok", transcript[len(transcript)-1].Body)
	require.EqualValues(t, 3, atomic.LoadInt32(&calls))
	require.NoError(t, session.LastError())
}

func TestResponderUnavailableSurfacesAfterRetries(t *testing.T) {
	var calls int32
	policy := assistant.PolicyFunc(func(context.Context, assistant.Request) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", assistant.ErrResponderUnavailable
	})
	session := newTestSession(t, policy, assistant.Options{RetryAttempts: 1, RetryBackoff: time.Millisecond})

	var mu sync.Mutex
	var errorEvents []error
	unsubscribe := session.Subscribe(func(evt assistant.Event) {
		if evt.Type == assistant.EventError {
			mu.Lock()
			errorEvents = append(errorEvents, evt.Err)
			mu.Unlock()
		}
	})
	defer unsubscribe()

	_, err := session.Submit(context.Background(), "买入ETH")
	require.NoError(t, err)
	waitIdle(t, session)

	require.EqualValues(t, 2, atomic.LoadInt32(&calls))
	transcript := session.Transcript()
	require.True(t, transcript[len(transcript)-1].IsError())
	require.False(t, session.Pending())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(errorEvents) == 1 && errors.Is(errorEvents[0], assistant.ErrResponderUnavailable)
	}, time.Second, 5*time.Millisecond)
}

func TestCancelReturnsToIdleWithoutReply(t *testing.T) {
	session := newTestSession(t, blockingPolicy(), assistant.Options{})

	_, err := session.Submit(context.Background(), "first")
	require.NoError(t, err)
	_, err = session.Submit(context.Background(), "second")
	require.NoError(t, err)
	require.True(t, session.Pending())

	require.NoError(t, session.Cancel())
	require.False(t, session.Pending())
	waitIdle(t, session)

	time.Sleep(20 * time.Millisecond)
	transcript := session.Transcript()
	require.Len(t, transcript, 4)
	require.Equal(t, chat.RoleUser, transcript[3].Role)
	require.NoError(t, session.LastError())
}

func TestResponderFailureIsNotRetried(t *testing.T) {
	boom := errors.New("boom")
	var calls int32
	policy := assistant.PolicyFunc(func(context.Context, assistant.Request) (string, error) {
		atomic.AddInt32(&calls, 1)
		return "", boom
	})
	session := newTestSession(t, policy, assistant.Options{RetryAttempts: 3, RetryBackoff: time.Millisecond})

	_, err := session.Submit(context.Background(), "查询BTC价格")
	require.NoError(t, err)
	waitIdle(t, session)

	require.EqualValues(t, 1, atomic.LoadInt32(&calls))
	transcript := session.Transcript()
	last := transcript[len(transcript)-1]
	require.True(t, last.IsError())
	require.Equal(t, chat.RoleAssistant, last.Role)
	require.Equal(t, "交易助手处理失败，请稍后重试。", last.Body)
	require.ErrorIs(t, session.LastError(), boom)
	require.False(t, session.Pending())
}

func TestCancelDiscardsLateReply(t *testing.T) {
	started := make(chan struct{}, 1)
	policy := assistant.PolicyFunc(func(_ context.Context, req assistant.Request) (string, error) {
		if req.Prompt == "old" {
			started <- struct{}{}
			// Ignores ctx so the reply arrives after the cancel.
			time.Sleep(100 * time.Millisecond)
		}
		return "reply:" + req.Prompt, nil
	})
	session := newTestSession(t, policy, assistant.Options{})

	_, err := session.Submit(context.Background(), "old")
	require.NoError(t, err)
	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("policy was not called")
	}

	require.NoError(t, session.Cancel())
	_, err = session.Submit(context.Background(), "new")
	require.NoError(t, err)
	waitIdle(t, session)

	// Let the abandoned call finish.
	time.Sleep(150 * time.Millisecond)

	type entry struct {
		role chat.Role
		body string
	}
	var got []entry
	for _, msg := range session.Transcript()[2:] {
		got = append(got, entry{role: msg.Role, body: msg.Body})
	}
	require.Equal(t, []entry{
		{chat.RoleUser, "old"},
		{chat.RoleUser, "new"},
		{chat.RoleAssistant, "reply:new"},
	}, got)
	require.False(t, session.Pending())
	require.NoError(t, session.LastError())
}

func TestSubscribeReceivesRenderEvents(t *testing.T) {
	session := newTestSession(t, fixedPolicy("ok"), assistant.Options{Delay: time.Millisecond})

	var mu sync.Mutex
	var events []assistant.Event
	unsubscribe := session.Subscribe(func(evt assistant.Event) {
		mu.Lock()
		events = append(events, evt)
		mu.Unlock()
	})
	defer unsubscribe()

	_, err := session.Submit(context.Background(), "我的持仓")
	require.NoError(t, err)
	waitIdle(t, session)

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(events) == 2
	}, time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	require.True(t, events[0].Snapshot.Pending)
	require.Len(t, events[0].Snapshot.Transcript, 3)
	require.False(t, events[1].Snapshot.Pending)
	require.Len(t, events[1].Snapshot.Transcript, 4)
}

func TestSubscribeWithSnapshotNeverReplaysOlderState(t *testing.T) {
	session := newTestSession(t, fixedPolicy("ok"), assistant.Options{})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 30; i++ {
			_, _ = session.Submit(context.Background(), fmt.Sprintf("msg-%d", i))
		}
	}()

	for i := 0; i < 20; i++ {
		var mu sync.Mutex
		var lengths []int
		initial, unsubscribe := session.SubscribeWithSnapshot(func(evt assistant.Event) {
			mu.Lock()
			lengths = append(lengths, len(evt.Snapshot.Transcript))
			mu.Unlock()
		})
		time.Sleep(time.Millisecond)
		unsubscribe()

		mu.Lock()
		for _, n := range lengths {
			require.GreaterOrEqual(t, n, len(initial.Transcript))
		}
		mu.Unlock()
	}

	<-done
	waitIdle(t, session)
}

func TestMessageIDsIncrease(t *testing.T) {
	session := newTestSession(t, fixedPolicy("ok"), assistant.Options{})

	for i := 0; i < 5; i++ {
		_, err := session.Submit(context.Background(), fmt.Sprintf("msg-%d", i))
		require.NoError(t, err)
	}
	waitIdle(t, session)

	transcript := session.Transcript()
	for i := 1; i < len(transcript); i++ {
		require.Less(t, transcript[i-1].ID, transcript[i].ID)
	}
}

func TestClosedSessionRejectsCalls(t *testing.T) {
	session := newTestSession(t, fixedPolicy("ok"), assistant.Options{})
	session.Close()

	_, err := session.Submit(context.Background(), "查询BTC价格")
	require.ErrorIs(t, err, assistant.ErrSessionClosed)
	require.ErrorIs(t, session.SetDraft("x"), assistant.ErrSessionClosed)
	require.ErrorIs(t, session.Cancel(), assistant.ErrSessionClosed)
}
