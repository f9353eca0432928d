package hub

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"i3pm/internal/domain/events"
	"i3pm/internal/testutil"
)

// eventually polls cond until it holds or the deadline passes. Hub
// registration and delivery run on the hub goroutine, so tests wait
// instead of sleeping fixed amounts.
func eventually(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never satisfied")
}

func startedHub(t *testing.T) *Hub {
	t.Helper()
	h := New()
	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = h.Stop() })
	return h
}

func TestHub_StartStop(t *testing.T) {
	h := New()
	if h.IsRunning() {
		t.Error("new hub must not be running")
	}

	if err := h.Start(); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if !h.IsRunning() {
		t.Error("hub must be running after Start()")
	}
	if err := h.Start(); err != nil {
		t.Fatalf("second Start() error = %v", err)
	}

	if err := h.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if h.IsRunning() {
		t.Error("hub must not be running after Stop()")
	}
	if err := h.Stop(); err != nil {
		t.Fatalf("second Stop() error = %v", err)
	}
}

func TestHub_SubscribeUnsubscribe(t *testing.T) {
	h := startedHub(t)

	sub := testutil.NewMockSubscriber("cli-1")
	h.Subscribe(sub)
	eventually(t, func() bool { return h.SubscriberCount() == 1 })

	h.Unsubscribe("cli-1")
	eventually(t, func() bool { return h.SubscriberCount() == 0 })

	if !sub.IsClosed() {
		t.Error("unsubscribed client must be closed")
	}
}

func TestHub_Publish(t *testing.T) {
	h := startedHub(t)

	sub := testutil.NewMockSubscriber("cli-1")
	h.Subscribe(sub)
	eventually(t, func() bool { return h.SubscriberCount() == 1 })

	h.Publish(events.NewProjectSwitchedEvent("web", "ops"))
	eventually(t, func() bool { return sub.EventCount() == 1 })

	if got := sub.Events()[0].Type(); got != events.EventTypeProjectSwitched {
		t.Errorf("event type = %v, want %v", got, events.EventTypeProjectSwitched)
	}
}

func TestHub_FanOut(t *testing.T) {
	h := startedHub(t)

	subs := []*testutil.MockSubscriber{
		testutil.NewMockSubscriber("cli-1"),
		testutil.NewMockSubscriber("cli-2"),
		testutil.NewMockSubscriber("cli-3"),
	}
	for _, sub := range subs {
		h.Subscribe(sub)
	}
	eventually(t, func() bool { return h.SubscriberCount() == 3 })

	for i := 0; i < 5; i++ {
		h.Publish(events.NewWindowTrackedEvent(int64(100+i), "web", "editor", "launch"))
	}

	for _, sub := range subs {
		sub := sub
		eventually(t, func() bool { return sub.EventCount() == 5 })
	}
}

func TestHub_FailedSendRemovesSubscriber(t *testing.T) {
	h := startedHub(t)

	broken := testutil.NewMockSubscriber("broken")
	broken.SetSendError(errors.New("transport gone"))
	healthy := testutil.NewMockSubscriber("healthy")

	h.Subscribe(broken)
	h.Subscribe(healthy)
	eventually(t, func() bool { return h.SubscriberCount() == 2 })

	h.Publish(events.NewDaemonStateEvent("running"))

	// The failing client is dropped; the healthy one keeps receiving.
	eventually(t, func() bool { return h.SubscriberCount() == 1 })
	eventually(t, func() bool { return healthy.EventCount() == 1 })
}

func TestHub_ConcurrentPublish(t *testing.T) {
	h := startedHub(t)

	const publishers = 10
	const perPublisher = 100

	subs := make([]*testutil.MockSubscriber, publishers)
	for i := range subs {
		subs[i] = testutil.NewMockSubscriber(fmt.Sprintf("cli-%d", i))
		h.Subscribe(subs[i])
	}
	eventually(t, func() bool { return h.SubscriberCount() == publishers })

	var wg sync.WaitGroup
	wg.Add(publishers)
	for i := 0; i < publishers; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < perPublisher; j++ {
				h.Publish(events.NewWindowTrackedEvent(int64(id*1000+j), "web", "term", "adopt"))
			}
		}(i)
	}
	wg.Wait()

	want := publishers * perPublisher
	for _, sub := range subs {
		sub := sub
		eventually(t, func() bool { return sub.EventCount() == want })
	}
}

func TestHub_StopClosesAllSubscribers(t *testing.T) {
	h := New()
	if err := h.Start(); err != nil {
		t.Fatal(err)
	}

	sub1 := testutil.NewMockSubscriber("cli-1")
	sub2 := testutil.NewMockSubscriber("cli-2")
	h.Subscribe(sub1)
	h.Subscribe(sub2)
	eventually(t, func() bool { return h.SubscriberCount() == 2 })

	_ = h.Stop()

	if !sub1.IsClosed() || !sub2.IsClosed() {
		t.Error("Stop() must close every subscriber")
	}
}

func TestHub_SubscriberCount(t *testing.T) {
	h := startedHub(t)

	if h.SubscriberCount() != 0 {
		t.Errorf("initial SubscriberCount() = %d, want 0", h.SubscriberCount())
	}

	for i := 0; i < 5; i++ {
		h.Subscribe(testutil.NewMockSubscriber(fmt.Sprintf("cli-%d", i)))
	}
	eventually(t, func() bool { return h.SubscriberCount() == 5 })
}
