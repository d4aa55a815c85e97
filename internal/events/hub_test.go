package events

import (
	"strconv"
	"sync"
	"testing"
)

func TestHub_PublishReachesSubscribers(t *testing.T) {
	h := NewHub("dev_1", nil)
	a := h.Register("tab-1")
	b := h.Register("tab-2")

	h.Publish(Event{Type: KindNotice, Data: "hello"})

	for _, ch := range []<-chan Event{a, b} {
		e := <-ch
		if e.Type != KindNotice || e.Data != "hello" {
			t.Errorf("unexpected event %+v", e)
		}
	}
}

func TestHub_RegisterReplacesTab(t *testing.T) {
	h := NewHub("dev_1", nil)
	old := h.Register("tab-1")
	cur := h.Register("tab-1")

	if _, open := <-old; open {
		t.Error("expected replaced subscriber to be closed")
	}
	if h.Count() != 1 {
		t.Errorf("expected 1 subscriber, got %d", h.Count())
	}

	// A stale unregister must not remove the current subscriber.
	h.Unregister("tab-1", old)
	if h.Count() != 1 {
		t.Errorf("expected stale unregister to be ignored, got %d subscribers", h.Count())
	}

	h.Unregister("tab-1", cur)
	if h.Count() != 0 {
		t.Errorf("expected 0 subscribers, got %d", h.Count())
	}
}

func TestHub_SlowSubscriberDoesNotBlock(t *testing.T) {
	h := NewHub("dev_1", nil)
	ch := h.Register("tab-1")

	for i := 0; i < subscriberBuffer*2; i++ {
		h.Publish(Event{Type: KindNotice})
	}
	if len(ch) != subscriberBuffer {
		t.Errorf("expected buffer to be full at %d, got %d", subscriberBuffer, len(ch))
	}
}

func TestHub_Close(t *testing.T) {
	h := NewHub("dev_1", nil)
	ch := h.Register("tab-1")
	h.Close()
	h.Close()

	if _, open := <-ch; open {
		t.Error("expected channel closed")
	}
	if _, open := <-h.Register("tab-2"); open {
		t.Error("expected register after close to return a closed channel")
	}
	h.Publish(Event{Type: KindNotice})
}

func TestHub_ConcurrentAccess(t *testing.T) {
	h := NewHub("dev_1", nil)
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(2)
		go func(i int) {
			defer wg.Done()
			tab := "tab-" + strconv.Itoa(i)
			ch := h.Register(tab)
			h.Unregister(tab, ch)
		}(i)
		go func() {
			defer wg.Done()
			h.Publish(Event{Type: KindAuth})
		}()
	}
	wg.Wait()
}
