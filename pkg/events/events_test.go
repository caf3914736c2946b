package events

import (
	"testing"

	"github.com/uhyunpark/hyperlicked/pkg/clock"
)

func TestPublishDeliversToInterestedSubscriber(t *testing.T) {
	h := NewHub(clock.Wall{}, 4)
	sub := h.Register("client1")
	sub.Subscribe("BTCUSDT")

	h.Publish(Event{Kind: KindTradeExecuted, Symbol: "BTCUSDT"})
	h.Publish(Event{Kind: KindTradeExecuted, Symbol: "ETHUSDT"})

	select {
	case e := <-sub.Events():
		if e.Symbol != "BTCUSDT" {
			t.Fatalf("expected BTCUSDT event, got %s", e.Symbol)
		}
	default:
		t.Fatal("expected one delivered event")
	}

	select {
	case e := <-sub.Events():
		t.Fatalf("should not have received ETHUSDT event, got %+v", e)
	default:
	}
}

func TestSubscriberWithNoFilterReceivesEverything(t *testing.T) {
	h := NewHub(clock.Wall{}, 4)
	sub := h.Register("client1")

	h.Publish(Event{Kind: KindTradeExecuted, Symbol: "BTCUSDT"})
	h.Publish(Event{Kind: KindTradeExecuted, Symbol: "ETHUSDT"})

	count := 0
	for i := 0; i < 2; i++ {
		select {
		case <-sub.Events():
			count++
		default:
		}
	}
	if count != 2 {
		t.Fatalf("expected 2 events with no filter set, got %d", count)
	}
}

func TestLaggedSignalOnOverflow(t *testing.T) {
	h := NewHub(clock.Wall{}, 2)
	sub := h.Register("client1")

	for i := 0; i < 5; i++ {
		h.Publish(Event{Kind: KindTradeExecuted, Symbol: ""})
	}

	var sawLagged bool
	var laggedCount uint64
	for i := 0; i < 2; i++ {
		e := <-sub.Events()
		if e.Kind == KindLagged {
			sawLagged = true
			laggedCount = e.Payload.(Lagged).Count
		}
	}
	if !sawLagged {
		t.Fatal("expected a Lagged event after overflowing a 2-capacity buffer with 5 publishes")
	}
	if laggedCount == 0 {
		t.Fatal("Lagged.Count should report at least one dropped event")
	}
}

func TestUnregisterClosesChannel(t *testing.T) {
	h := NewHub(clock.Wall{}, 4)
	sub := h.Register("client1")
	h.Unregister("client1")

	_, ok := <-sub.Events()
	if ok {
		t.Fatal("channel should be closed after Unregister")
	}
}

func TestAccountScopedEventIgnoresSymbolFilter(t *testing.T) {
	h := NewHub(clock.Wall{}, 4)
	sub := h.Register("client1")
	sub.Subscribe("BTCUSDT")

	h.Publish(Event{Kind: KindWithdrawal, Symbol: "", Payload: WithdrawalStatus{WithdrawalID: "w1", Status: "COMPLETED"}})

	select {
	case e := <-sub.Events():
		if e.Kind != KindWithdrawal {
			t.Fatalf("expected withdrawal event, got %s", e.Kind)
		}
	default:
		t.Fatal("account-scoped event should bypass the symbol filter")
	}
}
