package events

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama"
	"github.com/IBM/sarama/mocks"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestPublisher_SendsJSON(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, sarama.NewConfig())
	prod.ExpectInputWithCheckerFunctionAndSucceed(func(b []byte) error {
		var ev Event
		if err := json.Unmarshal(b, &ev); err != nil {
			return err
		}
		if ev.Kind != KindResult || ev.JobID != "j1" || ev.Outcome != "succeeded" {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		if ev.TS.IsZero() {
			return fmt.Errorf("timestamp not set")
		}
		return nil
	})

	p := NewPublisherWithProducer(prod, "watershed-events", 4, quiet())
	p.Publish(Event{Kind: KindResult, JobID: "j1", Outcome: "succeeded", Lon: -116.5, Lat: 33.8})
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestPublisher_DrainsQueueOnClose(t *testing.T) {
	prod := mocks.NewAsyncProducer(t, sarama.NewConfig())
	for range 3 {
		prod.ExpectInputAndSucceed()
	}

	p := NewPublisherWithProducer(prod, "t", 8, quiet())
	for i := range 3 {
		p.Publish(Event{Kind: KindClick, JobID: fmt.Sprintf("j%d", i)})
	}
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestNewPublisher_NoBrokers(t *testing.T) {
	if _, err := NewPublisher(nil, "t", 1, quiet()); err == nil {
		t.Fatal("expected error without brokers")
	}
}

func TestNop(t *testing.T) {
	var s Sink = Nop{}
	s.Publish(Event{Kind: KindClick})
}
