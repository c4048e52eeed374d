package events

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"testing"

	"github.com/IBM/sarama/mocks"
)

func quiet() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestKafkaPublisher_PublishesJSON(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputWithCheckerFunctionAndSucceed(func(val []byte) error {
		var ev Event
		if err := json.Unmarshal(val, &ev); err != nil {
			return err
		}
		if ev.Type != TypeAnalysisCompleted || ev.SessionID != "s1" || ev.Outcome != "ok" || ev.Features != 3 {
			return fmt.Errorf("unexpected event %+v", ev)
		}
		if ev.TS.IsZero() {
			return errors.New("timestamp not set")
		}
		return nil
	})

	p := NewKafkaPublisher(mp, "overlap-analysis", 4, quiet())
	p.Publish(Event{SessionID: "s1", Fingerprint: "abc", Outcome: "ok", Features: 3})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaPublisher_ProducerErrorsAreAbsorbed(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	mp.ExpectInputAndFail(errors.New("broker down"))

	p := NewKafkaPublisher(mp, "overlap-analysis", 4, quiet())
	p.Publish(Event{SessionID: "s1", Outcome: "transport_error"})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}

func TestKafkaPublisher_PublishAfterCloseIsNoop(t *testing.T) {
	mp := mocks.NewAsyncProducer(t, nil)
	p := NewKafkaPublisher(mp, "overlap-analysis", 1, quiet())
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	p.Publish(Event{SessionID: "late"})
	if err := p.Close(); err != nil {
		t.Fatalf("second close: %v", err)
	}
}

func TestNop(t *testing.T) {
	var p Publisher = Nop{}
	p.Publish(Event{})
	if err := p.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
}
