package mqtt

import (
	"fmt"
	"sync"
	"testing"

	"tadl/pkg/port"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
)

// doneToken is a completed token.
type doneToken struct {
	mqttlib.Token
}

func (doneToken) Wait() bool { return true }

func (doneToken) Done() <-chan struct{} {
	c := make(chan struct{})
	close(c)
	return c
}

func (doneToken) Error() error { return nil }

// recordClient records the published messages of a connected client.
type recordClient struct {
	mqttlib.Client

	mu        sync.Mutex
	published []string
}

func (c *recordClient) IsConnected() bool { return true }

func (c *recordClient) Publish(topic string, _ byte, _ bool, payload interface{}) mqttlib.Token {
	c.mu.Lock()
	c.published = append(c.published, fmt.Sprintf("%s=%s", topic, payload))
	c.mu.Unlock()
	return doneToken{}
}

func TestEventTopic(t *testing.T) {
	ev := port.NewEvent(12, 7, true)

	got := EventTopic("panel/events/", ev)
	if got != "panel/events/12/7" {
		t.Errorf("got %q want %q", got, "panel/events/12/7")
	}
	if string(EventPayload(ev)) != "1" {
		t.Errorf("got payload %q want 1", EventPayload(ev))
	}

	back, err := ParseEvent("panel/events", got, EventPayload(ev))
	if err != nil {
		t.Fatalf("ParseEvent: %v", err)
	}
	if back != ev {
		t.Errorf("got %v want %v", back, ev)
	}
}

func TestParseEventErrors(t *testing.T) {
	tests := []struct {
		name    string
		topic   string
		payload string
	}{
		{"other base", "x/1/2", "1"},
		{"missing line", "panel/1", "1"},
		{"bad stream", "panel/s/2", "1"},
		{"stream overflow", "panel/70000/2", "1"},
		{"negative line", "panel/1/-2", "1"},
		{"bad payload", "panel/1/2", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseEvent("panel", tt.topic, []byte(tt.payload)); err == nil {
				t.Errorf("ParseEvent(%q, %q) should fail", tt.topic, tt.payload)
			}
		})
	}
}

func TestSinkQueue(t *testing.T) {
	h := New()
	s := Sink{Handler: h, Topic: "panel"}

	for i := 0; i < queueSize; i++ {
		if err := s.Emit(port.NewEvent(1, i%32, false)); err != nil {
			t.Fatalf("Emit %d: %v", i, err)
		}
	}
	if err := s.Emit(port.NewEvent(1, 0, true)); err == nil {
		t.Error("full queue should drop the event")
	}

	msg := <-h.C
	if msg.Topic != "panel/1/0" || string(msg.Payload) != "0" {
		t.Errorf("got %v %q", msg.Topic, msg.Payload)
	}

	if err := (Sink{}).Emit(port.NewEvent(1, 0, true)); err != nil {
		t.Errorf("unconfigured sink: %v", err)
	}
}

func TestSubscribeWithoutBroker(t *testing.T) {
	h := New()
	if err := h.Connect("", ""); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	if h.Connected() {
		t.Error("no broker defined")
	}
	if err := h.Subscribe("panel/#", func(string, []byte) {}); err != ErrNotConnected {
		t.Errorf("got %v want ErrNotConnected", err)
	}
}

func TestServiceKeepsOrder(t *testing.T) {
	client := &recordClient{}
	h := New()
	h.handler = client
	s := Sink{Handler: h, Topic: "panel/events"}

	var want []string
	done := make(chan struct{})
	go func() {
		h.Service()
		close(done)
	}()

	for i := 0; i < queueSize*2; i++ {
		ev := port.NewEvent(1, 0, i%2 == 0)
		want = append(want, fmt.Sprintf("%s=%s", EventTopic(s.Topic, ev), EventPayload(ev)))
		h.C <- Message{Topic: EventTopic(s.Topic, ev), Payload: EventPayload(ev)}
	}
	close(h.C)
	<-done

	client.mu.Lock()
	defer client.mu.Unlock()

	if len(client.published) != len(want) {
		t.Fatalf("got %d messages want %d", len(client.published), len(want))
	}
	for i := range want {
		if client.published[i] != want[i] {
			t.Fatalf("message %d: got %s want %s", i, client.published[i], want[i])
		}
	}
}
