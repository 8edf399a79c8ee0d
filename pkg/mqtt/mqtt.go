// Package mqtt publishes panel snapshots and line events to a mqtt broker.
package mqtt

import (
	"fmt"
	"strconv"
	"strings"
	"sync"

	"tadl/pkg/port"

	mqttlib "github.com/eclipse/paho.mqtt.golang"
	"github.com/pkg/errors"
	"github.com/womat/debug"
)

// quiesce is the specified number of milliseconds to wait for existing work to be completed.
const (
	quiesce = 250
	// queueSize is the capacity of channel C.
	queueSize = 64
)

// ErrNotConnected is returned by Subscribe if no broker is defined.
var ErrNotConnected = errors.New("mqtt broker not connected")

// Handler contains the handler of the mqtt broker.
type Handler struct {
	handler mqttlib.Client
	// C is the channel to service the mqtt message
	// sending a message to channel C will send the message.
	C chan Message

	mu   sync.Mutex
	subs map[string]mqttlib.MessageHandler
}

// Message contains the properties of the mqtt message.
type Message struct {
	Topic    string
	Payload  []byte
	Qos      byte
	Retained bool
}

// New generate a new mqtt broker client.
func New() *Handler {
	return &Handler{
		C:    make(chan Message, queueSize),
		subs: map[string]mqttlib.MessageHandler{},
	}
}

// Connect connects to the mqtt broker.
// If no broker is defined, no mqtt message are send.
func (m *Handler) Connect(broker, clientID string) error {
	if broker == "" {
		return nil
	}

	opts := mqttlib.NewClientOptions().AddBroker(broker)
	if clientID != "" {
		opts.SetClientID(clientID)
	}
	// subscriptions are lost when the broker drops the session
	opts.SetOnConnectHandler(func(c mqttlib.Client) {
		m.mu.Lock()
		defer m.mu.Unlock()
		for topic, fn := range m.subs {
			debug.DebugLog.Printf("resubscribe %v", topic)
			c.Subscribe(topic, 0, fn)
		}
	})
	m.handler = mqttlib.NewClient(opts)
	return m.ReConnect()
}

// Connected reports whether a broker is defined.
func (m *Handler) Connected() bool {
	return m.handler != nil
}

// ReConnect reconnects to the defined mqtt broker.
func (m *Handler) ReConnect() error {
	t := m.handler.Connect()
	<-t.Done()
	return t.Error()
}

// Disconnect will end the connection to the broker.
func (m *Handler) Disconnect() error {
	if m.handler == nil {
		return nil
	}

	m.handler.Disconnect(quiesce)
	return nil
}

// Subscribe calls fn for every message received on topic.
func (m *Handler) Subscribe(topic string, fn func(topic string, payload []byte)) error {
	if m.handler == nil {
		return ErrNotConnected
	}

	h := func(_ mqttlib.Client, msg mqttlib.Message) {
		fn(msg.Topic(), msg.Payload())
	}

	m.mu.Lock()
	m.subs[topic] = h
	m.mu.Unlock()

	t := m.handler.Subscribe(topic, 0, h)
	<-t.Done()
	return errors.Wrapf(t.Error(), "subscribe %v", topic)
}

// Publish queues msg without blocking and reports whether it was queued.
func (m *Handler) Publish(msg Message) bool {
	select {
	case m.C <- msg:
		return true
	default:
		debug.ErrorLog.Printf("mqtt queue full, dropped topic %v", msg.Topic)
		return false
	}
}

// Service listen to a message on the channel C and send the message to mqtt.
// If no handler or topic is defined, the message will be ignored.
func (m *Handler) Service() {
	for d := range m.C {
		if m.handler == nil || d.Topic == "" {
			continue
		}

		// line events must reach the broker in the order they were queued
		if !m.handler.IsConnected() {
			debug.DebugLog.Printf("mqtt broker isn't connected, reconnect it")

			if err := m.ReConnect(); err != nil {
				debug.ErrorLog.Printf("can't reconnect to mqtt broker %v", err)
				continue
			}
		}

		debug.TraceLog.Printf("publishing %v bytes to topic %v", len(d.Payload), d.Topic)
		t := m.handler.Publish(d.Topic, d.Qos, d.Retained, d.Payload)

		go func(topic string) {
			<-t.Done()
			if err := t.Error(); err != nil {
				debug.ErrorLog.Printf("publishing topic %v: %v", topic, err)
			}
		}(d.Topic)
	}
}

// EventTopic returns the topic of a line event: <base>/<stream>/<line>.
func EventTopic(base string, ev port.Event) string {
	return fmt.Sprintf("%s/%d/%d", strings.TrimSuffix(base, "/"), ev.Stream, ev.Line)
}

// EventPayload returns the line level as "1" or "0".
func EventPayload(ev port.Event) []byte {
	if ev.State() {
		return []byte("1")
	}
	return []byte("0")
}

// ParseEvent is the inverse of EventTopic and EventPayload.
func ParseEvent(base, topic string, payload []byte) (port.Event, error) {
	prefix := strings.TrimSuffix(base, "/") + "/"
	if !strings.HasPrefix(topic, prefix) {
		return port.Event{}, errors.Errorf("topic %q outside %q", topic, base)
	}

	parts := strings.Split(strings.TrimPrefix(topic, prefix), "/")
	if len(parts) != 2 {
		return port.Event{}, errors.Errorf("topic %q: want <stream>/<line>", topic)
	}

	stream, err := strconv.ParseUint(parts[0], 10, 16)
	if err != nil {
		return port.Event{}, errors.Wrapf(err, "stream of topic %q", topic)
	}
	line, err := strconv.Atoi(parts[1])
	if err != nil || line < 0 {
		return port.Event{}, errors.Errorf("line of topic %q: %q", topic, parts[1])
	}

	var state bool
	switch strings.TrimSpace(string(payload)) {
	case "1", "true", "on":
		state = true
	case "0", "false", "off":
	default:
		return port.Event{}, errors.Errorf("payload %q of topic %q", payload, topic)
	}
	return port.NewEvent(port.StreamID(stream), line, state), nil
}

// Sink publishes line events to the broker.
type Sink struct {
	Handler *Handler
	Topic   string
}

// Emit queues the event. A full queue drops the event.
func (s Sink) Emit(ev port.Event) error {
	if s.Handler == nil || s.Topic == "" {
		return nil
	}
	if !s.Handler.Publish(Message{Topic: EventTopic(s.Topic, ev), Payload: EventPayload(ev)}) {
		return errors.Errorf("mqtt queue full, dropped %v", ev)
	}
	return nil
}
