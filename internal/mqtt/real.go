package mqtt

import (
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/sweeney/heatpump-blink/internal/heatpump"
)

const (
	connectTimeout = 10 * time.Second
	publishTimeout = 5 * time.Second
)

// Options configures a RealPublisher.
type Options struct {
	Broker     string
	ClientID   string
	Username   string
	Password   string
	BufferSize int
}

// RealPublisher publishes to and subscribes on an actual MQTT broker.
// Messages published while the connection is down are held in a bounded
// outbox and replayed, oldest first, when it comes back.
type RealPublisher struct {
	client paho.Client

	mu   sync.Mutex
	out  *outbox
	subs map[string]MessageHandler
}

// NewRealPublisher connects to the broker. If the broker is unreachable the
// client keeps retrying in the background and publishes are buffered; only a
// rejected connection is an error.
func NewRealPublisher(o Options) (*RealPublisher, error) {
	p := &RealPublisher{
		out:  newOutbox(o.BufferSize),
		subs: make(map[string]MessageHandler),
	}

	opts := paho.NewClientOptions().
		AddBroker(o.Broker).
		SetClientID(o.ClientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetBinaryWill(TopicSystem, willPayload(time.Now()), 1, true).
		SetOnConnectHandler(func(paho.Client) { p.handleConnect() }).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			log.Printf("mqtt: connection lost: %v", err)
		})
	if o.Username != "" {
		opts.SetUsername(o.Username)
		opts.SetPassword(o.Password)
	}

	p.client = paho.NewClient(opts)
	token := p.client.Connect()
	if !token.WaitTimeout(connectTimeout) {
		log.Printf("mqtt: broker %s not reachable yet, retrying in background", o.Broker)
		return p, nil
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}
	return p, nil
}

// handleConnect runs on every (re)connect: restore subscriptions, then
// replay anything buffered while offline.
func (p *RealPublisher) handleConnect() {
	p.mu.Lock()
	subs := make(map[string]MessageHandler, len(p.subs))
	for topic, h := range p.subs {
		subs[topic] = h
	}
	pending := p.out.drain()
	p.mu.Unlock()

	for topic, h := range subs {
		p.client.Subscribe(topic, 1, wrapHandler(h))
	}

	if len(pending) > 0 {
		log.Printf("mqtt: replaying %d buffered messages", len(pending))
	}
	for _, m := range pending {
		if err := p.send(m); err != nil {
			log.Printf("mqtt: replay to %s: %v", m.topic, err)
		}
	}
}

// Subscribe registers handler for topic. The subscription is restored on
// every reconnect; when currently offline it takes effect on the next connect.
func (p *RealPublisher) Subscribe(topic string, handler MessageHandler) error {
	if topic == "" {
		return ErrInvalidTopic
	}
	if handler == nil {
		return fmt.Errorf("%w: handler cannot be nil", ErrSubscribeFailed)
	}

	p.mu.Lock()
	p.subs[topic] = handler
	p.mu.Unlock()

	if !p.client.IsConnectionOpen() {
		return nil
	}
	token := p.client.Subscribe(topic, 1, wrapHandler(handler))
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("%w: timeout after %v", ErrSubscribeFailed, publishTimeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	return nil
}

// wrapHandler adapts a MessageHandler to paho, logging errors and recovering
// from panics so one bad message cannot take the daemon down.
func wrapHandler(h MessageHandler) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		defer func() {
			if r := recover(); r != nil {
				log.Printf("mqtt: handler panic on %s: %v", msg.Topic(), r)
			}
		}()
		if err := h(msg.Topic(), msg.Payload()); err != nil {
			log.Printf("mqtt: handler error on %s: %v", msg.Topic(), err)
		}
	}
}

// Publish sends a device event to the MQTT broker.
func (p *RealPublisher) Publish(event heatpump.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicEvents, payload: payload})
}

// PublishSystem sends a system lifecycle event to the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	// QoS 1 (at-least-once) for lifecycle events - we want to ensure delivery
	return p.publish(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// PublishResponse sends a command response to the MQTT broker.
func (p *RealPublisher) PublishResponse(resp heatpump.Response) error {
	payload, err := FormatResponse(resp)
	if err != nil {
		return fmt.Errorf("format response: %w", err)
	}
	return p.publish(bufferedMsg{topic: TopicResponse, payload: payload, qos: 1})
}

func (p *RealPublisher) publish(m bufferedMsg) error {
	p.mu.Lock()
	if !p.client.IsConnectionOpen() {
		p.out.push(m)
		p.mu.Unlock()
		return nil
	}
	p.mu.Unlock()
	return p.send(m)
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	return p.client.IsConnectionOpen()
}

// Buffered returns the number of messages waiting for a connection.
func (p *RealPublisher) Buffered() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.out.len()
}

// Close disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.client.Disconnect(1000) // 1 second timeout
	return nil
}
