// Package publish sends per-cycle heading estimates to NATS as JSON.
package publish

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/nats-io/nats.go"
)

// DefaultSubject is the base subject estimates are published under.
const DefaultSubject = "heading.estimates"

// EstimateMessage is the JSON payload of one estimate.
type EstimateMessage struct {
	RunID      string   `json:"run_id"`
	Session    int      `json:"session"`
	Time       float64  `json:"time"`
	FromFilter bool     `json:"from_filter"`
	X          float64  `json:"x"`
	Y          float64  `json:"y"`
	Speed      float64  `json:"speed"`
	AngleDeg   float64  `json:"angle_deg"`
	AngleSDDeg float64  `json:"angle_sd_deg"`
	AngleSpeed *float64 `json:"angle_speed_deg_s,omitempty"`
}

// conn is the part of *nats.Conn the publisher uses.
type conn interface {
	Publish(subject string, data []byte) error
	IsConnected() bool
	Close()
}

// Publisher publishes estimates on <subject>.<session>. An unconnected
// publisher drops messages silently.
type Publisher struct {
	mu      sync.Mutex
	conn    conn
	subject string
}

// NewPublisher returns an unconnected publisher for subject.
func NewPublisher(subject string) *Publisher {
	if subject == "" {
		subject = DefaultSubject
	}
	return &Publisher{subject: subject}
}

// Connect connects to the NATS server at url, retrying forever on
// disconnects.
func (p *Publisher) Connect(url string) error {
	opts := []nats.Option{
		nats.Name("navsim"),
		nats.ReconnectWait(2 * time.Second),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Printf("NATS disconnected: %v", err)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Printf("NATS reconnected: %s", nc.ConnectedUrl())
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			log.Printf("NATS connection closed")
		}),
	}
	nc, err := nats.Connect(url, opts...)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	log.Printf("NATS connected to %s", url)

	p.mu.Lock()
	defer p.mu.Unlock()
	p.conn = nc
	return nil
}

// Subject returns the subject used for a session.
func (p *Publisher) Subject(session int) string {
	return fmt.Sprintf("%s.%d", p.subject, session)
}

// Publish sends msg on the session subject.
func (p *Publisher) Publish(msg EstimateMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.conn == nil {
		return nil
	}
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode estimate: %w", err)
	}
	subject := p.Subject(msg.Session)
	if err := p.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish on %s: %w", subject, err)
	}
	return nil
}

// IsConnected reports whether the publisher holds a live connection.
func (p *Publisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.conn != nil && p.conn.IsConnected()
}

// Close disconnects from NATS.
func (p *Publisher) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.conn != nil {
		p.conn.Close()
		p.conn = nil
	}
}
