// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge forwards link traffic to an MQTT broker and accepts
// commands from it.
//
// Topics, under a configurable prefix:
//
//	<prefix>/rx      received frames (raw bytes)
//	<prefix>/tx      transmitted commands (raw bytes)
//	<prefix>/state   sequencer state name (retained)
//	<prefix>/status  "online" or "offline" (retained, last will)
//	<prefix>/cmd     commands to send (subscribed)
package bridge

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Thermoquad/rylink/pkg/link"
	"github.com/denisbrodbeck/machineid"
	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
)

const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// DefaultClientID derives a stable client id from the host's machine id.
func DefaultClientID() string {
	id, err := machineid.ProtectedID("rylink")
	if err != nil || len(id) < 8 {
		return "rylink"
	}
	return "rylink-" + id[:8]
}

// Publisher implements link.Observer by publishing to MQTT.
type Publisher struct {
	client mqtt.Client
	prefix string
	log    zerolog.Logger

	mu        sync.Mutex
	published int
}

var _ link.Observer = (*Publisher)(nil)

// NewPublisher publishes through an existing client.
func NewPublisher(client mqtt.Client, prefix string, log zerolog.Logger) *Publisher {
	return &Publisher{
		client: client,
		prefix: strings.TrimSuffix(prefix, "/"),
		log:    log,
	}
}

// Dial connects to broker and returns a Publisher on it.
func Dial(broker, prefix, clientID string, log zerolog.Logger) (*Publisher, error) {
	if clientID == "" {
		clientID = DefaultClientID()
	}
	p := &Publisher{prefix: strings.TrimSuffix(prefix, "/"), log: log}

	opts := mqtt.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetMaxReconnectInterval(time.Minute).
		SetConnectRetryInterval(5 * time.Second).
		SetKeepAlive(30 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetConnectTimeout(30 * time.Second).
		SetWriteTimeout(10 * time.Second).
		SetWill(p.Topic("status"), StatusOffline, 0, true)

	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		log.Warn().Err(err).Str("broker", broker).Msg("MQTT connection lost")
	})
	opts.SetOnConnectHandler(func(c mqtt.Client) {
		c.Publish(p.Topic("status"), 0, true, StatusOnline)
		log.Info().Str("broker", broker).Str("client_id", clientID).Msg("MQTT connected")
	})

	p.client = mqtt.NewClient(opts)
	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to %s: %w", broker, err)
	}
	return p, nil
}

// Topic returns the full topic for a suffix.
func (p *Publisher) Topic(suffix string) string {
	return p.prefix + "/" + suffix
}

// Published returns how many messages have been handed to the client.
func (p *Publisher) Published() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.published
}

// publish hands the message to the client without waiting for delivery;
// observers are called from the link's task context.
func (p *Publisher) publish(suffix string, retained bool, payload any) {
	if !p.client.IsConnected() {
		return
	}
	p.client.Publish(p.Topic(suffix), 0, retained, payload)
	p.mu.Lock()
	p.published++
	p.mu.Unlock()
}

func (p *Publisher) BytesReceived(int) {}

func (p *Publisher) Overrun() {}

func (p *Publisher) FrameParsed(f link.Frame) {
	p.publish("rx", false, f.Data)
}

func (p *Publisher) CommandSent(cmd string, n int) {
	if n < len(cmd) {
		cmd = cmd[:n]
	}
	p.publish("tx", false, []byte(cmd))
}

func (p *Publisher) Transition(_, to link.State, _ link.Action) {
	p.publish("state", true, to.String())
}

// Subscribe calls fn with every payload published to <prefix>/cmd.
func (p *Publisher) Subscribe(fn func(cmd string)) error {
	token := p.client.Subscribe(p.Topic("cmd"), 0, func(_ mqtt.Client, msg mqtt.Message) {
		fn(string(msg.Payload()))
	})
	token.Wait()
	return token.Error()
}

// Close marks the bridge offline and disconnects.
func (p *Publisher) Close() {
	if p.client.IsConnected() {
		p.client.Publish(p.Topic("status"), 0, true, StatusOffline).WaitTimeout(time.Second)
	}
	p.client.Disconnect(250)
}
