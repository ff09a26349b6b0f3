// SPDX-License-Identifier: MPL-2.0
/*
 * Copyright (C) 2024 Damian Peckett <damian@pecke.tt>.
 *
 * This Source Code Form is subject to the terms of the Mozilla Public
 * License, v. 2.0. If a copy of the MPL was not distributed with this
 * file, You can obtain one at http://mozilla.org/MPL/2.0/.
 */

// Package telemetry publishes heart-rate readings to an MQTT broker.
package telemetry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/OpenPSG/ecgmon/internal/log"
	"github.com/eclipse/paho.golang/paho"
	"github.com/google/uuid"
)

// ContentType of every published payload.
const ContentType = "application/json"

// ErrNotConnected is returned when publishing through a closed Publisher.
var ErrNotConnected = errors.New("telemetry publisher not connected")

// Reading is the JSON payload published for every heart-rate update.
type Reading struct {
	Run       string    `json:"run"`
	BPM       int       `json:"bpm"`
	Synthetic bool      `json:"synthetic"`
	Frames    uint64    `json:"frames"`
	Timestamp time.Time `json:"timestamp"`
}

type (
	// Publisher is a connected MQTT v5 client that publishes readings.
	Publisher struct {
		client   *paho.Client
		clientID string
		qos      byte
		closed   atomic.Bool
		log      log.Logger
	}

	// Option configures a Publisher.
	Option func(*options)

	options struct {
		keepAlive uint16
		qos       byte
		logger    *slog.Logger
	}
)

// WithKeepAlive sets the MQTT keep alive interval, rounded down to seconds.
func WithKeepAlive(d time.Duration) Option {
	return func(o *options) {
		o.keepAlive = uint16(max(0, min(d/time.Second, 1<<16-1)))
	}
}

// WithQoS sets the QoS of published readings. Only 0 and 1 are supported.
func WithQoS(qos byte) Option {
	return func(o *options) {
		o.qos = min(qos, 1)
	}
}

// WithLogger sets the logger for connection errors.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Dial connects to the broker at address (host:port) over TCP. A random
// client ID is generated when clientID is empty.
func Dial(ctx context.Context, address, clientID string, opts ...Option) (*Publisher, error) {
	o := options{keepAlive: 30}
	for _, opt := range opts {
		opt(&o)
	}

	if clientID == "" {
		clientID = "ecgmon-" + uuid.NewString()
	}

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("error dialing broker: %w", err)
	}

	p := &Publisher{clientID: clientID, qos: o.qos, log: log.Wrap(o.logger)}
	p.client = paho.NewClient(paho.ClientConfig{
		ClientID: clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			p.closed.Store(true)
			p.log.Err(context.Background(), err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			p.closed.Store(true)
			p.log.Warn(context.Background(), "broker disconnected",
				slog.Int("reason_code", int(d.ReasonCode)))
		},
	})

	ack, err := p.client.Connect(ctx, &paho.Connect{
		ClientID:   clientID,
		KeepAlive:  o.keepAlive,
		CleanStart: true,
	})
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("error connecting to broker: %w", err)
	}
	if ack.ReasonCode != 0 {
		_ = conn.Close()
		return nil, fmt.Errorf("broker refused connection: reason code %d", ack.ReasonCode)
	}

	return p, nil
}

// ClientID returns the MQTT client ID in use.
func (p *Publisher) ClientID() string {
	return p.clientID
}

// Publish sends a reading to topic.
func (p *Publisher) Publish(ctx context.Context, topic string, r Reading) error {
	if p == nil || p.closed.Load() {
		return ErrNotConnected
	}

	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("error encoding reading: %w", err)
	}

	props := &paho.PublishProperties{ContentType: ContentType}
	if r.Run != "" {
		props.User = paho.UserProperties{{Key: "run", Value: r.Run}}
	}

	if _, err := p.client.Publish(ctx, &paho.Publish{
		Topic:      topic,
		QoS:        p.qos,
		Payload:    payload,
		Properties: props,
	}); err != nil {
		return fmt.Errorf("error publishing reading: %w", err)
	}
	return nil
}

// Close disconnects from the broker. Closing twice is a no-op.
func (p *Publisher) Close() error {
	if p.closed.Swap(true) {
		return nil
	}
	return p.client.Disconnect(&paho.Disconnect{ReasonCode: 0})
}
