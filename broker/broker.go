// Package broker is the MQTT link of the device. All topics live below
// the device id: commands arrive on <id>/cmd, progress lines go to
// <id>/log and the sensor status to <id>/status.
package broker

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"lautenbacher.net/goirac/config"
)

const (
	commandQueueSize = 16
	publishTimeout   = 2 * time.Second
	// quiesce is the time in ms paho gets to finish in-flight work on
	// disconnect.
	quiesce = 250
)

// Client owns the paho client. Connecting is not left to paho's
// background reconnect: the control loop calls EnsureConnected and is
// blocked until the link is up again.
type Client struct {
	client     mqtt.Client
	id         string
	retryDelay time.Duration
	commands   chan string
}

// New creates the client; it does not connect yet.
func New(conf *config.Config) *Client {
	return newWithFactory(conf, mqtt.NewClient)
}

func newWithFactory(conf *config.Config, factory func(*mqtt.ClientOptions) mqtt.Client) *Client {
	c := &Client{
		id:         conf.Device.ID,
		retryDelay: conf.MQTT.RetryDelay,
		commands:   make(chan string, commandQueueSize),
	}

	co := mqtt.NewClientOptions()
	co.AddBroker(conf.MQTT.Broker)
	co.SetClientID(conf.Device.ID)
	if conf.MQTT.Username != "" {
		co.SetUsername(conf.MQTT.Username)
		co.SetPassword(conf.MQTT.Password)
	}
	co.SetAutoReconnect(false)
	co.SetConnectRetry(false)
	co.SetConnectTimeout(conf.MQTT.RetryDelay)
	co.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		slog.Warn("MQTT connection lost", "error", err)
	})
	// retained availability flag, cleared by the broker when we vanish
	co.SetWill(c.topic("available"), "offline", 0, true)

	c.client = factory(co)
	return c
}

func (c *Client) topic(name string) string {
	return c.id + "/" + name
}

// Commands delivers the payloads received on the command topic.
func (c *Client) Commands() <-chan string {
	return c.commands
}

// EnsureConnected returns at once if the link is up. Otherwise it
// connects, retrying with a fixed delay until it succeeds or ctx is
// done, and subscribes to the command topic.
func (c *Client) EnsureConnected(ctx context.Context) error {
	if c.client.IsConnectionOpen() {
		return nil
	}
	for attempt := 1; ; attempt++ {
		err := c.connect()
		if err == nil {
			break
		}
		slog.Warn("MQTT connect failed, retrying", "attempt", attempt, "retry_in", c.retryDelay, "error", err)
		select {
		case <-ctx.Done():
			return fmt.Errorf("giving up connecting to MQTT broker: %w", ctx.Err())
		case <-time.After(c.retryDelay):
		}
	}

	c.publish("available", true, "online")
	slog.Info("MQTT connected and subscribed.", "topic", c.topic("cmd"))
	c.Log("MQTT connected and subscribed.")
	return nil
}

func (c *Client) connect() error {
	t := c.client.Connect()
	t.Wait()
	if err := t.Error(); err != nil {
		return fmt.Errorf("connect: %w", err)
	}
	t = c.client.Subscribe(c.topic("cmd"), 0, c.onCommand)
	t.Wait()
	if err := t.Error(); err != nil {
		c.client.Disconnect(quiesce)
		return fmt.Errorf("subscribe %s: %w", c.topic("cmd"), err)
	}
	return nil
}

// onCommand runs on a paho goroutine; the token is only queued here.
func (c *Client) onCommand(_ mqtt.Client, msg mqtt.Message) {
	token := string(msg.Payload())
	slog.Debug("MQTT message received", "topic", msg.Topic(), "payload", token)
	select {
	case c.commands <- token:
	default:
		slog.Warn("Command queue full, dropping command", "command", token)
	}
}

// Log publishes a progress line on the log topic.
func (c *Client) Log(msg string) {
	c.publish("log", false, msg)
}

// Status publishes a status document on the status topic.
func (c *Client) Status(payload []byte) {
	c.publish("status", false, payload)
}

func (c *Client) publish(name string, retained bool, payload any) {
	if !c.client.IsConnectionOpen() {
		slog.Debug("MQTT not connected, dropping message", "topic", c.topic(name))
		return
	}
	t := c.client.Publish(c.topic(name), 0, retained, payload)
	if !t.WaitTimeout(publishTimeout) {
		slog.Warn("MQTT publish timed out", "topic", c.topic(name))
		return
	}
	if err := t.Error(); err != nil {
		slog.Warn("MQTT publish failed", "topic", c.topic(name), "error", err)
	}
}

// Close marks the device offline and disconnects.
func (c *Client) Close() {
	if !c.client.IsConnectionOpen() {
		return
	}
	c.publish("available", true, "offline")
	c.client.Disconnect(quiesce)
	slog.Info("MQTT disconnected")
}
