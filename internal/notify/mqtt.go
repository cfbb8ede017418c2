package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"go.uber.org/zap"

	"github.com/i474232898/wind-harvest/internal/weather"
)

const publishTimeout = 5 * time.Second

// MQTTConfig configures the alert publisher.
type MQTTConfig struct {
	BrokerURL   string
	ClientID    string
	TopicPrefix string
}

// AlertMessage is the payload published for one provider's alert group.
type AlertMessage struct {
	Type     weather.ProviderType `json:"type"`
	Count    int                  `json:"count"`
	Alerts   []weather.Alert      `json:"alerts"`
	RaisedAt time.Time            `json:"raisedAt"`
}

// MQTTNotifier publishes alert groups to <prefix>/<type>.
type MQTTNotifier struct {
	client mqtt.Client
	prefix string
	logger *zap.Logger

	mu        sync.RWMutex
	connected bool
}

// NewMQTTNotifier creates the client; call Connect before use.
func NewMQTTNotifier(cfg MQTTConfig, logger *zap.Logger) *MQTTNotifier {
	n := &MQTTNotifier{prefix: cfg.TopicPrefix, logger: logger}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(cfg.BrokerURL)
	opts.SetClientID(cfg.ClientID)
	opts.SetCleanSession(true)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(5 * time.Second)
	opts.SetMaxReconnectInterval(60 * time.Second)
	opts.SetKeepAlive(30 * time.Second)
	opts.SetPingTimeout(10 * time.Second)

	opts.SetOnConnectHandler(func(_ mqtt.Client) {
		n.setConnected(true)
		logger.Info("mqtt connected", zap.String("broker", cfg.BrokerURL))
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		n.setConnected(false)
		logger.Warn("mqtt connection lost", zap.Error(err))
	})

	n.client = mqtt.NewClient(opts)
	return n
}

// Connect waits for the initial connection or ctx.
func (n *MQTTNotifier) Connect(ctx context.Context) error {
	token := n.client.Connect()
	const poll = 200 * time.Millisecond
	for {
		if token.WaitTimeout(poll) {
			if err := token.Error(); err != nil {
				return fmt.Errorf("mqtt connect: %w", err)
			}
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// Notify publishes the group as one QoS 1 message.
func (n *MQTTNotifier) Notify(_ context.Context, providerType weather.ProviderType, alerts []weather.Alert) error {
	if !n.isConnected() {
		return fmt.Errorf("mqtt client not connected")
	}

	data, err := json.Marshal(AlertMessage{
		Type:     providerType,
		Count:    len(alerts),
		Alerts:   alerts,
		RaisedAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal alerts: %w", err)
	}

	topic := Topic(n.prefix, providerType)
	token := n.client.Publish(topic, 1, false, data)
	if !token.WaitTimeout(publishTimeout) {
		return fmt.Errorf("publish timeout for topic %s", topic)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish alerts: %w", err)
	}
	n.logger.Debug("published alerts", zap.String("topic", topic), zap.Int("count", len(alerts)))
	return nil
}

// Disconnect closes the connection.
func (n *MQTTNotifier) Disconnect() {
	n.client.Disconnect(250)
	n.setConnected(false)
}

// Topic is the alert topic for a provider type.
func Topic(prefix string, providerType weather.ProviderType) string {
	if prefix == "" {
		prefix = "wind-harvest/alerts"
	}
	return prefix + "/" + string(providerType)
}

func (n *MQTTNotifier) isConnected() bool {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.connected && n.client.IsConnected()
}

func (n *MQTTNotifier) setConnected(v bool) {
	n.mu.Lock()
	n.connected = v
	n.mu.Unlock()
}
