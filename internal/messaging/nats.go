// Package messaging fans successful refreshes out over NATS so
// sibling services (notification workers, analytics) see the same
// snapshot the client sees.
package messaging

import (
	"encoding/json"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"

	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

// Subjects published by the sync engine.
const (
	SubjectAssetsUpdated = "assets.updated"
	SubjectPricesUpdated = "prices.updated"
)

// NATSClient publishes sync events to NATS.
type NATSClient struct {
	conn   *nats.Conn
	logger *logrus.Entry
}

// NewNATSClient connects to NATS with reconnect handling.
func NewNATSClient(cfg *config.NATSConfig, logger *logrus.Logger) (*NATSClient, error) {
	opts := []nats.Option{
		nats.MaxReconnects(cfg.MaxReconnect),
		nats.ReconnectWait(cfg.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("NATS reconnected")
		}),
		nats.ClosedHandler(func(nc *nats.Conn) {
			logger.Info("NATS connection closed")
		}),
	}

	conn, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	return &NATSClient{
		conn:   conn,
		logger: logger.WithField("component", "nats"),
	}, nil
}

// Close closes the NATS connection.
func (nc *NATSClient) Close() error {
	nc.conn.Close()
	return nil
}

// IsConnected checks if NATS is connected.
func (nc *NATSClient) IsConnected() bool {
	return nc.conn.IsConnected()
}

// PublishAssets publishes a refreshed collection.
func (nc *NATSClient) PublishAssets(assets []models.NormalizedAsset) error {
	return nc.publish(SubjectAssetsUpdated, assets)
}

// PublishPrices publishes targeted price updates.
func (nc *NATSClient) PublishPrices(prices []models.PriceUpdate) error {
	return nc.publish(SubjectPricesUpdated, prices)
}

func (nc *NATSClient) publish(subject string, payload interface{}) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal %s payload: %w", subject, err)
	}
	if err := nc.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return nil
}
