// Package history records the prices and portfolio values observed
// during refresh cycles into InfluxDB, giving chart backends a local
// time series to serve when the remote API has none.
package history

import (
	"context"
	"fmt"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/sirupsen/logrus"

	"github.com/asset-sync/pkg/config"
	"github.com/asset-sync/pkg/models"
)

// InfluxRecorder writes observed sync data points to InfluxDB.
type InfluxRecorder struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	logger   *logrus.Entry
}

// NewInfluxRecorder creates a recorder for the configured bucket.
func NewInfluxRecorder(cfg *config.InfluxConfig, logger *logrus.Logger) *InfluxRecorder {
	client := influxdb2.NewClientWithOptions(
		cfg.URL,
		cfg.Token,
		influxdb2.DefaultOptions().
			SetHTTPRequestTimeout(uint(cfg.Timeout.Seconds())).
			SetLogLevel(0),
	)

	return &InfluxRecorder{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		logger:   logger.WithField("component", "influxdb"),
	}
}

// Close closes the InfluxDB client.
func (r *InfluxRecorder) Close() {
	r.client.Close()
}

// Health checks InfluxDB health.
func (r *InfluxRecorder) Health(ctx context.Context) error {
	health, err := r.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}
	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("influxdb health check failed: %s", msg)
	}
	return nil
}

// RecordPrices writes one point per price update.
func (r *InfluxRecorder) RecordPrices(ctx context.Context, prices []models.PriceUpdate) error {
	points := make([]*write.Point, 0, len(prices))
	for _, price := range prices {
		points = append(points, influxdb2.NewPoint(
			"prices",
			map[string]string{
				"symbol":   price.Symbol,
				"currency": price.Currency,
			},
			map[string]interface{}{
				"price":          price.Price,
				"change":         price.Change,
				"change_percent": price.ChangePercent,
			},
			price.Timestamp,
		))
	}

	if err := r.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write price points: %w", err)
	}
	return nil
}

// RecordPortfolio writes one point per holding plus a portfolio total,
// capturing the value trajectory over time.
func (r *InfluxRecorder) RecordPortfolio(ctx context.Context, assets []models.NormalizedAsset) error {
	points := make([]*write.Point, 0, len(assets)+1)

	var total float64
	for i := range assets {
		asset := &assets[i]
		total += asset.TotalValue
		tags := map[string]string{
			"id":   asset.ID,
			"kind": string(asset.Kind),
		}
		if symbol := asset.Symbol(); symbol != "" {
			tags["symbol"] = symbol
		}
		points = append(points, influxdb2.NewPoint(
			"holdings",
			tags,
			map[string]interface{}{
				"total_value":             asset.TotalValue,
				"total_gain_loss":         asset.TotalGainLoss,
				"total_gain_loss_percent": asset.TotalGainLossPercent,
			},
			asset.LastUpdated,
		))
	}

	if len(assets) > 0 {
		points = append(points, influxdb2.NewPoint(
			"portfolio",
			map[string]string{},
			map[string]interface{}{"total_value": total},
			assets[0].LastUpdated,
		))
	}

	if err := r.writeAPI.WritePoint(ctx, points...); err != nil {
		return fmt.Errorf("failed to write portfolio points: %w", err)
	}
	return nil
}
