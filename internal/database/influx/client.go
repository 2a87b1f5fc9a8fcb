// Package influx provides InfluxDB time-series metrics for the purepool
// services: solution acceptance, rejections, block settlement and payout
// activity.
package influx

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
)

// Client wraps InfluxDB operations for time-series metrics
type Client struct {
	client   influxdb2.Client
	writeAPI api.WriteAPI
	queryAPI api.QueryAPI
	bucket   string
	org      string
}

// Config holds InfluxDB connection configuration
type Config struct {
	URL    string
	Token  string
	Org    string
	Bucket string
}

// NewClient creates a new InfluxDB client
func NewClient(cfg *Config) (*Client, error) {
	client := influxdb2.NewClient(cfg.URL, cfg.Token)

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	health, err := client.Health(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to check InfluxDB health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return nil, fmt.Errorf("InfluxDB health check failed: %s", msg)
	}

	writeAPI := client.WriteAPI(cfg.Org, cfg.Bucket)
	queryAPI := client.QueryAPI(cfg.Org)

	return &Client{
		client:   client,
		writeAPI: writeAPI,
		queryAPI: queryAPI,
		bucket:   cfg.Bucket,
		org:      cfg.Org,
	}, nil
}

// Close closes the InfluxDB connection
func (c *Client) Close() {
	c.writeAPI.Flush()
	c.client.Close()
}

// Health checks InfluxDB connectivity
func (c *Client) Health(ctx context.Context) error {
	health, err := c.client.Health(ctx)
	if err != nil {
		return fmt.Errorf("failed to check health: %w", err)
	}

	if health.Status != "pass" {
		msg := ""
		if health.Message != nil {
			msg = *health.Message
		}
		return fmt.Errorf("health check failed: %s", msg)
	}

	return nil
}

// Submission metrics

// WriteSolutionMetric writes an accepted solution metric
func (c *Client) WriteSolutionMetric(network, minerID string, hps int64, copies int) {
	tags := map[string]string{
		"network":  network,
		"miner_id": minerID,
	}

	fields := map[string]interface{}{
		"hps":    hps,
		"copies": copies,
		"count":  1,
	}

	point := write.NewPoint("solutions", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteRejectMetric writes a rejected solution metric
func (c *Client) WriteRejectMetric(network, minerID, reason string) {
	tags := map[string]string{
		"network":  network,
		"miner_id": minerID,
		"reason":   reason,
	}

	fields := map[string]interface{}{
		"count": 1,
	}

	point := write.NewPoint("rejects", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteHashrateMetric writes a reported hashrate measurement
func (c *Client) WriteHashrateMetric(network, minerID, workerID string, hashrate float64) {
	tags := map[string]string{
		"network":   network,
		"miner_id":  minerID,
		"worker_id": workerID,
	}

	fields := map[string]interface{}{
		"hashrate": hashrate,
	}

	point := write.NewPoint("hashrate", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Settlement metrics

// WriteBlockMetric writes a block discovery metric
func (c *Client) WriteBlockMetric(network string, height int64, poolBlock bool, subsidy float64) {
	tags := map[string]string{
		"network":    network,
		"pool_block": fmt.Sprintf("%t", poolBlock),
	}

	fields := map[string]interface{}{
		"height":  height,
		"subsidy": subsidy,
		"count":   1,
	}

	point := write.NewPoint("blocks", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WriteShareoutMetric writes a block settlement metric
func (c *Client) WriteShareoutMetric(network string, height, totalShares int64, miners int, distributed float64) {
	tags := map[string]string{
		"network": network,
	}

	fields := map[string]interface{}{
		"height":       height,
		"total_shares": totalShares,
		"miners":       miners,
		"distributed":  distributed,
		"count":        1,
	}

	point := write.NewPoint("shareouts", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// WritePayoutMetric writes a payout metric
func (c *Client) WritePayoutMetric(network, minerID string, amount float64, status string) {
	tags := map[string]string{
		"network":  network,
		"miner_id": minerID,
		"status":   status,
	}

	fields := map[string]interface{}{
		"amount": amount,
		"count":  1,
	}

	point := write.NewPoint("payouts", tags, fields, time.Now())
	c.writeAPI.WritePoint(point)
}

// Query methods

// GetHashrateHistory retrieves hashrate history for a miner/worker
func (c *Client) GetHashrateHistory(ctx context.Context, network, minerID, workerID string, duration time.Duration) ([]HashratePoint, error) {
	query := fmt.Sprintf(`
		from(bucket: "%s")
		|> range(start: -%s)
		|> filter(fn: (r) => r._measurement == "hashrate")
		|> filter(fn: (r) => r.network == "%s")
		|> filter(fn: (r) => r.miner_id == "%s")
		|> filter(fn: (r) => r.worker_id == "%s")
		|> filter(fn: (r) => r._field == "hashrate")
		|> aggregateWindow(every: 5m, fn: mean, createEmpty: false)
	`, c.bucket, duration.String(), network, minerID, workerID)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to query hashrate history: %w", err)
	}
	defer func() {
		_ = result.Close()
	}()

	var points []HashratePoint
	for result.Next() {
		record := result.Record()
		if value, ok := record.Value().(float64); ok {
			points = append(points, HashratePoint{
				Time:     record.Time(),
				Hashrate: value,
			})
		}
	}

	if result.Err() != nil {
		return nil, fmt.Errorf("error reading query result: %w", result.Err())
	}

	return points, nil
}

// GetSolutionStats retrieves accepted/rejected counts for a miner over a
// time period.
func (c *Client) GetSolutionStats(ctx context.Context, network, minerID string, duration time.Duration) (*SolutionStats, error) {
	stats := &SolutionStats{}

	for _, measurement := range []string{"solutions", "rejects"} {
		query := fmt.Sprintf(`
			from(bucket: "%s")
			|> range(start: -%s)
			|> filter(fn: (r) => r._measurement == "%s")
			|> filter(fn: (r) => r.network == "%s")
			|> filter(fn: (r) => r.miner_id == "%s")
			|> filter(fn: (r) => r._field == "count")
			|> sum()
		`, c.bucket, duration.String(), measurement, network, minerID)

		result, err := c.queryAPI.Query(ctx, query)
		if err != nil {
			return nil, fmt.Errorf("failed to query solution stats: %w", err)
		}

		for result.Next() {
			if count, ok := result.Record().Value().(int64); ok {
				if measurement == "solutions" {
					stats.Accepted = count
				} else {
					stats.Rejected = count
				}
			}
		}

		if result.Err() != nil {
			_ = result.Close()
			return nil, fmt.Errorf("error reading query result: %w", result.Err())
		}
		_ = result.Close()
	}

	stats.Total = stats.Accepted + stats.Rejected
	if stats.Total > 0 {
		stats.AcceptedPercent = float64(stats.Accepted) / float64(stats.Total) * 100
	}

	return stats, nil
}

// Flush forces a write of all pending points
func (c *Client) Flush() {
	c.writeAPI.Flush()
}

// Data structures

// HashratePoint represents a hashrate measurement at a point in time
type HashratePoint struct {
	Time     time.Time `json:"time"`
	Hashrate float64   `json:"hashrate"`
}

// SolutionStats represents aggregated submission statistics
type SolutionStats struct {
	Total           int64   `json:"total"`
	Accepted        int64   `json:"accepted"`
	Rejected        int64   `json:"rejected"`
	AcceptedPercent float64 `json:"accepted_percent"`
}
