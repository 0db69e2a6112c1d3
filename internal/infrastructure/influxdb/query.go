package influxdb

import (
	"context"
	"fmt"
	"strings"

	"github.com/croftonlabs/crofton-core/internal/sensor"
)

// batchLatestLookback bounds how far back BatchLatest searches for
// readings, as a Flux duration literal. Anything older is stale for
// rule evaluation anyway, but a generous window keeps the query cheap
// without hiding recent data.
const batchLatestLookback = "24h"

// BatchLatest returns the most recent snapshot for each of the given
// sensor devices in a single query. Devices with no readings inside the
// lookback window are absent from the result map.
func (c *Client) BatchLatest(ctx context.Context, deviceIDs []string) (map[string]sensor.Snapshot, error) {
	if !c.IsConnected() {
		return nil, ErrNotConnected
	}
	if len(deviceIDs) == 0 {
		return map[string]sensor.Snapshot{}, nil
	}

	query := buildBatchLatestQuery(c.cfg.Bucket, deviceIDs)

	result, err := c.queryAPI.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}
	defer result.Close() //nolint:errcheck // Close error surfaces via result.Err()

	snapshots := make(map[string]sensor.Snapshot)
	for result.Next() {
		record := result.Record()

		deviceID, _ := record.ValueByKey("device_id").(string)
		if deviceID == "" {
			continue
		}
		value, ok := record.Value().(float64)
		if !ok {
			continue
		}

		snap := snapshots[deviceID]
		snap.DeviceID = deviceID
		snap.Set(record.Field(), value)
		// Fields may arrive with slightly different timestamps; keep the newest.
		if record.Time().After(snap.Timestamp) {
			snap.Timestamp = record.Time()
		}
		snapshots[deviceID] = snap
	}
	if err := result.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrQueryFailed, err)
	}

	return snapshots, nil
}

// buildBatchLatestQuery assembles the Flux query for BatchLatest.
func buildBatchLatestQuery(bucket string, deviceIDs []string) string {
	filters := make([]string, len(deviceIDs))
	for i, id := range deviceIDs {
		filters[i] = fmt.Sprintf(`r.device_id == %q`, escapeFluxString(id))
	}

	return fmt.Sprintf(`from(bucket: %q)
  |> range(start: -%s)
  |> filter(fn: (r) => r._measurement == %q)
  |> filter(fn: (r) => %s)
  |> group(columns: ["device_id", "_field"])
  |> last()`,
		bucket,
		batchLatestLookback,
		measurementSensorReadings,
		strings.Join(filters, " or "),
	)
}

// escapeFluxString strips characters that would break out of a Flux
// string literal. Device IDs are internal identifiers, so this is a
// safety net rather than a parser.
func escapeFluxString(s string) string {
	s = strings.ReplaceAll(s, `\`, ``)
	s = strings.ReplaceAll(s, `"`, ``)
	return s
}
