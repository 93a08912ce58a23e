package metrics

import (
	"context"
	"fmt"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	influxdb2api "github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/x1thexxx-lgtm/r0tools/pkg/config"
	"github.com/x1thexxx-lgtm/r0tools/pkg/record"
)

// Publisher pushes report summaries to InfluxDB.
type Publisher struct {
	client   influxdb2.Client
	writeAPI influxdb2api.WriteAPIBlocking
	now      func() time.Time
}

// NewPublisher connects to the configured bucket.
func NewPublisher(cfg config.InfluxConfig) (*Publisher, error) {
	if !cfg.Enabled() {
		return nil, fmt.Errorf("influx url and bucket required")
	}
	client := influxdb2.NewClient(cfg.URL, cfg.Token)
	return &Publisher{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.Org, cfg.Bucket),
		now:      time.Now,
	}, nil
}

// Points converts records into points. Numeric and boolean fields become
// point fields; string fields named in tagKeys become tags. Records without
// any numeric field are skipped.
func Points(measurement string, tags map[string]string, tagKeys []string, records []record.Record, ts time.Time) []*write.Point {
	isTag := map[string]bool{}
	for _, k := range tagKeys {
		isTag[k] = true
	}
	var points []*write.Point
	for _, r := range records {
		fields := map[string]interface{}{}
		pointTags := map[string]string{}
		for k, v := range tags {
			pointTags[k] = v
		}
		for _, key := range r.Keys() {
			switch v := r[key].(type) {
			case float64, int, int64, bool:
				fields[key] = v
			case string:
				if isTag[key] {
					pointTags[key] = v
				}
			}
		}
		if len(fields) == 0 {
			continue
		}
		points = append(points, influxdb2.NewPoint(measurement, pointTags, fields, ts))
	}
	return points
}

// PublishRecords writes one point per numeric record.
func (p *Publisher) PublishRecords(ctx context.Context, measurement string, tags map[string]string, tagKeys []string, records []record.Record) (int, error) {
	points := Points(measurement, tags, tagKeys, records, p.now())
	if len(points) == 0 {
		return 0, nil
	}
	if err := p.writeAPI.WritePoint(ctx, points...); err != nil {
		return 0, fmt.Errorf("influx write: %w", err)
	}
	return len(points), nil
}

// Close releases the client.
func (p *Publisher) Close() {
	if p == nil {
		return
	}
	p.client.Close()
}
