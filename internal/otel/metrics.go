package otel

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/metric"
)

var (
	initMetricsOnce       sync.Once
	stateChangesCounter   metric.Int64Counter
	activitiesCounter     metric.Int64Counter
	reviewEventsCounter   metric.Int64Counter
	streamMessagesCounter metric.Int64Counter
	streamEvictCounter    metric.Int64Counter
	streamConnsGauge      metric.Int64ObservableGauge

	streamConnsMu sync.Mutex
	streamConns   = map[string]int64{}
)

// InitMetrics creates the meter instruments. Safe to call multiple times; only runs once.
// Call after Setup.
func InitMetrics(ctx context.Context) error {
	var err error
	initMetricsOnce.Do(func() {
		m := Meter()
		stateChangesCounter, err = m.Int64Counter("puppy_station_state_changes_total", metric.WithDescription("State changes emitted by the fleet service, by kind"))
		if err != nil {
			return
		}
		activitiesCounter, err = m.Int64Counter("puppy_station_activities_total", metric.WithDescription("Activity records logged, by type"))
		if err != nil {
			return
		}
		reviewEventsCounter, err = m.Int64Counter("puppy_station_review_events_total", metric.WithDescription("Review events (created, resolved)"))
		if err != nil {
			return
		}
		streamMessagesCounter, err = m.Int64Counter("puppy_station_stream_messages_total", metric.WithDescription("Messages published to push subscribers"))
		if err != nil {
			return
		}
		streamEvictCounter, err = m.Int64Counter("puppy_station_stream_evictions_total", metric.WithDescription("Push subscribers dropped for falling behind"))
		if err != nil {
			return
		}
		streamConnsGauge, err = m.Int64ObservableGauge("puppy_station_stream_connections", metric.WithDescription("Open push connections by transport"))
		if err != nil {
			return
		}
		_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
			streamConnsMu.Lock()
			defer streamConnsMu.Unlock()
			for transport, n := range streamConns {
				o.ObserveInt64(streamConnsGauge, n, metric.WithAttributes(AttrTransport.String(transport)))
			}
			return nil
		}, streamConnsGauge)
	})
	return err
}

// RecordStateChange counts one emitted state change. activityType is set for activity changes.
func RecordStateChange(ctx context.Context, kind, activityType string) {
	if stateChangesCounter != nil {
		stateChangesCounter.Add(ctx, 1, metric.WithAttributes(AttrKind.String(kind)))
	}
	if activityType != "" && activitiesCounter != nil {
		activitiesCounter.Add(ctx, 1, metric.WithAttributes(AttrType.String(activityType)))
	}
}

// RecordReviewEvent counts a review created or resolved.
func RecordReviewEvent(ctx context.Context, event string) {
	if reviewEventsCounter != nil {
		reviewEventsCounter.Add(ctx, 1, metric.WithAttributes(AttrEvent.String(event)))
	}
}

// RecordStreamMessage counts one message fanned out by the hub.
func RecordStreamMessage(ctx context.Context, kind string) {
	if streamMessagesCounter != nil {
		streamMessagesCounter.Add(ctx, 1, metric.WithAttributes(AttrKind.String(kind)))
	}
}

// RecordStreamEviction counts one subscriber dropped for a full queue.
func RecordStreamEviction(ctx context.Context) {
	if streamEvictCounter != nil {
		streamEvictCounter.Add(ctx, 1)
	}
}

// AddStreamConnection adds 1 to the connection gauge for transport (ws, sse, grpc).
func AddStreamConnection(transport string) {
	streamConnsMu.Lock()
	streamConns[transport]++
	streamConnsMu.Unlock()
}

// RemoveStreamConnection subtracts 1 from the connection gauge for transport.
func RemoveStreamConnection(transport string) {
	streamConnsMu.Lock()
	if streamConns[transport] > 0 {
		streamConns[transport]--
	}
	streamConnsMu.Unlock()
}

// StreamConnections returns the current gauge value for transport.
func StreamConnections(transport string) int64 {
	streamConnsMu.Lock()
	defer streamConnsMu.Unlock()
	return streamConns[transport]
}

// FleetCountFunc reports pending reviews and agents by status for the fleet gauges.
type FleetCountFunc func(ctx context.Context) (pendingReviews int64, agentsByStatus map[string]int64, err error)

// InitMetricsWithFleetCount creates instruments and optionally registers a callback for fleet gauges.
// Call after Setup. If count is nil, fleet gauges are not reported.
func InitMetricsWithFleetCount(ctx context.Context, count FleetCountFunc) error {
	if err := InitMetrics(ctx); err != nil {
		return err
	}
	if count == nil {
		return nil
	}
	m := Meter()
	pendingGauge, err := m.Int64ObservableGauge("puppy_station_pending_reviews", metric.WithDescription("Reviews awaiting resolution"))
	if err != nil {
		return err
	}
	agentsGauge, err := m.Int64ObservableGauge("puppy_station_agents", metric.WithDescription("Agents by status"))
	if err != nil {
		return err
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		pending, byStatus, err := count(ctx)
		if err != nil {
			return err
		}
		o.ObserveInt64(pendingGauge, pending)
		for status, n := range byStatus {
			o.ObserveInt64(agentsGauge, n, metric.WithAttributes(AttrStatus.String(status)))
		}
		return nil
	}, pendingGauge, agentsGauge)
	return err
}
