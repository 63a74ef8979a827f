package tracker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"courierwatch/internal/fleet"
)

const (
	redisGeoKey        = "couriers:geo"
	redisAlertsChannel = "couriers:alerts"
	redisTimeout       = 5 * time.Second
)

// RedisWriter mirrors the latest courier states into Redis hashes and a geo
// set, and publishes each tick's alerts on a pub/sub channel.
type RedisWriter struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisWriter connects to addr. State keys expire after ttl without updates.
func NewRedisWriter(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisWriter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return &RedisWriter{client: client, ttl: ttl}, nil
}

func courierStateKey(id string) string {
	return fmt.Sprintf("courier:%s:state", id)
}

func courierStateFields(e fleet.EntityState, tickID string) map[string]interface{} {
	fields := map[string]interface{}{
		"courier_id": e.ID,
		"name":       e.Name,
		"status":     string(e.Status),
		"lat":        e.Position.Lat,
		"lng":        e.Position.Lng,
		"battery":    e.Battery,
		"signal":     e.Signal,
		"speed_kmh":  e.SpeedKmh,
		"task_id":    e.TaskID,
		"has_route":  e.Route != nil,
		"tick_id":    tickID,
	}
	if e.Reporting() {
		fields["last_telemetry"] = e.LastTelemetry.UnixMilli()
	}
	return fields
}

// geoIndexable reports whether the position fits the Redis geo index bounds.
func geoIndexable(e fleet.EntityState) bool {
	return e.Position.Lng >= -180 && e.Position.Lng <= 180 &&
		e.Position.Lat >= -85.05112878 && e.Position.Lat <= 85.05112878
}

// WritePublication runs one pipeline per tick.
func (w *RedisWriter) WritePublication(p Publication) error {
	ctx, cancel := context.WithTimeout(context.Background(), redisTimeout)
	defer cancel()

	pipe := w.client.Pipeline()
	for _, e := range p.Entities {
		key := courierStateKey(e.ID)
		pipe.HSet(ctx, key, courierStateFields(e, p.ID))
		if w.ttl > 0 {
			pipe.Expire(ctx, key, w.ttl)
		}
		if e.Reporting() && geoIndexable(e) {
			pipe.GeoAdd(ctx, redisGeoKey, &redis.GeoLocation{
				Name:      e.ID,
				Longitude: e.Position.Lng,
				Latitude:  e.Position.Lat,
			})
		}
	}
	if len(p.Alerts) > 0 {
		payload, err := json.Marshal(AlertRows(p))
		if err != nil {
			return fmt.Errorf("failed to marshal alerts: %w", err)
		}
		pipe.Publish(ctx, redisAlertsChannel, payload)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis pipeline failed: %w", err)
	}
	return nil
}

// Close closes the client.
func (w *RedisWriter) Close() error {
	return w.client.Close()
}
