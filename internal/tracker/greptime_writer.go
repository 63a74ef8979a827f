package tracker

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	gpb "github.com/GreptimeTeam/greptime-proto/go/greptime/v1"
	greptime "github.com/GreptimeTeam/greptimedb-ingester-go"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table"
	"github.com/GreptimeTeam/greptimedb-ingester-go/table/types"

	"courierwatch/internal/telemetry"
)

const (
	defaultGreptimePort = 4001
	greptimeTimeout     = 10 * time.Second
)

// greptimeClient is the subset of the ingester client used by the writer.
type greptimeClient interface {
	Write(ctx context.Context, tables ...*table.Table) (*gpb.GreptimeResponse, error)
}

// GreptimeDBWriter writes alert and courier state rows to GreptimeDB via the ingester client.
type GreptimeDBWriter struct {
	client     greptimeClient
	alertTable string
	stateTable string
}

// NewGreptimeDBWriter connects to endpoint (host or host:port) and database.
func NewGreptimeDBWriter(endpoint, database string) (*GreptimeDBWriter, error) {
	host, port, err := splitEndpoint(endpoint)
	if err != nil {
		return nil, err
	}
	cfg := greptime.NewConfig(host).WithPort(port).WithDatabase(database)
	client, err := greptime.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("greptime client: %w", err)
	}
	return &GreptimeDBWriter{
		client:     client,
		alertTable: telemetry.AlertTableName,
		stateTable: telemetry.StateTableName,
	}, nil
}

func splitEndpoint(endpoint string) (string, int, error) {
	host, portStr, err := net.SplitHostPort(endpoint)
	if err != nil {
		return endpoint, defaultGreptimePort, nil
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return "", 0, fmt.Errorf("invalid greptime port %q: %w", portStr, err)
	}
	return host, port, nil
}

// WritePublication inserts the courier states and the alerts of one tick.
func (w *GreptimeDBWriter) WritePublication(p Publication) error {
	if len(p.Entities) == 0 {
		return nil
	}
	states, err := w.stateRows(StateRows(p))
	if err != nil {
		return err
	}
	tables := []*table.Table{states}
	if alertRows := AlertRows(p); len(alertRows) > 0 {
		alerts, err := w.alertRows(alertRows)
		if err != nil {
			return err
		}
		tables = append(tables, alerts)
	}

	ctx, cancel := context.WithTimeout(context.Background(), greptimeTimeout)
	defer cancel()
	if _, err := w.client.Write(ctx, tables...); err != nil {
		return fmt.Errorf("greptime write: %w", err)
	}
	return nil
}

func (w *GreptimeDBWriter) stateRows(rows []telemetry.StateRow) (*table.Table, error) {
	tbl, err := table.New(w.stateTable)
	if err != nil {
		return nil, err
	}
	tbl.AddTagColumn("courier_id", types.STRING)
	tbl.AddFieldColumn("tick_id", types.STRING)
	tbl.AddFieldColumn("name", types.STRING)
	tbl.AddFieldColumn("status", types.STRING)
	tbl.AddFieldColumn("lat", types.FLOAT64)
	tbl.AddFieldColumn("lng", types.FLOAT64)
	tbl.AddFieldColumn("battery", types.INT64)
	tbl.AddFieldColumn("signal", types.INT64)
	tbl.AddFieldColumn("speed_kmh", types.FLOAT64)
	tbl.AddFieldColumn("task_id", types.STRING)
	tbl.AddFieldColumn("has_route", types.BOOLEAN)
	tbl.AddFieldColumn("last_telemetry", types.TIMESTAMP_MILLISECOND)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		err := tbl.AddRow(
			r.CourierID,
			r.TickID,
			r.Name,
			string(r.Status),
			r.Lat,
			r.Lng,
			int64(r.Battery),
			int64(r.Signal),
			r.SpeedKmh,
			r.TaskID,
			r.HasRoute,
			r.LastTelemetry,
			r.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("state row %s: %w", r.CourierID, err)
		}
	}
	return tbl, nil
}

func (w *GreptimeDBWriter) alertRows(rows []telemetry.AlertRow) (*table.Table, error) {
	tbl, err := table.New(w.alertTable)
	if err != nil {
		return nil, err
	}
	tbl.AddTagColumn("courier_id", types.STRING)
	tbl.AddTagColumn("rule", types.STRING)
	tbl.AddFieldColumn("tick_id", types.STRING)
	tbl.AddFieldColumn("courier_name", types.STRING)
	tbl.AddFieldColumn("severity", types.STRING)
	tbl.AddFieldColumn("message", types.STRING)
	tbl.AddTimestampColumn("ts", types.TIMESTAMP_MILLISECOND)

	for _, r := range rows {
		if err := tbl.AddRow(r.CourierID, r.Rule, r.TickID, r.CourierName, r.Severity, r.Message, r.Timestamp); err != nil {
			return nil, fmt.Errorf("alert row %s/%s: %w", r.CourierID, r.Rule, err)
		}
	}
	return tbl, nil
}
