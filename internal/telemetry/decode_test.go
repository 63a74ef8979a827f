package telemetry

import (
	"encoding/json"
	"errors"
	"testing"
	"time"
)

func TestDecodeReport(t *testing.T) {
	raw := []byte(`{"entityId":"R1","timestamp":60000,"lat":12.5,"lng":40,"battery":55,"signal":4,"speedKmh":18.2,"status":"Active","assignedTaskId":"T-9"}`)
	r, err := DecodeReport(raw)
	if err != nil {
		t.Fatalf("DecodeReport: %v", err)
	}
	if r.CourierID != "R1" || r.Status != StatusActive || r.TaskID != "T-9" {
		t.Fatalf("unexpected report: %+v", r)
	}
	if !r.Timestamp.Equal(time.UnixMilli(60000)) {
		t.Fatalf("timestamp = %v", r.Timestamp)
	}
	if r.Position != (Position{Lat: 12.5, Lng: 40}) {
		t.Fatalf("position = %+v", r.Position)
	}
}

func TestDecodeReportRejects(t *testing.T) {
	cases := map[string]string{
		"not json":       `{"entityId":`,
		"missing id":     `{"timestamp":1,"lat":0,"lng":0,"battery":1,"signal":1,"speedKmh":0,"status":"idle"}`,
		"missing ts":     `{"entityId":"a","lat":0,"lng":0,"battery":1,"signal":1,"speedKmh":0,"status":"idle"}`,
		"missing lat":    `{"entityId":"a","timestamp":1,"lng":0,"battery":1,"signal":1,"speedKmh":0,"status":"idle"}`,
		"bad status":     `{"entityId":"a","timestamp":1,"lat":0,"lng":0,"battery":1,"signal":1,"speedKmh":0,"status":"parked"}`,
		"battery high":   `{"entityId":"a","timestamp":1,"lat":0,"lng":0,"battery":101,"signal":1,"speedKmh":0,"status":"idle"}`,
		"signal high":    `{"entityId":"a","timestamp":1,"lat":0,"lng":0,"battery":10,"signal":6,"speedKmh":0,"status":"idle"}`,
		"negative speed": `{"entityId":"a","timestamp":1,"lat":0,"lng":0,"battery":10,"signal":1,"speedKmh":-1,"status":"idle"}`,
		"float battery":  `{"entityId":"a","timestamp":1,"lat":0,"lng":0,"battery":10.5,"signal":1,"speedKmh":1,"status":"idle"}`,
	}
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			if _, err := DecodeReport([]byte(raw)); !errors.Is(err, ErrMalformed) {
				t.Fatalf("expected ErrMalformed, got %v", err)
			}
		})
	}
}

func TestDecodeReportsArray(t *testing.T) {
	raw := []byte(`[
 {"entityId":"a","timestamp":1,"lat":0,"lng":0,"battery":10,"signal":1,"speedKmh":0,"status":"idle"},
 {"entityId":"b","timestamp":2,"lat":1,"lng":1,"battery":20,"signal":2,"speedKmh":3,"status":"offline"}
]`)
	rs, err := DecodeReports(raw)
	if err != nil {
		t.Fatalf("DecodeReports: %v", err)
	}
	if len(rs) != 2 || rs[1].CourierID != "b" || rs[1].Status != StatusOffline {
		t.Fatalf("unexpected reports: %+v", rs)
	}

	bad := []byte(`[{"entityId":"a","timestamp":1,"lat":0,"lng":0,"battery":10,"signal":1,"speedKmh":0,"status":"idle"},{"entityId":""}]`)
	if _, err := DecodeReports(bad); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for bad element, got %v", err)
	}
}

func TestReportWireRoundTrip(t *testing.T) {
	r := Report{CourierID: "R3", Timestamp: time.UnixMilli(1234).UTC(), Position: Position{Lat: 9, Lng: 5}, Battery: 50, Signal: 3, SpeedKmh: 12, Status: StatusActive}
	b, err := json.Marshal(r.Wire())
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	got, err := DecodeReport(b)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got != r {
		t.Fatalf("got %+v, want %+v", got, r)
	}
}

func TestDecodeRouteAssignment(t *testing.T) {
	a, err := DecodeRouteAssignment([]byte(`{"entityId":"R3","routeStart":{"lat":0,"lng":0},"routeEnd":{"lat":0,"lng":10}}`))
	if err != nil {
		t.Fatalf("DecodeRouteAssignment: %v", err)
	}
	if a.CourierID != "R3" || a.Route.End.Lng != 10 || a.TaskID != "" {
		t.Fatalf("unexpected assignment: %+v", a)
	}
	a, err = DecodeRouteAssignment([]byte(`{"entityId":"R3","routeStart":{"lat":0,"lng":0},"routeEnd":{"lat":0,"lng":10},"assignedTaskId":" T-9 "}`))
	if err != nil || a.TaskID != "T-9" {
		t.Fatalf("task id not decoded: %+v, %v", a, err)
	}
	if _, err := DecodeRouteAssignment([]byte(`{"entityId":"R3","routeStart":{"lat":0,"lng":0}}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("expected ErrMalformed for missing routeEnd, got %v", err)
	}
}

func TestTableNames(t *testing.T) {
	orig := AlertTableName
	AlertTableName = "custom"
	defer func() { AlertTableName = orig }()
	if (AlertRow{}).TableName() != "custom" {
		t.Errorf("expected custom table name, got %s", (AlertRow{}).TableName())
	}
}
