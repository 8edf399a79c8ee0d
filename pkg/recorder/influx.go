// Package recorder writes panel activity to an influxdb bucket.
package recorder

import (
	"fmt"
	"strconv"
	"time"

	"tadl/pkg/port"
	"tadl/pkg/ttl"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/pkg/errors"
	"github.com/womat/debug"
)

const (
	// EventMeasurement holds one point per line event.
	EventMeasurement = "ttl_event"
	// WordMeasurement holds one point per stream word of a snapshot.
	WordMeasurement = "ttl_word"
)

// Options configures the influxdb connection.
type Options struct {
	Host         string
	Token        string
	Organization string
	Bucket       string
	// Panel tags every point.
	Panel string
}

// Recorder writes events and snapshots asynchronously.
type Recorder struct {
	client influxdb2.Client
	writer api.WriteAPI
	panel  string
	done   chan struct{}
}

// New connects the write api of bucket. It returns nil if no host is defined.
func New(o Options) (*Recorder, error) {
	if o.Host == "" {
		return nil, nil
	}
	if o.Bucket == "" {
		return nil, errors.Errorf("influx host %s without bucket", o.Host)
	}

	client := influxdb2.NewClient(o.Host, o.Token)
	r := &Recorder{
		client: client,
		writer: client.WriteAPI(o.Organization, o.Bucket),
		panel:  o.Panel,
		done:   make(chan struct{}),
	}

	go func() {
		defer close(r.done)
		for err := range r.writer.Errors() {
			debug.ErrorLog.Printf("influx write: %v", err)
		}
	}()
	return r, nil
}

// Emit records ev; Recorder is a port.Sink.
func (r *Recorder) Emit(ev port.Event) error {
	if r == nil {
		return nil
	}
	r.writer.WritePoint(EventPoint(r.panel, ev, time.Now()))
	return nil
}

// Record writes the words of s.
func (r *Recorder) Record(s ttl.Snapshot) {
	if r == nil {
		return
	}
	for _, p := range SnapshotPoints(r.panel, s, time.Now()) {
		r.writer.WritePoint(p)
	}
}

// Close flushes pending points and closes the client.
func (r *Recorder) Close() error {
	if r == nil {
		return nil
	}
	r.writer.Flush()
	r.client.Close()
	select {
	case <-r.done:
	case <-time.After(time.Second):
	}
	return nil
}

// EventPoint returns the point of a line event.
func EventPoint(panel string, ev port.Event, ts time.Time) *write.Point {
	state := 0
	if ev.State() {
		state = 1
	}
	return influxdb2.NewPoint(EventMeasurement,
		map[string]string{
			"panel":  panel,
			"stream": strconv.Itoa(int(ev.Stream)),
			"line":   strconv.Itoa(ev.Line),
		},
		map[string]interface{}{
			"state":  state,
			"offset": ev.SampleOffset,
		},
		ts)
}

// SnapshotPoints returns one point per stream word of s.
func SnapshotPoints(panel string, s ttl.Snapshot, ts time.Time) []*write.Point {
	points := make([]*write.Point, 0, len(s.Words))
	for _, w := range s.Words {
		points = append(points, influxdb2.NewPoint(WordMeasurement,
			map[string]string{
				"panel":  panel,
				"stream": strconv.Itoa(int(w.Stream)),
			},
			map[string]interface{}{
				"word":     int64(w.Word),
				"hex":      fmt.Sprintf("0x%08X", w.Word),
				"sequence": int64(s.Sequence),
			},
			ts))
	}
	return points
}
