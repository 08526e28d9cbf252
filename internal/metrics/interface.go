package metrics

import (
	"context"
	"time"

	"codeberg.org/mutker/chassisctl/internal/cooling"
)

// MetricsCollector records every zone pass. It satisfies cooling.Observer.
type MetricsCollector interface {
	Observe(ctx context.Context, state cooling.ZoneState) error
	Close() error
}

// MetricsRepository defines the interface for metrics data storage
type MetricsRepository interface {
	Record(sample *ZoneSample) error
	Query(zone string, since time.Time) ([]ZoneSample, error)
	Close() error
}

// ZoneSample is the stored form of a zone report
type ZoneSample struct {
	Timestamp     time.Time
	Zone          string
	Speed         float64
	LastSpeed     float64
	Overheat      bool
	Sensor        string
	DeltaP        float64
	Fans          int
	Thermals      int
	WriteFailures int
}

func sampleFromReport(r cooling.ZoneReport) *ZoneSample {
	return &ZoneSample{
		Timestamp:     r.Time,
		Zone:          r.Zone,
		Speed:         r.Speed,
		LastSpeed:     r.Last,
		Overheat:      r.Overheat,
		Sensor:        r.Sensor,
		DeltaP:        r.DeltaP,
		Fans:          r.Fans,
		Thermals:      r.Thermals,
		WriteFailures: r.WriteFailures,
	}
}
