package main

import (
	"context"
	"sort"
	"strconv"

	"codeberg.org/mutker/chassisctl/internal/cooling"
	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/platform"
)

// Rows written by this daemon carry publisherField=publisherName, so
// ownership survives a restart.
const (
	publisherField = "publisher"
	publisherName  = "chassisctl"
)

type thresholdStore interface {
	Keys(ctx context.Context, table string) ([]string, error)
	Row(ctx context.Context, table, key string) (map[string]string, error)
	SetRow(ctx context.Context, table, key string, fields map[string]string) error
	DeleteRow(ctx context.Context, table, key string) error
}

// thresholdWriter publishes the sensors read from hardware to
// TEMPERATURE_INFO and deletes its rows once their sensor stops being
// listed. Rows of other publishers are left alone.
type thresholdWriter struct {
	store thresholdStore
	owned map[string]bool
}

func newThresholdWriter(ctx context.Context, store thresholdStore) (*thresholdWriter, error) {
	errFactory := errors.New()
	w := &thresholdWriter{store: store, owned: make(map[string]bool)}

	keys, err := store.Keys(ctx, platform.TableTemperatureInfo)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitFailed, err)
	}
	for _, key := range keys {
		row, err := store.Row(ctx, platform.TableTemperatureInfo, key)
		if err != nil {
			return nil, errFactory.Wrap(errors.ErrInitFailed, err)
		}
		if row[publisherField] == publisherName {
			w.owned[key] = true
		}
	}
	return w, nil
}

// Publishes reports whether the row is one of ours.
func (w *thresholdWriter) Publishes(table, key string) bool {
	return table == platform.TableTemperatureInfo && w.owned[key]
}

// listedByHardware holds for chip sensors the latest discovery found in
// an inventory or through the platform API.
func listedByHardware(th cooling.ThermalEntity) bool {
	if _, ok := th.(*cooling.Thermal); !ok || !th.Valid() {
		return false
	}
	return th.ListedBy(cooling.SourceInv) || th.ListedBy(cooling.SourceAPI)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func (w *thresholdWriter) Write(ctx context.Context, thermals []cooling.ThermalEntity) error {
	var failed []string
	live := make(map[string]bool)

	for _, th := range thermals {
		if !listedByHardware(th) {
			continue
		}
		live[th.Name()] = true

		fields := map[string]string{
			"temperature":             formatFloat(th.Temperature()),
			"high_threshold":          formatFloat(th.Overheat()),
			"critical_high_threshold": formatFloat(th.Critical()),
			"warning_status":          strconv.FormatBool(th.InOverheat()),
			publisherField:            publisherName,
		}
		if err := w.store.SetRow(ctx, platform.TableTemperatureInfo, th.Name(), fields); err != nil {
			failed = append(failed, th.Name())
			continue
		}
		w.owned[th.Name()] = true
	}

	for key := range w.owned {
		if live[key] {
			continue
		}
		if err := w.store.DeleteRow(ctx, platform.TableTemperatureInfo, key); err != nil {
			failed = append(failed, key)
			continue
		}
		delete(w.owned, key)
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return errors.New().WithData(errors.ErrOperationFailed, failed)
	}
	return nil
}
