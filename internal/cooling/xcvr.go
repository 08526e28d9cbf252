package cooling

import (
	"context"

	"codeberg.org/mutker/chassisctl/internal/errors"
	"codeberg.org/mutker/chassisctl/internal/platform"
)

// DOM threshold fields used as overheat and critical
const (
	domHighWarning = "temphighwarning"
	domHighAlarm   = "temphighalarm"
)

type xcvrSource interface {
	readTemperature(ctx context.Context) (float64, error)
	readThresholds(ctx context.Context) (overheat, critical *float64, err error)
}

type sfpXcvr struct {
	sfp platform.Sfp
}

func (s sfpXcvr) readTemperature(_ context.Context) (float64, error) {
	v, err := s.sfp.Temperature()
	if err != nil {
		return 0, errors.New().Wrap(ErrSourceUnavailable, err)
	}
	return v, nil
}

func (s sfpXcvr) readThresholds(_ context.Context) (overheat, critical *float64, err error) {
	info, err := s.sfp.ThresholdInfo()
	if err != nil {
		return nil, nil, errors.New().Wrap(ErrSourceUnavailable, err)
	}
	return parseThresholds(info)
}

type dbXcvr struct {
	db             platform.StateDB
	sensorTable    string
	thresholdTable string
	key            string
}

func (d dbXcvr) readTemperature(ctx context.Context) (float64, error) {
	fields, err := dbRow{db: d.db, table: d.sensorTable, key: d.key}.fields(ctx)
	if err != nil {
		return 0, err
	}
	raw, err := field(fields, "temperature")
	if err != nil {
		return 0, err
	}
	return parseFloat(raw)
}

func (d dbXcvr) readThresholds(ctx context.Context) (overheat, critical *float64, err error) {
	fields, err := dbRow{db: d.db, table: d.thresholdTable, key: d.key}.fields(ctx)
	if err != nil {
		return nil, nil, err
	}
	return parseThresholds(fields)
}

func parseThresholds(fields map[string]string) (overheat, critical *float64, err error) {
	if overheat, err = parseOptionalFloat(fields[domHighWarning]); err != nil {
		return nil, nil, err
	}
	if critical, err = parseOptionalFloat(fields[domHighAlarm]); err != nil {
		return nil, nil, err
	}
	return overheat, critical, nil
}

// XcvrThermal is a transceiver temperature. Thresholds are read once, on
// the first successful update; later updates refresh the temperature only.
type XcvrThermal struct {
	thermalData
	sources          slots[xcvrSource]
	thresholdsLoaded bool
}

func newXcvrThermal(name string, dataPoints int, targetFactor float64, clock Clock) *XcvrThermal {
	return &XcvrThermal{thermalData: newThermalData(name, dataPoints, targetFactor, clock, "xcvr")}
}

func (x *XcvrThermal) RegisterAPI(sfp platform.Sfp) bool {
	if sfp == nil {
		return false
	}
	return x.sources.register(SourceAPI, sfpXcvr{sfp: sfp})
}

func (x *XcvrThermal) RegisterDB(db platform.StateDB, sensorTable, thresholdTable, key string) bool {
	if db == nil {
		return false
	}
	return x.sources.register(SourceDB, dbXcvr{
		db:             db,
		sensorTable:    sensorTable,
		thresholdTable: thresholdTable,
		key:            key,
	})
}

func (x *XcvrThermal) Sources() []SourceKind {
	return x.sources.kinds()
}

func (x *XcvrThermal) ListedBy(kind SourceKind) bool {
	return x.sources.listed[kind]
}

func (x *XcvrThermal) resetListed() {
	x.sources.listed = [numSources]bool{}
}

func (x *XcvrThermal) Update(ctx context.Context) bool {
	for _, kind := range updateOrder {
		src, ok := x.sources.get(kind)
		if !ok {
			continue
		}
		temp, err := tryRead(func() (float64, error) { return src.readTemperature(ctx) })
		if err != nil {
			x.log.Debug().
				Str("xcvr", x.name).
				Str("source", kind.String()).
				Err(err).
				Msg("Transceiver source failed")
			continue
		}
		state := x.state
		state.Temperature = floatPtr(temp)
		if !x.thresholdsLoaded {
			x.loadThresholds(ctx, kind, src, &state)
		}
		x.record(state)
		return true
	}
	return false
}

func (x *XcvrThermal) loadThresholds(ctx context.Context, kind SourceKind, src xcvrSource, state *ThermalState) {
	type pair struct{ overheat, critical *float64 }
	p, err := tryRead(func() (pair, error) {
		o, c, err := src.readThresholds(ctx)
		return pair{o, c}, err
	})
	if err != nil {
		x.log.Debug().
			Str("xcvr", x.name).
			Str("source", kind.String()).
			Err(err).
			Msg("Transceiver thresholds unavailable")
		return
	}
	state.Overheat = p.overheat
	state.Critical = p.critical
	x.thresholdsLoaded = true
}
