package cooling

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"codeberg.org/mutker/chassisctl/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingObserver struct {
	states []ZoneState
	err    error
}

func (r *recordingObserver) Observe(_ context.Context, state ZoneState) error {
	r.states = append(r.states, state)
	return r.err
}

func newTestManager(clock Clock) (*Manager, *fakeFan, *fakeTemp) {
	fan := newFakeFan("fan1", 30)
	temp := &fakeTemp{name: "asic", temperature: 70, high: 80, critical: 100, target: 50}
	m := NewManager(ManagerConfig{DataPoints: 4},
		WithPlatform(&fakePlatform{inv: &fakeInventory{
			fans:  []platform.FanDevice{fan},
			temps: []platform.TempDevice{temp},
		}}),
		WithClock(clock),
	)
	return m, fan, temp
}

func TestAlgorithmTimeBase(t *testing.T) {
	clock := &stepClock{step: 10 * time.Second}
	m, _, _ := newTestManager(fixedClock(0))
	a := NewAlgorithm(AlgorithmConfig{Limits: DefaultZoneLimits()}, m, WithAlgorithmClock(clock.read))

	a.Run(context.Background())
	assert.Equal(t, Interval, a.Elapsed(), "first tick scales by one interval")
	assert.Equal(t, a.Now()-Interval, a.Previous())

	a.Run(context.Background())
	assert.Equal(t, 10*time.Second, a.Elapsed())

	a.Run(context.Background(), WithElapsed(time.Second))
	assert.Equal(t, time.Second, a.Elapsed())
}

func TestAlgorithmDefaultZone(t *testing.T) {
	a := NewAlgorithm(AlgorithmConfig{}, nil)
	require.Len(t, a.Zones(), 1)
	assert.Equal(t, DefaultZone, a.Zones()[0].Name())

	reports := a.Run(context.Background())
	require.Len(t, reports, 1)
	assert.Equal(t, MaxSpeed, reports[0].Speed)
}

// Six ticks of a sixth of an interval land close to one full tick.
func TestAlgorithmSubIntervalTicks(t *testing.T) {
	ctx := context.Background()
	limits := ZoneLimits{MinSpeed: 30, MaxIncrease: 25, MaxDecrease: 10}

	clock := &stepClock{step: Interval / 6}
	m, fan, _ := newTestManager(fixedClock(0))
	m.Tick(ctx)
	a := NewAlgorithm(AlgorithmConfig{Limits: limits}, m, WithAlgorithmClock(clock.read))
	a.Run(ctx, WithUpdate(), WithElapsed(Interval/6))
	for i := 0; i < 5; i++ {
		a.Run(ctx, WithUpdate())
	}
	sixth := fan.speed

	full, fullFan, _ := newTestManager(fixedClock(0))
	full.Tick(ctx)
	b := NewAlgorithm(AlgorithmConfig{Limits: limits}, full, WithAlgorithmClock(clock.read))
	b.Run(ctx, WithUpdate())

	assert.InDelta(t, fullFan.speed, sixth, 0.01)
	assert.InDelta(t, 30+25*(70.0-50)/(80-50), fullFan.speed, 1e-9)
}

func TestAlgorithmExport(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "cooling")
	clock := &stepClock{step: time.Second}
	m, _, _ := newTestManager(fixedClock(time.Second))
	m.Tick(ctx)

	obs := &recordingObserver{err: errFake}
	a := NewAlgorithm(AlgorithmConfig{
		Limits:     DefaultZoneLimits(),
		DataPoints: 4,
		ExportPath: dir,
	}, m, WithAlgorithmClock(clock.read), WithObservers(obs))
	a.Run(ctx)

	data, err := os.ReadFile(filepath.Join(dir, "System.cooling.json"))
	require.NoError(t, err)

	var doc struct {
		Name string `json:"name"`
		Fans []struct {
			Name string            `json:"name"`
			Get  []json.RawMessage `json:"get"`
			Set  []json.RawMessage `json:"set"`
		} `json:"fans"`
		Thermals []Series `json:"thermals"`
	}
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.Equal(t, "System", doc.Name)
	require.Len(t, doc.Fans, 1)
	assert.Equal(t, "fan1", doc.Fans[0].Name)
	assert.Len(t, doc.Fans[0].Get, 4)
	assert.Len(t, doc.Fans[0].Set, 4)
	assert.JSONEq(t, `[null,null]`, string(doc.Fans[0].Set[0]))
	require.Len(t, doc.Thermals, 1)
	assert.Equal(t, "asic", doc.Thermals[0].Name)
	assert.True(t, doc.Thermals[0].Get[3].Valid)

	require.Len(t, obs.states, 1, "observer errors do not stop the tick")
	assert.Equal(t, "System", obs.states[0].Report.Zone)
	assert.Equal(t, doc.Name, obs.states[0].Export.Name)
}

func TestAlgorithmSimulationSkipsExport(t *testing.T) {
	dir := t.TempDir()
	a := NewAlgorithm(AlgorithmConfig{ExportPath: dir, Simulation: true}, nil)
	a.Run(context.Background())

	_, err := os.Stat(filepath.Join(dir, "System.cooling.json"))
	assert.True(t, os.IsNotExist(err))
}

func TestExporterPath(t *testing.T) {
	e := NewExporter("/var/run/cooling")
	assert.Equal(t, "/var/run/cooling/Fabric.cooling.json", e.Path("Fabric"))
}
