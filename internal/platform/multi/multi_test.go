package multi

import (
	"testing"

	"codeberg.org/mutker/chassisctl/internal/platform"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type namedFan struct{ name string }

func (f namedFan) Name() string          { return f.name }
func (namedFan) Presence() (bool, error) { return true, nil }
func (namedFan) Status() (bool, error)   { return true, nil }
func (namedFan) Speed() (float64, error) { return 50, nil }
func (namedFan) SetSpeed(float64) error  { return nil }

type namedTemp struct{ name string }

func (t namedTemp) Name() string                          { return t.name }
func (namedTemp) Temperature() (float64, error)           { return 40, nil }
func (namedTemp) HighThreshold() (float64, error)         { return 80, nil }
func (namedTemp) HighCriticalThreshold() (float64, error) { return 90, nil }

type staticInventory struct {
	fans  []platform.FanDevice
	temps []platform.TempDevice
}

func (s staticInventory) Fans() []platform.FanDevice   { return s.fans }
func (s staticInventory) Temps() []platform.TempDevice { return s.temps }
func (staticInventory) PsuSlots() []platform.PsuSlot   { return nil }

func names[T interface{ Name() string }](items []T) []string {
	out := make([]string, 0, len(items))
	for _, i := range items {
		out = append(out, i.Name())
	}
	return out
}

func TestPlatformMerge(t *testing.T) {
	host := staticInventory{
		fans:  []platform.FanDevice{namedFan{"nct6775 pwm1"}},
		temps: []platform.TempDevice{namedTemp{"coretemp_package_id_0"}},
	}
	gpu := staticInventory{
		fans:  []platform.FanDevice{namedFan{"GPU0 fan0"}, namedFan{"GPU0 fan1"}},
		temps: []platform.TempDevice{namedTemp{"GPU0"}},
	}

	p := New(host, nil, gpu)
	require.Equal(t, 2, p.Len())

	inv := p.Inventory()
	assert.Equal(t, []string{"nct6775 pwm1", "GPU0 fan0", "GPU0 fan1"}, names(inv.Fans()))
	assert.Equal(t, []string{"coretemp_package_id_0", "GPU0"}, names(inv.Temps()))
	assert.Empty(t, inv.PsuSlots())
	assert.Empty(t, p.Cards())
}

func TestPlatformCards(t *testing.T) {
	p := New()
	p.AddCard(0, staticInventory{temps: []platform.TempDevice{namedTemp{"local"}}})
	p.AddCard(2, staticInventory{temps: []platform.TempDevice{namedTemp{"ASIC"}}})
	p.AddCard(3, nil)

	assert.Equal(t, []string{"local"}, names(p.Inventory().Temps()))
	require.Len(t, p.Cards(), 1)
	assert.Equal(t, 2, p.Cards()[0].Slot)
}
