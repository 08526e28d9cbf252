package cooling

import (
	"encoding/json"
	"os"
	"path/filepath"

	"codeberg.org/mutker/chassisctl/internal/errors"
)

const exportSuffix = ".cooling.json"

// Series is the exported history of one fan or sensor.
type Series struct {
	Name string   `json:"name"`
	Get  []Sample `json:"get"`
	Set  []Sample `json:"set"`
}

// ZoneExport is the document written for each zone on every pass.
type ZoneExport struct {
	Name     string   `json:"name"`
	Fans     []Series `json:"fans"`
	Thermals []Series `json:"thermals"`
}

func seriesOf(h *HistoricalBuffer) Series {
	get, set := h.Snapshot()
	return Series{Name: h.Name(), Get: get, Set: set}
}

// Export snapshots the history of every fan and sensor of the zone.
func (z *Zone) Export() ZoneExport {
	exp := ZoneExport{
		Name:     z.name,
		Fans:     make([]Series, 0, len(z.fans)),
		Thermals: make([]Series, 0, len(z.thermals)),
	}
	for _, fan := range z.fans {
		exp.Fans = append(exp.Fans, seriesOf(fan.History()))
	}
	for _, th := range z.thermals {
		exp.Thermals = append(exp.Thermals, seriesOf(th.History()))
	}
	return exp
}

// Exporter writes zone exports as {dir}/{zone}.cooling.json.
type Exporter struct {
	dir string
}

func NewExporter(dir string) *Exporter {
	return &Exporter{dir: dir}
}

func (e *Exporter) Path(zone string) string {
	return filepath.Join(e.dir, zone+exportSuffix)
}

// Write replaces the zone file atomically so readers never see a partial
// document.
func (e *Exporter) Write(exp ZoneExport) error {
	data, err := json.Marshal(exp)
	if err != nil {
		return errors.New().Wrap(ErrExportFailed, err)
	}

	if err := os.MkdirAll(e.dir, 0o755); err != nil {
		return errors.New().Wrap(ErrExportFailed, err)
	}

	tmp, err := os.CreateTemp(e.dir, "."+exp.Name+"-*.tmp")
	if err != nil {
		return errors.New().Wrap(ErrExportFailed, err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return errors.New().Wrap(ErrExportFailed, err)
	}
	if err := tmp.Close(); err != nil {
		return errors.New().Wrap(ErrExportFailed, err)
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return errors.New().Wrap(ErrExportFailed, err)
	}
	if err := os.Rename(tmp.Name(), e.Path(exp.Name)); err != nil {
		return errors.New().Wrap(ErrExportFailed, err)
	}
	return nil
}
