package hwmon

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"codeberg.org/mutker/chassisctl/internal/errors"
)

const (
	pwmMax       = 255
	pwmManual    = "1"
	filePerm     = 0o644
	hwmonPattern = "class/hwmon/hwmon*/pwm[0-9]*"
)

// pwmFan is one pwmN control file, with its fanN_input tachometer when
// the chip provides one.
type pwmFan struct {
	name  string
	pwm   string
	input string
}

func discoverFans(root string) ([]*pwmFan, error) {
	matches, err := filepath.Glob(filepath.Join(root, hwmonPattern))
	if err != nil {
		return nil, errors.New().Wrap(ErrFanRead, err)
	}
	sort.Strings(matches)

	var fans []*pwmFan
	for _, path := range matches {
		base := filepath.Base(path)
		// pwm1 only, not pwm1_enable or pwm1_auto_point1_pwm
		if strings.Contains(base, "_") {
			continue
		}
		dir := filepath.Dir(path)
		index := strings.TrimPrefix(base, "pwm")

		f := &pwmFan{
			name: chipName(dir) + " " + base,
			pwm:  path,
		}
		input := filepath.Join(dir, fmt.Sprintf("fan%s_input", index))
		if _, err := os.Stat(input); err == nil {
			f.input = input
		}
		fans = append(fans, f)
	}
	return fans, nil
}

func chipName(dir string) string {
	data, err := os.ReadFile(filepath.Join(dir, "name"))
	if err != nil || strings.TrimSpace(string(data)) == "" {
		return filepath.Base(dir)
	}
	return strings.TrimSpace(string(data))
}

func readInt(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.New().Wrap(ErrFanRead, err)
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, errors.New().Wrap(ErrFanRead, err)
	}
	return v, nil
}

func (f *pwmFan) Name() string {
	return f.name
}

func (f *pwmFan) Presence() (bool, error) {
	_, err := os.Stat(f.pwm)
	return err == nil, nil
}

// Status is false for a fan whose tachometer reads zero while driven.
func (f *pwmFan) Status() (bool, error) {
	if f.input == "" {
		return true, nil
	}
	rpm, err := readInt(f.input)
	if err != nil {
		return false, err
	}
	pwm, err := readInt(f.pwm)
	if err != nil {
		return false, err
	}
	return rpm > 0 || pwm == 0, nil
}

func (f *pwmFan) Speed() (float64, error) {
	pwm, err := readInt(f.pwm)
	if err != nil {
		return 0, err
	}
	return float64(pwm) * 100 / pwmMax, nil
}

// SetSpeed switches the channel to manual mode and writes the duty cycle.
func (f *pwmFan) SetSpeed(speed float64) error {
	if speed < 0 || speed > 100 || math.IsNaN(speed) {
		return errors.New().WithData(ErrInvalidPWMValue, speed)
	}

	enable := f.pwm + "_enable"
	if _, err := os.Stat(enable); err == nil {
		if err := os.WriteFile(enable, []byte(pwmManual), filePerm); err != nil {
			return errors.New().Wrap(ErrFanWrite, err)
		}
	}

	value := int(math.Round(speed * pwmMax / 100))
	if err := os.WriteFile(f.pwm, []byte(strconv.Itoa(value)), filePerm); err != nil {
		return errors.New().Wrap(ErrFanWrite, err)
	}
	return nil
}
