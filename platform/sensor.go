package platform

import (
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// IIOSensor reads a DHT21/AM2301 through the Linux dht11 IIO driver
// (dtoverlay=dht11). The driver reports milli degrees Celsius and milli
// percent relative humidity.
type IIOSensor struct {
	path string
}

func NewIIOSensor(path string) *IIOSensor {
	return &IIOSensor{path: path}
}

func (s *IIOSensor) Read() Reading {
	temp, err := readMilli(filepath.Join(s.path, "in_temp_input"))
	if err != nil {
		slog.Debug("Temperature read failed", "error", err)
		return FailedReading()
	}
	hum, err := readMilli(filepath.Join(s.path, "in_humidityrelative_input"))
	if err != nil {
		slog.Debug("Humidity read failed", "error", err)
		return FailedReading()
	}
	return Reading{Temperature: temp, Humidity: hum}
}

func readMilli(file string) (float64, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		// the driver answers EIO when the sensor did not respond in time
		return math.NaN(), err
	}
	v, err := strconv.ParseInt(strings.TrimSpace(string(data)), 10, 64)
	if err != nil {
		return math.NaN(), fmt.Errorf("malformed value in %s: %w", file, err)
	}
	return float64(v) / 1000, nil
}
