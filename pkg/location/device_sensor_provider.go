package location

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"time"

	"github.com/adrianmo/go-nmea"
	"github.com/tarm/serial"
)

const (
	// knotsToMetersPerSecond converts NMEA speed over ground.
	knotsToMetersPerSecond = 0.514444
	// DefaultUERE is the user equivalent range error, in meters, used to
	// turn HDOP into an accuracy radius.
	DefaultUERE = 5.0
)

// ErrNoFix is returned when the GPS stream ends before a valid fix.
var ErrNoFix = errors.New("no valid GPS data found")

// DeviceSensorProvider reads fixes from a GPS receiver on a serial port.
type DeviceSensorProvider struct {
	port     string // Serial port to which the GPS device is connected
	baudRate int    // Baud rate for the serial communication
	uere     float64
}

// NewDeviceSensorProvider creates a GPS fetcher for the given port and baud
// rate. A non-positive uere selects DefaultUERE.
func NewDeviceSensorProvider(port string, baudRate int, uere float64) *DeviceSensorProvider {
	if uere <= 0 {
		uere = DefaultUERE
	}
	return &DeviceSensorProvider{
		port:     port,
		baudRate: baudRate,
		uere:     uere,
	}
}

// Available reports whether the serial device exists.
func (d *DeviceSensorProvider) Available(_ context.Context) bool {
	_, err := os.Stat(d.port)
	return err == nil
}

// Fetch opens the serial port and reads until a complete fix is found.
func (d *DeviceSensorProvider) Fetch(ctx context.Context) (*Sample, error) {
	c := &serial.Config{Name: d.port, Baud: d.baudRate}
	s, err := serial.OpenPort(c)
	if err != nil {
		return nil, err
	}
	defer s.Close()

	// Closing the port unblocks the pending read on cancellation.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			s.Close()
		case <-done:
		}
	}()

	sample, err := ReadFix(s, d.uere)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return nil, ctxErr
	}
	return sample, err
}

// ReadFix scans NMEA sentences until it has both a valid GGA (position,
// altitude, HDOP) and a valid RMC (speed, course, date and time).
func ReadFix(r io.Reader, uere float64) (*Sample, error) {
	var (
		gga    *nmea.GGA
		rmc    *nmea.RMC
		parsed bool
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "$") {
			continue
		}
		sentence, err := nmea.Parse(line)
		if err != nil {
			// Partial sentences are common right after opening the port.
			continue
		}
		parsed = true

		switch sentence.DataType() {
		case nmea.TypeGGA:
			if m, ok := sentence.(nmea.GGA); ok && m.FixQuality != nmea.Invalid {
				gga = &m
			}
		case nmea.TypeRMC:
			if m, ok := sentence.(nmea.RMC); ok && m.Validity == nmea.ValidRMC {
				rmc = &m
			}
		}

		if gga != nil && rmc != nil {
			return combineFix(gga, rmc, uere), nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	if !parsed {
		return nil, errors.New("no NMEA sentences received")
	}
	return nil, ErrNoFix
}

func combineFix(gga *nmea.GGA, rmc *nmea.RMC, uere float64) *Sample {
	opts := []SampleOption{
		WithAltitude(gga.Altitude),
		WithSpeed(rmc.Speed * knotsToMetersPerSecond),
		WithBearing(rmc.Course),
	}
	if gga.HDOP > 0 {
		opts = append(opts, WithAccuracy(gga.HDOP*uere))
	}
	return NewSample(GPS, fixTime(rmc).UnixMilli(), rmc.Latitude, rmc.Longitude, opts...)
}

// fixTime builds the UTC time of an RMC sentence, falling back to the local
// clock when the receiver has no date yet.
func fixTime(rmc *nmea.RMC) time.Time {
	if !rmc.Date.Valid || !rmc.Time.Valid {
		return time.Now().UTC()
	}
	year := 2000 + rmc.Date.YY
	if rmc.Date.YY >= 80 {
		year = 1900 + rmc.Date.YY
	}
	return time.Date(year, time.Month(rmc.Date.MM), rmc.Date.DD,
		rmc.Time.Hour, rmc.Time.Minute, rmc.Time.Second,
		rmc.Time.Millisecond*int(time.Millisecond), time.UTC)
}
