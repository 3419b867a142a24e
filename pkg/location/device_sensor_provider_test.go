package location

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	validGGA = "$GPGGA,123519,4807.038,N,01131.000,E,1,08,0.9,545.4,M,46.9,M,,*47"
	validRMC = "$GPRMC,123519,A,4807.038,N,01131.000,E,022.4,084.4,230394,003.1,W*6A"
	voidRMC  = "$GNRMC,123520,V,4807.038,N,01131.000,E,000.0,000.0,230394,003.1,W*65"
	noFixGGA = "$GPGGA,123519,4807.038,N,01131.000,E,0,00,0.0,0.0,M,0.0,M,,*7C"
	emptyGSV = "$GPGSV,1,1,00*79"
)

func TestReadFix(t *testing.T) {
	stream := strings.Join([]string{
		"4807.038,N,011", // partial sentence right after opening the port
		emptyGSV,
		validGGA,
		validRMC,
	}, "\r\n")

	s, err := ReadFix(strings.NewReader(stream), DefaultUERE)
	require.NoError(t, err)

	assert.Equal(t, GPS, s.Provider)
	assert.InDelta(t, 48.1173, s.Latitude, 1e-6)
	assert.InDelta(t, 11.516667, s.Longitude, 1e-6)
	assert.InDelta(t, 545.4, s.Altitude, 1e-9)
	assert.True(t, s.HasAccuracy)
	assert.InDelta(t, 4.5, s.Accuracy, 1e-9)
	assert.True(t, s.HasSpeed)
	assert.InDelta(t, 22.4*knotsToMetersPerSecond, s.Speed, 1e-9)
	assert.True(t, s.HasBearing)
	assert.InDelta(t, 84.4, s.Bearing, 1e-9)
	assert.Equal(t, time.Date(1994, time.March, 23, 12, 35, 19, 0, time.UTC).UnixMilli(), s.Timestamp)
}

func TestReadFix_OrderIndependent(t *testing.T) {
	s, err := ReadFix(strings.NewReader(validRMC+"\n"+validGGA+"\n"), DefaultUERE)
	require.NoError(t, err)
	assert.InDelta(t, 4.5, s.Accuracy, 1e-9)
}

func TestReadFix_NoValidFix(t *testing.T) {
	_, err := ReadFix(strings.NewReader(voidRMC+"\n"+noFixGGA+"\n"), DefaultUERE)
	assert.ErrorIs(t, err, ErrNoFix)
}

func TestReadFix_NoSentences(t *testing.T) {
	_, err := ReadFix(strings.NewReader("garbage\n$NOT,A,SENTENCE*00\n"), DefaultUERE)
	require.Error(t, err)
	assert.Equal(t, "no NMEA sentences received", err.Error())
}

func TestNewDeviceSensorProvider_DefaultUERE(t *testing.T) {
	d := NewDeviceSensorProvider("/dev/ttyUSB0", 9600, 0)
	assert.Equal(t, DefaultUERE, d.uere)
}

func TestDeviceSensorProvider_Available(t *testing.T) {
	d := NewDeviceSensorProvider(filepath.Join(t.TempDir(), "missing"), 9600, 0)
	assert.False(t, d.Available(context.Background()))

	d = NewDeviceSensorProvider(t.TempDir(), 9600, 0)
	assert.True(t, d.Available(context.Background()))
}
