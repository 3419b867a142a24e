package location

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strconv"
	"strings"

	"googlemaps.github.io/maps"
)

// getWiFiAccessPoints lists nearby access points with nmcli.
func getWiFiAccessPoints(ctx context.Context) ([]maps.WiFiAccessPoint, error) {
	if _, err := exec.LookPath("nmcli"); err != nil {
		return nil, fmt.Errorf("nmcli not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "nmcli", "-t", "-f", "BSSID,SIGNAL", "dev", "wifi", "list")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run nmcli: %w", err)
	}
	return parseNmcliWiFi(string(output))
}

// parseNmcliWiFi parses terse nmcli output, where the colons inside a BSSID
// are escaped as "\:". nmcli reports signal quality in percent, which is
// mapped onto the dBm range the API expects.
func parseNmcliWiFi(output string) ([]maps.WiFiAccessPoint, error) {
	var wifiAPs []maps.WiFiAccessPoint
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		fields := splitTerse(scanner.Text())
		if len(fields) != 2 {
			continue
		}
		macAddress := strings.TrimSpace(fields[0])
		if !isValidMAC(macAddress) {
			continue
		}
		quality, err := strconv.Atoi(strings.TrimSpace(fields[1]))
		if err != nil {
			continue
		}
		wifiAPs = append(wifiAPs, maps.WiFiAccessPoint{
			MACAddress:     macAddress,
			SignalStrength: float64(quality)/2 - 100,
		})
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan nmcli output: %w", err)
	}
	return wifiAPs, nil
}

// splitTerse splits a terse nmcli line on unescaped colons.
func splitTerse(line string) []string {
	var (
		fields  []string
		current strings.Builder
		escaped bool
	)
	for _, r := range line {
		switch {
		case escaped:
			current.WriteRune(r)
			escaped = false
		case r == '\\':
			escaped = true
		case r == ':':
			fields = append(fields, current.String())
			current.Reset()
		default:
			current.WriteRune(r)
		}
	}
	return append(fields, current.String())
}

// getCellTowers reads the serving cell of the given modem with mmcli.
func getCellTowers(ctx context.Context, modemIndex int) ([]maps.CellTower, error) {
	if _, err := exec.LookPath("mmcli"); err != nil {
		return nil, fmt.Errorf("mmcli not found: %w", err)
	}

	cmd := exec.CommandContext(ctx, "mmcli", "-m", strconv.Itoa(modemIndex), "--location-get", "--output-keyvalue")
	output, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("failed to run mmcli for modem %d: %w", modemIndex, err)
	}
	return parseMmcliCell(string(output))
}

// parseMmcliCell parses the 3GPP location block of mmcli key-value output.
// LAC, TAC and cell id are hexadecimal.
func parseMmcliCell(output string) ([]maps.CellTower, error) {
	var cellTower maps.CellTower
	scanner := bufio.NewScanner(strings.NewReader(output))
	for scanner.Scan() {
		key, value, found := strings.Cut(scanner.Text(), ":")
		if !found {
			continue
		}
		key = strings.TrimSpace(key)
		value = strings.TrimSpace(value)
		if value == "" || value == "--" {
			continue
		}

		switch key {
		case "modem.location.3gpp.mcc":
			if mcc, err := strconv.Atoi(value); err == nil {
				cellTower.MobileCountryCode = mcc
			}
		case "modem.location.3gpp.mnc":
			if mnc, err := strconv.Atoi(value); err == nil {
				cellTower.MobileNetworkCode = mnc
			}
		case "modem.location.3gpp.lac", "modem.location.3gpp.tac":
			if area, err := strconv.ParseInt(value, 16, 64); err == nil && area != 0 {
				cellTower.LocationAreaCode = int(area)
			}
		case "modem.location.3gpp.cid":
			if cid, err := strconv.ParseInt(value, 16, 64); err == nil {
				cellTower.CellID = int(cid)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan mmcli output: %w", err)
	}

	if cellTower.MobileCountryCode == 0 || cellTower.CellID == 0 {
		return nil, errors.New("incomplete cell tower data")
	}
	return []maps.CellTower{cellTower}, nil
}

// isValidMAC checks for the "00:14:22:01:23:45" form.
func isValidMAC(mac string) bool {
	parts := strings.Split(mac, ":")
	if len(parts) != 6 {
		return false
	}
	for _, part := range parts {
		if len(part) != 2 {
			return false
		}
		if _, err := strconv.ParseUint(part, 16, 8); err != nil {
			return false
		}
	}
	return true
}
