package platform

import (
	"encoding/csv"
	"errors"
	"io"
	"strconv"
	"strings"
)

// UnknownName is used when tasklist has no entry for a pid.
const UnknownName = "Unknown"

// NetstatListener is one LISTENING row of `netstat -ano -p TCP`.
type NetstatListener struct {
	PID  int
	Port uint16
}

// ParseNetstat extracts listening rows. The local address is field 2, the
// owning pid field 5.
func ParseNetstat(output string) []NetstatListener {
	var rows []NetstatListener
	for _, line := range strings.Split(output, "\n") {
		if !strings.Contains(line, "LISTENING") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			continue
		}
		addr := fields[1]
		colon := strings.LastIndex(addr, ":")
		if colon < 0 {
			continue
		}
		port, err := strconv.ParseUint(addr[colon+1:], 10, 16)
		if err != nil || port == 0 {
			continue
		}
		pid, err := strconv.Atoi(fields[4])
		if err != nil || pid <= 0 {
			continue
		}
		rows = append(rows, NetstatListener{PID: pid, Port: uint16(port)})
	}
	return rows
}

// ParseTasklist maps pid to image name from `tasklist /FO CSV /NH` output.
func ParseTasklist(output string) map[int]string {
	r := csv.NewReader(strings.NewReader(output))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	names := make(map[int]string)
	for {
		record, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			continue
		}
		if len(record) < 2 {
			continue
		}
		pid, err := strconv.Atoi(strings.TrimSpace(record[1]))
		if err != nil {
			continue
		}
		names[pid] = strings.TrimSpace(record[0])
	}
	return names
}

// JoinNames attaches tasklist names to netstat rows.
func JoinNames(rows []NetstatListener, names map[int]string) []Listener {
	listeners := make([]Listener, 0, len(rows))
	for _, row := range rows {
		name, ok := names[row.PID]
		if !ok || name == "" {
			name = UnknownName
		}
		listeners = append(listeners, Listener{PID: row.PID, Port: row.Port, Command: name, Name: name})
	}
	return listeners
}
