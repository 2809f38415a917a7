package platform

import (
	"strconv"
	"strings"
)

// LsofArgs builds the lsof arguments for a port set. A nil set lists every
// TCP listener.
func LsofArgs(ports []uint16) []string {
	args := []string{"-sTCP:LISTEN", "-P", "-n"}
	if ports == nil {
		return append(args, "-iTCP")
	}
	for _, p := range ports {
		args = append(args, "-i", ":"+strconv.Itoa(int(p)))
	}
	return args
}

// ParseLsof parses `lsof -sTCP:LISTEN -P -n` output. Lines that do not parse
// are skipped.
func ParseLsof(output string) []Listener {
	var listeners []Listener
	for i, line := range strings.Split(output, "\n") {
		if i == 0 {
			continue // header
		}
		fields := strings.Fields(line)
		if len(fields) < 9 {
			continue
		}
		pid, err := strconv.Atoi(fields[1])
		if err != nil || pid <= 0 {
			continue
		}
		addr := fields[8]
		colon := strings.LastIndex(addr, ":")
		if colon < 0 {
			continue
		}
		port, err := strconv.ParseUint(addr[colon+1:], 10, 16)
		if err != nil || port == 0 {
			continue
		}
		listeners = append(listeners, Listener{
			PID:     pid,
			Port:    uint16(port),
			Command: fields[0],
			Name:    fields[0],
		})
	}
	return listeners
}
