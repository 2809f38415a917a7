package config

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
)

// ParseRange parses "low-high" into an inclusive port range.
func ParseRange(expr string) (uint16, uint16, error) {
	lowStr, highStr, ok := strings.Cut(strings.TrimSpace(expr), "-")
	if !ok {
		return 0, 0, fmt.Errorf("range %q must look like low-high", expr)
	}
	low, err := parsePort(lowStr)
	if err != nil {
		return 0, 0, err
	}
	high, err := parsePort(highStr)
	if err != nil {
		return 0, 0, err
	}
	if low > high {
		return 0, 0, fmt.Errorf("range %q is reversed", expr)
	}
	return low, high, nil
}

func parsePort(s string) (uint16, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("port %q is not a number", s)
	}
	if n < 1 || n > 65535 {
		return 0, fmt.Errorf("port %d is out of range 1-65535", n)
	}
	return uint16(n), nil
}

// ParsePortList parses a comma separated list of ports and ranges such as
// "3000,8080,5000-5010".
func ParsePortList(list string) ([]uint16, error) {
	set := make(map[uint16]struct{})
	for _, item := range strings.Split(list, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if err := addItem(set, item); err != nil {
			return nil, err
		}
	}
	return sortedPorts(set), nil
}

// PortSet merges the explicit ports and the ranges of a scanner config into
// one sorted, de-duplicated set.
func PortSet(cfg models.ScannerConfig) ([]uint16, error) {
	set := make(map[uint16]struct{})
	for _, p := range cfg.Ports {
		if p < 1 || p > 65535 {
			return nil, fmt.Errorf("port %d is out of range 1-65535", p)
		}
		set[uint16(p)] = struct{}{}
	}
	for _, r := range cfg.PortRanges {
		if err := addItem(set, r); err != nil {
			return nil, err
		}
	}
	return sortedPorts(set), nil
}

func addItem(set map[uint16]struct{}, item string) error {
	if strings.Contains(item, "-") {
		low, high, err := ParseRange(item)
		if err != nil {
			return err
		}
		for p := int(low); p <= int(high); p++ {
			set[uint16(p)] = struct{}{}
		}
		return nil
	}
	p, err := parsePort(item)
	if err != nil {
		return err
	}
	set[p] = struct{}{}
	return nil
}

func sortedPorts(set map[uint16]struct{}) []uint16 {
	ports := make([]uint16, 0, len(set))
	for p := range set {
		ports = append(ports, p)
	}
	sort.Slice(ports, func(i, j int) bool { return ports[i] < ports[j] })
	return ports
}
