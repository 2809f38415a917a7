// Package display renders snapshots as a console listing.
package display

import (
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"github.com/bearslyricattack/CompliK/portkill/pkg/models"
	"github.com/dustin/go-humanize"
)

const ungrouped = "Other"

// Console prints the listing to a writer. Item ids are 1-based positions
// in the printed order.
type Console struct {
	mu       sync.Mutex
	out      io.Writer
	header   string
	attached bool
}

// NewConsole creates a console display writing to out. header is printed
// above every listing, typically the filter description.
func NewConsole(out io.Writer, header string) *Console {
	return &Console{out: out, header: header}
}

// SetHeader changes the line printed above the listing.
func (c *Console) SetHeader(header string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.header = header
}

// Detach ends the current listing.
func (c *Console) Detach() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.attached {
		return nil
	}
	c.attached = false
	_, err := fmt.Fprintln(c.out, strings.Repeat("-", 60))
	return err
}

// Attach prints snap and returns the item id to port mapping.
func (c *Console) Attach(snap models.Snapshot) (map[string]uint16, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	items, err := Render(c.out, c.header, snap)
	if err != nil {
		return nil, err
	}
	c.attached = true
	return items, nil
}

// Render writes snap grouped by process group and returns the item ids.
func Render(out io.Writer, header string, snap models.Snapshot) (map[string]uint16, error) {
	items := make(map[string]uint16, snap.Len())
	title := fmt.Sprintf("%d process(es) listening", snap.Len())
	if header != "" {
		title += " | " + header
	}
	if _, err := fmt.Fprintln(out, title); err != nil {
		return nil, err
	}
	if snap.Len() == 0 {
		_, err := fmt.Fprintln(out, "  no processes on the watched ports")
		return items, err
	}

	groups, order := groupRecords(snap.Records())

	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tPORT\tPID\tNAME\tPROJECT\tCPU\tMEM\tCONTAINER")
	id := 1
	for _, group := range order {
		fmt.Fprintf(w, "[%s]\t\t\t\t\t\t\t\n", group)
		for _, r := range groups[group] {
			itemID := strconv.Itoa(id)
			items[itemID] = r.Port
			fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
				itemID, r.Port, r.PID, r.ShortName(), orDash(r.Project), cpu(r), mem(r), orDash(r.ContainerName))
			id++
		}
	}
	return items, w.Flush()
}

func groupRecords(records []models.ProcessRecord) (map[string][]models.ProcessRecord, []string) {
	groups := make(map[string][]models.ProcessRecord)
	for _, r := range records {
		g := r.Group
		if g == "" {
			g = ungrouped
		}
		groups[g] = append(groups[g], r)
	}
	order := make([]string, 0, len(groups))
	for g := range groups {
		if g != ungrouped {
			order = append(order, g)
		}
	}
	sort.Strings(order)
	if _, ok := groups[ungrouped]; ok {
		order = append(order, ungrouped)
	}
	return groups, order
}

func cpu(r models.ProcessRecord) string {
	if r.CPUPercent == nil {
		return "-"
	}
	return fmt.Sprintf("%.1f%%", *r.CPUPercent)
}

func mem(r models.ProcessRecord) string {
	if r.MemoryBytes == nil {
		return "-"
	}
	return humanize.Bytes(*r.MemoryBytes)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

// FormatOutcome renders a kill outcome as one line.
func FormatOutcome(o models.KillOutcome) string {
	line := fmt.Sprintf("pid %d: %s (%s", o.PID, o.Final, o.Stage)
	if o.Escalated {
		line += ", escalated"
	}
	line += fmt.Sprintf(", %s)", o.Duration.Round(time.Millisecond))
	if len(o.Errors) > 0 {
		line += " errors: " + strings.Join(o.Errors, "; ")
	}
	return line
}

// FormatBulk renders a bulk result.
func FormatBulk(b models.BulkKillResult) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%d process(es) found, %d terminated\n", b.Count, b.Terminated())
	for _, o := range b.Outcomes {
		sb.WriteString("  " + FormatOutcome(o) + "\n")
	}
	return sb.String()
}
