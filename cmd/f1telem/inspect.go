package main

import (
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"

	"github.com/banshee-data/f1-telemetry/internal/monitoring"
	"github.com/banshee-data/f1-telemetry/internal/network"
	"github.com/banshee-data/f1-telemetry/internal/packet"
)

type kindSummary struct {
	count   int
	bytes   int
	minSize int
	maxSize int
}

// captureSummary is what -inspect reports about a capture.
type captureSummary struct {
	kinds    map[packet.PacketID]*kindSummary
	short    int
	sessions map[uint64]struct{}
	first    time.Time
	last     time.Time
	stats    *monitoring.PacketStats
}

func summariseCapture(path string, port int) (*captureSummary, error) {
	sum := &captureSummary{
		kinds:    make(map[packet.PacketID]*kindSummary),
		sessions: make(map[uint64]struct{}),
		stats:    monitoring.NewPacketStats(),
	}
	err := network.ReadPCAPFile(path, port, func(d network.CapturedDatagram) error {
		if sum.first.IsZero() {
			sum.first = d.Timestamp
		}
		sum.last = d.Timestamp

		sum.stats.AddPacket(len(d.Payload))
		rec, reason := packet.Inspect(d.Payload)
		sum.stats.AddInspected(reason, rec)

		hdr, err := packet.ReadHeader(d.Payload)
		if err != nil {
			sum.short++
			return nil
		}
		sum.sessions[hdr.SessionUID] = struct{}{}

		k, ok := sum.kinds[hdr.PacketID]
		if !ok {
			k = &kindSummary{minSize: len(d.Payload)}
			sum.kinds[hdr.PacketID] = k
		}
		k.count++
		k.bytes += len(d.Payload)
		k.minSize = min(k.minSize, len(d.Payload))
		k.maxSize = max(k.maxSize, len(d.Payload))
		return nil
	})
	if err != nil {
		return nil, err
	}
	return sum, nil
}

// inspectCapture prints a per-packet-kind table for a capture followed by a
// summary of the player's decoded car telemetry.
func inspectCapture(w io.Writer, path string, port int) error {
	sum, err := summariseCapture(path, port)
	if err != nil {
		return err
	}

	ids := make([]packet.PacketID, 0, len(sum.kinds))
	for id := range sum.kinds {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.SetTitle("%s (port %d)", path, port)
	t.AppendHeader(table.Row{"ID", "Packet", "Count", "Bytes", "Min size", "Max size"})
	total, totalBytes := 0, 0
	for _, id := range ids {
		k := sum.kinds[id]
		t.AppendRow(table.Row{int(id), id.String(), k.count, k.bytes, k.minSize, k.maxSize})
		total += k.count
		totalBytes += k.bytes
	}
	if sum.short > 0 {
		t.AppendRow(table.Row{"-", "short", sum.short, "", "", ""})
		total += sum.short
	}
	t.AppendFooter(table.Row{"", "Total", total, totalBytes, "", ""})
	t.Render()

	snap := sum.stats.Snapshot()
	t2 := table.NewWriter()
	t2.SetOutputMirror(w)
	t2.SetStyle(table.StyleRounded)
	t2.SetTitle("Player car telemetry")
	t2.AppendRows([]table.Row{
		{"Sessions", len(sum.sessions)},
		{"Duration", sum.last.Sub(sum.first).Round(time.Millisecond)},
		{"Decoded records", snap.Decoded},
		{"Malformed", snap.Malformed},
		{"Mean speed (km/h)", fmt.Sprintf("%.1f", snap.Window.MeanSpeed)},
		{"Max speed (km/h)", fmt.Sprintf("%.0f", snap.Window.MaxSpeed)},
		{"P95 speed (km/h)", fmt.Sprintf("%.0f", snap.Window.P95Speed)},
		{"Mean RPM", fmt.Sprintf("%.0f", snap.Window.MeanRPM)},
		{"Max RPM", fmt.Sprintf("%.0f", snap.Window.MaxRPM)},
	})
	t2.Render()
	return nil
}
