package metrics

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"maps"
	"slices"
	"text/tabwriter"
)

// SnapshotProvider abstracts Manager for the exporters.
type SnapshotProvider interface {
	Snapshot(ctx context.Context) (Snapshot, error)
}

// WriteJSON writes the current snapshot as a JSON document.
func WriteJSON(ctx context.Context, w io.Writer, p SnapshotProvider) error {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(snap)
}

// WriteText writes the snapshot as an aligned table, names sorted.
func WriteText(ctx context.Context, w io.Writer, p SnapshotProvider) error {
	snap, err := p.Snapshot(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for _, name := range slices.Sorted(maps.Keys(snap.Counters)) {
		fmt.Fprintf(tw, "%s\t%d\n", name, snap.Counters[name])
	}
	for _, name := range slices.Sorted(maps.Keys(snap.Summaries)) {
		s := snap.Summaries[name]
		avg := int64(0)
		if s.Count > 0 {
			avg = s.Sum / s.Count
		}
		fmt.Fprintf(tw, "%s\tcount=%d\tavg=%d\tmin=%d\tmax=%d\n", name, s.Count, avg, s.Min, s.Max)
	}
	return tw.Flush()
}
