package main

import (
	"context"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/liptakmatyas/opencv-playground/emotioncam/internal/store"
)

func eventsMain(ctx context.Context, out io.Writer, opts *Options) error {
	db, err := store.Open(opts.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	f := store.Filter{
		SessionID: opts.SessionID,
		Label:     opts.Label,
		Limit:     opts.Limit,
	}
	if opts.Since > 0 {
		f.Since = time.Now().Add(-opts.Since)
	}

	w := tabwriter.NewWriter(out, 0, 8, 2, ' ', 0)
	defer w.Flush()

	if opts.ShowSessions {
		sessions, err := db.ListSessions(ctx, opts.Limit)
		if err != nil {
			return err
		}
		return writeSessions(w, sessions)
	}

	if opts.ShowCounts {
		counts, err := db.CountByLabel(ctx, f)
		if err != nil {
			return err
		}
		return writeCounts(w, counts)
	}

	events, err := db.ListEvents(ctx, f)
	if err != nil {
		return err
	}
	return writeEvents(w, events)
}

func writeCounts(w io.Writer, counts []store.LabelCount) error {
	if _, err := fmt.Fprintln(w, "LABEL\tCOUNT"); err != nil {
		return err
	}
	for _, c := range counts {
		if _, err := fmt.Fprintf(w, "%s\t%d\n", c.Label, c.Count); err != nil {
			return err
		}
	}
	return nil
}

func writeSessions(w io.Writer, sessions []store.Session) error {
	if _, err := fmt.Fprintln(w, "STARTED\tSESSION\tSOURCE\tMODEL\tBACKEND"); err != nil {
		return err
	}
	for _, sess := range sessions {
		_, err := fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			sess.StartedAt.Local().Format("2006-01-02 15:04:05"),
			sess.ID,
			sess.Source,
			sess.Model,
			sess.Backend,
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func writeEvents(w io.Writer, events []store.Event) error {
	if _, err := fmt.Fprintln(w, "TIME\tLABEL\tCONFIDENCE\tBOX\tFRAME\tSNAPSHOT\tSESSION"); err != nil {
		return err
	}
	for _, ev := range events {
		snapshot := ev.SnapshotPath
		if snapshot == "" {
			snapshot = "-"
		}
		_, err := fmt.Fprintf(w, "%s\t%s\t%.0f%%\t%v\t%d\t%s\t%s\n",
			ev.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			ev.Label,
			float64(ev.Confidence)*100,
			ev.Box,
			ev.FrameSeq,
			snapshot,
			ev.SessionID,
		)
		if err != nil {
			return err
		}
	}
	return nil
}
