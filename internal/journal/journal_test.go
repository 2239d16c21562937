package journal

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/labelgw/internal/storage"
)

func openTestJournal(t *testing.T) *Journal {
	t.Helper()

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "journal.db"))
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return New(db)
}

func record(t *testing.T, j *Journal, id, label string) {
	t.Helper()
	err := j.Record(context.Background(), RecordRequest{
		ID:         id,
		Label:      label,
		Model:      "QL-700",
		PrinterURI: "usb://0x04f9:0x209b",
		Driver:     "native",
		Digest:     "af1349b9",
		SizeBytes:  10,
	})
	if err != nil {
		t.Fatalf("Record(%s): %v", id, err)
	}
}

func TestRecordAndGet(t *testing.T) {
	j := openTestJournal(t)
	record(t, j, "job-1", "62")

	e, err := j.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Status != StatusQueued {
		t.Fatalf("Status = %q, want queued", e.Status)
	}
	if e.Label != "62" || e.Model != "QL-700" || e.SizeBytes != 10 || e.DryRun {
		t.Fatalf("unexpected entry: %+v", e)
	}
	if e.CompletedAt != nil || e.Error != nil || e.ExitCode != nil {
		t.Fatalf("queued entry has terminal fields: %+v", e)
	}
	if e.CreatedAt.IsZero() {
		t.Fatalf("CreatedAt not parsed")
	}
}

func TestGetMissing(t *testing.T) {
	j := openTestJournal(t)

	_, err := j.Get(context.Background(), "nope")
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Get error = %v, want ErrJobNotFound", err)
	}
}

func TestCompleteFailure(t *testing.T) {
	j := openTestJournal(t)
	record(t, j, "job-1", "62")

	code := 1
	err := j.Complete(context.Background(), "job-1", Completion{
		Status:   StatusFailed,
		Error:    "bad handle",
		ExitCode: &code,
		Stderr:   "usb.core.USBError",
		Duration: 1500 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}

	e, err := j.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Status != StatusFailed {
		t.Fatalf("Status = %q, want failed", e.Status)
	}
	if e.Error == nil || *e.Error != "bad handle" {
		t.Fatalf("Error = %v, want bad handle", e.Error)
	}
	if e.ExitCode == nil || *e.ExitCode != 1 {
		t.Fatalf("ExitCode = %v, want 1", e.ExitCode)
	}
	if e.Duration == nil || *e.Duration != 1500*time.Millisecond {
		t.Fatalf("Duration = %v, want 1.5s", e.Duration)
	}
	if e.CompletedAt == nil {
		t.Fatalf("CompletedAt not set")
	}
	if e.Filename != nil {
		t.Fatalf("Filename = %v, want nil", *e.Filename)
	}
}

func TestCompleteOnlyOnce(t *testing.T) {
	j := openTestJournal(t)
	record(t, j, "job-1", "62")

	if err := j.Complete(context.Background(), "job-1", Completion{Status: StatusTimedOut, Error: "Printing timed out"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if err := j.Complete(context.Background(), "job-1", Completion{Status: StatusSucceeded}); err == nil {
		t.Fatalf("second Complete succeeded, want error")
	}

	e, err := j.Get(context.Background(), "job-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if e.Status != StatusTimedOut {
		t.Fatalf("Status = %q, first outcome must stand", e.Status)
	}
}

func TestCompleteMissingAndNonTerminal(t *testing.T) {
	j := openTestJournal(t)

	err := j.Complete(context.Background(), "ghost", Completion{Status: StatusSucceeded})
	if !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("Complete(ghost) error = %v, want ErrJobNotFound", err)
	}

	record(t, j, "job-1", "62")
	if err := j.Complete(context.Background(), "job-1", Completion{Status: StatusQueued}); err == nil {
		t.Fatalf("Complete with queued status succeeded")
	}
}

func TestRecordValidation(t *testing.T) {
	j := openTestJournal(t)

	if err := j.Record(context.Background(), RecordRequest{Label: "62"}); err == nil {
		t.Fatalf("Record without id succeeded")
	}
	if err := j.Record(context.Background(), RecordRequest{ID: "x"}); err == nil {
		t.Fatalf("Record without label succeeded")
	}
	record(t, j, "dup", "62")
	if err := j.Record(context.Background(), RecordRequest{ID: "dup", Label: "62"}); err == nil {
		t.Fatalf("duplicate Record succeeded")
	}
}

func TestListNewestFirstWithFilters(t *testing.T) {
	j := openTestJournal(t)
	base := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	step := 0
	j.now = func() time.Time {
		step++
		return base.Add(time.Duration(step) * time.Second)
	}

	record(t, j, "a", "62")
	record(t, j, "b", "29x90")
	record(t, j, "c", "62")
	if err := j.Complete(context.Background(), "c", Completion{Status: StatusSucceeded, Filename: "label_62.png"}); err != nil {
		t.Fatalf("Complete: %v", err)
	}

	all, err := j.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if got := ids(all); got != "c,b,a" {
		t.Fatalf("List order = %s, want c,b,a", got)
	}

	labels, err := j.List(context.Background(), ListFilter{Label: "62"})
	if err != nil {
		t.Fatalf("List(label): %v", err)
	}
	if got := ids(labels); got != "c,a" {
		t.Fatalf("List(label=62) = %s, want c,a", got)
	}

	done, err := j.List(context.Background(), ListFilter{Status: StatusSucceeded})
	if err != nil {
		t.Fatalf("List(status): %v", err)
	}
	if len(done) != 1 || done[0].Filename == nil || *done[0].Filename != "label_62.png" {
		t.Fatalf("List(status=succeeded) = %+v", done)
	}

	limited, err := j.List(context.Background(), ListFilter{Limit: 1})
	if err != nil {
		t.Fatalf("List(limit): %v", err)
	}
	if len(limited) != 1 {
		t.Fatalf("List(limit=1) returned %d rows", len(limited))
	}
}

func TestListEmpty(t *testing.T) {
	j := openTestJournal(t)

	entries, err := j.List(context.Background(), ListFilter{})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if entries == nil || len(entries) != 0 {
		t.Fatalf("List on empty journal = %#v, want empty slice", entries)
	}
}

func TestPrune(t *testing.T) {
	j := openTestJournal(t)
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

	j.now = func() time.Time { return now.Add(-48 * time.Hour) }
	record(t, j, "old-done", "62")
	if err := j.Complete(context.Background(), "old-done", Completion{Status: StatusSucceeded}); err != nil {
		t.Fatalf("Complete: %v", err)
	}
	record(t, j, "old-queued", "62")

	j.now = func() time.Time { return now }
	record(t, j, "fresh", "62")

	n, err := j.Prune(context.Background(), 24*time.Hour)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Fatalf("Prune removed %d rows, want 1", n)
	}
	if _, err := j.Get(context.Background(), "old-done"); !errors.Is(err, ErrJobNotFound) {
		t.Fatalf("old-done survived prune: %v", err)
	}
	if _, err := j.Get(context.Background(), "old-queued"); err != nil {
		t.Fatalf("queued job pruned: %v", err)
	}

	if _, err := j.Prune(context.Background(), 0); err == nil {
		t.Fatalf("Prune(0) succeeded")
	}
}

func ids(entries []Entry) string {
	out := ""
	for i, e := range entries {
		if i > 0 {
			out += ","
		}
		out += e.ID
	}
	return out
}
