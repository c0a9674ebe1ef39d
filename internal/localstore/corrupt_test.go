package localstore

import (
	"testing"
	"time"
)

// White-box: corrupting a row's field map requires reaching past the API.
func TestUnsyncedSamples_SkipsCorruptRow(t *testing.T) {
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer s.Close()

	now := time.Now()
	for _, id := range []string{"good", "bad"} {
		err := s.PutSample(SampleRow{
			ID: id, SubjectID: "emp-1", CapturedAt: now,
			Fields: map[string]any{"id": id},
		})
		if err != nil {
			t.Fatalf("put %s: %v", id, err)
		}
	}

	if _, err := s.db.Exec(`UPDATE locations SET fields_json = '{truncated' WHERE id = 'bad'`); err != nil {
		t.Fatalf("corrupt row: %v", err)
	}

	rows, err := s.UnsyncedSamples(10)
	if err != nil {
		t.Fatalf("one corrupt row must not abort the batch: %v", err)
	}
	if len(rows) != 1 || rows[0].ID != "good" {
		t.Fatalf("rows = %+v, want only the good row", rows)
	}
}
