package refresh

import "testing"

func TestDedupe_FreshAndRecord(t *testing.T) {
	d := NewDedupe(4)
	if !d.Fresh("first_freeze_28f", 1) {
		t.Fatal("unseen table must be fresh")
	}
	d.Record("first_freeze_28f", 2)
	if d.Fresh("first_freeze_28f", 2) || d.Fresh("first_freeze_28f", 1) {
		t.Fatal("replayed or older version must not be fresh")
	}
	if !d.Fresh("first_freeze_28f", 3) {
		t.Fatal("newer version must be fresh")
	}
	d.Record("first_freeze_28f", 1)
	if v, _ := d.Last("first_freeze_28f"); v != 2 {
		t.Fatalf("older record overwrote newer: %d", v)
	}
}

func TestDedupe_Evicts(t *testing.T) {
	d := NewDedupe(1)
	d.Record("a", 5)
	d.Record("b", 1)
	if !d.Fresh("a", 1) {
		t.Fatal("evicted key should be fresh again")
	}
}
