package sqlbuilder

import "testing"

func TestQuestionPlaceholders(t *testing.T) {
	b := New(PlaceholderQuestion)
	q := "SELECT * FROM t WHERE a = " + b.Arg(1) + " AND b = " + b.Arg("x")
	if q != "SELECT * FROM t WHERE a = ? AND b = ?" {
		t.Fatalf("unexpected query: %s", q)
	}
	args := b.Args()
	if len(args) != 2 || args[0] != 1 || args[1] != "x" {
		t.Fatalf("unexpected args: %v", args)
	}
}

func TestDollarPlaceholders(t *testing.T) {
	b := New(PlaceholderDollar)
	q := "WHERE x > " + b.Arg(10) + " AND x < " + b.Arg(20)
	if q != "WHERE x > $1 AND x < $2" {
		t.Fatalf("unexpected query: %s", q)
	}
	if b.Len() != 2 {
		t.Fatalf("unexpected arg count: %d", b.Len())
	}
}
