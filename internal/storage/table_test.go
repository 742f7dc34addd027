package storage

import (
	"testing"
	"time"
)

func TestColIndexCaseInsensitive(t *testing.T) {
	tbl := NewTable("t", []Column{
		{Name: "Full Name", Type: TextType},
		{Name: "salary", Type: IntType},
	}, false)
	i, err := tbl.ColIndex("full name")
	if err != nil || i != 0 {
		t.Fatalf("got (%d,%v)", i, err)
	}
	if _, err := tbl.ColIndex("missing"); err == nil {
		t.Fatal("expected error for unknown column")
	}
	names := tbl.ColNames()
	if names[0] != "Full Name" {
		t.Fatalf("original casing lost: %q", names[0])
	}
}

func TestInferColType(t *testing.T) {
	cases := []struct {
		v    any
		want ColType
	}{
		{1, IntType},
		{int64(1), IntType},
		{1.5, FloatType},
		{true, BoolType},
		{time.Now(), TimestampType},
		{"x", TextType},
		{nil, TextType},
	}
	for _, c := range cases {
		if got := InferColType(c.v); got != c.want {
			t.Fatalf("%T: got %v, want %v", c.v, got, c.want)
		}
	}
}
