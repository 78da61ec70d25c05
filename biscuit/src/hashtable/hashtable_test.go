package hashtable

import "testing"

func TestSetGetDel(t *testing.T) {
	ht := MkHash(8)
	if _, ok := ht.Set(1, "one"); !ok {
		t.Fatal("expected fresh insert")
	}
	if _, ok := ht.Set(1, "uno"); ok {
		t.Fatal("expected duplicate insert to report existing")
	}
	v, ok := ht.Get(1)
	if !ok || v != "one" {
		t.Fatalf("got (%v, %v), want (\"one\", true)", v, ok)
	}
	ht.Del(1)
	if _, ok := ht.Get(1); ok {
		t.Fatal("expected key to be gone after Del")
	}
}
