package ingest

import "testing"

func TestDecodeBatchShapes(t *testing.T) {
	single, err := decodeBatch([]byte(` {"imsi":"460001234567890"} `))
	if err != nil || len(single) != 1 {
		t.Fatalf("single object: %d items, err %v", len(single), err)
	}
	list, err := decodeBatch([]byte(`[{"imsi":"a"},{"imsi":"b"}]`))
	if err != nil || len(list) != 2 {
		t.Fatalf("array: %d items, err %v", len(list), err)
	}
	if _, err := decodeBatch([]byte("   ")); err == nil {
		t.Fatalf("blank body must be rejected")
	}
	if _, err := decodeBatch([]byte(`{"imsi":`)); err == nil {
		t.Fatalf("truncated JSON must be rejected")
	}
}
