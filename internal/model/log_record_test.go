package model

import (
	"encoding/json"
	"reflect"
	"testing"
)

func TestLogRecordJSONRoundTrip(t *testing.T) {
	original := LogRecord{
		ChainID:     31337,
		BlockNumber: 42,
		TxHash:      "0xdef456",
		TxIndex:     0,
		LogIndex:    2,
		Address:     "0x1111111111111111111111111111111111111111",
		Topics:      []string{"0xaaa", "0xbbb"},
		Data:        "0xdeadbeef",
		Timestamp:   1700000000,
		IngestedAt:  "2024-01-01T00:00:00Z",
	}

	b, err := json.Marshal(original)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	var decoded LogRecord
	if err := json.Unmarshal(b, &decoded); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if !reflect.DeepEqual(original, decoded) {
		t.Fatalf("round-trip mismatch: %+v != %+v", original, decoded)
	}
}

func TestLogRecordTopic0AndKey(t *testing.T) {
	var empty LogRecord
	if empty.Topic0() != "" {
		t.Fatalf("expected empty topic0")
	}

	record := LogRecord{BlockNumber: 7, TxHash: "0xabc", LogIndex: 3, Topics: []string{"0x01", "0x02"}}
	if record.Topic0() != "0x01" {
		t.Fatalf("topic0 mismatch: %s", record.Topic0())
	}
	if record.Key() != "7:0xabc:3" {
		t.Fatalf("key mismatch: %s", record.Key())
	}
}
