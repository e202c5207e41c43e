package kafkax

import "testing"

func TestSplitBrokers(t *testing.T) {
	got := SplitBrokers(" kafka-1:9092, ,kafka-2:9092 ")
	if len(got) != 2 || got[0] != "kafka-1:9092" || got[1] != "kafka-2:9092" {
		t.Fatalf("unexpected brokers %v", got)
	}
	if SplitBrokers("") != nil {
		t.Fatalf("expected nil for empty input")
	}
}

func TestMetaHeaders(t *testing.T) {
	headers := MetaHeaders("evt-1", "reminder.sent.v1")
	if HeaderValue(headers, HeaderEventID) != "evt-1" {
		t.Fatalf("missing event id header")
	}
	if HeaderValue(headers, HeaderEventType) != "reminder.sent.v1" {
		t.Fatalf("missing event type header")
	}
	if HeaderValue(headers, "traceparent") != "" {
		t.Fatalf("expected empty value for absent header")
	}
}
