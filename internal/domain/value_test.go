package domain

import (
	"encoding/json"
	"testing"
	"time"
)

func TestValueJSONKeepsKind(t *testing.T) {
	ts := time.Date(2024, 2, 3, 4, 5, 6, 7000, time.UTC)
	values := []Value{Null(), TextValue("hello"), EnumValue("Done"), TimeValue(ts), BoolValue(true), BoolValue(false)}
	for _, v := range values {
		data, err := json.Marshal(v)
		if err != nil {
			t.Fatalf("marshal %v: %v", v, err)
		}
		var got Value
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal %s: %v", data, err)
		}
		if got.Kind != v.Kind || !got.Equal(v) {
			t.Fatalf("decoded %s as %+v, want %+v", data, got, v)
		}
	}
}

func TestValueUnmarshalRejectsUnknownKind(t *testing.T) {
	var v Value
	if err := json.Unmarshal([]byte(`{"kind":"number","value":1}`), &v); err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if err := json.Unmarshal([]byte(`{"kind":"boolean","value":"yes"}`), &v); err == nil {
		t.Fatalf("expected error for mistyped boolean")
	}
}

func TestValueEqual(t *testing.T) {
	utc := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	tokyo := utc.In(time.FixedZone("JST", 9*3600))
	if !TimeValue(utc).Equal(TimeValue(tokyo)) {
		t.Fatalf("same instant should be equal")
	}
	if TimeValue(utc).Equal(TimeValue(utc.Add(time.Nanosecond))) {
		t.Fatalf("different instants should differ")
	}
	if TextValue("Done").Equal(EnumValue("Done")) {
		t.Fatalf("kinds differ")
	}
	if !Null().Equal(Value{}) {
		t.Fatalf("zero value is null")
	}
	if Null().Equal(TextValue("")) {
		t.Fatalf("null differs from empty text")
	}
	if !OptionalTime(nil).IsNull() {
		t.Fatalf("nil time should be null")
	}
}

func TestValueAny(t *testing.T) {
	ts := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	if TimeValue(ts).Any() != "2024-01-01T00:00:00Z" {
		t.Fatalf("timestamp any: %v", TimeValue(ts).Any())
	}
	if Null().Any() != nil || BoolValue(true).Any() != true || EnumValue("Low").Any() != "Low" {
		t.Fatalf("unexpected any forms")
	}
}

func TestParseEnums(t *testing.T) {
	cases := map[string]Status{
		"pending":     StatusPending,
		"IN-PROGRESS": StatusInProgress,
		"in_progress": StatusInProgress,
		"In Progress": StatusInProgress,
		" done ":      StatusDone,
	}
	for in, want := range cases {
		got, ok := ParseStatus(in)
		if !ok || got != want {
			t.Fatalf("ParseStatus(%q) = %q, %v", in, got, ok)
		}
	}
	if _, ok := ParseStatus("blocked"); ok {
		t.Fatalf("blocked is not a status")
	}
	if p, ok := ParsePriority("high"); !ok || p != PriorityHigh {
		t.Fatalf("ParsePriority(high) = %q, %v", p, ok)
	}
	if _, ok := ParseRole("owner"); ok {
		t.Fatalf("owner is not a role")
	}
}

func TestPatchApplyAndValues(t *testing.T) {
	title := "new"
	archived := true
	task := Task{Title: "old", Status: StatusPending}
	p := TaskPatch{Title: &title, Archived: &archived}
	if p.IsEmpty() {
		t.Fatalf("patch is not empty")
	}
	got := p.Apply(task)
	if got.Title != "new" || !got.Archived || got.Status != StatusPending {
		t.Fatalf("apply: %+v", got)
	}
	values := p.Values()
	if len(values) != 2 || values[0].Field != FieldTitle || values[1].Field != FieldArchived {
		t.Fatalf("values: %+v", values)
	}
	if !(TaskPatch{}).IsEmpty() {
		t.Fatalf("zero patch is empty")
	}
}
