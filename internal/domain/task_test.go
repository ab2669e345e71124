package domain

import (
	"errors"
	"testing"
)

func TestParsePriority(t *testing.T) {
	cases := []struct {
		in      string
		want    Priority
		wantErr bool
	}{
		{"", PriorityLow, false},
		{"HIGH", PriorityHigh, false},
		{" medium ", PriorityMedium, false},
		{"urgent", "", true},
	}
	for _, tc := range cases {
		got, err := ParsePriority(tc.in)
		if tc.wantErr {
			var verr *ValidationError
			if !errors.As(err, &verr) || verr.Field != "priority" {
				t.Fatalf("ParsePriority(%q): expected priority validation error, got %v", tc.in, err)
			}
			continue
		}
		if err != nil || got != tc.want {
			t.Fatalf("ParsePriority(%q) = %q, %v", tc.in, got, err)
		}
	}
}

func TestParseStatus(t *testing.T) {
	if s, err := ParseStatus(""); err != nil || s != StatusPending {
		t.Fatalf("empty status = %q, %v", s, err)
	}
	if s, err := ParseStatus("in-progress"); err != nil || s != StatusInProgress {
		t.Fatalf("in-progress = %q, %v", s, err)
	}
	if _, err := ParseStatus("done"); err == nil {
		t.Fatal("expected error for unknown status")
	}
}

func TestNormalizeTitle(t *testing.T) {
	if title, err := NormalizeTitle("  Write docs \n"); err != nil || title != "Write docs" {
		t.Fatalf("NormalizeTitle = %q, %v", title, err)
	}
	if _, err := NormalizeTitle("   "); err == nil || err.Error() != "title is required" {
		t.Fatalf("expected title required error, got %v", err)
	}
}

func TestTaskPatchEmpty(t *testing.T) {
	if !(TaskPatch{}).Empty() {
		t.Fatal("zero patch should be empty")
	}
	if (TaskPatch{ClearDueDate: true}).Empty() {
		t.Fatal("clearing the due date is a change")
	}
}
