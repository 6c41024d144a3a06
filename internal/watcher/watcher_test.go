package watcher

import "testing"

func TestFindKeywordCaseInsensitive(t *testing.T) {
	k, ok := findKeyword("this is an URGENT problem", Keywords)
	if !ok || k != "Urgent" {
		t.Fatalf("findKeyword = %q, %v; want Urgent, true", k, ok)
	}
}

func TestFindKeywordNoMatch(t *testing.T) {
	_, ok := findKeyword("nothing interesting here", Keywords)
	if ok {
		t.Fatal("findKeyword matched unexpectedly")
	}
}

func TestTruncateShortUnchanged(t *testing.T) {
	if got := truncate("short text"); got != "short text" {
		t.Fatalf("truncate = %q", got)
	}
}

func TestTruncateLongMessage(t *testing.T) {
	long := ""
	for i := 0; i < 250; i++ {
		long += "a"
	}
	got := truncate(long)
	if len(got) != maxAlertLen+3 {
		t.Fatalf("truncate length = %d, want %d", len(got), maxAlertLen+3)
	}
	if got[len(got)-3:] != "..." {
		t.Fatalf("truncate did not end with ellipsis: %q", got[len(got)-3:])
	}
}
