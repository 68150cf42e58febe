package workflow

import (
	"fmt"
	"strings"
	"testing"
)

func TestTruncate_IdentityUnderLimit(t *testing.T) {
	text := "short text"
	if got := truncate(text, 25000, 0.6); got != text {
		t.Errorf("expected identity for text under the limit, got %q", got)
	}
}

func TestTruncate_IdentityAtExactLimit(t *testing.T) {
	text := strings.Repeat("a", 100)
	if got := truncate(text, 100, 0.6); got != text {
		t.Errorf("expected identity for text exactly at the limit")
	}
}

func TestTruncate_OverLimitYieldsExactLength(t *testing.T) {
	maxChars := 100
	splitRatio := 0.6
	text := strings.Repeat("x", 1000)

	got := truncate(text, maxChars, splitRatio)

	marker := fmt.Sprintf(truncationMarkerFormat, len(text))
	wantLen := maxChars + len(marker)
	if len(got) != wantLen {
		t.Errorf("expected truncated length %d, got %d", wantLen, len(got))
	}
	if !strings.Contains(got, "OUTPUT TRUNCATED") {
		t.Errorf("expected truncation marker present, got %q", got)
	}
	if !strings.Contains(got, "original length=1000 chars") {
		t.Errorf("expected marker to embed original length, got %q", got)
	}
}

func TestTruncate_HeadAndTailComposition(t *testing.T) {
	maxChars := 10
	splitRatio := 0.6
	text := strings.Repeat("1234567890", 5) // length 50

	got := truncate(text, maxChars, splitRatio)

	headLen := int(float64(maxChars) * splitRatio) // 6
	if !strings.HasPrefix(got, text[:headLen]) {
		t.Errorf("expected truncated text to start with the head of the original")
	}
	tailLen := maxChars - headLen // 4
	if !strings.HasSuffix(got, text[len(text)-tailLen:]) {
		t.Errorf("expected truncated text to end with the tail of the original")
	}
}
