package venue

import (
	"testing"
	"time"
)

func TestHealthScoreDecaysOnFailureAndRecoversOnSuccess(t *testing.T) {
	h := NewHealthScore(0.5)
	if got := h.Score(); got != 1.0 {
		t.Fatalf("fresh HealthScore = %v, want 1.0", got)
	}

	h.Observe(0, false)
	afterFailure := h.Score()
	if afterFailure >= 1.0 {
		t.Fatalf("score after failure = %v, want < 1.0", afterFailure)
	}

	h.Observe(0, true)
	afterSuccess := h.Score()
	if afterSuccess <= afterFailure {
		t.Fatalf("score after success = %v, want > %v (post-failure)", afterSuccess, afterFailure)
	}
}

func TestHealthScorePenalizesHighLatency(t *testing.T) {
	fast := NewHealthScore(0.5)
	fast.Observe(0, true)

	slow := NewHealthScore(0.5)
	slow.Observe(500*time.Millisecond, true)

	if slow.Score() >= fast.Score() {
		t.Fatalf("slow endpoint score %v should be lower than fast endpoint score %v", slow.Score(), fast.Score())
	}
}

func TestPoolSelectRoundRobinsAmongEqualHealth(t *testing.T) {
	p := NewPool([]string{"a", "b", "c"}, 0.8)

	seen := map[string]bool{}
	for i := 0; i < 3; i++ {
		endpoint, idx := p.Select()
		if idx < 0 {
			t.Fatalf("Select returned idx %d, want >= 0", idx)
		}
		seen[endpoint] = true
		p.Observe(idx, time.Millisecond, true)
	}
	if len(seen) != 3 {
		t.Fatalf("round-robin over equal health should visit all endpoints, saw %v", seen)
	}
}

func TestPoolSelectFavorsHealthierEndpoint(t *testing.T) {
	p := NewPool([]string{"good", "bad"}, 0.5)

	for i := 0; i < 5; i++ {
		_, idx := p.Select()
		if p.endpoints[idx] == "bad" {
			p.Observe(idx, time.Second, false)
		} else {
			p.Observe(idx, time.Millisecond, true)
		}
	}

	endpoint, _ := p.Select()
	if endpoint != "good" {
		t.Fatalf("Select after divergent history = %q, want %q", endpoint, "good")
	}
}

func TestPoolSelectEmptyReturnsNegativeIndex(t *testing.T) {
	p := NewPool(nil, 0.5)
	endpoint, idx := p.Select()
	if idx != -1 || endpoint != "" {
		t.Fatalf("Select on empty pool = (%q, %d), want (\"\", -1)", endpoint, idx)
	}
}
