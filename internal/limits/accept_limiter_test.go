package limits

import "testing"

func TestAllow_WithinBurstSucceeds(t *testing.T) {
	l := NewAcceptLimiter(AcceptLimiterConfig{IPBurst: 3, IPRate: 1, GlobalBurst: 10, GlobalRate: 10})
	defer l.Close()

	for i := 0; i < 3; i++ {
		if !l.Allow("10.0.0.1") {
			t.Fatalf("attempt %d: expected allow within burst", i)
		}
	}
}

func TestAllow_ExceedsIPBurstRejects(t *testing.T) {
	l := NewAcceptLimiter(AcceptLimiterConfig{IPBurst: 2, IPRate: 0.001, GlobalBurst: 100, GlobalRate: 100})
	defer l.Close()

	for i := 0; i < 2; i++ {
		if !l.Allow("10.0.0.2") {
			t.Fatalf("attempt %d: expected allow within burst", i)
		}
	}
	if l.Allow("10.0.0.2") {
		t.Fatal("expected rejection once IP burst exhausted")
	}
}

func TestAllow_DistinctIPsHaveIndependentBuckets(t *testing.T) {
	l := NewAcceptLimiter(AcceptLimiterConfig{IPBurst: 1, IPRate: 0.001, GlobalBurst: 100, GlobalRate: 100})
	defer l.Close()

	if !l.Allow("10.0.0.3") {
		t.Fatal("expected first connection from 10.0.0.3 to be allowed")
	}
	if !l.Allow("10.0.0.4") {
		t.Fatal("expected first connection from a distinct IP to be allowed independently")
	}
}

func TestAllow_GlobalBucketCapsAcrossAllIPs(t *testing.T) {
	l := NewAcceptLimiter(AcceptLimiterConfig{IPBurst: 100, IPRate: 100, GlobalBurst: 2, GlobalRate: 0.001})
	defer l.Close()

	if !l.Allow("10.0.0.5") {
		t.Fatal("expected allow 1")
	}
	if !l.Allow("10.0.0.6") {
		t.Fatal("expected allow 2")
	}
	if l.Allow("10.0.0.7") {
		t.Fatal("expected rejection once global burst exhausted, regardless of source IP")
	}
}
