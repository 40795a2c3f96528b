package logging

import "testing"

func TestNewProgressSampler(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize float64
		wantSize   float64
	}{
		{"default bucket size for zero", 0, 10},
		{"default bucket size for negative", -1, 10},
		{"custom bucket size", 25, 25},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %v, want %v", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSampler_NilSampler(t *testing.T) {
	var s *ProgressSampler
	if !s.ShouldLog(50, "PROCESSING") {
		t.Error("ShouldLog on nil sampler should always return true")
	}
	s.Reset()
}

func TestProgressSampler_StatusChange(t *testing.T) {
	s := NewProgressSampler(10)

	if !s.ShouldLog(0, "QUEUED") {
		t.Error("first status should log")
	}
	if s.ShouldLog(0, "QUEUED") {
		t.Error("same status and percent should not log again")
	}
	if !s.ShouldLog(0, " PROCESSING ") {
		t.Error("different status should log")
	}
	if s.lastStatus != "PROCESSING" {
		t.Errorf("lastStatus = %q, want PROCESSING", s.lastStatus)
	}
}

func TestProgressSampler_PercentBuckets(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(0, "PROCESSING")

	if s.ShouldLog(7, "PROCESSING") {
		t.Error("7% should not log (same bucket)")
	}
	if !s.ShouldLog(10, "PROCESSING") {
		t.Error("10% should log (new bucket)")
	}
	if !s.ShouldLog(100, "PROCESSING") {
		t.Error("100% should log")
	}
	if s.ShouldLog(105, "PROCESSING") {
		t.Error("values over 100% share the 100% bucket")
	}
}

func TestProgressSampler_NegativePercent(t *testing.T) {
	s := NewProgressSampler(10)
	if !s.ShouldLog(-1, "PENDING") {
		t.Error("first call should log even with negative percent")
	}
	if s.ShouldLog(-1, "PENDING") {
		t.Error("negative percent should not trigger bucket logging")
	}
}

func TestProgressSampler_Reset(t *testing.T) {
	s := NewProgressSampler(10)
	s.ShouldLog(50, "PROCESSING")
	s.Reset()
	if s.lastStatus != "" || s.lastBucket != -1 {
		t.Fatalf("unexpected state after reset: %q %d", s.lastStatus, s.lastBucket)
	}
	if !s.ShouldLog(50, "PROCESSING") {
		t.Error("should log after reset")
	}
}
