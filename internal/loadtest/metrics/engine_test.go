package metrics

import (
	"sync"
	"testing"
	"time"
)

func TestNewEngine(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 0 {
		t.Errorf("Initial TotalRequests = %d, want 0", snapshot.TotalRequests)
	}
	if snapshot.CurrentPhase != PhaseInit {
		t.Errorf("Initial phase = %v, want %v", snapshot.CurrentPhase, PhaseInit)
	}
	if snapshot.ErrorRate != 0 {
		t.Errorf("Initial ErrorRate = %v, want 0", snapshot.ErrorRate)
	}
}

func TestEngine_RecordLatency(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.RecordLatency(10*time.Millisecond, "Locations (1) | a", true, 1000)
	engine.RecordLatency(20*time.Millisecond, "Locations (1) | a", true, 2000)
	engine.RecordLatency(30*time.Millisecond, "Locations (5) | a", false, 500)

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 3 {
		t.Errorf("TotalRequests = %d, want 3", snapshot.TotalRequests)
	}
	if snapshot.SuccessRequests != 2 {
		t.Errorf("SuccessRequests = %d, want 2", snapshot.SuccessRequests)
	}
	if snapshot.FailedRequests != 1 {
		t.Errorf("FailedRequests = %d, want 1", snapshot.FailedRequests)
	}
	if snapshot.TotalBytes != 3500 {
		t.Errorf("TotalBytes = %d, want 3500", snapshot.TotalBytes)
	}

	a := engine.GetScenarioStats("Locations (1) | a")
	if a.TotalRequests != 2 || a.FailedRequests != 0 || a.TotalBytes != 3000 {
		t.Errorf("scenario a stats = %+v", a)
	}
	if a.Latency.Count != 2 {
		t.Errorf("scenario a latency count = %d, want 2", a.Latency.Count)
	}

	b := engine.GetScenarioStats("Locations (5) | a")
	if b.ErrorRate != 1 {
		t.Errorf("scenario b ErrorRate = %v, want 1", b.ErrorRate)
	}
}

func TestEngine_LatencyPercentiles(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	for i := 1; i <= 10; i++ {
		engine.RecordLatency(time.Duration(i*10)*time.Millisecond, "", true, 100)
	}

	percentiles := engine.GetLatencyPercentiles()

	if percentiles.P50 < 40*time.Millisecond || percentiles.P50 > 60*time.Millisecond {
		t.Errorf("P50 = %v, want ~50ms (±10ms)", percentiles.P50)
	}
	if percentiles.P99 < 90*time.Millisecond || percentiles.P99 > 110*time.Millisecond {
		t.Errorf("P99 = %v, want ~100ms (±10ms)", percentiles.P99)
	}
	if percentiles.Min < 9*time.Millisecond || percentiles.Min > 11*time.Millisecond {
		t.Errorf("Min = %v, want ~10ms", percentiles.Min)
	}
}

func TestEngine_RecordIteration(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	engine.RecordIteration("s", "")
	engine.RecordIteration("s", ErrorFeedExhausted)
	engine.RecordIteration("s", ErrorFeedExhausted)
	engine.RecordIteration("t", ErrorStatus)

	snapshot := engine.GetSnapshot()
	if snapshot.Iterations != 4 {
		t.Errorf("Iterations = %d, want 4", snapshot.Iterations)
	}
	if snapshot.FailedIterations != 3 {
		t.Errorf("FailedIterations = %d, want 3", snapshot.FailedIterations)
	}
	if snapshot.Errors[ErrorFeedExhausted] != 2 || snapshot.Errors[ErrorStatus] != 1 {
		t.Errorf("Errors = %v", snapshot.Errors)
	}

	s := engine.GetScenarioStats("s")
	if s.Iterations != 3 || s.FailedIterations != 2 {
		t.Errorf("scenario s = %+v", s)
	}
	if s.TotalRequests != 0 {
		t.Errorf("iterations must not count as requests, got %d", s.TotalRequests)
	}

	if unknown := engine.GetScenarioStats("unknown"); unknown.Iterations != 0 {
		t.Errorf("unknown scenario = %+v", unknown)
	}
}

func TestErrorClass_Sent(t *testing.T) {
	sent := map[ErrorClass]bool{
		ErrorFeedExhausted: false,
		ErrorExtraction:    false,
		ErrorAssembly:      false,
		ErrorScenario:      false,
		ErrorTransport:     true,
		ErrorStatus:        true,
		ErrorCheck:         true,
	}
	for class, want := range sent {
		if got := class.Sent(); got != want {
			t.Errorf("%s.Sent() = %v, want %v", class, got, want)
		}
	}
}

func TestEngine_Phase(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	phases := []Phase{PhaseInjecting, PhaseSteady, PhaseDone}
	for _, phase := range phases {
		engine.SetPhase(phase)
		if engine.GetPhase() != phase {
			t.Errorf("After SetPhase(%v), GetPhase() = %v", phase, engine.GetPhase())
		}
	}
	engine.SetPhase(PhaseDone)

	if history := engine.GetPhaseHistory(); len(history) != len(phases) {
		t.Errorf("PhaseHistory length = %d, want %d", len(history), len(phases))
	}
}

func TestEngine_ConcurrentRecording(t *testing.T) {
	engine := NewEngine()
	defer engine.Stop()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			engine.AddActiveVUs(1)
			defer engine.AddActiveVUs(-1)
			for j := 0; j < 20; j++ {
				engine.RecordLatency(time.Millisecond, "s", true, 10)
				engine.RecordIteration("s", "")
			}
		}()
	}
	wg.Wait()

	snapshot := engine.GetSnapshot()
	if snapshot.TotalRequests != 1000 {
		t.Errorf("TotalRequests = %d, want 1000", snapshot.TotalRequests)
	}
	if snapshot.ActiveVUs != 0 {
		t.Errorf("ActiveVUs = %d, want 0", snapshot.ActiveVUs)
	}
	if got := engine.GetScenarioStats("s").Latency.Count; got != 1000 {
		t.Errorf("scenario latency count = %d, want 1000", got)
	}
}

func TestEngine_TimeSeries(t *testing.T) {
	engine := NewEngineWithConfig(EngineConfig{BucketInterval: 10 * time.Millisecond, MaxBuckets: 4})

	engine.RecordLatency(time.Millisecond, "", false, 0)
	time.Sleep(60 * time.Millisecond)
	engine.Stop()
	engine.Stop()

	buckets := engine.GetTimeSeries()
	if len(buckets) == 0 || len(buckets) > 4 {
		t.Fatalf("bucket count = %d, want 1..4", len(buckets))
	}
	last := buckets[len(buckets)-1]
	if last.TotalRequests != 1 || last.TotalFailures != 1 {
		t.Errorf("last bucket = %+v", last)
	}
	for i := 1; i < len(buckets); i++ {
		if buckets[i].Timestamp.Before(buckets[i-1].Timestamp) {
			t.Error("buckets are not in chronological order")
		}
	}
}
