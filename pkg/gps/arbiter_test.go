package gps

import (
	"context"
	"testing"
	"time"

	"github.com/markus-lassfolk/trackerd/pkg/logx"
)

// fakeSource yields a scripted result per call.
type fakeSource struct {
	name  string
	fixes []*Fix
	errs  []error
	calls int
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) AcquireFix(ctx context.Context) (*Fix, error) {
	i := f.calls
	f.calls++
	if i < len(f.errs) && f.errs[i] != nil {
		return nil, f.errs[i]
	}
	if i < len(f.fixes) {
		return f.fixes[i], nil
	}
	return nil, ErrFixTimeout
}

// fakePin records power cycles.
type fakePin struct {
	cycles int
}

func (p *fakePin) Set(high bool) error              { return nil }
func (p *fakePin) Cycle(offFor time.Duration) error { p.cycles++; return nil }

func testFix(source string) *Fix {
	return &Fix{Latitude: 59.33, Longitude: 18.07, Timestamp: time.Now(), Source: source}
}

func TestArbiter_PrimaryFirst(t *testing.T) {
	primary := &fakeSource{name: "sim7600", fixes: []*Fix{testFix("sim7600")}}
	secondary := &fakeSource{name: "neo6m", fixes: []*Fix{testFix("neo6m")}}
	arbiter := NewArbiter(primary, secondary, nil, time.Second, 3, logx.NewLogger("error", "test"))

	fix, err := arbiter.AcquireFix(context.Background())
	if err != nil {
		t.Fatalf("AcquireFix failed: %v", err)
	}
	if fix.Source != "sim7600" {
		t.Errorf("fix source = %q, want sim7600", fix.Source)
	}
	if secondary.calls != 0 {
		t.Errorf("secondary consulted %d times despite primary fix", secondary.calls)
	}
}

func TestArbiter_FallsBackToSecondary(t *testing.T) {
	primary := &fakeSource{name: "sim7600", errs: []error{ErrFixTimeout}}
	secondary := &fakeSource{name: "neo6m", fixes: []*Fix{testFix("neo6m")}}
	arbiter := NewArbiter(primary, secondary, nil, time.Second, 3, logx.NewLogger("error", "test"))

	fix, err := arbiter.AcquireFix(context.Background())
	if err != nil {
		t.Fatalf("AcquireFix failed: %v", err)
	}
	if fix.Source != "neo6m" {
		t.Errorf("fix source = %q, want neo6m", fix.Source)
	}
}

func TestArbiter_TimeoutWhenAllFail(t *testing.T) {
	primary := &fakeSource{name: "sim7600", errs: []error{ErrFixTimeout, ErrFixTimeout}}
	secondary := &fakeSource{name: "neo6m", errs: []error{ErrFixTimeout, ErrFixTimeout}}
	arbiter := NewArbiter(primary, secondary, nil, 100*time.Millisecond, 3, logx.NewLogger("error", "test"))

	if _, err := arbiter.AcquireFix(context.Background()); err != ErrFixTimeout {
		t.Errorf("error = %v, want ErrFixTimeout", err)
	}
}

func TestArbiter_PowerCycleAfterConsecutiveTimeouts(t *testing.T) {
	failing := &fakeSource{name: "sim7600"}
	pin := &fakePin{}
	arbiter := NewArbiter(failing, nil, pin, 50*time.Millisecond, 3, logx.NewLogger("error", "test"))

	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := arbiter.AcquireFix(ctx); err != ErrFixTimeout {
			t.Fatalf("attempt %d: error = %v, want ErrFixTimeout", i, err)
		}
	}
	if pin.cycles != 0 {
		t.Fatalf("pin cycled %d times before threshold", pin.cycles)
	}

	// Threshold reached: the next attempt power-cycles first.
	arbiter.AcquireFix(ctx)
	if pin.cycles != 1 {
		t.Errorf("pin cycles = %d, want 1", pin.cycles)
	}

	// Counter was reset; the attempt after does not cycle again.
	arbiter.AcquireFix(ctx)
	if pin.cycles != 1 {
		t.Errorf("pin cycles = %d after reset, want 1", pin.cycles)
	}
}

func TestArbiter_HealthTracking(t *testing.T) {
	primary := &fakeSource{name: "sim7600", fixes: []*Fix{testFix("sim7600")}}
	arbiter := NewArbiter(primary, nil, nil, time.Second, 3, logx.NewLogger("error", "test"))

	arbiter.AcquireFix(context.Background())
	arbiter.AcquireFix(context.Background()) // scripted source now times out

	health := arbiter.Health()["sim7600"]
	if health.SuccessCount != 1 || health.ErrorCount != 1 {
		t.Errorf("health = %d ok / %d err, want 1/1", health.SuccessCount, health.ErrorCount)
	}
	if health.SuccessRate != 0.5 {
		t.Errorf("success rate = %f, want 0.5", health.SuccessRate)
	}
}
