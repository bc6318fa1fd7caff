package health

import (
	"context"
	"errors"
	"testing"
)

type fakePinger struct {
	err error
}

func (f *fakePinger) Ping(context.Context) error { return f.err }

func TestCheck_AllHealthy(t *testing.T) {
	svc := New(&fakePinger{}, &fakePinger{})

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status = %q, want %q", report.Status, Healthy)
	}
	if report.Checks["index"] != CheckOK || report.Checks["store"] != CheckOK {
		t.Errorf("checks = %v", report.Checks)
	}
}

func TestCheck_IndexDown(t *testing.T) {
	svc := New(&fakePinger{err: errors.New("connection refused")}, &fakePinger{})

	report := svc.Check(context.Background())
	if report.Status != Degraded {
		t.Errorf("status = %q, want %q", report.Status, Degraded)
	}
	if report.Checks["index"] != CheckError {
		t.Errorf("index check = %q", report.Checks["index"])
	}
	if report.Checks["store"] != CheckOK {
		t.Errorf("store check = %q", report.Checks["store"])
	}
}

func TestCheck_NilStoreSkipped(t *testing.T) {
	svc := New(&fakePinger{}, nil)

	report := svc.Check(context.Background())
	if report.Status != Healthy {
		t.Errorf("status = %q", report.Status)
	}
	if _, ok := report.Checks["store"]; ok {
		t.Error("nil store must not be checked")
	}
}
