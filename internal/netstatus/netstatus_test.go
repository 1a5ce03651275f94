package netstatus

import (
	"context"
	"errors"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func TestManual_Transitions(t *testing.T) {
	m := NewManual(false, nil)

	var mu sync.Mutex
	var seen []bool
	unsub := m.Subscribe(func(online bool) {
		mu.Lock()
		seen = append(seen, online)
		mu.Unlock()
	})

	if m.Online() {
		t.Fatal("expected initial state offline")
	}

	if !m.Set(true) {
		t.Error("Set(true) should report a transition")
	}
	if m.Set(true) {
		t.Error("repeated Set(true) should not report a transition")
	}
	m.Set(false)

	unsub()
	m.Set(true)

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 2 || seen[0] != true || seen[1] != false {
		t.Errorf("seen = %v, want [true false]", seen)
	}
	if !m.Online() {
		t.Error("expected online after last Set")
	}
}

func TestManual_ImplementsMonitor(t *testing.T) {
	var _ Monitor = NewManual(true, nil)
	var _ Monitor = &Probe{}
}

func TestNewProbe_RequiresAddress(t *testing.T) {
	if _, err := NewProbe(ProbeConfig{}, nil, nil); err == nil {
		t.Fatal("expected error without address or check")
	}
}

func TestProbe_FollowsCheck(t *testing.T) {
	var failing atomic.Bool
	check := func(ctx context.Context) error {
		if failing.Load() {
			return errors.New("unreachable")
		}
		return nil
	}

	p, err := NewProbe(ProbeConfig{Interval: 5 * time.Millisecond, Timeout: time.Second}, check, nil)
	if err != nil {
		t.Fatalf("NewProbe: %v", err)
	}

	changes := make(chan bool, 10)
	p.Subscribe(func(online bool) { changes <- online })

	if !p.Online() {
		t.Fatal("probe should start online")
	}

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}
	defer p.Stop(ctx)

	failing.Store(true)
	expectChange(t, changes, false)

	failing.Store(false)
	expectChange(t, changes, true)
}

func TestProbe_DialCheck(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	addr := ln.Addr().String()
	check := dialCheck(addr)

	if err := check(context.Background()); err != nil {
		t.Fatalf("dial open listener: %v", err)
	}

	ln.Close()
	if err := check(context.Background()); err == nil {
		t.Error("expected dial error after listener closed")
	}
}

func TestProbe_StartStop(t *testing.T) {
	var calls atomic.Int32
	p, err := NewProbe(ProbeConfig{Interval: time.Hour}, func(context.Context) error {
		calls.Add(1)
		return nil
	}, nil)
	if err != nil {
		t.Fatalf("NewProbe: %v", err)
	}

	ctx := context.Background()
	if err := p.Start(ctx); err != nil {
		t.Fatalf("Start: %v", err)
	}

	stopCtx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	if err := p.Stop(stopCtx); err != nil {
		t.Errorf("Stop failed: %v", err)
	}

	if calls.Load() < 1 {
		t.Error("expected an immediate probe on start")
	}
}

func expectChange(t *testing.T, ch <-chan bool, want bool) {
	t.Helper()
	select {
	case got := <-ch:
		if got != want {
			t.Fatalf("transition = %v, want %v", got, want)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for transition to %v", want)
	}
}
