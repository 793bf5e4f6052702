package system

import (
	"context"
	"errors"
	"testing"
)

// recordingService tracks lifecycle calls in a shared journal so ordering
// can be asserted across services.
type recordingService struct {
	name     string
	journal  *[]string
	startErr error
	stopErr  error
}

func (s *recordingService) Name() string { return s.name }

func (s *recordingService) Start(ctx context.Context) error {
	*s.journal = append(*s.journal, "start:"+s.name)
	return s.startErr
}

func (s *recordingService) Stop(ctx context.Context) error {
	*s.journal = append(*s.journal, "stop:"+s.name)
	return s.stopErr
}

func TestManager_StartOrderAndStopReverse(t *testing.T) {
	var journal []string
	m := NewManager()
	for _, name := range []string{"a", "b", "c"} {
		if err := m.Register(&recordingService{name: name, journal: &journal}); err != nil {
			t.Fatalf("register %s: %v", name, err)
		}
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}

	want := []string{"start:a", "start:b", "start:c", "stop:c", "stop:b", "stop:a"}
	if len(journal) != len(want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s", i, journal[i], want[i])
		}
	}
}

func TestManager_StartFailureRollsBack(t *testing.T) {
	var journal []string
	m := NewManager()
	_ = m.Register(&recordingService{name: "a", journal: &journal})
	_ = m.Register(&recordingService{name: "b", journal: &journal, startErr: errors.New("boom")})
	_ = m.Register(&recordingService{name: "c", journal: &journal})

	if err := m.Start(context.Background()); err == nil {
		t.Fatal("expected start error")
	}

	want := []string{"start:a", "start:b", "stop:a"}
	if len(journal) != len(want) {
		t.Fatalf("journal = %v, want %v", journal, want)
	}
	for i := range want {
		if journal[i] != want[i] {
			t.Fatalf("journal[%d] = %s, want %s", i, journal[i], want[i])
		}
	}
}

func TestManager_RegisterRejections(t *testing.T) {
	var journal []string
	m := NewManager()

	if err := m.Register(nil); err == nil {
		t.Fatal("expected error for nil service")
	}
	if err := m.Register(&NoopService{}); err == nil {
		t.Fatal("expected error for unnamed service")
	}
	if err := m.Register(&recordingService{name: "a", journal: &journal}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := m.Register(&recordingService{name: "a", journal: &journal}); err == nil {
		t.Fatal("expected error for duplicate name")
	}

	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Register(&recordingService{name: "b", journal: &journal}); err == nil {
		t.Fatal("expected error after start")
	}
}

func TestManager_StopIsIdempotent(t *testing.T) {
	m := NewManager()
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop before start: %v", err)
	}

	var journal []string
	_ = m.Register(&recordingService{name: "a", journal: &journal})
	if err := m.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if err := m.Stop(context.Background()); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if len(journal) != 2 {
		t.Fatalf("journal = %v, want one start and one stop", journal)
	}
}
