package directory

import (
	"context"
	"errors"
	"reflect"
	"testing"
)

func TestMemoryFindInRegistrationOrder(t *testing.T) {
	ctx := context.Background()
	d := NewMemory()

	for _, r := range []struct{ id, capability string }{
		{"Spammer2", "producer"},
		{"Consumer1", "consumer"},
		{"Spammer1", "producer"},
	} {
		if err := d.Register(ctx, r.id, r.capability); err != nil {
			t.Fatalf("Register(%s) error = %v", r.id, err)
		}
	}

	got, err := d.Find(ctx, "producer")
	if err != nil {
		t.Fatalf("Find() error = %v", err)
	}
	if want := []string{"Spammer2", "Spammer1"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Find(producer) = %v, want %v", got, want)
	}

	none, err := d.Find(ctx, "coordinator")
	if err != nil || len(none) != 0 {
		t.Errorf("Find(coordinator) = %v, %v; want empty", none, err)
	}
}

func TestMemoryRegisterDuplicate(t *testing.T) {
	ctx := context.Background()
	d := NewMemory()
	_ = d.Register(ctx, "Consumer1", "consumer")

	if err := d.Register(ctx, "Consumer1", "producer"); !errors.Is(err, ErrAlreadyRegistered) {
		t.Errorf("Register() error = %v, want ErrAlreadyRegistered", err)
	}
	if err := d.Register(ctx, "", "consumer"); err == nil {
		t.Error("Register() with empty id succeeded")
	}
}

func TestMemoryDeregister(t *testing.T) {
	ctx := context.Background()
	d := NewMemory()
	_ = d.Register(ctx, "Consumer1", "consumer")

	if err := d.Deregister(ctx, "Consumer1"); err != nil {
		t.Fatalf("Deregister() error = %v", err)
	}
	if err := d.Deregister(ctx, "Consumer1"); !errors.Is(err, ErrNotRegistered) {
		t.Errorf("second Deregister() error = %v, want ErrNotRegistered", err)
	}
	if len(d.Entries()) != 0 {
		t.Errorf("Entries() = %v, want empty", d.Entries())
	}
}

func TestMemoryCancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := NewMemory().Find(ctx, "consumer"); !errors.Is(err, context.Canceled) {
		t.Errorf("Find() error = %v, want context.Canceled", err)
	}
}
