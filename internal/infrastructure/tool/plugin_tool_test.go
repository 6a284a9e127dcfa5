package tool

import (
	"context"
	"errors"
	"testing"

	domaintool "github.com/ngoclaw/ngoclaw/gateway/internal/domain/tool"
)

func TestRegistryAdapter_RegisterDynamic(t *testing.T) {
	reg := domaintool.NewInMemoryRegistry()
	adapter := NewRegistryAdapter(reg, "")

	called := false
	err := adapter.RegisterDynamic("greet", "says hello", nil, func(args map[string]interface{}) (string, error) {
		called = true
		return "hello " + args["name"].(string), nil
	})
	if err != nil {
		t.Fatalf("RegisterDynamic: %v", err)
	}

	tl, ok := reg.Get("greet")
	if !ok {
		t.Fatal("expected tool to be registered")
	}
	if tl.Kind() != domaintool.KindExecute {
		t.Errorf("expected default kind %q, got %q", domaintool.KindExecute, tl.Kind())
	}

	result, err := tl.Execute(context.Background(), map[string]interface{}{"name": "world"})
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !called {
		t.Error("expected handler to be invoked")
	}
	if !result.Success || result.Output != "hello world" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestRegistryAdapter_ExecuteError(t *testing.T) {
	reg := domaintool.NewInMemoryRegistry()
	adapter := NewRegistryAdapter(reg, domaintool.KindRead)

	err := adapter.RegisterDynamic("boom", "always fails", nil, func(args map[string]interface{}) (string, error) {
		return "", errors.New("kaboom")
	})
	if err != nil {
		t.Fatalf("RegisterDynamic: %v", err)
	}

	tl, _ := reg.Get("boom")
	if tl.Kind() != domaintool.KindRead {
		t.Errorf("expected explicit kind to be honored, got %q", tl.Kind())
	}

	result, err := tl.Execute(context.Background(), nil)
	if err != nil {
		t.Fatalf("Execute should report tool failure via Result, not error: %v", err)
	}
	if result.Success {
		t.Error("expected Success=false on handler error")
	}
	if result.Error != "kaboom" {
		t.Errorf("expected Error=%q, got %q", "kaboom", result.Error)
	}
}

func TestRegistryAdapter_Unregister(t *testing.T) {
	reg := domaintool.NewInMemoryRegistry()
	adapter := NewRegistryAdapter(reg, domaintool.KindExecute)

	_ = adapter.RegisterDynamic("temp", "temp tool", nil, func(args map[string]interface{}) (string, error) {
		return "ok", nil
	})
	if _, ok := reg.Get("temp"); !ok {
		t.Fatal("expected tool registered before unregister")
	}

	adapter.Unregister("temp")

	if _, ok := reg.Get("temp"); ok {
		t.Error("expected tool to be gone after Unregister")
	}
}
