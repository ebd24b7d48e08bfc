package run_test

import (
	"encoding/json"
	"reflect"
	"testing"

	"github.com/xraph/stepflow/run"
)

func TestContextAppendSemantics(t *testing.T) {
	c := run.NewContext()
	c.Add("errors", "e1")
	c.Add("errors", "e2")

	all := c.GetAll("errors")
	want := []any{"e1", "e2"}
	if !reflect.DeepEqual(all, want) {
		t.Errorf("GetAll(errors) = %v, want %v", all, want)
	}

	latest, ok := c.Get("errors")
	if !ok {
		t.Fatal("Get(errors) reported missing key")
	}
	if latest != "e2" {
		t.Errorf("Get(errors) = %v, want e2", latest)
	}
}

func TestContextMissingKey(t *testing.T) {
	c := run.NewContext()

	if _, ok := c.Get("absent"); ok {
		t.Error("Get(absent) = ok, want missing")
	}
	if all := c.GetAll("absent"); all != nil {
		t.Errorf("GetAll(absent) = %v, want nil", all)
	}
}

func TestContextKeysKeepFirstWriteOrder(t *testing.T) {
	c := run.NewContext()
	c.Add("b", 1)
	c.Add("a", 2)
	c.Add("b", 3)
	c.Add("c", 4)

	want := []string{"b", "a", "c"}
	if got := c.Keys(); !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	if c.Len() != 3 {
		t.Errorf("Len() = %d, want 3", c.Len())
	}
}

func TestContextGetAllReturnsCopy(t *testing.T) {
	c := run.NewContext()
	c.Add("k", "v1")

	all := c.GetAll("k")
	all[0] = "mutated"

	got, _ := c.Get("k")
	if got != "v1" {
		t.Errorf("Get(k) = %v after mutating GetAll result, want v1", got)
	}
}

func TestContextJSONRoundTripPreservesOrder(t *testing.T) {
	c := run.NewContext()
	c.Add("steps", "plan")
	c.Add("errors", "boom")
	c.Add("steps", "act")
	c.Add("steps", "reflect")

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}

	restored := run.NewContext()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}

	if got, want := restored.Keys(), []string{"steps", "errors"}; !reflect.DeepEqual(got, want) {
		t.Errorf("Keys() = %v, want %v", got, want)
	}
	wantSteps := []any{"plan", "act", "reflect"}
	if got := restored.GetAll("steps"); !reflect.DeepEqual(got, wantSteps) {
		t.Errorf("GetAll(steps) = %v, want %v", got, wantSteps)
	}
	if got, _ := restored.Get("errors"); got != "boom" {
		t.Errorf("Get(errors) = %v, want boom", got)
	}
}

func TestContextEmptyJSON(t *testing.T) {
	c := run.NewContext()

	data, err := json.Marshal(c)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	if string(data) != "[]" {
		t.Errorf("marshal empty = %s, want []", data)
	}

	restored := run.NewContext()
	if err := json.Unmarshal(data, restored); err != nil {
		t.Fatalf("unmarshal failed: %v", err)
	}
	if restored.Len() != 0 {
		t.Errorf("Len() = %d, want 0", restored.Len())
	}
}

func TestContextCloneIsIndependent(t *testing.T) {
	c := run.NewContext()
	c.Add("k", "v1")

	cp := c.Clone()
	cp.Add("k", "v2")
	cp.Add("new", "x")

	if got := c.GetAll("k"); len(got) != 1 {
		t.Errorf("original history length = %d after clone mutation, want 1", len(got))
	}
	if _, ok := c.Get("new"); ok {
		t.Error("original gained a key added to the clone")
	}
}
