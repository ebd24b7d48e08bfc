package intercept_test

import (
	"context"
	"errors"
	"testing"

	"github.com/xraph/stepflow/graph"
	"github.com/xraph/stepflow/intercept"
)

func TestStubReturnQueueConsumedInOrder(t *testing.T) {
	stub := intercept.NewStub("llm").
		Return("call", graph.Continue("call", "first")).
		Return("call", graph.Finish("second"))

	res, ok, err := stub.InterceptStep(context.Background(), stepCtx("call"))
	if err != nil || !ok {
		t.Fatalf("first pop: ok=%v err=%v", ok, err)
	}
	if res.Data() != "first" {
		t.Errorf("first = %v, want first", res.Data())
	}

	res, ok, _ = stub.InterceptStep(context.Background(), stepCtx("call"))
	if !ok || res.Data() != "second" {
		t.Errorf("second pop = (%v, %v), want (second, true)", res.Data(), ok)
	}

	// Queue exhausted and no Always fallback configured.
	_, ok, _ = stub.InterceptStep(context.Background(), stepCtx("call"))
	if ok {
		t.Error("third pop ok = true, want fall-through after queue drained")
	}
}

func TestStubThrow(t *testing.T) {
	boom := errors.New("model unavailable")
	stub := intercept.NewStub("llm").Throw("call", boom)

	_, ok, err := stub.InterceptStep(context.Background(), stepCtx("call"))
	if !ok {
		t.Fatal("ok = false, want substitution")
	}
	if !errors.Is(err, boom) {
		t.Errorf("err = %v, want configured error", err)
	}
}

func TestStubAlwaysFallback(t *testing.T) {
	stub := intercept.NewStub("llm").
		Return("call", graph.Finish("queued")).
		Always("call", graph.Finish("steady"))

	res, _, _ := stub.InterceptStep(context.Background(), stepCtx("call"))
	if res.Data() != "queued" {
		t.Errorf("first = %v, want queued outcome before fallback", res.Data())
	}

	for i := 0; i < 3; i++ {
		res, ok, err := stub.InterceptStep(context.Background(), stepCtx("call"))
		if err != nil || !ok {
			t.Fatalf("fallback pop %d: ok=%v err=%v", i, ok, err)
		}
		if res.Data() != "steady" {
			t.Errorf("fallback %d = %v, want steady", i, res.Data())
		}
	}
}

func TestStubIgnoresOtherSteps(t *testing.T) {
	stub := intercept.NewStub("llm").Always("call", graph.Finish(nil))

	_, ok, err := stub.InterceptStep(context.Background(), stepCtx("plan"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if ok {
		t.Error("ok = true for unconfigured step, want fall-through")
	}
}

func TestStubCountsCalls(t *testing.T) {
	stub := intercept.NewStub("llm").Always("call", graph.Finish(nil))

	for i := 0; i < 4; i++ {
		stub.InterceptStep(context.Background(), stepCtx("call"))
	}
	stub.InterceptStep(context.Background(), stepCtx("plan"))

	if got := stub.Calls("call"); got != 4 {
		t.Errorf("Calls(call) = %d, want 4", got)
	}
	if got := stub.Calls("plan"); got != 0 {
		t.Errorf("Calls(plan) = %d, want 0 for fall-through", got)
	}
}
