package jsonrpc2

import (
	"context"
	"testing"
)

func TestLocal(t *testing.T) {
	registry, err := NewRegistry(Receiver("", &FruitService{}))
	if err != nil {
		t.Fatal(err)
	}
	rpc := Local{Registry: registry}

	var got string
	if err := rpc.Call(context.Background(), &got, "apple"); err != nil {
		t.Error(err)
	}
	if want := "Apple"; got != want {
		t.Errorf("got: %q; want %q", got, want)
	}

	if err := rpc.Call(context.Background(), nil, "banana"); err != nil {
		t.Error(err)
	}

	if err := rpc.Call(context.Background(), nil, "durian"); err == nil {
		t.Error("expected durian failure")
	}
}
