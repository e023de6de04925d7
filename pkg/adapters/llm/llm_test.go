package llm

import (
	"context"
	"strings"
	"testing"
)

type nopLLM struct{}

func (nopLLM) Name() string { return "nop" }
func (nopLLM) Generate(context.Context, Request) (GenerateResult, error) {
	return GenerateResult{Text: "ok"}, nil
}

func TestProvidersRegisterOpen(t *testing.T) {
	p := NewProviders()
	f := func(context.Context, map[string]any) (LLM, error) { return nopLLM{}, nil }
	if err := p.Register("nop", f); err != nil {
		t.Fatal(err)
	}
	if err := p.Register("nop", f); err == nil {
		t.Fatal("expected duplicate error")
	}
	if err := p.Register("", f); err == nil {
		t.Fatal("expected empty name error")
	}
	if err := p.Register("nil", nil); err == nil {
		t.Fatal("expected nil factory error")
	}
	m, err := p.Open(context.Background(), "nop", nil)
	if err != nil || m.Name() != "nop" {
		t.Fatalf("m=%v err=%v", m, err)
	}
	_, err = p.Open(context.Background(), "missing", nil)
	if err == nil || !strings.Contains(err.Error(), "nop") {
		t.Fatalf("err=%v", err)
	}
}

func TestProvidersAreIndependent(t *testing.T) {
	a, b := NewProviders(), NewProviders()
	_ = a.Register("x", func(context.Context, map[string]any) (LLM, error) { return nopLLM{}, nil })
	if _, ok := b.Resolve("x"); ok {
		t.Fatal("registries share state")
	}
	if got := a.Names(); len(got) != 1 || got[0] != "x" {
		t.Fatalf("names=%v", got)
	}
}
