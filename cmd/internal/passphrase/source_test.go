package passphrase

import (
	"errors"
	"strings"
	"testing"
)

func lookupFrom(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func TestSourcePrefersEnvironment(t *testing.T) {
	src := NewSource("LOTTO_PASS", "wallet").WithLookup(lookupFrom(map[string]string{"LOTTO_PASS": "hunter2"}))
	src.prompt = func(string) (string, error) {
		t.Fatalf("prompt should not be used when the environment is set")
		return "", nil
	}
	got, err := src.Get()
	if err != nil || got != "hunter2" {
		t.Fatalf("unexpected result %q, %v", got, err)
	}
}

func TestSourceRejectsEmptyEnvironment(t *testing.T) {
	src := NewSource("LOTTO_PASS", "wallet").WithLookup(lookupFrom(map[string]string{"LOTTO_PASS": "  "}))
	if _, err := src.Get(); err == nil || !strings.Contains(err.Error(), "LOTTO_PASS") {
		t.Fatalf("expected empty env error, got %v", err)
	}
}

func TestSourcePromptsOnceAndCaches(t *testing.T) {
	calls := 0
	src := NewSource("LOTTO_PASS", "wallet").WithLookup(lookupFrom(nil))
	src.prompt = func(label string) (string, error) {
		calls++
		if label != "wallet" {
			t.Fatalf("unexpected label %q", label)
		}
		return "typed", nil
	}
	for i := 0; i < 3; i++ {
		got, err := src.Get()
		if err != nil || got != "typed" {
			t.Fatalf("unexpected result %q, %v", got, err)
		}
	}
	if calls != 1 {
		t.Fatalf("expected a single prompt, got %d", calls)
	}
}

func TestSourceWithoutTerminal(t *testing.T) {
	src := NewSource("LOTTO_PASS", "").WithLookup(lookupFrom(nil))
	src.prompt = func(string) (string, error) { return "", errNoTerminal }
	_, err := src.Get()
	if err == nil || !strings.Contains(err.Error(), "set LOTTO_PASS") {
		t.Fatalf("expected missing passphrase error, got %v", err)
	}

	failing := NewSource("", "wallet").WithLookup(lookupFrom(nil))
	failing.prompt = func(string) (string, error) { return "", errors.New("tty closed") }
	if _, err := failing.Get(); err == nil || !strings.Contains(err.Error(), "tty closed") {
		t.Fatalf("expected prompt failure, got %v", err)
	}
}
