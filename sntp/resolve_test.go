package sntp

import (
	"context"
	"errors"
	"testing"
)

func fakeLookup(table map[string][]string, calls *[]string) LookupFunc {
	return func(_ context.Context, host string) ([]string, error) {
		*calls = append(*calls, host)
		addrs, ok := table[host]
		if !ok {
			return nil, errors.New("no such host")
		}
		return addrs, nil
	}
}

func TestResolverOrder(t *testing.T) {
	tests := []struct {
		name      string
		table     map[string][]string
		want      string
		wantCalls int
	}{
		{
			name:      "first host resolves",
			table:     map[string][]string{"time.google.com": {"216.239.35.0"}, "time.apple.com": {"17.253.4.125"}},
			want:      "216.239.35.0",
			wantCalls: 1,
		},
		{
			name:      "second host resolves",
			table:     map[string][]string{"time.apple.com": {"17.253.4.125"}},
			want:      "17.253.4.125",
			wantCalls: 2,
		},
		{
			name:      "empty answer skipped",
			table:     map[string][]string{"time.google.com": {}, "time.apple.com": {"17.253.4.125"}},
			want:      "17.253.4.125",
			wantCalls: 2,
		},
		{
			name:      "fallback address",
			table:     map[string][]string{},
			want:      DefaultFallbackIP,
			wantCalls: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls []string
			r := NewResolver(ResolverParams{
				Config: Config{}.Defaults(),
				Lookup: fakeLookup(tt.table, &calls),
			})
			if r.Address() != "" {
				t.Fatalf("Address() before Resolve = %q", r.Address())
			}
			if got := r.Resolve(context.Background()); got != tt.want {
				t.Fatalf("Resolve() = %q, want %q", got, tt.want)
			}
			if r.Address() != tt.want {
				t.Fatalf("Address() = %q, want cached %q", r.Address(), tt.want)
			}
			if len(calls) != tt.wantCalls {
				t.Fatalf("lookups = %v, want %d", calls, tt.wantCalls)
			}
		})
	}
}

func TestResolverReresolve(t *testing.T) {
	var calls []string
	table := map[string][]string{}
	r := NewResolver(ResolverParams{
		Config: Config{Servers: []string{"time.google.com"}},
		Lookup: fakeLookup(table, &calls),
	})
	if got := r.Resolve(context.Background()); got != DefaultFallbackIP {
		t.Fatalf("Resolve() = %q, want fallback", got)
	}

	table["time.google.com"] = []string{"216.239.35.4"}
	if got := r.Resolve(context.Background()); got != "216.239.35.4" {
		t.Fatalf("second Resolve() = %q", got)
	}
}
