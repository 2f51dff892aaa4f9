package plugin

import (
	"reflect"
	"testing"
)

func TestTokenizeCommandLine(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want []string
	}{
		{name: "plain", in: "/vax add Rex Rabies", want: []string{"/vax", "add", "Rex", "Rabies"}},
		{name: "double quotes", in: `/addpet "Mr Whiskers" cat`, want: []string{"/addpet", "Mr Whiskers", "cat"}},
		{name: "single quotes", in: "/addpet 'Mr Whiskers' cat", want: []string{"/addpet", "Mr Whiskers", "cat"}},
		{name: "escaped quote", in: `say \"hi\"`, want: []string{`say`, `"hi"`}},
		{name: "collapsed whitespace", in: "  a \t b \n c  ", want: []string{"a", "b", "c"}},
		{name: "empty", in: "   ", want: nil},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got := tokenizeCommandLine(tt.in)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("tokenizeCommandLine(%q) = %v, want %v", tt.in, got, tt.want)
			}
		})
	}
}

func TestParseFlags(t *testing.T) {
	t.Parallel()
	args := []string{"Rex", "--given", "2026-01-15", "--every=12", "--once", "-v", "extra"}
	pos, flags, bools := parseFlags(args)

	if !reflect.DeepEqual(pos, []string{"Rex"}) {
		t.Fatalf("positionals = %v", pos)
	}
	if flags["given"] != "2026-01-15" {
		t.Fatalf("given = %q", flags["given"])
	}
	if flags["every"] != "12" {
		t.Fatalf("every = %q", flags["every"])
	}
	if !bools["once"] {
		t.Fatal("expected --once to parse as bool flag")
	}
	if flags["v"] != "extra" {
		t.Fatalf("v = %q, expected short flag to consume next token", flags["v"])
	}
}

func TestParseFlagsCombinedShort(t *testing.T) {
	t.Parallel()
	pos, flags, bools := parseFlags([]string{"-abc", "tail"})
	if len(flags) != 0 {
		t.Fatalf("flags = %v", flags)
	}
	for _, k := range []string{"a", "b", "c"} {
		if !bools[k] {
			t.Fatalf("expected bool flag %q", k)
		}
	}
	if !reflect.DeepEqual(pos, []string{"tail"}) {
		t.Fatalf("positionals = %v", pos)
	}
}

func TestTelegramCommandNameFromRoute(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name  string
		route []string
		want  string
		ok    bool
	}{
		{name: "leaf", route: []string{"vax", "add"}, want: "vax_add", ok: true},
		{name: "dash", route: []string{"due-soon"}, want: "due_soon", ok: true},
		{name: "upper", route: []string{"Digest"}, want: "digest", ok: true},
		{name: "digit lead", route: []string{"7days"}, want: "cmd_7days", ok: true},
		{name: "garbage", route: []string{"!!!"}, want: "", ok: false},
		{name: "empty", route: nil, want: "", ok: false},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			got, ok := telegramCommandNameFromRoute(tt.route)
			if ok != tt.ok || got != tt.want {
				t.Fatalf("telegramCommandNameFromRoute(%v) = (%q, %v), want (%q, %v)", tt.route, got, ok, tt.want, tt.ok)
			}
		})
	}
}
