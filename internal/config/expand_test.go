package config

import "testing"

func lookupFrom(env map[string]string) func(string) (string, bool) {
	return func(name string) (string, bool) {
		v, ok := env[name]
		return v, ok
	}
}

func TestExpandVariants(t *testing.T) {
	lookup := lookupFrom(map[string]string{"FOO": "bar"})

	cases := []struct {
		name, in, want string
	}{
		{"bare", "x=$FOO", "x=bar"},
		{"braced", "x=${FOO}", "x=bar"},
		{"default unused", "x=${FOO:-baz}", "x=bar"},
		{"default used", "x=${MISSING:-baz}", "x=baz"},
		{"literal dollar at end", "price: $", "price: $"},
		{"non-var dollar", "$$ not a var", "$$ not a var"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Expand(tc.in, lookup)
			if err != nil {
				t.Fatalf("Expand(%q): %v", tc.in, err)
			}
			if got != tc.want {
				t.Fatalf("Expand(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

func TestExpandUndefinedFailsWithoutDefault(t *testing.T) {
	lookup := lookupFrom(nil)
	if _, err := Expand("x=$MISSING", lookup); err == nil {
		t.Fatal("expected error for undefined $MISSING")
	}
	if _, err := Expand("x=${MISSING}", lookup); err == nil {
		t.Fatal("expected error for undefined ${MISSING}")
	}
}
