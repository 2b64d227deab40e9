package buildenv

import (
	"reflect"
	"testing"
)

func TestFlagPaths(t *testing.T) {
	t.Parallel()

	tests := []struct {
		flags string
		want  []string
	}{
		{"-O2 -pipe", nil},
		{"-I/a/include -L/a/lib", []string{"/a/include", "/a/lib"}},
		{"-isystem /s/usr/include -isystem/t", []string{"/s/usr/include", "/t"}},
		{"-Wl,-rpath-link,/a/lib -Wl,-rpath,/b/lib", []string{"/a/lib", "/b/lib"}},
		{"--sysroot=/s -B/t/bin", []string{"/s", "/t/bin"}},
		{"-Wl,--as-needed", nil},
		{"-I include", []string{"include"}},
	}
	for _, tt := range tests {
		if got := FlagPaths(tt.flags); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("FlagPaths(%q) = %v, want %v", tt.flags, got, tt.want)
		}
	}
}

func TestCheckIsolation(t *testing.T) {
	t.Parallel()

	roots := []string{"/deps/a", "/deps/b"}

	tests := []struct {
		name  string
		vars  map[string]string
		wantN int
	}{
		{"clean", map[string]string{
			"LIBRARY_PATH": "/deps/a/lib:/deps/b/usr/lib64",
			"CPPFLAGS":     "-I/deps/a/include -Iinclude",
			"LDFLAGS":      "-L/deps/b/lib -Wl,-rpath-link,/deps/b/lib",
		}, 0},
		{"host default in search var", map[string]string{"LIBRARY_PATH": "/deps/a/lib:/usr/lib"}, 1},
		{"usr local", map[string]string{"CPATH": "/usr/local/include"}, 1},
		{"outside roots", map[string]string{"PKG_CONFIG_PATH": "/opt/other/lib/pkgconfig"}, 1},
		{"host include in flags", map[string]string{"CFLAGS": "-O2 -isystem /usr/include"}, 1},
		{"prefix is not containment", map[string]string{"LDFLAGS": "-L/deps/ab/lib"}, 1},
		{"unchecked var", map[string]string{"HOME": "/root"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := NewVariables()
			for k, val := range tt.vars {
				v.Set(k, val)
			}
			got := CheckIsolation(v, roots)
			if len(got) != tt.wantN {
				t.Errorf("CheckIsolation() = %v, want %d violations", got, tt.wantN)
			}
		})
	}
}
