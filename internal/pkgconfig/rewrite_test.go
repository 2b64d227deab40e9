package pkgconfig

import (
	"reflect"
	"testing"
)

func fakeExists(paths ...string) func(string) bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[p] = true
	}
	return func(p string) bool { return set[p] }
}

func TestRootOf(t *testing.T) {
	t.Parallel()

	tests := []struct {
		dir    string
		want   string
		wantOK bool
	}{
		{"/deps/foo/usr/lib64/pkgconfig", "/deps/foo", true},
		{"/deps/foo/lib64/pkgconfig", "/deps/foo", true},
		{"/deps/foo/usr/share/pkgconfig/", "/deps/foo", true},
		{"/deps/foo/lib/pkgconfig", "/deps/foo", true},
		{"/deps/foo/share/stuff", "", false},
	}
	for _, tt := range tests {
		got, ok := RootOf(tt.dir)
		if got != tt.want || ok != tt.wantOK {
			t.Errorf("RootOf(%q) = %q, %v; want %q, %v", tt.dir, got, ok, tt.want, tt.wantOK)
		}
	}
}

func TestRewriteIncludeIntoRoot(t *testing.T) {
	t.Parallel()

	rw := NewRewriter("/deps/bar/usr/lib/pkgconfig:/deps/foo/usr/lib64/pkgconfig")
	rw.Exists = fakeExists(
		"/deps/foo/usr/lib64/pkgconfig/foo.pc",
		"/deps/foo/usr/include/foo",
	)

	got := rw.Rewrite("-I/usr/include/foo -L/usr/lib64 -lfoo \n", []string{"foo"})
	want := "-I/deps/foo/usr/include/foo -L/deps/foo/usr/lib64 -lfoo \n"
	if got != want {
		t.Errorf("Rewrite() = %q, want %q", got, want)
	}
}

func TestRewriteFailsOpen(t *testing.T) {
	t.Parallel()

	rw := NewRewriter("/deps/foo/usr/lib64/pkgconfig")
	rw.Exists = fakeExists()

	in := "-I/usr/include/unknown\n"
	if got := rw.Rewrite(in, []string{"unknown"}); got != in {
		t.Errorf("Rewrite() = %q, want unchanged", got)
	}
}

func TestRewriteLeavesKnownRootsAlone(t *testing.T) {
	t.Parallel()

	rw := NewRewriter("/deps/foo/usr/lib/pkgconfig:/deps/bar/lib/pkgconfig")
	rw.Exists = fakeExists("/deps/foo/usr/lib/pkgconfig/foo.pc")

	in := "-I/deps/bar/include -Wl,-rpath,/deps/bar/lib\n"
	if got := rw.Rewrite(in, []string{"foo"}); got != in {
		t.Errorf("Rewrite() = %q, want unchanged", got)
	}
}

func TestRewriteAllForms(t *testing.T) {
	t.Parallel()

	rw := NewRewriter("/r/usr/lib/pkgconfig")
	rw.Exists = fakeExists("/r/usr/lib/pkgconfig/x.pc", "/r/usr/include", "/r/usr/include/x")

	got := rw.Rewrite("-isystem /usr/include -isystem/usr/include/x -Wl,-rpath-link,/usr/lib -Wl,-rpath,/usr/lib /usr/lib/libx.a -pthread",
		[]string{"x"})
	want := "-isystem /r/usr/include -isystem/r/usr/include/x -Wl,-rpath-link,/r/usr/lib -Wl,-rpath,/r/usr/lib /r/usr/lib/libx.a -pthread"
	if got != want {
		t.Errorf("Rewrite() =\n%q\nwant\n%q", got, want)
	}
}

func TestRewriteSearchesOtherRootsForMissingInclude(t *testing.T) {
	t.Parallel()

	rw := NewRewriter("/deps/gtk/usr/lib/pkgconfig:/deps/glib/usr/lib/pkgconfig")
	rw.Exists = fakeExists(
		"/deps/gtk/usr/lib/pkgconfig/gtk.pc",
		"/deps/gtk/usr/include/gtk-3.0",
		"/deps/glib/usr/include/glib-2.0",
	)

	got := rw.Rewrite("-I/usr/include/gtk-3.0 -I/usr/include/glib-2.0", []string{"gtk"})
	want := "-I/deps/gtk/usr/include/gtk-3.0 -I/deps/glib/usr/include/glib-2.0"
	if got != want {
		t.Errorf("Rewrite() = %q, want %q", got, want)
	}
}

func TestPackages(t *testing.T) {
	t.Parallel()

	tests := []struct {
		args []string
		want []string
	}{
		{[]string{"--cflags", "foo"}, []string{"foo"}},
		{[]string{"--libs", "glib-2.0 >= 2.50", "gio-2.0"}, []string{"glib-2.0", "gio-2.0"}},
		{[]string{"--atleast-version=1.0", "zlib"}, []string{"zlib"}},
		{[]string{"--exists", "foo", ">=", "1.2", "bar"}, []string{"foo", "bar"}},
	}
	for _, tt := range tests {
		if got := Packages(tt.args); !reflect.DeepEqual(got, tt.want) {
			t.Errorf("Packages(%v) = %v, want %v", tt.args, got, tt.want)
		}
	}
}

func TestIsFlagQuery(t *testing.T) {
	t.Parallel()

	if !IsFlagQuery([]string{"--cflags-only-I", "foo"}) {
		t.Error("--cflags-only-I should be a flag query")
	}
	if !IsFlagQuery([]string{"--libs", "foo"}) {
		t.Error("--libs should be a flag query")
	}
	if IsFlagQuery([]string{"--modversion", "foo"}) {
		t.Error("--modversion is not a flag query")
	}
}
