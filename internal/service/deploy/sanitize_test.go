package deploy

import "testing"

func TestSanitizeEntryPath(t *testing.T) {
	cases := []struct {
		name string
		want string
		ok   bool
	}{
		{name: "index.html", want: "index.html", ok: true},
		{name: "assets/app.js", want: "assets/app.js", ok: true},
		{name: "./assets//img/logo.png", want: "assets/img/logo.png", ok: true},
		{name: `css\site.css`, want: "css/site.css", ok: true},
		{name: "../../etc/passwd"},
		{name: "assets/../../secret"},
		{name: "assets/.."},
		{name: "/etc/passwd"},
		{name: `C:\Windows\win.ini`},
		{name: "c:relative"},
		{name: `..\evil.txt`},
		{name: "./"},
		{name: ""},
		{name: "nul\x00byte"},
	}
	for _, tc := range cases {
		got, ok := sanitizeEntryPath(tc.name)
		if ok != tc.ok || got != tc.want {
			t.Errorf("sanitizeEntryPath(%q) = (%q, %v), want (%q, %v)", tc.name, got, ok, tc.want, tc.ok)
		}
	}
}
