package callbacks

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestParse(t *testing.T) {
	cases := []struct {
		cb      *tele.Callback
		key     string
		payload string
	}{
		{nil, "", ""},
		{&tele.Callback{Data: "\fsplit_done|tok-1"}, "split_done", "tok-1"},
		{&tele.Callback{Data: "\fnav_home"}, "nav_home", ""},
		{&tele.Callback{Data: "plain"}, "plain", ""},
		{&tele.Callback{Unique: "admin_plan", Data: "42|week"}, "admin_plan", "42|week"},
	}
	for _, tc := range cases {
		k, p := Parse(tc.cb)
		if k != tc.key || p != tc.payload {
			t.Errorf("Parse(%+v) = %q, %q; want %q, %q", tc.cb, k, p, tc.key, tc.payload)
		}
	}
}

func TestFields(t *testing.T) {
	p := Join("tok", "3")
	if p != "tok|3" {
		t.Fatalf("Join = %q", p)
	}
	if n, err := Int(p, 1); err != nil || n != 3 {
		t.Fatalf("Int = %d, %v", n, err)
	}
	if _, err := Int(p, 2); err == nil {
		t.Fatal("expected error for missing field")
	}
	if Fields("") != nil {
		t.Fatal("empty payload should have no fields")
	}
}
