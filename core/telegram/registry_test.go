package telegram

import (
	"testing"

	tele "gopkg.in/telebot.v4"
)

func TestRegistryCommands(t *testing.T) {
	r := NewRegistry()
	h := func(tele.Context) error { return nil }
	for _, tc := range []struct {
		name string
		cmd  Command
	}{
		{"/start", Command{Handler: h, Description: "Buka menu utama"}},
		{"done", Command{Handler: h, Description: "Selesaikan upload"}},
		{"/admin", Command{Handler: h, Description: "Panel admin", OwnerOnly: true}},
		{"/debug", Command{Handler: h, Description: "x", Hidden: true}},
	} {
		if err := r.RegisterCommand(tc.name, tc.cmd); err != nil {
			t.Fatalf("register %s: %v", tc.name, err)
		}
	}
	for name, cmd := range map[string]Command{
		"/start":    {Handler: h, Description: "again"},
		"/Bad-Name": {Handler: h, Description: "x"},
		"/nohandle": {Description: "x"},
		"/nodesc":   {Handler: h},
	} {
		if err := r.RegisterCommand(name, cmd); err == nil {
			t.Errorf("register %s: want error", name)
		}
	}

	public := r.Menu(false)
	if len(public) != 2 || public[0].Text != "start" || public[1].Text != "done" {
		t.Fatalf("public menu = %+v", public)
	}
	if owner := r.Menu(true); len(owner) != 3 || owner[2].Text != "admin" {
		t.Fatalf("owner menu = %+v", owner)
	}
	if got := r.Commands(); len(got) != 4 || got[1].Name != "/done" {
		t.Fatalf("commands = %+v", got)
	}
}

func TestRegistryCallbacks(t *testing.T) {
	r := NewRegistry()
	h := func(tele.Context) error { return nil }
	if err := r.RegisterCallback("merge_vcf", h); err != nil {
		t.Fatal(err)
	}
	if err := r.RegisterCallback("merge_vcf", h); err == nil {
		t.Fatal("duplicate callback accepted")
	}
	if err := r.RegisterCallback("", h); err == nil {
		t.Fatal("empty key accepted")
	}
	if _, ok := r.Callback("merge_vcf"); !ok {
		t.Fatal("callback missing")
	}
	if got := r.Callbacks(); len(got) != 1 || got[0] != "merge_vcf" {
		t.Fatalf("Callbacks = %v", got)
	}
	if r.CallbackNotFound() == nil {
		t.Fatal("default not-found handler missing")
	}
	r.SetCallbackNotFound(nil)
	if r.CallbackNotFound() == nil {
		t.Fatal("nil must not replace the not-found handler")
	}
}
