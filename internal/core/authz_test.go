package core

import "testing"

func TestAllowlistAuthorizerAuthorize(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"shell", "devtools"},
	})
	if err := a.Authorize(Subject{Source: "web", ID: "shell"}, Action{Command: "read_file"}); err != nil {
		t.Fatalf("expected allow, got error: %v", err)
	}
}

func TestAllowlistAuthorizerWildcard(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"ipc": {AnySubject},
	})
	if err := a.Authorize(Subject{Source: "ipc", ID: "anyone"}, Action{Command: "list_files"}); err != nil {
		t.Fatalf("expected wildcard allow, got error: %v", err)
	}
}

func TestAllowlistAuthorizerDenyUnknownID(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"shell"},
	})
	if err := a.Authorize(Subject{Source: "web", ID: "intruder"}, Action{Command: "write_file"}); err == nil {
		t.Fatalf("expected deny")
	}
}

func TestAllowlistAuthorizerDenyUnknownSource(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{
		"web": {"shell"},
	})
	if err := a.Authorize(Subject{Source: "ipc", ID: "shell"}, Action{Command: "read_file"}); err == nil {
		t.Fatalf("expected deny")
	}
}

func TestAllowlistAuthorizerDenyEmptySubject(t *testing.T) {
	a := NewAllowlistAuthorizer(map[string][]string{"web": {AnySubject}})
	if err := a.Authorize(Subject{Source: "web"}, Action{Command: "read_file"}); err == nil {
		t.Fatalf("expected deny for empty subject id")
	}
}
