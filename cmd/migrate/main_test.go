package main

import "testing"

func TestParseMigrationDefaultsToUp(t *testing.T) {
	m, err := parseMigration(nil)
	if err != nil || m.action != "up" {
		t.Fatalf("expected up, got %+v err=%v", m, err)
	}
}

func TestParseMigrationDownTarget(t *testing.T) {
	m, err := parseMigration([]string{"down", "3"})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if m.action != "down" || m.target != 3 {
		t.Fatalf("unexpected migration %+v", m)
	}

	m, err = parseMigration([]string{"DOWN"})
	if err != nil || m.action != "down" || m.target != 0 {
		t.Fatalf("expected latest rollback, got %+v err=%v", m, err)
	}
}

func TestParseMigrationRejectsBadInput(t *testing.T) {
	cases := [][]string{
		{"sideways"},
		{"down", "abc"},
		{"down", "-1"},
		{"down", "1", "2"},
		{"status", "extra"},
	}
	for _, args := range cases {
		if _, err := parseMigration(args); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}
