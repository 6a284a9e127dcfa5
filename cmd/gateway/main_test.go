package main

import "testing"

func TestNewRootCmd_SubcommandTree(t *testing.T) {
	root := newRootCmd()

	names := map[string]bool{}
	for _, c := range root.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"run", "repl", "version"} {
		if !names[want] {
			t.Errorf("expected %q subcommand, got %v", want, names)
		}
	}
}

func TestNewRunCmd_RequiresExactlyOneArg(t *testing.T) {
	cmd := newRunCmd()
	if err := cmd.Args(cmd, nil); err == nil {
		t.Error("expected error with zero args")
	}
	if err := cmd.Args(cmd, []string{"goal"}); err != nil {
		t.Errorf("expected one arg to be accepted, got %v", err)
	}
	if err := cmd.Args(cmd, []string{"goal", "extra"}); err == nil {
		t.Error("expected error with more than one arg")
	}
}

func TestNewReplCmd_HasGoalFlag(t *testing.T) {
	cmd := newReplCmd()
	flag := cmd.Flags().Lookup("goal")
	if flag == nil {
		t.Fatal("expected --goal flag on repl subcommand")
	}
	if flag.DefValue != "" {
		t.Errorf("expected empty default, got %q", flag.DefValue)
	}
}

func TestNewRootCmd_AcceptsAtMostOneArg(t *testing.T) {
	root := newRootCmd()
	if err := root.Args(root, []string{"one", "two"}); err == nil {
		t.Error("expected root command to reject more than one bare argument")
	}
	if err := root.Args(root, []string{"one goal in one string"}); err != nil {
		t.Errorf("expected root command to accept a single goal argument, got %v", err)
	}
}
