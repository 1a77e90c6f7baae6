package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

func writeFile(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestCompileThenInfer(t *testing.T) {
	dir := t.TempDir()
	rulesPath := writeFile(t, dir, "rules.dav",
		"rule r { eat(E, X, Y) ^ man(X) => apple(Y) }\n")
	probPath := writeFile(t, dir, "problem.dav",
		"problem p { observe { apple(z) } }\n")
	kbDir := filepath.Join(dir, "compiled")

	out, err := runCLI(t, "compile", "-k", kbDir, rulesPath)
	if err != nil {
		t.Fatalf("compile: %v\n%s", err, out)
	}
	if !strings.Contains(out, "compiled 1 axioms") {
		t.Errorf("compile output: %s", out)
	}

	out, err = runCLI(t, "infer", "-k", kbDir, probPath)
	if err != nil {
		t.Fatalf("infer: %v\n%s", err, out)
	}
	if !strings.Contains(out, "<solution") || !strings.Contains(out, `status="optimal"`) {
		t.Errorf("infer output missing solution:\n%s", out)
	}
}

func TestInferWithInlineRules(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "all.dav", `
rule r { eat(E, X, Y) ^ man(X) => apple(Y) }
problem p { observe { apple(z) } }
`)
	out, err := runCLI(t, "i", path)
	if err != nil {
		t.Fatalf("infer: %v\n%s", err, out)
	}
	if !strings.Contains(out, "<proof-graph") {
		t.Errorf("missing proof graph:\n%s", out)
	}
}

func TestInferWithoutProblemsFails(t *testing.T) {
	dir := t.TempDir()
	path := writeFile(t, dir, "rules.dav", "rule r { p(x) => q(x) }\n")
	if _, err := runCLI(t, "infer", path); err == nil {
		t.Fatal("inference without problems must fail")
	}
}

func TestCompileRejectsEmptyInput(t *testing.T) {
	if _, err := runCLI(t, "compile"); err == nil {
		t.Fatal("compile without inputs must fail")
	}
}
