package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/yungbote/cipheragg/internal/accumulation"
	domainagg "github.com/yungbote/cipheragg/internal/domain/aggregates"
)

func cliEnv(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("CIPHERAGG_CONFIG", "")
	t.Setenv("LOG_MODE", "nop")
	t.Setenv("STORAGE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "cli.db"))
	t.Setenv("LEDGER_DRIVER", "csv")
	t.Setenv("LEDGER_CSV_PATH", filepath.Join(dir, "cli.csv"))
	t.Setenv("METRICS_ENABLED", "false")
}

func runCLI(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), args, &stdout, &stderr)
	return code, strings.TrimSpace(stdout.String()), stderr.String()
}

func TestContributePrintsRunningTotal(t *testing.T) {
	cliEnv(t)
	want := []string{"10", "150", "227"}
	for i, ct := range []string{"10", "15", "15"} {
		code, out, errOut := runCLI(t, "contribute", "-subject", "alice", "-ciphertext", ct, "-modulus", "17", "-field", "name=Alice")
		if code != exitOK {
			t.Fatalf("contribute %s: code=%d stderr=%s", ct, code, errOut)
		}
		if out != want[i] {
			t.Fatalf("total after %s: want=%s got=%s", ct, want[i], out)
		}
	}

	code, out, _ := runCLI(t, "show", "-subject", "alice")
	if code != exitOK || out != "227" {
		t.Fatalf("show: code=%d out=%q", code, out)
	}
}

func TestContributeResubmittedIDAppliedOnce(t *testing.T) {
	cliEnv(t)
	for i := 0; i < 2; i++ {
		code, out, errOut := runCLI(t, "contribute", "-subject", "bob", "-ciphertext", "10", "-modulus", "17", "-id", "req-1")
		if code != exitOK || out != "10" {
			t.Fatalf("attempt %d: code=%d out=%q stderr=%s", i, code, out, errOut)
		}
	}
	code, out, _ := runCLI(t, "contribute", "-subject", "bob", "-ciphertext", "15", "-modulus", "17", "-id", "req-2")
	if code != exitOK || out != "150" {
		t.Fatalf("second contribution: code=%d out=%q", code, out)
	}
}

func TestContributeRejectsBadInput(t *testing.T) {
	cliEnv(t)
	cases := [][]string{
		{"contribute", "-subject", "", "-ciphertext", "10", "-modulus", "17"},
		{"contribute", "-subject", "a", "-ciphertext", "-5", "-modulus", "17"},
		{"contribute", "-subject", "a", "-ciphertext", "10", "-modulus", "1"},
		{"contribute", "-subject", "a", "-ciphertext", "10", "-modulus", "17", "-field", "novalue"},
		{"contribute", "-subject", "a", "-ciphertext", "289", "-modulus", "17"},
	}
	for _, args := range cases {
		if code, _, _ := runCLI(t, args...); code != exitUsage {
			t.Fatalf("%v: want exit %d got %d", args, exitUsage, code)
		}
	}
}

func TestContributeModulusMismatch(t *testing.T) {
	cliEnv(t)
	if code, _, errOut := runCLI(t, "contribute", "-subject", "carol", "-ciphertext", "10", "-modulus", "17"); code != exitOK {
		t.Fatalf("seed: code=%d stderr=%s", code, errOut)
	}
	code, _, errOut := runCLI(t, "contribute", "-subject", "carol", "-ciphertext", "10", "-modulus", "19")
	if code != exitUsage || !strings.Contains(errOut, "modulus_mismatch") {
		t.Fatalf("mismatch: code=%d stderr=%s", code, errOut)
	}
}

func TestShowMissingSubject(t *testing.T) {
	cliEnv(t)
	code, _, errOut := runCLI(t, "show", "-subject", "nobody")
	if code != exitFailure || !strings.Contains(errOut, "not_found") {
		t.Fatalf("show missing: code=%d stderr=%s", code, errOut)
	}
}

func TestUnknownCommand(t *testing.T) {
	if code, _, _ := runCLI(t, "frobnicate"); code != exitUsage {
		t.Fatalf("unknown command: want=%d got=%d", exitUsage, code)
	}
	if code, _, _ := runCLI(t); code != exitUsage {
		t.Fatalf("no command: want=%d got=%d", exitUsage, code)
	}
}

func TestFieldListSet(t *testing.T) {
	l := fieldList{}
	if err := l.Set("name=Alice=B"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if l["name"] != "Alice=B" {
		t.Fatalf("value: want=Alice=B got=%q", l["name"])
	}
	if err := l.Set("=x"); err == nil {
		t.Fatalf("expected error for empty name")
	}
}

func TestContributeFailurePrintsIDWhenRetryable(t *testing.T) {
	c, err := accumulation.NewContribution("alice", "10", "17", accumulation.WithContributionID("resp-7"))
	if err != nil {
		t.Fatalf("NewContribution: %v", err)
	}

	var stderr bytes.Buffer
	unavailable := domainagg.NewSubjectError(domainagg.CodeStoreUnavailable, "Accumulation.Contribute", "alice", "store unavailable", nil)
	if code := contributeFailed(&stderr, c, unavailable); code != exitRetryable {
		t.Fatalf("exit: want=%d got=%d", exitRetryable, code)
	}
	if !strings.Contains(stderr.String(), "-id resp-7") {
		t.Fatalf("stderr must carry the contribution id:\n%s", stderr.String())
	}

	stderr.Reset()
	mismatch := domainagg.NewError(domainagg.CodeModulusMismatch, "Accumulation.Contribute", "modulus differs", nil)
	if code := contributeFailed(&stderr, c, mismatch); code != exitUsage {
		t.Fatalf("exit: want=%d got=%d", exitUsage, code)
	}
	if strings.Contains(stderr.String(), "contribution id") {
		t.Fatalf("non-retryable failures need no id hint:\n%s", stderr.String())
	}
}
