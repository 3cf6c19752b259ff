package main

import (
	"strings"
	"testing"

	"fbuild/internal/testsupport"
)

func TestBuildCommandRunsOperation(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithToolchainCommands(
		[]string{"sh", "-c", "echo compiling"},
		[]string{"sh", "-c", "exit 0"},
		[]string{"sh", "-c", "exit 0"},
	))

	project := t.TempDir()
	out, _, err := runCLI(t, []string{"build", "-e", "uno", "-d", project}, env.configPath)
	if err != nil {
		t.Fatalf("build command: %v", err)
	}
	requireContains(t, out, "compiling")
	requireContains(t, out, "Build succeeded")
}

func TestBuildCommandReportsFailure(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithToolchainCommands(
		[]string{"sh", "-c", "echo boom; exit 2"},
		[]string{"sh", "-c", "exit 0"},
		[]string{"sh", "-c", "exit 0"},
	))

	project := t.TempDir()
	out, _, err := runCLI(t, []string{"build", "-e", "uno", "-d", project}, env.configPath)
	if err == nil {
		t.Fatal("expected failing build to return an error")
	}
	if !strings.Contains(err.Error(), "Build failed") {
		t.Fatalf("unexpected error: %v", err)
	}
	requireContains(t, out, "boom")
}

func TestBuildCommandRequiresEnvironment(t *testing.T) {
	env := setupCLITestEnv(t)
	_, _, err := runCLI(t, []string{"build"}, env.configPath)
	if err == nil || !strings.Contains(err.Error(), "env") {
		t.Fatalf("expected missing env error, got %v", err)
	}
}

func TestMonitorCommandUsesExplicitPort(t *testing.T) {
	env := setupCLITestEnv(t, testsupport.WithToolchainCommands(
		[]string{"sh", "-c", "exit 0"},
		[]string{"sh", "-c", "exit 0"},
		[]string{"sh", "-c", `echo "monitor $@"`, "stub"},
	))

	project := t.TempDir()
	out, _, err := runCLI(t, []string{"monitor", "-e", "uno", "-d", project, "-p", "/dev/ttyS9"}, env.configPath)
	if err != nil {
		t.Fatalf("monitor command: %v", err)
	}
	requireContains(t, out, "--port /dev/ttyS9")
	requireContains(t, out, "Monitor session ended")
}

func TestHistoryCommandListsOperations(t *testing.T) {
	env := setupCLITestEnv(t)

	project := t.TempDir()
	if _, _, err := runCLI(t, []string{"build", "-e", "uno", "-d", project}, env.configPath); err != nil {
		t.Fatalf("build command: %v", err)
	}

	out, _, err := runCLI(t, []string{"history"}, env.configPath)
	if err != nil {
		t.Fatalf("history command: %v", err)
	}
	requireContains(t, out, "build")
	requireContains(t, out, "success")
}

func TestHistoryCommandEmpty(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := t.TempDir() + "/config.toml"
	writeTestConfig(t, configPath, cfg)

	out, _, err := runCLI(t, []string{"history"}, configPath)
	if err != nil {
		t.Fatalf("history command: %v", err)
	}
	requireContains(t, out, "No operations recorded")
}
