//go:build ignore

// build.go - RepGap build system
// Usage: go run build.go [-target=TARGET] [-v]
// Targets: all, server, cli, test, release, clean

package main

import (
	"flag"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"
)

const versionPkg = "repgap/pkg/contracts"

var (
	distDir = "dist"

	// key = directory under cmd/, value = output name
	executables = map[string]string{
		"server": "repgap-server",
		"cli":    "repgap",
	}

	releasePlatforms = []struct{ goos, goarch string }{
		{"linux", "amd64"},
		{"linux", "arm64"},
		{"darwin", "arm64"},
		{"windows", "amd64"},
	}

	colorReset  = "\033[0m"
	colorRed    = "\033[31m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
)

type buildContext struct {
	Verbose bool
	GOOS    string
	GOARCH  string
	OutDir  string
}

func main() {
	target := flag.String("target", "all", "Build target")
	verbose := flag.Bool("v", false, "Verbose output")
	flag.Parse()

	printInfo("RepGap build")
	start := time.Now()

	ctx := &buildContext{
		Verbose: *verbose,
		GOOS:    runtime.GOOS,
		GOARCH:  runtime.GOARCH,
		OutDir:  distDir,
	}

	switch *target {
	case "all":
		buildExecutable("server", ctx)
		buildExecutable("cli", ctx)
	case "server", "cli":
		buildExecutable(*target, ctx)
	case "test":
		runTests(ctx.Verbose)
	case "release":
		buildRelease(ctx)
	case "clean":
		clean()
	default:
		showHelp()
		os.Exit(1)
	}

	printSuccess(fmt.Sprintf("Build completed in %s", time.Since(start).Round(time.Millisecond)))
}

func ldflags() string {
	return strings.Join([]string{
		"-s", "-w",
		fmt.Sprintf("-X %s.BuildTime=%s", versionPkg, time.Now().UTC().Format(time.RFC3339)),
		fmt.Sprintf("-X %s.GitCommit=%s", versionPkg, gitOutput("rev-parse", "--short", "HEAD")),
		fmt.Sprintf("-X %s.GitBranch=%s", versionPkg, gitOutput("rev-parse", "--abbrev-ref", "HEAD")),
	}, " ")
}

func gitOutput(args ...string) string {
	out, err := exec.Command("git", args...).Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

func buildExecutable(name string, ctx *buildContext) {
	source := map[string]string{"server": "./cmd/repgap-server", "cli": "./cmd/repgap"}[name]
	exeName := executables[name]
	if ctx.GOOS == "windows" {
		exeName += ".exe"
	}
	output := filepath.Join(ctx.OutDir, exeName)

	printInfo(fmt.Sprintf("Building %s for %s/%s...", exeName, ctx.GOOS, ctx.GOARCH))

	args := []string{"build", "-trimpath", "-ldflags", ldflags(), "-o", output, source}
	if ctx.Verbose {
		args = append([]string{"build", "-v"}, args[1:]...)
		fmt.Printf("go %s\n", strings.Join(args, " "))
	}

	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(), "GOOS="+ctx.GOOS, "GOARCH="+ctx.GOARCH, "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Failed to build %s: %v", name, err))
		os.Exit(1)
	}

	if info, err := os.Stat(output); err == nil {
		printSuccess(fmt.Sprintf("Built %s (%.1f MB)", output, float64(info.Size())/1024/1024))
	}
}

func buildRelease(ctx *buildContext) {
	for _, p := range releasePlatforms {
		rc := *ctx
		rc.GOOS, rc.GOARCH = p.goos, p.goarch
		rc.OutDir = filepath.Join(distDir, p.goos+"_"+p.goarch)
		buildExecutable("server", &rc)
		buildExecutable("cli", &rc)
	}
}

func runTests(verbose bool) {
	printInfo("Running Go tests...")
	args := []string{"test", "-race"}
	if verbose {
		args = append(args, "-v")
	}
	args = append(args, "./...")

	cmd := exec.Command("go", args...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	if err := cmd.Run(); err != nil {
		printError(fmt.Sprintf("Go tests failed: %v", err))
		os.Exit(1)
	}
	printSuccess("All tests passed")
}

func clean() {
	printInfo("Cleaning build artifacts...")
	for _, dir := range []string{distDir, "exports", "logs"} {
		if err := os.RemoveAll(dir); err != nil {
			printWarning(fmt.Sprintf("Failed to remove %s: %v", dir, err))
		}
	}
	printSuccess("Build artifacts cleaned")
}

func showHelp() {
	fmt.Println("Usage: go run build.go -target=TARGET [-v]")
	fmt.Println()
	fmt.Println("Targets:")
	fmt.Println("  all      build repgap-server and repgap for this platform")
	fmt.Println("  server   build repgap-server")
	fmt.Println("  cli      build repgap")
	fmt.Println("  test     run go test -race ./...")
	fmt.Println("  release  cross-compile both binaries into dist/<os>_<arch>")
	fmt.Println("  clean    remove dist, exports and logs")
}

func printInfo(msg string)    { fmt.Printf("%s[INFO]%s %s\n", colorCyan, colorReset, msg) }
func printSuccess(msg string) { fmt.Printf("%s[OK]%s %s\n", colorGreen, colorReset, msg) }
func printError(msg string)   { fmt.Printf("%s[ERROR]%s %s\n", colorRed, colorReset, msg) }
func printWarning(msg string) { fmt.Printf("%s[WARN]%s %s\n", colorYellow, colorReset, msg) }
