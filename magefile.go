//go:build mage
// +build mage

package main

import (
	"fmt"
	"os"
	"os/exec"

	"github.com/magefile/mage/mg"
)

// Default target to run when none is specified
// If not set, running mage will list available targets
var Default = Build

func Build() error {
	mg.Deps(BuildCluster)
	fmt.Println("Compilation finished")
	return nil
}

// cgoCommand runs go with the HDF5 flags of the environment.
func cgoCommand(args ...string) *exec.Cmd {
	ldflags := os.Getenv("CGO_LDFLAGS")
	cflags := os.Getenv("CGO_CFLAGS")
	cmd := exec.Command("go", args...)
	cmd.Env = append(os.Environ(),
		"CGO_ENABLED=1",
		fmt.Sprintf("CGO_LDFLAGS=%s", ldflags),
		fmt.Sprintf("CGO_CFLAGS=%s", cflags))
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd
}

func BuildCluster() error {
	fmt.Println("Building nmxcluster executable...")
	return cgoCommand("build", "-o", "./bin/nmxcluster", "./nmxcluster").Run()
}

// Test runs every test, HDF5 and SQLite included.
func Test() error {
	fmt.Println("Running tests...")
	return cgoCommand("test", "./...").Run()
}

// TestCore runs the tests of the decoding and clustering core, which need
// no C libraries.
func TestCore() error {
	fmt.Println("Running core tests...")
	cmd := exec.Command("go", "test", "./pkg")
	cmd.Env = append(os.Environ(), "CGO_ENABLED=0")
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	return cmd.Run()
}
