package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"github.com/carved4/go-hashresolve/pkg/hash"
)

// Rewrites hash.Get("Name") and GetHash("Name") calls into uint32 literals
// so release binaries carry only digests, never the names. Importing the
// real hash package keeps the tool incapable of drifting from the library.

var callPattern = regexp.MustCompile(`((?:\w+\.)?GetHash|hash\.Get)\("([^"]+)"\)`)

func processFile(path string, dryRun bool) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	original := string(content)
	matches := callPattern.FindAllStringSubmatch(original, -1)
	if len(matches) == 0 {
		return nil
	}

	fmt.Printf("\n%s:\n", path)

	replacements := make(map[string]string)
	for _, match := range matches {
		fullMatch := match[0]
		literal := match[2]

		if _, exists := replacements[fullMatch]; !exists {
			repl := fmt.Sprintf("uint32(0x%08X)", hash.Get(literal))
			replacements[fullMatch] = repl
			fmt.Printf("  %s -> %s  // %q\n", fullMatch, repl, literal)
		}
	}

	modified := original
	for from, to := range replacements {
		modified = strings.ReplaceAll(modified, from, to)
	}

	if !dryRun && modified != original {
		return os.WriteFile(path, []byte(modified), 0644)
	}
	return nil
}

func main() {
	dryRun := flag.Bool("dry-run", false, "report replacements without rewriting any file")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-dry-run] [root]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	root := ".."
	if flag.NArg() > 0 {
		root = flag.Arg(0)
	}

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() || !strings.HasSuffix(path, ".go") {
			return nil
		}
		// Never rewrite the tool's own sources or test fixtures that
		// assert on literal names.
		if strings.Contains(path, "tools") || strings.HasSuffix(path, "_test.go") {
			return nil
		}
		return processFile(path, *dryRun)
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if *dryRun {
		fmt.Println("dry run; nothing written")
	}
}
