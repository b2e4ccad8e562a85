package main

import (
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/Binject/debug/pe"
	jsoniter "github.com/json-iterator/go"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/carved4/go-hashresolve/pkg/hash"
	"github.com/carved4/go-hashresolve/pkg/loader"
	"github.com/carved4/go-hashresolve/pkg/resolve"
)

var (
	verbose  bool
	asJSON   bool
	inModule string
	byOrd    uint32
)

var log = logrus.New()

var rootCmd = &cobra.Command{
	Use:          "hashresolve",
	Short:        "Resolve exported functions of loaded modules by name hash",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.SetOutput(cmd.ErrOrStderr())
		if verbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

var hashCmd = &cobra.Command{
	Use:   "hash <name>...",
	Short: "Print the case-folded FNV-1a digest of each name",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		type row struct {
			Name string `json:"name"`
			Hash string `json:"hash"`
		}
		rows := make([]row, 0, len(args))
		for _, name := range args {
			rows = append(rows, row{Name: name, Hash: fmt.Sprintf("0x%08X", hash.Get(name))})
		}
		if asJSON {
			return writeJSON(cmd, rows)
		}
		for _, r := range rows {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", r.Hash, r.Name)
		}
		return nil
	},
}

var exportsCmd = &cobra.Command{
	Use:   "exports <pe-file>",
	Short: "List the exports of a PE file on disk, with their digests",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		file, err := pe.Open(args[0])
		if err != nil {
			return err
		}
		defer file.Close()

		exports, err := file.Exports()
		if err != nil {
			return err
		}
		sort.Slice(exports, func(i, j int) bool { return exports[i].Ordinal < exports[j].Ordinal })

		type row struct {
			Ordinal uint32 `json:"ordinal"`
			Hash    string `json:"hash,omitempty"`
			Name    string `json:"name,omitempty"`
			RVA     string `json:"rva"`
		}
		rows := make([]row, 0, len(exports))
		for _, e := range exports {
			r := row{Ordinal: e.Ordinal, Name: e.Name, RVA: fmt.Sprintf("0x%X", e.VirtualAddress)}
			if e.Name != "" {
				r.Hash = fmt.Sprintf("0x%08X", hash.Get(e.Name))
			}
			rows = append(rows, r)
		}
		if asJSON {
			return writeJSON(cmd, rows)
		}
		for _, r := range rows {
			name := r.Name
			if name == "" {
				name = "(by ordinal only)"
			}
			hcol := r.Hash
			if hcol == "" {
				hcol = strings.Repeat(" ", 10)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%5d  %s  %-10s %s\n", r.Ordinal, hcol, r.RVA, name)
		}
		return nil
	},
}

var modulesCmd = &cobra.Command{
	Use:   "modules",
	Short: "List the modules the process loader currently has mapped",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		mods, err := loader.Native().Modules()
		if err != nil {
			return err
		}

		type row struct {
			Name string `json:"name"`
			Hash string `json:"hash"`
			Base string `json:"base"`
			Size uint32 `json:"size"`
			Path string `json:"path,omitempty"`
		}
		rows := make([]row, 0, len(mods))
		for _, m := range mods {
			rows = append(rows, row{
				Name: m.Name,
				Hash: fmt.Sprintf("0x%08X", hash.Get(m.Name)),
				Base: fmt.Sprintf("0x%X", m.Base),
				Size: m.Size,
				Path: m.Path,
			})
		}
		if asJSON {
			return writeJSON(cmd, rows)
		}
		for _, r := range rows {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %-14s %-32s %s\n", r.Hash, r.Base, r.Name, r.Path)
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <name | 0xHASH>",
	Short: "Resolve an export among the loaded modules",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		r := resolve.New(resolve.WithLogger(log))

		var fn resolve.Function
		var err error
		switch {
		case byOrd != 0:
			if inModule == "" {
				return fmt.Errorf("--ordinal needs --module to pick the export table")
			}
			fn, err = r.ResolveOrdinal(digest(inModule), byOrd)
		case inModule != "":
			fn, err = r.ResolveInModule(digest(inModule), digest(args[0]))
		default:
			fn, err = r.ResolveByHash(digest(args[0]))
		}
		if err != nil {
			return err
		}

		if asJSON {
			return writeJSON(cmd, map[string]any{
				"address": fmt.Sprintf("0x%X", fn.Addr),
				"module":  fn.Module,
				"name":    fn.Name,
				"ordinal": fn.Ordinal,
			})
		}
		name := fn.Name
		if name == "" {
			name = fmt.Sprintf("#%d", fn.Ordinal)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "0x%X  %s!%s\n", fn.Addr, fn.Module, name)
		return nil
	},
}

var pathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the running image's path as the loader recorded it",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := loader.ExecutablePath()
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), p)
		return nil
	},
}

// digest accepts either a literal 0x hash or a name to fold on the spot.
func digest(arg string) uint32 {
	if strings.HasPrefix(arg, "0x") || strings.HasPrefix(arg, "0X") {
		if v, err := strconv.ParseUint(arg[2:], 16, 32); err == nil {
			return uint32(v)
		}
	}
	return hash.Get(arg)
}

func writeJSON(cmd *cobra.Command, v any) error {
	out, err := jsoniter.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return nil
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Log scan steps to stderr")
	rootCmd.PersistentFlags().BoolVar(&asJSON, "json", false, "Emit JSON instead of columns")
	resolveCmd.Flags().StringVar(&inModule, "module", "", "Only search this module (name or 0x hash)")
	resolveCmd.Flags().Uint32Var(&byOrd, "ordinal", 0, "Resolve by biased ordinal instead of hash")
	rootCmd.AddCommand(hashCmd, exportsCmd, modulesCmd, resolveCmd, pathCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
