package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(callersCmd)
	rootCmd.AddCommand(calleesCmd)
	rootCmd.AddCommand(resolveCmd)
	rootCmd.AddCommand(importersCmd)
	rootCmd.AddCommand(symbolsCmd)
}

var flagFuzzy bool

var searchCmd = &cobra.Command{
	Use:   "search <name>",
	Short: "Find symbols by name",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := openIndex()
		if err != nil {
			return err
		}
		defer ix.Close()

		syms, err := ix.SearchSymbols(args[0], flagFuzzy)
		if err != nil {
			return err
		}
		for _, s := range syms {
			name := s.Name
			if s.Parent != "" {
				name = s.Parent + "." + s.Name
			}
			fmt.Printf("%s:%d\t%s\t%s\n", s.File, s.StartLine, s.Kind, name)
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().BoolVar(&flagFuzzy, "fuzzy", false, "substring match instead of exact")
}

var callersCmd = &cobra.Command{
	Use:   "callers <name>",
	Short: "Find call sites of a function, method, or Class.method",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := openIndex()
		if err != nil {
			return err
		}
		defer ix.Close()

		hits, err := ix.FindCallers(args[0])
		if err != nil {
			return err
		}
		for _, h := range hits {
			fmt.Printf("%s:%d\t%s\n", h.File, h.Line, h.Symbol)
		}
		return nil
	},
}

var calleesCmd = &cobra.Command{
	Use:   "callees <file> <symbol>",
	Short: "List the calls made from one symbol",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := openIndex()
		if err != nil {
			return err
		}
		defer ix.Close()

		edges, err := ix.FindCallees(args[0], args[1])
		if err != nil {
			return err
		}
		for _, e := range edges {
			name := e.CalleeName
			if e.CalleeQualif != "" {
				name = e.CalleeQualif + "." + e.CalleeName
			}
			fmt.Printf("%s:%d\t%s\n", e.CallerFile, e.Line, name)
		}
		return nil
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve <file> <name>",
	Short: "Resolve which module an identifier in a file comes from",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := openIndex()
		if err != nil {
			return err
		}
		defer ix.Close()

		module, original, err := ix.ResolveImport(args[0], args[1])
		if err != nil {
			return err
		}
		if module == "" {
			fmt.Println("unresolved")
			return nil
		}
		fmt.Printf("%s\t%s\n", module, original)
		return nil
	},
}

var importersCmd = &cobra.Command{
	Use:   "importers <module>",
	Short: "List files importing a module",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := openIndex()
		if err != nil {
			return err
		}
		defer ix.Close()

		imps, err := ix.FindImporters(args[0])
		if err != nil {
			return err
		}
		for _, imp := range imps {
			fmt.Printf("%s:%d\t%s\n", imp.File, imp.Line, imp.LocalName())
		}
		return nil
	},
}

var symbolsCmd = &cobra.Command{
	Use:   "symbols [file]",
	Short: "List symbols in a file, or all symbol names when no file is given",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ix, err := openIndex()
		if err != nil {
			return err
		}
		defer ix.Close()

		if len(args) == 0 {
			names, err := ix.AllSymbolNames()
			if err != nil {
				return err
			}
			for _, name := range names {
				fmt.Println(name)
			}
			return nil
		}
		syms, err := ix.SymbolsInFile(args[0])
		if err != nil {
			return err
		}
		for _, s := range syms {
			fmt.Printf("%d-%d\t%s\t%s\n", s.StartLine, s.EndLine, s.Kind, s.Name)
		}
		return nil
	},
}
