package main

import (
	"flag"
	"fmt"
	"os"

	"chathub/pkg/store"
)

// Offline store inspector. Opens a store directory directly (server must
// not be running) and dumps dialogs or a full message export to stdout.
func main() {
	var p string
	var dump bool
	flag.StringVar(&p, "path", "", "store dir path to open")
	flag.BoolVar(&dump, "dump", false, "dump all messages as JSON instead of dialog summaries")
	flag.Parse()
	if p == "" {
		fmt.Fprintln(os.Stderr, "--path required")
		os.Exit(2)
	}

	st, err := store.Open(p)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open failed: %v\n", err)
		os.Exit(1)
	}
	defer st.Close()

	if dump {
		if err := st.Export(os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "export failed: %v\n", err)
			os.Exit(1)
		}
		return
	}

	sums, err := st.Dialogs()
	if err != nil {
		fmt.Fprintf(os.Stderr, "list failed: %v\n", err)
		os.Exit(1)
	}
	fmt.Fprintf(os.Stdout, "last message id: %d\n", st.LastID())
	for _, s := range sums {
		fmt.Fprintf(os.Stdout, "%s\t%d messages\tlast ts %d\n", s.Key, s.Messages, s.LastTS)
	}
}
