// Command walletkeys manages encrypted wallet keys in a configurable key store.
package main

import "os"

func main() {
	if err := newRootCmd(rootOptions{}).Execute(); err != nil {
		os.Exit(1)
	}
}
