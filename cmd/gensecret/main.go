// Command gensecret prints a random key suitable for SECRET_KEY
package main

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const defaultKeyBytesLen = 32

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "error while generating secret key: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	n := fs.IntP("bytes", "n", defaultKeyBytesLen, "Key length in bytes, at least 32")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < defaultKeyBytesLen {
		return fmt.Errorf("key must be at least %d bytes", defaultKeyBytesLen)
	}

	b := make([]byte, *n)
	if _, err := rand.Read(b); err != nil {
		return err
	}

	_, err := fmt.Fprintln(stdout, hex.EncodeToString(b))
	return err
}
