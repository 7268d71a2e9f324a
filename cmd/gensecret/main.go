package main

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"
)

const defaultSecretLen = 32

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, "error while generating secret key:", err)
		os.Exit(1)
	}
}

// run prints a hex encoded random key, suitable as devserver SECRET_KEY
func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("gensecret", pflag.ContinueOnError)
	n := fs.IntP("bytes", "b", defaultSecretLen, "Key length in bytes")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *n < 16 {
		return errors.New("key must be at least 16 bytes")
	}

	b := make([]byte, *n)
	if _, err := rand.Read(b); err != nil {
		return err
	}

	_, err := fmt.Fprintln(out, hex.EncodeToString(b))
	return err
}
