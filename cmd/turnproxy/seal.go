// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bureau-foundation/turnproxy/lib/process"
	"github.com/bureau-foundation/turnproxy/lib/sealed"
)

// runKeygen generates the proxy's age identity. The public key goes to
// stdout for whoever seals credentials; the identity goes to --output
// in age-keygen format, which credentials.age_identity_file accepts.
func runKeygen(args []string, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("turnproxy keygen", pflag.ContinueOnError)
	output := flagSet.StringP("output", "o", "", "write the identity to this file (required, created 0600)")
	if err := flagSet.Parse(args); err != nil {
		return process.Usage(err)
	}
	if *output == "" {
		return process.Usage(errors.New("keygen: --output is required"))
	}

	keypair, err := sealed.GenerateKeypair()
	if err != nil {
		return err
	}
	defer keypair.Close()

	file, err := os.OpenFile(*output, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return fmt.Errorf("creating identity file: %w", err)
	}
	fmt.Fprintf(file, "# public key: %s\n", keypair.PublicKey)
	if _, err := keypair.PrivateKey.WriteTo(file); err != nil {
		file.Close()
		return fmt.Errorf("writing identity file: %w", err)
	}
	if _, err := io.WriteString(file, "\n"); err != nil {
		file.Close()
		return fmt.Errorf("writing identity file: %w", err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("writing identity file: %w", err)
	}

	fmt.Fprintln(stdout, keypair.PublicKey)
	return nil
}

// runSeal encrypts a credential blob to one or more age recipients and
// prints it as a JSON string, ready to paste as a run's authJson.
func runSeal(args []string, stdin io.Reader, stdout io.Writer) error {
	flagSet := pflag.NewFlagSet("turnproxy seal", pflag.ContinueOnError)
	recipients := flagSet.StringArrayP("recipient", "r", nil, "age1... public key to seal to (repeatable)")
	input := flagSet.StringP("in", "i", "", "read the credential JSON from this file instead of stdin")
	if err := flagSet.Parse(args); err != nil {
		return process.Usage(err)
	}
	if len(*recipients) == 0 {
		return process.Usage(errors.New("seal: at least one --recipient is required"))
	}

	reader := stdin
	if *input != "" {
		file, err := os.Open(*input)
		if err != nil {
			return err
		}
		defer file.Close()
		reader = file
	}
	blob, err := io.ReadAll(reader)
	if err != nil {
		return fmt.Errorf("reading credential: %w", err)
	}
	blob = bytes.TrimSpace(blob)
	if !json.Valid(blob) {
		return process.Usage(errors.New("seal: credential input is not valid JSON"))
	}

	ciphertext, err := sealed.Encrypt(blob, *recipients)
	if err != nil {
		return process.Usage(err)
	}
	encoded, err := json.Marshal(ciphertext)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(stdout, "%s\n", encoded)
	return err
}
