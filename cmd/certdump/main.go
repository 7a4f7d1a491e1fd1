package main

import (
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"github.com/LdDl/ksba-go/certreader"
)

func main() {
	var verbose bool
	flag.BoolVar(&verbose, "v", false, "Print extensions and key usage")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	var cert *certreader.Certificate
	var err error
	if flag.NArg() < 1 {
		// No path given: read the DER certificate from stdin, e.g.
		// `openssl x509 -outform der -in cert.pem | certdump`.
		cert, err = certreader.ReadFrom(os.Stdin)
		if err != nil {
			slog.Error("failed to parse certificate from stdin", "error", err)
			os.Exit(1)
		}
	} else {
		certPath := flag.Arg(0)
		buf, rerr := os.ReadFile(certPath)
		if rerr != nil {
			slog.Error("failed to read certificate", "error", rerr)
			os.Exit(1)
		}
		cert, err = certreader.ReadDER(buf)
		if err != nil {
			slog.Error("failed to parse certificate", "error", err)
			os.Exit(1)
		}
	}

	serial, err := cert.GetSerial()
	if err != nil {
		slog.Error("failed to read serial", "error", err)
		os.Exit(1)
	}
	// serial is length-prefixed (4-byte big-endian length + bytes);
	// strip the prefix before printing the raw INTEGER hex.
	serialLen := binary.BigEndian.Uint32(serial[:4])
	fmt.Printf("Serial: %x\n", serial[4:4+serialLen])

	issuer, err := cert.GetIssuer(0)
	if err != nil {
		slog.Error("failed to read issuer", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Issuer: %s\n", issuer)

	subject, err := cert.GetSubject(0)
	if err != nil {
		slog.Error("failed to read subject", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Subject: %s\n", subject)

	notBefore, err := cert.GetValidity(certreader.NotBefore)
	if err != nil {
		slog.Error("failed to read notBefore", "error", err)
		os.Exit(1)
	}
	notAfter, err := cert.GetValidity(certreader.NotAfter)
	if err != nil {
		slog.Error("failed to read notAfter", "error", err)
		os.Exit(1)
	}
	fmt.Printf("Validity: %s .. %s\n", notBefore, notAfter)

	fmt.Printf("Self-signed: %t\n", cert.IsSelfSigned())

	if !verbose {
		return
	}

	isCA, err := cert.IsCA()
	if err != nil {
		slog.Error("failed to read BasicConstraints", "error", err)
	} else {
		fmt.Printf("Is CA: %t\n", isCA)
	}

	for i := 0; ; i++ {
		ext, err := cert.GetExtension(i)
		if err != nil {
			break
		}
		fmt.Printf("Extension[%d]: %s critical=%t (%d bytes)\n", i, ext.OID, ext.Critical, len(ext.Value.Content()))
	}
}
