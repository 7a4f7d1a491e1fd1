package main

import (
	"encoding/base64"
	"encoding/hex"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/LdDl/ksba-go/certreader"
	"github.com/LdDl/ksba-go/cms"
	"github.com/LdDl/ksba-go/gostcap"
	"github.com/ddulesov/gogost/gost3410"
	"github.com/google/uuid"
)

const (
	ESIATest = "https://esia-portal1.test.gosuslugi.ru"
	certPath = "test_container/certificate.cer"

	clientID    = "775607_DP"
	redirectURI = "https://ya.ru"
	scope       = "openid"

	tmLayout = "2006.01.02 15:04:05 -0700"

	// Aquire hex via `cryptopro_extract` CLI first
	keyHex = "YOUR_PRIVATE_KEY_HEX_HERE"
)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	keyBytes, err := hex.DecodeString(keyHex)
	if err != nil {
		slog.Error("failed to decode key", "error", err)
		os.Exit(1)
	}

	curve := gost3410.CurveIdGostR34102001CryptoProAParamSet()
	prv, err := gost3410.NewPrivateKey(curve, gost3410.Mode2001, keyBytes)
	if err != nil {
		slog.Error("failed to create private key", "error", err)
		os.Exit(1)
	}

	// Load certificate
	certDER, err := os.ReadFile(certPath)
	if err != nil {
		slog.Error("failed to read certificate", "error", err)
		os.Exit(1)
	}

	cert, err := certreader.ReadDER(certDER)
	if err != nil {
		slog.Error("failed to parse certificate", "error", err)
		os.Exit(1)
	}

	// extra oAuth parameters
	state := uuid.New().String()
	timestamp := time.Now().UTC().Format(tmLayout)

	// Message to sign: scope + timestamp + clientID + state
	message := scope + timestamp + clientID + state
	slog.Info("message prepared", "message", message)

	// Sign, driving the build state machine to completion
	cmsDER, err := signMessage(cert, certDER, prv, []byte(message))
	if err != nil {
		slog.Error("failed to sign", "error", err)
		os.Exit(1)
	}

	// URL-safe Base64
	clientSecret := base64.URLEncoding.EncodeToString(cmsDER)
	slog.Info("signature created",
		"signature_bytes", len(cmsDER),
		"base64_chars", len(clientSecret),
	)

	// prepare authorization URL
	params := url.Values{}
	params.Set("client_id", clientID)
	params.Set("client_secret", clientSecret)
	params.Set("redirect_uri", redirectURI)
	params.Set("scope", scope)
	params.Set("response_type", "code")
	params.Set("state", state)
	params.Set("timestamp", timestamp)
	params.Set("access_type", "offline")

	authURL := ESIATest + "/aas/oauth2/ac?" + params.Encode()
	slog.Info("authorization URL prepared", "url", authURL)

	// prepare and execute request
	slog.Info("testing against ESIA")
	client := &http.Client{
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	resp, err := client.Get(authURL)
	if err != nil {
		slog.Error("request failed", "error", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	loc := resp.Header.Get("Location")
	slog.Info("response received",
		"status", resp.Status,
		"location", loc,
	)

	if loc == "/login" || loc == ESIATest+"/login" {
		slog.Info("signature accepted by ESIA")
	}
}

// signMessage drives a full in-process CMS SignedData build: register
// the signer, stream content through the digest, build signedAttrs,
// sign externally via gostcap, and assemble the final DER bytes.
func signMessage(cert *certreader.Certificate, certDER []byte, prv *gost3410.PrivateKey, content []byte) ([]byte, error) {
	builder := cms.NewBuilder()
	idx, err := builder.AddSigner(cert.Root(), gostcap.OIDGostR341112256, gostcap.OIDGostR341012256WithGostR341112256)
	if err != nil {
		return nil, err
	}
	builder.AddDigestAlgorithm(gostcap.OIDGostR341112256)
	builder.AddCertificate(certDER)

	if _, err := builder.Step(); err != nil { // Running -> GotContent
		return nil, err
	}
	if _, err := builder.Step(); err != nil { // GotContent -> BeginData
		return nil, err
	}
	if err := builder.WriteContent(content, gostcap.HasherFactory{}); err != nil {
		return nil, err
	}
	if _, err := builder.Step(); err != nil {
		return nil, err
	}
	if _, err := builder.Step(); err != nil {
		return nil, err
	}

	digest, err := builder.HashSignedAttrs(idx, gostcap.NewHasher())
	if err != nil {
		return nil, err
	}
	signer := gostcap.NewSigner(prv)
	sig, err := signer.Sign(digest)
	if err != nil {
		return nil, err
	}
	if err := builder.SetSigValue(idx, sig); err != nil {
		return nil, err
	}
	if _, err := builder.Step(); err != nil {
		return nil, err
	}
	return builder.Encode()
}
