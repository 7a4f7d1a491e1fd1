// Package httpapi provides HTTP handlers for CMS SignedData build/parse
// and CryptoPro key extraction.
//
// @title ksba-go ASN.1/CMS Engine API
// @version 1.0
// @description HTTP API over a schema-driven ASN.1/BER/DER engine: builds and
// @description parses CMS/PKCS#7 SignedData messages, and extracts keys from
// @description CryptoPro containers. Signature/certificate-chain validation is
// @description explicitly out of scope (see the Verification tag below).
// @description
// @description Supports:
// @description - GOST R 34.10-2012 signature (256 bit)
// @description - GOST R 34.11-2012 hash (Streebog-256)
// @description - CMS SignedData build (signing) and structural parse (verify)
// @description - CryptoPro container key extraction
//
// @contact.name API Support
// @contact.url https://github.com/LdDl/ksba-go
//
// @license.name MIT
// @license.url https://opensource.org/licenses/MIT
//
// @host localhost:8080
// @BasePath /
// @schemes http https
//
// @externalDocs.description GitHub Repository
// @externalDocs.url https://github.com/LdDl/ksba-go
//
// @tag.name Health
// @tag.description Health check endpoints
//
// @tag.name Key Extraction
// @tag.description Extract keys from CryptoPro containers
//
// @tag.name Signing
// @tag.description Build a CMS SignedData message with GOST cryptography
//
// @tag.name Verification
// @tag.description Parse a CMS SignedData message's structural contents (no signature or chain validation)
package httpapi
