package asn1schema

// cryptoProGrammarSource describes the two small DER structures CryptoPro
// key containers carry on disk (masks.key, primary.key). It is kept as
// its own module rather than folded into grammarSource: these
// structures have nothing to do with Certificate/CMS and a container's
// masks.key/primary.key decode independently of the default module's
// Name/RDN productions.
const cryptoProGrammarSource = `
CryptoProMaskData ::= SEQUENCE {
	mask OCTET STRING,
	salt OCTET STRING,
	hmac OCTET STRING
}

CryptoProPrimaryData ::= SEQUENCE {
	value OCTET STRING
}
`

// CryptoProModule is the schema used by package cryptopro to decode
// masks.key/primary.key through the same der.Decode engine Certificate
// and CMS messages go through, rather than encoding/asn1.
var CryptoProModule = MustLoad("ksba-go-cryptopro", cryptoProGrammarSource)

// Production names for CryptoProModule.Expand.
const (
	ProdCryptoProMaskData    = "CryptoProMaskData"
	ProdCryptoProPrimaryData = "CryptoProPrimaryData"
)
