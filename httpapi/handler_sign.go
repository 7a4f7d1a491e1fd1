package httpapi

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/LdDl/ksba-go/certreader"
	"github.com/LdDl/ksba-go/cms"
	"github.com/LdDl/ksba-go/gostcap"
	"github.com/ddulesov/gogost/gost3410"
)

// HandleSign Build a CMS SignedData message
// @Summary Build a CMS SignedData message
// @Description Builds and signs a CMS SignedData message over the given message bytes using a GOST private key and certificate
// @Tags Signing
// @Accept json
// @Produce json
// @Param request body httpapi.SignRequest true "Signing request"
// @Success 200 {object} httpapi.SignResponse
// @Failure 400 {object} httpapi.ErrorResponse
// @Failure 405 {object} httpapi.ErrorResponse
// @Failure 500 {object} httpapi.ErrorResponse
// @Router /api/v1/sign [POST]
func HandleSign(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req SignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse JSON: "+err.Error())
		return
	}

	keyBytes, err := hex.DecodeString(req.PrivateKeyHex)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid private key hex: "+err.Error())
		return
	}

	certDER, err := base64.StdEncoding.DecodeString(req.CertificateB64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid certificate base64: "+err.Error())
		return
	}

	curve := gost3410.CurveIdGostR34102001CryptoProAParamSet()
	prv, err := gost3410.NewPrivateKey(curve, gost3410.Mode2001, keyBytes)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to create private key: "+err.Error())
		return
	}

	cert, err := certreader.ReadDER(certDER)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse certificate: "+err.Error())
		return
	}

	cmsDER, err := signDetachedOrInline(cert, certDER, prv, []byte(req.Message))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to sign: "+err.Error())
		return
	}

	slog.Info("message signed",
		"message_len", len(req.Message),
		"signature_len", len(cmsDER),
	)

	resp := SignResponse{
		SignatureB64: base64.StdEncoding.EncodeToString(cmsDER),
	}

	writeJSON(w, http.StatusOK, resp)
}

// signDetachedOrInline drives a full build of a SignedData message over
// content, returning the final DER bytes.
func signDetachedOrInline(cert *certreader.Certificate, certDER []byte, prv *gost3410.PrivateKey, content []byte) ([]byte, error) {
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
