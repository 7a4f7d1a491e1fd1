package httpapi

import (
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/LdDl/ksba-go/cms"
	"github.com/LdDl/ksba-go/gostcap"
)

// HandleVerify Parse a CMS SignedData message's structural contents
// @Summary Parse a CMS SignedData message's structural contents
// @Description Parses a CMS SignedData message and reports its signerInfos, issuer/serial, digest algorithm, and inline-vs-detached content, without validating the signature or certificate chain
// @Tags Verification
// @Accept json
// @Produce json
// @Param request body httpapi.VerifyRequest true "Verification request"
// @Success 200 {object} httpapi.VerifyResponse
// @Failure 400 {object} httpapi.ErrorResponse
// @Failure 405 {object} httpapi.ErrorResponse
// @Router /api/v1/verify [POST]
func HandleVerify(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var req VerifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse JSON: "+err.Error())
		return
	}

	buf, err := base64.StdEncoding.DecodeString(req.SignatureB64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid signature base64: "+err.Error())
		return
	}

	parser := cms.NewParser(buf)
	for parser.StopReason() != cms.Ready {
		reason, err := parser.Step()
		if err != nil {
			writeError(w, http.StatusBadRequest, "failed to parse CMS message: "+err.Error())
			return
		}
		if reason == cms.BeginData {
			parser.InstallHasher(gostcap.NewHasher())
		}
	}

	issuerDN, serial, err := parser.GetIssuerAndSerial(0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read signer identity: "+err.Error())
		return
	}
	digestAlgo, err := parser.GetDigestAlgo(0)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read digest algorithm: "+err.Error())
		return
	}
	_, hasContent := parser.EContent()

	slog.Info("message verified (structurally)", "signer_count", parser.SignerCount())

	writeJSON(w, http.StatusOK, VerifyResponse{
		SignerCount:        parser.SignerCount(),
		IssuerDN:           issuerDN,
		SerialHex:          hex.EncodeToString(serial),
		DigestAlgorithmOID: digestAlgo.String(),
		HasInlineContent:   hasContent,
	})
}
