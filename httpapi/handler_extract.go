package httpapi

import (
	"archive/tar"
	"archive/zip"
	"compress/gzip"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/LdDl/ksba-go/cryptopro"
)

const maxUploadSize = 10 << 20 // 10 MB

// HandleExtract Extract key from CryptoPro container
// @Summary Extract key from CryptoPro container
// @Description Extracts private key, public key and certificate from uploaded CryptoPro container archive
// @Tags Key Extraction
// @Accept multipart/form-data
// @Produce json
// @Param file formData file true "Container archive (.zip or .tar.gz)"
// @Param pin formData string false "Container PIN code"
// @Success 200 {object} httpapi.ExtractResponse
// @Failure 400 {object} httpapi.ErrorResponse
// @Failure 405 {object} httpapi.ErrorResponse
// @Failure 500 {object} httpapi.ErrorResponse
// @Router /api/v1/extract [POST]
func HandleExtract(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	// Limit request size
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		writeError(w, http.StatusBadRequest, "failed to parse form: "+err.Error())
		return
	}

	// Get PIN
	pin := r.FormValue("pin")

	// Get file
	file, header, err := r.FormFile("file")
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to get file: "+err.Error())
		return
	}
	defer file.Close()

	slog.Info("received extract request",
		"filename", header.Filename,
		"size", header.Size,
	)

	// Create temp directory for extraction
	tempDir, err := os.MkdirTemp("", "cryptopro-extract-*")
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to create temp dir")
		return
	}
	defer os.RemoveAll(tempDir)

	// Detect archive type and extract
	containerPath, err := extractArchive(file, header.Filename, tempDir)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to extract archive: "+err.Error())
		return
	}

	// Open container
	container, err := cryptopro.OpenContainer(containerPath)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to open container: "+err.Error())
		return
	}

	// Extract key
	keyData, err := container.ExtractKey(pin)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to extract key: "+err.Error())
		return
	}

	slog.Info("key extracted successfully",
		"curve_oid", keyData.CurveOID,
		"fingerprint", hex.EncodeToString(keyData.Fingerprint),
	)

	resp := ExtractResponse{
		PrivateKeyHex: hex.EncodeToString(keyData.PrivateKey),
		PublicKeyHex:  hex.EncodeToString(keyData.PublicKey),
		Fingerprint:   hex.EncodeToString(keyData.Fingerprint),
		CurveOID:      keyData.CurveOID,
	}

	// Try to find and read certificate
	certPath := filepath.Join(containerPath, "certificate.cer")
	if certData, err := os.ReadFile(certPath); err == nil {
		resp.CertificateBase64 = base64.StdEncoding.EncodeToString(certData)
		slog.Info("certificate found", "path", "certificate.cer")
	} else {
		slog.Warn("certificate not found", "path", certPath)
	}

	writeJSON(w, http.StatusOK, resp)
}

// extractArchive dispatches to extractZip/extractTarGz by filename
// suffix and returns the directory holding the uploaded container's
// header.key.
func extractArchive(file multipart.File, filename string, destDir string) (string, error) {
	lowerName := strings.ToLower(filename)

	switch {
	case strings.HasSuffix(lowerName, ".zip"):
		return extractZip(file, destDir)
	case strings.HasSuffix(lowerName, ".tar.gz") || strings.HasSuffix(lowerName, ".tgz"):
		return extractTarGz(file, destDir)
	default:
		return "", fmt.Errorf("unsupported archive format: %s (use .zip or .tar.gz)", filename)
	}
}

func extractZip(file multipart.File, destDir string) (string, error) {
	// Need to read entire file for zip (requires seeking)
	tempFile, err := os.CreateTemp("", "upload-*.zip")
	if err != nil {
		return "", fmt.Errorf("failed to create temp file: %w", err)
	}
	defer os.Remove(tempFile.Name())
	defer tempFile.Close()

	size, err := io.Copy(tempFile, file)
	if err != nil {
		return "", fmt.Errorf("failed to copy upload: %w", err)
	}

	zipReader, err := zip.NewReader(tempFile, size)
	if err != nil {
		return "", fmt.Errorf("failed to open zip: %w", err)
	}

	for _, f := range zipReader.File {
		// Security: prevent path traversal
		cleanPath := filepath.Clean(f.Name)
		if strings.HasPrefix(cleanPath, "..") {
			continue
		}

		destPath := filepath.Join(destDir, cleanPath)

		if f.FileInfo().IsDir() {
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return "", fmt.Errorf("failed to create dir: %w", err)
			}
			continue
		}

		// Ensure parent directory exists
		if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
			return "", fmt.Errorf("failed to create parent dir: %w", err)
		}

		// Extract file
		srcFile, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("failed to open zip entry: %w", err)
		}

		dstFile, err := os.Create(destPath)
		if err != nil {
			srcFile.Close()
			return "", fmt.Errorf("failed to create file: %w", err)
		}

		_, err = io.Copy(dstFile, srcFile)
		srcFile.Close()
		dstFile.Close()
		if err != nil {
			return "", fmt.Errorf("failed to extract file: %w", err)
		}
	}

	// Find container directory (the one with header.key)
	return findContainerDir(destDir)
}

func extractTarGz(file multipart.File, destDir string) (string, error) {
	gzReader, err := gzip.NewReader(file)
	if err != nil {
		return "", fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gzReader.Close()

	tarReader := tar.NewReader(gzReader)

	for {
		header, err := tarReader.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read tar: %w", err)
		}

		// Security: prevent path traversal
		cleanPath := filepath.Clean(header.Name)
		if strings.HasPrefix(cleanPath, "..") {
			continue
		}

		destPath := filepath.Join(destDir, cleanPath)

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(destPath, 0755); err != nil {
				return "", fmt.Errorf("failed to create dir: %w", err)
			}
		case tar.TypeReg:
			// Ensure parent directory exists
			if err := os.MkdirAll(filepath.Dir(destPath), 0755); err != nil {
				return "", fmt.Errorf("failed to create parent dir: %w", err)
			}

			dstFile, err := os.Create(destPath)
			if err != nil {
				return "", fmt.Errorf("failed to create file: %w", err)
			}

			_, err = io.Copy(dstFile, tarReader)
			dstFile.Close()
			if err != nil {
				return "", fmt.Errorf("failed to extract file: %w", err)
			}
		}
	}

	// Find container directory (the one with header.key)
	return findContainerDir(destDir)
}

func findContainerDir(root string) (string, error) {
	var containerDir string

	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() && info.Name() == "header.key" {
			containerDir = filepath.Dir(path)
			return filepath.SkipAll
		}
		return nil
	})

	if err != nil && err != filepath.SkipAll {
		return "", fmt.Errorf("failed to walk directory: %w", err)
	}

	if containerDir == "" {
		return "", fmt.Errorf("container not found (no header.key)")
	}

	return containerDir, nil
}
