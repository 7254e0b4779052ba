package api

import (
	"crypto/sha256"
	_ "embed"
	"encoding/hex"
	"net/http"
	"strings"
	"sync"

	"sigs.k8s.io/yaml"
)

//go:embed openapi.yaml
var openAPISource []byte

type openAPIDoc struct {
	json []byte
	etag string
}

// loadOpenAPI converts the embedded YAML once, on first request.
var loadOpenAPI = sync.OnceValues(func() (openAPIDoc, error) {
	body, err := yaml.YAMLToJSON(openAPISource)
	if err != nil {
		return openAPIDoc{}, err
	}
	sum := sha256.Sum256(body)
	return openAPIDoc{json: body, etag: `"` + hex.EncodeToString(sum[:8]) + `"`}, nil
})

// OpenAPIHandler serves the API description as JSON, or as the source YAML
// when the client asks for it. Responses carry an ETag for conditional GETs.
func OpenAPIHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		doc, err := loadOpenAPI()
		if err != nil {
			http.Error(w, "openapi unavailable", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Cache-Control", "public, max-age=300")
		w.Header().Set("ETag", doc.etag)
		if r.Header.Get("If-None-Match") == doc.etag {
			w.WriteHeader(http.StatusNotModified)
			return
		}

		body, ct := doc.json, "application/json"
		if strings.Contains(r.Header.Get("Accept"), "yaml") {
			body, ct = openAPISource, "application/yaml"
		}
		w.Header().Set("Content-Type", ct)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	}
}
