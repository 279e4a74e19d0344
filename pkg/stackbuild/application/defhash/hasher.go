package defhash

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"sort"

	"github.com/stackbuild/tools/pkg/stackbuild/application/model"
)

// Input is everything a node's definition hash covers. The context
// path is deliberately absent: it varies per checkout without changing
// what gets built.
type Input struct {
	Service          model.ServiceID
	Version          model.Version
	Platform         model.PlatformID
	Config           model.MergedConfig
	SourceSHAs       map[string]string
	DependencyHashes map[model.NodeKey]string
}

// Hash renders the input canonically, maps sorted by key, and returns
// the SHA-256 digest as 64 lowercase hex characters. Identical inputs
// always produce identical digests.
func Hash(input Input) string {
	digest := sha256.New()
	writeLine(digest, "service %s", input.Service)
	writeLine(digest, "version %s", input.Version)
	writeLine(digest, "platform %s", input.Platform)
	writeLine(digest, "dockerfile %s", input.Config.Dockerfile)

	for _, key := range sortedKeys(input.Config.Sources) {
		source := input.Config.Sources[key]
		writeLine(digest, "source %s type=%s url=%s ref=%s path=%s sha=%s",
			key, source.Type(), source.URL, source.Ref, source.Path, input.SourceSHAs[key])
	}
	for _, key := range sortedKeys(input.Config.ExternalImages) {
		image := input.Config.ExternalImages[key]
		writeLine(digest, "external %s image=%s arg=%s", key, image.Reference(), image.BuildArg)
	}
	for _, key := range sortedKeys(input.Config.Dependencies) {
		dependency := input.Config.Dependencies[key]
		writeLine(digest, "dependency %s arg=%s", key, dependency.BuildArg)
	}
	if input.Config.TLS != nil {
		writeLine(digest, "tls enabled=%v mode=%s cert=%s",
			input.Config.TLS.Enabled, input.Config.TLS.Mode, input.Config.TLS.CertName)
	}

	hashed := make([]model.NodeKey, 0, len(input.DependencyHashes))
	for key := range input.DependencyHashes {
		hashed = append(hashed, key)
	}
	sort.Slice(hashed, func(i, j int) bool { return hashed[i].Less(hashed[j]) })
	for _, key := range hashed {
		writeLine(digest, "dephash %s %s", key, input.DependencyHashes[key])
	}
	return hex.EncodeToString(digest.Sum(nil))
}

func writeLine(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}

func sortedKeys[V any](values map[string]V) []string {
	keys := make([]string, 0, len(values))
	for key := range values {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}
