package node

import (
	"errors"
	"os"
	"path/filepath"
	"strings"

	"github.com/Klingon-tech/klingnet-chainstate/config"
	"github.com/Klingon-tech/klingnet-chainstate/internal/chain"
)

// chainNamespace keeps chain keys apart from anything else sharing the store.
var chainNamespace = []byte("chain/")

// maxImportLine bounds one JSON-encoded block in an import file.
const maxImportLine = 4 * config.MaxBlockSize

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}

// isBlockError reports whether err is about the block itself rather than
// the node's storage, so an import can skip it and continue.
func isBlockError(err error) bool {
	return errors.Is(err, chain.ErrInvalidBlock) ||
		errors.Is(err, chain.ErrBlockNotFound) ||
		errors.Is(err, chain.ErrInvalidChainReorganization)
}
