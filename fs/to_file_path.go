package fs

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"os"
	"strings"
)

// ToFilePathFunc formats a base path, store name and profile key into the folder holding the
// key's file and the file's name.
type ToFilePathFunc func(basePath string, storeName string, key string) (folder string, fileName string)

// ToFilePath holds the global path formatting function used by the blob store.
// Applications may override this to control file placement.
var ToFilePath ToFilePathFunc = DefaultToFilePath

// DefaultToFilePath places a key's file under <basePath>/<store>/<h0h1>/<h2h3>, h being the hex
// SHA-256 of the key, and names it after the full hash. Keys of any length or alphabet map to
// safe file names and spread evenly across 65536 folders.
func DefaultToFilePath(basePath string, storeName string, key string) (string, string) {
	sum := sha256.Sum256([]byte(key))
	h := hex.EncodeToString(sum[:])
	ps := os.PathSeparator
	basePath = strings.TrimSuffix(basePath, string(ps))
	folder := fmt.Sprintf("%s%c%s%c%s%c%s", basePath, ps, url.PathEscape(storeName), ps, h[0:2], ps, h[2:4])
	return folder, h + ".json"
}
